package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/urfave/cli/v3"

	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

type TradingCommandTestSuite struct {
	suite.Suite
}

func TestTradingCommandSuite(t *testing.T) {
	suite.Run(t, new(TradingCommandTestSuite))
}

func (suite *TradingCommandTestSuite) run(args ...string) error {
	return newCommand().Run(context.Background(), append([]string{"trading"}, args...))
}

func (suite *TradingCommandTestSuite) TestParseSymbols() {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{name: "empty", args: nil, want: nil},
		{name: "comma separated", args: []string{"sol_usdc_perp,ETH_USDC_PERP"}, want: []string{"SOL_USDC_PERP", "ETH_USDC_PERP"}},
		{name: "separate args and blanks", args: []string{"BTC_USDC_PERP", " , ", "sol_usdc_perp "}, want: []string{"BTC_USDC_PERP", "SOL_USDC_PERP"}},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			suite.Equal(tc.want, parseSymbols(tc.args))
		})
	}
}

func (suite *TradingCommandTestSuite) TestModeIsRequired() {
	err := suite.run("SOL_USDC_PERP")
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
	suite.True(errors.IsFatal(err))
}

func (suite *TradingCommandTestSuite) TestModesAreExclusive() {
	err := suite.run("--real-run", "--dry-run", "SOL_USDC_PERP")
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *TradingCommandTestSuite) TestMissingConfigFileFails() {
	err := suite.run("--dry-run", "--config", filepath.Join(suite.T().TempDir(), "missing.yaml"), "SOL_USDC_PERP")
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *TradingCommandTestSuite) TestRealRunWithoutCredentialsIsFatal() {
	suite.T().Setenv("BACKPACK_API_KEY", "")
	suite.T().Setenv("BACKPACK_API_SECRET", "")

	path := filepath.Join(suite.T().TempDir(), "config.yaml")
	suite.Require().NoError(os.WriteFile(path, []byte("database:\n  driver: duckdb\n"), 0o600))

	err := suite.run("--real-run", "--config", path, "SOL_USDC_PERP")
	suite.True(errors.HasCode(err, errors.ErrCodeMissingCredentials))
	suite.True(errors.IsFatal(err))
}

func (suite *TradingCommandTestSuite) TestOptionsFromCommand() {
	var got options

	cmd := newCommand()
	cmd.Action = func(_ context.Context, c *cli.Command) error {
		got = optionsFromCommand(c)

		return nil
	}

	err := cmd.Run(context.Background(), []string{
		"trading", "--dry-run", "--auto-select", "--strategie", "Auto", "--backtest", "2h", "--no-limit",
		"sol_usdc_perp,eth_usdc_perp",
	})
	suite.Require().NoError(err)

	suite.True(got.DryRun)
	suite.False(got.RealRun)
	suite.True(got.AutoSelect)
	suite.True(got.NoLimit)
	suite.Equal("Auto", got.Strategy)
	suite.Equal(2*time.Hour, got.Backtest)
	suite.Equal("config.yaml", got.ConfigPath)
	suite.Equal("trading_stats.yaml", got.StatsOutput)
	suite.Equal([]string{"SOL_USDC_PERP", "ETH_USDC_PERP"}, got.Symbols)
}
