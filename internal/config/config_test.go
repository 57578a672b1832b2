package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/argo-perp/internal/version"
	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

type ConfigTestSuite struct {
	suite.Suite
	dir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	suite.dir = suite.T().TempDir()
	suite.T().Setenv(EnvAPIKey, "")
	suite.T().Setenv(EnvAPISecret, "")
	suite.T().Setenv(EnvDatabaseDSN, "")
}

func (suite *ConfigTestSuite) write(content string) string {
	path := filepath.Join(suite.dir, "config.yaml")
	suite.Require().NoError(os.WriteFile(path, []byte(content), 0o600))

	return path
}

func (suite *ConfigTestSuite) TestDefaults() {
	cfg, err := Load("")
	suite.Require().NoError(err)

	suite.Equal(20.0, cfg.Trading.PositionAmountUSDC)
	suite.Equal(1.0, cfg.Trading.Leverage)
	suite.Equal(0.5, cfg.Trading.TrailingStopTrigger)
	suite.Equal(0.3, cfg.Trading.MinPnLForTrailing)
	suite.Equal(5, cfg.Trading.MaxPositions)
	suite.Equal(90, cfg.Database.RetentionDays)
	suite.Equal(5, cfg.Database.PoolMinSize)
	suite.Equal(20, cfg.Database.PoolMaxSize)
	suite.Equal(600, cfg.Database.MaxAgeSeconds)
	suite.Equal(300*time.Second, cfg.Strategy.AutoSelectUpdateInterval)
	suite.Equal(10*time.Minute, cfg.MaxAge())
}

func (suite *ConfigTestSuite) TestLoadOverridesOnlyGivenKeys() {
	path := suite.write(`
trading:
  position_amount_usdc: 50
  leverage: 3
  loop_interval: 2s
database:
  driver: duckdb
  dsn: bars.duckdb
strategy:
  default_strategy: Trix
symbols:
  include: [SOL_USDC_PERP]
  exclude: [BTC_USDC_PERP]
`)

	cfg, err := Load(path)
	suite.Require().NoError(err)
	suite.Equal(50.0, cfg.Trading.PositionAmountUSDC)
	suite.Equal(3.0, cfg.Trading.Leverage)
	suite.Equal(2*time.Second, cfg.Trading.LoopInterval)
	suite.Equal(0.5, cfg.Trading.TrailingStopTrigger)
	suite.Equal(DriverDuckDB, cfg.Database.Driver)
	suite.Equal("Trix", cfg.Strategy.DefaultStrategy)
	suite.Equal([]string{"SOL_USDC_PERP"}, cfg.Symbols.Include)
	suite.Equal([]string{"BTC_USDC_PERP"}, cfg.Symbols.Exclude)
}

func (suite *ConfigTestSuite) TestEnvOverridesSecrets() {
	suite.T().Setenv(EnvAPIKey, "key")
	suite.T().Setenv(EnvAPISecret, "secret")
	suite.T().Setenv(EnvDatabaseDSN, "postgres://localhost/bars")

	cfg, err := Load(suite.write("venue:\n  api_key: file-key\n"))
	suite.Require().NoError(err)
	suite.Equal("key", cfg.Venue.APIKey)
	suite.Equal("secret", cfg.Venue.APISecret)
	suite.Equal("postgres://localhost/bars", cfg.Database.DSN)
	suite.NoError(cfg.RequireRuntime(true))
}

func (suite *ConfigTestSuite) TestInvalidValues() {
	tests := []struct {
		name    string
		content string
	}{
		{"negative amount", "trading:\n  position_amount_usdc: -1\n"},
		{"zero leverage", "trading:\n  leverage: 0\n"},
		{"pool max below min", "database:\n  pool_min_size: 10\n  pool_max_size: 5\n"},
		{"unknown driver", "database:\n  driver: mysql\n"},
		{"empty strategy", "strategy:\n  default_strategy: \"\"\n"},
		{"bad yaml", "trading: [\n"},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			_, err := Load(suite.write(tt.content))
			suite.Error(err)
			suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
			suite.True(errors.IsFatal(err))
		})
	}
}

func (suite *ConfigTestSuite) TestMissingFile() {
	_, err := Load(filepath.Join(suite.dir, "nope.yaml"))
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *ConfigTestSuite) TestRequiredVersion() {
	original := version.Version
	defer func() { version.Version = original }()

	path := suite.write("required_version: \">= 0.4, < 1\"\n")

	version.Version = "0.4.1"
	cfg, err := Load(path)
	suite.Require().NoError(err)
	suite.Equal(">= 0.4, < 1", cfg.RequiredVersion)

	version.Version = "0.3.0"
	_, err = Load(path)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))

	version.Version = "main"
	_, err = Load(path)
	suite.NoError(err)
}

func (suite *ConfigTestSuite) TestRequireRuntime() {
	cfg := Default()
	err := cfg.RequireRuntime(false)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))

	cfg.Database.DSN = "postgres://localhost/bars"
	suite.NoError(cfg.RequireRuntime(false))

	err = cfg.RequireRuntime(true)
	suite.True(errors.HasCode(err, errors.ErrCodeMissingCredentials))
	suite.True(errors.IsFatal(err))

	cfg.Database.Driver = DriverDuckDB
	cfg.Database.DSN = ""
	suite.NoError(cfg.RequireRuntime(false))
}

func (suite *ConfigTestSuite) TestConcurrentSymbols() {
	cfg := Default()
	suite.Equal(1, cfg.ConcurrentSymbols())

	cfg.Trading.MaxConcurrentSymbols = 50
	suite.Equal(18, cfg.ConcurrentSymbols())

	cfg.Database.PoolMaxSize = 2
	suite.Equal(1, cfg.ConcurrentSymbols())
}

func (suite *ConfigTestSuite) TestGetConfigSchema() {
	schema, err := GetConfigSchema()
	suite.Require().NoError(err)
	suite.Contains(schema, "position_amount_usdc")
	suite.Contains(schema, "\"format\": \"duration\"")
}
