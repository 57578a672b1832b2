package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/rxtech-lab/argo-perp/internal/config"
	"github.com/rxtech-lab/argo-perp/internal/version"
	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

// options is everything the command line contributes to a run.
type options struct {
	ConfigPath  string
	RealRun     bool
	DryRun      bool
	AutoSelect  bool
	Strategy    string
	Backtest    time.Duration
	NoLimit     bool
	LogLevel    string
	StatsOutput string
	Symbols     []string
}

func optionsFromCommand(cmd *cli.Command) options {
	return options{
		ConfigPath:  cmd.String("config"),
		RealRun:     cmd.Bool("real-run"),
		DryRun:      cmd.Bool("dry-run"),
		AutoSelect:  cmd.Bool("auto-select"),
		Strategy:    cmd.String("strategie"),
		Backtest:    cmd.Duration("backtest"),
		NoLimit:     cmd.Bool("no-limit"),
		LogLevel:    cmd.String("log-level"),
		StatsOutput: cmd.String("stats-output"),
		Symbols:     parseSymbols(cmd.Args().Slice()),
	}
}

// parseSymbols accepts "SOL_USDC_PERP,ETH_USDC_PERP" as well as separate
// arguments and upper-cases every entry.
func parseSymbols(args []string) []string {
	var symbols []string

	for _, arg := range args {
		for _, s := range strings.Split(arg, ",") {
			s = strings.ToUpper(strings.TrimSpace(s))
			if s != "" {
				symbols = append(symbols, s)
			}
		}
	}

	return symbols
}

func tradingAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("config-schema") {
		schema, err := config.GetConfigSchema()
		if err != nil {
			return err
		}

		fmt.Println(schema)

		return nil
	}

	opts := optionsFromCommand(cmd)

	if opts.Backtest > 0 {
		return runBacktest(ctx, opts)
	}

	return runLive(ctx, opts)
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:      "trading",
		Version:   version.GetVersion(),
		Usage:     "Trade perpetual futures from live 1-second bars",
		ArgsUsage: "[SYMBOLS]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML run policy",
				Value:   "config.yaml",
			},
			&cli.BoolFlag{
				Name:  "real-run",
				Usage: "Send signed market orders to the venue",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Log orders and fill them on a paper book",
			},
			&cli.BoolFlag{
				Name:  "auto-select",
				Usage: "Select the instrument universe from the venue's 24h tickers",
			},
			&cli.StringFlag{
				Name:  "strategie",
				Usage: "Strategy or dispatcher name (defaults to strategy.default_strategy)",
			},
			&cli.DurationFlag{
				Name:  "backtest",
				Usage: "Replay the last `DURATION` of stored bars instead of trading",
			},
			&cli.BoolFlag{
				Name:  "no-limit",
				Usage: "Disable the max_positions ceiling",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override logging.level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "stats-output",
				Usage: "Where the run statistics are written on shutdown; empty disables",
				Value: "trading_stats.yaml",
			},
			&cli.BoolFlag{
				Name:  "config-schema",
				Usage: "Print the JSON schema of the config file and exit",
			},
		},
		Action: tradingAction,
	}
}

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "trading: [%s] %v\n", errors.KindOf(err), err)
		os.Exit(1)
	}
}
