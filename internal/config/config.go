// Package config holds the run policy: every tunable of a trading run, read once
// from a YAML file at startup and treated as immutable afterwards.
package config

import (
	"encoding/json"
	"os"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/rxtech-lab/argo-perp/internal/version"
	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

const (
	DriverPostgres = "postgres"
	DriverDuckDB   = "duckdb"
)

// Environment variables that override secrets from the file.
const (
	EnvAPIKey      = "BACKPACK_API_KEY"
	EnvAPISecret   = "BACKPACK_API_SECRET"
	EnvDatabaseDSN = "DATABASE_DSN"
)

type TradingConfig struct {
	PositionAmountUSDC   float64       `yaml:"position_amount_usdc" json:"position_amount_usdc" jsonschema:"title=Position Amount,description=Quote size in USDC for every new position,default=20" validate:"gt=0"`
	Leverage             float64       `yaml:"leverage" json:"leverage" jsonschema:"title=Leverage,description=Divisor used to express USD PnL as margin percent,default=1" validate:"gt=0"`
	TrailingStopTrigger  float64       `yaml:"trailing_stop_trigger" json:"trailing_stop_trigger" jsonschema:"title=Trailing Stop Trigger,description=Drop in percent from peak PnL that closes an armed position,default=0.5" validate:"gt=0"`
	MinPnLForTrailing    float64       `yaml:"min_pnl_for_trailing" json:"min_pnl_for_trailing" jsonschema:"title=Arming Threshold,description=Peak PnL percent that arms the trailing stop,default=0.3" validate:"gte=0"`
	FixedStopPct         float64       `yaml:"fixed_stop_pct" json:"fixed_stop_pct" jsonschema:"title=Fixed Stop,description=Loss in percent that closes an unarmed position,default=2" validate:"gt=0"`
	MaxPositions         int           `yaml:"max_positions" json:"max_positions" jsonschema:"title=Max Positions,description=Ceiling on concurrently open positions,default=5" validate:"gte=0"`
	LoopInterval         time.Duration `yaml:"loop_interval" json:"loop_interval" jsonschema:"title=Loop Interval,description=Delay between live loop iterations,default=1s" validate:"gt=0"`
	WindowSeconds        int           `yaml:"window_seconds" json:"window_seconds" jsonschema:"title=Window,description=Seconds of bars read per evaluation,default=600" validate:"gt=0"`
	DrainTimeout         time.Duration `yaml:"drain_timeout" json:"drain_timeout" jsonschema:"title=Drain Timeout,description=How long shutdown waits for in-flight evaluations,default=10s" validate:"gte=0"`
	MaxConcurrentSymbols int           `yaml:"max_concurrent_symbols" json:"max_concurrent_symbols" jsonschema:"title=Concurrent Symbols,description=Symbols evaluated in parallel; 1 is sequential,default=1" validate:"gte=1"`
}

type DatabaseConfig struct {
	Driver          string        `yaml:"driver" json:"driver" jsonschema:"title=Driver,enum=postgres,enum=duckdb,default=postgres" validate:"oneof=postgres duckdb"`
	DSN             string        `yaml:"dsn" json:"dsn" jsonschema:"title=DSN,description=Postgres connection string or DuckDB file path"`
	RetentionDays   int           `yaml:"retention_days" json:"retention_days" jsonschema:"title=Retention,description=Days of bars kept per instrument,default=90" validate:"gte=1"`
	PoolMinSize     int           `yaml:"pool_min_size" json:"pool_min_size" jsonschema:"default=5" validate:"gte=1"`
	PoolMaxSize     int           `yaml:"pool_max_size" json:"pool_max_size" jsonschema:"default=20" validate:"gtefield=PoolMinSize"`
	PoolReserve     int           `yaml:"pool_reserve" json:"pool_reserve" jsonschema:"description=Connections kept free from evaluator dispatch,default=2" validate:"gte=0"`
	MaxAgeSeconds   int           `yaml:"max_age_seconds" json:"max_age_seconds" jsonschema:"title=Freshness Bound,description=Newest bar must be younger than this,default=600" validate:"gt=0"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval" jsonschema:"default=24h" validate:"gt=0"`
	Timescale       bool          `yaml:"timescale" json:"timescale" jsonschema:"description=Turn partitions into hypertables,default=true"`
}

type StrategyConfig struct {
	DefaultStrategy          string        `yaml:"default_strategy" json:"default_strategy" jsonschema:"title=Strategy,default=Default" validate:"required"`
	AutoSelectUpdateInterval time.Duration `yaml:"auto_select_update_interval" json:"auto_select_update_interval" jsonschema:"default=300s" validate:"gt=0"`
	AutoSelectTopN           int           `yaml:"auto_select_top_n" json:"auto_select_top_n" jsonschema:"description=0 selects every instrument above the volume floor,default=10" validate:"gte=0"`
}

type SymbolsConfig struct {
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`
}

type VenueConfig struct {
	BaseURL   string `yaml:"base_url" json:"base_url" jsonschema:"default=https://api.backpack.exchange" validate:"required,url"`
	WSURL     string `yaml:"ws_url" json:"ws_url" jsonschema:"default=wss://ws.backpack.exchange" validate:"required,url"`
	APIKey    string `yaml:"api_key" json:"api_key" jsonschema:"description=Base64 ED25519 public key"`
	APISecret string `yaml:"api_secret" json:"api_secret" jsonschema:"description=Base64 ED25519 seed"`
	WindowMs  int64  `yaml:"window_ms" json:"window_ms" jsonschema:"default=5000" validate:"gt=0"`
}

type BrokerConfig struct {
	CallTimeout time.Duration `yaml:"call_timeout" json:"call_timeout" jsonschema:"default=5s" validate:"gt=0"`
	// PaperFeeModel prices the fills of the dry-run and back-test paper book
	PaperFeeModel string  `yaml:"paper_fee_model" json:"paper_fee_model" jsonschema:"enum=taker,enum=zero,default=taker" validate:"oneof=taker zero"`
	TakerFeeBps   float64 `yaml:"taker_fee_bps" json:"taker_fee_bps" jsonschema:"description=Taker fee in basis points of the notional,default=5" validate:"gte=0"`
}

type StreamConfig struct {
	IntervalSeconds  int           `yaml:"interval_seconds" json:"interval_seconds" jsonschema:"default=1" validate:"gt=0"`
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff" json:"reconnect_backoff" jsonschema:"default=5s" validate:"gt=0"`
	IdleTimeout      time.Duration `yaml:"idle_timeout" json:"idle_timeout" jsonschema:"default=10s" validate:"gt=0"`
}

type UniverseConfig struct {
	MinVolume    float64 `yaml:"min_volume" json:"min_volume" jsonschema:"default=1000000" validate:"gte=0"`
	SymbolSuffix string  `yaml:"symbol_suffix" json:"symbol_suffix" jsonschema:"default=_PERP"`
}

type BacktestConfig struct {
	StepSeconds int    `yaml:"step_seconds" json:"step_seconds" jsonschema:"default=5" validate:"gt=0"`
	ReportPath  string `yaml:"report_path" json:"report_path" jsonschema:"default=backtest_report.yaml"`
}

type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listen_addr" jsonschema:"description=Address of the /metrics and /healthz server; empty disables it,default=:9464"`
}

type LoggingConfig struct {
	Level string `yaml:"level" json:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error,default=info" validate:"oneof=debug info warn error"`
}

// Config is the run policy.
type Config struct {
	// RequiredVersion is a semver constraint the running agent must satisfy
	RequiredVersion string `yaml:"required_version" json:"required_version" jsonschema:"description=Semver constraint on the agent version such as >= 0.4"`

	Trading  TradingConfig  `yaml:"trading" json:"trading"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Strategy StrategyConfig `yaml:"strategy" json:"strategy"`
	Symbols  SymbolsConfig  `yaml:"symbols" json:"symbols"`
	Venue    VenueConfig    `yaml:"venue" json:"venue"`
	Broker   BrokerConfig   `yaml:"broker" json:"broker"`
	Stream   StreamConfig   `yaml:"stream" json:"stream"`
	Universe UniverseConfig `yaml:"universe" json:"universe"`
	Backtest BacktestConfig `yaml:"backtest" json:"backtest"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// Default returns the run policy with every default filled in.
func Default() Config {
	return Config{
		Trading: TradingConfig{
			PositionAmountUSDC:   20,
			Leverage:             1,
			TrailingStopTrigger:  0.5,
			MinPnLForTrailing:    0.3,
			FixedStopPct:         2.0,
			MaxPositions:         5,
			LoopInterval:         time.Second,
			WindowSeconds:        600,
			DrainTimeout:         10 * time.Second,
			MaxConcurrentSymbols: 1,
		},
		Database: DatabaseConfig{
			Driver:          DriverPostgres,
			RetentionDays:   90,
			PoolMinSize:     5,
			PoolMaxSize:     20,
			PoolReserve:     2,
			MaxAgeSeconds:   600,
			CleanupInterval: 24 * time.Hour,
			Timescale:       true,
		},
		Strategy: StrategyConfig{
			DefaultStrategy:          "Default",
			AutoSelectUpdateInterval: 300 * time.Second,
			AutoSelectTopN:           10,
		},
		Venue: VenueConfig{
			BaseURL:  "https://api.backpack.exchange",
			WSURL:    "wss://ws.backpack.exchange",
			WindowMs: 5000,
		},
		Broker: BrokerConfig{CallTimeout: 5 * time.Second, PaperFeeModel: "taker", TakerFeeBps: 5},
		Stream: StreamConfig{
			IntervalSeconds:  1,
			ReconnectBackoff: 5 * time.Second,
			IdleTimeout:      10 * time.Second,
		},
		Universe: UniverseConfig{MinVolume: 1_000_000, SymbolSuffix: "_PERP"},
		Backtest: BacktestConfig{StepSeconds: 5, ReportPath: "backtest_report.yaml"},
		Metrics:  MetricsConfig{ListenAddr: ":9464"},
		Logging:  LoggingConfig{Level: "info"},
	}
}

// Load reads the YAML file at path on top of the defaults, applies secret
// overrides from the environment and validates the result. A missing file is
// an error; an empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "read config %s", path)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "parse config %s", path)
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := version.CheckRequired(version.GetVersion(), cfg.RequiredVersion); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyEnv overrides secrets with non-empty environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.Venue.APIKey = v
	}

	if v := os.Getenv(EnvAPISecret); v != "" {
		c.Venue.APISecret = v
	}

	if v := os.Getenv(EnvDatabaseDSN); v != "" {
		c.Database.DSN = v
	}
}

// Validate validates the Config struct.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid run policy", err)
	}

	return nil
}

// RequireRuntime checks the settings a run cannot start without: a DSN for
// Postgres and API credentials when real orders are sent.
func (c *Config) RequireRuntime(realRun bool) error {
	if c.Database.Driver == DriverPostgres && c.Database.DSN == "" {
		return errors.Newf(errors.ErrCodeInvalidConfiguration, "database.dsn is required (or set %s)", EnvDatabaseDSN)
	}

	if realRun && (c.Venue.APIKey == "" || c.Venue.APISecret == "") {
		return errors.Newf(errors.ErrCodeMissingCredentials, "venue api_key and api_secret are required for --real-run (or set %s/%s)", EnvAPIKey, EnvAPISecret)
	}

	return nil
}

// ConcurrentSymbols returns how many symbols the live loop may evaluate at
// once: the configured value capped by the pool size minus the reserve.
func (c *Config) ConcurrentSymbols() int {
	n := c.Trading.MaxConcurrentSymbols
	if limit := c.Database.PoolMaxSize - c.Database.PoolReserve; n > limit {
		n = limit
	}

	if n < 1 {
		return 1
	}

	return n
}

// MaxAge returns the freshness bound as a duration.
func (c *Config) MaxAge() time.Duration {
	return time.Duration(c.Database.MaxAgeSeconds) * time.Second
}

// GetConfigSchema renders the JSON schema of the configuration file.
func GetConfigSchema() (string, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == reflect.TypeOf(time.Duration(0)) {
				return &jsonschema.Schema{Type: "string", Format: "duration"}
			}

			return nil
		},
	}

	schema := reflector.Reflect(&Config{})
	schema.Title = "argo-perp-config"
	schema.Description = "Run policy of the perpetual futures trading agent"

	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidConfiguration, "marshal config schema", err)
	}

	return string(out), nil
}
