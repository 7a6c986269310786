package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "CAPTAINPULSE"

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Session   SessionConfig   `yaml:"session" envconfig:"SESSION"`
	Analytics AnalyticsConfig `yaml:"analytics" envconfig:"ANALYTICS"`
	Warehouse WarehouseConfig `yaml:"warehouse" envconfig:"WAREHOUSE"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port             int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout      time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"30s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"2m"`
	IdleTimeout      time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes   int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES" default:"1048576"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	OperationTimeout time.Duration `yaml:"operation_timeout" envconfig:"OPERATION_TIMEOUT" default:"90s"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"http://localhost:5173"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS" default:"true"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"50"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"100"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format      string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output      string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/captainpulse.log"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT" default:"false"`
}

// SessionConfig controls the in-memory dataset sessions
type SessionConfig struct {
	TTL            time.Duration `yaml:"ttl" envconfig:"TTL" default:"4h"`
	SweepInterval  time.Duration `yaml:"sweep_interval" envconfig:"SWEEP_INTERVAL" default:"5m"`
	MaxSessions    int           `yaml:"max_sessions" envconfig:"MAX_SESSIONS" default:"64"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes" envconfig:"MAX_UPLOAD_BYTES" default:"209715200"`
}

// AnalyticsConfig holds defaults for analysis requests
type AnalyticsConfig struct {
	MaxConcurrency      int      `yaml:"max_concurrency" envconfig:"MAX_CONCURRENCY" default:"4"`
	RollingWindows      []int    `yaml:"rolling_windows" envconfig:"ROLLING_WINDOWS" default:"7,30"`
	DefaultAggregations []string `yaml:"default_aggregations" envconfig:"DEFAULT_AGGREGATIONS" default:"sum,mean,count"`
	ReportTableRowLimit int      `yaml:"report_table_row_limit" envconfig:"REPORT_TABLE_ROW_LIMIT" default:"50"`
}

// WarehouseConfig describes the optional SQL warehouse used for captain id
// lookups and AO funnel pulls. Queries use named parameters (:ids, :start,
// :end, :time_level, :tod_level).
type WarehouseConfig struct {
	Enabled         bool          `yaml:"enabled" envconfig:"ENABLED" default:"false"`
	Driver          string        `yaml:"driver" envconfig:"DRIVER" default:"postgres"`
	DSN             string        `yaml:"dsn" envconfig:"DSN"`
	MaxOpenConns    int           `yaml:"max_open_conns" envconfig:"MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `yaml:"max_idle_conns" envconfig:"MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" envconfig:"CONN_MAX_LIFETIME" default:"30m"`
	QueryTimeout    time.Duration `yaml:"query_timeout" envconfig:"QUERY_TIMEOUT" default:"5m"`
	CaptainQuery    string        `yaml:"captain_query" envconfig:"CAPTAIN_QUERY"`
	AOFunnelQuery   string        `yaml:"ao_funnel_query" envconfig:"AO_FUNNEL_QUERY"`
}

// TelemetryConfig controls tracing and metrics export
type TelemetryConfig struct {
	ServiceName   string  `yaml:"service_name" envconfig:"SERVICE_NAME" default:"captainpulse"`
	Environment   string  `yaml:"environment" envconfig:"ENVIRONMENT" default:"development"`
	TraceExporter string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" default:"none"`
	EnableMetrics bool    `yaml:"enable_metrics" envconfig:"ENABLE_METRICS" default:"true"`
	SampleRatio   float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" default:"1.0"`
}

// Warehouse drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// Load loads configuration from environment variables and config file
func Load() (*Config, error) {
	return LoadFrom(getConfigFilePath())
}

// LoadFrom loads configuration from environment variables merged over the
// given YAML file. An empty path skips the file.
func LoadFrom(configFile string) (*Config, error) {
	var cfg Config

	// Load from environment variables first
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			fileConfig, err := loadFromFile(configFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load config from file: %w", err)
			}
			cfg = mergeConfigs(*fileConfig, cfg)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs overlays file values onto env values. Env values win unless
// the variable was not set, in which case envconfig left the built-in
// default and the file takes over.
func mergeConfigs(fileConfig, envConfig Config) Config {
	set := func(name string) bool {
		_, ok := os.LookupEnv(EnvPrefix + "_" + name)
		return ok
	}

	if !set("SERVER_PORT") && fileConfig.Server.Port != 0 {
		envConfig.Server.Port = fileConfig.Server.Port
	}
	if !set("SERVER_READ_TIMEOUT") && fileConfig.Server.ReadTimeout != 0 {
		envConfig.Server.ReadTimeout = fileConfig.Server.ReadTimeout
	}
	if !set("SERVER_WRITE_TIMEOUT") && fileConfig.Server.WriteTimeout != 0 {
		envConfig.Server.WriteTimeout = fileConfig.Server.WriteTimeout
	}
	if !set("SERVER_OPERATION_TIMEOUT") && fileConfig.Server.OperationTimeout != 0 {
		envConfig.Server.OperationTimeout = fileConfig.Server.OperationTimeout
	}

	if !set("SECURITY_ALLOWED_ORIGINS") && len(fileConfig.Security.AllowedOrigins) > 0 {
		envConfig.Security.AllowedOrigins = fileConfig.Security.AllowedOrigins
	}

	if !set("LOGGING_LEVEL") && fileConfig.Logging.Level != "" {
		envConfig.Logging.Level = fileConfig.Logging.Level
	}
	if !set("LOGGING_OUTPUT") && fileConfig.Logging.Output != "" {
		envConfig.Logging.Output = fileConfig.Logging.Output
	}
	if !set("LOGGING_FILE_PATH") && fileConfig.Logging.FilePath != "" {
		envConfig.Logging.FilePath = fileConfig.Logging.FilePath
	}

	if !set("SESSION_TTL") && fileConfig.Session.TTL != 0 {
		envConfig.Session.TTL = fileConfig.Session.TTL
	}
	if !set("SESSION_MAX_SESSIONS") && fileConfig.Session.MaxSessions != 0 {
		envConfig.Session.MaxSessions = fileConfig.Session.MaxSessions
	}

	if !set("ANALYTICS_MAX_CONCURRENCY") && fileConfig.Analytics.MaxConcurrency != 0 {
		envConfig.Analytics.MaxConcurrency = fileConfig.Analytics.MaxConcurrency
	}
	if !set("ANALYTICS_ROLLING_WINDOWS") && len(fileConfig.Analytics.RollingWindows) > 0 {
		envConfig.Analytics.RollingWindows = fileConfig.Analytics.RollingWindows
	}
	if !set("ANALYTICS_DEFAULT_AGGREGATIONS") && len(fileConfig.Analytics.DefaultAggregations) > 0 {
		envConfig.Analytics.DefaultAggregations = fileConfig.Analytics.DefaultAggregations
	}

	if !set("WAREHOUSE_ENABLED") && fileConfig.Warehouse.Enabled {
		envConfig.Warehouse.Enabled = true
	}
	if !set("WAREHOUSE_DRIVER") && fileConfig.Warehouse.Driver != "" {
		envConfig.Warehouse.Driver = fileConfig.Warehouse.Driver
	}
	if !set("WAREHOUSE_DSN") && fileConfig.Warehouse.DSN != "" {
		envConfig.Warehouse.DSN = fileConfig.Warehouse.DSN
	}
	if !set("WAREHOUSE_CAPTAIN_QUERY") && fileConfig.Warehouse.CaptainQuery != "" {
		envConfig.Warehouse.CaptainQuery = fileConfig.Warehouse.CaptainQuery
	}
	if !set("WAREHOUSE_AO_FUNNEL_QUERY") && fileConfig.Warehouse.AOFunnelQuery != "" {
		envConfig.Warehouse.AOFunnelQuery = fileConfig.Warehouse.AOFunnelQuery
	}

	if !set("TELEMETRY_TRACE_EXPORTER") && fileConfig.Telemetry.TraceExporter != "" {
		envConfig.Telemetry.TraceExporter = fileConfig.Telemetry.TraceExporter
	}
	if !set("TELEMETRY_ENVIRONMENT") && fileConfig.Telemetry.Environment != "" {
		envConfig.Telemetry.Environment = fileConfig.Telemetry.Environment
	}

	return envConfig
}

var knownAggregations = map[string]bool{
	"sum": true, "mean": true, "count": true, "nunique": true,
	"median": true, "std": true, "min": true, "max": true,
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.Security.EnableCORS && len(c.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin must be specified")
	}

	if c.Session.MaxSessions <= 0 {
		return fmt.Errorf("session max_sessions must be positive")
	}

	if c.Analytics.MaxConcurrency <= 0 {
		return fmt.Errorf("analytics max_concurrency must be positive")
	}

	for _, w := range c.Analytics.RollingWindows {
		if w < 1 {
			return fmt.Errorf("rolling window must be at least 1, got %d", w)
		}
	}

	for _, a := range c.Analytics.DefaultAggregations {
		if !knownAggregations[a] {
			return fmt.Errorf("unknown default aggregation %q", a)
		}
	}

	if c.Warehouse.Enabled {
		if c.Warehouse.Driver != DriverMySQL && c.Warehouse.Driver != DriverPostgres {
			return fmt.Errorf("unsupported warehouse driver %q", c.Warehouse.Driver)
		}
		if c.Warehouse.DSN == "" {
			return fmt.Errorf("warehouse dsn is required when the warehouse is enabled")
		}
	}

	if c.Logging.Format != "json" {
		c.Logging.Format = "json"
	}

	switch c.Logging.Output {
	case "console", "file", "both":
	default:
		c.Logging.Output = "console"
	}

	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/captainpulse.log"
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	// Check for config file in common locations
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     2 * time.Minute,
			IdleTimeout:      60 * time.Second,
			MaxHeaderBytes:   1 << 20, // 1MB
			ShutdownTimeout:  30 * time.Second,
			OperationTimeout: 90 * time.Second,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:5173"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     50,
				Burst:   100,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/captainpulse.log",
		},
		Session: SessionConfig{
			TTL:            4 * time.Hour,
			SweepInterval:  5 * time.Minute,
			MaxSessions:    64,
			MaxUploadBytes: 200 << 20,
		},
		Analytics: AnalyticsConfig{
			MaxConcurrency:      4,
			RollingWindows:      []int{7, 30},
			DefaultAggregations: []string{"sum", "mean", "count"},
			ReportTableRowLimit: 50,
		},
		Warehouse: WarehouseConfig{
			Driver:          DriverPostgres,
			MaxOpenConns:    10,
			MaxIdleConns:    10,
			ConnMaxLifetime: 30 * time.Minute,
			QueryTimeout:    5 * time.Minute,
		},
		Telemetry: TelemetryConfig{
			ServiceName:   "captainpulse",
			Environment:   "development",
			TraceExporter: "none",
			EnableMetrics: true,
			SampleRatio:   1.0,
		},
	}
}
