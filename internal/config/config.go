package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"

	"github.com/trial-progress-dashboard/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g. TRIALDASH_SOURCE_KIND.
const EnvPrefix = "TRIALDASH"

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v        *viper.Viper
	file     string
	config   *domain.Config
	location *time.Location
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	return NewManagerFromFile("")
}

// NewManagerFromFile loads configuration from an explicit file. An empty path
// searches the default locations.
func NewManagerFromFile(path string) (*Manager, error) {
	m := &Manager{file: path}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := viper.New()

	if m.file != "" {
		v.SetConfigFile(m.file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/trial-dashboard/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read configuration file (optional - will use defaults and env vars if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	loc, err := time.LoadLocation(config.Study.Timezone)
	if err != nil {
		return fmt.Errorf("invalid study timezone %q: %w", config.Study.Timezone, err)
	}

	m.v = v
	m.config = config
	m.location = loc
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")

	// Source defaults
	v.SetDefault("source.kind", domain.SourceCSV)
	v.SetDefault("source.csv.dir", "./data")
	v.SetDefault("source.csv.exclusion_file", "exclusion.csv")
	v.SetDefault("source.csv.in_hospital_file", "in_hospital.csv")
	v.SetDefault("source.csv.follow_up_file", "follow_up.csv")
	v.SetDefault("source.redcap.base_url", "")
	v.SetDefault("source.redcap.exclusion_token", "")
	v.SetDefault("source.redcap.in_hospital_token", "")
	v.SetDefault("source.redcap.follow_up_token", "")
	v.SetDefault("source.redcap.timeout", "60s")
	v.SetDefault("source.redcap.rate_limit", 2)
	v.SetDefault("source.redcap.retry_count", 2)

	// Study defaults
	v.SetDefault("study.enrollment_goal", domain.DefaultEnrollmentGoal)
	v.SetDefault("study.as_of", "")
	v.SetDefault("study.timezone", "UTC")

	// Cache defaults
	v.SetDefault("cache.kind", domain.CacheMemory)
	v.SetDefault("cache.redis_url", "redis://localhost:6379")
	v.SetDefault("cache.default_ttl", "24h")
	v.SetDefault("cache.max_items", 8)
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.pool_timeout", "4s")

	// Ledger defaults
	v.SetDefault("ledger.driver", domain.LedgerSQLite)
	v.SetDefault("ledger.path", LedgerPath(DataDir()))
	v.SetDefault("ledger.database_url", "")
	v.SetDefault("ledger.migrations_path", "")
	v.SetDefault("ledger.max_open_conns", 25)
	v.SetDefault("ledger.max_idle_conns", 5)
	v.SetDefault("ledger.conn_max_lifetime", "5m")

	// Refresh defaults
	v.SetDefault("refresh.interval", "1h")
	v.SetDefault("refresh.on_startup", true)

	// Export defaults
	v.SetDefault("export.dir", ExportDir(DataDir()))

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// MCP defaults
	v.SetDefault("mcp.server_name", "trial-progress-dashboard")
	v.SetDefault("mcp.server_version", "1.0.0")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetSourceConfig returns snapshot source configuration
func (m *Manager) GetSourceConfig() *domain.SourceConfig {
	return &m.config.Source
}

// GetLedgerConfig returns run ledger configuration
func (m *Manager) GetLedgerConfig() *domain.LedgerConfig {
	return &m.config.Ledger
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Source.Kind {
	case domain.SourceCSV:
		if config.Source.CSV.Dir == "" {
			return fmt.Errorf("CSV export directory is required")
		}
	case domain.SourceREDCap:
		rc := config.Source.REDCap
		if rc.BaseURL == "" {
			return fmt.Errorf("REDCap base URL is required")
		}
		if rc.ExclusionToken == "" || rc.InHospitalToken == "" || rc.FollowUpToken == "" {
			return fmt.Errorf("REDCap API tokens are required for all three projects")
		}
	default:
		return fmt.Errorf("invalid source kind: %s", config.Source.Kind)
	}

	if config.Study.EnrollmentGoal <= 0 {
		return fmt.Errorf("enrollment goal must be positive: %d", config.Study.EnrollmentGoal)
	}
	if config.Study.AsOf != "" {
		if _, err := time.Parse("2006-01-02", config.Study.AsOf); err != nil {
			return fmt.Errorf("invalid as-of date %q: expected YYYY-MM-DD", config.Study.AsOf)
		}
	}

	switch config.Cache.Kind {
	case domain.CacheMemory, domain.CacheNone:
	case domain.CacheRedis:
		if config.Cache.RedisURL == "" {
			return fmt.Errorf("Redis URL is required")
		}
	default:
		return fmt.Errorf("invalid cache kind: %s", config.Cache.Kind)
	}

	switch config.Ledger.Driver {
	case domain.LedgerNone:
	case domain.LedgerSQLite:
		if config.Ledger.Path == "" {
			return fmt.Errorf("SQLite ledger path is required")
		}
	case domain.LedgerPostgres:
		if config.Ledger.DatabaseURL == "" {
			return fmt.Errorf("ledger database URL is required")
		}
	default:
		return fmt.Errorf("invalid ledger driver: %s", config.Ledger.Driver)
	}

	if config.Refresh.Interval < 0 {
		return fmt.Errorf("refresh interval cannot be negative")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// AsOf returns the evaluation date for a run started at now: the configured
// override when set, otherwise today's date in the study timezone.
func (m *Manager) AsOf(now time.Time) (time.Time, error) {
	if s := m.config.Study.AsOf; s != "" {
		d, err := time.Parse("2006-01-02", s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid as-of date %q: %w", s, err)
		}
		return d, nil
	}
	local := now.In(m.location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC), nil
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}

var _ domain.ConfigManager = (*Manager)(nil)
