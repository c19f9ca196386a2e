package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment string        `mapstructure:"environment"`
	Server      ServerConfig  `mapstructure:"server"`
	Source      SourceConfig  `mapstructure:"source"`
	Study       StudyConfig   `mapstructure:"study"`
	Cache       CacheConfig   `mapstructure:"cache"`
	Ledger      LedgerConfig  `mapstructure:"ledger"`
	Refresh     RefreshConfig `mapstructure:"refresh"`
	Export      ExportConfig  `mapstructure:"export"`
	Logging     LoggingConfig `mapstructure:"logging"`
	MCP         MCPConfig     `mapstructure:"mcp"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// Snapshot source kinds
const (
	SourceCSV    = "csv"
	SourceREDCap = "redcap"
)

// SourceConfig selects where raw record sets are loaded from
type SourceConfig struct {
	Kind   string       `mapstructure:"kind"` // "csv" or "redcap"
	CSV    CSVConfig    `mapstructure:"csv"`
	REDCap REDCapConfig `mapstructure:"redcap"`
}

// CSVConfig locates the three exported record sets on disk
type CSVConfig struct {
	Dir            string `mapstructure:"dir"`
	ExclusionFile  string `mapstructure:"exclusion_file"`
	InHospitalFile string `mapstructure:"in_hospital_file"`
	FollowUpFile   string `mapstructure:"follow_up_file"`
}

// REDCapConfig represents data capture API configuration. Each record set
// lives in its own project and has its own token.
type REDCapConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	ExclusionToken  string        `mapstructure:"exclusion_token"`
	InHospitalToken string        `mapstructure:"in_hospital_token"`
	FollowUpToken   string        `mapstructure:"follow_up_token"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RateLimit       int           `mapstructure:"rate_limit"`
	RetryCount      int           `mapstructure:"retry_count"`
}

// StudyConfig holds study-wide constants
type StudyConfig struct {
	EnrollmentGoal int    `mapstructure:"enrollment_goal"`
	AsOf           string `mapstructure:"as_of"` // YYYY-MM-DD, empty for today
	Timezone       string `mapstructure:"timezone"`
}

// Cache kinds
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// CacheConfig represents snapshot cache configuration
type CacheConfig struct {
	Kind        string        `mapstructure:"kind"`
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxItems    int           `mapstructure:"max_items"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
}

// Ledger drivers
const (
	LedgerSQLite   = "sqlite"
	LedgerPostgres = "postgres"
	LedgerNone     = "none"
)

// LedgerConfig represents run ledger storage configuration
type LedgerConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	DatabaseURL     string        `mapstructure:"database_url"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RefreshConfig controls periodic recomputation in the server
type RefreshConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	OnStartup bool          `mapstructure:"on_startup"`
}

// ExportConfig controls workbook export
type ExportConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	ServerName    string `mapstructure:"server_name"`
	ServerVersion string `mapstructure:"server_version"`
}
