package domain

import (
	"context"
	"time"
)

// Snapshot names the three raw record sets of one export.
const (
	TableExclusion  = "exclusion"
	TableInHospital = "in_hospital"
	TableFollowUp   = "follow_up"
)

// SnapshotTables lists the record sets in load order.
var SnapshotTables = []string{TableExclusion, TableInHospital, TableFollowUp}

// RawRecords is one exported record set: flat rows keyed by source field name.
type RawRecords struct {
	Fields []string            `json:"fields"`
	Rows   []map[string]string `json:"rows"`
}

// Snapshot is a full export of every record set at one point in time.
type Snapshot struct {
	Tables    map[string]*RawRecords `json:"tables"`
	FetchedAt time.Time              `json:"fetched_at"`
}

// Table returns the named record set or an empty one.
func (s *Snapshot) Table(name string) *RawRecords {
	if s == nil || s.Tables[name] == nil {
		return &RawRecords{}
	}
	return s.Tables[name]
}

// SnapshotSource retrieves a full snapshot from the data capture platform or
// from exported files.
type SnapshotSource interface {
	Fetch(ctx context.Context) (*Snapshot, error)
	Name() string
}

// SnapshotCache stores the most recent raw snapshot between refreshes.
type SnapshotCache interface {
	Get(ctx context.Context, key string) (*Snapshot, bool, error)
	Set(ctx context.Context, key string, snap *Snapshot, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
	Close() error
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetSourceConfig() *SourceConfig
	GetLedgerConfig() *LedgerConfig
	Reload() error
	Validate() error
	AsOf(now time.Time) (time.Time, error)
	IsProduction() bool
	IsDevelopment() bool
}
