package config

import (
	"os"
	"path/filepath"
)

// DataDirEnv overrides the local data directory.
const DataDirEnv = EnvPrefix + "_DATA_DIR"

// DataDir returns the directory holding the local ledger and exports.
func DataDir() string {
	if v := os.Getenv(DataDirEnv); v != "" {
		return v
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".trial-dashboard"
	}
	return filepath.Join(homeDir, ".trial-dashboard")
}

// LedgerPath returns the SQLite run ledger path under dir.
func LedgerPath(dir string) string {
	return filepath.Join(dir, "runs.db")
}

// ExportDir returns the workbook export directory under dir.
func ExportDir(dir string) string {
	return filepath.Join(dir, "exports")
}

// EnsureDir creates dir if it doesn't exist.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}
