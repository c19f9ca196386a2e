package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trial-progress-dashboard/internal/config"
	"github.com/trial-progress-dashboard/internal/domain"
	"github.com/trial-progress-dashboard/internal/source"
	"github.com/trial-progress-dashboard/pkg/redcap"
)

func TestNewSource(t *testing.T) {
	logger, _ := test.NewNullLogger()

	src, err := NewSource(&domain.SourceConfig{Kind: domain.SourceCSV}, logger)
	require.NoError(t, err)
	assert.IsType(t, &source.Files{}, src)

	src, err = NewSource(&domain.SourceConfig{Kind: domain.SourceREDCap}, logger)
	require.NoError(t, err)
	assert.IsType(t, &redcap.Client{}, src)

	_, err = NewSource(&domain.SourceConfig{Kind: "ftp"}, logger)
	assert.ErrorIs(t, err, domain.ErrUnknownSource)
}

func TestNew(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "source:\n  kind: csv\n  csv:\n    dir: " + dir + "\nledger:\n  driver: sqlite\n  path: " + filepath.Join(dir, "runs.db") + "\ncache:\n  kind: memory\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	m, err := config.NewManagerFromFile(path)
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()

	a, err := New(context.Background(), m, logger, Options{Probe: true})
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "csv", a.Source.Name())
	assert.NotNil(t, a.Cache)
	assert.NotNil(t, a.Ledger)
	assert.Nil(t, a.DB, "no probe pool for a SQLite ledger")
	require.NotNil(t, a.Dashboard)

	runs, err := a.Dashboard.Runs(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestNew_BadCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  kind: memcached\n"), 0644))

	m, err := config.NewManagerFromFile(path)
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()

	_, err = New(context.Background(), m, logger, Options{})
	assert.Error(t, err)
}
