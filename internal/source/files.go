// Package source loads raw record sets exported to disk.
package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/trial-progress-dashboard/internal/domain"
)

// Default export file names, one per record set.
const (
	DefaultExclusionFile  = "exclusion.csv"
	DefaultInHospitalFile = "in_hospital.csv"
	DefaultFollowUpFile   = "follow_up.csv"
)

// Files reads the three record sets from CSV or XLSX exports in a
// directory. The format is chosen by file extension.
type Files struct {
	paths  map[string]string
	logger *logrus.Logger
}

// NewFiles creates a file source for the configured export directory.
func NewFiles(cfg domain.CSVConfig, logger *logrus.Logger) *Files {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	name := func(configured, fallback string) string {
		if configured == "" {
			configured = fallback
		}
		if filepath.IsAbs(configured) {
			return configured
		}
		return filepath.Join(cfg.Dir, configured)
	}
	return &Files{
		paths: map[string]string{
			domain.TableExclusion:  name(cfg.ExclusionFile, DefaultExclusionFile),
			domain.TableInHospital: name(cfg.InHospitalFile, DefaultInHospitalFile),
			domain.TableFollowUp:   name(cfg.FollowUpFile, DefaultFollowUpFile),
		},
		logger: logger,
	}
}

// Name identifies the source in logs and the run ledger.
func (f *Files) Name() string {
	return domain.SourceCSV
}

// Fetch reads every record set. A missing file fails the snapshot.
func (f *Files) Fetch(ctx context.Context) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{Tables: make(map[string]*domain.RawRecords, len(domain.SnapshotTables))}
	for _, table := range domain.SnapshotTables {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := f.paths[table]
		records, err := ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading %s records: %w", table, err)
		}
		f.logger.WithFields(logrus.Fields{
			"table": table,
			"path":  path,
			"rows":  len(records.Rows),
		}).Debug("Loaded export file")
		snap.Tables[table] = records
	}
	snap.FetchedAt = time.Now().UTC()
	return snap, nil
}

// ReadFile reads one export by extension.
func ReadFile(path string) (*domain.RawRecords, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return readXLSX(path)
	default:
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		return ReadCSV(file)
	}
}

// ReadCSV parses an export with a header row. Short rows leave trailing
// fields empty; a byte-order mark on the header is dropped.
func ReadCSV(r io.Reader) (*domain.RawRecords, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty export: no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var rows [][]string
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", len(rows)+2, err)
		}
		rows = append(rows, rec)
	}
	return fromGrid(header, rows), nil
}

func readXLSX(path string) (*domain.RawRecords, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	grid, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(grid) == 0 {
		return nil, fmt.Errorf("empty export: no header row")
	}
	return fromGrid(grid[0], grid[1:]), nil
}

func fromGrid(header []string, grid [][]string) *domain.RawRecords {
	fields := make([]string, len(header))
	for i, h := range header {
		fields[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	out := &domain.RawRecords{Fields: fields, Rows: make([]map[string]string, 0, len(grid))}
	for _, rec := range grid {
		if blank(rec) {
			continue
		}
		row := make(map[string]string, len(fields))
		for i, f := range fields {
			if f == "" {
				continue
			}
			if i < len(rec) {
				row[f] = rec[i]
			} else {
				row[f] = ""
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

var _ domain.SnapshotSource = (*Files)(nil)
