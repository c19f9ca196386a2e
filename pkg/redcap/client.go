// Package redcap exports flat record sets from a REDCap project API.
package redcap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/trial-progress-dashboard/internal/domain"
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("REDCap service unavailable (circuit breaker open)")

// apiError is the body REDCap returns with a non-2xx status.
type apiError struct {
	Error string `json:"error"`
}

// Client exports records from the three study projects. Every request is
// rate limited and passes through one circuit breaker.
type Client struct {
	http      *resty.Client
	tokens    map[string]string
	rateLimit *rate.Limiter
	breaker   *gobreaker.CircuitBreaker
	logger    *logrus.Logger
}

// NewClient creates a client for the configured projects.
func NewClient(config domain.REDCapConfig, logger *logrus.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	httpClient := resty.New().
		SetBaseURL(config.BaseURL).
		SetTimeout(config.Timeout).
		SetRetryCount(config.RetryCount).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		}).
		SetHeader("Accept", "application/json")

	c := &Client{
		http: httpClient,
		tokens: map[string]string{
			domain.TableExclusion:  config.ExclusionToken,
			domain.TableInHospital: config.InHospitalToken,
			domain.TableFollowUp:   config.FollowUpToken,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		logger:    logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "REDCap",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			c.logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
	return c
}

// Name identifies the source in logs and the run ledger.
func (c *Client) Name() string {
	return domain.SourceREDCap
}

// Fetch exports all three record sets. Any failure aborts the snapshot.
func (c *Client) Fetch(ctx context.Context) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{Tables: make(map[string]*domain.RawRecords, len(domain.SnapshotTables))}
	for _, table := range domain.SnapshotTables {
		records, err := c.ExportRecords(ctx, table)
		if err != nil {
			return nil, err
		}
		snap.Tables[table] = records
	}
	snap.FetchedAt = time.Now().UTC()
	return snap, nil
}

// ExportRecords exports one project as flat JSON records.
func (c *Client) ExportRecords(ctx context.Context, table string) (*domain.RawRecords, error) {
	token, ok := c.tokens[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownSource, table)
	}
	if token == "" {
		return nil, fmt.Errorf("no API token configured for %s records", table)
	}

	if err := c.rateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	start := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.export(ctx, token)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrUnavailable
		}
		return nil, fmt.Errorf("exporting %s records: %w", table, err)
	}

	records := result.(*domain.RawRecords)
	c.logger.WithFields(logrus.Fields{
		"table":    table,
		"rows":     len(records.Rows),
		"fields":   len(records.Fields),
		"duration": time.Since(start).String(),
	}).Debug("Exported REDCap records")
	return records, nil
}

func (c *Client) export(ctx context.Context, token string) (*domain.RawRecords, error) {
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"token":                  token,
			"content":                "record",
			"format":                 "json",
			"type":                   "flat",
			"rawOrLabel":             "raw",
			"rawOrLabelHeaders":      "raw",
			"exportCheckboxLabel":    "false",
			"exportSurveyFields":     "false",
			"exportDataAccessGroups": "false",
			"returnFormat":           "json",
		}).
		SetError(&apiErr).
		Post("")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		if apiErr.Error != "" {
			return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode(), apiErr.Error)
		}
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode())
	}

	var rows []map[string]string
	if err := json.Unmarshal(resp.Body(), &rows); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}
	return &domain.RawRecords{Fields: fieldNames(rows), Rows: rows}, nil
}

// fieldNames is the sorted union of keys across rows. Flat JSON exports do
// not carry a schema, so an empty export has no fields.
func fieldNames(rows []map[string]string) []string {
	seen := make(map[string]bool)
	for _, row := range rows {
		for k := range row {
			seen[k] = true
		}
	}
	fields := make([]string, 0, len(seen))
	for k := range seen {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

// BreakerState returns the current circuit breaker state.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// BreakerCounts returns the circuit breaker counters.
func (c *Client) BreakerCounts() gobreaker.Counts {
	return c.breaker.Counts()
}

var _ domain.SnapshotSource = (*Client)(nil)
