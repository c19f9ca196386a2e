package redcap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trial-progress-dashboard/internal/domain"
)

func testConfig(url string) domain.REDCapConfig {
	return domain.REDCapConfig{
		BaseURL:         url,
		ExclusionToken:  "tok-exclusion",
		InHospitalToken: "tok-hospital",
		FollowUpToken:   "tok-followup",
		Timeout:         5 * time.Second,
		RateLimit:       100,
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestClient_Fetch(t *testing.T) {
	bodies := map[string]string{
		"tok-exclusion": `[{"screen_id":"S1","exclusion_date":"2023-09-12","exclusion_reason___2":"1"}]`,
		"tok-hospital":  `[{"record_id":"101","redcap_event_name":"baseline_arm_1","enroll_dttm":"2023-09-20 10:00"},{"record_id":"101","redcap_event_name":"day_1_arm_1","blood_red_qty":"4"}]`,
		"tok-followup":  `[]`,
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "record", r.PostForm.Get("content"))
		assert.Equal(t, "json", r.PostForm.Get("format"))
		assert.Equal(t, "flat", r.PostForm.Get("type"))

		body, ok := bodies[r.PostForm.Get("token")]
		if !ok {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error":"You do not have permissions to use the API"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), quietLogger())
	assert.Equal(t, "redcap", client.Name())

	snap, err := client.Fetch(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.FetchedAt.IsZero())

	hospital := snap.Table(domain.TableInHospital)
	require.Len(t, hospital.Rows, 2)
	assert.Equal(t, []string{"blood_red_qty", "enroll_dttm", "record_id", "redcap_event_name"}, hospital.Fields)
	assert.Equal(t, "4", hospital.Rows[1]["blood_red_qty"])

	assert.Equal(t, []string{"exclusion_date", "exclusion_reason___2", "screen_id"}, snap.Table(domain.TableExclusion).Fields)
	assert.Empty(t, snap.Table(domain.TableFollowUp).Rows)
}

func TestClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"You do not have permissions to use the API"}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), quietLogger())
	_, err := client.ExportRecords(context.Background(), domain.TableExclusion)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
	assert.Contains(t, err.Error(), "permissions")
}

func TestClient_MissingToken(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:0")
	cfg.FollowUpToken = ""
	client := NewClient(cfg, quietLogger())

	_, err := client.ExportRecords(context.Background(), domain.TableFollowUp)
	assert.ErrorContains(t, err, "no API token")

	_, err = client.ExportRecords(context.Background(), "labs")
	assert.ErrorIs(t, err, domain.ErrUnknownSource)
}

func TestClient_CircuitBreakerOpens(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), quietLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := client.Fetch(ctx)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}
	assert.Equal(t, gobreaker.StateOpen, client.BreakerState())

	_, err := client.Fetch(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits), "an open breaker does not reach the server")
}

func TestClient_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Fetch(ctx)
	assert.Error(t, err)
}
