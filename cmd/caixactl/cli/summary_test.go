package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/caixa/internal/consol"
	"github.com/odyssey-erp/caixa/internal/ledger"
	"github.com/odyssey-erp/caixa/jobs"
)

func consolidationServer(t *testing.T, gotQuery *string) *httptest.Server {
	t.Helper()
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	view := consol.ConsolidatedSummary{
		Date: date,
		Units: []consol.UnitRow{{
			UnitID:   1,
			UnitName: "Centro",
			Summary:  ledger.Summary{UnitID: 1, GrossRevenue: 80000, CollectedCash: 50000, DeferredRevenue: 30000, ClosingBalance: 60000},
		}},
		Totals: ledger.Summary{GrossRevenue: 80000, CollectedCash: 50000, DeferredRevenue: 30000, ClosingBalance: 60000},
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/consolidation/2024-03-15" {
			w.Header().Set("Content-Type", "application/problem+json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"title":"Not Found","detail":"unit not found"}`))
			return
		}
		if gotQuery != nil {
			*gotQuery = r.URL.Query().Get("units")
		}
		_ = json.NewEncoder(w).Encode(view)
	}))
}

func TestSummaryCommandHuman(t *testing.T) {
	var query string
	srv := consolidationServer(t, &query)
	defer srv.Close()

	stdout := new(bytes.Buffer)
	code := SummaryCommand(context.Background(), SummaryOptions{
		APIBase: srv.URL + "/",
		Date:    "2024-03-15",
		Units:   []int64{1, 2},
		Stdout:  stdout,
		Stderr:  new(bytes.Buffer),
	})
	require.Equal(t, 0, code)
	assert.Equal(t, "1,2", query)
	out := stdout.String()
	assert.Contains(t, out, "Consolidated cash for 2024-03-15")
	assert.Contains(t, out, "Centro")
	assert.Contains(t, out, "All units")
	assert.Contains(t, out, "800.00")
	assert.Contains(t, out, "600.00")
}

func TestSummaryCommandJSON(t *testing.T) {
	srv := consolidationServer(t, nil)
	defer srv.Close()

	stdout := new(bytes.Buffer)
	code := SummaryCommand(context.Background(), SummaryOptions{APIBase: srv.URL, Date: "2024-03-15", JSONOutput: true, Stdout: stdout})
	require.Equal(t, 0, code)

	var view consol.ConsolidatedSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &view))
	assert.Equal(t, int64(80000), view.Totals.GrossRevenue)
}

func TestSummaryCommandErrors(t *testing.T) {
	srv := consolidationServer(t, nil)
	defer srv.Close()

	stderr := new(bytes.Buffer)
	code := SummaryCommand(context.Background(), SummaryOptions{APIBase: srv.URL, Date: "15/03/2024", Stdout: new(bytes.Buffer), Stderr: stderr})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "invalid date")

	stderr.Reset()
	code = SummaryCommand(context.Background(), SummaryOptions{APIBase: srv.URL, Date: "2024-03-16", Stdout: new(bytes.Buffer), Stderr: stderr})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "404")
}

func TestBuildTask(t *testing.T) {
	task, err := BuildTask(jobs.TaskConsolWarmup, "2024-03-15", []int64{3})
	require.NoError(t, err)
	assert.Equal(t, jobs.TaskConsolWarmup, task.Type())

	task, err = BuildTask(jobs.TaskIdempotencyCleanup, "", nil)
	require.NoError(t, err)
	assert.Equal(t, jobs.TaskIdempotencyCleanup, task.Type())

	_, err = BuildTask("email:send", "", nil)
	require.Error(t, err)
}
