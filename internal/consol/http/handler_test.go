package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/caixa/internal/consol"
	"github.com/odyssey-erp/caixa/internal/ledger"
)

type stubConsolidator struct {
	calls int32
	ids   []int64
	gate  chan struct{}
	err   error
}

func (s *stubConsolidator) Consolidate(ctx context.Context, date time.Time, unitIDs []int64) (consol.ConsolidatedSummary, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.gate != nil {
		<-s.gate
	}
	s.ids = unitIDs
	if s.err != nil {
		return consol.ConsolidatedSummary{}, s.err
	}
	totals := ledger.ZeroSummary(ledger.NewScope(ledger.AllUnits, date), 0)
	totals.GrossRevenue = 80000
	return consol.ConsolidatedSummary{Date: date, Totals: totals}, nil
}

func newRouter(svc Consolidator) http.Handler {
	r := chi.NewRouter()
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc).MountRoutes(r)
	return r
}

func TestGetConsolidation(t *testing.T) {
	svc := &stubConsolidator{}
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/consolidation/2024-03-15?units=1,2", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []int64{1, 2}, svc.ids)

	var body consol.ConsolidatedSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(80000), body.Totals.GrossRevenue)
}

func TestGetConsolidationValidation(t *testing.T) {
	router := newRouter(&stubConsolidator{})
	for _, path := range []string{"/consolidation/2024-13-01", "/consolidation/2024-03-15?units=1,x", "/consolidation/2024-03-15?units=-1"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestGetConsolidationUnknownUnit(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(&stubConsolidator{err: ledger.ErrUnknownUnit}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/consolidation/2024-03-15?units=9", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConcurrentRequestsCollapse(t *testing.T) {
	svc := &stubConsolidator{gate: make(chan struct{})}
	router := newRouter(svc)

	const callers = 5
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/consolidation/2024-03-16?units=3", nil))
			assert.Equal(t, http.StatusOK, rec.Code)
		}()
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&svc.calls) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(svc.gate)
	wg.Wait()
	assert.LessOrEqual(t, atomic.LoadInt32(&svc.calls), int32(callers))
}

func TestParseUnitIDs(t *testing.T) {
	ids, err := ParseUnitIDs(" 1, 2,,3 ")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	ids, err = ParseUnitIDs("")
	require.NoError(t, err)
	assert.Nil(t, ids)
}
