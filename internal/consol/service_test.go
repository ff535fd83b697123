package consol

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/caixa/internal/ledger"
)

var testDay = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

type stubReader struct {
	mu        sync.Mutex
	summaries map[int64]ledger.Summary
	calls     int32
	err       error
}

func (s *stubReader) GetSummary(ctx context.Context, unitID int64, date time.Time) (ledger.Summary, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return ledger.Summary{}, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if summary, ok := s.summaries[unitID]; ok {
		return summary, nil
	}
	return ledger.ZeroSummary(ledger.NewScope(unitID, date), 0), nil
}

type stubUnits map[int64]string

func (s stubUnits) ActiveIDs(ctx context.Context) ([]int64, error) {
	ids := make([]int64, 0, len(s))
	for id := int64(1); id <= int64(len(s)); id++ {
		if _, ok := s[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s stubUnits) Names(ctx context.Context, ids []int64) (map[int64]string, error) {
	out := map[int64]string{}
	for _, id := range ids {
		if name, ok := s[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

func unitOneSummary(t *testing.T) ledger.Summary {
	t.Helper()
	scope := ledger.NewScope(1, testDay)
	summary, err := ledger.Aggregate(scope, 20000, []ledger.Movement{
		{ID: "a", UnitID: 1, Date: testDay, Direction: ledger.DirectionInflow, Origin: ledger.OriginSaleImmediate, Amount: 50000, PaymentMethod: ledger.PaymentCash},
		{ID: "b", UnitID: 1, Date: testDay, Direction: ledger.DirectionInflow, Origin: ledger.OriginSaleDeferred, Amount: 30000, PaymentMethod: ledger.PaymentCreditCard},
		{ID: "c", UnitID: 1, Date: testDay, Direction: ledger.DirectionOutflow, Origin: ledger.OriginManualWithdrawal, Amount: 10000, PaymentMethod: ledger.PaymentCash},
	})
	require.NoError(t, err)
	return summary
}

func TestConsolidateNeverOpenedUnitContributesZeroRow(t *testing.T) {
	reader := &stubReader{summaries: map[int64]ledger.Summary{1: unitOneSummary(t)}}
	svc := NewService(reader, stubUnits{1: "Centro", 2: "Norte"}, Config{})

	view, err := svc.Consolidate(context.Background(), testDay, []int64{1, 2})
	require.NoError(t, err)

	assert.Equal(t, int64(80000), view.Totals.GrossRevenue)
	assert.Equal(t, int64(50000), view.Totals.CollectedCash)
	assert.Equal(t, int64(ledger.AllUnits), view.Totals.UnitID)
	require.Len(t, view.Units, 2)
	assert.Equal(t, "Norte", view.Units[1].UnitName)
	assert.Zero(t, view.Units[1].Summary.GrossRevenue)
	assert.Equal(t, int64(10000), view.Units[0].ShareBps)
	assert.Zero(t, view.Units[1].ShareBps)

	second, ok := view.Unit(2)
	require.True(t, ok)
	assert.Equal(t, int64(2), second.UnitID)
}

func TestConsolidateIsAdditive(t *testing.T) {
	a := unitOneSummary(t)
	b, err := ledger.Aggregate(ledger.NewScope(2, testDay), 500, []ledger.Movement{
		{ID: "d", UnitID: 2, Date: testDay, Direction: ledger.DirectionInflow, Origin: ledger.OriginAppointmentPayment, Amount: 12000, PaymentMethod: ledger.PaymentPix},
	})
	require.NoError(t, err)
	reader := &stubReader{summaries: map[int64]ledger.Summary{1: a, 2: b}}
	svc := NewService(reader, stubUnits{1: "Centro", 2: "Norte"}, Config{Concurrency: 1})

	view, err := svc.Consolidate(context.Background(), testDay, []int64{2, 1, 2})
	require.NoError(t, err)

	assert.Equal(t, []int64{2, 1}, view.UnitIDs(), "duplicates collapse, order is kept")
	assert.Equal(t, a.GrossRevenue+b.GrossRevenue, view.Totals.GrossRevenue)
	assert.Equal(t, a.ClosingBalance+b.ClosingBalance, view.Totals.ClosingBalance)
	assert.Equal(t, a.OpeningBalance+b.OpeningBalance, view.Totals.OpeningBalance)
	assert.Equal(t, a.MovementCount+b.MovementCount, view.Totals.MovementCount)
	var pix int64
	for _, mt := range view.Totals.ByMethod {
		if mt.Method == ledger.PaymentPix {
			pix = mt.Inflow
		}
	}
	assert.Equal(t, int64(12000), pix)
}

func TestConsolidateAllActiveUnits(t *testing.T) {
	reader := &stubReader{}
	svc := NewService(reader, stubUnits{1: "Centro", 2: "Norte", 3: "Sul"}, Config{})
	view, err := svc.Consolidate(context.Background(), testDay, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, view.UnitIDs())
	assert.Equal(t, int32(3), reader.calls)
}

func TestConsolidateRejectsUnknownUnits(t *testing.T) {
	svc := NewService(&stubReader{}, stubUnits{1: "Centro"}, Config{})
	_, err := svc.Consolidate(context.Background(), testDay, []int64{1, 9})
	assert.ErrorIs(t, err, ledger.ErrUnknownUnit)

	_, err = svc.Consolidate(context.Background(), testDay, []int64{0})
	assert.ErrorIs(t, err, ledger.ErrUnknownUnit)
}

func TestConsolidatePropagatesReaderErrors(t *testing.T) {
	boom := errors.New("db down")
	svc := NewService(&stubReader{err: boom}, stubUnits{1: "Centro"}, Config{})
	_, err := svc.Consolidate(context.Background(), testDay, []int64{1})
	assert.ErrorIs(t, err, boom)
}

func TestConsolidateServesFromCacheUntilBump(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)

	reader := &stubReader{summaries: map[int64]ledger.Summary{1: unitOneSummary(t)}}
	svc := NewService(reader, stubUnits{1: "Centro", 2: "Norte"}, Config{Cache: cache})
	svc.WithClock(func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC) })
	ctx := context.Background()

	first, err := svc.Consolidate(ctx, testDay, []int64{1, 2})
	require.NoError(t, err)
	second, err := svc.Consolidate(ctx, testDay, []int64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(2), reader.calls, "second call is a cache hit")

	require.NoError(t, cache.Bump(ctx))
	_, err = svc.Consolidate(ctx, testDay, []int64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, int32(4), reader.calls)
}

func TestCacheVersionInitialises(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)
	ctx := context.Background()

	ver, err := cache.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ver)

	key, err := cache.BuildKey(ctx, "2024-03-15", "1,2")
	require.NoError(t, err)
	assert.Equal(t, "consol:2024-03-15:1,2:v1", key)

	require.NoError(t, cache.Bump(ctx))
	ver, err = cache.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), ver)
}

func TestNilCacheIsPassThrough(t *testing.T) {
	var cache *Cache
	var dest int
	hit, err := cache.FetchJSON(context.Background(), "k", &dest, func(context.Context) (any, error) { return 7, nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 7, dest)
	assert.NoError(t, cache.Bump(context.Background()))
}

func TestFetchJSONServesLoaderWhenRedisFails(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)
	mr.SetError("ERR cache offline")

	var dest int
	calls := 0
	hit, err := cache.FetchJSON(context.Background(), "consol:k:v1", &dest, func(context.Context) (any, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 42, dest)
	assert.Equal(t, 1, calls)
}

func TestFetchJSONReloadsCorruptEntry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)
	require.NoError(t, mr.Set("consol:k:v1", "{not json"))

	var dest int
	hit, err := cache.FetchJSON(context.Background(), "consol:k:v1", &dest, func(context.Context) (any, error) { return 9, nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 9, dest)

	stored, err := mr.Get("consol:k:v1")
	require.NoError(t, err)
	assert.Equal(t, "9", stored)
}
