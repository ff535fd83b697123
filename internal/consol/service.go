package consol

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/caixa/internal/ledger"
)

// SummaryReader returns per-unit summaries: live when open, frozen when
// closed, zero when never opened.
type SummaryReader interface {
	GetSummary(ctx context.Context, unitID int64, date time.Time) (ledger.Summary, error)
}

// UnitDirectory resolves the set of units and their display names.
type UnitDirectory interface {
	ActiveIDs(ctx context.Context) ([]int64, error)
	Names(ctx context.Context, ids []int64) (map[int64]string, error)
}

// Metrics observes cache effectiveness.
type Metrics interface {
	ConsolidationServed(cacheHit bool, duration time.Duration)
}

// Config tunes the consolidation engine.
type Config struct {
	// Concurrency bounds the per-unit fan-out. Zero means 8.
	Concurrency int
	Cache       *Cache
	Metrics     Metrics
	Logger      *slog.Logger
}

// Service orchestrates consolidation operations. It never mutates registers.
type Service struct {
	reader SummaryReader
	units  UnitDirectory
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a consolidation service instance.
func NewService(reader SummaryReader, units UnitDirectory, cfg Config) *Service {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		reader: reader,
		units:  units,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "consol")),
		now:    time.Now,
	}
}

// WithClock overrides the clock for deterministic tests.
func (s *Service) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Consolidate merges the summaries of unitIDs for date. An empty unitIDs
// means every active unit. Units that never opened contribute a zero row.
func (s *Service) Consolidate(ctx context.Context, date time.Time, unitIDs []int64) (ConsolidatedSummary, error) {
	if s == nil || s.reader == nil {
		return ConsolidatedSummary{}, fmt.Errorf("consol service not initialised")
	}
	if date.IsZero() {
		return ConsolidatedSummary{}, fmt.Errorf("consol: date required")
	}
	day := ledger.Day(date)
	ids, err := s.resolveUnits(ctx, unitIDs)
	if err != nil {
		return ConsolidatedSummary{}, err
	}

	started := s.now()
	key, err := s.cfg.Cache.BuildKey(ctx, day.Format(ledger.DateLayout), joinIDs(ids))
	if err != nil {
		s.logger.Warn("consol cache key", slog.Any("error", err))
		return s.compute(ctx, day, ids)
	}
	var out ConsolidatedSummary
	hit, err := s.cfg.Cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return s.compute(ctx, day, ids)
	})
	if err != nil {
		return ConsolidatedSummary{}, err
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ConsolidationServed(hit, s.now().Sub(started))
	}
	return out, nil
}

func (s *Service) compute(ctx context.Context, day time.Time, ids []int64) (ConsolidatedSummary, error) {
	names := map[int64]string{}
	if s.units != nil {
		resolved, err := s.units.Names(ctx, ids)
		if err != nil {
			return ConsolidatedSummary{}, err
		}
		for _, id := range ids {
			if _, ok := resolved[id]; !ok {
				return ConsolidatedSummary{}, fmt.Errorf("%w: %d", ledger.ErrUnknownUnit, id)
			}
		}
		names = resolved
	}

	summaries := make([]ledger.Summary, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			summary, err := s.reader.GetSummary(gctx, id, day)
			if err != nil {
				return fmt.Errorf("consol: summary for unit %d: %w", id, err)
			}
			summaries[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ConsolidatedSummary{}, err
	}

	totals := ledger.ZeroSummary(ledger.NewScope(ledger.AllUnits, day), 0)
	for _, summary := range summaries {
		totals = totals.Add(summary)
	}
	rows := make([]UnitRow, len(ids))
	for i, id := range ids {
		rows[i] = UnitRow{
			UnitID:   id,
			UnitName: names[id],
			Summary:  summaries[i],
			ShareBps: shareBps(summaries[i].GrossRevenue, totals.GrossRevenue),
		}
	}
	return ConsolidatedSummary{
		Date:        day,
		Units:       rows,
		Totals:      totals,
		GeneratedAt: s.now().UTC(),
	}, nil
}

// resolveUnits deduplicates ids keeping first-seen order.
func (s *Service) resolveUnits(ctx context.Context, unitIDs []int64) ([]int64, error) {
	if len(unitIDs) == 0 {
		if s.units == nil {
			return nil, fmt.Errorf("consol: unit directory required for all-units view")
		}
		return s.units.ActiveIDs(ctx)
	}
	seen := make(map[int64]struct{}, len(unitIDs))
	out := make([]int64, 0, len(unitIDs))
	for _, id := range unitIDs {
		if id <= ledger.AllUnits {
			return nil, fmt.Errorf("%w: %d", ledger.ErrUnknownUnit, id)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

func joinIDs(ids []int64) string {
	if len(ids) == 0 {
		return "none"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
