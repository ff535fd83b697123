package http

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/caixa/internal/consol"
)

var viewGroup singleflight.Group

// collapse runs fn once per key among concurrent callers. A caller whose
// context ends stops waiting without cancelling the shared build.
func collapse(ctx context.Context, key string, fn func(context.Context) (consol.ConsolidatedSummary, error)) (consol.ConsolidatedSummary, bool, error) {
	resultChan := viewGroup.DoChan(key, func() (interface{}, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return consol.ConsolidatedSummary{}, false, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return consol.ConsolidatedSummary{}, res.Shared, res.Err
		}
		return res.Val.(consol.ConsolidatedSummary), res.Shared, nil
	}
}
