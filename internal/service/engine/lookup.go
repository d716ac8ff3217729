package engine

import (
	"context"

	"github.com/heartmarshall/engagement-backend/internal/domain"
)

// Finder reads related records for workflow validators. It bypasses
// permissions and joins the caller's transaction through ctx.
type Finder struct {
	reg     specRegistry
	records recordStore
}

// NewFinder creates a Finder.
func NewFinder(reg specRegistry, records recordStore) *Finder {
	return &Finder{reg: reg, records: records}
}

// Find returns the live records of entity matching filter.
func (f *Finder) Find(ctx context.Context, entity string, filter map[string]any) ([]domain.Record, error) {
	es, err := f.reg.Get(entity)
	if err != nil {
		return nil, err
	}
	return f.records.List(ctx, es, domain.RecordQuery{Filter: filter})
}
