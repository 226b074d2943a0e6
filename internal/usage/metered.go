package usage

import (
	"context"

	"git.sr.ht/~jakintosh/tollgate/internal/metrics"
)

// Metered wraps a Store and counts applied increments and units.
type Metered struct {
	Store
}

func NewMetered(store Store) *Metered {
	return &Metered{Store: store}
}

func (m *Metered) Increment(
	ctx context.Context,
	inc Increment,
) error {
	if err := m.Store.Increment(ctx, inc); err != nil {
		return err
	}
	inc = inc.Normalized()
	metrics.UsageIncrements.WithLabelValues(inc.ProductID).Inc()
	metrics.UsageUnits.WithLabelValues(inc.ProductID, "input").Add(float64(inc.InputUnits))
	metrics.UsageUnits.WithLabelValues(inc.ProductID, "output").Add(float64(inc.OutputUnits))
	return nil
}
