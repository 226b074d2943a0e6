// Package usage defines the per-subscription usage counters and the
// in-process store. Durable stores live in internal/database.
package usage

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("usage record not found")

// Record is the cumulative usage for one subscription.
type Record struct {
	SubscriptionID string    `json:"subscriptionId"`
	UserID         string    `json:"userId"`
	ProductID      string    `json:"productId"`
	InputUnits     int64     `json:"inputUnits"`
	OutputUnits    int64     `json:"outputUnits"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Increment is one usage report. Counters are added to the record; identity
// fields replace whatever the record held.
type Increment struct {
	SubscriptionID string
	UserID         string
	ProductID      string
	InputUnits     int64
	OutputUnits    int64
}

// Normalized clamps negative counters to zero.
func (i Increment) Normalized() Increment {
	if i.InputUnits < 0 {
		i.InputUnits = 0
	}
	if i.OutputUnits < 0 {
		i.OutputUnits = 0
	}
	return i
}

// IsZero reports whether the increment adds nothing to either counter.
func (i Increment) IsZero() bool {
	n := i.Normalized()
	return n.InputUnits == 0 && n.OutputUnits == 0
}

// Store persists usage records. Increment must be atomic per subscription:
// N concurrent increments leave the same totals as applying them one at a
// time. Get returns ErrNotFound for unknown subscriptions.
type Store interface {
	Increment(ctx context.Context, inc Increment) error
	Get(ctx context.Context, subscriptionID string) (*Record, error)
}
