package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"git.sr.ht/~jakintosh/tollgate/internal/usage"
	"git.sr.ht/~jakintosh/tollgate/pkg/tokens"
)

const unknownProduct = "unknown"

// RecordUsage meters consumption for the caller. The record is keyed by
// the token's subscription id, falling back to the subject. Zero counts
// are not written.
func (s *Service) RecordUsage(
	ctx context.Context,
	claims *tokens.Claims,
	inputUnits int64,
	outputUnits int64,
) error {
	inc := usage.Increment{
		SubscriptionID: claims.Subject,
		UserID:         claims.Subject,
		ProductID:      unknownProduct,
		InputUnits:     inputUnits,
		OutputUnits:    outputUnits,
	}
	if inc.IsZero() {
		return nil
	}
	if claims.SubscriptionID != nil && strings.TrimSpace(*claims.SubscriptionID) != "" {
		inc.SubscriptionID = *claims.SubscriptionID
	}
	if claims.ProductID != nil && strings.TrimSpace(*claims.ProductID) != "" {
		inc.ProductID = *claims.ProductID
	}

	if err := s.usage.Increment(ctx, inc); err != nil {
		return fmt.Errorf("%w: couldn't record usage: %v", ErrInternal, err)
	}
	return nil
}

func (s *Service) Usage(
	ctx context.Context,
	subscriptionID string,
) (
	*usage.Record,
	error,
) {
	if strings.TrimSpace(subscriptionID) == "" {
		return nil, newError(ErrValidation, "subscriptionId is required")
	}
	record, err := s.usage.Get(ctx, subscriptionID)
	if errors.Is(err, usage.ErrNotFound) {
		return nil, newError(ErrNotFound, "Usage record not found")
	} else if err != nil {
		return nil, fmt.Errorf("%w: couldn't read usage: %v", ErrInternal, err)
	}
	return record, nil
}
