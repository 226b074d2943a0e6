package iap

import (
	"context"
	"sync"
)

// Stub is an in-process Verifier returning canned results. It records the
// references it was asked to verify.
type Stub struct {
	mu          sync.Mutex
	Transaction *VerifiedTransaction
	Err         error
	calls       []string
}

func NewStub(tx *VerifiedTransaction) *Stub {
	return &Stub{Transaction: tx}
}

func NewFailingStub(err error) *Stub {
	return &Stub{Err: err}
}

func (s *Stub) VerifySignedTransaction(
	ctx context.Context,
	jws string,
) (*VerifiedTransaction, error) {
	return s.respond(ctx, jws)
}

func (s *Stub) VerifyTransaction(
	ctx context.Context,
	transactionID string,
) (*VerifiedTransaction, error) {
	return s.respond(ctx, transactionID)
}

// Set replaces the canned result.
func (s *Stub) Set(tx *VerifiedTransaction, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Transaction, s.Err = tx, err
}

func (s *Stub) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *Stub) respond(
	ctx context.Context,
	reference string,
) (*VerifiedTransaction, error) {
	s.mu.Lock()
	s.calls = append(s.calls, reference)
	tx, failure := s.Transaction, s.Err
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failure != nil {
		return nil, failure
	}
	if tx == nil {
		return nil, NewVerificationError(0, "no transaction configured")
	}
	copied := *tx
	return &copied, nil
}
