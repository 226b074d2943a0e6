package muse

import (
	"context"
	"sync"
)

// Stub is an in-process Generator returning a canned result and error. It
// records the requests it received.
type Stub struct {
	mu       sync.Mutex
	Result   *Result
	Err      error
	requests []Request
}

func NewStub(result *Result, err error) *Stub {
	return &Stub{Result: result, Err: err}
}

func (s *Stub) Generate(
	ctx context.Context,
	req Request,
) (*Result, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	result, failure := s.Result, s.Err
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, failure
	}
	copied := *result
	return &copied, failure
}

// Set replaces the canned result.
func (s *Stub) Set(result *Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Result, s.Err = result, err
}

func (s *Stub) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}
