// Package muse proxies creature stat block generation to an OpenAI
// Responses endpoint and reports the tokens each call consumed.
package muse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidRequest = errors.New("invalid generation request")
	ErrUpstream       = errors.New("generation upstream failed")
	ErrUnavailable    = errors.New("generation unavailable")
)

// Revision is one earlier round of the conversation: what the user asked
// for and the stat block that came back.
type Revision struct {
	Prompt    string          `json:"prompt"`
	StatBlock json.RawMessage `json:"stat_block"`
}

type Request struct {
	Instructions string          `json:"instructions"`
	Base         json.RawMessage `json:"base,omitempty"`
	Revisions    []Revision      `json:"revisions,omitempty"`
}

// Validate checks the request shape and every stat block it carries.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.Instructions) == "" {
		return fmt.Errorf("%w: instructions are required", ErrInvalidRequest)
	}
	if hasValue(r.Base) {
		if err := validateStatBlock(r.Base); err != nil {
			return fmt.Errorf("%w: base: %v", ErrInvalidRequest, err)
		}
	}
	for i, rev := range r.Revisions {
		if strings.TrimSpace(rev.Prompt) == "" {
			return fmt.Errorf("%w: revisions[%d]: prompt is required", ErrInvalidRequest, i)
		}
		if !hasValue(rev.StatBlock) {
			return fmt.Errorf("%w: revisions[%d]: stat_block is required", ErrInvalidRequest, i)
		}
		if err := validateStatBlock(rev.StatBlock); err != nil {
			return fmt.Errorf("%w: revisions[%d]: %v", ErrInvalidRequest, i, err)
		}
	}
	return nil
}

// Result is a generated stat block with the token counts reported upstream.
type Result struct {
	StatBlock    json.RawMessage
	InputTokens  int64
	OutputTokens int64
}

// Generator produces stat blocks. When a reply arrived but could not be
// used, implementations return ErrUpstream together with a Result carrying
// the usage counts, so the caller can still bill for them.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

func hasValue(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed != "" && trimmed != "null"
}
