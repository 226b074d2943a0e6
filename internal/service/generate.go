package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"git.sr.ht/~jakintosh/tollgate/internal/muse"
	"git.sr.ht/~jakintosh/tollgate/pkg/tokens"
)

// Generate runs the creature generator for an already-authorized caller and
// meters whatever tokens the upstream reports, including for replies that
// turn out to be unusable.
func (s *Service) Generate(
	ctx context.Context,
	claims *tokens.Claims,
	req muse.Request,
) (
	json.RawMessage,
	error,
) {
	if s.generator == nil {
		return nil, newError(ErrUnavailable, "Generation is not configured")
	}
	if err := req.Validate(); err != nil {
		return nil, newError(ErrValidation, err.Error())
	}

	result, genErr := s.generator.Generate(ctx, req)
	if result != nil {
		if err := s.RecordUsage(ctx, claims, result.InputTokens, result.OutputTokens); err != nil {
			s.log.WithError(err).Error("couldn't record generation usage", map[string]interface{}{
				"input_tokens":  result.InputTokens,
				"output_tokens": result.OutputTokens,
			})
		}
	}

	if genErr != nil {
		s.log.WithError(genErr).Warn("generation failed", nil)
		if errors.Is(genErr, muse.ErrUnavailable) {
			return nil, newError(ErrUnavailable, "Generation is not configured")
		}
		return nil, &UpstreamError{
			Status: http.StatusBadGateway,
			Detail: upstreamDetail(genErr),
			Err:    genErr,
		}
	}
	return result.StatBlock, nil
}

func upstreamDetail(err error) string {
	var upstream *muse.UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Detail
	}
	return "Failed to contact OpenAI"
}
