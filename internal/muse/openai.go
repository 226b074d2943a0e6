package muse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"git.sr.ht/~jakintosh/tollgate/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
)

const DefaultBaseURL = "https://api.openai.com/v1"

type Config struct {
	APIKey          string
	Model           string
	BaseURL         string
	Temperature     float64
	Timeout         time.Duration
	MaxOutputTokens *int
}

// OpenAIClient calls the Responses API over plain HTTP.
type OpenAIClient struct {
	cfg    Config
	http   *http.Client
	apiURL string
}

var _ Generator = (*OpenAIClient)(nil)

func NewOpenAIClient(cfg Config) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY is not configured", ErrUnavailable)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model is not configured", ErrUnavailable)
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 180 * time.Second
	}

	return &OpenAIClient{
		cfg:    cfg,
		http:   tracing.WrapHTTPClient(&http.Client{Timeout: timeout}),
		apiURL: base + "/responses",
	}, nil
}

type responsesRequest struct {
	Model           string      `json:"model"`
	Input           []message   `json:"input"`
	Temperature     float64     `json:"temperature"`
	MaxOutputTokens *int        `json:"max_output_tokens,omitempty"`
	Text            textOptions `json:"text"`
}

type textOptions struct {
	Format struct {
		Type string `json:"type"`
	} `json:"format"`
}

type responsesReply struct {
	OutputText *string `json:"output_text"`
	Output     []struct {
		Content []struct {
			Type string          `json:"type"`
			Text *string         `json:"text"`
			JSON json.RawMessage `json:"json"`
		} `json:"content"`
	} `json:"output"`
	Usage *struct {
		InputTokens      *float64 `json:"input_tokens"`
		PromptTokens     *float64 `json:"prompt_tokens"`
		OutputTokens     *float64 `json:"output_tokens"`
		CompletionTokens *float64 `json:"completion_tokens"`
	} `json:"usage"`
}

type errorReply struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *OpenAIClient) Generate(
	ctx context.Context,
	req Request,
) (
	result *Result,
	err error,
) {
	ctx, span := tracing.Start(ctx, "muse.Generate",
		attribute.String("openai.model", c.cfg.Model),
		attribute.Int("muse.revisions", len(req.Revisions)),
	)
	defer func() { tracing.End(span, err) }()

	body := responsesRequest{
		Model:           c.cfg.Model,
		Input:           buildPrompt(req),
		Temperature:     c.cfg.Temperature,
		MaxOutputTokens: c.cfg.MaxOutputTokens,
	}
	body.Text.Format.Type = "json_object"

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, upstreamFailure("Failed to encode OpenAI request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, upstreamFailure("Failed to build OpenAI request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, upstreamFailure("Failed to contact OpenAI", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, upstreamFailure("Failed to read OpenAI response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, upstreamStatusError(resp.StatusCode, raw)
	}

	reply := responsesReply{}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, upstreamFailure("OpenAI response was malformed", err)
	}

	return reply.result()
}

// result extracts the stat block. Usage counts are returned even when the
// content turns out to be unusable.
func (r *responsesReply) result() (*Result, error) {
	res := &Result{}
	res.InputTokens, res.OutputTokens = r.usageCounts()

	text, err := r.text()
	if err != nil {
		return res, err
	}
	if !json.Valid([]byte(text)) {
		return res, upstreamFailure("OpenAI response was not valid JSON", nil)
	}
	if err := validateStatBlock(json.RawMessage(text)); err != nil {
		return res, upstreamFailure("OpenAI response did not match the expected schema", err)
	}
	res.StatBlock = json.RawMessage(text)
	return res, nil
}

func (r *responsesReply) text() (string, error) {
	if r.OutputText != nil && strings.TrimSpace(*r.OutputText) != "" {
		return *r.OutputText, nil
	}
	for _, item := range r.Output {
		for _, part := range item.Content {
			if part.Text != nil && *part.Text != "" {
				return *part.Text, nil
			}
			if hasValue(part.JSON) {
				return string(part.JSON), nil
			}
		}
	}
	return "", upstreamFailure("OpenAI response did not contain textual content", nil)
}

func (r *responsesReply) usageCounts() (int64, int64) {
	if r.Usage == nil {
		return 0, 0
	}
	input := firstNonZero(r.Usage.InputTokens, r.Usage.PromptTokens)
	output := firstNonZero(r.Usage.OutputTokens, r.Usage.CompletionTokens)
	return input, output
}

func firstNonZero(primary, fallback *float64) int64 {
	value := primary
	if value == nil || *value == 0 {
		value = fallback
	}
	if value == nil || *value < 0 {
		return 0
	}
	return int64(*value)
}

func upstreamStatusError(status int, raw []byte) error {
	reply := errorReply{}
	message := http.StatusText(status)
	if err := json.Unmarshal(raw, &reply); err == nil && reply.Error.Message != "" {
		message = reply.Error.Message
	}
	return &UpstreamError{StatusCode: status, Detail: "OpenAI request failed: " + message}
}

// UpstreamError is a failed or unusable reply. Detail is safe to show to
// callers; Err holds the underlying cause, if any. It wraps ErrUpstream.
type UpstreamError struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("%v: %s", ErrUpstream, e.Detail)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamError) Unwrap() error { return ErrUpstream }

func upstreamFailure(detail string, err error) *UpstreamError {
	return &UpstreamError{Detail: detail, Err: err}
}
