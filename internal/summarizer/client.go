package summarizer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/its-the-vibe/JiraBolt/internal/collector"
	"github.com/its-the-vibe/JiraBolt/internal/logger"
)

// ErrNoCompletion means the response envelope carried no completion text,
// which in practice happens when the transcript exceeds the model context.
var ErrNoCompletion = errors.New("preset response has no completion content")

// RequestError wraps transport and server failures of the preset endpoint.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("preset request failed: %v", e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// EnvelopeError carries the raw response when ErrNoCompletion is returned.
type EnvelopeError struct {
	Raw string
}

func (e *EnvelopeError) Error() string { return ErrNoCompletion.Error() }

func (e *EnvelopeError) Unwrap() error { return ErrNoCompletion }

type Config struct {
	BaseURL    string
	Path       string
	Project    string
	APIKey     string
	PresetHash string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client calls a chat-completion shaped preset endpoint. The OpenAI SDK is
// used as transport so the envelope decodes into its types.
type Client struct {
	api  openai.Client
	path string
	hash string
}

func New(cfg Config) *Client {
	opts := []option.RequestOption{
		option.WithBaseURL(cfg.BaseURL),
		option.WithHeader("project", cfg.Project),
		option.WithHeader("apiKey", cfg.APIKey),
		option.WithHeader("Content-Type", "application/json; charset=utf-8"),
		option.WithMaxRetries(0),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &Client{
		api:  openai.NewClient(opts...),
		path: strings.TrimPrefix(cfg.Path, "/"),
		hash: cfg.PresetHash,
	}
}

type presetRequest struct {
	Hash     string                                   `json:"hash"`
	Params   map[string]any                           `json:"params"`
	Messages []openai.ChatCompletionMessageParamUnion `json:"messages"`
}

// Complete sends the transcript and returns the text of the first completion.
func (c *Client) Complete(ctx context.Context, t collector.Transcript, loc *time.Location) (string, error) {
	req := presetRequest{
		Hash: c.hash,
		Params: map[string]any{
			"context":             transcriptText(t, loc),
			"format_instructions": FormatInstructions(),
		},
		Messages: buildMessages(t, loc),
	}

	start := time.Now()
	var completion openai.ChatCompletion
	if err := c.api.Post(ctx, c.path, req, &completion); err != nil {
		return "", &RequestError{Err: err}
	}
	logger.Debug("Preset completion received in %dms", time.Since(start).Milliseconds())

	if len(completion.Choices) == 0 || strings.TrimSpace(completion.Choices[0].Message.Content) == "" {
		return "", &EnvelopeError{Raw: completion.RawJSON()}
	}
	return completion.Choices[0].Message.Content, nil
}

// Summarize runs Complete and ParseDraft. Parse and validation errors carry
// the raw completion text so callers can echo it.
func (c *Client) Summarize(ctx context.Context, t collector.Transcript, loc *time.Location) (IssueDraft, error) {
	content, err := c.Complete(ctx, t, loc)
	if err != nil {
		return IssueDraft{}, err
	}
	return ParseDraft(content)
}

// buildMessages renders one user message per entry: its text line followed
// by any inline images.
func buildMessages(t collector.Transcript, loc *time.Location) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(t.Entries))
	for _, e := range t.Entries {
		parts := []openai.ChatCompletionContentPartUnionParam{
			openai.TextContentPart(e.Line(loc)),
		}
		for _, img := range e.Images {
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: img.DataURL(),
			}))
		}
		msgs = append(msgs, openai.UserMessage(parts))
	}
	return msgs
}

func transcriptText(t collector.Transcript, loc *time.Location) string {
	var b strings.Builder
	for _, e := range t.Entries {
		b.WriteString(e.Line(loc))
		b.WriteByte('\n')
	}
	return b.String()
}
