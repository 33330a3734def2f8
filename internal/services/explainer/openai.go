package explainer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/domain/service"
	xhttp "SignalDesk/pkg/http"
	"SignalDesk/pkg/logger"

	"github.com/cenkalti/backoff/v4"
)

const (
	temperature = 0.3
	maxTokens   = 500
)

type OpenAIConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries uint64
	// RetryInterval is the first wait between attempts.
	RetryInterval time.Duration
}

// OpenAI calls an OpenAI-compatible chat completions endpoint and falls back
// to the template when the provider keeps failing.
type OpenAI struct {
	cfg      OpenAIConfig
	client   *xhttp.Client
	fallback service.Explainer
	metrics  domrepo.Metrics
	log      *logger.Logger
}

func NewOpenAI(cfg OpenAIConfig, log *logger.Logger, metrics domrepo.Metrics) *OpenAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 500 * time.Millisecond
	}
	if log == nil {
		log = logger.Nop()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &OpenAI{
		cfg:      cfg,
		client:   xhttp.NewClient(xhttp.WithTimeout(cfg.Timeout)),
		fallback: Template{},
		metrics:  metrics,
		log:      log.With("explainer"),
	}
}

func (o *OpenAI) Provider() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

var errEmptyCompletion = errors.New("empty completion")

func (o *OpenAI) Explain(ctx context.Context, in service.ExplainInput) (string, error) {
	text, err := o.complete(ctx, buildPrompt(in))
	if err == nil {
		return text, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	o.log.Error("explanation provider failed, using template",
		logger.String("symbol", in.Symbol),
		logger.String("model", o.cfg.Model),
		logger.Error(err))
	if o.metrics != nil {
		o.metrics.RecordExplanation(o.Provider(), "fallback")
	}
	return o.fallback.Explain(ctx, in)
}

func (o *OpenAI) complete(ctx context.Context, prompt string) (string, error) {
	req := chatRequest{
		Model:       o.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	var text string
	op := func() error {
		var resp chatResponse
		err := o.client.SendAndParse(ctx, &xhttp.RequestOptions{
			Method: xhttp.MethodPost,
			URL:    o.cfg.BaseURL + "/chat/completions",
			Headers: map[string]string{
				"Authorization": "Bearer " + o.cfg.APIKey,
				"Content-Type":  "application/json",
			},
			Body: req,
		}, &resp)
		if err != nil {
			var se *xhttp.StatusError
			if errors.As(err, &se) && !se.Retryable() {
				return backoff.Permanent(err)
			}
			return err
		}
		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			return backoff.Permanent(errEmptyCompletion)
		}
		text = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.cfg.RetryInterval
	b.MaxElapsedTime = 20 * time.Second
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, o.cfg.MaxRetries), ctx)); err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	return text, nil
}
