// Package groq generates answers with Groq's OpenAI-compatible chat API.
package groq

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"ragpipe/internal/domain"
	"ragpipe/internal/generator"
	"ragpipe/internal/logger"
)

const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "llama-3.1-8b-instant"

	defaultBaseDelay = 200 * time.Millisecond
	maxDelay         = 5 * time.Second
)

// Config configures the generator. Zero values fall back to defaults.
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	MaxTokens         int
	MaxRetries        int
	RequestsPerMinute int
	Timeout           time.Duration
	SystemPrompt      string
	// BaseDelay is the first retry delay; it doubles per attempt up to 5s.
	BaseDelay time.Duration
	Logger    *zap.Logger
}

// Generator calls the chat completions endpoint. SDK retries are disabled so
// that 429 and 5xx responses go through one bounded, logged retry loop.
type Generator struct {
	client       openai.Client
	model        string
	maxTokens    int
	maxRetries   int
	systemPrompt string
	baseDelay    time.Duration
	limiter      *rate.Limiter
	logger       *zap.Logger
}

var _ domain.Generator = (*Generator)(nil)

// New returns ErrMissingAPIKey when cfg.APIKey is empty.
func New(cfg Config) (*Generator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: set GROQ_API_KEY", domain.ErrMissingAPIKey)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = generator.DefaultSystemPrompt
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}
	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(0),
	)
	return &Generator{
		client:       client,
		model:        cfg.Model,
		maxTokens:    cfg.MaxTokens,
		maxRetries:   cfg.MaxRetries,
		systemPrompt: cfg.SystemPrompt,
		baseDelay:    cfg.BaseDelay,
		limiter:      rate.NewLimiter(limit, 1),
		logger:       logger.OrNop(cfg.Logger),
	}, nil
}

func (g *Generator) Name() string { return "groq" }

// Generate answers question from passages. opts.Model overrides the
// configured model when set.
func (g *Generator) Generate(ctx context.Context, question string, passages []domain.Chunk, opts domain.GenerateOptions) (string, error) {
	model := g.model
	if opts.Model != "" {
		model = opts.Model
	}
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(g.systemPrompt),
			openai.UserMessage(generator.BuildPrompt(question, passages)),
		},
		Temperature: openai.Float(opts.Temperature),
	}
	if g.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(g.maxTokens))
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			delay := g.retryDelay(attempt - 1)
			g.logger.Debug("retrying completion",
				zap.String("stage", string(domain.StageGenerate)),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}
		if err := g.limiter.Wait(ctx); err != nil {
			return "", err
		}

		resp, err := g.client.Chat.Completions.New(ctx, params)
		if err == nil {
			if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
				return "", fmt.Errorf("%w: empty completion", domain.ErrUpstream)
			}
			return strings.TrimSpace(resp.Choices[0].Message.Content), nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		var retryable bool
		lastErr, retryable = classify(err)
		if !retryable {
			return "", lastErr
		}
	}
	g.logger.Warn("completion retries exhausted",
		zap.String("stage", string(domain.StageGenerate)),
		zap.Int("attempts", g.maxRetries+1),
		zap.Error(lastErr))
	return "", lastErr
}

// retryDelay grows exponentially from the base delay and is capped at 5s.
func (g *Generator) retryDelay(attempt int) time.Duration {
	if attempt >= 16 {
		return maxDelay
	}
	d := g.baseDelay << attempt
	if d > maxDelay {
		return maxDelay
	}
	return d
}

// classify maps an API failure onto the domain errors and reports whether
// another attempt may succeed.
func classify(err error) (error, bool) {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: %v", domain.ErrAuthentication, err), false
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", domain.ErrRateLimited, err), true
		case apiErr.StatusCode >= 500:
			return fmt.Errorf("%w: %v", domain.ErrUpstream, err), true
		default:
			return fmt.Errorf("%w: %v", domain.ErrUpstream, err), false
		}
	}
	// transport failure
	return fmt.Errorf("%w: %v", domain.ErrUpstream, err), true
}
