package ollama

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/comment-labeler/internal/core/domain"
	"github.com/kirillkom/comment-labeler/internal/infrastructure/resilience"
)

const defaultTimeout = 180 * time.Second

type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	// Timeout bounds each individual attempt.
	Timeout  time.Duration
	Executor *resilience.Executor
}

func New(baseURL, model string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.Executor,
	}
}

func (c *Client) Model() string {
	return c.model
}

// Chat sends the message list to /api/chat and returns message.content.
func (c *Client) Chat(ctx context.Context, messages []domain.Message, opts domain.SamplingOptions) (string, error) {
	req := chatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
		Options:  samplingFrom(opts),
	}
	if opts.FormatJSON {
		req.Format = "json"
	}

	var response chatResponse
	if err := c.call(ctx, "chat", "/api/chat", req, &response); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Message.Content), nil
}

// Generate sends a single prompt to /api/generate and returns response.
func (c *Client) Generate(ctx context.Context, prompt string, opts domain.SamplingOptions) (string, error) {
	req := generateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  false,
		Options: samplingFrom(opts),
	}
	if opts.FormatJSON {
		req.Format = "json"
	}

	var response generateResponse
	if err := c.call(ctx, "generate", "/api/generate", req, &response); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func (c *Client) call(ctx context.Context, operation, path string, payload any, out any) error {
	attempt := func(callCtx context.Context) error {
		return c.postJSON(callCtx, path, payload, out, operation)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "ollama."+operation, attempt, classifyOllamaError)
	} else {
		err = attempt(ctx)
	}
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return err
	}
	return wrapNoReply(operation, err)
}
