package llm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RawResult is the best-effort outcome of a completion call. A failed call
// (timeout, transport error, empty response) is reported with OK=false and
// is handled by the caller exactly like unparseable text.
type RawResult struct {
	Text string
	OK   bool
}

// Request describes one completion the story engine needs.
type Request struct {
	System    string
	User      string
	MaxTokens int
	// JSON asks for a JSON-object response. The result is still raw text;
	// normalization is the caller's job.
	JSON bool
	// Operation names the logical decision for tracing (e.g.
	// "director.select_speaker").
	Operation string
}

// Completer is the narrow contract the story engine has with the language
// model: eventually return a result or a definitive failure within the
// configured budget. Implementations must be safe for use by concurrent
// story instances.
type Completer interface {
	Complete(ctx context.Context, req Request) RawResult
}

// Adapter implements Completer on top of Service, adding a per-call time
// cap and transient-error retries. The aggregate budget for a logical
// decision arrives as a deadline on ctx; the cap can only tighten it,
// never extend it. Rate limiting and key management are concerns of the
// underlying client, not of the story engine.
type Adapter struct {
	svc      *Service
	timeout  time.Duration
	maxTries uint
}

func NewAdapter(svc *Service, timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Adapter{svc: svc, timeout: timeout, maxTries: 3}
}

func (a *Adapter) Complete(ctx context.Context, req Request) RawResult {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if req.Operation != "" {
		ctx = WithOperationType(ctx, req.Operation)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 500
	}

	op := func() (string, error) {
		if req.JSON {
			return a.svc.CompleteJSON(ctx, JSONCompletionRequest{
				SystemPrompt: req.System,
				UserPrompt:   req.User,
				MaxTokens:    maxTokens,
			})
		}
		return a.svc.CompleteText(ctx, TextCompletionRequest{
			SystemPrompt: req.System,
			UserPrompt:   req.User,
			MaxTokens:    maxTokens,
		})
	}

	text, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(a.maxTries),
	)
	if err != nil {
		return RawResult{OK: false}
	}

	return RawResult{Text: text, OK: true}
}
