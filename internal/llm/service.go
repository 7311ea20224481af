package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"storyloop/internal/debug"
	"storyloop/internal/observability"
)

// Context keys for operation tracing
type contextKey string

const operationTypeKey contextKey = "operation_type"

// Service wraps the OpenAI chat completion API with tracing and debug
// logging. It is shared across story instances; each call is independent.
type Service struct {
	client *openai.Client
	model  string
	debug  *debug.Logger
	tracer trace.Tracer
}

func NewService(apiKey, model string, debug *debug.Logger) *Service {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Service{
		client: &client,
		model:  model,
		debug:  debug,
		tracer: otel.Tracer("llm-service"),
	}
}

type TextCompletionRequest struct {
	SystemPrompt    string
	UserPrompt      string
	MaxTokens       int
	ReasoningEffort string // optional: minimal, low, medium, high
}

type JSONCompletionRequest struct {
	SystemPrompt    string
	UserPrompt      string
	MaxTokens       int
	ReasoningEffort string // optional: minimal, low, medium, high
}

// CompleteText runs a plain text chat completion.
func (s *Service) CompleteText(ctx context.Context, req TextCompletionRequest) (string, error) {
	return s.complete(ctx, req.SystemPrompt, req.UserPrompt, req.MaxTokens, req.ReasoningEffort, false)
}

// CompleteJSON runs a chat completion constrained to a JSON object response.
// The content still needs normalization before use; models occasionally
// return fenced or truncated output even in JSON mode.
func (s *Service) CompleteJSON(ctx context.Context, req JSONCompletionRequest) (string, error) {
	return s.complete(ctx, req.SystemPrompt, req.UserPrompt, req.MaxTokens, req.ReasoningEffort, true)
}

func (s *Service) complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, reasoningEffort string, jsonMode bool) (string, error) {
	operationType := "completion"
	if opType := getOperationType(ctx); opType != "" {
		operationType = opType
	}

	format := "text"
	if jsonMode {
		format = "json"
	}

	ctx, span := s.tracer.Start(ctx, operationType,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			observability.CreateGenAIAttributes("openai", s.model, 0, 0)...,
		),
	)
	defer span.End()

	span.SetAttributes(
		attribute.Int("gen_ai.request.max_tokens", maxTokens),
		attribute.String("langfuse.observation.type", "generation"),
		attribute.String("response_format", format),
		attribute.String("story.operation_type", operationType),
	)

	span.AddEvent("gen_ai.user.message", trace.WithAttributes(
		attribute.String("gen_ai.system", "openai"),
		attribute.String("content", userPrompt),
	))

	startTime := time.Now()

	openaiReq := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(s.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	}

	if jsonMode {
		openaiReq.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: func() *shared.ResponseFormatJSONObjectParam {
				p := shared.NewResponseFormatJSONObjectParam()
				return &p
			}(),
		}
	}

	if reasoningEffort != "" {
		openaiReq.ReasoningEffort = shared.ReasoningEffort(reasoningEffort)
	}

	s.debug.Printf("LLM %s completion op=%s maxTokens=%d systemPromptLen=%d",
		format, operationType, maxTokens, len(systemPrompt))

	resp, err := s.client.Chat.Completions.New(ctx, openaiReq)
	if err != nil {
		span.SetAttributes(attribute.String("error.type", "llm_completion_error"))
		span.RecordError(err)
		s.debug.Printf("LLM %s completion error: %v", format, err)
		return "", fmt.Errorf("%s completion failed: %w", format, err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("no completion choices returned")
		span.RecordError(err)
		return "", err
	}

	content := resp.Choices[0].Message.Content
	duration := time.Since(startTime)

	span.SetAttributes(
		attribute.Int64("gen_ai.usage.input_tokens", resp.Usage.PromptTokens),
		attribute.Int64("gen_ai.usage.output_tokens", resp.Usage.CompletionTokens),
		attribute.Int64("response_time_ms", duration.Milliseconds()),
		attribute.String("langfuse.observation.input", systemPrompt+"\n\n"+userPrompt),
		attribute.String("langfuse.observation.output", content),
		attribute.String("langfuse.observation.output_format", format),
		attribute.String("langfuse.observation.model.name", s.model),
	)

	span.AddEvent("gen_ai.choice", trace.WithAttributes(
		attribute.String("gen_ai.system", "openai"),
		attribute.String("content", content),
	))

	s.debug.Printf("LLM %s completion responseLen=%d tokens=%d/%d finish=%s duration=%v",
		format, len(content), resp.Usage.PromptTokens, resp.Usage.CompletionTokens,
		resp.Choices[0].FinishReason, duration)

	if strings.TrimSpace(content) == "" {
		s.debug.Printf("LLM returned empty content (finish_reason=%s)", resp.Choices[0].FinishReason)
	}

	return content, nil
}

// WithOperationType tags the context so the completion span is named after
// the logical operation (speaker selection, character decision, ...).
func WithOperationType(ctx context.Context, opType string) context.Context {
	return context.WithValue(ctx, operationTypeKey, opType)
}

// WithStoryID threads a story run id into spans started below this context.
func WithStoryID(ctx context.Context, storyID string) context.Context {
	return observability.WithStoryID(ctx, storyID)
}

func getOperationType(ctx context.Context) string {
	if opType, ok := ctx.Value(operationTypeKey).(string); ok {
		return opType
	}
	return ""
}
