package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// LangChainConfig holds settings for the langchaingo-backed service.
type LangChainConfig struct {
	Model   string
	APIKey  string
	BaseURL string
	// Timeout bounds every completion call.
	Timeout time.Duration
}

// DefaultLangChainConfig returns defaults for an OpenAI-compatible endpoint.
func DefaultLangChainConfig() LangChainConfig {
	return LangChainConfig{
		Model:   "gpt-4o-mini",
		Timeout: 30 * time.Second,
	}
}

// LangChainService implements Service over langchaingo's OpenAI-compatible
// chat client with function-call tools.
type LangChainService struct {
	model  llms.Model
	cfg    LangChainConfig
	logger *zap.Logger
	tracer trace.Tracer
}

// NewLangChainService creates a reasoning service client.
func NewLangChainService(cfg LangChainConfig, logger *zap.Logger) (*LangChainService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultLangChainConfig().Timeout
	}

	opts := []openai.Option{openai.WithModel(cfg.Model)}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}

	return &LangChainService{
		model:  model,
		cfg:    cfg,
		logger: logger,
		tracer: otel.Tracer("reasoning"),
	}, nil
}

// Complete sends one completion request and maps the response to the core's
// structured result.
func (s *LangChainService) Complete(ctx context.Context, req Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "reasoning_complete",
		trace.WithAttributes(
			attribute.String("model", s.cfg.Model),
			attribute.Int("messages", len(req.Messages)),
			attribute.String("force_tool", req.ForceTool),
		))
	defer span.End()

	content := make([]llms.MessageContent, 0, len(req.Messages)+1)
	if req.System != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	for _, m := range req.Messages {
		content = append(content, llms.TextParts(roleToChatType(m.Role), m.Content))
	}

	callOpts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if len(req.Tools) > 0 {
		tools := make([]llms.Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, llms.Tool{
				Type: "function",
				Function: &llms.FunctionDefinition{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		callOpts = append(callOpts, llms.WithTools(tools))
	}
	if req.ForceTool != "" {
		callOpts = append(callOpts, llms.WithToolChoice(map[string]any{
			"type":     "function",
			"function": map[string]any{"name": req.ForceTool},
		}))
	}

	resp, err := s.model.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		span.RecordError(err)
		return nil, NewCollaboratorError("complete", err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewCollaboratorError("complete", fmt.Errorf("empty response"))
	}

	choice := resp.Choices[0]
	result := &Result{Text: choice.Content}
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		result.Calls = append(result.Calls, ToolCall{
			Name:      tc.FunctionCall.Name,
			Arguments: json.RawMessage(tc.FunctionCall.Arguments),
		})
	}

	if req.ForceTool != "" {
		if _, err := result.ForcedCall(req.ForceTool); err != nil {
			return nil, err
		}
	}

	s.logger.Debug("reasoning completion",
		zap.Int("tool_calls", len(result.Calls)),
		zap.Int("text_chars", len(result.Text)))

	return result, nil
}

func roleToChatType(r Role) llms.ChatMessageType {
	switch r {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
