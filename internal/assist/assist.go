// Package assist answers product questions with an LLM and reports each
// exchange to analytics.
package assist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	"github.com/remedygo/remedyd/internal/config"
)

const systemPrompt = "You are a product knowledge assistant for a medical sales team. " +
	"Answer concisely and factually. If you do not know, say so instead of guessing. " +
	"Never give medical advice to patients; your audience is sales representatives."

// Sink receives one analytics record per question asked.
type Sink interface {
	AIQuery(userID, query string, answered bool, latency time.Duration)
}

// completer is the LLM surface the service needs. Narrowed for tests.
type completer interface {
	complete(ctx context.Context, question string) (string, error)
}

// Service answers product questions.
type Service struct {
	llm    completer
	sink   Sink
	logger *zap.Logger
}

// NewService creates the assist service from config.
func NewService(cfg config.Assist, sink Sink, logger *zap.Logger) *Service {
	return &Service{
		llm:    newOpenAICompleter(cfg),
		sink:   sink,
		logger: logger,
	}
}

// Answer is one assist response.
type Answer struct {
	Text      string `json:"text"`
	LatencyMs int64  `json:"latency_ms"`
}

// Ask sends one question to the model and records the exchange. Analytics
// emission is best effort and never fails the call.
func (s *Service) Ask(ctx context.Context, userID, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is empty")
	}

	start := time.Now()
	text, err := s.llm.complete(ctx, question)
	latency := time.Since(start)

	if s.sink != nil {
		s.sink.AIQuery(userID, question, err == nil, latency)
	}
	if err != nil {
		s.logger.Warn("assist completion failed", zap.Error(err), zap.Duration("latency", latency))
		return nil, fmt.Errorf("assist: %w", err)
	}

	s.logger.Info("assist answered", zap.Duration("latency", latency), zap.Int("chars", len(text)))
	return &Answer{Text: text, LatencyMs: latency.Milliseconds()}, nil
}

type openaiCompleter struct {
	client *openai.Client
	model  string
}

func newOpenAICompleter(cfg config.Assist) *openaiCompleter {
	opts := []option.RequestOption{}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	cl := openai.NewClient(opts...)

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &openaiCompleter{client: &cl, model: model}
}

func (o *openaiCompleter) complete(ctx context.Context, question string) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(question),
		},
		Model: shared.ChatModel(o.model),
	})
	if err != nil {
		return "", fmt.Errorf("create completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
