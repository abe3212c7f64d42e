// Package service implements the application services behind the HTTP API:
// question answering over ingested documents, and document lifecycle.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/askbase/askbase/internal/embedder"
	"github.com/askbase/askbase/internal/llm"
	"github.com/askbase/askbase/internal/memory"
	"github.com/askbase/askbase/internal/retrieval"
)

// ErrInvalidRequest is returned when a request fails validation.
var ErrInvalidRequest = errors.New("invalid request")

const (
	// DefaultTopK is the number of sources returned when the caller does
	// not ask for a specific count.
	DefaultTopK = 5
	// MaxTopK bounds the caller-supplied source count.
	MaxTopK = 20

	// RefusalAnswer is returned when no evidence supports an answer.
	RefusalAnswer = "I don't know based on the provided document(s)."

	systemPrompt = "You are a helpful assistant. Answer using ONLY the provided context. " +
		"If the context is insufficient, say you don't know."
)

// QueryRequest is a question over the ingested corpus.
type QueryRequest struct {
	Question   string `json:"question"`
	TopK       int    `json:"top_k,omitempty"`
	ModelName  string `json:"model_name,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
}

// QueryResponse is the generated answer with its supporting sources.
// ContextUsed is the size in characters of the context given to the model.
type QueryResponse struct {
	Answer      string               `json:"answer"`
	Sources     []retrieval.Citation `json:"sources"`
	ContextUsed int                  `json:"context_used"`
	ModelUsed   string               `json:"model_used"`
}

// QueryService answers questions by retrieving evidence and grounding an
// LLM response in it.
type QueryService struct {
	engine          *retrieval.Engine
	embedder        embedder.Embedder
	llmClient       llm.LLM
	memory          *memory.Store
	defaultModel    string
	contextMaxChars int
	logger          *slog.Logger
}

// QueryServiceOption configures a QueryService.
type QueryServiceOption func(*QueryService)

// WithMemory enables multi-turn conversation history keyed by session id.
func WithMemory(store *memory.Store) QueryServiceOption {
	return func(s *QueryService) {
		s.memory = store
	}
}

// WithContextBudget overrides the context size limit in characters.
func WithContextBudget(maxChars int) QueryServiceOption {
	return func(s *QueryService) {
		if maxChars > 0 {
			s.contextMaxChars = maxChars
		}
	}
}

// WithQueryLogger sets a custom logger. Default is slog.Default().
func WithQueryLogger(logger *slog.Logger) QueryServiceOption {
	return func(s *QueryService) {
		s.logger = logger
	}
}

// NewQueryService creates a QueryService.
func NewQueryService(
	engine *retrieval.Engine,
	emb embedder.Embedder,
	llmClient llm.LLM,
	defaultModel string,
	opts ...QueryServiceOption,
) *QueryService {
	s := &QueryService{
		engine:          engine,
		embedder:        emb,
		llmClient:       llmClient,
		defaultModel:    defaultModel,
		contextMaxChars: retrieval.DefaultContextBudget,
		logger:          slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Query retrieves evidence for the question, builds a bounded context, and
// generates a grounded answer. When nothing relevant is found the refusal
// answer is returned without calling the model.
func (s *QueryService) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	start := time.Now()

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", ErrInvalidRequest)
	}

	topK := req.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		return nil, fmt.Errorf("%w: top_k must be between 1 and %d", ErrInvalidRequest, MaxTopK)
	}

	model := req.ModelName
	if model == "" {
		model = s.defaultModel
	}

	queryVector, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}

	evidence, err := s.engine.Retrieve(ctx, question, queryVector, topK, req.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("retrieving evidence: %w", err)
	}

	if len(evidence.Chunks) == 0 {
		return &QueryResponse{
			Answer:    RefusalAnswer,
			Sources:   []retrieval.Citation{},
			ModelUsed: model,
		}, nil
	}

	contextText := retrieval.BuildContext(evidence.Chunks, s.contextMaxChars)
	if contextText == "" {
		return &QueryResponse{
			Answer:    RefusalAnswer,
			Sources:   []retrieval.Citation{},
			ModelUsed: model,
		}, nil
	}

	var history []memory.Message
	if s.memory != nil && req.SessionID != "" {
		history = s.memory.RecentHistory(req.SessionID, 10)
		s.memory.AddUserMessage(req.SessionID, question)
	}

	prompt := buildPrompt(contextText, question, history)

	answer, err := s.llmClient.Generate(ctx, prompt, llm.GenerateOptions{
		Model:        model,
		SystemPrompt: systemPrompt,
		Temperature:  0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	if s.memory != nil && req.SessionID != "" {
		s.memory.AddAssistantMessage(req.SessionID, answer)
	}

	sources := retrieval.RankSources(evidence.Chunks, topK)

	s.logger.Info("query answered",
		"lexical_hits", evidence.Counters.LexicalHits,
		"centers", evidence.Counters.CentersSelected,
		"evidence_chunks", evidence.Counters.EvidenceChunks,
		"context_chars", len(contextText),
		"sources", len(sources),
		"model", model,
		"duration_ms", time.Since(start).Milliseconds())

	return &QueryResponse{
		Answer:      answer,
		Sources:     sources,
		ContextUsed: len(contextText),
		ModelUsed:   model,
	}, nil
}

// buildPrompt assembles the user prompt from context, history, and question.
func buildPrompt(contextText, question string, history []memory.Message) string {
	var sb strings.Builder

	if len(history) > 0 {
		sb.WriteString("CONVERSATION HISTORY:\n")
		sb.WriteString(memory.FormatForPrompt(history))
		sb.WriteString("\n")
	}

	sb.WriteString("CONTEXT:\n")
	sb.WriteString(contextText)
	sb.WriteString("\n\nQUESTION:\n")
	sb.WriteString(question)
	sb.WriteString("\n\nINSTRUCTIONS:\n")
	sb.WriteString("- Use the context only\n")
	sb.WriteString("- Be concise\n")
	sb.WriteString("- If not found in context, say: \"" + RefusalAnswer + "\"\n")

	return sb.String()
}
