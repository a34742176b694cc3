package service

import (
	"context"
	"errors"
	"fmt"
	"reviewlens/internal/config"
	"reviewlens/internal/dialogue"
	"reviewlens/internal/logger"
	"reviewlens/internal/observability"
	"strings"

	"google.golang.org/genai"
)

var ErrAIDisabled = errors.New("ai summary is not configured")

// SummaryService writes the final recommendation with Gemini
type SummaryService struct {
	config   config.AIConfig
	client   *genai.Client
	log      *logger.Logger
	generate func(ctx context.Context, prompt string) (string, error)
}

// NewSummaryService creates a new summary service. Without an API key it
// is created disabled and every call returns ErrAIDisabled.
func NewSummaryService(ctx context.Context, cfg config.AIConfig, log *logger.Logger) (*SummaryService, error) {
	s := &SummaryService{config: cfg, log: logger.OrNop(log)}
	if !cfg.IsEnabled() {
		return s, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	s.client = client
	s.generate = s.callGemini
	return s, nil
}

// IsEnabled returns true if summaries go to Gemini
func (s *SummaryService) IsEnabled() bool {
	return s.generate != nil
}

// Summarize implements dialogue.Summarizer
func (s *SummaryService) Summarize(ctx context.Context, req dialogue.SummaryRequest) (string, error) {
	if !s.IsEnabled() {
		return "", ErrAIDisabled
	}
	ctx, span := observability.StartSpan(ctx, "summary.generate", "category", req.Category, "model", s.config.Model)
	defer span.End()

	text, err := s.generate(ctx, buildSummaryPrompt(req))
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return replaceFactorKeys(strings.TrimSpace(text), req), nil
}

func (s *SummaryService) callGemini(ctx context.Context, prompt string) (string, error) {
	resp, err := s.client.Models.GenerateContent(ctx, s.config.Model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		&genai.GenerateContentConfig{
			Temperature: genai.Ptr[float32](s.config.Temperature),
		},
	)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return resp.Text(), nil
}

func buildSummaryPrompt(req dialogue.SummaryRequest) string {
	var b strings.Builder
	b.WriteString("# Task\n")
	fmt.Fprintf(&b, "A shopper is considering %s (%s). Based on the conversation and the review evidence, ", req.ProductLabel, req.CategoryLabel)
	b.WriteString("explain in 3 to 5 sentences which regrets are most likely for them and what to check before buying.\n\n")

	b.WriteString("# Top regret factors\n")
	for i, f := range req.TopFactors {
		fmt.Fprintf(&b, "%d. %s (score %.2f)\n", i+1, f.DisplayName, f.Score)
	}

	b.WriteString("\n# Review evidence\n")
	if len(req.Evidence) == 0 {
		b.WriteString("(no matching reviews)\n")
	}
	for _, e := range req.Evidence {
		fmt.Fprintf(&b, "- [%s, %d stars, %s] %s\n", e.Label, e.Rating, e.FactorKey, e.Excerpt)
	}

	fmt.Fprintf(&b, "\n# Conversation (%d turns)\n", req.TurnCount)
	for _, t := range req.History {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Message)
	}

	b.WriteString("\n# Safety rules\n")
	for _, r := range req.SafetyRules {
		fmt.Fprintf(&b, "- %s\n", r)
	}
	return b.String()
}

// replaceFactorKeys swaps raw factor keys the model echoed back for their
// display names
func replaceFactorKeys(text string, req dialogue.SummaryRequest) string {
	pairs := make([]string, 0, 2*len(req.TopFactors))
	for _, f := range req.TopFactors {
		if f.DisplayName != "" && f.DisplayName != f.FactorKey && strings.Contains(f.FactorKey, "_") {
			pairs = append(pairs, f.FactorKey, f.DisplayName)
		}
	}
	if len(pairs) == 0 {
		return text
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
