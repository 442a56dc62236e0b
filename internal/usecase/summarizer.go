// File: internal/usecase/summarizer.go
package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Alterya/agents-sub000/internal/domain/model"
	"github.com/Alterya/agents-sub000/internal/domain/ports/adapter"
)

// SampledConversation is one bounded head+tail transcript slice handed to
// the summarizer.
type SampledConversation struct {
	ID          string            `json:"id"`
	Model       string            `json:"model"`
	Goal        string            `json:"goal,omitempty"`
	GoalReached bool              `json:"goalReached"`
	EndedReason model.EndedReason `json:"endedReason,omitempty"`
	Messages    []adapter.Message `json:"messages"`
}

// RunsLite is the cost-bounded summarization payload.
type RunsLite struct {
	Conversations []SampledConversation `json:"conversations"`
	Stats         struct {
		Succeeded int `json:"succeeded"`
		Failed    int `json:"failed"`
	} `json:"stats"`
}

type SummaryResult struct {
	Summary       string `json:"summary"`
	RevisedPrompt string `json:"revisedPrompt"`
	Rationale     string `json:"rationale"`
}

// Compile-time check
var _ Summarizer = (*summarizerUC)(nil)

// Summarizer turns a batch of sampled runs into a human-readable report.
type Summarizer interface {
	Summarize(ctx context.Context, input RunsLite, provider, modelName string) (SummaryResult, error)
}

const summarizerSystemPrompt = `You are PromptBro Analyst. Given multiple conversations with outcomes and failure cases, produce STRICT JSON with keys: summary (string), revisedPrompt (string), rationale (string).

Hard constraints:
- rationale must be concise (<=100 words)
- no hidden reasoning or chain-of-thought; only the three fields above
- if any required fact is missing, set the field value to "information unavailable"`

const unavailable = "information unavailable"

var rationaleMarkers = []string{
	"chain-of-thought",
	"reasoning steps:",
	"step-by-step",
	"let's think",
	"therefore",
	"because",
}

type summarizerUC struct {
	ai           adapter.ChatAdapter
	defaultModel string // overrides the caller's model when set
	log          *zerolog.Logger
}

func NewSummarizer(ai adapter.ChatAdapter, defaultModel string, log *zerolog.Logger) *summarizerUC {
	return &summarizerUC{ai: ai, defaultModel: defaultModel, log: log}
}

func (s *summarizerUC) Summarize(ctx context.Context, input RunsLite, provider, modelName string) (SummaryResult, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return SummaryResult{}, fmt.Errorf("marshal runs: %w", err)
	}
	if s.defaultModel != "" {
		modelName = s.defaultModel
	}

	res, err := s.ai.Chat(ctx, []adapter.Message{
		{Role: "system", Content: summarizerSystemPrompt},
		{Role: "user", Content: string(payload)},
	}, adapter.ChatOptions{
		Provider:    provider,
		Model:       modelName,
		MaxTokens:   512,
		Temperature: 0.2,
	})
	if err != nil {
		return SummaryResult{}, fmt.Errorf("summarizer call: %w", err)
	}

	var parsed SummaryResult
	if err := json.Unmarshal([]byte(res.Text), &parsed); err != nil {
		s.log.Debug().Err(err).Msg("summarizer reply was not strict JSON")
		parsed = SummaryResult{}
	}
	return normalizeSummary(parsed), nil
}

// normalizeSummary enforces the output policy: non-empty fields, a 100-word
// rationale, and no chain-of-thought style disclosures.
func normalizeSummary(r SummaryResult) SummaryResult {
	if strings.TrimSpace(r.Summary) == "" {
		r.Summary = unavailable
	}
	if strings.TrimSpace(r.RevisedPrompt) == "" {
		r.RevisedPrompt = unavailable
	}
	rationale := strings.TrimSpace(r.Rationale)
	if rationale == "" {
		rationale = unavailable
	}
	if rationale != unavailable {
		words := strings.Fields(rationale)
		if len(words) > 100 {
			rationale = strings.Join(words[:100], " ") + " …"
		}
		lower := strings.ToLower(rationale)
		for _, marker := range rationaleMarkers {
			if strings.Contains(lower, marker) {
				rationale = unavailable
				break
			}
		}
	}
	r.Rationale = rationale
	return r
}
