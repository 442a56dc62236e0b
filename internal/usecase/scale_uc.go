// File: internal/usecase/scale_uc.go
package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Alterya/agents-sub000/internal/domain"
	"github.com/Alterya/agents-sub000/internal/domain/model"
	"github.com/Alterya/agents-sub000/internal/domain/ports/adapter"
	"github.com/Alterya/agents-sub000/internal/domain/ports/repository"
	"github.com/Alterya/agents-sub000/internal/infra/logging"
)

// Per-run token assumption used by the budget preflight. The input side is a
// floor: when the opening prompt counts larger than 150 tokens, the counted
// size is used instead.
const (
	preflightTokensIn  = 150
	preflightTokensOut = 300
)

// Transcript sampling bounds: first sampleHead system/user messages plus
// last sampleTail assistant messages per conversation.
const (
	sampleHead = 2
	sampleTail = 2
)

// ScaleInput describes one fan-out of identical battles.
type ScaleInput struct {
	RunID        string
	AgentID      string
	Provider     string
	Model        string
	SystemPrompt string
	Goal         string
	UserMessage  string
	MessageLimit int
	MaxTokens    int
	Temperature  float64
	Runs         int
	BudgetUSD    float64 // 0 disables the preflight
}

// Compile-time check
var _ ScaleUseCase = (*scaleUC)(nil)

// ScaleUseCase runs N independent battles concurrently, aggregates the
// outcomes and persists a summarized report. Preflight is exposed separately
// so submission surfaces can reject a bad batch synchronously before a job
// is created.
type ScaleUseCase interface {
	Preflight(ctx context.Context, input ScaleInput) error
	Run(ctx context.Context, input ScaleInput) (model.ScaleResult, error)
}

type scaleUC struct {
	battles       BattleUseCase
	conversations repository.ConversationRepository
	reports       repository.RunReportRepository
	pricing       PricingUseCase
	summarizer    Summarizer
	ai            adapter.ChatAdapter
	maxRuns       int
	log           *zerolog.Logger
}

func NewScaleUseCase(
	battles BattleUseCase,
	conversations repository.ConversationRepository,
	reports repository.RunReportRepository,
	pricing PricingUseCase,
	summarizer Summarizer,
	ai adapter.ChatAdapter,
	maxRuns int,
	log *zerolog.Logger,
) *scaleUC {
	return &scaleUC{
		battles:       battles,
		conversations: conversations,
		reports:       reports,
		pricing:       pricing,
		summarizer:    summarizer,
		ai:            ai,
		maxRuns:       maxRuns,
		log:           log,
	}
}

type runOutcome struct {
	index  int
	result model.BattleResult
	err    error
}

// Run fans out input.Runs battles, waits for all of them to settle and
// produces the aggregate. One battle failing never aborts its siblings;
// succeeded+failed always equals the run count.
func (s *scaleUC) Run(ctx context.Context, input ScaleInput) (model.ScaleResult, error) {
	if err := s.Preflight(ctx, input); err != nil {
		return model.ScaleResult{}, err
	}

	log := logging.With(logging.WithRunID(ctx, input.RunID), s.log)

	outcomes := make([]runOutcome, input.Runs)
	var wg sync.WaitGroup
	for i := 0; i < input.Runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := s.battles.Run(ctx, BattleInput{
				RunID:        fmt.Sprintf("%s-%d", input.RunID, i+1),
				AgentID:      input.AgentID,
				Provider:     input.Provider,
				Model:        input.Model,
				SystemPrompt: input.SystemPrompt,
				Goal:         input.Goal,
				UserMessage:  input.UserMessage,
				MessageLimit: input.MessageLimit,
				MaxTokens:    input.MaxTokens,
				Temperature:  input.Temperature,
			})
			outcomes[i] = runOutcome{index: i, result: res, err: err}
		}(i)
	}
	wg.Wait()

	var (
		conversationIDs []string
		failures        []model.RunFailure
	)
	for _, o := range outcomes {
		if o.err != nil {
			failures = append(failures, model.RunFailure{
				RunID: fmt.Sprintf("%s-%d", input.RunID, o.index+1),
				Error: o.err.Error(),
			})
			continue
		}
		if o.result.ConversationID != "" {
			conversationIDs = append(conversationIDs, o.result.ConversationID)
		}
	}
	succeeded := input.Runs - len(failures)

	samples := s.sample(ctx, conversationIDs, log)
	summary := s.summarize(ctx, input, samples, succeeded, len(failures), log)

	result := model.ScaleResult{
		RunID:           input.RunID,
		Total:           input.Runs,
		Succeeded:       succeeded,
		Failed:          len(failures),
		ConversationIDs: conversationIDs,
	}

	err := s.saveReport(ctx, input, failures, summary, model.RunStats{
		Succeeded:       succeeded,
		Failed:          len(failures),
		ConversationIDs: conversationIDs,
		Rationale:       summary.Rationale,
	})
	if err != nil {
		log.Error().Err(err).Msg("save run report failed")
		return result, fmt.Errorf("save run report: %w", err)
	}

	log.Info().
		Int("total", input.Runs).
		Int("succeeded", succeeded).
		Int("failed", len(failures)).
		Msg("scale test finished")
	return result, nil
}

// Preflight rejects the whole batch before any run starts: the run count
// must be within bounds and the per-run token assumption must fit the
// budget. The input side counts the opening prompt when a counter is
// available, falling back to the fixed floor.
func (s *scaleUC) Preflight(ctx context.Context, input ScaleInput) error {
	if input.Runs < 1 || input.Runs > s.maxRuns {
		return fmt.Errorf("%w: runs must be 1..%d, got %d", domain.ErrInvalidArgument, s.maxRuns, input.Runs)
	}
	if input.BudgetUSD <= 0 {
		return nil
	}
	usdIn, usdOut := s.pricing.EstimateCost(ctx, input.Provider, input.Model, &adapter.Usage{
		InputTokens:  s.estimateRunInputTokens(ctx, input) * input.Runs,
		OutputTokens: preflightTokensOut * input.Runs,
	})
	if est := usdIn + usdOut; est > input.BudgetUSD {
		return fmt.Errorf("%w: estimated $%.4f exceeds budget $%.4f", domain.ErrBudgetExceeded, est, input.BudgetUSD)
	}
	return nil
}

// estimateRunInputTokens counts the opening prompt every run replays. The
// counter is best-effort; the fixed floor keeps small prompts from
// underestimating the multi-turn exchange that follows.
func (s *scaleUC) estimateRunInputTokens(ctx context.Context, input ScaleInput) int {
	if s.ai == nil {
		return preflightTokensIn
	}
	var prompt []adapter.Message
	if input.SystemPrompt != "" {
		prompt = append(prompt, adapter.Message{Role: "system", Content: input.SystemPrompt})
	}
	if input.UserMessage != "" {
		prompt = append(prompt, adapter.Message{Role: "user", Content: input.UserMessage})
	}
	if len(prompt) == 0 {
		return preflightTokensIn
	}
	n, err := s.ai.CountTokens(ctx, input.Model, prompt)
	if err != nil || n < preflightTokensIn {
		return preflightTokensIn
	}
	return n
}

// sample reads back each successful conversation and builds a bounded
// head+tail transcript slice. Read failures drop that conversation from
// the sample set, nothing more.
func (s *scaleUC) sample(ctx context.Context, conversationIDs []string, log *zerolog.Logger) []SampledConversation {
	samples := make([]SampledConversation, 0, len(conversationIDs))
	for _, id := range conversationIDs {
		conv, err := s.conversations.Read(ctx, id)
		if err != nil {
			log.Warn().Err(err).Str("conversation_id", id).Msg("sample read failed")
			continue
		}
		samples = append(samples, SampledConversation{
			ID:          conv.ID,
			Model:       conv.Model,
			Goal:        conv.Goal,
			GoalReached: conv.GoalReached,
			EndedReason: conv.EndedReason,
			Messages:    sampleTranscript(conv.Messages),
		})
	}
	return samples
}

// sampleTranscript keeps the first sampleHead system/user messages and the
// last sampleTail assistant messages, preserving order.
func sampleTranscript(msgs []model.Message) []adapter.Message {
	var head []adapter.Message
	for _, m := range msgs {
		if m.Role != "system" && m.Role != "user" {
			continue
		}
		head = append(head, adapter.Message{Role: m.Role, Content: m.Content})
		if len(head) == sampleHead {
			break
		}
	}
	var tail []adapter.Message
	for i := len(msgs) - 1; i >= 0 && len(tail) < sampleTail; i-- {
		if msgs[i].Role != "assistant" {
			continue
		}
		tail = append([]adapter.Message{{Role: "assistant", Content: msgs[i].Content}}, tail...)
	}
	return append(head, tail...)
}

// summarize is best-effort: a failed summarizer call leaves the narrative
// fields empty and never fails the scale test.
func (s *scaleUC) summarize(ctx context.Context, input ScaleInput, samples []SampledConversation, succeeded, failed int, log *zerolog.Logger) SummaryResult {
	if s.summarizer == nil {
		return SummaryResult{}
	}
	runs := RunsLite{Conversations: samples}
	runs.Stats.Succeeded = succeeded
	runs.Stats.Failed = failed
	summary, err := s.summarizer.Summarize(ctx, runs, input.Provider, input.Model)
	if err != nil {
		log.Warn().Err(err).Msg("summarizer failed, report ships without narrative")
		return SummaryResult{}
	}
	return summary
}

func (s *scaleUC) saveReport(ctx context.Context, input ScaleInput, failures []model.RunFailure, summary SummaryResult, stats model.RunStats) error {
	if s.reports == nil {
		return nil
	}
	now := time.Now()
	report := &model.RunReport{
		RunID:         input.RunID,
		AgentID:       input.AgentID,
		Model:         input.Model,
		SystemPrompt:  input.SystemPrompt,
		RunCount:      input.Runs,
		Failures:      failures,
		Summary:       summary.Summary,
		RevisedPrompt: summary.RevisedPrompt,
		Stats:         stats,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return s.reports.Save(context.WithoutCancel(ctx), report)
}
