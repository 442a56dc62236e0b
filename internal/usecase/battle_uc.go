// File: internal/usecase/battle_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Alterya/agents-sub000/internal/domain/model"
	"github.com/Alterya/agents-sub000/internal/domain/ports/adapter"
	"github.com/Alterya/agents-sub000/internal/domain/ports/repository"
	"github.com/Alterya/agents-sub000/internal/infra/logging"
	"github.com/Alterya/agents-sub000/internal/infra/metrics"
)

const defaultMessageLimit = 25

// BattleInput describes one bounded multi-turn conversation run.
type BattleInput struct {
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
}

// Compile-time check
var _ BattleUseCase = (*battleUC)(nil)

// BattleUseCase drives one conversation against a model until a goal match,
// a limit, an error or cancellation ends it.
type BattleUseCase interface {
	Run(ctx context.Context, input BattleInput) (model.BattleResult, error)
}

type battleUC struct {
	ai            adapter.ChatAdapter
	conversations repository.ConversationRepository
	pricing       PricingUseCase
	maxUSDPerConv float64 // 0 disables the cap
	log           *zerolog.Logger
}

func NewBattleUseCase(
	ai adapter.ChatAdapter,
	conversations repository.ConversationRepository,
	pricing PricingUseCase,
	maxUSDPerConv float64,
	log *zerolog.Logger,
) *battleUC {
	return &battleUC{
		ai:            ai,
		conversations: conversations,
		pricing:       pricing,
		maxUSDPerConv: maxUSDPerConv,
		log:           log,
	}
}

// Run executes the bounded conversation loop. Each iteration is one
// request/response turn against the provider; the loop stops the moment any
// exit condition fires. Conversation-store writes are best-effort: the run's
// contract is the conversational outcome, not the write path.
func (b *battleUC) Run(ctx context.Context, input BattleInput) (model.BattleResult, error) {
	limit := input.MessageLimit
	if limit <= 0 {
		limit = defaultMessageLimit
	}

	conversationID := b.createConversation(ctx, input, limit)
	log := logging.With(logging.WithConversationID(ctx, conversationID), b.log)

	messages := make([]adapter.Message, 0, 8)
	if input.SystemPrompt != "" {
		messages = append(messages, adapter.Message{Role: "system", Content: input.SystemPrompt})
	}
	if input.UserMessage != "" {
		b.appendMessage(ctx, conversationID, model.Message{
			ConversationID: conversationID,
			Role:           "user",
			Content:        input.UserMessage,
		})
		messages = append(messages, adapter.Message{Role: "user", Content: input.UserMessage})
	}

	var (
		acc         model.RunCost
		goalReached bool
		endedReason = model.EndedReasonLimit
		runErr      error
	)

	for {
		if ctx.Err() != nil {
			endedReason = cancelReason(ctx)
			break
		}
		if len(messages) >= limit {
			endedReason = model.EndedReasonLimit
			break
		}

		res, err := b.ai.Chat(ctx, messages, adapter.ChatOptions{
			Provider:    input.Provider,
			Model:       input.Model,
			MaxTokens:   input.MaxTokens,
			Temperature: input.Temperature,
		})
		if err != nil {
			// A cancellation racing the provider call is a timeout/manual
			// stop, not a provider failure.
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				endedReason = cancelReason(ctx)
				break
			}
			endedReason = model.EndedReasonError
			runErr = fmt.Errorf("provider call: %w", err)
			break
		}

		usdIn, usdOut := b.pricing.EstimateCost(ctx, input.Provider, input.Model, res.Usage)
		metrics.AddChatCost(input.Provider, input.Model, usdIn+usdOut)
		acc.USDIn += usdIn
		acc.USDOut += usdOut
		if res.Usage != nil {
			acc.InputTokens += res.Usage.InputTokens
			acc.OutputTokens += res.Usage.OutputTokens
		}

		msg := model.Message{
			ConversationID: conversationID,
			Role:           "assistant",
			Content:        res.Text,
			CostUSD:        usdIn + usdOut,
		}
		if res.Usage != nil {
			msg.TokensIn = res.Usage.InputTokens
			msg.TokensOut = res.Usage.OutputTokens
		}
		b.appendMessage(ctx, conversationID, msg)
		messages = append(messages, adapter.Message{Role: "assistant", Content: res.Text})

		if input.Goal != "" && strings.Contains(strings.ToLower(res.Text), strings.ToLower(input.Goal)) {
			goalReached = true
			endedReason = model.EndedReasonGoal
			break
		}
		// Stop after a single turn when no user message seeds the exchange
		// (avoids an unbounded single-sided loop).
		if input.UserMessage == "" {
			endedReason = model.EndedReasonLimit
			break
		}
		if b.maxUSDPerConv > 0 && acc.TotalUSD() >= b.maxUSDPerConv {
			endedReason = model.EndedReasonLimit
			break
		}
		if ctx.Err() != nil {
			endedReason = cancelReason(ctx)
			break
		}
	}

	if conversationID != "" {
		if err := b.conversations.Complete(context.WithoutCancel(ctx), conversationID, endedReason, goalReached); err != nil {
			log.Warn().Err(err).Msg("complete conversation failed")
		}
	}
	metrics.IncBattleEnded(string(endedReason))
	log.Info().
		Str("ended_reason", string(endedReason)).
		Bool("goal_reached", goalReached).
		Float64("usd_total", acc.TotalUSD()).
		Int("tokens_in", acc.InputTokens).
		Int("tokens_out", acc.OutputTokens).
		Msg("battle finished")

	messageCount := len(messages)
	if input.SystemPrompt != "" {
		messageCount--
	}
	return model.BattleResult{
		ConversationID: conversationID,
		GoalReached:    goalReached,
		EndedReason:    endedReason,
		MessageCount:   messageCount,
	}, runErr
}

func (b *battleUC) createConversation(ctx context.Context, input BattleInput, limit int) string {
	c := model.NewConversation(uuid.NewString(), input.AgentID, input.RunID, input.Provider, input.Model, input.SystemPrompt, input.Goal, limit)
	if err := b.conversations.Create(ctx, c); err != nil {
		b.log.Warn().Err(err).Str("agent_id", input.AgentID).Msg("create conversation failed")
		return ""
	}
	return c.ID
}

func (b *battleUC) appendMessage(ctx context.Context, conversationID string, m model.Message) {
	if conversationID == "" {
		return
	}
	if err := b.conversations.AppendMessage(ctx, &m); err != nil {
		b.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("append message failed")
	}
}

// cancelReason maps the cancellation cause to a termination reason: an
// elapsed deadline is a timeout, everything else is a manual stop.
func cancelReason(ctx context.Context) model.EndedReason {
	if errors.Is(context.Cause(ctx), context.DeadlineExceeded) {
		return model.EndedReasonTimeout
	}
	return model.EndedReasonManual
}
