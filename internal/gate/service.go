// Package gate admits or refuses AI reply requests against the caller's
// entitlement and records consumed requests in the usage ledger.
package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forsocials/replyriser-backend/internal/entitlement"
	"github.com/forsocials/replyriser-backend/internal/usage"
	"github.com/forsocials/replyriser-backend/pkg/clock"
	"github.com/forsocials/replyriser-backend/pkg/db/models"
	"github.com/forsocials/replyriser-backend/pkg/enums"
	pkgerrors "github.com/forsocials/replyriser-backend/pkg/errors"
	"github.com/forsocials/replyriser-backend/pkg/logger"
	"github.com/forsocials/replyriser-backend/pkg/metrics"
	"github.com/forsocials/replyriser-backend/pkg/openai"
)

const (
	msgTrialExpired   = "Free trial expired. Please upgrade."
	msgLimitReached   = "AI request limit reached for your plan. Please upgrade."
	msgPeriodExpired  = "Subscription period expired. Please renew."
	msgLockBusy       = "Another reply request for this account is still in progress."
	recentUsageLimit  = 10
	lockKeyPrefix     = "quota:"
	outcomeAllowed    = "allowed"
	resultSuccess     = "success"
	resultDenied      = "denied"
	resultProviderErr = "provider_error"
	resultLedgerErr   = "ledger_error"
)

// ReplyInput is one AI reply request from an authenticated user.
type ReplyInput struct {
	UserID   uuid.UUID
	Blocks   []openai.Block
	Platform string
}

// ReplyResult carries the provider's completion JSON unchanged.
type ReplyResult struct {
	Raw        json.RawMessage
	ProviderID string
	Attempts   int
	Decision   entitlement.Decision
}

// UsageItem is one ledger entry as shown on the status view.
type UsageItem struct {
	Platform  string    `json:"platform"`
	CreatedAt time.Time `json:"createdAt"`
}

// AccountStatus is the read-only quota view for the account-status endpoint.
type AccountStatus struct {
	SubscriptionPlan  enums.Plan         `json:"subscriptionPlan"`
	TrialStart        *time.Time         `json:"trialStart"`
	SubscriptionStart *time.Time         `json:"subscriptionStart,omitempty"`
	SubscriptionEnd   *time.Time         `json:"subscriptionEnd,omitempty"`
	UsedInWindow      int64              `json:"ai_requests_used_in_window"`
	Remaining         int64              `json:"remaining_requests"`
	Limit             int64              `json:"limit"`
	TimeLeft          string             `json:"time_left"`
	TimeLeftClock     string             `json:"time_left_clock"`
	Allowed           bool               `json:"allowed"`
	DenialReason      enums.DenialReason `json:"denial_reason,omitempty"`
	RecentUsage       []UsageItem        `json:"recent_usage"`
}

// Service is the request gate used by the ai-reply and account-status handlers.
type Service interface {
	Reply(ctx context.Context, in ReplyInput) (*ReplyResult, error)
	Status(ctx context.Context, userID uuid.UUID) (*AccountStatus, error)
}

type accountStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	ClaimTrialStart(ctx context.Context, id uuid.UUID, at time.Time) (*models.Account, error)
}

type usageLedger interface {
	CountSince(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error)
	Append(ctx context.Context, userID uuid.UUID, platform string, at time.Time) (*models.UsageEntry, error)
	ListSince(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]models.UsageEntry, error)
}

type replyProvider interface {
	Complete(ctx context.Context, req openai.CompletionRequest) (*openai.Completion, error)
}

type service struct {
	accounts accountStore
	ledger   usageLedger
	provider replyProvider
	locker   Locker
	clock    clock.Clock
	metrics  *metrics.GateMetrics
	logg     *logger.Logger
}

// ServiceParams bundles the gate dependencies. A nil Locker selects
// approximate enforcement: concurrent requests may overshoot the limit.
type ServiceParams struct {
	Accounts accountStore
	Ledger   usageLedger
	Provider replyProvider
	Locker   Locker
	Clock    clock.Clock
	Metrics  *metrics.GateMetrics
	Logger   *logger.Logger
}

// NewService constructs the request gate.
func NewService(params ServiceParams) (Service, error) {
	if params.Accounts == nil {
		return nil, fmt.Errorf("account store is required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("usage ledger is required")
	}
	if params.Provider == nil {
		return nil, fmt.Errorf("ai provider is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	clk := params.Clock
	if clk == nil {
		clk = clock.System()
	}
	return &service{
		accounts: params.Accounts,
		ledger:   params.Ledger,
		provider: params.Provider,
		locker:   params.Locker,
		clock:    clk,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

func (s *service) Reply(ctx context.Context, in ReplyInput) (*ReplyResult, error) {
	started := time.Now()
	if err := validateBlocks(in.Blocks); err != nil {
		return nil, err
	}
	platform := usage.NormalizePlatform(in.Platform)
	ctx = s.logg.WithFields(ctx, map[string]any{
		"user_id":  in.UserID.String(),
		"platform": platform,
	})

	account, err := s.loadAccount(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	if s.locker != nil {
		waitStart := time.Now()
		release, err := s.locker.Lock(ctx, lockKeyPrefix+in.UserID.String())
		s.metrics.ObserveLockWait(time.Since(waitStart))
		if err != nil {
			if errors.Is(err, ErrLockTimeout) {
				return nil, pkgerrors.New(pkgerrors.CodeRateLimit, msgLockBusy)
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire quota lock")
		}
		defer release()
	}

	now := s.clock.Now()
	account, err = s.ensureTrialStarted(ctx, account, now)
	if err != nil {
		return nil, err
	}
	used, err := s.usedInWindow(ctx, account, now)
	if err != nil {
		return nil, err
	}

	decision := entitlement.Evaluate(*account, used, now)
	if !decision.Allowed {
		s.metrics.IncDecision(string(decision.Plan), decision.Reason.String())
		s.metrics.ObserveDuration(resultDenied, time.Since(started))
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"plan":   string(decision.Plan),
			"reason": decision.Reason.String(),
			"used":   decision.Used,
			"limit":  decision.Limit,
		})
		s.logg.Info(logCtx, "ai.reply.denied")
		return nil, denialError(account, decision)
	}
	s.metrics.IncDecision(string(decision.Plan), outcomeAllowed)
	s.logg.Debug(s.logg.WithField(ctx, "remaining", decision.Remaining), "ai.reply.allowed")

	// Once admitted, the provider call and ledger write finish even if the
	// caller disconnects; otherwise a completed call could go unrecorded.
	workCtx := context.WithoutCancel(ctx)

	completion, err := s.provider.Complete(workCtx, openai.CompletionRequest{
		Blocks: in.Blocks,
		User:   in.UserID.String(),
	})
	if err != nil {
		s.metrics.ObserveDuration(resultProviderErr, time.Since(started))
		s.logg.Error(ctx, "ai.reply.provider_failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "ai provider request failed")
	}

	if _, err := s.ledger.Append(workCtx, in.UserID, platform, s.clock.Now()); err != nil {
		s.metrics.ObserveDuration(resultLedgerErr, time.Since(started))
		s.logg.Error(ctx, "ai.reply.ledger_append_failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record usage")
	}

	s.metrics.ObserveDuration(resultSuccess, time.Since(started))
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"provider_request_id": completion.ID,
		"model":               completion.Model,
		"attempts":            completion.Attempts,
	})
	s.logg.Info(logCtx, "ai.reply.completed")

	return &ReplyResult{
		Raw:        completion.Raw,
		ProviderID: completion.ID,
		Attempts:   completion.Attempts,
		Decision:   decision,
	}, nil
}

func (s *service) Status(ctx context.Context, userID uuid.UUID) (*AccountStatus, error) {
	account, err := s.loadAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	used, err := s.usedInWindow(ctx, account, now)
	if err != nil {
		return nil, err
	}
	decision := entitlement.Evaluate(*account, used, now)

	status := &AccountStatus{
		SubscriptionPlan:  account.SubscriptionPlan,
		TrialStart:        account.TrialStart,
		SubscriptionStart: account.SubscriptionStart,
		SubscriptionEnd:   account.SubscriptionEnd,
		UsedInWindow:      used,
		Remaining:         decision.Remaining,
		Limit:             decision.Limit,
		TimeLeft:          decision.TimeLeft.String(),
		TimeLeftClock:     decision.TimeLeft.Clock(),
		Allowed:           decision.Allowed,
		DenialReason:      decision.Reason,
		RecentUsage:       []UsageItem{},
	}

	if since, started := entitlement.WindowStart(*account, now); started {
		entries, err := s.ledger.ListSince(ctx, userID, since, recentUsageLimit)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list usage")
		}
		for _, e := range entries {
			status.RecentUsage = append(status.RecentUsage, UsageItem{Platform: e.Platform, CreatedAt: e.CreatedAt})
		}
	}
	return status, nil
}

func (s *service) loadAccount(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id missing")
	}
	account, err := s.accounts.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "account not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load account")
	}
	return account, nil
}

// ensureTrialStarted claims the trial for a free account on its first request.
func (s *service) ensureTrialStarted(ctx context.Context, account *models.Account, now time.Time) (*models.Account, error) {
	if account.SubscriptionPlan.IsPaid() || account.TrialStart != nil {
		return account, nil
	}
	claimed, err := s.accounts.ClaimTrialStart(ctx, account.ID, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "start trial")
	}
	s.logg.Info(s.logg.WithField(ctx, "trial_start", claimed.TrialStart), "ai.reply.trial_started")
	return claimed, nil
}

func (s *service) usedInWindow(ctx context.Context, account *models.Account, now time.Time) (int64, error) {
	since, started := entitlement.WindowStart(*account, now)
	if !started {
		return 0, nil
	}
	count, err := s.ledger.CountSince(ctx, account.ID, since)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count usage")
	}
	return count, nil
}

func validateBlocks(blocks []openai.Block) error {
	if len(blocks) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "blocks are required")
	}
	for i, b := range blocks {
		if err := b.Validate(); err != nil {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("blocks[%d]: %s", i, err.Error()))
		}
	}
	return nil
}

func denialError(account *models.Account, d entitlement.Decision) error {
	msg := msgLimitReached
	if d.Reason == enums.DenialReasonTrialExpired {
		msg = msgTrialExpired
		if account.SubscriptionPlan.IsPaid() {
			msg = msgPeriodExpired
		}
	}
	return pkgerrors.New(pkgerrors.CodeEntitlementDenied, msg).WithDetails(map[string]any{
		"reason":             d.Reason.String(),
		"plan":               string(d.Plan),
		"remaining_requests": d.Remaining,
		"time_left":          d.TimeLeft.String(),
	})
}
