// Package stripewebhook applies Stripe billing events to account plans.
package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/forsocials/replyriser-backend/internal/accounts"
	"github.com/forsocials/replyriser-backend/pkg/clock"
	"github.com/forsocials/replyriser-backend/pkg/enums"
	pkgerrors "github.com/forsocials/replyriser-backend/pkg/errors"
	"github.com/forsocials/replyriser-backend/pkg/logger"
)

var userIDMetadataKeys = []string{"userId", "user_id"}

type planRepository interface {
	ApplyPlan(ctx context.Context, id uuid.UUID, change accounts.PlanChange, at time.Time) error
	RenewPeriod(ctx context.Context, id uuid.UUID, start, end time.Time, at time.Time) error
}

type ServiceParams struct {
	Accounts planRepository
	Clock    clock.Clock
	Logger   *logger.Logger
}

type Service struct {
	accounts planRepository
	clock    clock.Clock
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Accounts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "account repo required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	clk := params.Clock
	if clk == nil {
		clk = clock.System()
	}
	return &Service{accounts: params.Accounts, clock: clk, logg: params.Logger}, nil
}

// HandleEvent applies a verified Stripe event. Event types that do not
// affect plans are acknowledged and ignored.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"stripe_event_id":   event.ID,
		"stripe_event_type": string(event.Type),
	})

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
		}
		return s.applyCheckout(ctx, &session)
	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription")
		}
		return s.cancelSubscription(ctx, &sub)
	case stripe.EventTypeInvoicePaid:
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode invoice")
		}
		return s.renewFromInvoice(ctx, &invoice)
	default:
		return nil
	}
}

func (s *Service) applyCheckout(ctx context.Context, session *stripe.CheckoutSession) error {
	if session.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		s.logg.Info(ctx, "stripe.checkout.unpaid_ignored")
		return nil
	}

	userID, err := userIDFromMetadata(session.Metadata, session.ClientReferenceID)
	if err != nil {
		return err
	}
	plan, err := enums.ParsePlan(session.Metadata["plan"])
	if err != nil || !plan.IsPaid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid plan %q in checkout metadata", session.Metadata["plan"]))
	}

	now := s.clock.Now()
	change := accounts.PlanChange{Plan: plan, Start: &now}
	if plan != enums.PlanLifetime {
		end := now.AddDate(0, 1, 0)
		change.End = &end
	}
	if err := s.apply(ctx, userID, change, now); err != nil {
		return err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{"user_id": userID.String(), "plan": string(plan)})
	s.logg.Info(logCtx, "stripe.checkout.plan_applied")
	return nil
}

func (s *Service) cancelSubscription(ctx context.Context, sub *stripe.Subscription) error {
	userID, err := userIDFromMetadata(sub.Metadata, "")
	if err != nil {
		// Subscriptions created outside our checkout carry no account link.
		s.logg.Warn(s.logg.WithField(ctx, "stripe_subscription_id", sub.ID), "stripe.subscription.unlinked")
		return nil
	}
	now := s.clock.Now()
	if err := s.apply(ctx, userID, accounts.PlanChange{Plan: enums.PlanFree}, now); err != nil {
		return err
	}
	s.logg.Info(s.logg.WithField(ctx, "user_id", userID.String()), "stripe.subscription.downgraded")
	return nil
}

// renewFromInvoice moves the subscription window to the period a recurring
// invoice paid for. The first invoice of a subscription is covered by the
// checkout session and skipped.
func (s *Service) renewFromInvoice(ctx context.Context, invoice *stripe.Invoice) error {
	ctx = s.logg.WithField(ctx, "stripe_invoice_id", invoice.ID)
	if invoice.BillingReason == stripe.InvoiceBillingReasonSubscriptionCreate {
		s.logg.Info(ctx, "stripe.invoice.initial_skipped")
		return nil
	}

	metadata := invoiceMetadata(invoice)
	userID, err := userIDFromMetadata(metadata, "")
	if err != nil {
		s.logg.Warn(ctx, "stripe.invoice.unlinked")
		return nil
	}

	now := s.clock.Now()
	start, end := invoicePeriod(invoice, now)
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"user_id":      userID.String(),
		"period_start": start,
		"period_end":   end,
	})

	if plan, parseErr := enums.ParsePlan(metadata["plan"]); parseErr == nil && plan.IsPaid() && plan != enums.PlanLifetime {
		if err := s.apply(ctx, userID, accounts.PlanChange{Plan: plan, Start: &start, End: &end}, now); err != nil {
			return err
		}
		s.logg.Info(s.logg.WithField(logCtx, "plan", string(plan)), "stripe.invoice.plan_renewed")
		return nil
	}

	if err := s.accounts.RenewPeriod(ctx, userID, start, end, now); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "no recurring plan to renew")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "renew period")
	}
	s.logg.Info(logCtx, "stripe.invoice.period_renewed")
	return nil
}

// invoiceMetadata merges line, invoice and subscription metadata, later
// sources winning.
func invoiceMetadata(invoice *stripe.Invoice) map[string]string {
	merged := map[string]string{}
	if invoice.Lines != nil {
		for _, line := range invoice.Lines.Data {
			if line == nil {
				continue
			}
			for k, v := range line.Metadata {
				merged[k] = v
			}
		}
	}
	for k, v := range invoice.Metadata {
		merged[k] = v
	}
	if invoice.Parent != nil && invoice.Parent.SubscriptionDetails != nil {
		for k, v := range invoice.Parent.SubscriptionDetails.Metadata {
			merged[k] = v
		}
	}
	return merged
}

// invoicePeriod returns the latest line period. Invoices without one fall
// back to a month from now.
func invoicePeriod(invoice *stripe.Invoice, now time.Time) (time.Time, time.Time) {
	var best *stripe.Period
	if invoice.Lines != nil {
		for _, line := range invoice.Lines.Data {
			if line == nil || line.Period == nil || line.Period.End <= line.Period.Start {
				continue
			}
			if best == nil || line.Period.End > best.End {
				best = line.Period
			}
		}
	}
	if best == nil {
		return now, now.AddDate(0, 1, 0)
	}
	return time.Unix(best.Start, 0).UTC(), time.Unix(best.End, 0).UTC()
}

func (s *Service) apply(ctx context.Context, userID uuid.UUID, change accounts.PlanChange, at time.Time) error {
	if err := s.accounts.ApplyPlan(ctx, userID, change, at); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply plan")
	}
	return nil
}

func userIDFromMetadata(metadata map[string]string, fallback string) (uuid.UUID, error) {
	raw := ""
	for _, key := range userIDMetadataKeys {
		if v := strings.TrimSpace(metadata[key]); v != "" {
			raw = v
			break
		}
	}
	if raw == "" {
		raw = strings.TrimSpace(fallback)
	}
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "user id missing from metadata")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id in metadata")
	}
	return id, nil
}
