package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/redeemables/internal/discount"
	"github.com/utafrali/redeemables/internal/domain"
	"github.com/utafrali/redeemables/internal/eligibility"
	"github.com/utafrali/redeemables/internal/repository"
	"github.com/utafrali/redeemables/internal/session"
	"github.com/utafrali/redeemables/internal/stacking"
	apperrors "github.com/utafrali/redeemables/pkg/errors"
)

// StackValidator runs the stacking admission pass.
type StackValidator interface {
	Validate(ctx context.Context, in stacking.Input) (*domain.StackValidationResult, error)
}

// VoucherChecker checks a single voucher.
type VoucherChecker interface {
	Check(ctx context.Context, in eligibility.CheckInput) (*domain.ValidationOutcome, error)
}

// Qualifier lists qualifying vouchers.
type Qualifier interface {
	Qualify(ctx context.Context, tenantID string, req domain.QualificationRequest) (*domain.QualificationPage, error)
}

// Sessions reads and releases session locks.
type Sessions interface {
	Active(ctx context.Context, tenantID, key string) ([]domain.SessionLock, error)
	Release(ctx context.Context, tenantID, key string) error
}

// RulesSource resolves the stacking rules of a tenant.
type RulesSource interface {
	RulesFor(tenantID string) (domain.StackingRules, error)
}

// EventPublisher publishes engine events.
type EventPublisher interface {
	PublishValidationCompleted(ctx context.Context, tenantID string, res *domain.StackValidationResult) error
	PublishRedeemed(ctx context.Context, kind domain.RedeemableKind, code string, r *domain.Redemption) error
}

// VoucherCache drops cached vouchers.
type VoucherCache interface {
	Invalidate(ctx context.Context, tenantID string, codesOrIDs ...string) error
}

// Deps are the collaborators of a RedeemableService. Cache may be nil.
type Deps struct {
	Vouchers    repository.VoucherRepository
	Redemptions repository.RedemptionRepository
	Checker     VoucherChecker
	Stacker     StackValidator
	Search      Qualifier
	Sessions    Sessions
	Rules       RulesSource
	Publisher   EventPublisher
	Cache       VoucherCache
}

// RedeemableService implements validation, qualification and redemption of
// redeemables.
type RedeemableService struct {
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
}

// NewRedeemableService creates a new redeemable service.
func NewRedeemableService(deps Deps, logger *slog.Logger) *RedeemableService {
	return &RedeemableService{
		deps:   deps,
		logger: logger,
		now:    time.Now,
	}
}

// SingleInput holds the parameters for validating one voucher.
type SingleInput struct {
	Code       string
	Customer   *domain.Customer
	Order      *domain.Order
	Categories []string
}

// StackInput holds the parameters for validating a stack of redeemables.
type StackInput struct {
	Redeemables []domain.RedeemableRef
	Customer    *domain.Customer
	Order       *domain.Order
	Categories  []string
	TrackingID  string
	Metadata    map[string]any
	Session     *domain.SessionRequest
	Expand      domain.ExpandOptions
}

// RedeemInput holds the parameters for redeeming a stack. When SessionKey
// names a session whose locks cover every redeemable, the locked decision is
// redeemed without checking eligibility again.
type RedeemInput struct {
	Redeemables []domain.RedeemableRef
	Customer    *domain.Customer
	Order       *domain.Order
	Categories  []string
	TrackingID  string
	Metadata    map[string]any
	SessionKey  string
}

// RedeemResult is the outcome of a redeem call.
type RedeemResult struct {
	TrackingID  string                    `json:"tracking_id"`
	SessionUsed bool                      `json:"session_used"`
	Redemptions []domain.RedemptionResult `json:"redemptions"`
	Order       domain.OrderSummary       `json:"order"`
}

// ValidateSingle checks one voucher by code or id. An unknown voucher is an
// invalid outcome, not an error.
func (s *RedeemableService) ValidateSingle(ctx context.Context, tenantID string, in *SingleInput) (*domain.ValidationOutcome, error) {
	if in.Code == "" {
		return nil, apperrors.InvalidInput("voucher code is required")
	}

	v, err := s.deps.Vouchers.GetByCode(ctx, tenantID, in.Code)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("get voucher %s: %w", in.Code, err)
	}

	out, err := s.deps.Checker.Check(ctx, eligibility.CheckInput{
		TenantID:        tenantID,
		Voucher:         v,
		Customer:        in.Customer,
		Order:           in.Order,
		Categories:      in.Categories,
		ScopeCategories: true,
	})
	if err != nil {
		return nil, fmt.Errorf("check voucher %s: %w", in.Code, err)
	}
	recordSingle(out)

	s.logger.DebugContext(ctx, "voucher validated",
		slog.String("code", in.Code),
		slog.Bool("valid", out.Valid),
		slog.String("error_code", out.Code),
	)
	return out, nil
}

// ValidateStack classifies every requested redeemable under the tenant's
// stacking rules. The validation.completed event is published best-effort.
func (s *RedeemableService) ValidateStack(ctx context.Context, tenantID string, in *StackInput) (*domain.StackValidationResult, error) {
	rules, err := s.deps.Rules.RulesFor(tenantID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := s.deps.Stacker.Validate(ctx, stacking.Input{
		TenantID:    tenantID,
		Redeemables: in.Redeemables,
		Customer:    in.Customer,
		Order:       in.Order,
		Categories:  in.Categories,
		Rules:       rules,
		TrackingID:  in.TrackingID,
		Metadata:    in.Metadata,
		Session:     in.Session,
		Expand:      in.Expand,
	})
	StackValidationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	for _, o := range res.Redeemables {
		recordOutcome(o)
	}

	if err := s.deps.Publisher.PublishValidationCompleted(ctx, tenantID, res); err != nil {
		s.logger.WarnContext(ctx, "failed to publish validation completed event",
			slog.String("tracking_id", res.TrackingID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "stack validated",
		slog.String("tracking_id", res.TrackingID),
		slog.Bool("valid", res.Valid),
		slog.Int("requested", len(res.Redeemables)),
		slog.Int("skipped", len(res.Skipped)),
		slog.Int("inapplicable", len(res.Inapplicable)),
	)
	return res, nil
}

// Qualify lists the vouchers that would qualify for the request.
func (s *RedeemableService) Qualify(ctx context.Context, tenantID string, req *domain.QualificationRequest) (*domain.QualificationPage, error) {
	page, err := s.deps.Search.Qualify(ctx, tenantID, *req)
	if err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "qualification listed",
		slog.Int("items", len(page.Items)),
		slog.Bool("has_more", page.HasMore),
	)
	return page, nil
}

// ReleaseSession drops every lock held under the key.
func (s *RedeemableService) ReleaseSession(ctx context.Context, tenantID, key string) error {
	return s.deps.Sessions.Release(ctx, tenantID, key)
}

// planned is one redeemable about to be committed.
type planned struct {
	ref     domain.RedeemableRef
	voucher *domain.Voucher
	amount  int64
}

// Redeem commits the applicable subset of a stack. Each commit re-checks the
// redemption limits atomically, so an item that lost a race fails on its own
// while the others still succeed.
func (s *RedeemableService) Redeem(ctx context.Context, tenantID string, in *RedeemInput) (*RedeemResult, error) {
	if err := checkRefs(in.Redeemables); err != nil {
		return nil, err
	}
	result := &RedeemResult{TrackingID: in.TrackingID}

	plan, fromSession, err := s.lockedPlan(ctx, tenantID, in, result)
	if err != nil {
		return nil, err
	}
	if !fromSession {
		plan, err = s.validatedPlan(ctx, tenantID, in, result)
		if err != nil {
			return nil, err
		}
	}
	result.SessionUsed = fromSession
	if result.TrackingID == "" {
		result.TrackingID = "track_" + uuid.New().String()
	}

	var (
		succeeded int
		firstErr  error
	)
	result.Redemptions = make([]domain.RedemptionResult, 0, len(plan))
	for _, p := range plan {
		rr, err := s.commit(ctx, tenantID, in, result.TrackingID, p)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to commit redemption",
				slog.String("code", p.ref.ID),
				slog.String("error", err.Error()),
			)
			if firstErr == nil {
				firstErr = err
			}
			rr = failed(p.ref, "redemption_commit_failed", "Redemption could not be recorded")
		}
		if rr.Status == domain.RedemptionSucceeded {
			succeeded++
		}
		RedemptionsTotal.WithLabelValues(rr.Status).Inc()
		result.Redemptions = append(result.Redemptions, rr)
	}

	if succeeded == 0 && firstErr != nil {
		return nil, fmt.Errorf("redeem: %w", firstErr)
	}

	if succeeded > 0 && in.SessionKey != "" {
		if err := s.deps.Sessions.Release(ctx, tenantID, in.SessionKey); err != nil {
			s.logger.WarnContext(ctx, "failed to release session after redeem",
				slog.String("session_key", in.SessionKey),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "redeem completed",
		slog.String("tracking_id", result.TrackingID),
		slog.Bool("session_used", fromSession),
		slog.Int("planned", len(plan)),
		slog.Int("succeeded", succeeded),
	)
	return result, nil
}

// lockedPlan builds the plan from an unexpired session covering every
// requested redeemable. It reports false when the session cannot be used.
func (s *RedeemableService) lockedPlan(ctx context.Context, tenantID string, in *RedeemInput, result *RedeemResult) ([]planned, bool, error) {
	if in.SessionKey == "" {
		return nil, false, nil
	}
	locks, err := s.deps.Sessions.Active(ctx, tenantID, in.SessionKey)
	if err != nil {
		return nil, false, err
	}
	if !session.Covers(locks, in.Redeemables) {
		s.logger.DebugContext(ctx, "session does not cover request, validating",
			slog.String("session_key", in.SessionKey),
			slog.Int("locks", len(locks)),
		)
		return nil, false, nil
	}

	amount := discount.OrderAmount(in.Order)
	var off, gift int64
	plan := make([]planned, 0, len(in.Redeemables))
	for _, ref := range in.Redeemables {
		v, err := s.deps.Vouchers.GetByCode(ctx, tenantID, ref.ID)
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			plan = append(plan, planned{ref: ref})
			continue
		case err != nil:
			return nil, false, fmt.Errorf("get voucher %s: %w", ref.ID, err)
		}

		p := planned{ref: ref, voucher: v}
		switch v.Type {
		case domain.VoucherTypeGift:
			if v.Gift != nil {
				p.amount = discount.GiftCredits(v.Gift.Balance, amount-off-gift)
				gift += p.amount
			}
		case domain.VoucherTypeLoyaltyCard:
		default:
			p.amount = discount.Calculate(v, in.Order)
			off += p.amount
		}
		plan = append(plan, p)
	}

	result.Order = discount.Summarize(amount, off, gift)
	return plan, true, nil
}

// validatedPlan runs a fresh stack validation and plans its applicable items.
func (s *RedeemableService) validatedPlan(ctx context.Context, tenantID string, in *RedeemInput, result *RedeemResult) ([]planned, error) {
	res, err := s.ValidateStack(ctx, tenantID, &StackInput{
		Redeemables: in.Redeemables,
		Customer:    in.Customer,
		Order:       in.Order,
		Categories:  in.Categories,
		TrackingID:  in.TrackingID,
		Metadata:    in.Metadata,
		Expand:      domain.ExpandOptions{Redeemable: true},
	})
	if err != nil {
		return nil, err
	}
	if !res.Valid {
		return nil, apperrors.Conflict(fmt.Sprintf("stack %s has nothing to redeem", res.TrackingID))
	}

	applicable := res.Applicable()
	plan := make([]planned, 0, len(applicable))
	for _, o := range applicable {
		p := planned{ref: o.Ref(), amount: o.Result.Amount()}
		if o.Details != nil {
			p.voucher = o.Details.Voucher
		}
		plan = append(plan, p)
	}

	result.TrackingID = res.TrackingID
	result.Order = res.Order
	return plan, nil
}

// commit records one planned redemption. Limit violations become FAILED
// results; only unexpected errors are returned.
func (s *RedeemableService) commit(ctx context.Context, tenantID string, in *RedeemInput, trackingID string, p planned) (domain.RedemptionResult, error) {
	if p.voucher == nil {
		return failed(p.ref, domain.CodeVoucherNotFound, "Voucher not found"), nil
	}

	r := &domain.Redemption{
		ID:         "r_" + uuid.New().String(),
		TenantID:   tenantID,
		VoucherID:  p.voucher.ID,
		CustomerID: in.Customer.Identity(),
		Amount:     p.amount,
		TrackingID: trackingID,
		SessionKey: in.SessionKey,
		CreatedAt:  s.now().UTC(),
	}
	if in.Order != nil {
		r.OrderID = in.Order.ID
	}

	err := s.deps.Redemptions.Commit(ctx, r, p.voucher.Redemption)
	switch {
	case errors.Is(err, repository.ErrQuantityExceeded):
		return failed(p.ref, domain.CodeRedemptionLimitExceeded, "Voucher redemption limit exceeded"), nil
	case errors.Is(err, repository.ErrPerCustomerExceeded):
		return failed(p.ref, domain.CodePerCustomerLimitExceeded, "Voucher redemption limit per customer exceeded"), nil
	case errors.Is(err, apperrors.ErrNotFound):
		return failed(p.ref, domain.CodeVoucherNotFound, "Voucher not found"), nil
	case err != nil:
		return domain.RedemptionResult{}, err
	}

	if s.deps.Cache != nil {
		if err := s.deps.Cache.Invalidate(ctx, tenantID, p.voucher.Code, p.voucher.ID); err != nil {
			s.logger.WarnContext(ctx, "failed to invalidate cached voucher",
				slog.String("voucher_id", p.voucher.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if err := s.deps.Publisher.PublishRedeemed(ctx, p.ref.Kind, p.ref.ID, r); err != nil {
		s.logger.WarnContext(ctx, "failed to publish redeemed event",
			slog.String("redemption_id", r.ID),
			slog.String("error", err.Error()),
		)
	}

	return domain.RedemptionResult{
		Kind:       p.ref.Kind,
		ID:         p.ref.ID,
		Status:     domain.RedemptionSucceeded,
		Redemption: r,
	}, nil
}

// checkRefs rejects requests a session could not have locked.
func checkRefs(refs []domain.RedeemableRef) error {
	if len(refs) == 0 {
		return apperrors.InvalidInput("at least one redeemable is required")
	}
	if len(refs) > domain.MaxRedeemablesLimit {
		return apperrors.InvalidInput(fmt.Sprintf("at most %d redeemables may be redeemed at once", domain.MaxRedeemablesLimit))
	}
	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		if _, ok := seen[ref.Key()]; ok {
			return apperrors.InvalidInput(fmt.Sprintf("duplicate redeemable %s %s", ref.Kind, ref.ID))
		}
		seen[ref.Key()] = struct{}{}
	}
	return nil
}

func failed(ref domain.RedeemableRef, code, message string) domain.RedemptionResult {
	return domain.RedemptionResult{
		Kind:   ref.Kind,
		ID:     ref.ID,
		Status: domain.RedemptionFailed,
		Error:  &domain.OutcomeError{Code: code, Message: message},
	}
}
