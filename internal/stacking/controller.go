// Package stacking runs the ordered admission pass that decides which of the
// requested redeemables may be applied together.
package stacking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/redeemables/internal/discount"
	"github.com/utafrali/redeemables/internal/domain"
	"github.com/utafrali/redeemables/internal/eligibility"
	"github.com/utafrali/redeemables/internal/session"
	apperrors "github.com/utafrali/redeemables/pkg/errors"
)

const tracerName = "github.com/utafrali/redeemables/internal/stacking"

// VoucherLookup resolves a redeemable id to its voucher. It returns an error
// wrapping apperrors.ErrNotFound when no voucher exists.
type VoucherLookup interface {
	GetByCode(ctx context.Context, tenantID, code string) (*domain.Voucher, error)
}

// Eligibility checks a single voucher.
type Eligibility interface {
	Check(ctx context.Context, in eligibility.CheckInput) (*domain.ValidationOutcome, error)
}

// Locker reserves the admitted set under a session.
type Locker interface {
	Acquire(ctx context.Context, tenantID string, req *domain.SessionRequest, admitted []domain.RedeemableRef) (*domain.Session, error)
}

// Input is one stack validation request.
type Input struct {
	TenantID    string
	Redeemables []domain.RedeemableRef
	Customer    *domain.Customer
	Order       *domain.Order
	// Categories scope the category applicability check; empty disables it.
	Categories []string
	Rules      domain.StackingRules
	TrackingID string
	Metadata   map[string]any
	Session    *domain.SessionRequest
	Expand     domain.ExpandOptions
	Now        time.Time
}

// Controller runs the admission pass.
type Controller struct {
	vouchers VoucherLookup
	checker  Eligibility
	locker   Locker
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewController creates a new stacking admission controller.
func NewController(vouchers VoucherLookup, checker Eligibility, locker Locker, logger *slog.Logger) *Controller {
	return &Controller{
		vouchers: vouchers,
		checker:  checker,
		locker:   locker,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
	}
}

// item is one request entry with its resolved voucher.
type item struct {
	ref     domain.RedeemableRef
	index   int
	voucher *domain.Voucher
}

// Validate classifies every requested redeemable. Request-shape problems are
// returned as InvalidInput before anything is looked up; lookup and
// persistence failures are returned as errors; everything else is an outcome.
func (c *Controller) Validate(ctx context.Context, in Input) (*domain.StackValidationResult, error) {
	ctx, span := c.tracer.Start(ctx, "stacking.Validate",
		trace.WithAttributes(
			attribute.String("tenant.id", in.TenantID),
			attribute.Int("redeemables.count", len(in.Redeemables)),
		),
	)
	defer span.End()

	if err := checkShape(&in); err != nil {
		return nil, err
	}

	items, err := c.resolve(ctx, &in)
	if err != nil {
		return nil, err
	}
	if in.Rules.SortingRule == domain.SortingCategoryHierarchy {
		sortByCategory(items)
	}

	acc := newAccumulator()
	amount := discount.OrderAmount(in.Order)
	result := &domain.StackValidationResult{
		TrackingID:   in.TrackingID,
		Redeemables:  make([]domain.RedeemableOutcome, 0, len(items)),
		Skipped:      []domain.RedeemableOutcome{},
		Inapplicable: []domain.RedeemableOutcome{},
		Metadata:     in.Metadata,
	}
	if result.TrackingID == "" {
		result.TrackingID = "track_" + uuid.New().String()
	}

	admitted := make([]domain.RedeemableRef, 0, len(items))
	for _, it := range items {
		out, err := c.decide(ctx, &in, it, acc, amount)
		if err != nil {
			return nil, err
		}
		if in.Expand != (domain.ExpandOptions{}) && it.voucher != nil {
			out.Details = details(it.voucher, in.Order, in.Expand)
		}

		result.Redeemables = append(result.Redeemables, out)
		switch out.Status {
		case domain.StatusApplicable:
			admitted = append(admitted, it.ref)
		case domain.StatusSkipped:
			result.Skipped = append(result.Skipped, out)
		case domain.StatusInapplicable:
			result.Inapplicable = append(result.Inapplicable, out)
			if in.Rules.IsAll() {
				acc.precedingFailed = true
			}
		}
	}

	if in.Rules.IsAll() {
		result.Valid = len(result.Inapplicable) == 0 && len(result.Skipped) == 0
	} else {
		result.Valid = acc.admitted > 0
	}
	result.Order = discount.Summarize(amount, acc.discount, acc.gift)

	// Locking always replaces the key's set, so an invalid pass clears locks a
	// previous pass under the same key left behind.
	if in.Session != nil {
		locked := admitted
		if !result.Valid {
			locked = nil
		}
		s, err := c.locker.Acquire(ctx, in.TenantID, in.Session, locked)
		if err != nil {
			return nil, err
		}
		result.Session = s
	}

	span.SetAttributes(
		attribute.Bool("stack.valid", result.Valid),
		attribute.Int("stack.applicable", len(admitted)),
	)
	c.logger.DebugContext(ctx, "stack validated",
		slog.String("tracking_id", result.TrackingID),
		slog.Bool("valid", result.Valid),
		slog.Int("applicable", len(admitted)),
		slog.Int("skipped", len(result.Skipped)),
		slog.Int("inapplicable", len(result.Inapplicable)),
	)

	return result, nil
}

// decide classifies one item and, when it is admitted, updates acc.
func (c *Controller) decide(ctx context.Context, in *Input, it item, acc *accumulator, amount int64) (domain.RedeemableOutcome, error) {
	ref := it.ref
	out := domain.RedeemableOutcome{Kind: ref.Kind, ID: ref.ID}

	switch {
	case acc.precedingFailed:
		return skipped(out, domain.SkipPrecedingValidationFailed), nil
	case ref.Kind.IsPromotion():
		return skipped(out, domain.SkipPromotionNotSupported), nil
	case !ref.Kind.IsSupported():
		return inapplicable(out, domain.CodeUnsupportedRedeemable, fmt.Sprintf("Redeemable kind %q is not supported", ref.Kind)), nil
	}

	v := it.voucher
	check, err := c.checker.Check(ctx, eligibility.CheckInput{
		TenantID:        in.TenantID,
		Voucher:         v,
		Customer:        in.Customer,
		Order:           in.Order,
		Categories:      in.Categories,
		ScopeCategories: len(in.Categories) > 0,
		Now:             in.Now,
	})
	if err != nil {
		return out, err
	}
	if v != nil {
		out.VoucherID = v.ID
	}
	if !check.Valid {
		return inapplicable(out, check.Error.Code, check.Error.Message), nil
	}
	if !v.Type.MatchesKind(ref.Kind) {
		return inapplicable(out, domain.CodeInvalidRedeemableType,
			fmt.Sprintf("Voucher of type %s cannot be redeemed as %s", v.Type, ref.Kind)), nil
	}

	cls := classify(&in.Rules, v.Categories)
	if acc.exclusiveAdmitted && !cls.isExclusive() && !cls.joint {
		return skipped(out, domain.SkipExclusionRulesNotMet), nil
	}
	if key := acc.capacity(&in.Rules, v, cls); key != "" {
		return skipped(out, key), nil
	}

	res, off, gift := buildResult(v, check.Discount, amount-acc.discount-acc.gift)
	acc.admit(v, cls, off, gift)

	out.Status = domain.StatusApplicable
	out.Result = res
	return out, nil
}

// buildResult picks the payload variant by voucher type and returns the
// money the voucher takes off the order.
func buildResult(v *domain.Voucher, off, remaining int64) (*domain.RedeemableResult, int64, int64) {
	switch v.Type {
	case domain.VoucherTypeGift:
		var balance int64
		if v.Gift != nil {
			balance = v.Gift.Balance
		}
		credits := discount.GiftCredits(balance, remaining)
		return &domain.RedeemableResult{Gift: &domain.GiftResult{Balance: balance, CreditsAmount: credits}}, 0, credits
	case domain.VoucherTypeLoyaltyCard:
		lr := &domain.LoyaltyResult{}
		if v.LoyaltyCard != nil {
			lr.Points, lr.Balance = v.LoyaltyCard.Points, v.LoyaltyCard.Balance
		}
		return &domain.RedeemableResult{LoyaltyCard: lr}, 0, 0
	default:
		var typ domain.DiscountType
		if v.Discount != nil {
			typ = v.Discount.Type
		}
		return &domain.RedeemableResult{Discount: &domain.DiscountResult{Type: typ, DiscountAmount: off}}, off, 0
	}
}

// resolve looks up the voucher of every supported reference.
func (c *Controller) resolve(ctx context.Context, in *Input) ([]item, error) {
	items := make([]item, 0, len(in.Redeemables))
	for i, ref := range in.Redeemables {
		it := item{ref: ref, index: i}
		if ref.Kind.IsSupported() {
			v, err := c.vouchers.GetByCode(ctx, in.TenantID, ref.ID)
			switch {
			case errors.Is(err, apperrors.ErrNotFound):
			case err != nil:
				return nil, fmt.Errorf("get voucher %s: %w", ref.ID, err)
			default:
				it.voucher = v
			}
		}
		items = append(items, it)
	}
	return items, nil
}

func checkShape(in *Input) error {
	n := len(in.Redeemables)
	if n == 0 {
		return apperrors.InvalidInput("at least one redeemable is required")
	}
	if limit := in.Rules.EffectiveRedeemablesLimit(); n > limit {
		return apperrors.InvalidInput(fmt.Sprintf("at most %d redeemables may be validated at once", limit))
	}
	seen := make(map[string]struct{}, n)
	for _, ref := range in.Redeemables {
		if ref.Kind == "" || ref.ID == "" {
			return apperrors.InvalidInput("every redeemable needs a kind and an id")
		}
		if _, ok := seen[ref.Key()]; ok {
			return apperrors.InvalidInput(fmt.Sprintf("duplicate redeemable %s %s", ref.Kind, ref.ID))
		}
		seen[ref.Key()] = struct{}{}
	}
	return session.ValidateRequest(in.Session)
}

// sortKey orders by the smallest lowercase category name, falling back to the
// category id. Uncategorized or unresolved items sort last.
type sortKey struct {
	last bool
	key  string
}

func categorySortKey(v *domain.Voucher) sortKey {
	if v == nil || len(v.Categories) == 0 {
		return sortKey{last: true}
	}
	best := ""
	for i, c := range v.Categories {
		token := c.Token()
		if token == "" {
			token = strings.ToLower(c.ID)
		}
		if i == 0 || token < best {
			best = token
		}
	}
	return sortKey{key: best}
}

func sortByCategory(items []item) {
	keys := make(map[int]sortKey, len(items))
	for _, it := range items {
		keys[it.index] = categorySortKey(it.voucher)
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := keys[items[i].index], keys[items[j].index]
		if a.last != b.last {
			return !a.last
		}
		return a.key < b.key
	})
}

func details(v *domain.Voucher, order *domain.Order, expand domain.ExpandOptions) *domain.OutcomeDetails {
	d := &domain.OutcomeDetails{}
	if expand.Redeemable {
		d.Voucher = v
	}
	if expand.Category {
		d.Categories = v.Categories
	}
	if expand.Order {
		d.Order = discount.Lines(order)
	}
	return d
}

var skipMessages = map[string]string{
	domain.SkipPrecedingValidationFailed:    "A preceding redeemable failed validation",
	domain.SkipPromotionNotSupported:        "Promotions are not supported",
	domain.SkipExclusionRulesNotMet:         "An exclusive redeemable has already been applied",
	domain.SkipExclusiveLimitExceeded:       "Applicable exclusive redeemables limit exceeded",
	domain.SkipExclusivePerCategoryExceeded: "Applicable exclusive redeemables limit per category exceeded",
	domain.SkipPerCategoryLimitExceeded:     "Applicable redeemables limit per category exceeded",
	domain.SkipApplicableLimitExceeded:      "Applicable redeemables limit exceeded",
}

func skipped(out domain.RedeemableOutcome, key string) domain.RedeemableOutcome {
	out.Status = domain.StatusSkipped
	out.SkipReason = &domain.SkipReason{Key: key, Message: skipMessages[key]}
	return out
}

func inapplicable(out domain.RedeemableOutcome, code, message string) domain.RedeemableOutcome {
	out.Status = domain.StatusInapplicable
	out.Error = &domain.OutcomeError{Code: code, Message: message}
	return out
}
