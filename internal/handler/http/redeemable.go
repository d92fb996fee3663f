package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/redeemables/internal/domain"
	"github.com/utafrali/redeemables/internal/service"
	apperrors "github.com/utafrali/redeemables/pkg/errors"
	"github.com/utafrali/redeemables/pkg/httputil"
	"github.com/utafrali/redeemables/pkg/middleware"
	"github.com/utafrali/redeemables/pkg/pagination"
	"github.com/utafrali/redeemables/pkg/validator"
)

// Service is the part of service.RedeemableService the handlers call.
type Service interface {
	ValidateSingle(ctx context.Context, tenantID string, in *service.SingleInput) (*domain.ValidationOutcome, error)
	ValidateStack(ctx context.Context, tenantID string, in *service.StackInput) (*domain.StackValidationResult, error)
	Qualify(ctx context.Context, tenantID string, req *domain.QualificationRequest) (*domain.QualificationPage, error)
	Redeem(ctx context.Context, tenantID string, in *service.RedeemInput) (*service.RedeemResult, error)
	ReleaseSession(ctx context.Context, tenantID, key string) error
}

// RedeemableHandler handles HTTP requests for validation and redemption.
type RedeemableHandler struct {
	service Service
	logger  *slog.Logger
}

// NewRedeemableHandler creates a new redeemable HTTP handler.
func NewRedeemableHandler(svc Service, logger *slog.Logger) *RedeemableHandler {
	return &RedeemableHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// Expand options accepted in options.expand.
const (
	expandOrder      = "order"
	expandRedeemable = "redeemable"
	expandCategory   = "category"
)

// RequestOptions is the options block of a validation request.
type RequestOptions struct {
	Expand []string `json:"expand" validate:"omitempty,dive,oneof=order redeemable category"`
}

// ValidateStackRequest is the JSON request body for a stack validation. The
// size of the redeemables list is checked against the tenant's rules.
type ValidateStackRequest struct {
	Redeemables []domain.RedeemableRef `json:"redeemables" validate:"dive"`
	Customer    *domain.Customer       `json:"customer"`
	Order       *domain.Order          `json:"order"`
	Categories  []string               `json:"categories" validate:"omitempty,dive,required"`
	TrackingID  string                 `json:"tracking_id" validate:"max=200"`
	Metadata    map[string]any         `json:"metadata"`
	Session     *SessionRequest        `json:"session"`
	Options     *RequestOptions        `json:"options"`
}

// SessionRequest is the session block of a stack validation.
type SessionRequest struct {
	Type    string `json:"type" validate:"required,oneof=LOCK"`
	Key     string `json:"key" validate:"max=200"`
	TTL     *int64 `json:"ttl" validate:"omitempty,gt=0"`
	TTLUnit string `json:"ttl_unit" validate:"omitempty,oneof=DAYS HOURS MINUTES SECONDS MILLISECONDS MICROSECONDS NANOSECONDS"`
}

// ValidateVoucherRequest is the JSON request body for a single voucher
// validation. The code comes from the path.
type ValidateVoucherRequest struct {
	Customer   *domain.Customer `json:"customer"`
	Order      *domain.Order    `json:"order"`
	Categories []string         `json:"categories" validate:"omitempty,dive,required"`
}

// QualificationRequest is the JSON request body for a qualification search.
// The limit and starting_after query parameters override the body.
type QualificationRequest struct {
	Scenario string                      `json:"scenario" validate:"omitempty,oneof=ALL CUSTOMER_WALLET AUDIENCE_ONLY"`
	Customer *domain.Customer            `json:"customer"`
	Order    *domain.Order               `json:"order"`
	Filters  domain.QualificationFilters `json:"filters"`
	Limit    int                         `json:"limit" validate:"gte=0"`
	Cursor   *time.Time                  `json:"starting_after"`
}

// RedeemRequest is the JSON request body for a redemption.
type RedeemRequest struct {
	Redeemables []domain.RedeemableRef `json:"redeemables" validate:"required,min=1,dive"`
	Customer    *domain.Customer       `json:"customer"`
	Order       *domain.Order          `json:"order"`
	Categories  []string               `json:"categories" validate:"omitempty,dive,required"`
	TrackingID  string                 `json:"tracking_id" validate:"max=200"`
	Metadata    map[string]any         `json:"metadata"`
	Session     *RedeemSession         `json:"session"`
}

// RedeemSession names the session whose locks a redemption consumes.
type RedeemSession struct {
	Key string `json:"key" validate:"required,max=200"`
}

// --- Handlers ---

// ValidateStack handles POST /api/v1/validations
func (h *RedeemableHandler) ValidateStack(w http.ResponseWriter, r *http.Request) {
	var req ValidateStackRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		h.writeDecodeError(w, r, err)
		return
	}

	in := &service.StackInput{
		Redeemables: req.Redeemables,
		Customer:    req.Customer,
		Order:       req.Order,
		Categories:  req.Categories,
		TrackingID:  req.TrackingID,
		Metadata:    req.Metadata,
		Expand:      expandOptions(req.Options),
	}
	if req.Session != nil {
		in.Session = &domain.SessionRequest{
			Type:    domain.SessionType(req.Session.Type),
			Key:     req.Session.Key,
			TTL:     req.Session.TTL,
			TTLUnit: domain.TTLUnit(req.Session.TTLUnit),
		}
	}

	res, err := h.service.ValidateStack(r.Context(), middleware.TenantIDFromRequest(r), in)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, res)
}

// ValidateVoucher handles POST /api/v1/vouchers/{code}/validate
func (h *RedeemableHandler) ValidateVoucher(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("voucher code is required"), h.logger)
		return
	}

	var req ValidateVoucherRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		h.writeDecodeError(w, r, err)
		return
	}

	out, err := h.service.ValidateSingle(r.Context(), middleware.TenantIDFromRequest(r), &service.SingleInput{
		Code:       code,
		Customer:   req.Customer,
		Order:      req.Order,
		Categories: req.Categories,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, out)
}

// Qualify handles POST /api/v1/qualifications
func (h *RedeemableHandler) Qualify(w http.ResponseWriter, r *http.Request) {
	var req QualificationRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		h.writeDecodeError(w, r, err)
		return
	}

	limit, cursor := pagination.FromRequest(r, domain.MaxQualificationLimit).Merge(req.Limit, req.Cursor)
	page, err := h.service.Qualify(r.Context(), middleware.TenantIDFromRequest(r), &domain.QualificationRequest{
		Scenario: domain.Scenario(req.Scenario),
		Customer: req.Customer,
		Order:    req.Order,
		Filters:  req.Filters,
		Cursor:   cursor,
		Limit:    limit,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, page)
}

// Redeem handles POST /api/v1/redemptions
func (h *RedeemableHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		h.writeDecodeError(w, r, err)
		return
	}

	in := &service.RedeemInput{
		Redeemables: req.Redeemables,
		Customer:    req.Customer,
		Order:       req.Order,
		Categories:  req.Categories,
		TrackingID:  req.TrackingID,
		Metadata:    req.Metadata,
	}
	if req.Session != nil {
		in.SessionKey = req.Session.Key
	}

	res, err := h.service.Redeem(r.Context(), middleware.TenantIDFromRequest(r), in)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, res)
}

// ReleaseSession handles DELETE /api/v1/sessions/{key}
func (h *RedeemableHandler) ReleaseSession(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.service.ReleaseSession(r.Context(), middleware.TenantIDFromRequest(r), key); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeDecodeError reports validation errors field by field and anything else
// as a malformed body.
func (h *RedeemableHandler) writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteError(w, r, apperrors.InvalidInput(fmt.Sprintf("invalid request body: %v", err)), h.logger)
}

func expandOptions(opts *RequestOptions) domain.ExpandOptions {
	var e domain.ExpandOptions
	if opts == nil {
		return e
	}
	for _, x := range opts.Expand {
		switch x {
		case expandOrder:
			e.Order = true
		case expandRedeemable:
			e.Redeemable = true
		case expandCategory:
			e.Category = true
		}
	}
	return e
}
