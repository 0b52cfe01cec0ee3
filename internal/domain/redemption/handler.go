package redemption

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/enterprise-access/access-api/internal/domain/policy"
	"github.com/enterprise-access/access-api/internal/middleware"
	"github.com/enterprise-access/access-api/internal/pkg/errorhandler"
	"github.com/enterprise-access/access-api/internal/pkg/response"
	"github.com/enterprise-access/access-api/internal/pkg/subsidy"
	"github.com/enterprise-access/access-api/internal/pkg/validator"
)

type Handler struct {
	svc   *Service
	links Links
}

func NewHandler(svc *Service, links Links) *Handler {
	return &Handler{svc: svc, links: links}
}

// CanRedeem handles GET /enterprise-customer/{enterprise_customer_uuid}/can-redeem
func (h *Handler) CanRedeem(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.GetCaller(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	enterpriseUUID, err := uuid.Parse(chi.URLParam(r, "enterprise_customer_uuid"))
	if err != nil {
		response.BadRequest(w, "invalid enterprise_customer_uuid")
		return
	}

	q := r.URL.Query()
	query := canRedeemQuery{ContentKeys: q["content_key"]}
	if errs := validator.Validate(query); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return
	}

	requested, err := optionalInt64(q.Get("lms_user_id"))
	if err != nil {
		response.BadRequest(w, "invalid lms_user_id")
		return
	}
	var policyUUID *uuid.UUID
	if raw := q.Get("policy_uuid"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(w, "invalid policy_uuid")
			return
		}
		policyUUID = &id
	}

	results, err := h.svc.Evaluate(r.Context(), EvaluateRequest{
		EnterpriseCustomerUUID: enterpriseUUID,
		LmsUserID:              ResolveLearner(caller.LmsUserID, caller.IsStaff, requested),
		ContentKeys:            query.ContentKeys,
		PolicyUUID:             policyUUID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	now := h.svc.now()
	out := make([]canRedeemResponse, len(results))
	for i, result := range results {
		out[i] = h.links.canRedeem(result, now)
	}
	response.Raw(w, http.StatusOK, out)
}

// Redeem handles POST /{policy_uuid}/redeem
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.GetCaller(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	policyUUID, err := uuid.Parse(chi.URLParam(r, "policy_uuid"))
	if err != nil {
		response.BadRequest(w, "invalid policy_uuid")
		return
	}

	var req redeemRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return
	}

	tx, err := h.svc.Redeem(r.Context(), RedeemRequest{
		PolicyUUID: policyUUID,
		LmsUserID:  ResolveLearner(caller.LmsUserID, caller.IsStaff, req.LmsUserID),
		ContentKey: req.ContentKey,
		Metadata:   req.Metadata,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.Raw(w, http.StatusOK, tx)
}

// CreditsAvailable handles GET /credits-available
func (h *Handler) CreditsAvailable(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.GetCaller(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	q := r.URL.Query()
	enterpriseUUID, err := uuid.Parse(q.Get("enterprise_customer_uuid"))
	if err != nil {
		response.ValidationError(w, map[string]string{"enterprise_customer_uuid": "must be a valid UUID"})
		return
	}
	requested, err := optionalInt64(q.Get("lms_user_id"))
	if err != nil {
		response.BadRequest(w, "invalid lms_user_id")
		return
	}

	credits, err := h.svc.CreditsAvailable(r.Context(), enterpriseUUID, ResolveLearner(caller.LmsUserID, caller.IsStaff, requested))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	now := h.svc.now()
	out := make([]creditsAvailableResponse, len(credits))
	for i, c := range credits {
		out[i] = h.links.credits(c, now)
	}
	response.Raw(w, http.StatusOK, out)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	var priceErr *PriceError
	var ledgerErr *subsidy.APIError
	var refused *NotRedeemableError
	switch {
	case errors.As(err, &priceErr):
		errorhandler.HandleUnprocessable(ctx, w, map[string]interface{}{"detail": priceErr.Error()}, err)
	case errors.As(err, &refused):
		errorhandler.HandleUnprocessable(ctx, w, map[string]interface{}{"detail": refused.Reasons}, err)
	case errors.As(err, &ledgerErr):
		errorhandler.HandleUnprocessable(ctx, w, map[string]interface{}{
			"detail":              ledgerErr.Error(),
			"subsidy_status_code": ledgerErr.StatusCodeString(),
		}, err)
	case errors.Is(err, ErrPolicyNotRedeemable):
		errorhandler.HandleUnprocessable(ctx, w, map[string]interface{}{"detail": "Policy is not active"}, err)
	case errors.Is(err, policy.ErrPolicyNotFound):
		errorhandler.HandleError(ctx, w, http.StatusNotFound, "NOT_FOUND", "policy not found", err)
	default:
		errorhandler.HandleError(ctx, w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", err)
	}
}

func optionalInt64(raw string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Routes mounts the redemption endpoints behind authMiddleware.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/enterprise-customer/{enterprise_customer_uuid}/can-redeem", h.CanRedeem)
	r.Get("/credits-available", h.CreditsAvailable)
	r.Post("/{policy_uuid}/redeem", h.Redeem)
	return r
}
