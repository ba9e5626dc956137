package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"matchday/internal/api/v1/dto"
	"matchday/internal/middleware"
	"matchday/internal/model"
	"matchday/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// BillingHandler serves the /billing endpoints.
type BillingHandler struct {
	checkoutSvc  service.CheckoutService
	webhookSvc   service.WebhookService
	lifecycleSvc service.LifecycleService
	cleanupSvc   service.CleanupService
	validate     *validator.Validate
	logger       zerolog.Logger
}

// NewBillingHandler creates a new BillingHandler.
func NewBillingHandler(
	checkoutSvc service.CheckoutService,
	webhookSvc service.WebhookService,
	lifecycleSvc service.LifecycleService,
	cleanupSvc service.CleanupService,
	v *validator.Validate,
	logger zerolog.Logger,
) *BillingHandler {
	return &BillingHandler{
		checkoutSvc:  checkoutSvc,
		webhookSvc:   webhookSvc,
		lifecycleSvc: lifecycleSvc,
		cleanupSvc:   cleanupSvc,
		validate:     v,
		logger:       logger.With().Str("handler", "BillingHandler").Logger(),
	}
}

// RegisterRoutes registers the billing endpoints. The webhook route receives
// rawBodyMw so the signature is checked against the exact bytes sent, every
// other POST route receives jsonBodyMw.
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux, authMw, rawBodyMw, jsonBodyMw func(http.Handler) http.Handler) {
	mux.Handle("POST /billing/webhook", rawBodyMw(http.HandlerFunc(h.Webhook)))

	mux.Handle("POST /billing/checkout", jsonBodyMw(authMw(http.HandlerFunc(h.Checkout))))
	mux.Handle("GET /billing/subscription", authMw(http.HandlerFunc(h.GetSubscription)))
	mux.Handle("POST /billing/cancel", jsonBodyMw(authMw(http.HandlerFunc(h.Cancel))))
	mux.Handle("POST /billing/reactivate", jsonBodyMw(authMw(http.HandlerFunc(h.Reactivate))))
	mux.Handle("POST /billing/portal", jsonBodyMw(authMw(http.HandlerFunc(h.Portal))))
	mux.Handle("POST /billing/cleanup-duplicates", jsonBodyMw(authMw(http.HandlerFunc(h.CleanupDuplicates))))
}

// Checkout godoc
// @Summary Start a checkout session for a plan
// @Description Ensures the caller has a customer record, rejects the request when a live subscription already exists, and returns the hosted checkout URL.
// @Tags billing
// @Accept json
// @Produce json
// @Param checkout body dto.CheckoutRequest true "Plan to purchase"
// @Success 200 {object} dto.URLResponse
// @Failure 400 {object} dto.ErrorResponse "invalid_plan, duplicate_same_plan or duplicate_different_plan"
// @Failure 401 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse "not_configured"
// @Failure 503 {object} dto.ErrorResponse "upstream_unavailable"
// @Router /billing/checkout [post]
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req dto.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request payload", Reason: "invalid_body"})
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: service.ErrInvalidPlan.Error(), Reason: service.ReasonInvalidPlan})
		return
	}

	url, err := h.checkoutSvc.CreateCheckoutSession(r.Context(), middleware.UserIDFromContext(r.Context()), model.Plan(req.Plan))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.URLResponse{URL: url})
}

// Webhook godoc
// @Summary Receive a payment processor webhook
// @Description Verifies the Stripe-Signature header against the raw body and reconciles the event into local state.
// @Tags billing
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "Webhook signature"
// @Success 200 {object} dto.WebhookResponse
// @Failure 400 {object} dto.ErrorResponse "invalid_signature"
// @Failure 500 {object} dto.ErrorResponse
// @Router /billing/webhook [post]
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, ok := middleware.RawBodyFromRequest(r)
	if !ok {
		// The route was registered without RawBody.
		h.logger.Error().Msg("Webhook reached without a captured raw body")
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error", Reason: "internal"})
		return
	}

	if err := h.webhookSvc.Handle(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.WebhookResponse{Received: true})
}

// GetSubscription godoc
// @Summary Get the caller's subscription
// @Description Returns the local subscription snapshot, or an inactive one when nothing is on file.
// @Tags billing
// @Produce json
// @Success 200 {object} dto.SubscriptionResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /billing/subscription [get]
func (h *BillingHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.lifecycleSvc.GetSubscription(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

// Cancel godoc
// @Summary Cancel the caller's subscription immediately
// @Tags billing
// @Produce json
// @Success 200 {object} dto.SubscriptionResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse "no_subscription"
// @Failure 503 {object} dto.ErrorResponse "upstream_unavailable"
// @Router /billing/cancel [post]
func (h *BillingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	sub, err := h.lifecycleSvc.Cancel(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

// Reactivate godoc
// @Summary Undo a scheduled cancellation
// @Tags billing
// @Produce json
// @Success 200 {object} dto.SubscriptionResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse "no_subscription"
// @Failure 409 {object} dto.ErrorResponse "not_scheduled_for_cancellation"
// @Router /billing/reactivate [post]
func (h *BillingHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	sub, err := h.lifecycleSvc.Reactivate(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

// Portal godoc
// @Summary Create a billing portal session
// @Tags billing
// @Produce json
// @Success 200 {object} dto.URLResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse "no_customer"
// @Router /billing/portal [post]
func (h *BillingHandler) Portal(w http.ResponseWriter, r *http.Request) {
	url, err := h.lifecycleSvc.CreatePortalSession(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.URLResponse{URL: url})
}

// CleanupDuplicates godoc
// @Summary Cancel duplicate live subscriptions
// @Description Keeps the most recently created live subscription and cancels the rest.
// @Tags billing
// @Produce json
// @Success 200 {object} dto.CleanupResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse "no_customer"
// @Failure 502 {object} dto.ErrorResponse "processor_error"
// @Router /billing/cleanup-duplicates [post]
func (h *BillingHandler) CleanupDuplicates(w http.ResponseWriter, r *http.Request) {
	res, err := h.cleanupSvc.CleanupDuplicates(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.CleanupResponse{
		Found:              res.Found,
		Canceled:           res.Canceled,
		KeptSubscriptionID: res.KeptSubscriptionID,
	})
}

func toSubscriptionResponse(sub *model.Subscription) dto.SubscriptionResponse {
	resp := dto.SubscriptionResponse{
		Status:             string(sub.Status),
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
	}
	if sub.Plan != nil {
		plan := string(*sub.Plan)
		resp.Plan = &plan
	}
	return resp
}
