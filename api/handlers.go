/*
handlers.go - HTTP API handlers for the payment-schedule engine

PURPOSE:
  Exposes the schedule service via REST API. Handles HTTP request/response,
  JSON serialization, input validation, and delegates to schedule.Service.

ENDPOINTS:
  Templates:
    GET    /api/templates                   List templates (?agency_id=)
    POST   /api/templates                   Create/replace a template (factory JSON)
    GET    /api/templates/{id}              Get template
    POST   /api/templates/{id}/apply        Resolve, validate and persist for a booking
    POST   /api/templates/{id}/preview      Resolve and validate without persisting
    GET    /api/presets                     Built-in TICO-compliant templates

  Schedules:
    POST   /api/schedules                   Calculator-based schedule
    GET    /api/schedules/{activityPricingId}
    DELETE /api/schedules/{activityPricingId}
    GET    /api/schedules/{activityPricingId}/audit

  Items:
    POST   /api/items/{id}/lock
    POST   /api/items/{id}/unlock           Reason of at least 10 characters
    POST   /api/items/{id}/payments         Record a payment against an item
    GET    /api/items/upcoming?from=&to=    Open items due in a window

  Validation:
    POST   /api/validate                    Run the TICO rules over given items

REQUEST FLOW:
  1. Decode JSON (goccy/go-json)
  2. Validate DTO (go-playground/validator)
  3. Call schedule.Service
  4. Serialize response
  5. Map errors to status codes

ERROR HANDLING:
  - 400: Malformed JSON, DTO validation, schedule.ErrInvalidInput,
         partial payment on a schedule that disallows it
  - 404: Unknown template, schedule or item
  - 409: Locked schedule/item, concurrent apply
  - 422: Rule violations; body is a ValidationResultDTO
  - 500: Everything else, including unresolved due dates (a bug)

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tailfire/payment-engine/factory"
	"github.com/tailfire/payment-engine/schedule"
	"github.com/tailfire/payment-engine/tico"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service         *schedule.Service
	TemplateFactory *factory.TemplateFactory
	Log             *zap.Logger

	validate *validator.Validate
}

// NewHandler creates a new handler over the given service.
func NewHandler(svc *schedule.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Service:         svc,
		TemplateFactory: factory.NewTemplateFactory(),
		Log:             logger,
		validate:        newValidator(),
	}
}

// =============================================================================
// TEMPLATE HANDLERS
// =============================================================================

// ListTemplates returns the templates of an agency, or all when unfiltered.
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.Service.ListTemplates(r.Context(), schedule.AgencyID(r.URL.Query().Get("agency_id")))
	if err != nil {
		h.writeServiceError(w, r, "Failed to list templates", err)
		return
	}

	dtos := make([]TemplateDTO, len(templates))
	for i, t := range templates {
		dtos[i] = toTemplateDTO(h.TemplateFactory, t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateTemplate stores a template given as factory JSON. Saving an existing
// ID replaces it and bumps its version.
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req factory.TemplateJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	tmpl, err := h.TemplateFactory.FromJSON(req)
	if err != nil {
		h.writeServiceError(w, r, "Invalid template", err)
		return
	}

	saved, err := h.Service.SaveTemplate(r.Context(), tmpl)
	if err != nil {
		h.writeServiceError(w, r, "Failed to save template", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTemplateDTO(h.TemplateFactory, saved))
}

// GetTemplate returns a single template.
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, err := h.Service.GetTemplate(r.Context(), schedule.TemplateID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, r, "Failed to get template", err)
		return
	}
	writeJSON(w, http.StatusOK, toTemplateDTO(h.TemplateFactory, *tmpl))
}

// ApplyTemplate resolves a template for one booking and persists it when
// every rule passes. Rule violations return 422 and write nothing.
func (h *Handler) ApplyTemplate(w http.ResponseWriter, r *http.Request) {
	var req ApplyTemplateRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	booking, departure, ok := parseApplyDates(w, req)
	if !ok {
		return
	}

	out, err := h.Service.ApplyTemplate(r.Context(), schedule.ApplyTemplateRequest{
		TemplateID:           schedule.TemplateID(chi.URLParam(r, "id")),
		ActivityPricingID:    req.ActivityPricingID,
		TotalCents:           schedule.Cents(req.TotalAmountCents),
		Currency:             req.Currency,
		BookingDate:          booking,
		DepartureDate:        departure,
		AllowPartialPayments: req.AllowPartialPayments,
		ActorID:              req.ActorID,
	})
	if err != nil {
		h.writeServiceError(w, r, "Failed to apply template", err)
		return
	}
	if out.Schedule == nil {
		writeJSON(w, http.StatusUnprocessableEntity, toValidationDTO(out.Validation))
		return
	}

	cfg := toScheduleDTO(out.Schedule)
	writeJSON(w, http.StatusCreated, ApplyTemplateResponse{
		Config:          cfg,
		Items:           cfg.Items,
		TemplateID:      string(out.Schedule.TemplateID),
		TemplateVersion: out.Schedule.TemplateVersion,
		Validation:      toValidationDTO(out.Validation),
	})
}

// PreviewTemplate resolves and validates without persisting. Rule violations
// are part of a 200 response here: the caller asked what would happen.
func (h *Handler) PreviewTemplate(w http.ResponseWriter, r *http.Request) {
	req := ApplyTemplateRequest{Preview: true}
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	booking, departure, ok := parseApplyDates(w, req)
	if !ok {
		return
	}

	items, result, err := h.Service.PreviewTemplate(r.Context(), schedule.TemplateID(chi.URLParam(r, "id")), schedule.ApplyInput{
		TotalCents:    schedule.Cents(req.TotalAmountCents),
		Currency:      req.Currency,
		BookingDate:   booking,
		DepartureDate: departure,
	})
	if err != nil {
		h.writeServiceError(w, r, "Failed to preview template", err)
		return
	}
	writeJSON(w, http.StatusOK, PreviewResponse{
		Items:      toItemDTOs(items),
		TotalCents: int64(schedule.SumCents(items)),
		Validation: toValidationDTO(result),
	})
}

// ListPresets returns the built-in templates.
func (h *Handler) ListPresets(w http.ResponseWriter, r *http.Request) {
	presets := tico.Presets()
	dtos := make([]PresetDTO, 0, len(presets))
	for _, p := range presets {
		tmpl, err := h.TemplateFactory.ParseTemplate(p.JSON)
		if err != nil {
			h.Log.Error("invalid built-in preset", zap.String("key", p.Key), zap.Error(err))
			continue
		}
		dtos = append(dtos, PresetDTO{Key: p.Key, Name: p.Name, Template: toTemplateDTO(h.TemplateFactory, tmpl)})
	}
	writeJSON(w, http.StatusOK, dtos)
}

func parseApplyDates(w http.ResponseWriter, req ApplyTemplateRequest) (booking, departure *schedule.Date, ok bool) {
	booking, err := parseOptionalDate(req.BookingDate)
	if err != nil {
		writeFieldError(w, "booking_date", err)
		return nil, nil, false
	}
	departure, err = parseOptionalDate(req.DepartureDate)
	if err != nil {
		writeFieldError(w, "departure_date", err)
		return nil, nil, false
	}
	return booking, departure, true
}

// =============================================================================
// SCHEDULE HANDLERS
// =============================================================================

// CreateSchedule builds a full, deposit, installment or guarantee schedule
// from the calculator.
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	in := schedule.CreateScheduleRequest{
		AgencyID:             schedule.AgencyID(req.AgencyID),
		ActivityPricingID:    req.ActivityPricingID,
		Type:                 schedule.ScheduleType(req.ScheduleType),
		TotalCents:           schedule.Cents(req.TotalAmountCents),
		Currency:             req.Currency,
		InstallmentCount:     req.InstallmentCount,
		AllowPartialPayments: req.AllowPartialPayments,
		ActorID:              req.ActorID,
	}

	var err error
	if in.BookingDate, err = parseOptionalDate(req.BookingDate); err != nil {
		writeFieldError(w, "booking_date", err)
		return
	}
	if in.DepartureDate, err = parseOptionalDate(req.DepartureDate); err != nil {
		writeFieldError(w, "departure_date", err)
		return
	}
	for _, s := range req.DueDates {
		d, err := schedule.ParseDate(s)
		if err != nil {
			writeFieldError(w, "due_dates", err)
			return
		}
		in.DueDates = append(in.DueDates, d)
	}
	if req.DepositType != "" {
		value, err := decimal.NewFromString(req.DepositValue)
		if err != nil {
			writeFieldError(w, "deposit_value", err)
			return
		}
		in.Deposit = &schedule.DepositParams{Type: schedule.DepositType(req.DepositType), Value: value}
	}
	if g := req.Guarantee; g != nil {
		in.Guarantee, err = schedule.NewCreditCardGuarantee(
			g.CardNumber, g.CardBrand, g.CardholderName, g.AuthorizationCode,
			schedule.Cents(g.AuthorizedCents), h.Service.Clock.Now(),
		)
		if err != nil {
			h.writeServiceError(w, r, "Invalid guarantee", err)
			return
		}
	}

	out, err := h.Service.CreateSchedule(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, "Failed to create schedule", err)
		return
	}
	if out.Schedule == nil {
		writeJSON(w, http.StatusUnprocessableEntity, toValidationDTO(out.Validation))
		return
	}
	writeJSON(w, http.StatusCreated, toScheduleDTO(out.Schedule))
}

// GetSchedule returns the schedule of an activity.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Service.GetSchedule(r.Context(), chi.URLParam(r, "activityPricingId"))
	if err != nil {
		h.writeServiceError(w, r, "Failed to get schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(cfg))
}

// DeleteSchedule removes a schedule with no locked or paid items.
func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	err := h.Service.DeleteSchedule(r.Context(), chi.URLParam(r, "activityPricingId"), r.URL.Query().Get("actor_id"))
	if err != nil {
		h.writeServiceError(w, r, "Failed to delete schedule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetAuditTrail returns the audit log of an activity's schedule.
func (h *Handler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Service.AuditTrail(r.Context(), chi.URLParam(r, "activityPricingId"))
	if err != nil {
		h.writeServiceError(w, r, "Failed to get audit trail", err)
		return
	}
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ITEM HANDLERS
// =============================================================================

// LockItem freezes an item against re-resolution.
func (h *Handler) LockItem(w http.ResponseWriter, r *http.Request) {
	var req LockItemRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	it, err := h.Service.LockItem(r.Context(), schedule.ItemID(chi.URLParam(r, "id")), req.ActorID, req.Reason)
	if err != nil {
		h.writeServiceError(w, r, "Failed to lock item", err)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTO(*it))
}

// UnlockItem requires a justification of at least 10 characters.
func (h *Handler) UnlockItem(w http.ResponseWriter, r *http.Request) {
	var req UnlockItemRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	it, err := h.Service.UnlockItem(r.Context(), schedule.ItemID(chi.URLParam(r, "id")), req.ActorID, req.Reason)
	if err != nil {
		h.writeServiceError(w, r, "Failed to unlock item", err)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTO(*it))
}

// RecordPayment posts a payment against an item.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	it, err := h.Service.RecordPayment(r.Context(), schedule.ItemID(chi.URLParam(r, "id")), schedule.Cents(req.AmountCents), req.ActorID)
	if err != nil {
		h.writeServiceError(w, r, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTO(*it))
}

// ListUpcomingItems returns open items due in [from, to]; both default to today.
func (h *Handler) ListUpcomingItems(w http.ResponseWriter, r *http.Request) {
	today := schedule.Today(h.Service.Clock)
	from, to := today, today

	if s := r.URL.Query().Get("from"); s != "" {
		d, err := schedule.ParseDate(s)
		if err != nil {
			writeFieldError(w, "from", err)
			return
		}
		from = d
	}
	if s := r.URL.Query().Get("to"); s != "" {
		d, err := schedule.ParseDate(s)
		if err != nil {
			writeFieldError(w, "to", err)
			return
		}
		to = d
	}

	items, err := h.Service.UpcomingItems(r.Context(), from, to)
	if err != nil {
		h.writeServiceError(w, r, "Failed to list items", err)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTOs(items))
}

// =============================================================================
// VALIDATION HANDLER
// =============================================================================

// ValidateItems runs the rules over caller-supplied items. Always 200: the
// result is the payload.
func (h *Handler) ValidateItems(w http.ResponseWriter, r *http.Request) {
	var req ValidateItemsRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	departure, err := schedule.ParseDate(req.DepartureDate)
	if err != nil {
		writeFieldError(w, "departure_date", err)
		return
	}

	items := make([]schedule.ExpectedPaymentItem, len(req.Items))
	for i, in := range req.Items {
		due, err := schedule.ParseDate(in.DueDate)
		if err != nil {
			writeFieldError(w, "items.due_date", err)
			return
		}
		seq := in.Sequence
		if seq == 0 {
			seq = i + 1
		}
		kind := schedule.ItemKind(in.Kind)
		if kind == "" {
			kind = schedule.KindInstallment
		}
		items[i] = schedule.ExpectedPaymentItem{
			Kind:          kind,
			AmountCents:   schedule.Cents(in.AmountCents),
			DueDate:       &due,
			SequenceOrder: seq,
		}
	}

	result, err := h.Service.ValidateItems(items, schedule.Cents(req.TotalAmountCents), departure)
	if err != nil {
		h.writeServiceError(w, r, "Failed to validate items", err)
		return
	}
	writeJSON(w, http.StatusOK, toValidationDTO(result))
}

// =============================================================================
// HELPERS
// =============================================================================

// decodeAndValidate decodes the body into dst and runs DTO validation,
// writing a 400 on failure.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "Validation failed",
				Details: err.Error(),
				Field:   verrs[0].Field(),
			})
			return false
		}
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// writeServiceError maps schedule errors to HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	var in *schedule.InputError
	switch {
	case errors.As(err, &in):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg, Details: in.Error(), Field: in.Field})
	case schedule.IsClientError(err):
		writeError(w, http.StatusBadRequest, msg, err)
	case schedule.IsNotFound(err):
		writeError(w, http.StatusNotFound, msg, err)
	case schedule.IsConflict(err):
		writeError(w, http.StatusConflict, msg, err)
	default:
		h.Log.Error(msg,
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, msg, nil)
	}
}

func writeFieldError(w http.ResponseWriter, field string, err error) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid " + field, Details: err.Error(), Field: field})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
