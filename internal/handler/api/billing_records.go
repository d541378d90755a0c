package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/tally/internal/domain"
	"github.com/dukerupert/tally/internal/handler"
	"github.com/dukerupert/tally/internal/middleware"
	"github.com/dukerupert/tally/internal/router"
)

// IdempotencyKeyHeader carries the caller's mutation key. Every write to a
// billing record must supply one; replays return the first outcome.
const IdempotencyKeyHeader = "Idempotency-Key"

// BillingRecordsHandler serves the billing-record endpoints. All writes go
// through the reconciler so record and account balance stay consistent.
type BillingRecordsHandler struct {
	records  domain.RecordService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewBillingRecordsHandler creates a billing-records handler.
func NewBillingRecordsHandler(records domain.RecordService, logger *slog.Logger) *BillingRecordsHandler {
	return &BillingRecordsHandler{
		records:  records,
		validate: validator.New(),
		logger:   logger,
	}
}

// RegisterRoutes registers the billing-record routes on the router.
func (h *BillingRecordsHandler) RegisterRoutes(r *router.Router) {
	r.Post("/api/accounts/{id}/billing-records", h.Create)
	r.Get("/api/accounts/{id}/billing-records", h.List)
	r.Get("/api/billing-records/{id}", h.Get)
	r.Patch("/api/billing-records/{id}", h.Update)
	r.Delete("/api/billing-records/{id}", h.Delete)
}

type createRecordRequest struct {
	AmountCents *int64  `json:"amount_cents" validate:"required,min=0"`
	BillingDate string  `json:"billing_date" validate:"required"`
	DueDate     *string `json:"due_date,omitempty"`
	Status      *string `json:"status,omitempty" validate:"omitempty,oneof=pending paid overdue cancelled"`
	PaidDate    *string `json:"paid_date,omitempty"`
	PaidCents   *int64  `json:"paid_cents,omitempty" validate:"omitempty,min=0"`
	Description *string `json:"description,omitempty"`
	PeriodStart *string `json:"period_start,omitempty"`
	PeriodEnd   *string `json:"period_end,omitempty"`
}

// Create handles POST /api/accounts/{id}/billing-records.
func (h *BillingRecordsHandler) Create(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLogger(r.Context(), h.logger)

	accountID, err := pathUUID(r, "id")
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	key, err := mutationKey(r)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	var req createRecordRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		handler.ValidationErrorResponse(w, r, err)
		return
	}

	billingDate, err := parseDate(req.BillingDate)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	mutation := domain.RecordMutation{
		Op:          domain.OpCreate,
		AccountID:   accountID,
		MutationKey: key,
		AmountCents: req.AmountCents,
		BillingDate: &billingDate,
		PaidCents:   req.PaidCents,
		Description: req.Description,
	}
	if err := fillMutationDates(&mutation, req.DueDate, req.PaidDate, req.PeriodStart, req.PeriodEnd); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	if req.Status != nil {
		status := domain.RecordStatus(*req.Status)
		mutation.Status = &status
	}

	record, err := h.records.Reconcile(r.Context(), mutation)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	logger.Info("billing record created",
		slog.String("record_id", record.ID.String()),
		slog.String("record_number", record.RecordNumber),
		slog.Int64("amount_cents", record.AmountCents))

	handler.RespondJSON(w, http.StatusCreated, toRecordResponse(record))
}

type updateRecordRequest struct {
	AmountCents *int64  `json:"amount_cents,omitempty" validate:"omitempty,min=0"`
	BillingDate *string `json:"billing_date,omitempty"`
	DueDate     *string `json:"due_date,omitempty"`
	Status      *string `json:"status,omitempty" validate:"omitempty,oneof=pending paid overdue cancelled"`
	PaidDate    *string `json:"paid_date,omitempty"`
	PaidCents   *int64  `json:"paid_cents,omitempty" validate:"omitempty,min=0"`
	Description *string `json:"description,omitempty"`
	PeriodStart *string `json:"period_start,omitempty"`
	PeriodEnd   *string `json:"period_end,omitempty"`
}

// Update handles PATCH /api/billing-records/{id}. Absent fields are left
// unchanged; the account balance absorbs any amount or settlement delta.
func (h *BillingRecordsHandler) Update(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLogger(r.Context(), h.logger)

	recordID, err := pathUUID(r, "id")
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	key, err := mutationKey(r)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	var req updateRecordRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		handler.ValidationErrorResponse(w, r, err)
		return
	}

	mutation := domain.RecordMutation{
		Op:          domain.OpUpdate,
		RecordID:    recordID,
		MutationKey: key,
		AmountCents: req.AmountCents,
		PaidCents:   req.PaidCents,
		Description: req.Description,
	}
	if req.BillingDate != nil {
		billingDate, err := parseDate(*req.BillingDate)
		if err != nil {
			handler.ErrorResponse(w, r, err)
			return
		}
		mutation.BillingDate = &billingDate
	}
	if err := fillMutationDates(&mutation, req.DueDate, req.PaidDate, req.PeriodStart, req.PeriodEnd); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	if req.Status != nil {
		status := domain.RecordStatus(*req.Status)
		mutation.Status = &status
	}

	record, err := h.records.Reconcile(r.Context(), mutation)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	logger.Info("billing record updated",
		slog.String("record_id", record.ID.String()),
		slog.String("status", string(record.Status)))

	handler.RespondJSON(w, http.StatusOK, toRecordResponse(record))
}

// Delete handles DELETE /api/billing-records/{id}.
func (h *BillingRecordsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLogger(r.Context(), h.logger)

	recordID, err := pathUUID(r, "id")
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	key, err := mutationKey(r)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	if _, err := h.records.Reconcile(r.Context(), domain.RecordMutation{
		Op:          domain.OpDelete,
		RecordID:    recordID,
		MutationKey: key,
	}); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	logger.Info("billing record deleted", slog.String("record_id", recordID.String()))

	handler.RespondJSON(w, http.StatusNoContent, nil)
}

// Get handles GET /api/billing-records/{id}.
func (h *BillingRecordsHandler) Get(w http.ResponseWriter, r *http.Request) {
	recordID, err := pathUUID(r, "id")
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	record, err := h.records.GetRecord(r.Context(), recordID)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.RespondJSON(w, http.StatusOK, toRecordResponse(record))
}

// List handles GET /api/accounts/{id}/billing-records.
func (h *BillingRecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathUUID(r, "id")
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	limit := queryInt32(r, "limit", 50)
	offset := queryInt32(r, "offset", 0)

	records, err := h.records.ListRecordsForAccount(r.Context(), accountID, limit, offset)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	out := make([]recordResponse, len(records))
	for i := range records {
		out[i] = toRecordResponse(&records[i])
	}

	handler.RespondJSON(w, http.StatusOK, map[string]any{
		"billing_records": out,
		"count":           len(out),
	})
}

// mutationKey extracts the Idempotency-Key header.
func mutationKey(r *http.Request) (string, error) {
	key := r.Header.Get(IdempotencyKeyHeader)
	if key == "" {
		return "", domain.Errorf(domain.EINVALID, "", "%s header is required", IdempotencyKeyHeader)
	}
	return key, nil
}

// fillMutationDates parses the optional date fields shared by create and update.
func fillMutationDates(m *domain.RecordMutation, dueDate, paidDate, periodStart, periodEnd *string) error {
	var err error
	if m.DueDate, err = parseDatePtr(dueDate); err != nil {
		return err
	}
	if m.PaidDate, err = parseDatePtr(paidDate); err != nil {
		return err
	}
	if m.PeriodStart, err = parseDatePtr(periodStart); err != nil {
		return err
	}
	if m.PeriodEnd, err = parseDatePtr(periodEnd); err != nil {
		return err
	}
	return nil
}

func queryInt32(r *http.Request, name string, fallback int32) int32 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || n < 0 {
		return fallback
	}
	return int32(n)
}
