package api

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dukerupert/tally/internal/domain"
	"github.com/dukerupert/tally/internal/handler"
	"github.com/dukerupert/tally/internal/middleware"
	"github.com/dukerupert/tally/internal/router"
)

// AccountsHandler serves the account endpoints.
type AccountsHandler struct {
	accounts domain.AccountService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewAccountsHandler creates an accounts handler.
func NewAccountsHandler(accounts domain.AccountService, logger *slog.Logger) *AccountsHandler {
	return &AccountsHandler{
		accounts: accounts,
		validate: validator.New(),
		logger:   logger,
	}
}

// RegisterRoutes registers the account routes on the router.
func (h *AccountsHandler) RegisterRoutes(r *router.Router) {
	r.Post("/api/accounts", h.Create)
	r.Get("/api/accounts", h.List)
	r.Get("/api/accounts/{id}", h.Get)
	r.Get("/api/accounts/number/{number}", h.GetByNumber)
	r.Patch("/api/accounts/{id}", h.UpdateBillingInfo)
	r.Post("/api/accounts/{id}/refresh-standing", h.RefreshStanding)
}

type createAccountRequest struct {
	Email             string  `json:"email" validate:"required,email"`
	Name              string  `json:"name" validate:"required"`
	BillingDayOfMonth int     `json:"billing_day_of_month" validate:"required,min=1,max=31"`
	Cadence           string  `json:"cadence" validate:"required,oneof=weekly biweekly monthly quarterly annually"`
	ServiceStartDate  *string `json:"service_start_date,omitempty"`
	PaymentMethod     string  `json:"payment_method,omitempty"`
	GracePeriodDays   *int    `json:"grace_period_days,omitempty" validate:"omitempty,min=0"`
}

// Create handles POST /api/accounts.
func (h *AccountsHandler) Create(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLogger(r.Context(), h.logger)

	var req createAccountRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		handler.ValidationErrorResponse(w, r, err)
		return
	}

	startDate, err := parseDatePtr(req.ServiceStartDate)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	params := domain.CreateAccountParams{
		Email:             req.Email,
		Name:              req.Name,
		BillingDayOfMonth: req.BillingDayOfMonth,
		Cadence:           req.Cadence,
		ServiceStartDate:  startDate,
		PaymentMethod:     req.PaymentMethod,
	}
	if req.GracePeriodDays != nil {
		params.GracePeriodDays = *req.GracePeriodDays
	}

	account, err := h.accounts.CreateAccount(r.Context(), params)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	logger.Info("account created",
		slog.String("account_id", account.ID.String()),
		slog.String("account_number", account.AccountNumber))

	handler.RespondJSON(w, http.StatusCreated, toAccountResponse(account))
}

// List handles GET /api/accounts. With an email query parameter it looks up
// the single matching account; otherwise it returns a page ordered by
// account number.
func (h *AccountsHandler) List(w http.ResponseWriter, r *http.Request) {
	if email := r.URL.Query().Get("email"); email != "" {
		account, err := h.accounts.GetAccountByEmail(r.Context(), email)
		if err != nil {
			handler.ErrorResponse(w, r, err)
			return
		}
		handler.RespondJSON(w, http.StatusOK, map[string]any{
			"accounts": []accountResponse{toAccountResponse(account)},
			"count":    1,
		})
		return
	}

	limit := queryInt32(r, "limit", 50)
	offset := queryInt32(r, "offset", 0)

	accounts, err := h.accounts.ListAccounts(r.Context(), limit, offset)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	out := make([]accountResponse, 0, len(accounts))
	for i := range accounts {
		out = append(out, toAccountResponse(&accounts[i]))
	}
	handler.RespondJSON(w, http.StatusOK, map[string]any{
		"accounts": out,
		"count":    len(out),
	})
}

// Get handles GET /api/accounts/{id}.
func (h *AccountsHandler) Get(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathUUID(r, "id")
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	account, err := h.accounts.GetAccount(r.Context(), accountID)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.RespondJSON(w, http.StatusOK, toAccountResponse(account))
}

// GetByNumber handles GET /api/accounts/number/{number}.
func (h *AccountsHandler) GetByNumber(w http.ResponseWriter, r *http.Request) {
	number := r.PathValue("number")
	if number == "" {
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "", "Account number is required"))
		return
	}

	account, err := h.accounts.GetAccountByNumber(r.Context(), number)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.RespondJSON(w, http.StatusOK, toAccountResponse(account))
}

type updateBillingInfoRequest struct {
	BillingDayOfMonth *int    `json:"billing_day_of_month,omitempty" validate:"omitempty,min=1,max=31"`
	Cadence           *string `json:"cadence,omitempty" validate:"omitempty,oneof=weekly biweekly monthly quarterly annually"`
	ServiceStartDate  *string `json:"service_start_date,omitempty"`
	GracePeriodDays   *int    `json:"grace_period_days,omitempty" validate:"omitempty,min=0"`
	PaymentMethod     *string `json:"payment_method,omitempty"`
}

// UpdateBillingInfo handles PATCH /api/accounts/{id}. Absent fields are left
// unchanged.
func (h *AccountsHandler) UpdateBillingInfo(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLogger(r.Context(), h.logger)

	accountID, err := pathUUID(r, "id")
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	var req updateBillingInfoRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		handler.ValidationErrorResponse(w, r, err)
		return
	}

	startDate, err := parseDatePtr(req.ServiceStartDate)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	account, err := h.accounts.UpdateBillingInfo(r.Context(), domain.UpdateBillingInfoParams{
		AccountID:         accountID,
		BillingDayOfMonth: req.BillingDayOfMonth,
		Cadence:           req.Cadence,
		ServiceStartDate:  startDate,
		GracePeriodDays:   req.GracePeriodDays,
		PaymentMethod:     req.PaymentMethod,
	})
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	logger.Info("account billing info updated",
		slog.String("account_id", account.ID.String()))

	handler.RespondJSON(w, http.StatusOK, toAccountResponse(account))
}

// RefreshStanding handles POST /api/accounts/{id}/refresh-standing.
func (h *AccountsHandler) RefreshStanding(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathUUID(r, "id")
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	account, err := h.accounts.RefreshStanding(r.Context(), accountID)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.RespondJSON(w, http.StatusOK, toAccountResponse(account))
}

// pathUUID parses a UUID path parameter.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, domain.Errorf(domain.EINVALID, "", "Invalid %s in URL path", name)
	}
	return id, nil
}
