package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/budget-tracker/internal/api/middleware"
	"github.com/dvloznov/budget-tracker/internal/categorize"
	"github.com/dvloznov/budget-tracker/internal/domain"
	"github.com/dvloznov/budget-tracker/internal/jobs"
	"github.com/dvloznov/budget-tracker/internal/ledger"
	"github.com/dvloznov/budget-tracker/internal/projection"
	"github.com/dvloznov/budget-tracker/internal/settlement"
	"github.com/dvloznov/budget-tracker/internal/store"
)

// ownerID resolves the acting owner from the request. Clients send it in the
// X-Owner-ID header; a query parameter works too for curl convenience.
func ownerID(r *http.Request) string {
	if id := r.Header.Get("X-Owner-ID"); id != "" {
		return id
	}
	return r.URL.Query().Get("owner_id")
}

// parseDate parses an ISO date query parameter, falling back to def when absent.
func parseDate(r *http.Request, key string, def civil.Date) (civil.Date, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return civil.ParseDate(raw)
}

func today() civil.Date {
	return civil.DateOf(time.Now().UTC())
}

// AccountsHandler handles account-related endpoints.
type AccountsHandler struct {
	store store.Store
	calc  *projection.Calculator
	log   zerolog.Logger
}

// NewAccountsHandler creates a new accounts handler.
func NewAccountsHandler(s store.Store, calc *projection.Calculator, log zerolog.Logger) *AccountsHandler {
	return &AccountsHandler{
		store: s,
		calc:  calc,
		log:   log,
	}
}

// ListAccounts handles GET /api/accounts
func (h *AccountsHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	owner := ownerID(r)
	if owner == "" {
		middleware.WriteError(w, http.StatusBadRequest, "X-Owner-ID header is required")
		return
	}

	accounts, err := h.store.ListAccounts(ctx, owner)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list accounts")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list accounts")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

// CreateAccount handles POST /api/accounts
func (h *AccountsHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	owner := ownerID(r)
	if owner == "" {
		middleware.WriteError(w, http.StatusBadRequest, "X-Owner-ID header is required")
		return
	}

	var req struct {
		Name     string `json:"name"`
		Currency string `json:"currency"`
		Balance  string `json:"balance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Name is required")
		return
	}

	balance := decimal.Zero
	if req.Balance != "" {
		var err error
		balance, err = decimal.NewFromString(req.Balance)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid balance")
			return
		}
	}

	account, err := h.store.CreateAccount(ctx, &domain.Account{
		OwnerID:  owner,
		Name:     req.Name,
		Currency: req.Currency,
		Balance:  balance,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create account")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to create account")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, account)
}

// GetProjection handles GET /api/accounts/{id}/projection
func (h *AccountsHandler) GetProjection(w http.ResponseWriter, r *http.Request, accountID string) {
	ctx := r.Context()

	owner := ownerID(r)
	if owner == "" {
		middleware.WriteError(w, http.StatusBadRequest, "X-Owner-ID header is required")
		return
	}

	now := today()

	settings, err := h.store.GetSettings(ctx, owner)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load settings")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}

	asOf, err := parseDate(r, "as_of", now.AddDays(settings.ProjectionDays))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid as_of date")
		return
	}

	balance, err := h.calc.ProjectAccount(ctx, owner, accountID, now, asOf)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRange) {
			middleware.WriteError(w, http.StatusBadRequest, "as_of must not be before today")
			return
		}
		if errors.Is(err, domain.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Account not found")
			return
		}
		h.log.Error().Err(err).Str("account_id", accountID).Msg("Failed to project balance")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to project balance")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"account_id":        accountID,
		"as_of":             asOf.String(),
		"projected_balance": balance,
	})
}

// TransactionsHandler handles transaction-related endpoints.
type TransactionsHandler struct {
	store  store.Store
	ledger *ledger.Service
	log    zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(s store.Store, svc *ledger.Service, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		store:  s,
		ledger: svc,
		log:    log,
	}
}

// ListTransactions handles GET /api/transactions
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	owner := ownerID(r)
	if owner == "" {
		middleware.WriteError(w, http.StatusBadRequest, "X-Owner-ID header is required")
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil {
			limit = n
		}
	}

	transactions, err := h.store.ListTransactions(ctx, owner, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list transactions")
		return
	}

	// Return array directly for frontend compatibility
	if transactions == nil {
		transactions = []*domain.Transaction{}
	}
	middleware.WriteJSON(w, http.StatusOK, transactions)
}

// CreateTransaction handles POST /api/transactions
func (h *TransactionsHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	owner := ownerID(r)
	if owner == "" {
		middleware.WriteError(w, http.StatusBadRequest, "X-Owner-ID header is required")
		return
	}

	var req struct {
		Description string `json:"description"`
		Amount      string `json:"amount"`
		Kind        string `json:"kind"`
		AccountID   string `json:"account_id"`
		CategoryID  string `json:"category_id"`
		Date        string `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.AccountID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "account_id is required")
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid amount")
		return
	}

	now := today()
	date := now
	if req.Date != "" {
		date, err = civil.ParseDate(req.Date)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid date")
			return
		}
	}

	tx, err := h.ledger.CreateTransaction(ctx, ledger.CreateInput{
		OwnerID:     owner,
		Description: req.Description,
		Amount:      amount,
		Kind:        domain.Kind(req.Kind),
		AccountID:   req.AccountID,
		CategoryID:  req.CategoryID,
		Date:        date,
		Today:       now,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create transaction")
		middleware.WriteError(w, http.StatusBadRequest, "Failed to create transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, tx)
}

// CreateTransfer handles POST /api/transfers
func (h *TransactionsHandler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	owner := ownerID(r)
	if owner == "" {
		middleware.WriteError(w, http.StatusBadRequest, "X-Owner-ID header is required")
		return
	}

	var req struct {
		SourceID      string `json:"source_account_id"`
		DestinationID string `json:"destination_account_id"`
		Amount        string `json:"amount"`
		Description   string `json:"description"`
		CategoryID    string `json:"category_id"`
		Date          string `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.SourceID == "" || req.DestinationID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "source_account_id and destination_account_id are required")
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid amount")
		return
	}

	now := today()
	date := now
	if req.Date != "" {
		date, err = civil.ParseDate(req.Date)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid date")
			return
		}
	}

	out, in, err := h.ledger.CreateTransfer(ctx, ledger.TransferInput{
		OwnerID:       owner,
		SourceID:      req.SourceID,
		DestinationID: req.DestinationID,
		Amount:        amount,
		Description:   req.Description,
		CategoryID:    req.CategoryID,
		Date:          date,
		Today:         now,
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Account not found")
			return
		}
		h.log.Error().Err(err).Msg("Failed to create transfer")
		middleware.WriteError(w, http.StatusBadRequest, "Failed to create transfer")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"outgoing": out,
		"incoming": in,
	})
}

// DeleteTransaction handles DELETE /api/transactions/{id}
func (h *TransactionsHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request, transactionID string) {
	ctx := r.Context()

	if err := h.ledger.DeleteTransaction(ctx, transactionID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
			return
		}
		h.log.Error().Err(err).Str("transaction_id", transactionID).Msg("Failed to delete transaction")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to delete transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"transaction_id": transactionID,
		"status":         "deleted",
	})
}

// RecurringHandler handles recurring item endpoints.
type RecurringHandler struct {
	store store.Store
	log   zerolog.Logger
}

// NewRecurringHandler creates a new recurring items handler.
func NewRecurringHandler(s store.Store, log zerolog.Logger) *RecurringHandler {
	return &RecurringHandler{
		store: s,
		log:   log,
	}
}

// ListRecurring handles GET /api/recurring
func (h *RecurringHandler) ListRecurring(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	owner := ownerID(r)
	if owner == "" {
		middleware.WriteError(w, http.StatusBadRequest, "X-Owner-ID header is required")
		return
	}

	items, err := h.store.ListRecurringItems(ctx, owner)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list recurring items")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list recurring items")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"recurring_items": items,
		"count":           len(items),
	})
}

// CreateRecurring handles POST /api/recurring
func (h *RecurringHandler) CreateRecurring(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	owner := ownerID(r)
	if owner == "" {
		middleware.WriteError(w, http.StatusBadRequest, "X-Owner-ID header is required")
		return
	}

	var req struct {
		Name        string `json:"name"`
		Amount      string `json:"amount"`
		Kind        string `json:"kind"`
		Frequency   string `json:"frequency"`
		DayOfMonth  int    `json:"day_of_month"`
		DayOfWeek   int    `json:"day_of_week"`
		AccountID   string `json:"account_id"`
		ToAccountID string `json:"to_account_id"`
		CategoryID  string `json:"category_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid amount")
		return
	}

	item := &domain.RecurringItem{
		OwnerID:     owner,
		Name:        req.Name,
		Amount:      amount,
		Kind:        domain.Kind(req.Kind),
		Frequency:   domain.Frequency(req.Frequency),
		DayOfMonth:  req.DayOfMonth,
		DayOfWeek:   req.DayOfWeek,
		AccountID:   req.AccountID,
		ToAccountID: req.ToAccountID,
		CategoryID:  req.CategoryID,
		IsActive:    true,
	}
	if err := item.Validate(); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.store.CreateRecurringItem(ctx, item)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create recurring item")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to create recurring item")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, created)
}

// CategoriesHandler handles category-related endpoints.
type CategoriesHandler struct {
	store     store.Store
	suggester *categorize.Suggester
	log       zerolog.Logger
}

// NewCategoriesHandler creates a new categories handler. The suggester may be
// nil, in which case the suggest endpoint reports unavailability.
func NewCategoriesHandler(s store.Store, suggester *categorize.Suggester, log zerolog.Logger) *CategoriesHandler {
	return &CategoriesHandler{
		store:     s,
		suggester: suggester,
		log:       log,
	}
}

// ListCategories handles GET /api/categories
func (h *CategoriesHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	owner := ownerID(r)
	if owner == "" {
		middleware.WriteError(w, http.StatusBadRequest, "X-Owner-ID header is required")
		return
	}

	categories, err := h.store.ListCategories(ctx, owner)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list categories")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list categories")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": categories,
		"count":      len(categories),
	})
}

// CreateCategory handles POST /api/categories
func (h *CategoriesHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	owner := ownerID(r)
	if owner == "" {
		middleware.WriteError(w, http.StatusBadRequest, "X-Owner-ID header is required")
		return
	}

	var req struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Name is required")
		return
	}

	category, err := h.store.CreateCategory(ctx, &domain.Category{
		OwnerID: owner,
		Name:    req.Name,
		Color:   req.Color,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create category")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to create category")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, category)
}

// SuggestCategory handles POST /api/categories/suggest
func (h *CategoriesHandler) SuggestCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	owner := ownerID(r)
	if owner == "" {
		middleware.WriteError(w, http.StatusBadRequest, "X-Owner-ID header is required")
		return
	}
	if h.suggester == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Category suggestion is not configured")
		return
	}

	var req struct {
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Description == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Description is required")
		return
	}

	categories, err := h.store.ListCategories(ctx, owner)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list categories")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list categories")
		return
	}

	name, err := h.suggester.Suggest(ctx, req.Description, categories)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to suggest category")
		middleware.WriteError(w, http.StatusBadGateway, "Failed to suggest category")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"category": name,
	})
}

// SettlementHandler handles settlement endpoints.
type SettlementHandler struct {
	processor *settlement.Processor
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewSettlementHandler creates a new settlement handler.
func NewSettlementHandler(processor *settlement.Processor, publisher jobs.Publisher, log zerolog.Logger) *SettlementHandler {
	return &SettlementHandler{
		processor: processor,
		publisher: publisher,
		log:       log,
	}
}

// RunSettlement handles POST /api/settle. It runs the daily pass inline and
// returns the summary; re-running on an already settled day is a cheap no-op.
func (h *SettlementHandler) RunSettlement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	owner := ownerID(r)
	if owner == "" {
		middleware.WriteError(w, http.StatusBadRequest, "X-Owner-ID header is required")
		return
	}

	day, err := parseDate(r, "date", today())
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid date")
		return
	}

	summary, err := h.processor.Run(ctx, owner, day)
	if err != nil {
		h.log.Error().Err(err).Str("owner_id", owner).Msg("Settlement run failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Settlement run failed")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, summary)
}

// EnqueueSettlement handles POST /api/settle/async
func (h *SettlementHandler) EnqueueSettlement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	owner := ownerID(r)
	if owner == "" {
		middleware.WriteError(w, http.StatusBadRequest, "X-Owner-ID header is required")
		return
	}

	day, err := parseDate(r, "date", today())
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid date")
		return
	}

	job := &jobs.SettleOwnerJob{
		OwnerID: owner,
		RunDate: day,
	}
	if err := h.publisher.PublishSettleOwner(ctx, job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue settlement job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue settlement job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("owner_id", owner).Msg("Settlement job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":   job.JobID,
		"owner_id": owner,
		"status":   string(job.Status),
	})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
		OwnerID: ownerID(r),
		Status:  jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
