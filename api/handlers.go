/*
handlers.go - HTTP API handlers for the product engine

PURPOSE:
  Exposes the product engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the host runner.

ENDPOINTS:
  Products:
    GET    /api/products                     List registered products
    GET    /api/products/{id}                Product manifest summary

  Definitions:
    GET    /api/definitions                  List product definitions
    POST   /api/definitions                  Create from JSON or YAML body
    GET    /api/definitions/{id}             Get one definition

  Accounts:
    GET    /api/accounts                     List accounts
    POST   /api/accounts                     Open an account
    GET    /api/accounts/{id}                Get account
    POST   /api/accounts/{id}/close          Close account
    GET    /api/accounts/{id}/balances       Balances (?at= for a value date)
    GET    /api/accounts/{id}/postings       Posting history
    POST   /api/accounts/{id}/postings       Submit a posting batch
    POST   /api/accounts/{id}/events         Run a scheduled event now
    GET    /api/accounts/{id}/schedules      Event schedules
    POST   /api/accounts/{id}/parameters     Change parameters
    POST   /api/accounts/{id}/flags          Set a flag
    GET    /api/accounts/{id}/derived        Derived values (?at=)
    GET    /api/accounts/{id}/audit          Audit trail

  Admin:
    POST   /api/admin/schedules/run          Run every due schedule

  Scenarios:
    GET    /api/scenarios                    List demo scenarios
    POST   /api/scenarios/load               Load a demo scenario

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Runner: Hook invocation and directive application
  - Store: Read side (accounts, definitions, postings, schedules, audit)
  - Factory: JSON/YAML to ProductDefinition conversion

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed input
  - 404: Product, definition or account not found
  - 409: Duplicate idempotency key, account exists, account closed
  - 422: Product rejected the operation, or configuration error
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/product-engine/factory"
	"github.com/warp/product-engine/generic"
	"github.com/warp/product-engine/host"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Runner  *host.Runner
	Store   generic.Store
	Factory *factory.DefinitionFactory
	Logger  *zap.Logger

	// Now is the clock used when a request omits a time.
	Now func() time.Time

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a handler over the runner's store.
func NewHandler(runner *host.Runner, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Runner:  runner,
		Store:   runner.Store(),
		Factory: factory.NewDefinitionFactory(),
		Logger:  logger,
		Now:     time.Now,
	}
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

// ListProducts returns every registered product.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products := generic.ListProducts()
	dtos := make([]ProductDTO, len(products))
	for i, p := range products {
		dtos[i] = toProductDTO(p)
	}
	sort.Slice(dtos, func(i, j int) bool { return dtos[i].ID < dtos[j].ID })
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := generic.LookupProduct(generic.ProductID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, "Product not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(p))
}

// =============================================================================
// DEFINITION HANDLERS
// =============================================================================

func (h *Handler) ListDefinitions(w http.ResponseWriter, r *http.Request) {
	defs, err := h.Store.ListDefinitions(r.Context())
	if err != nil {
		h.fail(w, "Failed to list definitions", err)
		return
	}
	dtos := make([]DefinitionDTO, len(defs))
	for i, def := range defs {
		dtos[i] = toDefinitionDTO(h.Factory, def)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateDefinition validates and stores a definition. The body is YAML
// when the content type says so, JSON otherwise.
func (h *Handler) CreateDefinition(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var def *generic.ProductDefinition
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/yaml", "application/x-yaml", "text/yaml":
		def, err = h.Factory.ParseYAML(body)
	default:
		def, err = h.Factory.ParseJSON(body)
	}
	if err != nil {
		h.fail(w, "Invalid product definition", err)
		return
	}

	def.CreatedAt = h.Now()
	if err := h.Store.SaveDefinition(r.Context(), *def); err != nil {
		h.fail(w, "Failed to save definition", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDefinitionDTO(h.Factory, *def))
}

func (h *Handler) GetDefinition(w http.ResponseWriter, r *http.Request) {
	def, err := h.Store.GetDefinition(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "Definition not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toDefinitionDTO(h.Factory, *def))
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Store.ListAccounts(r.Context())
	if err != nil {
		h.fail(w, "Failed to list accounts", err)
		return
	}
	dtos := make([]AccountDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = toAccountDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	var req OpenAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ProductID == "" && req.DefinitionID == "" {
		writeError(w, http.StatusBadRequest, "product_id or definition_id is required", nil)
		return
	}
	openedAt, err := parseTime("opened_at", req.OpenedAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid opened_at", err)
		return
	}

	acct, err := h.Runner.OpenAccount(r.Context(), host.OpenAccountRequest{
		AccountID:    generic.AccountID(req.ID),
		ProductID:    generic.ProductID(req.ProductID),
		DefinitionID: req.DefinitionID,
		Parameters:   req.Parameters,
		OpenedAt:     openedAt,
	})
	if err != nil {
		h.fail(w, "Failed to open account", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(*acct))
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := h.Store.GetAccount(r.Context(), accountID(r))
	if err != nil {
		h.fail(w, "Account not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(*acct))
}

func (h *Handler) CloseAccount(w http.ResponseWriter, r *http.Request) {
	id := accountID(r)
	if err := h.Runner.CloseAccount(r.Context(), id); err != nil {
		h.fail(w, "Failed to close account", err)
		return
	}
	acct, err := h.Store.GetAccount(r.Context(), id)
	if err != nil {
		h.fail(w, "Account not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(*acct))
}

// =============================================================================
// BALANCE AND POSTING HANDLERS
// =============================================================================

// GetBalances returns live balances, or balances by value date with ?at=.
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	id := accountID(r)
	at, err := parseTime("at", r.URL.Query().Get("at"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid at", err)
		return
	}
	set, err := h.Runner.Balances(r.Context(), id, at)
	if err != nil {
		h.fail(w, "Failed to load balances", err)
		return
	}
	writeJSON(w, http.StatusOK, BalancesResponse{
		AccountID: string(id),
		AsOf:      formatTime(at),
		Balances:  toBalanceDTOs(set),
	})
}

func (h *Handler) ListPostings(w http.ResponseWriter, r *http.Request) {
	id := accountID(r)
	if _, err := h.Store.GetAccount(r.Context(), id); err != nil {
		h.fail(w, "Account not found", err)
		return
	}
	postings, err := h.Store.Postings(r.Context(), id)
	if err != nil {
		h.fail(w, "Failed to load postings", err)
		return
	}
	dtos := make([]PostingDTO, len(postings))
	for i, p := range postings {
		dtos[i] = toPostingDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req SubmitBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.Postings) == 0 {
		writeError(w, http.StatusBadRequest, "At least one posting is required", nil)
		return
	}
	id := accountID(r)
	batch, err := req.toBatch(id)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid posting", err)
		return
	}

	committed, err := h.Runner.SubmitBatch(r.Context(), id, batch)
	if err != nil {
		h.fail(w, "Batch not committed", err)
		return
	}

	dto := BatchDTO{
		ID:            committed.ID,
		ClientBatchID: committed.ClientBatchID,
		ValueAt:       formatTime(committed.ValueAt),
		Postings:      make([]PostingDTO, len(committed.Postings)),
	}
	for i, p := range committed.Postings {
		dto.Postings[i] = toPostingDTO(p)
	}
	writeJSON(w, http.StatusCreated, dto)
}

// =============================================================================
// EVENT, PARAMETER AND FLAG HANDLERS
// =============================================================================

// RunEvent runs one of the product's events at the given time. It does not
// wait for the schedule; operations use it to replay or force an event.
func (h *Handler) RunEvent(w http.ResponseWriter, r *http.Request) {
	var req RunEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Event == "" {
		writeError(w, http.StatusBadRequest, "event is required", nil)
		return
	}
	at, err := parseTime("at", req.At)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid at", err)
		return
	}
	if at.IsZero() {
		at = h.Now()
	}

	d, err := h.Runner.RunEvent(r.Context(), accountID(r), generic.EventType(req.Event), at)
	if err != nil {
		h.fail(w, "Event failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toDirectivesDTO(d))
}

func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	id := accountID(r)
	if _, err := h.Store.GetAccount(r.Context(), id); err != nil {
		h.fail(w, "Account not found", err)
		return
	}
	records, err := h.Store.Schedules(r.Context(), id)
	if err != nil {
		h.fail(w, "Failed to load schedules", err)
		return
	}
	dtos := make([]ScheduleDTO, len(records))
	for i, rec := range records {
		dtos[i] = toScheduleDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) ChangeParameters(w http.ResponseWriter, r *http.Request) {
	var req ChangeParametersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.Parameters) == 0 {
		writeError(w, http.StatusBadRequest, "parameters must not be empty", nil)
		return
	}
	effectiveAt, err := parseTime("effective_at", req.EffectiveAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_at", err)
		return
	}

	d, err := h.Runner.ChangeParameters(r.Context(), accountID(r), req.Parameters, effectiveAt)
	if err != nil {
		h.fail(w, "Parameter change refused", err)
		return
	}
	writeJSON(w, http.StatusOK, toDirectivesDTO(d))
}

func (h *Handler) SetFlag(w http.ResponseWriter, r *http.Request) {
	var req SetFlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	effectiveAt, err := parseTime("effective_at", req.EffectiveAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_at", err)
		return
	}

	if err := h.Runner.SetFlag(r.Context(), accountID(r), req.Name, req.Value, effectiveAt); err != nil {
		h.fail(w, "Failed to set flag", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": req.Name, "value": req.Value})
}

func (h *Handler) GetDerived(w http.ResponseWriter, r *http.Request) {
	at, err := parseTime("at", r.URL.Query().Get("at"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid at", err)
		return
	}
	values, err := h.Runner.DerivedValues(r.Context(), accountID(r), at)
	if err != nil {
		h.fail(w, "Failed to derive values", err)
		return
	}
	writeJSON(w, http.StatusOK, values)
}

func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	id := accountID(r)
	if _, err := h.Store.GetAccount(r.Context(), id); err != nil {
		h.fail(w, "Account not found", err)
		return
	}
	entries, err := h.Store.AuditEntries(r.Context(), id)
	if err != nil {
		h.fail(w, "Failed to load audit trail", err)
		return
	}
	dtos := make([]AuditDTO, len(entries))
	for i, e := range entries {
		dtos[i] = AuditDTO{ID: e.ID, Timestamp: formatTime(e.Timestamp), Action: string(e.Action), Payload: e.Payload}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// RunSchedules runs every due schedule up to now (or the body's "now").
// POST /api/admin/schedules/run
func (h *Handler) RunSchedules(w http.ResponseWriter, r *http.Request) {
	var req RunSchedulesRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	now, err := parseTime("now", req.Now)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid now", err)
		return
	}
	if now.IsZero() {
		now = h.Now()
	}

	ran, err := h.Runner.RunDueSchedules(r.Context(), now)
	resp := map[string]any{"ran": ran, "now": formatTime(now)}
	if err != nil {
		h.Logger.Warn("due schedules failed", zap.Error(err))
		resp["errors"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

func accountID(r *http.Request) generic.AccountID {
	return generic.AccountID(chi.URLParam(r, "id"))
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

// fail maps an engine error to its HTTP status.
func (h *Handler) fail(w http.ResponseWriter, message string, err error) {
	var rejection *generic.RejectionError
	switch {
	case errors.As(err, &rejection):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   message,
			Details: rejection.Rejection.Message,
			Reason:  string(rejection.Rejection.Reason),
		})
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case generic.IsConfigurationError(err):
		writeError(w, http.StatusUnprocessableEntity, message, err)
	case errors.Is(err, generic.ErrUnbalancedBatch):
		writeError(w, http.StatusBadRequest, message, err)
	case generic.IsClientError(err):
		writeError(w, http.StatusConflict, message, err)
	default:
		h.Logger.Error(message, zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, fmt.Errorf("internal error"))
	}
}
