/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY AND TIME:
  Amounts travel as decimal strings ("1250.50"), never floats. Times are
  RFC 3339; a date-only value ("2025-01-10") means midnight UTC.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/definition.go: DefinitionDocument type
*/
package api

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/product-engine/factory"
	"github.com/warp/product-engine/generic"
)

// =============================================================================
// PRODUCTS AND DEFINITIONS
// =============================================================================

type ProductDTO struct {
	ID         string   `json:"id"`
	Tside      string   `json:"tside"`
	Events     []string `json:"events"`
	Parameters []string `json:"parameters"`
}

type DefinitionDTO struct {
	factory.DefinitionDocument
	CreatedAt string `json:"created_at,omitempty"`
}

// =============================================================================
// ACCOUNTS
// =============================================================================

type AccountDTO struct {
	ID           string `json:"id"`
	ProductID    string `json:"product_id"`
	DefinitionID string `json:"definition_id,omitempty"`
	OpenedAt     string `json:"opened_at"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
}

// OpenAccountRequest opens an account from a definition, a bare product,
// or both, with optional parameter overrides.
type OpenAccountRequest struct {
	ID           string            `json:"id,omitempty"`
	ProductID    string            `json:"product_id,omitempty"`
	DefinitionID string            `json:"definition_id,omitempty"`
	Parameters   map[string]string `json:"parameters,omitempty"`
	OpenedAt     string            `json:"opened_at,omitempty"`
}

// =============================================================================
// BALANCES AND POSTINGS
// =============================================================================

type BalanceDTO struct {
	Address      string `json:"address"`
	Asset        string `json:"asset"`
	Denomination string `json:"denomination"`
	Phase        string `json:"phase"`
	Net          string `json:"net"`
	Credit       string `json:"credit"`
	Debit        string `json:"debit"`
}

type BalancesResponse struct {
	AccountID string       `json:"account_id"`
	AsOf      string       `json:"as_of,omitempty"`
	Balances  []BalanceDTO `json:"balances"`
}

type PostingDTO struct {
	ID             string            `json:"id"`
	BatchID        string            `json:"batch_id"`
	AccountID      string            `json:"account_id"`
	Address        string            `json:"address"`
	Asset          string            `json:"asset"`
	Denomination   string            `json:"denomination"`
	Phase          string            `json:"phase"`
	Amount         string            `json:"amount"`
	Credit         bool              `json:"credit"`
	ValueAt        string            `json:"value_at"`
	InsertedAt     string            `json:"inserted_at"`
	IdempotencyKey string            `json:"idempotency_key"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// PostingRequest is one customer movement. Amount is signed from the
// customer's point of view: positive credits the account (a deposit or a
// loan repayment), negative debits it (a withdrawal or a drawdown).
type PostingRequest struct {
	Amount       string `json:"amount"`
	Denomination string `json:"denomination"`
	Address      string `json:"address,omitempty"`
}

type SubmitBatchRequest struct {
	ClientBatchID string            `json:"client_batch_id,omitempty"`
	ValueAt       string            `json:"value_at,omitempty"`
	Postings      []PostingRequest  `json:"postings"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	// Override lets the batch bypass product limits that allow it.
	Override bool `json:"override,omitempty"`
}

type BatchDTO struct {
	ID            string       `json:"id"`
	ClientBatchID string       `json:"client_batch_id,omitempty"`
	ValueAt       string       `json:"value_at"`
	Postings      []PostingDTO `json:"postings"`
}

// =============================================================================
// EVENTS, PARAMETERS, FLAGS
// =============================================================================

type RunEventRequest struct {
	Event string `json:"event"`
	At    string `json:"at,omitempty"`
}

type ChangeParametersRequest struct {
	Parameters  map[string]string `json:"parameters"`
	EffectiveAt string            `json:"effective_at,omitempty"`
}

type SetFlagRequest struct {
	Name        string `json:"name"`
	Value       bool   `json:"value"`
	EffectiveAt string `json:"effective_at,omitempty"`
}

type RunSchedulesRequest struct {
	Now string `json:"now,omitempty"`
}

// DirectivesDTO is what a hook decided, minus the raw instructions.
type DirectivesDTO struct {
	Instructions  int               `json:"instructions"`
	Schedules     []ScheduleDTO     `json:"schedules,omitempty"`
	Flags         map[string]bool   `json:"flags,omitempty"`
	Notifications []NotificationDTO `json:"notifications,omitempty"`
}

type NotificationDTO struct {
	Type   string            `json:"type"`
	Fields map[string]string `json:"fields,omitempty"`
}

type ScheduleDTO struct {
	Event      string                     `json:"event"`
	Descriptor generic.ScheduleDescriptor `json:"descriptor"`
	NextRunAt  string                     `json:"next_run_at,omitempty"`
	LastRunAt  string                     `json:"last_run_at,omitempty"`
	Active     bool                       `json:"active"`
}

type AuditDTO struct {
	ID        string            `json:"id"`
	Timestamp string            `json:"timestamp"`
	Action    string            `json:"action"`
	Payload   map[string]string `json:"payload,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// parseTime accepts RFC 3339 or a bare date. Empty input is the zero time.
func parseTime(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: expected RFC 3339 time or YYYY-MM-DD date, got %q", field, s)
	}
	return t, nil
}

func toProductDTO(p generic.Product) ProductDTO {
	m := p.Manifest()
	events := make([]string, len(m.Events))
	for i, e := range m.Events {
		events[i] = string(e)
	}
	return ProductDTO{
		ID:         string(p.ID()),
		Tside:      string(p.Tside()),
		Events:     events,
		Parameters: m.ParameterNames(),
	}
}

func toDefinitionDTO(f *factory.DefinitionFactory, def generic.ProductDefinition) DefinitionDTO {
	return DefinitionDTO{DefinitionDocument: f.ToDocument(def), CreatedAt: formatTime(def.CreatedAt)}
}

func toAccountDTO(a generic.Account) AccountDTO {
	return AccountDTO{
		ID:           string(a.ID),
		ProductID:    string(a.ProductID),
		DefinitionID: a.DefinitionID,
		OpenedAt:     formatTime(a.OpenedAt),
		Status:       string(a.Status),
		CreatedAt:    formatTime(a.CreatedAt),
	}
}

func toBalanceDTOs(set generic.BalanceSet) []BalanceDTO {
	coords := set.Coordinates()
	sort.Slice(coords, func(i, j int) bool { return coords[i].Less(coords[j]) })
	dtos := make([]BalanceDTO, 0, len(coords))
	for _, c := range coords {
		b := set.Get(c)
		dtos = append(dtos, BalanceDTO{
			Address:      c.Address,
			Asset:        c.Asset,
			Denomination: c.Denomination,
			Phase:        string(c.Phase),
			Net:          b.Net.String(),
			Credit:       b.Credit.String(),
			Debit:        b.Debit.String(),
		})
	}
	return dtos
}

func toPostingDTO(p generic.Posting) PostingDTO {
	return PostingDTO{
		ID:             string(p.ID),
		BatchID:        p.BatchID,
		AccountID:      string(p.AccountID),
		Address:        p.Address,
		Asset:          p.Asset,
		Denomination:   p.Denomination,
		Phase:          string(p.Phase),
		Amount:         p.Amount.String(),
		Credit:         p.Credit,
		ValueAt:        formatTime(p.ValueAt),
		InsertedAt:     formatTime(p.InsertedAt),
		IdempotencyKey: p.IdempotencyKey,
		Metadata:       p.Metadata,
	}
}

func toScheduleDTO(rec generic.ScheduleRecord) ScheduleDTO {
	return ScheduleDTO{
		Event:      string(rec.Event),
		Descriptor: rec.Descriptor,
		NextRunAt:  formatTime(rec.NextRunAt),
		LastRunAt:  formatTime(rec.LastRunAt),
		Active:     rec.Active,
	}
}

func toDirectivesDTO(d *generic.Directives) DirectivesDTO {
	dto := DirectivesDTO{Instructions: len(d.Instructions)}
	for _, u := range d.Schedules {
		dto.Schedules = append(dto.Schedules, ScheduleDTO{Event: string(u.Event), Descriptor: u.Descriptor, Active: !u.Remove})
	}
	if len(d.Flags) > 0 {
		dto.Flags = make(map[string]bool, len(d.Flags))
		for _, f := range d.Flags {
			dto.Flags[f.Name] = f.Value
		}
	}
	for _, n := range d.Notifications {
		dto.Notifications = append(dto.Notifications, NotificationDTO{Type: n.Type, Fields: n.Fields})
	}
	return dto
}

// toBatch turns signed customer movements into posting legs on account.
func (req SubmitBatchRequest) toBatch(account generic.AccountID) (generic.PostingBatch, error) {
	valueAt, err := parseTime("value_at", req.ValueAt)
	if err != nil {
		return generic.PostingBatch{}, err
	}
	batch := generic.PostingBatch{
		ClientBatchID: req.ClientBatchID,
		ValueAt:       valueAt,
		Metadata:      map[string]string{},
	}
	for k, v := range req.Metadata {
		batch.Metadata[k] = v
	}
	if req.Override {
		batch.Metadata[generic.OverrideKey] = "true"
	}
	for i, p := range req.Postings {
		amount, err := decimal.NewFromString(p.Amount)
		if err != nil {
			return generic.PostingBatch{}, fmt.Errorf("postings[%d].amount: %w", i, err)
		}
		if amount.IsZero() {
			return generic.PostingBatch{}, fmt.Errorf("postings[%d].amount must not be zero", i)
		}
		if p.Denomination == "" {
			return generic.PostingBatch{}, fmt.Errorf("postings[%d].denomination is required", i)
		}
		batch.Postings = append(batch.Postings, generic.Posting{
			AccountID:    account,
			Address:      p.Address,
			Denomination: p.Denomination,
			Amount:       amount.Abs(),
			Credit:       amount.IsPositive(),
			ValueAt:      valueAt,
		})
	}
	return batch, nil
}
