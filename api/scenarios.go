/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	accounts for demos. Each scenario stores preset definitions, opens
	accounts from them and books the first customer movements.

AVAILABLE SCENARIOS:

	easy-saver:      Tiered savings account with a first deposit
	fixed-term:      One year fixed deposit funded in its deposit window
	mortgage:        Two year fixed mortgage, disbursed at opening
	line-of-credit:  Revolving facility with a first drawdown

HOW SCENARIOS WORK:
 1. Save preset definitions via the factory
 2. Open the account through the runner (activation hook runs)
 3. Submit the first batch through the runner (pre/post posting run)

Account ids are fixed per scenario, so loading one twice fails with a
409 and leaves the first load untouched.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "mortgage"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to LoadScenario handler

SEE ALSO:
  - handlers.go: LoadScenario, ListScenarios handlers
  - deposit/presets.go, mortgage/presets.go, lineofcredit/presets.go
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/product-engine/deposit"
	"github.com/warp/product-engine/generic"
	"github.com/warp/product-engine/host"
	"github.com/warp/product-engine/lineofcredit"
	"github.com/warp/product-engine/mortgage"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "easy-saver",
		Name:        "Easy Saver",
		Description: "Tiered rate savings account with a 5000 opening deposit",
		Category:    "deposit",
	},
	{
		ID:          "fixed-term",
		Name:        "Fixed Term Deposit",
		Description: "One year deposit at 4.5%, funded on the day it opens",
		Category:    "deposit",
	},
	{
		ID:          "mortgage",
		Name:        "Two Year Fix",
		Description: "250000 over 25 years, 4.25% fixed for 24 months then 5.25%",
		Category:    "lending",
	},
	{
		ID:          "line-of-credit",
		Name:        "Revolving Credit",
		Description: "5000 limit with a 1200 drawdown",
		Category:    "lending",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the last scenario loaded by this process.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a demo scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	var err error
	switch req.ScenarioID {
	case "easy-saver":
		err = h.loadEasySaverScenario(ctx)
	case "fixed-term":
		err = h.loadFixedTermScenario(ctx)
	case "mortgage":
		err = h.loadMortgageScenario(ctx)
	case "line-of-credit":
		err = h.loadLineOfCreditScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}
	if err != nil {
		h.fail(w, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
	})
}

// =============================================================================
// LOADERS
// =============================================================================

func (h *Handler) loadEasySaverScenario(ctx context.Context) error {
	opened := startOfToday(h.Now())
	if err := h.createDefinitionFromJSON(ctx, deposit.EasyAccessSavingsJSON("easy-saver", "Easy Saver",
		map[string]string{"STANDARD": "0.0325", "PREMIUM": "0.0410"}, "STANDARD")); err != nil {
		return err
	}
	return h.openAndFund(ctx, "demo-saver", "easy-saver", opened, "5000")
}

func (h *Handler) loadFixedTermScenario(ctx context.Context) error {
	opened := startOfToday(h.Now())
	if err := h.createDefinitionFromJSON(ctx, deposit.FixedTermDepositJSON("fixed-12m", "12 Month Fixed", 12, "0.045")); err != nil {
		return err
	}
	return h.openAndFund(ctx, "demo-fixed-term", "fixed-12m", opened, "25000")
}

func (h *Handler) loadMortgageScenario(ctx context.Context) error {
	opened := startOfToday(h.Now())
	if err := h.createDefinitionFromJSON(ctx, mortgage.FixedRateJSON("two-year-fix", "Two Year Fix",
		"250000", 300, "0.0425", 24, "0.0525")); err != nil {
		return err
	}
	_, err := h.Runner.OpenAccount(ctx, host.OpenAccountRequest{
		AccountID:    "demo-mortgage",
		DefinitionID: "two-year-fix",
		OpenedAt:     opened,
	})
	return err
}

func (h *Handler) loadLineOfCreditScenario(ctx context.Context) error {
	opened := startOfToday(h.Now())
	if err := h.createDefinitionFromJSON(ctx, lineofcredit.RevolvingJSON("revolving-5k", "Revolving 5k",
		"5000", 12, "0.189")); err != nil {
		return err
	}
	return h.openAndFund(ctx, "demo-credit-line", "revolving-5k", opened, "-1200")
}

// openAndFund opens an account and books one signed movement an hour later.
func (h *Handler) openAndFund(ctx context.Context, id generic.AccountID, definition string, opened time.Time, amount string) error {
	acct, err := h.Runner.OpenAccount(ctx, host.OpenAccountRequest{
		AccountID:    id,
		DefinitionID: definition,
		OpenedAt:     opened,
	})
	if err != nil {
		return err
	}
	def, err := h.Store.GetDefinition(ctx, definition)
	if err != nil {
		return err
	}
	v := decimal.RequireFromString(amount)
	_, err = h.Runner.SubmitBatch(ctx, acct.ID, generic.PostingBatch{
		ClientBatchID: "scenario-opening",
		ValueAt:       opened.Add(time.Hour),
		Postings: []generic.Posting{{
			Denomination: def.Parameters[deposit.ParamDenomination],
			Amount:       v.Abs(),
			Credit:       v.IsPositive(),
		}},
	})
	return err
}

func (h *Handler) createDefinitionFromJSON(ctx context.Context, jsonStr string) error {
	def, err := h.Factory.ParseJSON([]byte(jsonStr))
	if err != nil {
		return err
	}
	def.CreatedAt = h.Now()
	return h.Store.SaveDefinition(ctx, *def)
}

func startOfToday(now time.Time) time.Time {
	return generic.StartOfDay(now.UTC())
}
