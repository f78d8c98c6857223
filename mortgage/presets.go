package mortgage

import (
	"encoding/json"
	"strconv"
)

// Presets build product definition JSON for factory.ParseDefinition. They
// construct JSON directly to avoid an import cycle with the factory.
//
//	jsonStr := mortgage.FixedRateJSON("mortgage-2y-fix", "2 year fix", "250000", 300, "0.0425", 24, "0.0525")
//	def, err := factory.NewDefinitionFactory().ParseJSON([]byte(jsonStr))

// FixedRateJSON is a repayment mortgage with an introductory fixed rate
// that reverts to the variable rate.
func FixedRateJSON(id, name, principal string, months int, fixedRate string, fixedMonths int, variableRate string) string {
	params := baseParameters(principal, months)
	params["fixed_interest_rate"] = fixedRate
	params["fixed_interest_term"] = strconv.Itoa(fixedMonths)
	params["variable_interest_rate"] = variableRate
	return definitionJSON(id, name, "Fixed then variable rate repayment mortgage", params)
}

// TrackerJSON follows the variable rate from day one.
func TrackerJSON(id, name, principal string, months int, variableRate, adjustment string) string {
	params := baseParameters(principal, months)
	params["variable_interest_rate"] = variableRate
	params["variable_rate_adjustment"] = adjustment
	return definitionJSON(id, name, "Variable rate tracker mortgage", params)
}

// InterestOnlyJSON repays only interest until the final instalment.
func InterestOnlyJSON(id, name, principal string, months int, variableRate string) string {
	params := baseParameters(principal, months)
	params["variable_interest_rate"] = variableRate
	params["amortisation_method"] = "interest_only"
	return definitionJSON(id, name, "Interest only mortgage", params)
}

// BalloonJSON leaves a lump sum to be repaid with the final instalment.
func BalloonJSON(id, name, principal string, months int, variableRate, balloon string) string {
	params := baseParameters(principal, months)
	params["variable_interest_rate"] = variableRate
	params["balloon_payment_amount"] = balloon
	return definitionJSON(id, name, "Repayment mortgage with a balloon payment", params)
}

func baseParameters(principal string, months int) map[string]string {
	return map[string]string{
		"denomination":                     "GBP",
		"principal":                        principal,
		"total_repayment_count":            strconv.Itoa(months),
		"due_amount_calculation_day":       "1",
		"repayment_period":                 "10",
		"grace_period":                     "15",
		"penalty_interest_rate":            "0.03",
		"penalty_includes_base_rate":       "true",
		"late_repayment_fee":               "25",
		"overpayment_impact_preference":    "reduce_term",
		"holiday_impact_preference":        "increase_term",
		"overpayment_allowance_percentage": "0.1",
		"overpayment_fee_percentage":       "0.05",
		"early_repayment_fee_percentage":   "0.02",
		"days_in_year":                     "actual",
		"rounding_mode":                    "ROUND_HALF_UP",
		"deposit_account":                  "customer-deposit",
		"interest_received_account":        "bank-interest-income",
		"penalty_income_account":           "bank-penalty-income",
		"fee_income_account":               "bank-fee-income",
	}
}

func definitionJSON(id, name, description string, params map[string]string) string {
	def := map[string]interface{}{
		"id":          id,
		"name":        name,
		"product_id":  string(ProductID),
		"description": description,
		"parameters":  params,
	}
	b, _ := json.MarshalIndent(def, "", "  ")
	return string(b)
}
