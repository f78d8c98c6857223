package lineofcredit

import (
	"encoding/json"
	"strconv"
)

// RevolvingJSON returns a definition for a revolving facility repaid over
// months instalments after each drawdown.
func RevolvingJSON(id, name, creditLimit string, months int, variableRate string) string {
	def := map[string]interface{}{
		"id":          id,
		"name":        name,
		"product_id":  string(ProductID),
		"description": "Revolving line of credit",
		"parameters": map[string]string{
			"denomination":               "GBP",
			"credit_limit":               creditLimit,
			"total_repayment_count":      strconv.Itoa(months),
			"variable_interest_rate":     variableRate,
			"due_amount_calculation_day": "28",
			"repayment_period":           "7",
			"grace_period":               "14",
			"penalty_interest_rate":      "0.02",
			"late_repayment_fee":         "12",
			"days_in_year":               "365",
			"rounding_mode":              "ROUND_HALF_UP",
			"deposit_account":            "customer-deposit",
			"interest_received_account":  "bank-interest-income",
		},
	}
	b, _ := json.MarshalIndent(def, "", "  ")
	return string(b)
}
