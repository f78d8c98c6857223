package deposit

import (
	"encoding/json"
	"strconv"

	"github.com/warp/product-engine/generic"
)

// Presets build product definition JSON for the factory.
//
//	jsonStr := deposit.EasyAccessSavingsJSON("easy-saver", "Easy saver", map[string]string{"STANDARD": "0.03"}, "STANDARD")
//	def, err := factory.NewDefinitionFactory().ParseJSON([]byte(jsonStr))

// EasyAccessSavingsJSON is a savings account paying the rate of tier,
// applied monthly on the first.
func EasyAccessSavingsJSON(id, name string, tiers map[string]string, tier string) string {
	rates, _ := json.Marshal(tiers)
	return definitionJSON(id, name, SavingsProductID, "Easy access tiered rate savings", map[string]string{
		ParamDenomination:           "GBP",
		ParamTieredInterestRates:    string(rates),
		ParamAccountTier:            tier,
		ParamMaximumDeposit:         "20000",
		ParamMaximumBalance:         "85000",
		ParamMinimumBalance:         "0",
		ParamInterestApplicationDay: "1",
		ParamDaysInYear:             "actual",
		ParamRoundingMode:           "ROUND_HALF_UP",
		ParamInterestPaidAccount:    "bank-interest-paid",
	})
}

// FixedTermDepositJSON locks deposits made in the first week for months
// at a fixed rate.
func FixedTermDepositJSON(id, name string, months int, rate string) string {
	return definitionJSON(id, name, TimeDepositProductID, "Fixed term deposit", map[string]string{
		ParamDenomination:        "GBP",
		ParamInterestRate:        rate,
		ParamTerm:                strconv.Itoa(months),
		ParamDepositPeriod:       "7",
		ParamDayCountConvention:  "ACT/365",
		ParamDaysInYear:          "365",
		ParamRoundingMode:        "ROUND_HALF_UP",
		ParamInterestPaidAccount: "bank-interest-paid",
	})
}

func definitionJSON(id, name string, product generic.ProductID, description string, params map[string]string) string {
	def := map[string]interface{}{
		"id":          id,
		"name":        name,
		"product_id":  string(product),
		"description": description,
		"parameters":  params,
	}
	b, _ := json.MarshalIndent(def, "", "  ")
	return string(b)
}
