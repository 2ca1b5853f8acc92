package pipeline

import (
	"golang-regulatory-report/internal/lookup"
	"golang-regulatory-report/internal/models"
)

// EnrichStats counts merchant lookup outcomes
type EnrichStats struct {
	Records                int `json:"records"`
	BusinessTypeMatched    int `json:"business_type_matched"`
	OTHWithoutBusinessType int `json:"oth_without_business_type"`
	CPFWithoutBusinessType int `json:"cpf_without_business_type"`
	CategoryCodeMatched    int `json:"category_code_matched"`
	CategoryCodeDefaulted  int `json:"category_code_defaulted"`
	OTHWithoutCategoryCode int `json:"oth_without_category_code"`
}

// EnrichMerchants fills merchant_business_type and merchant_category_code.
// Business types exist for CPF only. A CPF record whose category id is null
// or whose category code could not be found gets the default code; OTH
// records keep the lookup result, null included.
func EnrichMerchants(rules Rules, tables *lookup.Tables, records []models.EnrichedRecord) ([]models.EnrichedRecord, EnrichStats) {
	stats := EnrichStats{Records: len(records)}
	out := make([]models.EnrichedRecord, len(records))

	for i, r := range records {
		mbt, ok := tables.MerchantBusinessType(r.CardBrand, r.ServiceSystemType)
		switch {
		case ok && mbt.Valid:
			stats.BusinessTypeMatched++
		case r.ServiceSystemType == models.ServiceSystemOTH:
			stats.OTHWithoutBusinessType++
		default:
			stats.CPFWithoutBusinessType++
		}
		r.MerchantBusinessType = mbt

		mcc, ok := tables.MerchantCategoryCode(r.MerchantCategoryID)
		if ok && mcc.Valid {
			stats.CategoryCodeMatched++
		}
		if r.ServiceSystemType == models.ServiceSystemCPF && (r.MerchantCategoryID.IsNull() || mcc.IsNull()) {
			mcc = models.Str(rules.DefaultMerchantCategoryCode)
			stats.CategoryCodeDefaulted++
		} else if mcc.IsNull() {
			stats.OTHWithoutCategoryCode++
		}
		r.MerchantCategoryCode = mcc

		out[i] = r
	}
	return out, stats
}
