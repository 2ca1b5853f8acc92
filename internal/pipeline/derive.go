package pipeline

import (
	"golang-regulatory-report/internal/models"
)

// Derive computes the classification columns of one payment record. The
// reporting date replaces the payment date, and the lookup fields start null.
func Derive(rules Rules, r *models.TransactionRecord) models.EnrichedRecord {
	sst := models.ServiceSystemOTH
	if r.PaymentMethod.Is(rules.PrimaryPaymentMethod) {
		sst = models.ServiceSystemCPF
	}

	// anything but the domestic code, null included, is international
	country := models.CountryInter
	if r.CardCountryIssuerCode.Is(rules.DomesticIssuerCode) {
		country = models.CountryLocal
	}

	return models.EnrichedRecord{
		FICode:                rules.FICode,
		Date:                  models.LastDayOfMonth(r.Date),
		ServiceSystemType:     sst,
		Country:               country,
		PaymentMethod:         r.PaymentMethod,
		CardBrand:             r.CardBrand,
		CardType:              r.CardType,
		CardCountryIssuerCode: r.CardCountryIssuerCode,
		BackendName:           r.BackendName,
		MerchantCategoryID:    r.MerchantCategoryID,
		Amount:                r.Amount,
	}
}

// DeriveAll derives every record, preserving order
func DeriveAll(rules Rules, records []*models.TransactionRecord) []models.EnrichedRecord {
	out := make([]models.EnrichedRecord, len(records))
	for i, r := range records {
		out[i] = Derive(rules, r)
	}
	return out
}
