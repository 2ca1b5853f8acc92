// Package pipeline turns loaded payment records into bucketed summary rows.
//
// The transformation is a chain of pure stages, each returning a new record
// slice and leaving its input untouched:
//
//	Derive -> ResolveTransactionTypes -> EnrichMerchants -> Aggregate -> Bucketize -> Reconcile
//
// Reference data is read through the immutable lookup.Tables. Lookup misses
// are never errors: they are resolved by the default-code rules or carried as
// nulls and counted in the stage stats. Only a reconciliation mismatch or a
// broken internal invariant stops a run.
package pipeline

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Rules are the fixed codes the classification rules compare against and
// substitute. The defaults match the reporting institution's configuration.
type Rules struct {
	FICode                      string `json:"fi_code" mapstructure:"fi_code" validate:"required"`
	PrimaryPaymentMethod        string `json:"primary_payment_method" mapstructure:"primary_payment_method" validate:"required"`
	DomesticIssuerCode          string `json:"domestic_issuer_code" mapstructure:"domestic_issuer_code" validate:"required"`
	DefaultTransactionType      string `json:"default_transaction_type" mapstructure:"default_transaction_type" validate:"required,numeric"`
	DefaultMerchantCategoryCode string `json:"default_merchant_category_code" mapstructure:"default_merchant_category_code" validate:"required,numeric"`
}

// DefaultRules returns the standard rule codes
func DefaultRules() Rules {
	return Rules{
		FICode:                      "42",
		PrimaryPaymentMethod:        "payment01",
		DomesticIssuerCode:          "A029",
		DefaultTransactionType:      "099999",
		DefaultMerchantCategoryCode: "9999",
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that every rule code is set
func (r Rules) Validate() error {
	return validateStruct(r)
}

func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Namespace()))
		case "numeric":
			msgs = append(msgs, fmt.Sprintf("%s must be numeric, got %q", fe.Namespace(), fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Namespace(), fe.Tag()))
		}
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
