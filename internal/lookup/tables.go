// Package lookup holds the reference tables as immutable pre-indexed maps.
//
// Every table is keyed by the columns its join uses. A row with a null key
// part can never match (null never equals anything), so it is not indexed.
// When a key appears more than once the first row wins; identical repeats are
// counted as duplicates and differing repeats as conflicts. In strict mode a
// conflict is a validation error.
package lookup

import (
	"fmt"

	"golang-regulatory-report/internal/models"
	"golang-regulatory-report/pkg/errors"
	"golang-regulatory-report/pkg/logger"
)

// Config controls how reference tables are indexed
type Config struct {
	// StrictKeys turns conflicting duplicate keys into an error
	StrictKeys bool `json:"strict_keys" mapstructure:"strict_keys"`
}

// DefaultConfig returns the lenient configuration
func DefaultConfig() *Config {
	return &Config{StrictKeys: false}
}

// Inputs are the rows of the four reference tables as loaded from disk
type Inputs struct {
	TransactionTypes        []models.TransactionTypeRow
	TransactionTypesBackend []models.TransactionTypeBackendRow
	MerchantBusinessTypes   []models.MerchantBusinessTypeRow
	MCC                     []models.MCCRow
}

type cardKey struct {
	Country   string
	CardType  string
	CardBrand string
}

type merchantKey struct {
	CardBrand         string
	ServiceSystemType models.ServiceSystemType
}

// Tables is the read-only lookup view shared by the pipeline stages
type Tables struct {
	transactionTypes      map[cardKey]models.NullString
	backendTypes          map[string]models.NullString
	merchantBusinessTypes map[merchantKey]models.NullString
	mcc                   map[string]models.NullString
	stats                 IndexStats
}

// TableStats describes how one reference table was indexed
type TableStats struct {
	Rows       int `json:"rows"`
	Indexed    int `json:"indexed"`
	NullKeys   int `json:"null_keys"`
	Duplicates int `json:"duplicates"`
	Conflicts  int `json:"conflicts"`
}

// IndexStats provides statistics about the indexed reference tables
type IndexStats struct {
	TransactionTypes        TableStats `json:"transaction_types"`
	TransactionTypesBackend TableStats `json:"transaction_types_backend"`
	MerchantBusinessTypes   TableStats `json:"merchant_business_types"`
	MCC                     TableStats `json:"mcc"`
}

// TotalConflicts returns the number of conflicting duplicate keys over all tables
func (s IndexStats) TotalConflicts() int {
	return s.TransactionTypes.Conflicts + s.TransactionTypesBackend.Conflicts +
		s.MerchantBusinessTypes.Conflicts + s.MCC.Conflicts
}

// TotalDuplicates returns the number of repeated keys with an identical code over all tables
func (s IndexStats) TotalDuplicates() int {
	return s.TransactionTypes.Duplicates + s.TransactionTypesBackend.Duplicates +
		s.MerchantBusinessTypes.Duplicates + s.MCC.Duplicates
}

// ByTable returns the table stats keyed by table name
func (s IndexStats) ByTable() map[string]TableStats {
	return map[string]TableStats{
		"transaction_types":         s.TransactionTypes,
		"transaction_types_backend": s.TransactionTypesBackend,
		"merchant_business_types":   s.MerchantBusinessTypes,
		"mcc":                       s.MCC,
	}
}

// index is one reference table under construction; the first row for a key wins
type index[K comparable] struct {
	table  string
	strict bool
	stats  TableStats
	values map[K]models.NullString
	log    logger.Logger
}

func newIndex[K comparable](table string, strict bool, size int, log logger.Logger) *index[K] {
	return &index[K]{
		table:  table,
		strict: strict,
		values: make(map[K]models.NullString, size),
		log:    log.WithField("table", table),
	}
}

func (ix *index[K]) add(key K, ok bool, value models.NullString, describe func() string) error {
	ix.stats.Rows++
	if !ok {
		ix.stats.NullKeys++
		return nil
	}

	existing, seen := ix.values[key]
	if !seen {
		ix.values[key] = value
		ix.stats.Indexed++
		return nil
	}

	if existing == value {
		ix.stats.Duplicates++
		return nil
	}

	ix.stats.Conflicts++
	ix.log.WithFields(logger.Fields{
		"key":      describe(),
		"kept":     existing.String(),
		"ignored":  value.String(),
		"strategy": "first_wins",
	}).Warn("Conflicting duplicate reference key")

	if ix.strict {
		return errors.ValidationError(errors.CodeDuplicateKey, ix.table, describe(), nil).
			WithContext("kept", existing.String()).
			WithContext("conflicting", value.String())
	}
	return nil
}

// NewTables indexes the reference rows
func NewTables(in Inputs, config *Config) (*Tables, error) {
	if config == nil {
		config = DefaultConfig()
	}
	log := logger.WithComponent("lookup")

	tt := newIndex[cardKey]("transaction_types", config.StrictKeys, len(in.TransactionTypes), log)
	for _, row := range in.TransactionTypes {
		row := row
		ok := row.Country.Valid && row.CardType.Valid && row.CardBrand.Valid
		key := cardKey{Country: row.Country.Value, CardType: row.CardType.Value, CardBrand: row.CardBrand.Value}
		if err := tt.add(key, ok, row.TransactionTypeCode, func() string {
			return fmt.Sprintf("%s/%s/%s", row.Country, row.CardType, row.CardBrand)
		}); err != nil {
			return nil, err
		}
	}

	backend := newIndex[string]("transaction_types_backend", config.StrictKeys, len(in.TransactionTypesBackend), log)
	for _, row := range in.TransactionTypesBackend {
		row := row
		if err := backend.add(row.BackendName.Value, row.BackendName.Valid, row.TransactionTypeCode, row.BackendName.String); err != nil {
			return nil, err
		}
	}

	// every merchant business type row applies to CPF only
	mbt := newIndex[merchantKey]("merchant_business_types", config.StrictKeys, len(in.MerchantBusinessTypes), log)
	for _, row := range in.MerchantBusinessTypes {
		row := row
		key := merchantKey{CardBrand: row.CardBrand.Value, ServiceSystemType: models.ServiceSystemCPF}
		if err := mbt.add(key, row.CardBrand.Valid, row.MerchantBusinessTypeCode, row.CardBrand.String); err != nil {
			return nil, err
		}
	}

	mcc := newIndex[string]("mcc", config.StrictKeys, len(in.MCC), log)
	for _, row := range in.MCC {
		row := row
		if err := mcc.add(row.ID.Value, row.ID.Valid, row.Code, row.ID.String); err != nil {
			return nil, err
		}
	}

	tables := &Tables{
		transactionTypes:      tt.values,
		backendTypes:          backend.values,
		merchantBusinessTypes: mbt.values,
		mcc:                   mcc.values,
		stats: IndexStats{
			TransactionTypes:        tt.stats,
			TransactionTypesBackend: backend.stats,
			MerchantBusinessTypes:   mbt.stats,
			MCC:                     mcc.stats,
		},
	}

	log.WithFields(logger.Fields{
		"transaction_types":         tt.stats.Indexed,
		"transaction_types_backend": backend.stats.Indexed,
		"merchant_business_types":   mbt.stats.Indexed,
		"mcc":                       mcc.stats.Indexed,
		"conflicts":                 tables.stats.TotalConflicts(),
	}).Info("Reference tables indexed")

	return tables, nil
}

// TransactionType looks up the card-based transaction type. Any null key
// part misses.
func (t *Tables) TransactionType(country models.Country, cardType, cardBrand models.NullString) (models.NullString, bool) {
	if country == "" || !cardType.Valid || !cardBrand.Valid {
		return models.NullString{}, false
	}
	code, ok := t.transactionTypes[cardKey{Country: string(country), CardType: cardType.Value, CardBrand: cardBrand.Value}]
	return code, ok
}

// BackendTransactionType looks up the transaction type of a backend
func (t *Tables) BackendTransactionType(backendName models.NullString) (models.NullString, bool) {
	if !backendName.Valid {
		return models.NullString{}, false
	}
	code, ok := t.backendTypes[backendName.Value]
	return code, ok
}

// MerchantBusinessType looks up the merchant business type. Only CPF rows
// exist, so OTH always misses.
func (t *Tables) MerchantBusinessType(cardBrand models.NullString, sst models.ServiceSystemType) (models.NullString, bool) {
	if !cardBrand.Valid {
		return models.NullString{}, false
	}
	code, ok := t.merchantBusinessTypes[merchantKey{CardBrand: cardBrand.Value, ServiceSystemType: sst}]
	return code, ok
}

// MerchantCategoryCode looks up the code of a merchant category id. A matched
// row may still carry a null code.
func (t *Tables) MerchantCategoryCode(id models.NullString) (models.NullString, bool) {
	if !id.Valid {
		return models.NullString{}, false
	}
	code, ok := t.mcc[id.Value]
	return code, ok
}

// GetIndexStats returns statistics about the indexed tables
func (t *Tables) GetIndexStats() IndexStats {
	return t.stats
}
