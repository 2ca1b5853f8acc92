package models

import (
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

func TestNewNullString(t *testing.T) {
	tests := []struct {
		input     string
		wantValid bool
		wantValue string
	}{
		{"payment01", true, "payment01"},
		{"  A029  ", true, "A029"},
		{"\tvisa ", true, "visa"},
		{"", false, ""},
		{"   ", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := NewNullString(tt.input)
			if got.Valid != tt.wantValid {
				t.Errorf("NewNullString(%q).Valid = %v, want %v", tt.input, got.Valid, tt.wantValid)
			}
			if got.Value != tt.wantValue {
				t.Errorf("NewNullString(%q).Value = %q, want %q", tt.input, got.Value, tt.wantValue)
			}
		})
	}
}

func TestNullString_Is(t *testing.T) {
	if !Str("CPF").Is("CPF") {
		t.Error("expected valid value to match itself")
	}
	if (NullString{}).Is("") {
		t.Error("expected null never to match, not even the empty string")
	}
	if Str("CPF").Is("OTH") {
		t.Error("expected different values not to match")
	}
}

func TestNullString_Compare(t *testing.T) {
	null := NullString{}
	tests := []struct {
		name string
		a, b NullString
		want int
	}{
		{"null equals null", null, null, 0},
		{"null before value", null, Str("0"), -1},
		{"value after null", Str("0"), null, 1},
		{"lexical", Str("010101"), Str("099999"), -1},
		{"equal values", Str("9999"), Str("9999"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Compare(tt.b); got != tt.want {
				t.Errorf("Compare() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNullString_JSONMarshaling(t *testing.T) {
	data, err := json.Marshal(struct {
		A NullString `json:"a"`
		B NullString `json:"b"`
	}{A: Str("9999")})
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	expected := `{"a":"9999","b":null}`
	if string(data) != expected {
		t.Errorf("expected %s, got %s", expected, string(data))
	}
}

func TestServiceSystemType_String(t *testing.T) {
	tests := []struct {
		sst      ServiceSystemType
		expected string
	}{
		{ServiceSystemCPF, "CPF"},
		{ServiceSystemOTH, "OTH"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.sst.String(); got != tt.expected {
				t.Errorf("ServiceSystemType.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestSummaryKey_UsableAsMapKey(t *testing.T) {
	date := civil.Date{Year: 2018, Month: time.December, Day: 31}
	a := SummaryKey{FICode: "42", Date: date, ServiceSystemType: ServiceSystemOTH}
	b := SummaryKey{FICode: "42", Date: date, ServiceSystemType: ServiceSystemOTH}

	groups := map[SummaryKey]int{}
	groups[a]++
	groups[b]++

	if len(groups) != 1 || groups[a] != 2 {
		t.Errorf("expected keys with equal null fields to collapse into one group, got %v", groups)
	}
}

func TestSummaryKey_Compare(t *testing.T) {
	nov := civil.Date{Year: 2018, Month: time.November, Day: 30}
	dec := civil.Date{Year: 2018, Month: time.December, Day: 31}

	tests := []struct {
		name string
		a, b SummaryKey
		want int
	}{
		{
			name: "date first",
			a:    SummaryKey{FICode: "42", Date: nov, ServiceSystemType: ServiceSystemOTH},
			b:    SummaryKey{FICode: "42", Date: dec, ServiceSystemType: ServiceSystemCPF},
			want: -1,
		},
		{
			name: "service system type",
			a:    SummaryKey{FICode: "42", Date: dec, ServiceSystemType: ServiceSystemCPF},
			b:    SummaryKey{FICode: "42", Date: dec, ServiceSystemType: ServiceSystemOTH},
			want: -1,
		},
		{
			name: "null transaction type first",
			a:    SummaryKey{FICode: "42", Date: dec, ServiceSystemType: ServiceSystemOTH, TransactionType: Str("x")},
			b:    SummaryKey{FICode: "42", Date: dec, ServiceSystemType: ServiceSystemOTH},
			want: 1,
		},
		{
			name: "identical",
			a:    SummaryKey{FICode: "42", Date: dec, MerchantCategoryCode: Str("9999")},
			b:    SummaryKey{FICode: "42", Date: dec, MerchantCategoryCode: Str("9999")},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Compare(tt.b); got != tt.want {
				t.Errorf("Compare() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLastDayOfMonth(t *testing.T) {
	tests := []struct {
		input    civil.Date
		expected civil.Date
	}{
		{civil.Date{Year: 2018, Month: time.December, Day: 15}, civil.Date{Year: 2018, Month: time.December, Day: 31}},
		{civil.Date{Year: 2018, Month: time.December, Day: 31}, civil.Date{Year: 2018, Month: time.December, Day: 31}},
		{civil.Date{Year: 2020, Month: time.February, Day: 1}, civil.Date{Year: 2020, Month: time.February, Day: 29}},
		{civil.Date{Year: 2019, Month: time.February, Day: 10}, civil.Date{Year: 2019, Month: time.February, Day: 28}},
		{civil.Date{Year: 2018, Month: time.April, Day: 30}, civil.Date{Year: 2018, Month: time.April, Day: 30}},
	}

	for _, tt := range tests {
		t.Run(tt.input.String(), func(t *testing.T) {
			if got := LastDayOfMonth(tt.input); got != tt.expected {
				t.Errorf("LastDayOfMonth(%s) = %s, want %s", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseDecimalFromString(t *testing.T) {
	tests := []struct {
		input     string
		expected  decimal.Decimal
		wantError bool
	}{
		{"300", decimal.NewFromInt(300), false},
		{"100.50", decimal.RequireFromString("100.50"), false},
		{"$1,250.75", decimal.RequireFromString("1250.75"), false},
		{"-500.25", decimal.RequireFromString("-500.25"), false},
		{"", decimal.Zero, true},
		{"   ", decimal.Zero, true},
		{"invalid", decimal.Zero, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseDecimalFromString(tt.input)

			if (err != nil) != tt.wantError {
				t.Errorf("ParseDecimalFromString() error = %v, wantError %v", err, tt.wantError)
				return
			}

			if !tt.wantError && !result.Equal(tt.expected) {
				t.Errorf("ParseDecimalFromString() = %s, want %s", result.String(), tt.expected.String())
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		input     string
		expected  civil.Date
		wantError bool
	}{
		{"2018-12-15", civil.Date{Year: 2018, Month: time.December, Day: 15}, false},
		{"2018-12-15 23:59:59", civil.Date{Year: 2018, Month: time.December, Day: 15}, false},
		{"2018-12-15T10:30:00Z", civil.Date{Year: 2018, Month: time.December, Day: 15}, false},
		{"12/15/2018", civil.Date{Year: 2018, Month: time.December, Day: 15}, false},
		{"", civil.Date{}, true},
		{"not-a-date", civil.Date{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDate(tt.input)

			if (err != nil) != tt.wantError {
				t.Errorf("ParseDate() error = %v, wantError %v", err, tt.wantError)
				return
			}
			if !tt.wantError && got != tt.expected {
				t.Errorf("ParseDate() = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestCompareAmountsWithTolerance(t *testing.T) {
	a := decimal.RequireFromString("2100.00")
	b := decimal.RequireFromString("2100.01")

	if CompareAmountsWithTolerance(a, b, decimal.Zero) {
		t.Error("expected exact comparison to detect a one cent difference")
	}
	if !CompareAmountsWithTolerance(a, b, decimal.RequireFromString("0.01")) {
		t.Error("expected amounts to be within tolerance")
	}
}

func TestCreateTransactionRecordFromCSV(t *testing.T) {
	tests := []struct {
		name      string
		date      string
		method    string
		amount    string
		wantError bool
	}{
		{"valid", "2018-12-15", "payment01", "300", false},
		{"null payment method", "2018-12-15", "", "300", false},
		{"bad date", "15.12.2018x", "payment01", "300", true},
		{"bad amount", "2018-12-15", "payment01", "abc", true},
		{"empty amount", "2018-12-15", "payment01", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := CreateTransactionRecordFromCSV(tt.date, tt.method, "visa", "credit", "A029", "", "", tt.amount)

			if (err != nil) != tt.wantError {
				t.Fatalf("CreateTransactionRecordFromCSV() error = %v, wantError %v", err, tt.wantError)
			}
			if tt.wantError {
				return
			}
			if record.PaymentMethod.Valid != (tt.method != "") {
				t.Errorf("unexpected payment method %+v", record.PaymentMethod)
			}
			if !record.BackendName.IsNull() || !record.MerchantCategoryID.IsNull() {
				t.Error("expected empty cells to be read as null")
			}
		})
	}
}

func BenchmarkParseDecimalFromString(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = ParseDecimalFromString("1234.56")
	}
}
