package labelformat

import (
	"regexp"
	"strings"
	"testing"
)

func sampleLabel() *LabelData {
	return &LabelData{
		ProductName:    "Chicken Soup",
		CategoryName:   "Soups",
		PreparedBy:     "u1",
		PreparedByName: "Ana",
		OrganizationID: "org1",
		PrepDate:       "2025-01-10",
		ExpiryDate:     "2025-01-13",
		Condition:      "Refrigerate",
		Allergens:      []Allergen{{ID: "a1", Name: "Dairy"}},
	}
}

func TestValidateForPrint(t *testing.T) {
	label := sampleLabel()
	if err := ValidateForPrint(label); err != nil {
		t.Fatalf("expected valid label, got %v", err)
	}
}

func TestValidateForPrint_MissingPreparer(t *testing.T) {
	label := sampleLabel()
	label.PreparedBy = ""

	err := ValidateForPrint(label)
	if err == nil {
		t.Fatal("expected validation error for missing preparer")
	}

	var vErr *ValidationError
	ok := false
	if e, isVal := err.(*ValidationError); isVal {
		vErr = e
		ok = true
	}
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if vErr.Field != "prepared_by" {
		t.Errorf("expected field 'prepared_by', got '%s'", vErr.Field)
	}
}

func TestValidateForPrint_MissingOrganization(t *testing.T) {
	label := sampleLabel()
	label.OrganizationID = ""

	if err := ValidateForPrint(label); err == nil {
		t.Fatal("expected validation error for missing organization")
	}
}

func TestCategoryFallback(t *testing.T) {
	label := sampleLabel()
	label.CategoryName = ""

	if got := label.Category(); got != DefaultCategory {
		t.Errorf("expected '%s', got '%s'", DefaultCategory, got)
	}
}

func TestEnsureBatchNumber(t *testing.T) {
	label := sampleLabel()
	label.EnsureBatchNumber()

	pattern := regexp.MustCompile(`^\d+-[a-z0-9]+$`)
	if !pattern.MatchString(label.BatchNumber) {
		t.Errorf("batch number '%s' does not match {digits}-{alphanumeric}", label.BatchNumber)
	}

	// A caller-supplied batch number is never overwritten
	label.BatchNumber = "B-42"
	label.EnsureBatchNumber()
	if label.BatchNumber != "B-42" {
		t.Errorf("expected supplied batch number to survive, got '%s'", label.BatchNumber)
	}
}

func TestAddressLines_StructuredJSON(t *testing.T) {
	org := &OrganizationDetails{
		Address: `{"street":"12 Baker St","city":"Dublin","postcode":"D02"}`,
	}

	lines := org.AddressLines()
	if len(lines) != 2 {
		t.Fatalf("expected 2 address lines, got %d: %v", len(lines), lines)
	}
	if lines[0] != "12 Baker St" {
		t.Errorf("unexpected street line: %s", lines[0])
	}
	if lines[1] != "Dublin, D02" {
		t.Errorf("unexpected locality line: %s", lines[1])
	}
}

func TestAddressLines_MalformedJSONDegradesToRaw(t *testing.T) {
	org := &OrganizationDetails{Address: `{"street": broken`}

	lines := org.AddressLines()
	if len(lines) != 1 || lines[0] != `{"street": broken` {
		t.Errorf("expected raw fallback, got %v", lines)
	}
}

func TestTraceJSON(t *testing.T) {
	label := sampleLabel()
	label.LabelID = "L123"
	label.BatchNumber = "1700000000-abc123"

	payload := TraceJSON(label)
	for _, want := range []string{`"labelId":"L123"`, `"product":"Chicken Soup"`, `"prepDate":"2025-01-10"`} {
		if !strings.Contains(payload, want) {
			t.Errorf("trace payload missing %s: %s", want, payload)
		}
	}
}

func TestTraceJSON_OmitsUnresolvedLabelID(t *testing.T) {
	label := sampleLabel()

	payload := TraceJSON(label)
	if strings.Contains(payload, "labelId") {
		t.Errorf("preview payload should omit labelId: %s", payload)
	}
}

func TestParseRoundTrip(t *testing.T) {
	label := sampleLabel()

	data, err := label.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}

	parsed, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if parsed.ProductName != "Chicken Soup" {
		t.Errorf("expected product to survive round trip, got '%s'", parsed.ProductName)
	}
	if len(parsed.Allergens) != 1 || parsed.Allergens[0].Name != "Dairy" {
		t.Errorf("expected allergens to survive round trip, got %v", parsed.Allergens)
	}
}
