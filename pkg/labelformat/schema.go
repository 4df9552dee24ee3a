// Package labelformat defines the types for printable food-safety labels
package labelformat

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// DefaultCategory is used when a label is not tied to a catalog category
const DefaultCategory = "Quick Print"

// LabelData is the canonical representation of one printable label
type LabelData struct {
	// LabelID is assigned by the label store once the record is persisted.
	// Payloads generated before that (preview/test) simply omit it.
	LabelID string `json:"label_id,omitempty"`

	ProductID    string `json:"product_id,omitempty"`
	ProductName  string `json:"product_name"`
	CategoryName string `json:"category_name,omitempty"`

	// Preparer attribution is a food-safety audit requirement; both fields
	// are validated before any persistence or transport happens.
	PreparedBy     string `json:"prepared_by"`
	PreparedByName string `json:"prepared_by_name"`

	OrganizationID string `json:"organization_id"`

	PrepDate   string `json:"prep_date"`   // ISO 8601 date
	ExpiryDate string `json:"expiry_date"` // ISO 8601 date

	Condition   string `json:"condition,omitempty"` // e.g. "Refrigerate"
	Quantity    string `json:"quantity,omitempty"`
	Unit        string `json:"unit,omitempty"`
	BatchNumber string `json:"batch_number,omitempty"`

	Allergens []Allergen `json:"allergens,omitempty"`

	Organization *OrganizationDetails `json:"organization_details,omitempty"`
}

// Allergen is one allergen entry on a label
type Allergen struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Icon     string `json:"icon,omitempty"`
	Severity string `json:"severity,omitempty"`
}

// OrganizationDetails is denormalized footer data for the label
type OrganizationDetails struct {
	Name                   string `json:"name,omitempty"`
	Address                string `json:"address,omitempty"`
	Phone                  string `json:"phone,omitempty"`
	Email                  string `json:"email,omitempty"`
	FoodSafetyRegistration string `json:"food_safety_registration,omitempty"`
}

// Category returns the category name, falling back to the quick-print
// sentinel when the label is not tied to a catalog row
func (l *LabelData) Category() string {
	if l.CategoryName == "" {
		return DefaultCategory
	}
	return l.CategoryName
}

// AllergenNames returns the allergen display names in label order
func (l *LabelData) AllergenNames() []string {
	names := make([]string, 0, len(l.Allergens))
	for _, a := range l.Allergens {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	return names
}

// QuantityLine returns the display quantity ("2 kg"), or "" if not set
func (l *LabelData) QuantityLine() string {
	if l.Quantity == "" {
		return ""
	}
	if l.Unit == "" {
		return l.Quantity
	}
	return l.Quantity + " " + l.Unit
}

// AddressLines returns the organization address as display lines.
// Some upstream records store the address as a serialized JSON object, so
// this parses defensively and falls back to the raw string.
func (o *OrganizationDetails) AddressLines() []string {
	if o == nil || o.Address == "" {
		return nil
	}

	raw := strings.TrimSpace(o.Address)
	if strings.HasPrefix(raw, "{") {
		var parsed struct {
			Street   string `json:"street"`
			City     string `json:"city"`
			State    string `json:"state"`
			Postcode string `json:"postcode"`
			Country  string `json:"country"`
		}
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
			var lines []string
			if parsed.Street != "" {
				lines = append(lines, parsed.Street)
			}
			locality := joinNonEmpty([]string{parsed.City, parsed.State, parsed.Postcode}, ", ")
			if locality != "" {
				lines = append(lines, locality)
			}
			if parsed.Country != "" {
				lines = append(lines, parsed.Country)
			}
			if len(lines) > 0 {
				return lines
			}
		}
		// Unparseable JSON degrades to the raw string, never to an error
	}

	return []string{raw}
}

func joinNonEmpty(parts []string, sep string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

// Parse parses a label from JSON bytes
func Parse(data []byte) (*LabelData, error) {
	var label LabelData
	if err := json.Unmarshal(data, &label); err != nil {
		return nil, fmt.Errorf("failed to parse label: %w", err)
	}
	return &label, nil
}

// ParseFile parses a label JSON file from disk
func ParseFile(path string) (*LabelData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read label file: %w", err)
	}
	return Parse(data)
}

// ToJSON converts a label to indented JSON bytes
func (l *LabelData) ToJSON() ([]byte, error) {
	return json.MarshalIndent(l, "", "  ")
}
