package labelformat

import (
	"fmt"
	"math/rand"
	"time"
)

// ValidationError reports a missing required field. It is raised before any
// persistence or transport I/O is attempted and is never retried.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("label validation failed: %s is required", e.Field)
}

// ValidateForPrint checks the fields that must be present before a label may
// be persisted or sent to a printer. Every printed label must attribute a
// preparer and an organization.
func ValidateForPrint(l *LabelData) error {
	if l.ProductName == "" {
		return &ValidationError{Field: "product_name"}
	}
	if l.PreparedBy == "" {
		return &ValidationError{Field: "prepared_by"}
	}
	if l.PreparedByName == "" {
		return &ValidationError{Field: "prepared_by_name"}
	}
	if l.OrganizationID == "" {
		return &ValidationError{Field: "organization_id"}
	}
	return nil
}

const batchTokenChars = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewBatchNumber generates a {timestamp}-{random} batch token for labels
// that arrive without one
func NewBatchNumber() string {
	token := make([]byte, 6)
	for i := range token {
		token[i] = batchTokenChars[rand.Intn(len(batchTokenChars))]
	}
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), token)
}

// EnsureBatchNumber fills in a generated batch token if the caller did not
// supply one
func (l *LabelData) EnsureBatchNumber() {
	if l.BatchNumber == "" {
		l.BatchNumber = NewBatchNumber()
	}
}
