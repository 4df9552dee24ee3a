package labelformat

import "encoding/json"

// TracePayload is the QR/barcode payload linking a physical label back to
// its database record. LabelID is empty (omitted) for preview payloads
// generated before the record is persisted.
type TracePayload struct {
	LabelID    string `json:"labelId,omitempty"`
	Product    string `json:"product"`
	PrepDate   string `json:"prepDate"`
	ExpiryDate string `json:"expiryDate"`
	Batch      string `json:"batch,omitempty"`
	PreparedBy string `json:"preparedBy"`
	Org        string `json:"org,omitempty"`
}

// TraceJSON serializes the traceability payload for a label. The field
// order is fixed by the struct, so identical labels always produce
// byte-identical payloads.
func TraceJSON(l *LabelData) string {
	payload := TracePayload{
		LabelID:    l.LabelID,
		Product:    l.ProductName,
		PrepDate:   l.PrepDate,
		ExpiryDate: l.ExpiryDate,
		Batch:      l.BatchNumber,
		PreparedBy: l.PreparedBy,
		Org:        l.OrganizationID,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		// Marshaling a flat string struct cannot fail; keep the QR non-empty
		// anyway so a malformed label still prints something scannable
		return l.ProductName
	}
	return string(data)
}
