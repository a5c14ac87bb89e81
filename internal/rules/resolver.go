package rules

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entity is a tagged attribute snapshot of a vendor, submission or document,
// passed to the evaluator by the surrounding application layer. Attributes
// are nested string-keyed maps that rule fields resolve dotted paths against.
type Entity struct {
	Type       EntityType             `json:"type"`
	ID         uuid.UUID              `json:"id"`
	Attributes map[string]interface{} `json:"attributes"`
}

// Resolve walks a dotted field path (e.g. "documents.taxClearance.expiryDate")
// through the attribute maps. The second return value reports whether the
// full path was present.
func (e *Entity) Resolve(field string) (interface{}, bool) {
	parts := strings.Split(field, ".")
	var current interface{} = e.Attributes

	for _, part := range parts {
		node, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = node[part]
		if !ok {
			return nil, false
		}
	}

	if current == nil {
		return nil, false
	}
	return current, true
}

// VendorDocument is one uploaded compliance document in a vendor or
// submission snapshot.
type VendorDocument struct {
	DocumentType string
	Number       string
	IssuedAt     time.Time
	ExpiresAt    time.Time
	Verified     bool
}

// NewVendorEntity builds a vendor attribute snapshot with the known vendor
// shape. Documents are keyed by document type under "documents", claimed
// preferential categories by category field under "preferences".
func NewVendorEntity(id uuid.UUID, country string, blacklisted bool, rating float64, categories []string, preferences map[string]bool, docs []VendorDocument) *Entity {
	attrs := map[string]interface{}{
		"country":     country,
		"blacklisted": blacklisted,
		"rating":      rating,
		"categories":  strings.Join(categories, ","),
		"preferences": preferenceAttributes(preferences),
		"documents":   documentAttributes(docs),
	}
	return &Entity{Type: EntityTypeVendor, ID: id, Attributes: attrs}
}

// NewSubmissionEntity builds a bid submission attribute snapshot.
func NewSubmissionEntity(id uuid.UUID, vendorID uuid.UUID, bidAmount float64, localContent float64, docs []VendorDocument) *Entity {
	attrs := map[string]interface{}{
		"vendorId":     vendorID.String(),
		"bidAmount":    bidAmount,
		"localContent": localContent,
		"documents":    documentAttributes(docs),
	}
	return &Entity{Type: EntityTypeSubmission, ID: id, Attributes: attrs}
}

// NewDocumentEntity builds a single-document attribute snapshot.
func NewDocumentEntity(id uuid.UUID, doc VendorDocument) *Entity {
	attrs := map[string]interface{}{
		"documentType": doc.DocumentType,
		"number":       doc.Number,
		"issuedAt":     doc.IssuedAt,
		"expiryDate":   doc.ExpiresAt,
		"verified":     doc.Verified,
	}
	return &Entity{Type: EntityTypeDocument, ID: id, Attributes: attrs}
}

func preferenceAttributes(preferences map[string]bool) map[string]interface{} {
	out := make(map[string]interface{}, len(preferences))
	for field, claimed := range preferences {
		out[field] = claimed
	}
	return out
}

func documentAttributes(docs []VendorDocument) map[string]interface{} {
	out := make(map[string]interface{}, len(docs))
	for _, doc := range docs {
		out[doc.DocumentType] = map[string]interface{}{
			"number":     doc.Number,
			"issuedAt":   doc.IssuedAt,
			"expiryDate": doc.ExpiresAt,
			"verified":   doc.Verified,
		}
	}
	return out
}
