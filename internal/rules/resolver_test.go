package rules

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDottedPath(t *testing.T) {
	entity := &Entity{
		Type: EntityTypeVendor,
		ID:   uuid.New(),
		Attributes: map[string]interface{}{
			"country": "ZA",
			"documents": map[string]interface{}{
				"taxClearance": map[string]interface{}{
					"number":   "TCC-2026-001",
					"verified": true,
				},
			},
			"rating": nil,
		},
	}

	value, ok := entity.Resolve("country")
	require.True(t, ok)
	assert.Equal(t, "ZA", value)

	value, ok = entity.Resolve("documents.taxClearance.number")
	require.True(t, ok)
	assert.Equal(t, "TCC-2026-001", value)

	_, ok = entity.Resolve("documents.bbbeeCertificate")
	assert.False(t, ok)

	_, ok = entity.Resolve("documents.taxClearance.number.digits")
	assert.False(t, ok)

	// An explicit nil counts as absent
	_, ok = entity.Resolve("rating")
	assert.False(t, ok)

	_, ok = entity.Resolve("nope")
	assert.False(t, ok)
}

func TestVendorEntitySnapshot(t *testing.T) {
	vendorID := uuid.New()
	expiry := time.Date(2027, 6, 30, 0, 0, 0, 0, time.UTC)

	entity := NewVendorEntity(vendorID, "ZA", false, 4.2, []string{"construction", "consulting"}, map[string]bool{"bbbeeLevel1": true}, []VendorDocument{
		{DocumentType: "taxClearance", Number: "TCC-001", ExpiresAt: expiry, Verified: true},
	})

	assert.Equal(t, EntityTypeVendor, entity.Type)
	assert.Equal(t, vendorID, entity.ID)

	value, ok := entity.Resolve("documents.taxClearance.expiryDate")
	require.True(t, ok)
	assert.Equal(t, expiry, value)

	value, ok = entity.Resolve("categories")
	require.True(t, ok)
	assert.Equal(t, "construction,consulting", value)

	value, ok = entity.Resolve("blacklisted")
	require.True(t, ok)
	assert.Equal(t, false, value)

	value, ok = entity.Resolve("preferences.bbbeeLevel1")
	require.True(t, ok)
	assert.Equal(t, true, value)

	_, ok = entity.Resolve("preferences.bbbeeLevel2")
	assert.False(t, ok)
}

func TestSubmissionEntitySnapshot(t *testing.T) {
	submissionID := uuid.New()
	vendorID := uuid.New()

	entity := NewSubmissionEntity(submissionID, vendorID, 250000, 35.5, nil)

	assert.Equal(t, EntityTypeSubmission, entity.Type)

	value, ok := entity.Resolve("vendorId")
	require.True(t, ok)
	assert.Equal(t, vendorID.String(), value)

	value, ok = entity.Resolve("localContent")
	require.True(t, ok)
	assert.Equal(t, 35.5, value)
}
