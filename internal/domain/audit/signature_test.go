package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	log := NewAuditLog(&AuditEntry{
		EntityType: EntityTypeOffer,
		EntityID:   "5d1f2b9c-2f43-4a35-9d5c-3f4a7a2b1c11",
		Action:     ActionAccept,
		Actor:      "M-10001",
		FromStatus: "pending",
		ToStatus:   "accepted",
	})

	ok, err := VerifyAuditLogSignature(log, key)
	require.NoError(t, err)
	assert.False(t, ok, "unsigned log must not verify")

	sig, err := SignAuditLog(log, key)
	require.NoError(t, err)
	log.Signature = sig

	ok, err = VerifyAuditLogSignature(log, key)
	require.NoError(t, err)
	assert.True(t, ok)

	log.ToStatus = "rejected"
	ok, err = VerifyAuditLogSignature(log, key)
	require.NoError(t, err)
	assert.False(t, ok, "tampered log must not verify")
}
