package deletion

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/RamXX/tminus-sub002/internal/types"
)

// certPayload is the canonical serialization hashed into proof_hash. Field
// order is fixed; json.Marshal emits struct fields in declaration order with
// no whitespace, which keeps the hash stable across runs and verifiers.
type certPayload struct {
	EntityType string                `json:"entity_type"`
	EntityID   string                `json:"entity_id"`
	DeletedAt  string                `json:"deleted_at"`
	Summary    types.DeletionSummary `json:"deletion_summary"`
}

func canonicalPayload(entityType, entityID string, deletedAt time.Time, summary types.DeletionSummary) ([]byte, error) {
	return json.Marshal(certPayload{
		EntityType: entityType,
		EntityID:   entityID,
		DeletedAt:  deletedAt.UTC().Format(time.RFC3339),
		Summary:    summary,
	})
}

// ProofHash computes the lowercase-hex SHA-256 of the canonical payload.
func ProofHash(entityType, entityID string, deletedAt time.Time, summary types.DeletionSummary) (string, error) {
	payload, err := canonicalPayload(entityType, entityID, deletedAt, summary)
	if err != nil {
		return "", fmt.Errorf("canonicalize certificate: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// Sign computes the lowercase-hex HMAC-SHA-256 of the proof hash under the
// master key.
func Sign(proofHash string, masterKey []byte) string {
	mac := hmac.New(sha256.New, masterKey)
	mac.Write([]byte(proofHash))
	return hex.EncodeToString(mac.Sum(nil))
}

// NewCertificate builds a signed deletion certificate. Retries mint a fresh
// certificate id; the registry keeps whichever was stored first.
func NewCertificate(entityType, entityID string, deletedAt time.Time, summary types.DeletionSummary, masterKey []byte) (*types.DeletionCertificate, error) {
	proof, err := ProofHash(entityType, entityID, deletedAt, summary)
	if err != nil {
		return nil, err
	}
	return &types.DeletionCertificate{
		CertID:     uuid.NewString(),
		EntityType: entityType,
		EntityID:   entityID,
		DeletedAt:  deletedAt.UTC(),
		Summary:    summary,
		ProofHash:  proof,
		Signature:  Sign(proof, masterKey),
	}, nil
}

// marshalSummary renders the summary in its canonical field order for
// registry storage.
func marshalSummary(s types.DeletionSummary) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}
	return string(b), nil
}

// ParseSummary decodes a summary serialization read back from the registry.
func ParseSummary(raw string) (types.DeletionSummary, error) {
	var s types.DeletionSummary
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return s, fmt.Errorf("parse summary: %w", err)
	}
	return s, nil
}

// Verify recomputes the proof hash and signature of a certificate. Any
// tampering with the identity fields or the summary, or a wrong key, fails.
func Verify(c *types.DeletionCertificate, masterKey []byte) error {
	proof, err := ProofHash(c.EntityType, c.EntityID, c.DeletedAt, c.Summary)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(proof), []byte(c.ProofHash)) {
		return fmt.Errorf("proof hash mismatch for %s/%s", c.EntityType, c.EntityID)
	}
	want := Sign(proof, masterKey)
	if !hmac.Equal([]byte(want), []byte(c.Signature)) {
		return fmt.Errorf("signature mismatch for %s/%s", c.EntityType, c.EntityID)
	}
	return nil
}
