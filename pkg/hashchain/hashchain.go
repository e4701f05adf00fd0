// Package hashchain implements the canonical serialization and SHA-256
// chaining that makes the audit log tamper-evident. Each event's hash is
// H(previous_hash_for_case || canonical(event)); re-deriving the chain over
// a case's ordered events detects any mutation, insertion or deletion.
package hashchain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/casetrail/engine/pkg/models"
)

// GenesisHash seeds the chain for a case's first event.
const GenesisHash = ""

// Sum returns the hex-encoded SHA-256 of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SumString returns the hex-encoded SHA-256 of a string.
func SumString(s string) string {
	return Sum([]byte(s))
}

// Canonical produces the stable byte serialization of an audit event used
// for hashing. The event's own Hash and PrevHash are excluded; map keys are
// sorted by encoding/json. The payload is normalized before it participates:
// jsonb columns re-render object keys and whitespace on read, so hashing the
// raw stored bytes would break verification over persisted rows.
func Canonical(e *models.AuditEvent) ([]byte, error) {
	payload, err := normalizePayload(e.Payload)
	if err != nil {
		return nil, err
	}
	canonical := map[string]any{
		"case_id":     e.CaseID.String(),
		"sequence_no": e.SequenceNo,
		"event_type":  string(e.EventType),
		"payload":     payload,
		"actor":       e.Actor,
		"created_at":  e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(canonical)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize event: %w", err)
	}
	return data, nil
}

// normalizePayload decodes and re-marshals the payload so two renderings of
// the same JSON document hash identically: object keys come out sorted,
// insignificant whitespace is dropped and numeric literals are preserved via
// json.Number. Array order is significant and survives unchanged.
func normalizePayload(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return json.RawMessage("null"), nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode event payload: %w", err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize event payload: %w", err)
	}
	return out, nil
}

// Next computes the chained hash for an event given the previous event's
// hash for the same case ("" for the first event).
func Next(prevHash string, e *models.AuditEvent) (string, error) {
	canonical, err := Canonical(e)
	if err != nil {
		return "", err
	}
	return Sum(append([]byte(prevHash), canonical...)), nil
}

// Verify re-derives the hash chain over a case's ordered events and reports
// the first inconsistency: a sequence gap, a wrong prev-hash link, or a
// stored hash that does not match the recomputed one.
func Verify(events []*models.AuditEvent) error {
	prevHash := GenesisHash
	for i, e := range events {
		if want := int64(i + 1); e.SequenceNo != want {
			return fmt.Errorf("sequence gap at position %d: got %d, want %d", i, e.SequenceNo, want)
		}
		if e.PrevHash != prevHash {
			return fmt.Errorf("broken chain at seq %d: prev_hash mismatch", e.SequenceNo)
		}
		computed, err := Next(prevHash, e)
		if err != nil {
			return err
		}
		if computed != e.Hash {
			return fmt.Errorf("hash mismatch at seq %d: event content differs from recorded hash", e.SequenceNo)
		}
		prevHash = e.Hash
	}
	return nil
}
