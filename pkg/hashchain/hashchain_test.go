package hashchain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casetrail/engine/pkg/models"
)

func buildChain(t *testing.T, caseID uuid.UUID, n int) []*models.AuditEvent {
	t.Helper()
	events := make([]*models.AuditEvent, 0, n)
	prevHash := GenesisHash
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		e := &models.AuditEvent{
			ID:         uuid.New(),
			CaseID:     caseID,
			SequenceNo: int64(i + 1),
			EventType:  models.EventCaseStateChanged,
			Payload:    json.RawMessage(`{"step":` + string(rune('0'+i)) + `}`),
			Actor:      "system:system",
			PrevHash:   prevHash,
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		}
		hash, err := Next(prevHash, e)
		require.NoError(t, err)
		e.Hash = hash
		prevHash = hash
		events = append(events, e)
	}
	return events
}

func TestCanonicalIsStable(t *testing.T) {
	e := &models.AuditEvent{
		CaseID:     uuid.MustParse("6f1c2b34-0000-4000-8000-000000000001"),
		SequenceNo: 1,
		EventType:  models.EventCaseCreated,
		Payload:    json.RawMessage(`{"customer_id":"C1"}`),
		Actor:      "analyst:jane",
		CreatedAt:  time.Date(2026, 3, 1, 9, 0, 0, 123456789, time.UTC),
	}

	first, err := Canonical(e)
	require.NoError(t, err)
	second, err := Canonical(e)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Hash and PrevHash are excluded from the canonical form.
	e.Hash = "deadbeef"
	e.PrevHash = "cafebabe"
	third, err := Canonical(e)
	require.NoError(t, err)
	assert.Equal(t, first, third)
}

func TestCanonicalNilPayload(t *testing.T) {
	e := &models.AuditEvent{CaseID: uuid.New(), SequenceNo: 1, EventType: models.EventCaseCreated}
	data, err := Canonical(e)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"payload":null`)
}

func TestNextChangesWithPrevHash(t *testing.T) {
	e := &models.AuditEvent{
		CaseID:     uuid.New(),
		SequenceNo: 2,
		EventType:  models.EventRulesEvaluated,
		CreatedAt:  time.Now().UTC(),
	}

	fromGenesis, err := Next(GenesisHash, e)
	require.NoError(t, err)
	fromOther, err := Next("abc123", e)
	require.NoError(t, err)
	assert.NotEqual(t, fromGenesis, fromOther)
	assert.Len(t, fromGenesis, 64)
}

func TestVerifyAcceptsValidChain(t *testing.T) {
	events := buildChain(t, uuid.New(), 5)
	assert.NoError(t, Verify(events))
	assert.NoError(t, Verify(nil))
}

func TestVerifySurvivesStorageRendering(t *testing.T) {
	caseID := uuid.New()
	e := &models.AuditEvent{
		ID:         uuid.New(),
		CaseID:     caseID,
		SequenceNo: 1,
		EventType:  models.EventCaseStateChanged,
		Payload:    json.RawMessage(`{"from_state":"NEW","to_state":"RULES_EVALUATED","reason":"rules evaluation complete"}`),
		Actor:      "system:system",
		PrevHash:   GenesisHash,
		CreatedAt:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	hash, err := Next(GenesisHash, e)
	require.NoError(t, err)
	e.Hash = hash

	// jsonb re-renders objects on read: keys ordered by length then bytes,
	// spaces after colons and commas. The chain must still verify.
	e.Payload = json.RawMessage(`{"reason": "rules evaluation complete", "to_state": "RULES_EVALUATED", "from_state": "NEW"}`)
	assert.NoError(t, Verify([]*models.AuditEvent{e}))

	// A changed value is still tampering, whatever the rendering.
	e.Payload = json.RawMessage(`{"reason": "rules evaluation complete", "to_state": "APPROVED", "from_state": "NEW"}`)
	err = Verify([]*models.AuditEvent{e})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash mismatch at seq 1")
}

func TestVerifyDetectsPayloadTampering(t *testing.T) {
	events := buildChain(t, uuid.New(), 5)
	events[2].Payload = json.RawMessage(`{"step":"forged"}`)

	err := Verify(events)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash mismatch at seq 3")
}

func TestVerifyDetectsDeletedEvent(t *testing.T) {
	events := buildChain(t, uuid.New(), 5)
	// Removing an interior event leaves a sequence gap.
	tampered := append([]*models.AuditEvent{}, events[0], events[1], events[3], events[4])

	err := Verify(tampered)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sequence gap")
}

func TestVerifyDetectsRelinkedChain(t *testing.T) {
	events := buildChain(t, uuid.New(), 3)
	// An attacker rewrites an event and recomputes its hash but cannot fix
	// the next event's prev-hash link without rewriting everything after it.
	events[1].Actor = "analyst:mallory"
	hash, err := Next(events[0].Hash, events[1])
	require.NoError(t, err)
	events[1].Hash = hash

	verr := Verify(events)
	require.Error(t, verr)
	assert.Contains(t, verr.Error(), "prev_hash mismatch")
}

func TestVerifyDetectsWrongGenesis(t *testing.T) {
	events := buildChain(t, uuid.New(), 2)
	events[0].PrevHash = "0000"

	err := Verify(events)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prev_hash mismatch")
}

func TestSumString(t *testing.T) {
	// Known SHA-256 of the empty string.
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		SumString(""))
	assert.NotEqual(t, SumString("a"), SumString("b"))
}
