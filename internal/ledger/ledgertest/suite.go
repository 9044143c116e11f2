// Package ledgertest holds a conformance suite shared by the ledger.Log
// backends.
package ledgertest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidahmann/parliament/internal/ledger"
)

// Record returns a stored record with the given id and session. Bodies are
// opaque to the backends so they need not be signed.
func Record(id, sessionID string, n int) ledger.StoredRecord {
	return ledger.StoredRecord{
		RecordID:   id,
		RequestID:  fmt.Sprintf("req-%d", n),
		SessionID:  sessionID,
		Schema:     ledger.AuditSchema,
		Direction:  "APPROVE",
		CreatedAt:  fmt.Sprintf("2026-10-01T00:00:%02dZ", n%60),
		BodyJSON:   []byte(fmt.Sprintf(`{"n":%d,"schema":"parliament.audit.v1"}`, n)),
		BodyDigest: id,
		KeyID:      "test",
		Sig:        []byte{0x01, byte(n)},
	}
}

// Run exercises append, duplicate rejection, reads and redactions against
// a fresh Log from open.
func Run(t *testing.T, open func(t *testing.T) ledger.Log) {
	t.Helper()
	ctx := context.Background()

	t.Run("AppendAndGet", func(t *testing.T) {
		l := open(t)
		rec := Record("sha256:a1", "s1", 1)
		require.NoError(t, l.Append(ctx, rec))

		got, err := l.Get(ctx, "sha256:a1")
		require.NoError(t, err)
		assert.Equal(t, rec.RecordID, got.RecordID)
		assert.Equal(t, rec.RequestID, got.RequestID)
		assert.Equal(t, rec.SessionID, got.SessionID)
		assert.Equal(t, rec.Direction, got.Direction)
		assert.Equal(t, string(rec.BodyJSON), string(got.BodyJSON))
		assert.Equal(t, rec.Sig, got.Sig)
		assert.Equal(t, rec.KeyID, got.KeyID)

		_, err = l.Get(ctx, "sha256:missing")
		assert.ErrorIs(t, err, ledger.ErrRecordNotFound)
	})

	t.Run("DuplicateRejected", func(t *testing.T) {
		l := open(t)
		rec := Record("sha256:dup", "s1", 1)
		require.NoError(t, l.Append(ctx, rec))
		assert.ErrorIs(t, l.Append(ctx, rec), ledger.ErrDuplicateRecord)
	})

	t.Run("GetByRequestIDReturnsFirst", func(t *testing.T) {
		l := open(t)
		first := Record("sha256:q1", "s1", 7)
		second := Record("sha256:q2", "s1", 7)
		require.NoError(t, l.Append(ctx, first))
		require.NoError(t, l.Append(ctx, second))
		require.NoError(t, l.Append(ctx, Record("sha256:q3", "s1", 8)))

		got, err := l.GetByRequestID(ctx, "req-7")
		require.NoError(t, err)
		assert.Equal(t, "sha256:q1", got.RecordID)

		got, err = l.GetByRequestID(ctx, "req-8")
		require.NoError(t, err)
		assert.Equal(t, "sha256:q3", got.RecordID)

		_, err = l.GetByRequestID(ctx, "req-missing")
		assert.ErrorIs(t, err, ledger.ErrRecordNotFound)
	})

	t.Run("ReadBySessionInAppendOrder", func(t *testing.T) {
		l := open(t)
		for i := 0; i < 5; i++ {
			session := "s1"
			if i%2 == 1 {
				session = "s2"
			}
			require.NoError(t, l.Append(ctx, Record(fmt.Sprintf("sha256:r%d", i), session, i)))
		}

		got, err := l.ReadBySession(ctx, "s1", 0)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "sha256:r0", got[0].RecordID)
		assert.Equal(t, "sha256:r2", got[1].RecordID)
		assert.Equal(t, "sha256:r4", got[2].RecordID)

		got, err = l.ReadBySession(ctx, "s1", 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "sha256:r2", got[1].RecordID)

		got, err = l.ReadBySession(ctx, "nobody", 10)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("ReadAllReturnsMostRecent", func(t *testing.T) {
		l := open(t)
		for i := 0; i < 4; i++ {
			require.NoError(t, l.Append(ctx, Record(fmt.Sprintf("sha256:all%d", i), "", i)))
		}

		got, err := l.ReadAll(ctx, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "sha256:all2", got[0].RecordID)
		assert.Equal(t, "sha256:all3", got[1].RecordID)

		got, err = l.ReadAll(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, got, 4)
	})

	t.Run("Redactions", func(t *testing.T) {
		l := open(t)
		require.NoError(t, l.Append(ctx, Record("sha256:red", "s1", 1)))

		red := ledger.StoredRedaction{
			RedactionID: "sha256:x1",
			RecordID:    "sha256:red",
			CreatedAt:   "2026-10-01T00:01:00Z",
			BodyJSON:    []byte(`{"reason":"pii"}`),
		}
		require.NoError(t, l.AppendRedaction(ctx, red))

		missing := red
		missing.RedactionID = "sha256:x2"
		missing.RecordID = "sha256:nope"
		assert.ErrorIs(t, l.AppendRedaction(ctx, missing), ledger.ErrRecordNotFound)

		got, err := l.Redactions(ctx, "sha256:red")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "sha256:x1", got[0].RedactionID)
		assert.Equal(t, `{"reason":"pii"}`, string(got[0].BodyJSON))

		// The original record is untouched.
		rec, err := l.Get(ctx, "sha256:red")
		require.NoError(t, err)
		assert.Equal(t, string(Record("sha256:red", "s1", 1).BodyJSON), string(rec.BodyJSON))

		got, err = l.Redactions(ctx, "sha256:none")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
