package ledger

import (
	"context"
	"errors"
)

var (
	ErrDuplicateRecord = errors.New("audit record already exists")
	ErrRecordNotFound  = errors.New("audit record not found")
)

// DefaultReadLimit bounds reads that pass a non-positive limit.
const DefaultReadLimit = 100

// Log is the append-only audit log. There is no update or delete; redactions
// are appended as separate records that reference the original.
type Log interface {
	Append(ctx context.Context, rec StoredRecord) error
	Get(ctx context.Context, recordID string) (StoredRecord, error)
	// GetByRequestID returns the earliest record appended for requestID.
	GetByRequestID(ctx context.Context, requestID string) (StoredRecord, error)
	// ReadBySession returns a session's records in append order.
	ReadBySession(ctx context.Context, sessionID string, limit int) ([]StoredRecord, error)
	// ReadAll returns the most recent records, oldest first.
	ReadAll(ctx context.Context, limit int) ([]StoredRecord, error)

	AppendRedaction(ctx context.Context, red StoredRedaction) error
	Redactions(ctx context.Context, recordID string) ([]StoredRedaction, error)
}

type StoredRecord struct {
	RecordID   string
	RequestID  string
	SessionID  string
	Schema     string
	Direction  string
	CreatedAt  string
	BodyJSON   []byte
	BodyDigest string
	KeyID      string
	Sig        []byte
}

type StoredRedaction struct {
	RedactionID string
	RecordID    string
	CreatedAt   string
	BodyJSON    []byte
}

// NormalizeLimit applies DefaultReadLimit to non-positive limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultReadLimit
	}
	return limit
}
