package pgstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/davidahmann/parliament/internal/ledger"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

type Store struct {
	db *sql.DB
}

var _ ledger.Log = (*Store)(nil)

func OpenPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) Append(ctx context.Context, rec ledger.StoredRecord) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO parliament_audit_records
(record_id, request_id, session_id, schema_version, direction, created_at, body_json, body_text, body_digest, key_id, sig)
VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $7, $8, $9, $10)`,
			rec.RecordID, rec.RequestID, rec.SessionID, rec.Schema, rec.Direction, rec.CreatedAt,
			string(rec.BodyJSON), rec.BodyDigest, rec.KeyID, rec.Sig)
		if isUniqueViolation(err) {
			return ledger.ErrDuplicateRecord
		}
		return err
	})
}

// body_text keeps the exact signed bytes; jsonb would reorder keys.
const recordColumns = `record_id, request_id, session_id, schema_version, direction, created_at::text, body_text, body_digest, key_id, sig`

func (s *Store) Get(ctx context.Context, recordID string) (ledger.StoredRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM parliament_audit_records WHERE record_id = $1`, recordID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.StoredRecord{}, ledger.ErrRecordNotFound
	}
	return rec, err
}

func (s *Store) GetByRequestID(ctx context.Context, requestID string) (ledger.StoredRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM parliament_audit_records
WHERE request_id = $1
ORDER BY seq ASC
LIMIT 1`, requestID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.StoredRecord{}, ledger.ErrRecordNotFound
	}
	return rec, err
}

func (s *Store) ReadBySession(ctx context.Context, sessionID string, limit int) ([]ledger.StoredRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM parliament_audit_records
WHERE session_id = $1
ORDER BY seq ASC
LIMIT $2`, sessionID, ledger.NormalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

func (s *Store) ReadAll(ctx context.Context, limit int) ([]ledger.StoredRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM (
  SELECT * FROM parliament_audit_records ORDER BY seq DESC LIMIT $1
) recent ORDER BY seq ASC`, ledger.NormalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

func (s *Store) AppendRedaction(ctx context.Context, red ledger.StoredRedaction) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM parliament_audit_records WHERE record_id = $1`, red.RecordID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.ErrRecordNotFound
		}
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO parliament_audit_redactions(redaction_id, record_id, created_at, body_json) VALUES ($1, $2, $3, $4)`,
			red.RedactionID, red.RecordID, red.CreatedAt, string(red.BodyJSON))
		if isUniqueViolation(err) {
			return ledger.ErrDuplicateRecord
		}
		return err
	})
}

func (s *Store) Redactions(ctx context.Context, recordID string) ([]ledger.StoredRedaction, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT redaction_id, record_id, created_at::text, body_json FROM parliament_audit_redactions
WHERE record_id = $1
ORDER BY seq ASC`, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ledger.StoredRedaction{}
	for rows.Next() {
		var red ledger.StoredRedaction
		var body string
		if err := rows.Scan(&red.RedactionID, &red.RecordID, &red.CreatedAt, &body); err != nil {
			return nil, err
		}
		red.BodyJSON = []byte(body)
		out = append(out, red)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (ledger.StoredRecord, error) {
	var rec ledger.StoredRecord
	var body string
	if err := row.Scan(&rec.RecordID, &rec.RequestID, &rec.SessionID, &rec.Schema, &rec.Direction, &rec.CreatedAt, &body, &rec.BodyDigest, &rec.KeyID, &rec.Sig); err != nil {
		return ledger.StoredRecord{}, err
	}
	rec.BodyJSON = []byte(body)
	return rec, nil
}

func collectRecords(rows *sql.Rows) ([]ledger.StoredRecord, error) {
	defer rows.Close()
	out := []ledger.StoredRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
