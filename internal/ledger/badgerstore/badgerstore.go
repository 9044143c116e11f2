// Package badgerstore keeps the audit log in an embedded Badger database.
// Records live under rec/, with seq/ and sess/ index keys pointing at them
// in append order. req/ maps a request id to its first record.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/davidahmann/parliament/internal/ledger"
)

const (
	recordPrefix    = "rec/"
	seqPrefix       = "seq/"
	sessionPrefix   = "sess/"
	requestPrefix   = "req/"
	redactionPrefix = "red/"

	sequenceKey       = "meta/sequence"
	sequenceBandwidth = 100
)

type Config struct {
	// Path is the database directory; ignored when InMemory is set.
	Path       string
	InMemory   bool
	SyncWrites bool
	Logger     *zap.Logger
}

type Store struct {
	db  *badger.DB
	seq *badger.Sequence
}

var _ ledger.Log = (*Store)(nil)

func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(badgerLogger{cfg.Logger.Named("badger").Sugar()})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	seq, err := db.GetSequence([]byte(sequenceKey), sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open badger sequence: %w", err)
	}
	return &Store{db: db, seq: seq}, nil
}

func (s *Store) Close() error {
	relErr := s.seq.Release()
	if err := s.db.Close(); err != nil {
		return err
	}
	return relErr
}

// badgerLogger adapts zap to badger's Warningf-style logger.
type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.Warnf(format, args...)
}

type recordValue struct {
	RecordID   string `json:"record_id"`
	RequestID  string `json:"request_id"`
	SessionID  string `json:"session_id"`
	Schema     string `json:"schema"`
	Direction  string `json:"direction"`
	CreatedAt  string `json:"created_at"`
	BodyJSON   []byte `json:"body_json"`
	BodyDigest string `json:"body_digest"`
	KeyID      string `json:"key_id"`
	Sig        []byte `json:"sig"`
}

func recordKey(id string) []byte { return []byte(recordPrefix + id) }

func seqKey(n uint64) []byte { return []byte(fmt.Sprintf("%s%020d", seqPrefix, n)) }

// Session ids are free text, so a NUL separates them from the sequence.
func sessionKey(sessionID string, n uint64) []byte {
	return []byte(fmt.Sprintf("%s%s\x00%020d", sessionPrefix, sessionID, n))
}

func sessionScanPrefix(sessionID string) []byte {
	return []byte(sessionPrefix + sessionID + "\x00")
}

func requestKey(requestID string) []byte { return []byte(requestPrefix + requestID) }

func redactionKey(recordID string, n uint64) []byte {
	return []byte(fmt.Sprintf("%s%s\x00%020d", redactionPrefix, recordID, n))
}

func redactionScanPrefix(recordID string) []byte {
	return []byte(redactionPrefix + recordID + "\x00")
}

func (s *Store) Append(ctx context.Context, rec ledger.StoredRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := s.seq.Next()
	if err != nil {
		return err
	}
	value, err := json.Marshal(recordValue(rec))
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(recordKey(rec.RecordID)); err == nil {
			return ledger.ErrDuplicateRecord
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(recordKey(rec.RecordID), value); err != nil {
			return err
		}
		if err := txn.Set(seqKey(n), []byte(rec.RecordID)); err != nil {
			return err
		}
		if rec.RequestID != "" {
			if _, err := txn.Get(requestKey(rec.RequestID)); errors.Is(err, badger.ErrKeyNotFound) {
				if err := txn.Set(requestKey(rec.RequestID), []byte(rec.RecordID)); err != nil {
					return err
				}
			} else if err != nil {
				return err
			}
		}
		if rec.SessionID != "" {
			return txn.Set(sessionKey(rec.SessionID, n), []byte(rec.RecordID))
		}
		return nil
	})
	// A conflict means a concurrent append wrote the same record key.
	if errors.Is(err, badger.ErrConflict) {
		return ledger.ErrDuplicateRecord
	}
	return err
}

func (s *Store) Get(ctx context.Context, recordID string) (ledger.StoredRecord, error) {
	if err := ctx.Err(); err != nil {
		return ledger.StoredRecord{}, err
	}
	var rec ledger.StoredRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = getRecord(txn, recordID)
		return err
	})
	return rec, err
}

func (s *Store) GetByRequestID(ctx context.Context, requestID string) (ledger.StoredRecord, error) {
	if err := ctx.Err(); err != nil {
		return ledger.StoredRecord{}, err
	}
	var rec ledger.StoredRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(requestKey(requestID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ledger.ErrRecordNotFound
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		rec, err = getRecord(txn, string(id))
		return err
	})
	return rec, err
}

func getRecord(txn *badger.Txn, recordID string) (ledger.StoredRecord, error) {
	item, err := txn.Get(recordKey(recordID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ledger.StoredRecord{}, ledger.ErrRecordNotFound
	}
	if err != nil {
		return ledger.StoredRecord{}, err
	}
	var v recordValue
	if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &v) }); err != nil {
		return ledger.StoredRecord{}, err
	}
	return ledger.StoredRecord(v), nil
}

func (s *Store) ReadBySession(ctx context.Context, sessionID string, limit int) ([]ledger.StoredRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = ledger.NormalizeLimit(limit)
	out := []ledger.StoredRecord{}
	err := s.db.View(func(txn *badger.Txn) error {
		ids, err := scanIDs(txn, sessionScanPrefix(sessionID), limit, false)
		if err != nil {
			return err
		}
		out, err = loadRecords(txn, ids)
		return err
	})
	return out, err
}

func (s *Store) ReadAll(ctx context.Context, limit int) ([]ledger.StoredRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = ledger.NormalizeLimit(limit)
	out := []ledger.StoredRecord{}
	err := s.db.View(func(txn *badger.Txn) error {
		ids, err := scanIDs(txn, []byte(seqPrefix), limit, true)
		if err != nil {
			return err
		}
		for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
			ids[i], ids[j] = ids[j], ids[i]
		}
		out, err = loadRecords(txn, ids)
		return err
	})
	return out, err
}

// scanIDs collects up to limit index values under prefix.
func scanIDs(txn *badger.Txn, prefix []byte, limit int, reverse bool) ([]string, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.Reverse = reverse
	it := txn.NewIterator(opts)
	defer it.Close()

	start := prefix
	if reverse {
		start = append(append([]byte(nil), prefix...), 0xff)
	}
	ids := []string{}
	for it.Seek(start); it.ValidForPrefix(prefix) && len(ids) < limit; it.Next() {
		val, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		ids = append(ids, string(val))
	}
	return ids, nil
}

func loadRecords(txn *badger.Txn, ids []string) ([]ledger.StoredRecord, error) {
	out := make([]ledger.StoredRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := getRecord(txn, id)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", id, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) AppendRedaction(ctx context.Context, red ledger.StoredRedaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := s.seq.Next()
	if err != nil {
		return err
	}
	value, err := json.Marshal(red)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := getRecord(txn, red.RecordID); err != nil {
			return err
		}
		existing, err := redactions(txn, red.RecordID)
		if err != nil {
			return err
		}
		for _, e := range existing {
			if e.RedactionID == red.RedactionID {
				return ledger.ErrDuplicateRecord
			}
		}
		return txn.Set(redactionKey(red.RecordID, n), value)
	})
}

func (s *Store) Redactions(ctx context.Context, recordID string) ([]ledger.StoredRedaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []ledger.StoredRedaction
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		out, err = redactions(txn, recordID)
		return err
	})
	return out, err
}

func redactions(txn *badger.Txn, recordID string) ([]ledger.StoredRedaction, error) {
	prefix := redactionScanPrefix(recordID)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	out := []ledger.StoredRedaction{}
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var red ledger.StoredRedaction
		if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &red) }); err != nil {
			return nil, err
		}
		out = append(out, red)
	}
	return out, nil
}
