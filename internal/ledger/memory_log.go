package ledger

import (
	"context"
	"sync"
)

// InMemoryLog keeps records in append order behind a single mutex.
type InMemoryLog struct {
	mu sync.Mutex

	records    []StoredRecord
	byID       map[string]int
	byRequest  map[string]int
	bySession  map[string][]int
	redactions map[string][]StoredRedaction
}

func NewInMemoryLog() *InMemoryLog {
	return &InMemoryLog{
		byID:       make(map[string]int),
		byRequest:  make(map[string]int),
		bySession:  make(map[string][]int),
		redactions: make(map[string][]StoredRedaction),
	}
}

func (l *InMemoryLog) Append(_ context.Context, rec StoredRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.byID[rec.RecordID]; ok {
		return ErrDuplicateRecord
	}
	idx := len(l.records)
	l.records = append(l.records, cloneRecord(rec))
	l.byID[rec.RecordID] = idx
	if _, ok := l.byRequest[rec.RequestID]; !ok && rec.RequestID != "" {
		l.byRequest[rec.RequestID] = idx
	}
	if rec.SessionID != "" {
		l.bySession[rec.SessionID] = append(l.bySession[rec.SessionID], idx)
	}
	return nil
}

func (l *InMemoryLog) Get(_ context.Context, recordID string) (StoredRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx, ok := l.byID[recordID]
	if !ok {
		return StoredRecord{}, ErrRecordNotFound
	}
	return cloneRecord(l.records[idx]), nil
}

func (l *InMemoryLog) GetByRequestID(_ context.Context, requestID string) (StoredRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx, ok := l.byRequest[requestID]
	if !ok {
		return StoredRecord{}, ErrRecordNotFound
	}
	return cloneRecord(l.records[idx]), nil
}

func (l *InMemoryLog) ReadBySession(_ context.Context, sessionID string, limit int) ([]StoredRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idxs := l.bySession[sessionID]
	limit = NormalizeLimit(limit)
	if len(idxs) > limit {
		idxs = idxs[:limit]
	}
	out := make([]StoredRecord, 0, len(idxs))
	for _, idx := range idxs {
		out = append(out, cloneRecord(l.records[idx]))
	}
	return out, nil
}

func (l *InMemoryLog) ReadAll(_ context.Context, limit int) ([]StoredRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	limit = NormalizeLimit(limit)
	start := 0
	if len(l.records) > limit {
		start = len(l.records) - limit
	}
	out := make([]StoredRecord, 0, len(l.records)-start)
	for _, rec := range l.records[start:] {
		out = append(out, cloneRecord(rec))
	}
	return out, nil
}

func (l *InMemoryLog) AppendRedaction(_ context.Context, red StoredRedaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.byID[red.RecordID]; !ok {
		return ErrRecordNotFound
	}
	for _, existing := range l.redactions[red.RecordID] {
		if existing.RedactionID == red.RedactionID {
			return ErrDuplicateRecord
		}
	}
	red.BodyJSON = append([]byte(nil), red.BodyJSON...)
	l.redactions[red.RecordID] = append(l.redactions[red.RecordID], red)
	return nil
}

func (l *InMemoryLog) Redactions(_ context.Context, recordID string) ([]StoredRedaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]StoredRedaction, 0, len(l.redactions[recordID]))
	for _, red := range l.redactions[recordID] {
		red.BodyJSON = append([]byte(nil), red.BodyJSON...)
		out = append(out, red)
	}
	return out, nil
}

// cloneRecord copies the byte slices so callers cannot edit stored records.
func cloneRecord(rec StoredRecord) StoredRecord {
	rec.BodyJSON = append([]byte(nil), rec.BodyJSON...)
	rec.Sig = append([]byte(nil), rec.Sig...)
	return rec
}
