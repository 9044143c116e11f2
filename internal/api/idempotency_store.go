package api

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// IdemRecord is a completed evaluation keyed by request id. Fingerprint is
// the digest of the request that produced it.
type IdemRecord struct {
	RequestID   string
	Fingerprint string
	Response    EvaluateResponse
}

// IdemCache remembers the most recent evaluations so a retried request id
// returns the original decision instead of appending a second record.
type IdemCache struct {
	items *lru.Cache[string, IdemRecord]
}

// NewIdemCache returns a cache holding up to size entries. A size of zero
// disables caching.
func NewIdemCache(size int) (*IdemCache, error) {
	if size <= 0 {
		return &IdemCache{}, nil
	}
	items, err := lru.New[string, IdemRecord](size)
	if err != nil {
		return nil, err
	}
	return &IdemCache{items: items}, nil
}

func (c *IdemCache) Get(requestID string) (IdemRecord, bool) {
	if c == nil || c.items == nil {
		return IdemRecord{}, false
	}
	return c.items.Get(requestID)
}

func (c *IdemCache) Put(rec IdemRecord) {
	if c == nil || c.items == nil {
		return
	}
	c.items.Add(rec.RequestID, rec)
}

func (c *IdemCache) Len() int {
	if c == nil || c.items == nil {
		return 0
	}
	return c.items.Len()
}
