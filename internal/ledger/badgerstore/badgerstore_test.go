package badgerstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davidahmann/parliament/internal/ledger"
	"github.com/davidahmann/parliament/internal/ledger/ledgertest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreConformance(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.Log { return openTestStore(t) })
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(Config{Path: dir, SyncWrites: true, Logger: zap.NewNop()})
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, ledgertest.Record("sha256:p1", "s1", 1)))
	require.NoError(t, s.Close())

	s, err = Open(Config{Path: dir, Logger: zap.NewNop()})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append(ctx, ledgertest.Record("sha256:p2", "s1", 2)))
	got, err := s.ReadBySession(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "sha256:p1", got[0].RecordID)
	assert.Equal(t, "sha256:p2", got[1].RecordID)
}

func TestSessionPrefixIsolation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, ledgertest.Record("sha256:a", "s1", 1)))
	require.NoError(t, s.Append(ctx, ledgertest.Record("sha256:b", "s10", 2)))

	got, err := s.ReadBySession(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "sha256:a", got[0].RecordID)
}

func TestCancelledContext(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Append(ctx, ledgertest.Record("sha256:c", "s", 1)), context.Canceled)
}
