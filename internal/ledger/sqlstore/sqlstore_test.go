package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidahmann/parliament/internal/ledger"
	"github.com/davidahmann/parliament/internal/ledger/ledgertest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	s, err := OpenSQLite(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, ledger.Migrate(context.Background(), s.DB(), ledger.DBSQLite))
	return s
}

func TestStoreConformance(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.Log { return openTestStore(t) })
}

func TestStoreRoundTripsSignedRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := ledgertest.Record("sha256:signed", "s1", 7)
	rec.BodyJSON = []byte(`{"schema":"parliament.audit.v1","text":"café"}`)
	require.NoError(t, s.Append(ctx, rec))

	got, err := s.Get(ctx, rec.RecordID)
	require.NoError(t, err)
	assert.Equal(t, rec.BodyJSON, got.BodyJSON)
	assert.Equal(t, rec.Sig, got.Sig)
}

func TestOpenSQLiteBadDSN(t *testing.T) {
	_, err := OpenSQLite("file:/nonexistent-dir/parliament.db?mode=ro")
	assert.Error(t, err)
}
