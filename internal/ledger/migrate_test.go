package ledger

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestMigrateSQLiteIdempotent(t *testing.T) {
	db, err := sql.Open("sqlite", "file:migrate_test?mode=memory&cache=shared")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db, DBSQLite))
	require.NoError(t, Migrate(ctx, db, DBSQLite))

	for _, table := range []string{"audit_records", "audit_redactions"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestMigrateSQLiteRejectsUpdates(t *testing.T) {
	db, err := sql.Open("sqlite", "file:migrate_append_only?mode=memory&cache=shared")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db, DBSQLite))

	_, err = db.Exec(`INSERT INTO audit_records(record_id, request_id, session_id, schema_version, direction, created_at, body_json, body_digest, key_id, sig)
VALUES('r1', 'q1', 's1', 'parliament.audit.v1', 'APPROVE', '2026-10-01T00:00:00Z', '{}', 'r1', 'k', x'01')`)
	require.NoError(t, err)

	_, err = db.Exec(`UPDATE audit_records SET direction = 'REJECT' WHERE record_id = 'r1'`)
	assert.Error(t, err)
	_, err = db.Exec(`DELETE FROM audit_records WHERE record_id = 'r1'`)
	assert.Error(t, err)
}

func TestMigrationHelpers(t *testing.T) {
	_, _, err := migrationConfig(DBPostgres)
	assert.NoError(t, err)
	_, _, err = migrationConfig(DBBadger)
	assert.Error(t, err)
	assert.Error(t, Migrate(context.Background(), nil, DBSQLite))
	assert.Error(t, ensureMigrationsTable(context.Background(), &sql.DB{}, DBDriver("nope"), "t"))

	files, err := listMigrationFiles("migrations/postgres")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	assert.True(t, DBBadger.Valid())
	assert.False(t, DBDriver("mysql").Valid())
}
