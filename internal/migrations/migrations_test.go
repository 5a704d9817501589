package migrations

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "migrations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestList_OrderedAndNumbered(t *testing.T) {
	migrations, err := List()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(migrations), 2)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Contains(t, migrations[0].SQL, "CREATE TABLE IF NOT EXISTS threads")
	for i := 1; i < len(migrations); i++ {
		assert.Less(t, migrations[i-1].Version, migrations[i].Version)
	}
}

func TestApply_Idempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	applied, err := Apply(ctx, db)
	require.NoError(t, err)
	all, err := List()
	require.NoError(t, err)
	assert.Len(t, applied, len(all))

	again, err := Apply(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, again)

	versions, err := Applied(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, applied, versions)
}

func TestApply_CreatesUniqueIndexes(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	_, err := Apply(ctx, db)
	require.NoError(t, err)

	insert := `INSERT INTO threads (id, user_id, account_id, external_sender_id, created_at, updated_at)
		VALUES (?, 'u', 'a', 's', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`
	_, err = db.ExecContext(ctx, insert, "t1")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, insert, "t2")
	assert.Error(t, err)
}
