package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsAreOrderedAndAnnotated(t *testing.T) {
	files, err := Files()
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for i, name := range files {
		assert.True(t, strings.HasSuffix(name, ".sql"), name)
		if i > 0 {
			assert.Less(t, files[i-1], name)
		}

		body, err := migrationsFS.ReadFile(dir + "/" + name)
		require.NoError(t, err)
		assert.Contains(t, string(body), "-- +goose Up", name)
		assert.Contains(t, string(body), "-- +goose Down", name)
	}
}

func TestProceduresShipWithMigrations(t *testing.T) {
	files, err := Files()
	require.NoError(t, err)

	var all strings.Builder
	for _, name := range files {
		body, err := migrationsFS.ReadFile(dir + "/" + name)
		require.NoError(t, err)
		all.Write(body)
	}

	sql := all.String()
	assert.Contains(t, sql, "FUNCTION check_user_permission(")
	assert.Contains(t, sql, "FUNCTION log_activity(")
	assert.Contains(t, sql, "pg_notify('permission_settings_changed'")
	assert.Contains(t, sql, "UNIQUE (role, permission_type)")
}

// The in-process evaluator denies inactive actors. The procedure used in
// remote mode has to agree.
func TestPermissionProcedureDeniesInactiveActors(t *testing.T) {
	body, err := migrationsFS.ReadFile(dir + "/00003_procedures.sql")
	require.NoError(t, err)

	sql := string(body)
	start := strings.Index(sql, "FUNCTION check_user_permission(")
	require.GreaterOrEqual(t, start, 0)
	end := strings.Index(sql[start:], "-- +goose StatementEnd")
	require.Greater(t, end, 0)

	assert.Contains(t, sql[start:start+end], "FROM profiles WHERE id = p_user_id AND active;")
}

func TestTaskStatusesMatchSchema(t *testing.T) {
	body, err := migrationsFS.ReadFile(dir + "/00001_schema.sql")
	require.NoError(t, err)
	assert.Contains(t, string(body), "CHECK (status IN ('todo', 'doing', 'done'))")
}

func TestRunRequiresDSN(t *testing.T) {
	assert.Error(t, Run(Options{Command: "status"}))
}
