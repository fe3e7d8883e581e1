package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsAreOrderedAndIdempotent(t *testing.T) {
	names := MigrationNames()
	require.Equal(t, []string{"migrations/0001_rbac.sql", "migrations/0002_audit.sql", "migrations/0003_sessions.sql"}, names)

	for _, name := range names {
		body, err := migrations.ReadFile(name)
		require.NoError(t, err)
		for _, stmt := range strings.Split(string(body), ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			assert.Contains(t, stmt, "IF NOT EXISTS", "%s: %s", name, stmt)
		}
	}
}

func TestOverrideTableHasCompositeKey(t *testing.T) {
	body, err := migrations.ReadFile("migrations/0001_rbac.sql")
	require.NoError(t, err)
	assert.Contains(t, string(body), "PRIMARY KEY (user_id, permission_id)")
	assert.Contains(t, string(body), "PRIMARY KEY (role_id, permission_id)")
}
