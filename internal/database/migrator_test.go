package database

import (
	"testing"
	"testing/fstest"

	"contractor-backend/migrations"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingFilesOrderAndSkips(t *testing.T) {
	files := fstest.MapFS{
		"003_indexes.sql":  {Data: []byte("SELECT 1")},
		"001_init.sql":     {Data: []byte("SELECT 1")},
		"002_reset_db.sql": {Data: []byte("DROP TABLE x")},
		"README.md":        {Data: []byte("docs")},
	}

	pending, err := PendingFiles(files, map[string]bool{"001_init.sql": true})
	require.NoError(t, err)
	assert.Equal(t, []string{"003_indexes.sql"}, pending)
}

func TestEmbeddedMigrationsAreOrdered(t *testing.T) {
	pending, err := PendingFiles(migrations.FS, nil)
	require.NoError(t, err)
	require.NotEmpty(t, pending)
	assert.Equal(t, "001_documents.sql", pending[0])
}
