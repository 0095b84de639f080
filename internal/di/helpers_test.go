package di

import (
	"testing"

	"github.com/aristath/folio/internal/config"
	"github.com/stretchr/testify/require"
)

// testConfig loads defaults into a temp data dir with optional services off
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("FOLIO_DATA_DIR", t.TempDir())
	t.Setenv("REDIS_URL", "")
	t.Setenv("BACKUP_S3_BUCKET", "")

	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}
