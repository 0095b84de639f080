package reliability

import (
	"context"
	"errors"
	"testing"

	testingpkg "github.com/aristath/folio/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenDB struct{}

func (brokenDB) HealthCheck(ctx context.Context) error { return errors.New("malformed disk image") }
func (brokenDB) WALCheckpoint(mode string) error       { return nil }

func TestMaintenanceJob_Run(t *testing.T) {
	log := zerolog.New(nil).Level(zerolog.Disabled)
	ledgerDB, _ := testingpkg.NewTestDB(t, "ledger")
	historyDB, _ := testingpkg.NewTestDB(t, "history")

	job := NewMaintenanceJob(map[string]MaintainedDB{
		"ledger":  ledgerDB,
		"history": historyDB,
	}, log)

	assert.Equal(t, "db_maintenance", job.Name())
	assert.NoError(t, job.Run())
}

func TestMaintenanceJob_IntegrityFailure(t *testing.T) {
	job := NewMaintenanceJob(map[string]MaintainedDB{"ledger": brokenDB{}}, zerolog.New(nil).Level(zerolog.Disabled))

	err := job.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger")
}

func TestBackupJob_Run(t *testing.T) {
	log := zerolog.New(nil).Level(zerolog.Disabled)
	ledgerDB, _ := testingpkg.NewTestDB(t, "ledger")
	store := newMemStore()

	service := NewBackupService(store, map[string]Snapshotter{"ledger": ledgerDB}, t.TempDir(), log)
	job := NewBackupJob(service, 30, log)

	assert.Equal(t, "ledger_backup", job.Name())
	require.NoError(t, job.Run())
	assert.Len(t, store.objects, 1)
}
