package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sftpbridge/internal/store"
)

func TestRecordPersistsToAuditLogs(t *testing.T) {
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	auditor := Wire(db)
	auditor.Record("admin", store.ActionOpen, "/tmp/file.txt")

	logs, err := db.RecentAuditLogs(10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "admin", logs[0].Username)
	assert.Equal(t, store.ActionOpen, logs[0].Action)
	assert.Equal(t, "/tmp/file.txt", logs[0].Target)
}

func TestDatabaseHookIgnoresIncompleteEntries(t *testing.T) {
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	auditor := Wire(db)
	auditor.log.Info("unrelated log line with no audit fields")

	logs, err := db.RecentAuditLogs(10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestMultipleRecordsOrdering(t *testing.T) {
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	auditor := Wire(db)
	auditor.Record("admin", store.ActionOpen, "/a")
	auditor.Record("admin", store.ActionRead, "/a")
	auditor.Record("admin", store.ActionClose, "/a")

	logs, err := db.RecentAuditLogs(10)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, store.ActionClose, logs[0].Action)
}
