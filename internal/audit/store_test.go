package audit

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openStore connects to the database in DATABASE_URL, skipping when unset.
func openStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	s, err := Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// testSessionID avoids collisions between test runs sharing a database.
func testSessionID() uint32 {
	return uint32(time.Now().UnixNano()%1_000_000_000) + 1
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrations.ReadDir("migrations")
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "000001_create_action_log.up.sql")
	assert.Contains(t, names, "000001_create_action_log.down.sql")
}

func TestRecord_EmptyAction(t *testing.T) {
	s := NewStore(nil)
	assert.Error(t, s.Record(context.Background(), Entry{SessionID: 1}))
}

func TestRecordAndRecent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	sid := testSessionID()

	require.NoError(t, s.Record(ctx, Entry{
		SessionID: sid, RequestID: "r1", Node: "relay-a", Action: "openFile",
		Parameters: `["/", "m51.fits", ""]`, Success: true, Duration: 12 * time.Millisecond,
	}))
	require.NoError(t, s.Record(ctx, Entry{
		SessionID: sid, RequestID: "r2", Node: "relay-a", Path: "overlayStore", Action: "explode",
		Parameters: strings.Repeat("x", MaxParametersLength+10), Message: "unknown action",
	}))

	entries, err := s.Recent(ctx, sid, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "explode", entries[0].Action)
	assert.False(t, entries[0].Success)
	assert.Len(t, entries[0].Parameters, MaxParametersLength)
	assert.Equal(t, "openFile", entries[1].Action)
	assert.Equal(t, 12*time.Millisecond, entries[1].Duration)
	assert.Equal(t, sid, entries[1].SessionID)

	n, err := s.CountSince(ctx, sid, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
