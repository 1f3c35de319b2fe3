package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/events"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "vigil.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveAndGetDetectionEvent(t *testing.T) {
	db := openTestDB(t)

	record := &DetectionEventRecord{
		ID:             "ev-1",
		SessionID:      "s-1",
		Detected:       true,
		Confidence:     0.92,
		Description:    "person entered the frame",
		WindowDuration: 1.3,
		BufferSize:     5,
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, db.SaveDetectionEvent(record))

	got, err := db.GetDetectionEvent("ev-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, record.SessionID, got.SessionID)
	assert.True(t, got.Detected)
	assert.InDelta(t, 0.92, got.Confidence, 1e-9)
	assert.Equal(t, 5, got.BufferSize)

	missing, err := db.GetDetectionEvent("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListDetectionEventsFiltering(t *testing.T) {
	db := openTestDB(t)
	base := time.Now().UTC().Truncate(time.Second)

	for i, sid := range []string{"s-1", "s-1", "s-2"} {
		require.NoError(t, db.SaveDetectionEvent(&DetectionEventRecord{
			ID:        "ev-" + sid + "-" + string(rune('a'+i)),
			SessionID: sid,
			Detected:  true,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := db.ListDetectionEvents("", nil, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	bySession, err := db.ListDetectionEvents("s-1", nil, 0)
	require.NoError(t, err)
	assert.Len(t, bySession, 2)

	since := base.Add(90 * time.Second)
	recent, err := db.ListDetectionEvents("", &since, 0)
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	limited, err := db.ListDetectionEvents("", nil, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	// Newest first
	assert.Equal(t, "s-2", limited[0].SessionID)
}

func TestDeleteOldDetectionEvents(t *testing.T) {
	db := openTestDB(t)
	base := time.Now().UTC()

	require.NoError(t, db.SaveDetectionEvent(&DetectionEventRecord{ID: "old", SessionID: "s", CreatedAt: base.Add(-48 * time.Hour)}))
	require.NoError(t, db.SaveDetectionEvent(&DetectionEventRecord{ID: "new", SessionID: "s", CreatedAt: base}))

	deleted, err := db.DeleteOldDetectionEvents(base.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := db.ListDetectionEvents("", nil, 0)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "new", remaining[0].ID)
}

func TestConfigRoundTrip(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.SaveConfig("prompt", "watch the door"))
	require.NoError(t, db.SaveConfig("prompt", "watch the gate"))

	value, err := db.GetConfig("prompt")
	require.NoError(t, err)
	assert.Equal(t, "watch the gate", value)

	missing, err := db.GetConfig("absent")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestWriterPersistsBusEvents(t *testing.T) {
	db := openTestDB(t)
	bus := events.NewBus()
	defer bus.Subscribe(NewWriter(db))()

	bus.Publish(&events.DetectionEvent{
		ID:         "ev-bus",
		SessionID:  "s-9",
		Detected:   true,
		Confidence: 0.7,
		CreatedAt:  time.Now().UTC(),
	})

	got, err := db.GetDetectionEvent("ev-bus")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "s-9", got.SessionID)
}
