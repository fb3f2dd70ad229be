package db

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/wakewatch/internal/depth"
	"github.com/banshee-data/wakewatch/internal/motion"
	"github.com/banshee-data/wakewatch/internal/session"
	"github.com/banshee-data/wakewatch/internal/testutil"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "wake.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testRecord(started time.Time, outcome session.EndReason) session.Record {
	return session.Record{
		ID:               uuid.New(),
		StartedAt:        started,
		EndedAt:          started.Add(90 * time.Second),
		Outcome:          outcome,
		Source:           "synthetic",
		FramesScored:     2700,
		MotionFrames:     300,
		InvalidFrames:    2,
		ExcludedPixels:   214,
		PeakProgress:     1,
		QualifyingMean:   612.5,
		QualifyingStdDev: 1450.25,
		Config: motion.DetectorConfig{
			DistanceDecreaseThreshold:  700,
			PixelMatchThreshold:        500,
			FluctuationChangeThreshold: 1000,
			MaxFluctuationTriggers:     30,
			RequiredSuccessFrames:      300,
			Resolution:                 depth.DefaultResolution,
		},
	}
}

func TestPragmasApplied(t *testing.T) {
	db := newTestDB(t)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout, synchronous, tempStore, foreignKeys int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	require.NoError(t, db.QueryRow("PRAGMA synchronous").Scan(&synchronous))
	require.NoError(t, db.QueryRow("PRAGMA temp_store").Scan(&tempStore))
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	assert.Equal(t, 5000, busyTimeout)
	assert.Equal(t, 1, synchronous, "NORMAL")
	assert.Equal(t, 2, tempStore, "MEMORY")
	assert.Equal(t, 1, foreignKeys)
}

func TestMigrations(t *testing.T) {
	db := newTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// Reopening an up-to-date database is a no-op.
	again, err := NewDB(db.Path())
	require.NoError(t, err)
	again.Close()

	require.NoError(t, db.MigrateDown())
	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Zero(t, version)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'wake_sessions'`).Scan(&n))
	assert.Zero(t, n)

	require.NoError(t, db.MigrateUp())
	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
}

func TestSessionRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 6, 30, 0, 123456789, time.UTC)
	rec := testRecord(started, session.ReasonConfirmed)

	require.NoError(t, db.InsertSession(ctx, rec))

	got, err := db.Session(ctx, rec.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(rec, got); diff != "" {
		t.Errorf("Session() mismatch (-want +got):\n%s", diff)
	}

	_, err = db.Session(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, db.InsertSession(ctx, rec), "duplicate id must be rejected")
}

func TestSessionsNewestFirst(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

	var ids []uuid.UUID
	for day := 0; day < 3; day++ {
		rec := testRecord(base.AddDate(0, 0, day), session.ReasonConfirmed)
		ids = append(ids, rec.ID)
		require.NoError(t, db.InsertSession(ctx, rec))
	}

	got, err := db.Sessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []uuid.UUID{ids[2], ids[1], ids[0]}, []uuid.UUID{got[0].ID, got[1].ID, got[2].ID})

	got, err = db.Sessions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ids[2], got[0].ID)
}

func TestProgressRoundTripAndCascade(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 6, 30, 0, 0, time.UTC)
	rec := testRecord(started, session.ReasonSourceLost)
	require.NoError(t, db.InsertSession(ctx, rec))

	points := []session.ProgressPoint{
		{Seq: 2, At: started.Add(33 * time.Millisecond), Progress: 1.0 / 300, SuccessCount: 1},
		{Seq: 3, At: started.Add(66 * time.Millisecond), Progress: 2.0 / 300, SuccessCount: 2},
		{Seq: 4, At: started.Add(99 * time.Millisecond), Progress: 0, SuccessCount: 0},
	}
	require.NoError(t, db.InsertProgress(ctx, rec.ID, points))
	require.NoError(t, db.InsertProgress(ctx, rec.ID, nil))

	got, err := db.Progress(ctx, rec.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(points, got); diff != "" {
		t.Errorf("Progress() mismatch (-want +got):\n%s", diff)
	}

	// Progress rows must reference an existing session.
	assert.Error(t, db.InsertProgress(ctx, uuid.New(), points[:1]))

	n, err := db.DeleteSessionsBefore(ctx, started.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err = db.Progress(ctx, rec.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAdminRoutes(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.InsertSession(context.Background(), testRecord(time.Now().UTC(), session.ReasonConfirmed)))

	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	rec := testutil.NewTestRecorder()
	mux.ServeHTTP(rec, testutil.NewTestRequest(http.MethodGet, "/debug/backup"))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "wakewatch-backup-")

	gz, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, "SQLite format 3\x00", string(data[:16]))
}
