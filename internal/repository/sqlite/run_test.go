package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/code-runner/internal/apperror"
	"github.com/sakif/code-runner/internal/model"
	"github.com/sakif/code-runner/internal/repository"
)

// newTestDB opens a fresh in-memory database that is closed with the test.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	require.NoError(t, err, "failed to create test db")
	t.Cleanup(func() { db.Close() })
	return db
}

func createRun(t *testing.T, db *DB, run model.Run) *model.Run {
	t.Helper()
	require.NoError(t, db.Create(context.Background(), &run))
	return &run
}

func TestCreate(t *testing.T) {
	db := newTestDB(t)

	run := &model.Run{Kind: model.KindExecute, Language: "python", ExitCode: 2, CodeSize: 14, DurationMS: 31}
	require.NoError(t, db.Create(context.Background(), run))

	assert.NotEmpty(t, run.ID)
	assert.False(t, run.CreatedAt.IsZero())
}

func TestGetByID_RoundTripsEveryField(t *testing.T) {
	db := newTestDB(t)

	exec := createRun(t, db, model.Run{
		Kind: model.KindExecute, Language: "python", Session: true,
		Faulted: true, CodeSize: 9, DurationMS: 120,
	})
	got, err := db.GetByID(context.Background(), exec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.KindExecute, got.Kind)
	assert.Equal(t, "python", got.Language)
	assert.True(t, got.Session)
	assert.True(t, got.Faulted)
	assert.Equal(t, 9, got.CodeSize)
	assert.Equal(t, int64(120), got.DurationMS)
	assert.WithinDuration(t, exec.CreatedAt, got.CreatedAt, time.Second)

	comp := createRun(t, db, model.Run{
		Kind: model.KindComplete, Mode: "agent", Failure: "unconfigured", CodeSize: 40,
	})
	got, err = db.GetByID(context.Background(), comp.ID)
	require.NoError(t, err)
	assert.Equal(t, model.KindComplete, got.Kind)
	assert.Equal(t, "agent", got.Mode)
	assert.Empty(t, got.Provider)
	assert.Equal(t, "unconfigured", got.Failure)
}

func TestGetByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetByID(context.Background(), "does-not-exist")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestList_NewestFirst(t *testing.T) {
	db := newTestDB(t)

	first := createRun(t, db, model.Run{Kind: model.KindExecute, Language: "python"})
	second := createRun(t, db, model.Run{Kind: model.KindExecute, Language: "javascript"})
	third := createRun(t, db, model.Run{Kind: model.KindComplete, Mode: "completion"})

	runs, err := db.List(context.Background(), repository.ListOptions{})
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, third.ID, runs[0].ID)
	assert.Equal(t, second.ID, runs[1].ID)
	assert.Equal(t, first.ID, runs[2].ID)
}

func TestList_FilterAndPaginate(t *testing.T) {
	db := newTestDB(t)
	for range 5 {
		createRun(t, db, model.Run{Kind: model.KindExecute, Language: "python"})
	}
	createRun(t, db, model.Run{Kind: model.KindComplete, Mode: "agent"})

	runs, err := db.List(context.Background(), repository.ListOptions{Kind: model.KindComplete})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "agent", runs[0].Mode)

	page, err := db.List(context.Background(), repository.ListOptions{Kind: model.KindExecute, Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestList_ClampsBadValues(t *testing.T) {
	db := newTestDB(t)
	createRun(t, db, model.Run{Kind: model.KindExecute})

	runs, err := db.List(context.Background(), repository.ListOptions{Limit: -5, Offset: -1})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestNew_MigrationsAreIdempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.migrate())
	require.NoError(t, db.migrate())
}
