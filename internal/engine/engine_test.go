package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"stageline/internal/attention"
	"stageline/internal/config"
	"stageline/internal/db"
	"stageline/internal/domain"
	"stageline/internal/engine"
	"stageline/internal/migrate"
	"stageline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Clock  *clock
	Logs   *observer.ObservedLogs
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	core, logs := observer.New(zapcore.DebugLevel)
	eng := engine.New(conn, config.Default(), zap.New(core))
	clk := &clock{t: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	eng.Now = clk.Now
	return testEnv{Engine: eng, Ctx: context.Background(), Clock: clk, Logs: logs}
}

func (env testEnv) item(t *testing.T, name string) domain.WorkItem {
	t.Helper()
	it, err := env.Engine.CreateItem(env.Ctx, engine.ItemCreateOptions{Name: name, ActorID: "tester"})
	require.NoError(t, err)
	return it
}

func (env testEnv) events(t *testing.T, itemID string) []domain.AuditEvent {
	t.Helper()
	evs, err := env.Engine.Repo.ListEvents(env.Ctx, repo.EventFilters{ItemID: itemID})
	require.NoError(t, err)
	return evs
}

func (env testEnv) runningCount(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, env.Engine.DB.QueryRow(`SELECT COUNT(*) FROM time_entries WHERE is_running=1`).Scan(&n))
	return n
}

func TestCreateItemAppendsToBacklog(t *testing.T) {
	env := newTestEnv(t)
	first := env.item(t, "Landing page")
	second := env.item(t, "Billing export")

	assert.Equal(t, domain.StageBacklog, first.Stage)
	assert.Equal(t, 1, first.StagePosition)
	assert.Equal(t, 2, second.StagePosition)
	assert.Equal(t, domain.PriorityMedium, first.Priority)

	hist, err := env.Engine.History(env.Ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Nil(t, hist[0].FromStage)
	assert.Equal(t, domain.StageBacklog, hist[0].ToStage)

	evs := env.events(t, first.ID)
	require.Len(t, evs, 1)
	assert.Equal(t, domain.ActionCreated, evs[0].Action)
	assert.Equal(t, "tester", evs[0].ActorID)
}

func TestCreateItemValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateItem(env.Ctx, engine.ItemCreateOptions{Name: "  "})
	require.ErrorIs(t, err, engine.ErrValidation)

	_, err = env.Engine.CreateItem(env.Ctx, engine.ItemCreateOptions{Name: "x", ClientID: "nope"})
	var verr engine.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "client_id", verr.Field)

	rate := -5.0
	_, err = env.Engine.CreateItem(env.Ctx, engine.ItemCreateOptions{Name: "x", HourlyRate: &rate})
	require.ErrorIs(t, err, engine.ErrValidation)
}

func TestMoveToStageWritesHistory(t *testing.T) {
	env := newTestEnv(t)
	it := env.item(t, "API")

	moved, err := env.Engine.MoveToStage(env.Ctx, it.ID, domain.StageInDevelopment, 0, "tester")
	require.NoError(t, err)
	assert.Equal(t, domain.StageInDevelopment, moved.Stage)
	assert.Equal(t, 0, moved.StagePosition)

	hist, err := env.Engine.History(env.Ctx, it.ID)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Nil(t, hist[0].FromStage)
	assert.Equal(t, domain.StageBacklog, hist[0].ToStage)
	require.NotNil(t, hist[1].FromStage)
	assert.Equal(t, domain.StageBacklog, *hist[1].FromStage)
	assert.Equal(t, domain.StageInDevelopment, hist[1].ToStage)

	days, err := env.Engine.DaysInStage(env.Ctx, moved)
	require.NoError(t, err)
	assert.Equal(t, 0, days)
	assert.Equal(t, attention.LevelNone, env.Engine.AlertLevel(days))

	evs := env.events(t, it.ID)
	assert.Equal(t, domain.ActionStageChanged, evs[0].Action)
}

func TestMoveToStageSameStageOnlyReorders(t *testing.T) {
	env := newTestEnv(t)
	it := env.item(t, "API")

	moved, err := env.Engine.MoveToStage(env.Ctx, it.ID, domain.StageBacklog, 5, "tester")
	require.NoError(t, err)
	assert.Equal(t, 5, moved.StagePosition)

	hist, err := env.Engine.History(env.Ctx, it.ID)
	require.NoError(t, err)
	assert.Len(t, hist, 1)
	assert.Len(t, env.events(t, it.ID), 1)

	before := moved.UpdatedAt
	env.Clock.Advance(time.Hour)
	again, err := env.Engine.MoveToStage(env.Ctx, it.ID, domain.StageBacklog, 5, "tester")
	require.NoError(t, err)
	assert.Equal(t, before, again.UpdatedAt)
}

func TestMoveToStageErrors(t *testing.T) {
	env := newTestEnv(t)
	it := env.item(t, "API")

	_, err := env.Engine.MoveToStage(env.Ctx, it.ID, domain.Stage("SHIPPING"), 0, "tester")
	require.ErrorIs(t, err, engine.ErrValidation)

	_, err = env.Engine.MoveToStage(env.Ctx, "missing", domain.StageQA, 0, "tester")
	require.ErrorIs(t, err, engine.ErrNotFound)

	_, err = engine.ParseStage("shipping")
	require.ErrorIs(t, err, engine.ErrValidation)
}

func TestMoveToStageRollsBackOnFailure(t *testing.T) {
	env := newTestEnv(t)
	it := env.item(t, "API")

	_, err := env.Engine.DB.Exec(`CREATE TRIGGER fail_stage_event BEFORE INSERT ON audit_events
WHEN NEW.action = 'stage_changed'
BEGIN
    SELECT RAISE(ABORT, 'audit refused');
END`)
	require.NoError(t, err)

	env.Clock.Advance(time.Hour)
	_, err = env.Engine.MoveToStage(env.Ctx, it.ID, domain.StageQA, 0, "tester")
	require.Error(t, err)

	got, err := env.Engine.GetItem(env.Ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageBacklog, got.Stage)
	assert.Equal(t, it.StagePosition, got.StagePosition)
	assert.Equal(t, it.UpdatedAt, got.UpdatedAt)

	hist, err := env.Engine.History(env.Ctx, it.ID)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, domain.StageBacklog, hist[0].ToStage)
	assert.Len(t, env.events(t, it.ID), 1)
}

func TestLatestHistoryMatchesStage(t *testing.T) {
	env := newTestEnv(t)
	it := env.item(t, "API")
	path := []domain.Stage{
		domain.StagePlanned, domain.StageInDevelopment, domain.StagePlanned,
		domain.StagePlanned, domain.StageQA, domain.StageComplete, domain.StageBacklog,
	}
	for i, st := range path {
		env.Clock.Advance(time.Duration(i) * time.Minute)
		moved, err := env.Engine.MoveToStage(env.Ctx, it.ID, st, i, "tester")
		require.NoError(t, err)
		latest, err := env.Engine.Repo.LatestHistory(env.Ctx, it.ID)
		require.NoError(t, err)
		assert.Equal(t, moved.Stage, latest.ToStage)
	}
}

func TestDaysInStageCountsFromLastTransition(t *testing.T) {
	env := newTestEnv(t)
	it := env.item(t, "API")
	env.Clock.Advance(20 * 24 * time.Hour)
	it, err := env.Engine.MoveToStage(env.Ctx, it.ID, domain.StageCodeReview, 0, "tester")
	require.NoError(t, err)
	env.Clock.Advance(8*24*time.Hour + 3*time.Hour)

	st, err := env.Engine.ItemAttention(env.Ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, st.DaysInStage)
	assert.Equal(t, attention.LevelWarning, st.Level)

	_, err = env.Engine.SetHold(env.Ctx, it.ID, true, "blocked", "tester")
	require.NoError(t, err)
	st, err = env.Engine.ItemAttention(env.Ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, attention.LevelNone, st.Level)
}

func TestHoldCycleAccumulatesDays(t *testing.T) {
	env := newTestEnv(t)
	it := env.item(t, "API")

	held, err := env.Engine.SetHold(env.Ctx, it.ID, true, "waiting on client", "tester")
	require.NoError(t, err)
	assert.True(t, held.IsOnHold)
	require.NotNil(t, held.HoldReason)
	assert.Equal(t, "waiting on client", *held.HoldReason)
	require.NotNil(t, held.HoldStartedAt)

	env.Clock.Advance(3 * 24 * time.Hour)
	resumed, err := env.Engine.SetHold(env.Ctx, it.ID, false, "", "tester")
	require.NoError(t, err)
	assert.False(t, resumed.IsOnHold)
	assert.Nil(t, resumed.HoldStartedAt)
	assert.Nil(t, resumed.HoldReason)
	assert.Equal(t, 3, resumed.TotalHoldDays)

	// a partial day rounds up
	_, err = env.Engine.SetHold(env.Ctx, it.ID, true, "", "tester")
	require.NoError(t, err)
	env.Clock.Advance(26 * time.Hour)
	resumed, err = env.Engine.SetHold(env.Ctx, it.ID, false, "", "tester")
	require.NoError(t, err)
	assert.Equal(t, 5, resumed.TotalHoldDays)

	evs := env.events(t, it.ID)
	actions := []domain.Action{}
	for _, ev := range evs {
		actions = append(actions, ev.Action)
	}
	assert.Equal(t, []domain.Action{
		domain.ActionResumed, domain.ActionPutOnHold,
		domain.ActionResumed, domain.ActionPutOnHold,
		domain.ActionCreated,
	}, actions)
	assert.Equal(t, `"API" put on hold: waiting on client`, evs[3].Description)
	assert.Equal(t, `"API" resumed from hold`, evs[0].Description)

	resumedLogs := env.Logs.FilterMessage("item resumed from hold").All()
	require.Len(t, resumedLogs, 2)
	assert.EqualValues(t, 2, resumedLogs[1].ContextMap()["hold_days"])
}

func TestSetHoldToCurrentStateIsNoop(t *testing.T) {
	env := newTestEnv(t)
	it := env.item(t, "API")

	same, err := env.Engine.SetHold(env.Ctx, it.ID, false, "", "tester")
	require.NoError(t, err)
	assert.Equal(t, it.UpdatedAt, same.UpdatedAt)
	assert.Len(t, env.events(t, it.ID), 1)

	_, err = env.Engine.SetHold(env.Ctx, it.ID, true, "a", "tester")
	require.NoError(t, err)
	again, err := env.Engine.SetHold(env.Ctx, it.ID, true, "b", "tester")
	require.NoError(t, err)
	assert.Equal(t, "a", *again.HoldReason)
	assert.Len(t, env.events(t, it.ID), 2)

	_, err = env.Engine.SetHold(env.Ctx, "missing", true, "", "tester")
	require.ErrorIs(t, err, engine.ErrNotFound)
}

func TestStartTimerStopsRunningTimer(t *testing.T) {
	env := newTestEnv(t)
	rate := 100.0
	item1, err := env.Engine.CreateItem(env.Ctx, engine.ItemCreateOptions{Name: "one", HourlyRate: &rate})
	require.NoError(t, err)
	item2 := env.item(t, "two")

	first, err := env.Engine.StartTimer(env.Ctx, item1.ID, "", "tester")
	require.NoError(t, err)
	require.NotNil(t, first.HourlyRateSnapshot)
	assert.Equal(t, 100.0, *first.HourlyRateSnapshot)

	env.Clock.Advance(45*time.Minute + 50*time.Second)
	second, err := env.Engine.StartTimer(env.Ctx, item2.ID, "review", "tester")
	require.NoError(t, err)
	assert.True(t, second.IsRunning)

	stopped, err := env.Engine.Repo.GetEntry(env.Ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, stopped.IsRunning)
	require.NotNil(t, stopped.DurationMinutes)
	assert.Equal(t, 45, *stopped.DurationMinutes)
	require.NotNil(t, stopped.EndedAt)

	running, err := env.Engine.GetRunningEntry(env.Ctx)
	require.NoError(t, err)
	require.NotNil(t, running)
	assert.Equal(t, second.ID, running.ID)
	assert.Equal(t, item2.ID, running.ItemID)
	assert.Equal(t, 1, env.runningCount(t))

	item1, err = env.Engine.GetItem(env.Ctx, item1.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, item1.ActualHours)

	logs := env.Logs.FilterMessage("stopped running timer").All()
	require.Len(t, logs, 1)
	assert.Equal(t, first.ID, logs[0].ContextMap()["entry_id"])
}

func TestStartTimerUnknownItemKeepsRunningTimer(t *testing.T) {
	env := newTestEnv(t)
	it := env.item(t, "one")
	entry, err := env.Engine.StartTimer(env.Ctx, it.ID, "", "tester")
	require.NoError(t, err)

	_, err = env.Engine.StartTimer(env.Ctx, "missing", "", "tester")
	require.ErrorIs(t, err, engine.ErrNotFound)

	running, err := env.Engine.GetRunningEntry(env.Ctx)
	require.NoError(t, err)
	require.NotNil(t, running)
	assert.Equal(t, entry.ID, running.ID)
}

func TestStartTimerRollsBackOnFailure(t *testing.T) {
	env := newTestEnv(t)
	item1 := env.item(t, "one")
	item2 := env.item(t, "two")
	first, err := env.Engine.StartTimer(env.Ctx, item1.ID, "", "tester")
	require.NoError(t, err)

	_, err = env.Engine.DB.Exec(`CREATE TRIGGER fail_entry_insert BEFORE INSERT ON time_entries
BEGIN
    SELECT RAISE(ABORT, 'insert refused');
END`)
	require.NoError(t, err)

	env.Clock.Advance(90 * time.Minute)
	_, err = env.Engine.StartTimer(env.Ctx, item2.ID, "", "tester")
	require.Error(t, err)

	running, err := env.Engine.GetRunningEntry(env.Ctx)
	require.NoError(t, err)
	require.NotNil(t, running)
	assert.Equal(t, first.ID, running.ID)
	assert.Nil(t, running.EndedAt)
	assert.Nil(t, running.DurationMinutes)
	assert.Equal(t, 1, env.runningCount(t))

	item1, err = env.Engine.GetItem(env.Ctx, item1.ID)
	require.NoError(t, err)
	assert.Zero(t, item1.ActualHours)

	stops, err := env.Engine.Activity(env.Ctx, repo.EventFilters{Action: domain.ActionTimerStopped})
	require.NoError(t, err)
	assert.Empty(t, stops)
}

func TestStoreRejectsSecondRunningTimer(t *testing.T) {
	env := newTestEnv(t)
	it := env.item(t, "one")
	_, err := env.Engine.StartTimer(env.Ctx, it.ID, "", "tester")
	require.NoError(t, err)

	tx, err := env.Engine.DB.Begin()
	require.NoError(t, err)
	defer tx.Rollback()
	now := env.Clock.Now()
	err = env.Engine.Repo.InsertEntry(env.Ctx, tx, domain.TimeEntry{
		ID: "rogue", ItemID: it.ID, StartedAt: now, IsRunning: true, IsBillable: true, CreatedAt: now,
	})
	require.Error(t, err)
}

func TestRunningTimerCountNeverExceedsOne(t *testing.T) {
	env := newTestEnv(t)
	items := []domain.WorkItem{env.item(t, "a"), env.item(t, "b"), env.item(t, "c")}
	for i := 0; i < 9; i++ {
		env.Clock.Advance(7 * time.Minute)
		_, err := env.Engine.StartTimer(env.Ctx, items[i%3].ID, "", "tester")
		require.NoError(t, err)
		assert.Equal(t, 1, env.runningCount(t))
	}
}

func TestManualEntriesRecomputeActualHours(t *testing.T) {
	env := newTestEnv(t)
	it := env.item(t, "API")

	long, err := env.Engine.AddManualEntry(env.Ctx, engine.ManualEntryOptions{ItemID: it.ID, DurationMinutes: 90})
	require.NoError(t, err)
	assert.Equal(t, env.Clock.Now().Add(-90*time.Minute), long.StartedAt)
	assert.False(t, long.IsRunning)
	assert.True(t, long.IsBillable)

	_, err = env.Engine.AddManualEntry(env.Ctx, engine.ManualEntryOptions{ItemID: it.ID, DurationMinutes: 30})
	require.NoError(t, err)
	it, err = env.Engine.GetItem(env.Ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, it.ActualHours)

	require.NoError(t, env.Engine.DeleteEntry(env.Ctx, long.ID, "tester"))
	it, err = env.Engine.GetItem(env.Ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, it.ActualHours)

	changed, err := env.Engine.ReconcileActualHours(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)
}

func TestManualEntryValidation(t *testing.T) {
	env := newTestEnv(t)
	it := env.item(t, "API")
	_, err := env.Engine.AddManualEntry(env.Ctx, engine.ManualEntryOptions{ItemID: it.ID, DurationMinutes: -1})
	require.ErrorIs(t, err, engine.ErrValidation)

	_, err = env.Engine.AddManualEntry(env.Ctx, engine.ManualEntryOptions{ItemID: "missing", DurationMinutes: 5})
	require.ErrorIs(t, err, engine.ErrNotFound)

	require.ErrorIs(t, env.Engine.DeleteEntry(env.Ctx, "missing", "tester"), engine.ErrNotFound)
}

func TestStopTimerTwice(t *testing.T) {
	env := newTestEnv(t)
	it := env.item(t, "API")
	entry, err := env.Engine.StartTimer(env.Ctx, it.ID, "", "tester")
	require.NoError(t, err)

	env.Clock.Advance(61 * time.Minute)
	stopped, err := env.Engine.StopTimer(env.Ctx, entry.ID, "tester")
	require.NoError(t, err)
	require.NotNil(t, stopped.DurationMinutes)
	assert.Equal(t, 61, *stopped.DurationMinutes)

	env.Clock.Advance(30 * time.Minute)
	_, err = env.Engine.StopTimer(env.Ctx, entry.ID, "tester")
	require.ErrorIs(t, err, engine.ErrAlreadyStopped)
	require.ErrorIs(t, err, engine.ErrInvalidState)

	again, err := env.Engine.Repo.GetEntry(env.Ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, 61, *again.DurationMinutes)

	it, err = env.Engine.GetItem(env.Ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, it.ActualHours)

	_, err = env.Engine.StopTimer(env.Ctx, "missing", "tester")
	require.ErrorIs(t, err, engine.ErrNotFound)

	running, err := env.Engine.GetRunningEntry(env.Ctx)
	require.NoError(t, err)
	assert.Nil(t, running)
}

func TestCompletedEntryTimingIsImmutable(t *testing.T) {
	env := newTestEnv(t)
	it := env.item(t, "API")
	entry, err := env.Engine.AddManualEntry(env.Ctx, engine.ManualEntryOptions{ItemID: it.ID, DurationMinutes: 15})
	require.NoError(t, err)

	_, err = env.Engine.DB.Exec(`UPDATE time_entries SET duration_minutes=99 WHERE id=?`, entry.ID)
	require.Error(t, err)

	billable := false
	desc := "pairing"
	updated, err := env.Engine.UpdateEntry(env.Ctx, engine.EntryUpdateOptions{ID: entry.ID, Description: &desc, Billable: &billable})
	require.NoError(t, err)
	assert.Equal(t, "pairing", updated.Description)
	assert.False(t, updated.IsBillable)
	assert.Equal(t, 15, *updated.DurationMinutes)
}

func TestTimeStatsUsesRateSnapshots(t *testing.T) {
	env := newTestEnv(t)
	rate := 60.0
	it, err := env.Engine.CreateItem(env.Ctx, engine.ItemCreateOptions{Name: "API", HourlyRate: &rate})
	require.NoError(t, err)
	_, err = env.Engine.AddManualEntry(env.Ctx, engine.ManualEntryOptions{ItemID: it.ID, DurationMinutes: 30})
	require.NoError(t, err)

	newRate := 120.0
	_, err = env.Engine.UpdateItem(env.Ctx, engine.ItemUpdateOptions{ID: it.ID, HourlyRate: &newRate})
	require.NoError(t, err)
	_, err = env.Engine.AddManualEntry(env.Ctx, engine.ManualEntryOptions{ItemID: it.ID, DurationMinutes: 30})
	require.NoError(t, err)
	nonBillable := false
	_, err = env.Engine.AddManualEntry(env.Ctx, engine.ManualEntryOptions{ItemID: it.ID, DurationMinutes: 20, Billable: &nonBillable})
	require.NoError(t, err)
	_, err = env.Engine.StartTimer(env.Ctx, it.ID, "", "tester")
	require.NoError(t, err)

	stats, err := env.Engine.TimeStats(env.Ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, 80, stats.TotalMinutes)
	assert.Equal(t, 60, stats.BillableMinutes)
	assert.InDelta(t, 90.0, stats.BillableAmount, 0.0001)
	assert.Equal(t, 4, stats.EntriesCount)
	assert.Equal(t, 2, stats.ActualHours)
}

func TestReconcileRepairsDrift(t *testing.T) {
	env := newTestEnv(t)
	it := env.item(t, "API")
	_, err := env.Engine.AddManualEntry(env.Ctx, engine.ManualEntryOptions{ItemID: it.ID, DurationMinutes: 61})
	require.NoError(t, err)
	_, err = env.Engine.DB.Exec(`UPDATE work_items SET actual_hours=9 WHERE id=?`, it.ID)
	require.NoError(t, err)

	changed, err := env.Engine.ReconcileActualHours(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	it, err = env.Engine.GetItem(env.Ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, it.ActualHours)
}

func TestSetPriority(t *testing.T) {
	env := newTestEnv(t)
	it := env.item(t, "API")

	it, err := env.Engine.SetPriority(env.Ctx, it.ID, domain.PriorityUrgent, "tester")
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityUrgent, it.Priority)
	_, err = env.Engine.SetPriority(env.Ctx, it.ID, domain.PriorityUrgent, "tester")
	require.NoError(t, err)

	evs := env.events(t, it.ID)
	require.Len(t, evs, 2)
	assert.Equal(t, `"API" priority changed from MEDIUM to URGENT`, evs[0].Description)

	_, err = env.Engine.SetPriority(env.Ctx, it.ID, domain.Priority("SOON"), "tester")
	require.ErrorIs(t, err, engine.ErrValidation)
}

func TestDeleteItemCascadesAndKeepsAudit(t *testing.T) {
	env := newTestEnv(t)
	it := env.item(t, "API")
	_, err := env.Engine.MoveToStage(env.Ctx, it.ID, domain.StageQA, 0, "tester")
	require.NoError(t, err)
	_, err = env.Engine.StartTimer(env.Ctx, it.ID, "", "tester")
	require.NoError(t, err)

	require.NoError(t, env.Engine.DeleteItem(env.Ctx, it.ID, "tester"))
	_, err = env.Engine.GetItem(env.Ctx, it.ID)
	require.ErrorIs(t, err, engine.ErrNotFound)

	var n int
	require.NoError(t, env.Engine.DB.QueryRow(`SELECT COUNT(*) FROM stage_history WHERE item_id=?`, it.ID).Scan(&n))
	assert.Zero(t, n)
	assert.Zero(t, env.runningCount(t))

	evs, err := env.Engine.Activity(env.Ctx, repo.EventFilters{Action: domain.ActionDeleted})
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Nil(t, evs[0].ItemID)
	assert.Equal(t, `"API" deleted`, evs[0].Description)

	total, err := env.Engine.Repo.CountEvents(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
}

func TestAuditEventsAreAppendOnly(t *testing.T) {
	env := newTestEnv(t)
	it := env.item(t, "API")
	_, err := env.Engine.DB.Exec(`UPDATE audit_events SET description='rewritten' WHERE item_id=?`, it.ID)
	require.Error(t, err)
	_, err = env.Engine.DB.Exec(`UPDATE stage_history SET to_stage='QA' WHERE item_id=?`, it.ID)
	require.Error(t, err)
}

func TestClientsAndActivity(t *testing.T) {
	env := newTestEnv(t)
	c, err := env.Engine.CreateClient(env.Ctx, engine.ClientCreateOptions{Name: "Acme", Email: "ops@acme.test", ActorID: "tester"})
	require.NoError(t, err)

	it, err := env.Engine.CreateItem(env.Ctx, engine.ItemCreateOptions{Name: "Portal", ClientID: c.ID})
	require.NoError(t, err)
	require.NotNil(t, it.ClientID)

	evs, err := env.Engine.Activity(env.Ctx, repo.EventFilters{Action: domain.ActionClientCreated})
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Nil(t, evs[0].ItemID)
	assert.Equal(t, `New client "Acme" created`, evs[0].Description)

	_, err = env.Engine.Activity(env.Ctx, repo.EventFilters{Action: domain.Action("exploded")})
	require.ErrorIs(t, err, engine.ErrValidation)

	clients, err := env.Engine.ListClients(env.Ctx)
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, "ops@acme.test", clients[0].Email)
}

func TestAttentionReport(t *testing.T) {
	env := newTestEnv(t)
	stale := env.item(t, "stale")
	fresh := env.item(t, "fresh")
	held := env.item(t, "held")
	_, err := env.Engine.MoveToStage(env.Ctx, stale.ID, domain.StageQA, 0, "tester")
	require.NoError(t, err)
	_, err = env.Engine.SetHold(env.Ctx, held.ID, true, "vendor", "tester")
	require.NoError(t, err)

	env.Clock.Advance(15 * 24 * time.Hour)
	_, err = env.Engine.MoveToStage(env.Ctx, fresh.ID, domain.StagePlanned, 0, "tester")
	require.NoError(t, err)

	rep, err := env.Engine.AttentionReport(env.Ctx)
	require.NoError(t, err)
	require.Len(t, rep.Items, 2)
	assert.Equal(t, stale.ID, rep.Items[0].Item.ID)
	assert.Equal(t, attention.LevelDanger, rep.Items[0].Level)
	assert.Equal(t, attention.LevelNone, rep.Items[1].Level)
	require.Len(t, rep.OnHold, 1)
	assert.Equal(t, 15, rep.OnHold[0].HoldDays)
	assert.Equal(t, 1, rep.Danger)

	assert.Len(t, rep.StageCounts, len(domain.Stages()))
	assert.Equal(t, 1, rep.StageCounts[domain.StageBacklog])
	assert.Equal(t, 1, rep.StageCounts[domain.StagePlanned])
	assert.Equal(t, 1, rep.StageCounts[domain.StageQA])
	assert.Equal(t, 0, rep.StageCounts[domain.StageComplete])
}

func TestUpdateItemNoopAndAudit(t *testing.T) {
	env := newTestEnv(t)
	it := env.item(t, "API")
	name := "API"
	same, err := env.Engine.UpdateItem(env.Ctx, engine.ItemUpdateOptions{ID: it.ID, Name: &name})
	require.NoError(t, err)
	assert.Equal(t, it.UpdatedAt, same.UpdatedAt)

	env.Clock.Advance(time.Minute)
	desc := "public endpoints"
	est := 12
	updated, err := env.Engine.UpdateItem(env.Ctx, engine.ItemUpdateOptions{ID: it.ID, Description: &desc, EstimatedHours: &est})
	require.NoError(t, err)
	assert.Equal(t, desc, updated.Description)
	assert.Equal(t, 12, *updated.EstimatedHours)
	assert.True(t, updated.UpdatedAt.After(it.UpdatedAt))

	evs := env.events(t, it.ID)
	require.Len(t, evs, 2)
	assert.Equal(t, domain.ActionUpdated, evs[0].Action)
	assert.Contains(t, evs[0].Payload, "estimated_hours")

	_, err = env.Engine.UpdateItem(env.Ctx, engine.ItemUpdateOptions{ID: "missing", Name: &name})
	require.True(t, errors.Is(err, engine.ErrNotFound))
}

func TestCreateAPIKey(t *testing.T) {
	env := newTestEnv(t)
	key, plain, err := env.Engine.CreateAPIKey(env.Ctx, "ci-bot", "pipeline")
	require.NoError(t, err)
	assert.NotEmpty(t, plain)
	found, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(plain))
	require.NoError(t, err)
	assert.Equal(t, key.ID, found.ID)
	assert.Equal(t, "ci-bot", found.ActorID)

	_, _, err = env.Engine.CreateAPIKey(env.Ctx, " ", "")
	require.ErrorIs(t, err, engine.ErrValidation)
}

func TestAddNote(t *testing.T) {
	env := newTestEnv(t)
	it := env.item(t, "API")

	_, err := env.Engine.AddNote(env.Ctx, it.ID, "   ", "tester")
	require.ErrorIs(t, err, engine.ErrValidation)
	_, err = env.Engine.AddNote(env.Ctx, "missing", "hello", "tester")
	require.ErrorIs(t, err, engine.ErrNotFound)

	first, err := env.Engine.AddNote(env.Ctx, it.ID, " waiting on staging creds ", "tester")
	require.NoError(t, err)
	assert.Equal(t, "waiting on staging creds", first.Content)
	env.Clock.Advance(time.Minute)
	second, err := env.Engine.AddNote(env.Ctx, it.ID, "creds received", "tester")
	require.NoError(t, err)

	notes, err := env.Engine.ListNotes(env.Ctx, it.ID)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, second.ID, notes[0].ID)
	assert.Equal(t, first.ID, notes[1].ID)

	evs := env.events(t, it.ID)
	require.Len(t, evs, 3)
	assert.Equal(t, domain.ActionNoteAdded, evs[0].Action)
}

func TestTagLifecycle(t *testing.T) {
	env := newTestEnv(t)
	it := env.item(t, "API")

	tag, err := env.Engine.CreateTag(env.Ctx, engine.TagCreateOptions{Name: "backend", ActorID: "tester"})
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultTagColor, tag.Color)

	_, err = env.Engine.CreateTag(env.Ctx, engine.TagCreateOptions{Name: "Backend"})
	var verr engine.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "name", verr.Field)
	_, err = env.Engine.CreateTag(env.Ctx, engine.TagCreateOptions{Name: "urgent", Color: "red"})
	require.ErrorIs(t, err, engine.ErrValidation)

	require.NoError(t, env.Engine.TagItem(env.Ctx, it.ID, tag.ID, "tester"))
	require.NoError(t, env.Engine.TagItem(env.Ctx, it.ID, tag.ID, "tester"))
	require.ErrorIs(t, env.Engine.TagItem(env.Ctx, it.ID, "missing", "tester"), engine.ErrNotFound)

	tags, err := env.Engine.ItemTags(env.Ctx, it.ID)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "backend", tags[0].Name)

	all, err := env.Engine.ListTags(env.Ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 1, all[0].ItemCount)

	tagged, err := env.Engine.Activity(env.Ctx, repo.EventFilters{Action: domain.ActionTagged})
	require.NoError(t, err)
	assert.Len(t, tagged, 1)

	require.NoError(t, env.Engine.UntagItem(env.Ctx, it.ID, tag.ID, "tester"))
	require.ErrorIs(t, env.Engine.UntagItem(env.Ctx, it.ID, tag.ID, "tester"), engine.ErrNotFound)

	tags, err = env.Engine.ItemTags(env.Ctx, it.ID)
	require.NoError(t, err)
	assert.Empty(t, tags)

	untagged, err := env.Engine.Activity(env.Ctx, repo.EventFilters{Action: domain.ActionUntagged})
	require.NoError(t, err)
	assert.Len(t, untagged, 1)
}

func TestDeleteItemRemovesNotesAndTagLinks(t *testing.T) {
	env := newTestEnv(t)
	it := env.item(t, "API")
	other := env.item(t, "Docs")
	tag, err := env.Engine.CreateTag(env.Ctx, engine.TagCreateOptions{Name: "backend"})
	require.NoError(t, err)
	_, err = env.Engine.AddNote(env.Ctx, it.ID, "note", "tester")
	require.NoError(t, err)
	require.NoError(t, env.Engine.TagItem(env.Ctx, it.ID, tag.ID, "tester"))
	require.NoError(t, env.Engine.TagItem(env.Ctx, other.ID, tag.ID, "tester"))

	require.NoError(t, env.Engine.DeleteItem(env.Ctx, it.ID, "tester"))

	var notes, links int
	require.NoError(t, env.Engine.DB.QueryRow(`SELECT COUNT(*) FROM notes WHERE item_id=?`, it.ID).Scan(&notes))
	require.NoError(t, env.Engine.DB.QueryRow(`SELECT COUNT(*) FROM item_tags WHERE item_id=?`, it.ID).Scan(&links))
	assert.Zero(t, notes)
	assert.Zero(t, links)

	all, err := env.Engine.ListTags(env.Ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 1, all[0].ItemCount)
}
