package observability

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/consentcrawl/dbopen"
)

func setupObsDB(t *testing.T) *sql.DB {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if err := Init(db); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestInit_CreatesTables(t *testing.T) {
	db := setupObsDB(t)
	for _, table := range []string{"metrics_timeseries", "worker_heartbeats", "run_events"} {
		var n int
		db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n)
		if n != 1 {
			t.Fatalf("table %s not found", table)
		}
	}
	if err := Init(db); err != nil {
		t.Fatalf("second Init: %v", err)
	}
}

func TestMetricsManager_RecordAndQuery(t *testing.T) {
	db := setupObsDB(t)
	mm := NewMetricsManager(db, 100, time.Hour)

	now := time.Now()
	mm.Record(&Metric{
		Name: MetricAuditDurationMS, Timestamp: now, Value: 4200, Unit: "milliseconds",
		Labels: map[string]string{"status": "success_basic", "cmp": "onetrust"},
	})
	mm.Record(&Metric{Name: MetricAuditStatusRank, Timestamp: now, Value: 3, Unit: "count"})
	mm.Record(&Metric{Name: MetricAuditDurationMS, Timestamp: now.Add(-2 * time.Hour), Value: 900, Unit: "milliseconds"})
	mm.Close()

	ctx := context.Background()
	got, err := mm.Query(ctx, MetricAuditDurationMS, time.Time{}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("durations: got %d", len(got))
	}
	if got[0].Value != 4200 || got[0].Labels["cmp"] != "onetrust" {
		t.Fatalf("newest duration = %+v", got[0])
	}

	recent, err := mm.Query(ctx, "", now.Add(-time.Hour), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 {
		t.Fatalf("recent metrics: got %d", len(recent))
	}
}

func TestMetricsManager_FlushOnFullBuffer(t *testing.T) {
	db := setupObsDB(t)
	mm := NewMetricsManager(db, 2, time.Hour)
	defer mm.Close()

	mm.Record(&Metric{Name: "a", Timestamp: time.Now(), Value: 1})
	mm.Record(&Metric{Name: "b", Timestamp: time.Now(), Value: 2})

	var n int
	db.QueryRow("SELECT COUNT(*) FROM metrics_timeseries").Scan(&n)
	if n != 2 {
		t.Fatalf("rows after full buffer = %d, want 2", n)
	}
}

func TestMetricsManager_CloseTwice(t *testing.T) {
	mm := NewMetricsManager(setupObsDB(t), 10, time.Hour)
	mm.Close()
	mm.Close()
}

func TestHeartbeat(t *testing.T) {
	db := setupObsDB(t)
	ctx := context.Background()

	hs, err := LatestHeartbeat(ctx, db, "consentd", time.Minute)
	if err != nil || hs != nil {
		t.Fatalf("before first beat: %v, %v", hs, err)
	}

	hw := NewHeartbeatWriter(db, "consentd", time.Hour, nil)
	if err := hw.Write(ctx); err != nil {
		t.Fatal(err)
	}
	hs, err = LatestHeartbeat(ctx, db, "consentd", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if hs == nil || !hs.Alive || hs.GoroutinesCount <= 0 {
		t.Fatalf("heartbeat = %+v", hs)
	}
}

func TestHeartbeat_RunStopsWithContext(t *testing.T) {
	db := setupObsDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewHeartbeatWriter(db, "consentd", time.Hour, nil).Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		var n int
		db.QueryRow("SELECT COUNT(*) FROM worker_heartbeats").Scan(&n)
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no heartbeat written")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunLog(t *testing.T) {
	db := setupObsDB(t)
	ctx := context.Background()
	log := NewRunLog(db, nil)

	t0 := time.Now().Add(-time.Minute)
	log.Log(ctx, RunEvent{RunID: "run_1", Kind: KindWatch, Action: ActionStarted, URLs: 3, At: t0})
	log.Log(ctx, RunEvent{RunID: "run_1", Kind: KindWatch, Action: ActionFinished, URLs: 3, Failed: 1, At: t0.Add(time.Second)})
	log.Log(ctx, RunEvent{RunID: "run_2", Kind: KindBatch, Action: ActionStarted, URLs: 1})

	events, err := log.Events(ctx, "run_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Action != ActionStarted || events[1].Action != ActionFinished || events[1].Failed != 1 {
		t.Fatalf("events = %+v", events)
	}
}

func TestCleanup(t *testing.T) {
	db := setupObsDB(t)
	ctx := context.Background()
	old := time.Now().AddDate(0, 0, -40)

	mm := NewMetricsManager(db, 10, time.Hour)
	mm.Record(&Metric{Name: "old", Timestamp: old, Value: 1})
	mm.Record(&Metric{Name: "new", Timestamp: time.Now(), Value: 1})
	mm.Close()
	log := NewRunLog(db, nil)
	log.Log(ctx, RunEvent{RunID: "r", Kind: KindWatch, Action: ActionStarted, At: old})

	if err := Cleanup(ctx, db, Retention{MetricsDays: 30}); err != nil {
		t.Fatal(err)
	}
	var metrics, events int
	db.QueryRow("SELECT COUNT(*) FROM metrics_timeseries").Scan(&metrics)
	db.QueryRow("SELECT COUNT(*) FROM run_events").Scan(&events)
	if metrics != 1 {
		t.Fatalf("metrics left = %d, want 1", metrics)
	}
	if events != 1 {
		t.Fatalf("run events left = %d, want 1 (zero retention keeps rows)", events)
	}
}
