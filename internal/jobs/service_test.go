// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package jobs

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/ManuGH/xl2wh/internal/staging"
	"github.com/ManuGH/xl2wh/internal/warehouse"
)

func TestServiceRunsEnqueuedETL(t *testing.T) {
	ctx := context.Background()
	env, _ := newTestEnv(t)
	batchID := stageBatch(t, env.Staging, []map[string]any{
		{"factory_code": "TW-01", "date": "2024-03-01", "revenue": 100},
	})

	svc := NewService(env, Options{Workers: 1, Capacity: 16})
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(svc.Stop)

	id, err := svc.EnqueueETL(ctx, batchID, nil)
	if err != nil {
		t.Fatalf("EnqueueETL failed: %v", err)
	}
	if id == "" {
		t.Fatal("empty job id")
	}

	waitFor(t, 5*time.Second, func() bool {
		b, err := env.Staging.GetBatch(ctx, batchID)
		return err == nil && b.Status == staging.StatusCompleted
	}, "batch never completed")
}

func TestServiceRunsEnqueuedKPI(t *testing.T) {
	ctx := context.Background()
	env, wh := newTestEnv(t)

	if err := wh.UpsertMetrics(ctx, []warehouse.MetricDefinition{
		{MetricCode: "revenue", Scope: warehouse.ScopeFactory},
	}); err != nil {
		t.Fatalf("seed metrics: %v", err)
	}
	rec := warehouse.OperationsRecord{FactoryCode: "TW-01", Year: 2024, Month: 2}
	rec.SetMeasure("revenue", 80)
	if err := wh.LoadOperations(ctx, 7, []warehouse.OperationsRecord{rec}); err != nil {
		t.Fatalf("LoadOperations failed: %v", err)
	}

	svc := NewService(env, Options{Workers: 1, Capacity: 16})
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(svc.Stop)

	if _, err := svc.EnqueueKPI(ctx, 7, nil); err != nil {
		t.Fatalf("EnqueueKPI failed: %v", err)
	}

	batchID := int64(7)
	waitFor(t, 5*time.Second, func() bool {
		rows, err := wh.CalcResults(ctx, warehouse.CalcFilter{BatchID: &batchID})
		return err == nil && len(rows) > 0
	}, "calculation results never appeared")
}

func TestServiceSweeperFailsStaleBatches(t *testing.T) {
	ctx := context.Background()
	env, _ := newTestEnv(t)

	stale, _ := env.Staging.CreateBatch(ctx, staging.DatasetOperations)
	old := time.Now().UTC().Add(-2 * time.Hour).Format(time.RFC3339)
	if _, err := env.Staging.DB.Exec(`UPDATE upload_batches SET created_at = ? WHERE id = ?`, old, stale); err != nil {
		t.Fatalf("backdate failed: %v", err)
	}

	svc := NewService(env, Options{
		Workers: 1, Capacity: 16,
		SweepInterval: 50 * time.Millisecond,
		StaleAfter:    30 * time.Minute,
	})
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(svc.Stop)

	waitFor(t, 5*time.Second, func() bool {
		b, err := env.Staging.GetBatch(ctx, stale)
		return err == nil && b.Status == staging.StatusFailed
	}, "sweeper never failed the stale batch")
}

func TestServiceStartStopNoGoroutineLeak(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	env, _ := newTestEnv(t)
	svc := NewService(env, Options{Workers: 2, Capacity: 8})
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	svc.Stop()
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatal(msg)
}
