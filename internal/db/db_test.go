package db

import (
	"context"
	"path/filepath"
	"testing"
)

// migrationsDir points at the real migration SQL relative to this
// package, so tests exercise the shipped schema.
const migrationsDir = "../../db/migrations"

// setupTestDB creates a migrated database in a temp directory.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "fade_test.db")
	db, err := NewDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.MigrateUp(migrationsDir); err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}
	return db
}

func TestRecordRun(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.RecordRun(ctx, "run-1", 1000.5, "v0.3.0"); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	var startedAt float64
	var version string
	err := db.QueryRow(`SELECT started_at, version FROM runs WHERE id = ?`, "run-1").
		Scan(&startedAt, &version)
	if err != nil {
		t.Fatalf("Failed to read run row: %v", err)
	}
	if startedAt != 1000.5 {
		t.Errorf("Expected started_at=1000.5, got %v", startedAt)
	}
	if version != "v0.3.0" {
		t.Errorf("Expected version=v0.3.0, got %q", version)
	}

	// Run ids are primary keys; a duplicate insert must fail.
	if err := db.RecordRun(ctx, "run-1", 2000.0, "v0.3.0"); err == nil {
		t.Error("Expected duplicate run insert to fail")
	}
}

func TestUpsertSource(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.UpsertSource(ctx, "src-1", "cam1", 100.0); err != nil {
		t.Fatalf("First upsert failed: %v", err)
	}
	if err := db.UpsertSource(ctx, "src-1", "cam1-renamed", 200.0); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	sources, err := db.Sources(ctx)
	if err != nil {
		t.Fatalf("Sources failed: %v", err)
	}
	if len(sources) != 1 {
		t.Fatalf("Expected 1 source, got %d", len(sources))
	}

	src := sources[0]
	if src.Label != "cam1-renamed" {
		t.Errorf("Expected label to follow the latest upsert, got %q", src.Label)
	}
	if src.FirstSeen != 100.0 {
		t.Errorf("Expected first_seen to survive the upsert, got %v", src.FirstSeen)
	}
	if src.LastSeen != 200.0 {
		t.Errorf("Expected last_seen=200, got %v", src.LastSeen)
	}
	if src.EvictedAt != nil {
		t.Errorf("Expected live source, got evicted_at=%v", *src.EvictedAt)
	}
}

func TestMarkSourceEvicted(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.UpsertSource(ctx, "src-1", "cam1", 100.0); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := db.MarkSourceEvicted(ctx, "src-1", 150.0); err != nil {
		t.Fatalf("MarkSourceEvicted failed: %v", err)
	}

	sources, err := db.Sources(ctx)
	if err != nil {
		t.Fatalf("Sources failed: %v", err)
	}
	if sources[0].EvictedAt == nil || *sources[0].EvictedAt != 150.0 {
		t.Errorf("Expected evicted_at=150, got %v", sources[0].EvictedAt)
	}

	// Sources that never produced a flushed row have no row to stamp.
	if err := db.MarkSourceEvicted(ctx, "src-ghost", 160.0); err != nil {
		t.Errorf("Evicting an unknown source should not error: %v", err)
	}
}

func testTransition(source string, detectedAt float64, verdict string) Transition {
	return Transition{
		RunID:       "run-1",
		SourceID:    source,
		Label:       source + "-label",
		Verdict:     verdict,
		Confidence:  0.9,
		AverageRate: -0.02,
		Luminance:   0.15,
		Variance:    0.01,
		EdgeDensity: 0.02,
		StartedAt:   detectedAt - 0.5,
		DetectedAt:  detectedAt,
		FrameCount:  12,
	}
}

func TestRecordAndQueryTransitions(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	batch := []Transition{
		testTransition("src-1", 100.0, "potential_fade_out"),
		testTransition("src-1", 102.0, "fade_out"),
		testTransition("src-2", 101.0, "fade_in"),
	}
	if err := db.RecordTransitions(ctx, batch); err != nil {
		t.Fatalf("RecordTransitions failed: %v", err)
	}
	if err := db.RecordTransition(ctx, testTransition("src-2", 103.0, "fade_out")); err != nil {
		t.Fatalf("RecordTransition failed: %v", err)
	}

	all, err := db.Transitions(ctx, "", 0, 0)
	if err != nil {
		t.Fatalf("Transitions failed: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("Expected 4 transitions, got %d", len(all))
	}
	// Newest first.
	if all[0].DetectedAt != 103.0 || all[3].DetectedAt != 100.0 {
		t.Errorf("Expected newest-first ordering, got %v ... %v", all[0].DetectedAt, all[3].DetectedAt)
	}
	if all[0].ID == 0 {
		t.Error("Expected scan to populate row ids")
	}

	bySource, err := db.Transitions(ctx, "src-1", 0, 0)
	if err != nil {
		t.Fatalf("Transitions by source failed: %v", err)
	}
	if len(bySource) != 2 {
		t.Errorf("Expected 2 transitions for src-1, got %d", len(bySource))
	}
	for _, tr := range bySource {
		if tr.SourceID != "src-1" {
			t.Errorf("Source filter leaked row for %s", tr.SourceID)
		}
	}

	since, err := db.Transitions(ctx, "", 102.0, 0)
	if err != nil {
		t.Fatalf("Transitions since failed: %v", err)
	}
	if len(since) != 2 {
		t.Errorf("Expected 2 transitions at or after t=102, got %d", len(since))
	}

	limited, err := db.Transitions(ctx, "", 0, 1)
	if err != nil {
		t.Fatalf("Transitions with limit failed: %v", err)
	}
	if len(limited) != 1 || limited[0].DetectedAt != 103.0 {
		t.Errorf("Expected the single newest transition, got %+v", limited)
	}

	// Round-trip of one full row.
	got := all[3]
	want := batch[0]
	if got.RunID != want.RunID || got.Verdict != want.Verdict ||
		got.Confidence != want.Confidence || got.AverageRate != want.AverageRate ||
		got.Luminance != want.Luminance || got.StartedAt != want.StartedAt ||
		got.FrameCount != want.FrameCount {
		t.Errorf("Row round-trip mismatch: got %+v want %+v", got, want)
	}
}

func TestTransitionCounts(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	counts, err := db.TransitionCounts(ctx)
	if err != nil {
		t.Fatalf("TransitionCounts on empty table failed: %v", err)
	}
	if len(counts) != 0 {
		t.Errorf("Expected empty counts, got %v", counts)
	}

	batch := []Transition{
		testTransition("src-1", 100.0, "fade_out"),
		testTransition("src-1", 101.0, "fade_out"),
		testTransition("src-2", 102.0, "fade_in"),
	}
	if err := db.RecordTransitions(ctx, batch); err != nil {
		t.Fatalf("RecordTransitions failed: %v", err)
	}

	counts, err = db.TransitionCounts(ctx)
	if err != nil {
		t.Fatalf("TransitionCounts failed: %v", err)
	}
	if counts["fade_out"] != 2 || counts["fade_in"] != 1 {
		t.Errorf("Unexpected counts: %v", counts)
	}
}

func TestRecordTransitionsEmptyBatch(t *testing.T) {
	db := setupTestDB(t)

	if err := db.RecordTransitions(context.Background(), nil); err != nil {
		t.Errorf("Empty batch should be a no-op, got %v", err)
	}
}

func TestGetDatabaseStats(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.RecordTransition(ctx, testTransition("src-1", 100.0, "fade_out")); err != nil {
		t.Fatalf("RecordTransition failed: %v", err)
	}

	stats, err := db.GetDatabaseStats()
	if err != nil {
		t.Fatalf("GetDatabaseStats failed: %v", err)
	}
	if stats.TotalSizeMB <= 0 {
		t.Error("Expected positive database size")
	}

	rowCounts := make(map[string]int64)
	for _, table := range stats.Tables {
		rowCounts[table.Name] = table.RowCount
	}
	for _, table := range []string{"runs", "sources", "transitions"} {
		if _, ok := rowCounts[table]; !ok {
			t.Errorf("Expected stats to include table %s, got %v", table, rowCounts)
		}
	}
	if rowCounts["transitions"] != 1 {
		t.Errorf("Expected 1 transition row, got %d", rowCounts["transitions"])
	}
}
