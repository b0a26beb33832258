package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/joeblew999/plat-cover/internal/db"
)

func newDraftStore(t *testing.T) *DraftStore {
	t.Helper()
	conn, err := db.Open(db.Config{DataDir: t.TempDir(), DBName: "test"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	store, err := NewDraftStore(context.Background(), conn)
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func TestDraftStore(t *testing.T) {
	ctx := context.Background()
	store := newDraftStore(t)
	store.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	if _, err := store.Get(ctx, 12, "2023-05"); !errors.Is(err, ErrNoDraft) {
		t.Fatalf("err=%v, want ErrNoDraft", err)
	}

	if err := store.Put(ctx, 12, "2023-05", testPolygons()); err != nil {
		t.Fatal(err)
	}
	fc := testPolygons()
	fc.Features = append(fc.Features, testPolygons().Features...)
	if err := store.Put(ctx, 12, "2023-05", fc); err != nil {
		t.Fatal(err)
	}
	store.Put(ctx, 12, "2022-01", testPolygons())
	store.Put(ctx, 13, "2023-05", testPolygons())

	d, err := store.Get(ctx, 12, "2023-05")
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Polygons.Features) != 2 {
		t.Fatalf("features=%d, want the replaced draft's 2", len(d.Polygons.Features))
	}
	if d.Polygons.Features[0].Properties.MustString("classLabel", "") != "Forest" {
		t.Fatalf("properties=%v", d.Polygons.Features[0].Properties)
	}
	if !d.UpdatedAt.Equal(store.now()) {
		t.Fatalf("updatedAt=%v, want %v", d.UpdatedAt, store.now())
	}

	dates, err := store.Dates(ctx, 12)
	if err != nil {
		t.Fatal(err)
	}
	if len(dates) != 2 || dates[0] != "2022-01" || dates[1] != "2023-05" {
		t.Fatalf("dates=%v, want [2022-01 2023-05]", dates)
	}

	if err := store.Delete(ctx, 12, "2023-05"); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, 12, "2023-05"); err != nil {
		t.Fatalf("deleting a missing draft: %v", err)
	}
	if _, err := store.Get(ctx, 12, "2023-05"); !errors.Is(err, ErrNoDraft) {
		t.Fatalf("err=%v, want ErrNoDraft after delete", err)
	}
	if _, err := store.Get(ctx, 13, "2023-05"); err != nil {
		t.Fatalf("other project's draft: %v", err)
	}
}

func TestCheckpointStoresDirtyDrafts(t *testing.T) {
	ctx := context.Background()
	drafts := newDraftStore(t)
	svc := NewSessionService(SessionConfig{Backend: newBackend(), Drafts: drafts})

	info, _ := svc.Create(ctx, 12)
	sess, _ := svc.Get(ctx, info.ID)
	sess.SetBasemapDate(ctx, "2022-01")
	sess.Restore(testPolygons())

	svc.Checkpoint(ctx, info.ID, sess)
	d, err := drafts.Get(ctx, 12, "2022-01")
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Polygons.Features) != 1 {
		t.Fatalf("features=%d, want 1", len(d.Polygons.Features))
	}

	sess.Discard()
	svc.Checkpoint(ctx, info.ID, sess)
	if _, err := drafts.Get(ctx, 12, "2022-01"); !errors.Is(err, ErrNoDraft) {
		t.Fatalf("err=%v, want draft dropped once clean", err)
	}
}
