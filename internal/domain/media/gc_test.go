package media_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	media "canvas-server/services/media-engine/internal/domain/media"
)

func newTestSweeper(env *testEnv) *media.Sweeper {
	return media.NewSweeper(env.repo, env.store, env.cfg.ProcessingStaleAfter, zerolog.Nop())
}

func TestSweeper_RepairsStuckProcessing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	stale := time.Now().Add(-time.Hour)
	stuck := &media.Media{
		ID:           "med_01stuckstuckstuckstuckstu",
		Filename:     "crash.png",
		MimeType:     "image/png",
		StoragePath:  "sha256/aa/bb/aabbcc.png",
		Checksum:     strings.Repeat("a", 64),
		Status:       media.StatusProcessing,
		Version:      1,
		ProcessingAt: &stale,
	}
	if err := env.repo.Create(ctx, stuck); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	fresh := time.Now()
	inflight := &media.Media{
		ID:           "med_01freshfreshfreshfreshfr",
		Filename:     "active.png",
		MimeType:     "image/png",
		StoragePath:  "sha256/cc/dd/ccddee.png",
		Checksum:     strings.Repeat("b", 64),
		Status:       media.StatusProcessing,
		Version:      1,
		ProcessingAt: &fresh,
	}
	if err := env.repo.Create(ctx, inflight); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	report := newTestSweeper(env).Sweep(ctx)
	if report.StuckRepaired != 1 {
		t.Errorf("StuckRepaired = %d, want 1", report.StuckRepaired)
	}

	repaired, _ := env.repo.GetByID(ctx, stuck.ID)
	if repaired.Status != media.StatusFailed {
		t.Errorf("stuck record status = %s, want failed", repaired.Status)
	}
	untouched, _ := env.repo.GetByID(ctx, inflight.ID)
	if untouched.Status != media.StatusProcessing {
		t.Errorf("in-flight record status = %s, want processing kept", untouched.Status)
	}
}

func TestSweeper_ReclaimsExpiredSoftDeletes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	uploaded, err := env.service.Upload(ctx, uploadInput("gone.png", encodeTestImage(t, 300, 200, imaging.PNG)))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	id := uploaded.Media.ID
	path := uploaded.Media.StoragePath

	// Soft-delete with an already-elapsed grace window.
	if ok, err := env.repo.SoftDelete(ctx, id, time.Now().Add(-time.Minute)); err != nil || !ok {
		t.Fatalf("SoftDelete() = %v, %v", ok, err)
	}

	report := newTestSweeper(env).Sweep(ctx)
	if report.RecordsReclaimed != 1 {
		t.Errorf("RecordsReclaimed = %d, want 1", report.RecordsReclaimed)
	}
	if report.FilesDeleted == 0 {
		t.Error("no files deleted for sole-referent reclamation")
	}
	if report.BytesReclaimed <= 0 {
		t.Error("no bytes accounted for reclamation")
	}

	if m, _ := env.repo.GetByID(ctx, id); m != nil {
		t.Error("reclaimed record still in catalog")
	}
	if ok, _ := env.store.Exists(ctx, path); ok {
		t.Error("reclaimed file still on disk")
	}
	for _, variantPath := range media.VariantPaths(path) {
		if ok, _ := env.store.Exists(ctx, variantPath); ok {
			t.Errorf("variant %s survived reclamation", variantPath)
		}
	}
}

func TestSweeper_SharedBlobSurvivesReclamation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	data := encodeTestImage(t, 200, 150, imaging.PNG)

	first, err := env.service.Upload(ctx, uploadInput("a.png", data))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	second, err := env.service.Upload(ctx, uploadInput("b.png", data))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	if ok, err := env.repo.SoftDelete(ctx, second.Media.ID, time.Now().Add(-time.Minute)); err != nil || !ok {
		t.Fatalf("SoftDelete() = %v, %v", ok, err)
	}

	report := newTestSweeper(env).Sweep(ctx)
	if report.RecordsReclaimed != 1 {
		t.Errorf("RecordsReclaimed = %d, want 1", report.RecordsReclaimed)
	}

	// The record goes, the shared file stays.
	if m, _ := env.repo.GetByID(ctx, second.Media.ID); m != nil {
		t.Error("reclaimed record still in catalog")
	}
	if ok, _ := env.store.Exists(ctx, first.Media.StoragePath); !ok {
		t.Error("shared file deleted while still referenced")
	}
	if survivor, _ := env.repo.GetByID(ctx, first.Media.ID); survivor == nil || survivor.Status != media.StatusReady {
		t.Error("surviving dedup copy damaged by reclamation")
	}
}

func TestSweeper_RevertsSoftDeleteWhenStillUsed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	uploaded, err := env.service.Upload(ctx, uploadInput("used.png", encodeTestImage(t, 100, 100, imaging.PNG)))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	id := uploaded.Media.ID

	if _, err := env.service.SyncUsage(ctx, "post", "post_9", "body", "embed: "+id); err != nil {
		t.Fatalf("SyncUsage() error = %v", err)
	}
	if ok, err := env.repo.SoftDelete(ctx, id, time.Now().Add(-time.Minute)); err != nil || !ok {
		t.Fatalf("SoftDelete() = %v, %v", ok, err)
	}

	report := newTestSweeper(env).Sweep(ctx)
	if report.SoftDeleteReverts != 1 {
		t.Errorf("SoftDeleteReverts = %d, want 1", report.SoftDeleteReverts)
	}

	revived, err := env.service.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() after revert error = %v", err)
	}
	if revived.DeletedAt != nil {
		t.Error("revert left the deletion mark in place")
	}
	if ok, _ := env.store.Exists(ctx, revived.StoragePath); !ok {
		t.Error("revert lost the physical file")
	}
}

func TestSweeper_DeletesOrphanFiles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	uploaded, err := env.service.Upload(ctx, uploadInput("keep.png", encodeTestImage(t, 100, 100, imaging.PNG)))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	orphan := "sha256/ff/ee/" + strings.Repeat("f", 64) + ".jpg"
	if _, err := env.store.Write(ctx, orphan, bytes.NewReader([]byte("leftover bytes"))); err != nil {
		t.Fatalf("write orphan: %v", err)
	}
	outside := "uploads/manual-note.txt"
	if _, err := env.store.Write(ctx, outside, bytes.NewReader([]byte("not managed"))); err != nil {
		t.Fatalf("write outside file: %v", err)
	}

	report := newTestSweeper(env).Sweep(ctx)
	if report.OrphansDeleted != 1 {
		t.Errorf("OrphansDeleted = %d, want 1", report.OrphansDeleted)
	}

	if ok, _ := env.store.Exists(ctx, orphan); ok {
		t.Error("orphan file survived sweep")
	}
	if ok, _ := env.store.Exists(ctx, uploaded.Media.StoragePath); !ok {
		t.Error("referenced file deleted by orphan sweep")
	}
	if ok, _ := env.store.Exists(ctx, outside); !ok {
		t.Error("file outside the managed prefix was deleted")
	}
}

func TestSweeper_DemotesMissingFiles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	uploaded, err := env.service.Upload(ctx, uploadInput("vanish.png", encodeTestImage(t, 100, 100, imaging.PNG)))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	id := uploaded.Media.ID

	if err := env.store.Delete(ctx, uploaded.Media.StoragePath); err != nil {
		t.Fatalf("delete backing file: %v", err)
	}

	report := newTestSweeper(env).Sweep(ctx)
	if report.MissingDemoted != 1 {
		t.Errorf("MissingDemoted = %d, want 1", report.MissingDemoted)
	}

	demoted, _ := env.repo.GetByID(ctx, id)
	if demoted.Status != media.StatusFailed {
		t.Errorf("status = %s, want failed", demoted.Status)
	}
}

func TestSweeper_Convergence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	uploaded, err := env.service.Upload(ctx, uploadInput("gone.png", encodeTestImage(t, 150, 150, imaging.PNG)))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if ok, err := env.repo.SoftDelete(ctx, uploaded.Media.ID, time.Now().Add(-time.Minute)); err != nil || !ok {
		t.Fatalf("SoftDelete() = %v, %v", ok, err)
	}

	sweeper := newTestSweeper(env)
	first := sweeper.Sweep(ctx)
	if first.RecordsReclaimed != 1 {
		t.Fatalf("first sweep RecordsReclaimed = %d, want 1", first.RecordsReclaimed)
	}

	// A second sweep over the already-clean state does nothing.
	second := sweeper.Sweep(ctx)
	if second.RecordsReclaimed != 0 || second.FilesDeleted != 0 ||
		second.OrphansDeleted != 0 || second.StuckRepaired != 0 ||
		second.MissingDemoted != 0 || second.BytesReclaimed != 0 {
		t.Errorf("second sweep not a no-op: %+v", second)
	}
}
