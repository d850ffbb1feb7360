package media

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"canvas-server/services/media-engine/internal/infrastructure/metrics"
)

// Sweeper is the garbage collector. Every pass is idempotent and safe to
// re-run: each phase re-checks its precondition against the live catalog
// before acting, and unit-level failures are logged and skipped so one bad
// record never blocks the rest of a sweep.
type Sweeper struct {
	repo       Repository
	store      BlobStore
	staleAfter time.Duration
	log        zerolog.Logger
}

func NewSweeper(repo Repository, store BlobStore, staleAfter time.Duration, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		repo:       repo,
		store:      store,
		staleAfter: staleAfter,
		log:        log.With().Str("component", "media-gc").Logger(),
	}
}

// Report summarizes one sweep.
type Report struct {
	StuckRepaired     int   `json:"stuck_repaired"`
	SoftDeleteReverts int   `json:"soft_delete_reverts"`
	RecordsReclaimed  int   `json:"records_reclaimed"`
	FilesDeleted      int   `json:"files_deleted"`
	OrphansDeleted    int   `json:"orphans_deleted"`
	MissingDemoted    int   `json:"missing_demoted"`
	BlobClaimsPruned  int64 `json:"blob_claims_pruned"`
	BytesReclaimed    int64 `json:"bytes_reclaimed"`
}

// Sweep runs the four collection phases in order: repair stuck processing
// rows, reclaim expired soft-deleted records, sweep orphan files, and demote
// ready records whose backing file vanished.
func (s *Sweeper) Sweep(ctx context.Context) Report {
	started := time.Now()
	var report Report

	s.repairStuck(ctx, &report)
	s.reclaimDeleted(ctx, &report)
	s.sweepOrphans(ctx, &report)
	s.demoteMissing(ctx, &report)

	metrics.GCRunsTotal.Inc()
	metrics.GCBytesReclaimed.Add(float64(report.BytesReclaimed))
	s.log.Info().
		Int("stuck_repaired", report.StuckRepaired).
		Int("records_reclaimed", report.RecordsReclaimed).
		Int("files_deleted", report.FilesDeleted).
		Int("orphans_deleted", report.OrphansDeleted).
		Int("missing_demoted", report.MissingDemoted).
		Int64("bytes_reclaimed", report.BytesReclaimed).
		Dur("took", time.Since(started)).
		Msg("gc sweep finished")
	return report
}

// repairStuck force-fails rows abandoned in processing past the staleness
// threshold. The staleness condition repeats inside the update, so a worker
// that is merely slow keeps its lock.
func (s *Sweeper) repairStuck(ctx context.Context, report *Report) {
	threshold := time.Now().Add(-s.staleAfter)
	stuck, err := s.repo.StuckProcessing(ctx, threshold)
	if err != nil {
		s.log.Error().Err(err).Msg("could not list stuck media")
		return
	}
	for _, m := range stuck {
		repaired, err := s.repo.ForceFail(ctx, m.ID, threshold)
		if err != nil {
			s.log.Error().Err(err).Str("media_id", m.ID).Msg("could not repair stuck media")
			continue
		}
		if repaired {
			report.StuckRepaired++
			metrics.RecordGCAction("stuck_repaired")
			s.log.Warn().Str("media_id", m.ID).Msg("stuck processing record repaired")
		}
	}
}

// reclaimDeleted handles soft-deleted records whose grace window elapsed.
// Still-referenced records are revived instead of reclaimed; shared blobs
// survive until their last referent goes.
func (s *Sweeper) reclaimDeleted(ctx context.Context, report *Report) {
	expired, err := s.repo.Reclaimable(ctx, time.Now())
	if err != nil {
		s.log.Error().Err(err).Msg("could not list reclaimable media")
		return
	}
	for _, m := range expired {
		usages, err := s.repo.UsageCount(ctx, m.ID)
		if err != nil {
			s.log.Error().Err(err).Str("media_id", m.ID).Msg("could not count usages")
			continue
		}
		if usages > 0 {
			// Content somewhere still embeds this asset; deleting it would
			// break that content, so the deletion is reverted instead.
			if err := s.repo.RevertSoftDelete(ctx, m.ID); err != nil {
				s.log.Error().Err(err).Str("media_id", m.ID).Msg("could not revert soft delete")
				continue
			}
			report.SoftDeleteReverts++
			metrics.RecordGCAction("soft_delete_reverted")
			s.log.Info().Str("media_id", m.ID).Int64("usages", usages).Msg("soft delete reverted, media still in use")
			continue
		}

		refs, err := s.repo.CountByStoragePath(ctx, m.StoragePath)
		if err != nil {
			s.log.Error().Err(err).Str("media_id", m.ID).Msg("could not count path references")
			continue
		}
		if refs <= 1 {
			// Last referent: the physical files go with the record.
			s.deleteFiles(ctx, m.StoragePath, report)
			if err := s.repo.DeleteBlob(ctx, m.Checksum); err != nil {
				s.log.Warn().Err(err).Str("checksum", m.Checksum).Msg("could not release blob claim")
			}
		}
		if err := s.repo.DeleteRecord(ctx, m.ID); err != nil {
			s.log.Error().Err(err).Str("media_id", m.ID).Msg("could not delete media record")
			continue
		}
		report.RecordsReclaimed++
		metrics.RecordGCAction("record_reclaimed")
	}
}

// sweepOrphans removes files under the content-addressed prefix that no
// catalog row references, then prunes blob claims left behind by failed
// ingests. The claim pruning keeps an age gate so in-flight uploads are
// never raced.
func (s *Sweeper) sweepOrphans(ctx context.Context, report *Report) {
	referenced, err := s.repo.AllReferencedPaths(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("could not list referenced paths")
		return
	}

	err = s.store.Walk(ctx, func(key string, size int64) error {
		if !strings.HasPrefix(key, storagePrefix+"/") {
			return nil
		}
		if _, ok := referenced[key]; ok {
			return nil
		}
		if err := s.store.Delete(ctx, key); err != nil {
			s.log.Error().Err(err).Str("path", key).Msg("could not delete orphan file")
			return nil
		}
		report.OrphansDeleted++
		report.BytesReclaimed += size
		metrics.RecordGCAction("orphan_deleted")
		s.log.Info().Str("path", key).Int64("size", size).Msg("orphan file deleted")
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Msg("orphan sweep aborted")
	}

	pruned, err := s.repo.PruneOrphanBlobs(ctx, time.Now().Add(-s.staleAfter))
	if err != nil {
		s.log.Error().Err(err).Msg("could not prune orphan blob claims")
		return
	}
	report.BlobClaimsPruned = pruned
}

// demoteMissing flips ready records whose backing file is gone to failed so
// the catalog stops advertising content it cannot serve.
func (s *Sweeper) demoteMissing(ctx context.Context, report *Report) {
	ready, err := s.repo.ReadyMedia(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("could not list ready media")
		return
	}
	for _, m := range ready {
		exists, err := s.store.Exists(ctx, m.StoragePath)
		if err != nil {
			s.log.Error().Err(err).Str("media_id", m.ID).Msg("could not check backing file")
			continue
		}
		if exists {
			continue
		}
		demoted, err := s.repo.DemoteMissing(ctx, m.ID, m.Version)
		if err != nil {
			s.log.Error().Err(err).Str("media_id", m.ID).Msg("could not demote media")
			continue
		}
		if demoted {
			report.MissingDemoted++
			metrics.RecordGCAction("missing_demoted")
			s.log.Warn().Str("media_id", m.ID).Str("path", m.StoragePath).Msg("ready media missing its backing file, demoted to failed")
		}
	}
}

// deleteFiles removes an original and its variant files, accumulating
// reclaimed bytes.
func (s *Sweeper) deleteFiles(ctx context.Context, storagePath string, report *Report) {
	paths := append([]string{storagePath}, variantPathsSlice(storagePath)...)
	for _, p := range paths {
		size, err := s.store.Size(ctx, p)
		if err != nil {
			size = 0
		}
		if err := s.store.Delete(ctx, p); err != nil {
			s.log.Error().Err(err).Str("path", p).Msg("could not delete file")
			continue
		}
		if size > 0 {
			report.FilesDeleted++
			report.BytesReclaimed += size
		}
	}
}
