package media

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"io"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"canvas-server/services/media-engine/internal/config"
	"canvas-server/services/media-engine/internal/infrastructure/metrics"
	"canvas-server/services/media-engine/utils/mediaid"
)

// mediaIDPattern matches embedded media references inside entity content.
var mediaIDPattern = regexp.MustCompile(`med_[0-9a-z]{26}`)

// Service orchestrates media ingestion, replacement, retry, deletion and
// usage synchronization. All cross-request coordination runs through the
// catalog's conditional updates; the service holds no in-process locks.
type Service struct {
	cfg        *config.Config
	repo       Repository
	store      BlobStore
	transcoder *Transcoder
	log        zerolog.Logger
}

func NewService(cfg *config.Config, repo Repository, store BlobStore, log zerolog.Logger) *Service {
	return &Service{
		cfg:        cfg,
		repo:       repo,
		store:      store,
		transcoder: NewTranscoder(cfg.MaxImageDimension, cfg.JPEGQuality),
		log:        log.With().Str("component", "media-service").Logger(),
	}
}

// prepared is the outcome of the validation half of ingestion: sniffed,
// sanitized or transcoded, and checksummed. No catalog row exists yet when
// any of this fails.
type prepared struct {
	final    []byte
	checksum string
	mime     string
	ext      string
	class    TypeClass
	width    *int
	height   *int
}

// Upload runs the full ingestion pipeline for a new asset.
func (s *Service) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	p, err := s.prepare(input)
	if err != nil {
		metrics.RecordUpload("unknown", "rejected", 0)
		return nil, err
	}

	// Dedup check: identical final content reuses the existing blob and its
	// variants under a fresh id.
	if existing, err := s.repo.FindReadyByChecksum(ctx, p.checksum); err != nil {
		return nil, err
	} else if existing != nil {
		return s.adoptExisting(ctx, existing, input)
	}

	storagePath := StoragePath(p.checksum, p.ext)

	// First-writer claim on the checksum. Losing the race to a ready owner
	// is a dedup hit; losing it to an in-flight owner is harmless because
	// both writers put identical bytes at the identical path.
	claimed, err := s.repo.ClaimBlob(ctx, p.checksum, storagePath)
	if err != nil {
		return nil, err
	}
	if !claimed {
		if existing, err := s.repo.FindReadyByChecksum(ctx, p.checksum); err != nil {
			return nil, err
		} else if existing != nil {
			return s.adoptExisting(ctx, existing, input)
		}
	}

	// The row is created eagerly in processing state so it is visible and
	// lockable before any slow I/O starts.
	now := time.Now()
	m := &Media{
		ID:           mediaid.New(),
		Filename:     input.Filename,
		MimeType:     p.mime,
		StoragePath:  storagePath,
		Checksum:     p.checksum,
		Width:        p.width,
		Height:       p.height,
		Status:       StatusProcessing,
		Version:      1,
		ProcessingAt: &now,
		CreatedBy:    input.ActorID,
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, err
	}

	if err := s.repo.AcquireProcessing(ctx, m.ID, m.Version); err != nil {
		return nil, err
	}

	if err := s.process(ctx, m, p); err != nil {
		return nil, err
	}

	metrics.RecordUpload(p.mime, "success", int64(len(p.final)))
	s.log.Info().
		Str("media_id", m.ID).
		Str("mime", m.MimeType).
		Str("path", m.StoragePath).
		Msg("media ingested")
	return &UploadResult{Media: m, Deduplicated: false}, nil
}

// prepare runs the validation half of ingestion: read with the size ceiling
// while hashing, sniff the real type, sanitize or transcode, and checksum
// the final representation. Identical final content always dedups even when
// the originals differed byte-for-byte.
func (s *Service) prepare(input UploadInput) (*prepared, error) {
	if input.DeclaredSize > s.cfg.MaxUploadBytes {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, input.DeclaredSize, s.cfg.MaxUploadBytes)
	}

	data, streamSum, err := readLimited(input.Reader, s.cfg.MaxUploadBytes)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyUpload
	}

	sniffed, err := Sniff(data, input.Filename)
	if err != nil {
		return nil, err
	}

	p := &prepared{mime: sniffed.MIME, ext: sniffed.Ext, class: sniffed.Class}

	switch sniffed.Class {
	case ClassVector:
		if int64(len(data)) > s.cfg.MaxVectorBytes {
			return nil, fmt.Errorf("%w: vector uploads are limited to %d bytes", ErrTooLarge, s.cfg.MaxVectorBytes)
		}
		sanitized, err := SanitizeSVG(data)
		if err != nil {
			return nil, err
		}
		p.final = sanitized
	case ClassRaster:
		normalized, info, err := s.transcoder.Normalize(data, sniffed.MIME)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedType, err)
		}
		p.final = normalized
		p.mime = info.MIME
		p.ext = info.Ext
		p.width = &info.Width
		p.height = &info.Height
	default:
		p.final = data
	}

	// The checksum covers the final stored representation; the streaming
	// hash is only reusable when nothing was rewritten.
	if sniffed.Class == ClassBinary {
		p.checksum = streamSum
	} else {
		sum := sha256.Sum256(p.final)
		p.checksum = hex.EncodeToString(sum[:])
	}
	return p, nil
}

// process writes the final bytes and variants under the processing lock and
// flips the row to ready. Any failure after this point cleans up the files
// this attempt wrote and lands the row in failed.
func (s *Service) process(ctx context.Context, m *Media, p *prepared) error {
	var written []string
	fail := func(cause error) error {
		s.cleanupFiles(ctx, written)
		if err := s.repo.MarkFailed(ctx, m.ID, m.Version); err != nil {
			s.log.Error().Err(err).Str("media_id", m.ID).Msg("could not mark media failed")
		}
		m.Status = StatusFailed
		m.ProcessingAt = nil
		metrics.RecordUpload(p.mime, "failed", 0)
		return fmt.Errorf("processing %s: %w", m.ID, cause)
	}

	if _, err := s.store.Write(ctx, m.StoragePath, bytes.NewReader(p.final)); err != nil {
		return fail(err)
	}
	written = append(written, m.StoragePath)

	exists, err := s.store.Exists(ctx, m.StoragePath)
	if err != nil {
		return fail(err)
	}
	if !exists {
		return fail(fmt.Errorf("write verification failed for %s", m.StoragePath))
	}

	// The size on disk is authoritative over any estimate.
	size, err := s.store.Size(ctx, m.StoragePath)
	if err != nil {
		return fail(err)
	}
	m.FileSize = &size

	if p.class == ClassRaster {
		variantFiles, err := s.ensureVariants(ctx, m.ID, m.StoragePath, p.final, p.mime)
		written = append(written, variantFiles...)
		if err != nil {
			return fail(err)
		}
	}

	m.Status = StatusReady
	m.ProcessingAt = nil
	if err := s.repo.MarkReady(ctx, m); err != nil {
		// The lock was lost or the catalog is unavailable; shared
		// content-addressed files are left for the orphan sweep.
		return err
	}
	return nil
}

// ensureVariants registers existing variant files from disk or generates the
// full set, writing each and inserting the rows in one batch. Returns the
// paths this call wrote.
func (s *Service) ensureVariants(ctx context.Context, mediaID, storagePath string, normalized []byte, normalizedMIME string) ([]string, error) {
	paths := VariantPaths(storagePath)

	allExist := true
	for _, p := range paths {
		exists, err := s.store.Exists(ctx, p)
		if err != nil {
			return nil, err
		}
		if !exists {
			allExist = false
			break
		}
	}

	if allExist {
		// A prior run already produced these files (dedup window or retried
		// attempt): register them from actual file metadata instead of
		// regenerating.
		variants := make([]Variant, 0, len(paths))
		for i, kind := range VariantKinds {
			size, err := s.store.Size(ctx, paths[i])
			if err != nil {
				return nil, err
			}
			width, height := s.inspectDimensions(ctx, paths[i])
			variants = append(variants, Variant{
				MediaID:     mediaID,
				Kind:        kind,
				StoragePath: paths[i],
				MimeType:    variantMIME(kind, normalizedMIME),
				Width:       width,
				Height:      height,
				Size:        size,
			})
		}
		return nil, s.repo.ReplaceVariants(ctx, mediaID, variants)
	}

	started := time.Now()
	blobs, err := s.transcoder.GenerateVariants(normalized, normalizedMIME)
	if err != nil {
		return nil, err
	}

	var written []string
	variants := make([]Variant, 0, len(blobs))
	for i, blob := range blobs {
		if _, err := s.store.Write(ctx, paths[i], bytes.NewReader(blob.Data)); err != nil {
			return written, err
		}
		written = append(written, paths[i])
		variants = append(variants, Variant{
			MediaID:     mediaID,
			Kind:        blob.Kind,
			StoragePath: paths[i],
			MimeType:    blob.MIME,
			Width:       blob.Width,
			Height:      blob.Height,
			Size:        int64(len(blob.Data)),
		})
	}
	metrics.VariantDuration.Observe(time.Since(started).Seconds())

	return written, s.repo.ReplaceVariants(ctx, mediaID, variants)
}

// adoptExisting creates a fresh ready record sharing the existing blob and
// copies its variant rows, reporting the outcome as deduplicated.
func (s *Service) adoptExisting(ctx context.Context, existing *Media, input UploadInput) (*UploadResult, error) {
	filename := input.Filename
	if filename == "" {
		filename = existing.Filename
	}
	dup := &Media{
		ID:          mediaid.New(),
		Filename:    filename,
		MimeType:    existing.MimeType,
		StoragePath: existing.StoragePath,
		Checksum:    existing.Checksum,
		Width:       existing.Width,
		Height:      existing.Height,
		FileSize:    existing.FileSize,
		Status:      StatusReady,
		Version:     1,
		CreatedBy:   input.ActorID,
	}
	if err := s.repo.Create(ctx, dup); err != nil {
		return nil, err
	}

	variants, err := s.repo.VariantsByMediaID(ctx, existing.ID)
	if err != nil {
		return nil, err
	}
	if len(variants) > 0 {
		for i := range variants {
			variants[i].MediaID = dup.ID
		}
		if err := s.repo.ReplaceVariants(ctx, dup.ID, variants); err != nil {
			return nil, err
		}
	}

	metrics.DedupHitsTotal.Inc()
	s.log.Info().
		Str("media_id", dup.ID).
		Str("origin_id", existing.ID).
		Str("checksum", dup.Checksum).
		Msg("upload deduplicated")
	return &UploadResult{Media: dup, Deduplicated: true}, nil
}

// Replace swaps the bytes behind an existing ready record in place, bumping
// its version in the same update that re-points the storage path. Old
// physical files are removed only when this record was their sole referent.
func (s *Service) Replace(ctx context.Context, id string, input UploadInput) (*UploadResult, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil || m.DeletedAt != nil {
		return nil, ErrNotFound
	}

	// Validate the new upload fully before taking the lock so a bad upload
	// never wrecks a healthy record.
	p, err := s.prepare(input)
	if err != nil {
		return nil, err
	}

	if err := s.repo.BeginReprocessing(ctx, id, StatusReady, m.Version); err != nil {
		return nil, err
	}

	oldPath, oldChecksum := m.StoragePath, m.Checksum
	oldRefs, err := s.repo.CountByStoragePath(ctx, oldPath)
	if err != nil {
		return nil, err
	}

	var written []string
	fail := func(cause error) (*UploadResult, error) {
		s.cleanupFiles(ctx, written)
		if err := s.repo.MarkFailed(ctx, m.ID, m.Version); err != nil {
			s.log.Error().Err(err).Str("media_id", m.ID).Msg("could not mark media failed")
		}
		return nil, fmt.Errorf("replacing %s: %w", m.ID, cause)
	}

	deduplicated := false
	switch {
	case p.checksum == oldChecksum:
		// Byte-identical replacement; nothing moves, the version still bumps.

	default:
		if other, err := s.repo.FindReadyByChecksum(ctx, p.checksum); err != nil {
			return fail(err)
		} else if other != nil && other.ID != id {
			// Second-order dedup: adopt the other record's storage wholesale.
			m.StoragePath = other.StoragePath
			m.MimeType = other.MimeType
			m.Width = other.Width
			m.Height = other.Height
			m.FileSize = other.FileSize
			variants, err := s.repo.VariantsByMediaID(ctx, other.ID)
			if err != nil {
				return fail(err)
			}
			for i := range variants {
				variants[i].MediaID = id
			}
			if err := s.repo.ReplaceVariants(ctx, id, variants); err != nil {
				return fail(err)
			}
			deduplicated = true
			break
		}

		newPath := StoragePath(p.checksum, p.ext)
		if _, err := s.repo.ClaimBlob(ctx, p.checksum, newPath); err != nil {
			return fail(err)
		}
		if _, err := s.store.Write(ctx, newPath, bytes.NewReader(p.final)); err != nil {
			return fail(err)
		}
		written = append(written, newPath)
		exists, err := s.store.Exists(ctx, newPath)
		if err != nil || !exists {
			return fail(fmt.Errorf("write verification failed for %s", newPath))
		}
		size, err := s.store.Size(ctx, newPath)
		if err != nil {
			return fail(err)
		}

		m.StoragePath = newPath
		m.MimeType = p.mime
		m.Width = p.width
		m.Height = p.height
		m.FileSize = &size

		if p.class == ClassRaster {
			variantFiles, err := s.ensureVariants(ctx, id, newPath, p.final, p.mime)
			written = append(written, variantFiles...)
			if err != nil {
				return fail(err)
			}
		} else if err := s.repo.ReplaceVariants(ctx, id, nil); err != nil {
			return fail(err)
		}
	}

	m.Checksum = p.checksum
	if err := s.repo.CommitReplacement(ctx, m); err != nil {
		return fail(err)
	}

	if m.StoragePath != oldPath && oldRefs == 1 {
		// This record was the sole referent of the old blob.
		old := append([]string{oldPath}, variantPathsSlice(oldPath)...)
		s.cleanupFiles(ctx, old)
		if err := s.repo.DeleteBlob(ctx, oldChecksum); err != nil {
			s.log.Warn().Err(err).Str("checksum", oldChecksum).Msg("could not release blob claim")
		}
	}

	s.log.Info().
		Str("media_id", m.ID).
		Int("version", m.Version).
		Str("path", m.StoragePath).
		Msg("media replaced")
	return &UploadResult{Media: m, Deduplicated: deduplicated}, nil
}

// Retry re-enters processing for a failed record, re-reading the original
// bytes from disk and regenerating variants. Vector and opaque records flip
// straight back to ready since they never required variant generation.
func (s *Service) Retry(ctx context.Context, id string) (*Media, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil || m.DeletedAt != nil {
		return nil, ErrNotFound
	}
	switch m.Status {
	case StatusProcessing:
		return nil, ErrAlreadyProcessing
	case StatusReady:
		return m, nil
	}

	if err := s.repo.BeginReprocessing(ctx, id, StatusFailed, m.Version); err != nil {
		return nil, err
	}

	fail := func(cause error) (*Media, error) {
		if err := s.repo.MarkFailed(ctx, m.ID, m.Version); err != nil {
			s.log.Error().Err(err).Str("media_id", m.ID).Msg("could not mark media failed")
		}
		return nil, fmt.Errorf("retrying %s: %w", m.ID, cause)
	}

	reader, err := s.store.Open(ctx, m.StoragePath)
	if err != nil {
		return fail(err)
	}
	data, err := io.ReadAll(reader)
	reader.Close()
	if err != nil {
		return fail(err)
	}

	size := int64(len(data))
	m.FileSize = &size

	if _, raster := rasterMIMEs[m.MimeType]; raster {
		if m.Width == nil {
			if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
				m.Width = &cfg.Width
				m.Height = &cfg.Height
			}
		}
		variantFiles, err := s.ensureVariants(ctx, m.ID, m.StoragePath, data, m.MimeType)
		if err != nil {
			s.cleanupFiles(ctx, variantFiles)
			return fail(err)
		}
	}

	m.Status = StatusReady
	m.ProcessingAt = nil
	if err := s.repo.MarkReady(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Delete soft-deletes a record: catalog mutation only, physical cleanup
// deferred to the garbage collector. Deleting an absent or already-deleted
// record succeeds; deleting one mid-processing is rejected.
func (s *Service) Delete(ctx context.Context, id string) error {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if m == nil || m.DeletedAt != nil {
		return nil
	}
	if m.Status == StatusProcessing {
		return ErrAlreadyProcessing
	}

	ok, err := s.repo.SoftDelete(ctx, id, time.Now().Add(s.cfg.DeleteGraceWindow))
	if err != nil {
		return err
	}
	if !ok {
		// The row changed under us; re-read and reclassify.
		m, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if m == nil || m.DeletedAt != nil {
			return nil
		}
		return ErrAlreadyProcessing
	}
	return nil
}

// Get returns a record's metadata, excluding soft-deleted records.
func (s *Service) Get(ctx context.Context, id string) (*Media, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil || m.DeletedAt != nil {
		return nil, ErrNotFound
	}
	return m, nil
}

// Variants returns the variant rows for a record.
func (s *Service) Variants(ctx context.Context, id string) ([]Variant, error) {
	return s.repo.VariantsByMediaID(ctx, id)
}

// OpenForServing resolves a record to a readable blob. A requested variant
// that is absent falls back to the original; a missing backing file demotes
// the record to failed as a side effect of being discovered.
func (s *Service) OpenForServing(ctx context.Context, id, variantName string) (io.ReadCloser, *Media, string, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, "", err
	}
	if m.Status != StatusReady {
		return nil, nil, "", ErrNotFound
	}

	exists, err := s.store.Exists(ctx, m.StoragePath)
	if err != nil {
		return nil, nil, "", err
	}
	if !exists {
		if _, err := s.repo.DemoteMissing(ctx, m.ID, m.Version); err != nil {
			s.log.Error().Err(err).Str("media_id", m.ID).Msg("could not demote media with missing file")
		} else {
			s.log.Warn().Str("media_id", m.ID).Str("path", m.StoragePath).Msg("backing file missing, media demoted to failed")
		}
		return nil, nil, "", ErrNotFound
	}

	servePath, serveMIME := m.StoragePath, m.MimeType
	if variantName != "" {
		variants, err := s.repo.VariantsByMediaID(ctx, m.ID)
		if err != nil {
			return nil, nil, "", err
		}
		for _, v := range variants {
			if string(v.Kind) != variantName {
				continue
			}
			if ok, err := s.store.Exists(ctx, v.StoragePath); err == nil && ok {
				servePath, serveMIME = v.StoragePath, v.MimeType
			}
			break
		}
	}

	reader, err := s.store.Open(ctx, servePath)
	if err != nil {
		return nil, nil, "", err
	}
	return reader, m, serveMIME, nil
}

// SyncUsage recomputes and atomically replaces an entity's usage rows from
// its current raw content. It must accompany the content save it reflects.
func (s *Service) SyncUsage(ctx context.Context, entityType, entityID, field, content string) (int, error) {
	ids := ExtractMediaIDs(content)
	if err := s.repo.ReplaceUsages(ctx, entityType, entityID, field, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// ExtractMediaIDs scans raw content for embedded media references.
func ExtractMediaIDs(content string) []string {
	matches := mediaIDPattern.FindAllString(content, -1)
	seen := make(map[string]struct{}, len(matches))
	ids := make([]string, 0, len(matches))
	for _, id := range matches {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// cleanupFiles best-effort deletes files a failed attempt wrote. Failures
// are logged, not escalated; the orphan sweep is the backstop.
func (s *Service) cleanupFiles(ctx context.Context, paths []string) {
	for _, p := range paths {
		if err := s.store.Delete(ctx, p); err != nil {
			s.log.Warn().Err(err).Str("path", p).Msg("could not clean up file")
		}
	}
}

func (s *Service) inspectDimensions(ctx context.Context, storagePath string) (int, int) {
	reader, err := s.store.Open(ctx, storagePath)
	if err != nil {
		return 0, 0
	}
	defer reader.Close()
	cfg, _, err := image.DecodeConfig(reader)
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

// readLimited reads the upload fully while feeding an incremental hash,
// rejecting payloads past the ceiling without buffering more than one copy.
func readLimited(r io.Reader, limit int64) ([]byte, string, error) {
	buf := &bytes.Buffer{}
	hasher := sha256.New()
	writer := io.MultiWriter(buf, hasher)

	n, err := io.CopyN(writer, r, limit+1)
	if err != nil && err != io.EOF {
		return nil, "", fmt.Errorf("failed to read upload: %w", err)
	}
	if n > limit {
		return nil, "", fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, limit)
	}
	return buf.Bytes(), hex.EncodeToString(hasher.Sum(nil)), nil
}

func variantMIME(kind VariantKind, normalizedMIME string) string {
	switch kind {
	case VariantWebP:
		return "image/webp"
	case VariantPNG:
		return "image/png"
	default:
		return normalizedMIME
	}
}

func variantPathsSlice(basePath string) []string {
	paths := VariantPaths(basePath)
	return paths[:]
}

// IsRasterMIME reports whether a stored mime type carries the full variant
// set.
func IsRasterMIME(mime string) bool {
	_, ok := rasterMIMEs[mime]
	return ok
}
