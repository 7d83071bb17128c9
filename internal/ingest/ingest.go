// Package ingest implements the staleness-coherent ingestion engine: given
// a resolved origin identity it decides between serving cached metadata and
// revalidating against the origin, performs ordered fan-out ingestion for
// galleries, and reconciles tombstones for origin-deleted resources.
//
// Each origin identity (providerID, resourceID) is always in one of four
// states: MISSING (no metadata row), FRESH (row exists and was checked
// within the adapter's staleness window), STALE (window exceeded) or
// DELETED (tombstoned row). Only MISSING and STALE trigger origin I/O.
package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/sweepies/imgur-sans-bullshit/internal/blobstore"
	"github.com/sweepies/imgur-sans-bullshit/internal/datastore"
	"github.com/sweepies/imgur-sans-bullshit/internal/errors"
	"github.com/sweepies/imgur-sans-bullshit/internal/hosts"
	"github.com/sweepies/imgur-sans-bullshit/internal/logging"
	"github.com/sweepies/imgur-sans-bullshit/internal/observability/metrics"
)

const (
	negativeCacheDefaultTTL = 5 * time.Minute
	negativeCacheSweep      = 10 * time.Minute
)

// Result is the outcome of a resolve: either a single image or a gallery
// with its ordered member records. Degraded marks a stale record served
// past its window because the origin was unreachable.
type Result struct {
	IsGallery bool
	Image     *datastore.Image
	Gallery   *datastore.Gallery
	Members   []*datastore.Image
	Degraded  bool
}

// Service is the ingestion orchestrator.
type Service struct {
	registry *hosts.Registry
	store    datastore.Interface
	blobs    blobstore.Interface
	metrics  *metrics.IngestMetrics
	logger   *slog.Logger

	// negCache remembers identities the origin confirmed absent, so
	// repeated resolves of a deleted resource don't hammer the origin.
	negCache *gocache.Cache

	// inFlight serializes resolves per identity so concurrent requests for
	// the same uncached resource coalesce into one origin fetch.
	inFlight sync.Map

	// now is swappable for tests.
	now func() time.Time
}

// New creates the orchestrator. metrics may be nil.
func New(registry *hosts.Registry, store datastore.Interface, blobs blobstore.Interface, m *metrics.IngestMetrics) *Service {
	return &Service{
		registry: registry,
		store:    store,
		blobs:    blobs,
		metrics:  m,
		logger:   logging.ForService("ingest"),
		negCache: gocache.New(negativeCacheDefaultTTL, negativeCacheSweep),
		now:      time.Now,
	}
}

// Resolve runs the state machine for one origin identity and returns the
// servable record(s). The identity's resource kind is discovered from
// existing metadata first, then from the parse-time type hint, then by
// probing the origin.
func (s *Service) Resolve(ctx context.Context, parsed *hosts.ParsedInput) (*Result, error) {
	adapter := s.registry.Get(parsed.ProviderID)
	if adapter == nil {
		return nil, errors.Newf("no adapter registered for provider %q", parsed.ProviderID).
			Component("ingest").
			Category(errors.CategoryNotFound).
			Build()
	}

	unlock := s.lockIdentity(parsed)
	defer unlock()

	if _, absent := s.negCache.Get(identityKey(parsed)); absent {
		return nil, s.notFound(parsed)
	}

	staleAfter := adapter.Config().StaleAfter

	gallery, err := s.store.GetGalleryByProvider(parsed.ProviderID, parsed.ResourceID)
	switch {
	case err == nil:
		if s.fresh(gallery.LastCheckedAt, staleAfter) {
			s.metrics.IncrementCacheHits(parsed.ProviderID)
			return s.galleryResult(gallery, false)
		}
		return s.refreshGallery(ctx, adapter, parsed, gallery)
	case !errors.Is(err, datastore.ErrGalleryNotFound):
		return nil, s.storageErr(err)
	}

	image, err := s.store.GetImageByProvider(parsed.ProviderID, parsed.ResourceID)
	switch {
	case err == nil:
		if s.fresh(image.LastCheckedAt, staleAfter) {
			s.metrics.IncrementCacheHits(parsed.ProviderID)
			return &Result{Image: image}, nil
		}
		return s.refreshImage(ctx, adapter, parsed, image)
	case !errors.Is(err, datastore.ErrImageNotFound):
		return nil, s.storageErr(err)
	}

	return s.ingestNew(ctx, adapter, parsed)
}

// ResolveImage resolves an identity that must be a single image.
func (s *Service) ResolveImage(ctx context.Context, parsed *hosts.ParsedInput) (*datastore.Image, error) {
	res, err := s.Resolve(ctx, parsed)
	if err != nil {
		return nil, err
	}
	if res.IsGallery {
		return nil, errors.Newf("resource %s/%s is a gallery, not an image", parsed.ProviderID, parsed.ResourceID).
			Component("ingest").
			Category(errors.CategoryNotFound).
			Build()
	}
	return res.Image, nil
}

// ResolveGallery resolves an identity that must be a gallery.
func (s *Service) ResolveGallery(ctx context.Context, parsed *hosts.ParsedInput) (*Result, error) {
	res, err := s.Resolve(ctx, parsed)
	if err != nil {
		return nil, err
	}
	if !res.IsGallery {
		return nil, errors.Newf("resource %s/%s is an image, not a gallery", parsed.ProviderID, parsed.ResourceID).
			Component("ingest").
			Category(errors.CategoryNotFound).
			Build()
	}
	return res, nil
}

// RawObject resolves an image identity and returns its stored bytes. A
// missing blob behind fresh metadata is a cache inconsistency and triggers
// the same revalidation path as staleness.
func (s *Service) RawObject(ctx context.Context, parsed *hosts.ParsedInput) (*datastore.Image, *blobstore.Object, error) {
	image, err := s.ResolveImage(ctx, parsed)
	if err != nil {
		return nil, nil, err
	}

	obj, err := s.blobs.Get(ctx, image.ID)
	if err == nil {
		return image, obj, nil
	}
	if !errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, nil, s.blobErr(err)
	}

	s.logger.Warn("blob missing for un-deleted record, revalidating",
		"image_id", image.ID, "provider", image.ProviderID)

	adapter := s.registry.Get(parsed.ProviderID)
	unlock := s.lockIdentity(parsed)
	res, err := s.refreshImage(ctx, adapter, parsed, image)
	unlock()
	if err != nil {
		return nil, nil, err
	}

	obj, err = s.blobs.Get(ctx, res.Image.ID)
	if err != nil {
		if errors.Is(err, blobstore.ErrBlobNotFound) {
			return nil, nil, s.notFound(parsed)
		}
		return nil, nil, s.blobErr(err)
	}
	return res.Image, obj, nil
}

// Sweep revalidates every un-deleted image whose last origin check precedes
// the cutoff. Returns how many records were checked; individual failures
// are logged and skipped.
func (s *Service) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := s.store.GetStaleImages(cutoff)
	if err != nil {
		return 0, s.storageErr(err)
	}

	checked := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return checked, err
		}

		image, err := s.store.GetImage(id)
		if err != nil {
			s.logger.Warn("sweep: record vanished", "image_id", id, "error", err)
			continue
		}
		if image.IsDeleted || image.ProviderID == "" {
			continue
		}

		adapter := s.registry.Get(image.ProviderID)
		if adapter == nil {
			s.logger.Warn("sweep: no adapter for record", "image_id", id, "provider", image.ProviderID)
			continue
		}

		parsed := &hosts.ParsedInput{
			ProviderID: image.ProviderID,
			ResourceID: image.ProviderImageID,
		}
		unlock := s.lockIdentity(parsed)
		_, err = s.refreshImage(ctx, adapter, parsed, image)
		unlock()
		if err != nil && !errors.IsNotFound(err) {
			s.logger.Warn("sweep: revalidation failed", "image_id", id, "error", err)
			continue
		}
		checked++
	}
	return checked, nil
}

// ingestNew handles the MISSING state: probe the origin, then persist.
func (s *Service) ingestNew(ctx context.Context, adapter hosts.Adapter, parsed *hosts.ParsedInput) (*Result, error) {
	s.metrics.IncrementCacheMisses(parsed.ProviderID)

	album, image, err := s.fetchOrigin(ctx, adapter, parsed)
	if err != nil {
		if errors.IsNotFound(err) {
			s.rememberAbsent(adapter, parsed)
			return nil, s.notFound(parsed)
		}
		return nil, err
	}

	if album != nil {
		return s.fanOutGallery(ctx, adapter, parsed, nil, album)
	}
	return s.persistNewImage(ctx, adapter, parsed, image)
}

// fetchOrigin probes the origin respecting the type hint. Unhinted
// identities use the combined gallery capability when the adapter has one,
// else album-then-image fallback.
func (s *Service) fetchOrigin(ctx context.Context, adapter hosts.Adapter, parsed *hosts.ParsedInput) (*hosts.Album, *hosts.Image, error) {
	switch parsed.TypeHint {
	case hosts.KindAlbum:
		album, err := adapter.FetchAlbum(ctx, parsed.ResourceID)
		if err == nil {
			return album, nil, nil
		}
		if !errors.IsNotFound(err) {
			return nil, nil, err
		}
		// Some origins use one id space for albums and images; an absent
		// album may still be an image.
		image, imgErr := adapter.FetchImage(ctx, parsed.ResourceID)
		if imgErr != nil {
			return nil, nil, imgErr
		}
		return nil, image, nil

	case hosts.KindImage:
		image, err := adapter.FetchImage(ctx, parsed.ResourceID)
		if err != nil {
			return nil, nil, err
		}
		return nil, image, nil
	}

	if gf, ok := adapter.(hosts.GalleryFetcher); ok {
		res, err := gf.FetchGallery(ctx, parsed.ResourceID)
		if err != nil {
			return nil, nil, err
		}
		if res.IsAlbum {
			return res.Album, nil, nil
		}
		return nil, res.Image, nil
	}

	album, err := adapter.FetchAlbum(ctx, parsed.ResourceID)
	if err == nil {
		return album, nil, nil
	}
	if !errors.IsNotFound(err) && !errors.IsCategory(err, errors.CategoryValidation) {
		return nil, nil, err
	}
	image, err := adapter.FetchImage(ctx, parsed.ResourceID)
	if err != nil {
		return nil, nil, err
	}
	return nil, image, nil
}

// refreshImage handles the STALE state for a single image: revalidate,
// tombstone on confirmed absence, serve degraded on transient failure.
func (s *Service) refreshImage(ctx context.Context, adapter hosts.Adapter, parsed *hosts.ParsedInput, prior *datastore.Image) (*Result, error) {
	s.metrics.IncrementCacheMisses(parsed.ProviderID)

	payload, err := adapter.FetchImage(ctx, parsed.ResourceID)
	if err != nil {
		if errors.IsNotFound(err) {
			if terr := s.tombstoneImage(prior); terr != nil {
				return nil, terr
			}
			s.rememberAbsent(adapter, parsed)
			return nil, s.notFound(parsed)
		}
		// Transient failure: the prior record stays usable past its window.
		s.metrics.IncrementDegradedServes(parsed.ProviderID)
		s.logger.Warn("origin unavailable, serving stale record",
			"provider", parsed.ProviderID, "resource_id", parsed.ResourceID, "error", err)
		return &Result{Image: prior, Degraded: true}, nil
	}

	applyImagePayload(prior, payload)
	prior.LastCheckedAt = s.now()

	if err := s.ensureBlob(ctx, adapter, prior); err != nil {
		return nil, err
	}
	if err := s.store.SaveImage(prior); err != nil {
		return nil, s.storageErr(err)
	}
	return &Result{Image: prior}, nil
}

// refreshGallery handles the STALE state for a gallery.
func (s *Service) refreshGallery(ctx context.Context, adapter hosts.Adapter, parsed *hosts.ParsedInput, prior *datastore.Gallery) (*Result, error) {
	s.metrics.IncrementCacheMisses(parsed.ProviderID)

	album, err := adapter.FetchAlbum(ctx, parsed.ResourceID)
	if err != nil {
		if errors.IsNotFound(err) {
			prior.IsDeleted = true
			prior.LastCheckedAt = s.now()
			if serr := s.store.SaveGallery(prior); serr != nil {
				return nil, s.storageErr(serr)
			}
			s.metrics.IncrementTombstones(parsed.ProviderID)
			s.rememberAbsent(adapter, parsed)
			return nil, s.notFound(parsed)
		}
		s.metrics.IncrementDegradedServes(parsed.ProviderID)
		s.logger.Warn("origin unavailable, serving stale gallery",
			"provider", parsed.ProviderID, "resource_id", parsed.ResourceID, "error", err)
		return s.galleryResult(prior, true)
	}

	return s.fanOutGallery(ctx, adapter, parsed, prior, album)
}

// persistNewImage creates (or dedups onto) an image record for a fetched
// single-image payload.
func (s *Service) persistNewImage(ctx context.Context, adapter hosts.Adapter, parsed *hosts.ParsedInput, payload *hosts.Image) (*Result, error) {
	record, err := s.ingestMember(ctx, adapter, parsed.ProviderID, payload)
	if err != nil {
		return nil, err
	}
	return &Result{Image: record}, nil
}

// fanOutGallery persists a gallery payload: the gallery row first, then
// each member in the origin's declared order with its 0-based position.
// Fan-out is not transactional across members; a member whose download
// fails still gets its metadata and membership row, only its blob is
// missing.
func (s *Service) fanOutGallery(ctx context.Context, adapter hosts.Adapter, parsed *hosts.ParsedInput, prior *datastore.Gallery, album *hosts.Album) (*Result, error) {
	now := s.now()

	// Remember the prior membership so members the origin dropped can be
	// unlinked after fan-out.
	var priorMemberIDs []string
	if prior != nil {
		ids, err := s.store.GetGalleryImageIDs(prior.ID)
		if err != nil {
			return nil, s.storageErr(err)
		}
		priorMemberIDs = ids
	}

	gallery := prior
	if gallery == nil {
		gallery = &datastore.Gallery{
			ID:                uuid.NewString(),
			ProviderID:        parsed.ProviderID,
			ProviderGalleryID: parsed.ResourceID,
			CachedAt:          now,
		}
	}
	gallery.SourceURL = album.SourceURL
	gallery.Title = album.Title
	gallery.Description = album.Description
	gallery.ImageCount = len(album.Images)
	gallery.LastCheckedAt = now

	// The gallery row must exist before any membership row references it.
	if err := s.store.SaveGallery(gallery); err != nil {
		return nil, s.storageErr(err)
	}

	members := make([]*datastore.Image, 0, len(album.Images))
	for i := range album.Images {
		member, err := s.ingestMember(ctx, adapter, parsed.ProviderID, &album.Images[i])
		if err != nil {
			return nil, err
		}
		if err := s.store.AddGalleryImage(gallery.ID, member.ID, i); err != nil {
			return nil, s.storageErr(err)
		}
		members = append(members, member)
	}

	// Reconcile: unlink prior members the origin no longer lists. Their
	// image records stay; only the membership rows go.
	if len(priorMemberIDs) > 0 {
		current := make(map[string]struct{}, len(members))
		for _, m := range members {
			current[m.ID] = struct{}{}
		}
		for _, id := range priorMemberIDs {
			if _, ok := current[id]; ok {
				continue
			}
			if err := s.store.RemoveGalleryImage(gallery.ID, id); err != nil {
				return nil, s.storageErr(err)
			}
		}
	}

	return &Result{IsGallery: true, Gallery: gallery, Members: members}, nil
}

// ingestMember creates or reuses the image record for one origin image.
// An un-deleted record with the same provider keys is reused; a fresh one
// without a second download.
func (s *Service) ingestMember(ctx context.Context, adapter hosts.Adapter, providerID string, payload *hosts.Image) (*datastore.Image, error) {
	now := s.now()
	staleAfter := adapter.Config().StaleAfter

	existing, err := s.store.GetImageByProvider(providerID, payload.ID)
	switch {
	case err == nil:
		if s.fresh(existing.LastCheckedAt, staleAfter) {
			return existing, nil
		}
		applyImagePayload(existing, payload)
		existing.LastCheckedAt = now
		if err := s.ensureBlob(ctx, adapter, existing); err != nil {
			return nil, err
		}
		if err := s.store.SaveImage(existing); err != nil {
			return nil, s.storageErr(err)
		}
		return existing, nil
	case !errors.Is(err, datastore.ErrImageNotFound):
		return nil, s.storageErr(err)
	}

	record := &datastore.Image{
		ID:              uuid.NewString(),
		ProviderID:      providerID,
		ProviderImageID: payload.ID,
		CachedAt:        now,
		LastCheckedAt:   now,
	}
	applyImagePayload(record, payload)

	s.downloadBlob(ctx, adapter, record)

	if err := s.store.SaveImage(record); err != nil {
		return nil, s.storageErr(err)
	}
	return record, nil
}

// ensureBlob re-downloads the bytes for a record whose blob went missing.
func (s *Service) ensureBlob(ctx context.Context, adapter hosts.Adapter, record *datastore.Image) error {
	exists, err := s.blobs.Exists(ctx, record.ID)
	if err != nil {
		return s.blobErr(err)
	}
	if exists {
		return nil
	}
	s.downloadBlob(ctx, adapter, record)
	return nil
}

// downloadBlob fetches the record's bytes and persists them. Failure is
// tolerated: the metadata row survives with the blob absent, so a later
// raw request triggers another attempt.
func (s *Service) downloadBlob(ctx context.Context, adapter hosts.Adapter, record *datastore.Image) {
	start := s.now()
	data, contentType, err := adapter.Download(ctx, record.URL)
	if err != nil {
		s.metrics.IncrementDownloadErrors(record.ProviderID)
		s.logger.Warn("byte download failed, persisting metadata without blob",
			"image_id", record.ID, "url", record.URL, "error", err)
		return
	}
	s.metrics.IncrementDownloads(record.ProviderID)
	s.metrics.ObserveDownloadDuration(time.Since(start).Seconds())

	if contentType != "" && contentType != "application/octet-stream" {
		record.MimeType = contentType
	}
	if record.SizeBytes == 0 {
		record.SizeBytes = int64(len(data))
	}

	err = s.blobs.Put(ctx, record.ID, data, record.MimeType, map[string]string{
		"provider":          record.ProviderID,
		"provider_image_id": record.ProviderImageID,
	})
	if err != nil {
		s.logger.Error("blob store write failed", "image_id", record.ID, "error", err)
	}
}

// tombstoneImage marks a record deleted and evicts its blob. Terminal: the
// local id is never served again.
func (s *Service) tombstoneImage(record *datastore.Image) error {
	record.IsDeleted = true
	record.LastCheckedAt = s.now()
	if err := s.store.SaveImage(record); err != nil {
		return s.storageErr(err)
	}
	if err := s.blobs.Delete(context.Background(), record.ID); err != nil {
		s.logger.Warn("blob eviction failed for tombstoned record",
			"image_id", record.ID, "error", err)
	}
	s.metrics.IncrementTombstones(record.ProviderID)
	return nil
}

// galleryResult loads the ordered member records for a gallery, filtering
// tombstoned members out of the served list.
func (s *Service) galleryResult(gallery *datastore.Gallery, degraded bool) (*Result, error) {
	ids, err := s.store.GetGalleryImageIDs(gallery.ID)
	if err != nil {
		return nil, s.storageErr(err)
	}

	members := make([]*datastore.Image, 0, len(ids))
	for _, id := range ids {
		image, err := s.store.GetImage(id)
		if err != nil {
			if errors.Is(err, datastore.ErrImageNotFound) {
				continue
			}
			return nil, s.storageErr(err)
		}
		if image.IsDeleted {
			continue
		}
		members = append(members, image)
	}

	return &Result{IsGallery: true, Gallery: gallery, Members: members, Degraded: degraded}, nil
}

func (s *Service) fresh(lastCheckedAt time.Time, staleAfter time.Duration) bool {
	return s.now().Sub(lastCheckedAt) <= staleAfter
}

// lockIdentity serializes work on one origin identity. The map entry is
// dropped on release so the set of mutexes tracks in-flight work instead of
// every identity ever seen; waiters already holding the old mutex still
// serialize among themselves, and racers across old and new mutexes
// converge through the store's upsert semantics.
func (s *Service) lockIdentity(parsed *hosts.ParsedInput) func() {
	key := identityKey(parsed)
	v, _ := s.inFlight.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return func() {
		s.inFlight.Delete(key)
		mu.Unlock()
	}
}

func (s *Service) rememberAbsent(adapter hosts.Adapter, parsed *hosts.ParsedInput) {
	ttl := adapter.Config().StaleAfter
	if ttl <= 0 || ttl > negativeCacheDefaultTTL {
		ttl = negativeCacheDefaultTTL
	}
	s.negCache.Set(identityKey(parsed), struct{}{}, ttl)
}

func identityKey(parsed *hosts.ParsedInput) string {
	return parsed.ProviderID + "\x00" + parsed.ResourceID
}

func (s *Service) notFound(parsed *hosts.ParsedInput) error {
	return errors.Newf("resource %s/%s not found", parsed.ProviderID, parsed.ResourceID).
		Component("ingest").
		Category(errors.CategoryNotFound).
		Build()
}

func (s *Service) storageErr(err error) error {
	return errors.Wrap(err).
		Component("ingest").
		Category(errors.CategoryDatabase).
		Build()
}

func (s *Service) blobErr(err error) error {
	return errors.Wrap(err).
		Component("ingest").
		Category(errors.CategoryBlobStorage).
		Build()
}

// applyImagePayload copies origin payload fields onto a record, leaving
// local identity and timestamps alone.
func applyImagePayload(record *datastore.Image, payload *hosts.Image) {
	record.URL = payload.URL
	record.SourceURL = payload.SourceURL
	record.Title = payload.Title
	record.Description = payload.Description
	if payload.MimeType != "" {
		record.MimeType = payload.MimeType
	}
	if payload.Width > 0 {
		record.Width = payload.Width
	}
	if payload.Height > 0 {
		record.Height = payload.Height
	}
	if payload.SizeBytes > 0 {
		record.SizeBytes = payload.SizeBytes
	}
}
