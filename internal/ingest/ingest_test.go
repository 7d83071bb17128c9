package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweepies/imgur-sans-bullshit/internal/blobstore"
	"github.com/sweepies/imgur-sans-bullshit/internal/datastore"
	"github.com/sweepies/imgur-sans-bullshit/internal/errors"
	"github.com/sweepies/imgur-sans-bullshit/internal/hosts"
)

// mockStore is an in-memory datastore.Interface.
type mockStore struct {
	mu          sync.Mutex
	images      map[string]datastore.Image
	galleries   map[string]datastore.Gallery
	memberships []datastore.GalleryImage
}

func newMockStore() *mockStore {
	return &mockStore{
		images:    make(map[string]datastore.Image),
		galleries: make(map[string]datastore.Gallery),
	}
}

func (m *mockStore) Open() error  { return nil }
func (m *mockStore) Close() error { return nil }

func (m *mockStore) GetImage(id string) (*datastore.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.images[id]
	if !ok {
		return nil, datastore.ErrImageNotFound
	}
	return &img, nil
}

func (m *mockStore) GetImageByProvider(providerID, providerImageID string) (*datastore.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var newest *datastore.Image
	for id := range m.images {
		img := m.images[id]
		if img.ProviderID != providerID || img.ProviderImageID != providerImageID || img.IsDeleted {
			continue
		}
		if newest == nil || img.CachedAt.After(newest.CachedAt) {
			copied := img
			newest = &copied
		}
	}
	if newest == nil {
		return nil, datastore.ErrImageNotFound
	}
	return newest, nil
}

func (m *mockStore) SaveImage(image *datastore.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[image.ID] = *image
	return nil
}

func (m *mockStore) DeleteImage(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.images, id)
	return nil
}

func (m *mockStore) UpdateImageCheckTime(id string, checkedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.images[id]
	if !ok {
		return datastore.ErrImageNotFound
	}
	img.LastCheckedAt = checkedAt
	m.images[id] = img
	return nil
}

func (m *mockStore) GetStaleImages(cutoff time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id := range m.images {
		img := m.images[id]
		if !img.IsDeleted && img.LastCheckedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *mockStore) GetGallery(id string) (*datastore.Gallery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gal, ok := m.galleries[id]
	if !ok {
		return nil, datastore.ErrGalleryNotFound
	}
	return &gal, nil
}

func (m *mockStore) GetGalleryByProvider(providerID, providerGalleryID string) (*datastore.Gallery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.galleries {
		gal := m.galleries[id]
		if gal.ProviderID == providerID && gal.ProviderGalleryID == providerGalleryID && !gal.IsDeleted {
			return &gal, nil
		}
	}
	return nil, datastore.ErrGalleryNotFound
}

func (m *mockStore) SaveGallery(gallery *datastore.Gallery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.galleries[gallery.ID] = *gallery
	return nil
}

func (m *mockStore) DeleteGallery(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.galleries, id)
	return nil
}

func (m *mockStore) UpdateGalleryCheckTime(id string, checkedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	gal, ok := m.galleries[id]
	if !ok {
		return datastore.ErrGalleryNotFound
	}
	gal.LastCheckedAt = checkedAt
	m.galleries[id] = gal
	return nil
}

func (m *mockStore) GetGalleryImageIDs(galleryID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	type entry struct {
		id  string
		pos int
	}
	var entries []entry
	for _, ms := range m.memberships {
		if ms.GalleryID == galleryID {
			entries = append(entries, entry{ms.ImageID, ms.Position})
		}
	}
	ids := make([]string, len(entries))
	for _, e := range entries {
		ids[e.pos] = e.id
	}
	return ids, nil
}

func (m *mockStore) AddGalleryImage(galleryID, imageID string, position int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, ms := range m.memberships {
		if ms.GalleryID == galleryID && ms.ImageID == imageID {
			m.memberships[i].Position = position
			return nil
		}
	}
	m.memberships = append(m.memberships, datastore.GalleryImage{
		GalleryID: galleryID, ImageID: imageID, Position: position,
	})
	return nil
}

func (m *mockStore) RemoveGalleryImage(galleryID, imageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, ms := range m.memberships {
		if ms.GalleryID == galleryID && ms.ImageID == imageID {
			m.memberships = append(m.memberships[:i], m.memberships[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *mockStore) GetRateLimitCount(clientID, endpoint string, windowStart int64) (int, error) {
	return 0, nil
}

func (m *mockStore) IncrementRateLimit(clientID, endpoint string, windowStart int64) error {
	return nil
}

func (m *mockStore) membershipsFor(galleryID string) []datastore.GalleryImage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []datastore.GalleryImage
	for _, ms := range m.memberships {
		if ms.GalleryID == galleryID {
			out = append(out, ms)
		}
	}
	return out
}

// mockBlobs is an in-memory blobstore.Interface.
type mockBlobs struct {
	mu      sync.Mutex
	objects map[string]blobstore.Object
}

func newMockBlobs() *mockBlobs {
	return &mockBlobs{objects: make(map[string]blobstore.Object)}
}

func (m *mockBlobs) Get(ctx context.Context, key string) (*blobstore.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, blobstore.ErrBlobNotFound
	}
	return &obj, nil
}

func (m *mockBlobs) Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = blobstore.Object{Data: data, ContentType: contentType, Metadata: metadata}
	return nil
}

func (m *mockBlobs) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *mockBlobs) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *mockBlobs) Close() error { return nil }

// mockAdapter is a configurable hosts.Adapter with call counters.
type mockAdapter struct {
	id         string
	staleAfter time.Duration

	mu               sync.Mutex
	fetchImageCalls  int
	fetchAlbumCalls  int
	downloadCalls    int
	image            *hosts.Image
	album            *hosts.Album
	imageErr         error
	albumErr         error
	downloadFailURLs map[string]bool
}

func (m *mockAdapter) ID() string   { return m.id }
func (m *mockAdapter) Name() string { return m.id }

func (m *mockAdapter) Config() hosts.AdapterConfig {
	return hosts.AdapterConfig{StaleAfter: m.staleAfter}
}

func (m *mockAdapter) MatchInput(input string) bool { return true }

func (m *mockAdapter) ParseInput(input string) *hosts.ParsedInput {
	return &hosts.ParsedInput{ProviderID: m.id, ResourceID: input, PublicID: input}
}

func (m *mockAdapter) ParsePublicID(publicID string) *hosts.ParsedInput {
	return m.ParseInput(publicID)
}

func (m *mockAdapter) ToPublicID(resourceID string) string { return resourceID }
func (m *mockAdapter) CacheKey(resourceID string) string   { return resourceID }

func (m *mockAdapter) FetchImage(ctx context.Context, resourceID string) (*hosts.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchImageCalls++
	if m.imageErr != nil {
		return nil, m.imageErr
	}
	if m.image == nil {
		return nil, absentErr()
	}
	copied := *m.image
	return &copied, nil
}

func (m *mockAdapter) FetchAlbum(ctx context.Context, resourceID string) (*hosts.Album, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchAlbumCalls++
	if m.albumErr != nil {
		return nil, m.albumErr
	}
	if m.album == nil {
		return nil, absentErr()
	}
	copied := *m.album
	return &copied, nil
}

func (m *mockAdapter) Download(ctx context.Context, url string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloadCalls++
	if m.downloadFailURLs[url] {
		return nil, "", upstreamErr()
	}
	return []byte("bytes-of-" + url), "image/jpeg", nil
}

func (m *mockAdapter) calls() (image, album, download int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchImageCalls, m.fetchAlbumCalls, m.downloadCalls
}

func absentErr() error {
	return errors.Newf("origin reports resource absent").
		Category(errors.CategoryNotFound).
		Build()
}

func upstreamErr() error {
	return errors.Newf("origin unreachable").
		Category(errors.CategoryUpstream).
		Build()
}

type fixture struct {
	svc     *Service
	store   *mockStore
	blobs   *mockBlobs
	adapter *mockAdapter
	clock   time.Time
}

func newFixture(t *testing.T, adapter *mockAdapter) *fixture {
	t.Helper()
	registry := hosts.NewRegistry(hosts.RateLimitConfig{})
	require.NoError(t, registry.Register(adapter))

	f := &fixture{
		store:   newMockStore(),
		blobs:   newMockBlobs(),
		adapter: adapter,
		clock:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = New(registry, f.store, f.blobs, nil)
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

func parsedImage(adapter *mockAdapter, resourceID string) *hosts.ParsedInput {
	return &hosts.ParsedInput{
		ProviderID: adapter.id,
		ResourceID: resourceID,
		PublicID:   resourceID,
		TypeHint:   hosts.KindImage,
	}
}

func parsedAlbum(adapter *mockAdapter, resourceID string) *hosts.ParsedInput {
	return &hosts.ParsedInput{
		ProviderID: adapter.id,
		ResourceID: resourceID,
		PublicID:   resourceID,
		TypeHint:   hosts.KindAlbum,
	}
}

func TestResolveFreshShortCircuits(t *testing.T) {
	adapter := &mockAdapter{
		id:         "mockhost",
		staleAfter: time.Hour,
		image:      &hosts.Image{ID: "img1", URL: "https://cdn.example/img1.jpg", MimeType: "image/jpeg"},
	}
	f := newFixture(t, adapter)
	ctx := context.Background()

	res1, err := f.svc.Resolve(ctx, parsedImage(adapter, "img1"))
	require.NoError(t, err)
	require.NotNil(t, res1.Image)

	// Second resolve within the staleness window must not hit the origin.
	f.advance(30 * time.Minute)
	res2, err := f.svc.Resolve(ctx, parsedImage(adapter, "img1"))
	require.NoError(t, err)

	assert.Equal(t, res1.Image.ID, res2.Image.ID)
	imageCalls, _, downloadCalls := adapter.calls()
	assert.Equal(t, 1, imageCalls)
	assert.Equal(t, 1, downloadCalls)
}

func TestResolveStaleRevalidates(t *testing.T) {
	adapter := &mockAdapter{
		id:         "mockhost",
		staleAfter: time.Hour,
		image:      &hosts.Image{ID: "img1", URL: "https://cdn.example/img1.jpg", MimeType: "image/jpeg"},
	}
	f := newFixture(t, adapter)
	ctx := context.Background()

	res1, err := f.svc.Resolve(ctx, parsedImage(adapter, "img1"))
	require.NoError(t, err)
	cachedAt := res1.Image.CachedAt

	f.advance(2 * time.Hour)
	res2, err := f.svc.Resolve(ctx, parsedImage(adapter, "img1"))
	require.NoError(t, err)

	assert.Equal(t, res1.Image.ID, res2.Image.ID, "revalidation keeps the local id")
	assert.Equal(t, cachedAt, res2.Image.CachedAt, "cachedAt is set only at creation")
	assert.True(t, res2.Image.LastCheckedAt.After(cachedAt))

	imageCalls, _, downloadCalls := adapter.calls()
	assert.Equal(t, 2, imageCalls)
	assert.Equal(t, 1, downloadCalls, "blob still present, no second download")
}

func TestTombstoneOnConfirmedAbsence(t *testing.T) {
	adapter := &mockAdapter{
		id:         "mockhost",
		staleAfter: time.Hour,
		image:      &hosts.Image{ID: "img1", URL: "https://cdn.example/img1.jpg", MimeType: "image/jpeg"},
	}
	f := newFixture(t, adapter)
	ctx := context.Background()

	res, err := f.svc.Resolve(ctx, parsedImage(adapter, "img1"))
	require.NoError(t, err)
	localID := res.Image.ID

	// Origin deletes the resource; next revalidation confirms absence.
	adapter.mu.Lock()
	adapter.image = nil
	adapter.mu.Unlock()

	f.advance(2 * time.Hour)
	_, err = f.svc.Resolve(ctx, parsedImage(adapter, "img1"))
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	stored, err := f.store.GetImage(localID)
	require.NoError(t, err)
	assert.True(t, stored.IsDeleted)

	exists, err := f.blobs.Exists(ctx, localID)
	require.NoError(t, err)
	assert.False(t, exists, "tombstoning evicts the blob")

	// No resurrection: a further resolve still reports not-found.
	_, err = f.svc.Resolve(ctx, parsedImage(adapter, "img1"))
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	stored, err = f.store.GetImage(localID)
	require.NoError(t, err)
	assert.True(t, stored.IsDeleted)
}

func TestTransientFailureServesDegraded(t *testing.T) {
	adapter := &mockAdapter{
		id:         "mockhost",
		staleAfter: time.Hour,
		image:      &hosts.Image{ID: "img1", URL: "https://cdn.example/img1.jpg", MimeType: "image/jpeg"},
	}
	f := newFixture(t, adapter)
	ctx := context.Background()

	res, err := f.svc.Resolve(ctx, parsedImage(adapter, "img1"))
	require.NoError(t, err)
	localID := res.Image.ID

	adapter.mu.Lock()
	adapter.imageErr = upstreamErr()
	adapter.mu.Unlock()

	f.advance(2 * time.Hour)
	res, err = f.svc.Resolve(ctx, parsedImage(adapter, "img1"))
	require.NoError(t, err, "transient failure must not fail the request when a prior record exists")
	assert.True(t, res.Degraded)
	assert.Equal(t, localID, res.Image.ID)

	stored, err := f.store.GetImage(localID)
	require.NoError(t, err)
	assert.False(t, stored.IsDeleted, "transient failure must never tombstone")
}

func TestGalleryFanOutPositions(t *testing.T) {
	adapter := &mockAdapter{
		id:         "mockhost",
		staleAfter: time.Hour,
		album: &hosts.Album{
			ID:        "gal1",
			SourceURL: "https://host.example/gallery/gal1",
			Title:     "Trip",
			Images: []hosts.Image{
				{ID: "m0", URL: "https://cdn.example/m0.jpg", MimeType: "image/jpeg"},
				{ID: "m1", URL: "https://cdn.example/m1.jpg", MimeType: "image/jpeg"},
				{ID: "m2", URL: "https://cdn.example/m2.jpg", MimeType: "image/jpeg"},
			},
		},
		// Member m1's bytes fail to download.
		downloadFailURLs: map[string]bool{"https://cdn.example/m1.jpg": true},
	}
	f := newFixture(t, adapter)
	ctx := context.Background()

	res, err := f.svc.Resolve(ctx, parsedAlbum(adapter, "gal1"))
	require.NoError(t, err)
	require.True(t, res.IsGallery)
	require.Len(t, res.Members, 3, "a failed download does not drop the member")

	// Positions stay contiguous 0,1,2 regardless of the failed download.
	memberships := f.store.membershipsFor(res.Gallery.ID)
	require.Len(t, memberships, 3)
	positions := map[string]int{}
	for _, ms := range memberships {
		positions[ms.ImageID] = ms.Position
	}
	assert.Equal(t, 0, positions[res.Members[0].ID])
	assert.Equal(t, 1, positions[res.Members[1].ID])
	assert.Equal(t, 2, positions[res.Members[2].ID])

	// m1's metadata exists, only its blob is missing.
	assert.Equal(t, "m1", res.Members[1].ProviderImageID)
	exists, err := f.blobs.Exists(ctx, res.Members[1].ID)
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = f.blobs.Exists(ctx, res.Members[0].ID)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestGalleryDedupAcrossEntryPoints(t *testing.T) {
	adapter := &mockAdapter{
		id:         "mockhost",
		staleAfter: time.Hour,
		album: &hosts.Album{
			ID:     "gal1",
			Images: []hosts.Image{{ID: "m0", URL: "https://cdn.example/m0.jpg", MimeType: "image/jpeg"}},
		},
	}
	f := newFixture(t, adapter)
	ctx := context.Background()

	// Two resolves of the same origin identity (as reached from different
	// public entry points) must share one GalleryRecord.
	res1, err := f.svc.Resolve(ctx, parsedAlbum(adapter, "gal1"))
	require.NoError(t, err)

	res2, err := f.svc.Resolve(ctx, parsedAlbum(adapter, "gal1"))
	require.NoError(t, err)

	assert.Equal(t, res1.Gallery.ID, res2.Gallery.ID)
	assert.Len(t, f.store.galleries, 1)

	_, albumCalls, _ := adapter.calls()
	assert.Equal(t, 1, albumCalls, "second resolve is FRESH, no origin fetch")
}

func TestGalleryMemberDedupSkipsDownload(t *testing.T) {
	adapter := &mockAdapter{
		id:         "mockhost",
		staleAfter: time.Hour,
		image:      &hosts.Image{ID: "m0", URL: "https://cdn.example/m0.jpg", MimeType: "image/jpeg"},
		album: &hosts.Album{
			ID:     "gal1",
			Images: []hosts.Image{{ID: "m0", URL: "https://cdn.example/m0.jpg", MimeType: "image/jpeg"}},
		},
	}
	f := newFixture(t, adapter)
	ctx := context.Background()

	// The member is first ingested standalone.
	imgRes, err := f.svc.Resolve(ctx, parsedImage(adapter, "m0"))
	require.NoError(t, err)

	// Gallery fan-out finds the un-deleted record and reuses its local id.
	galRes, err := f.svc.Resolve(ctx, parsedAlbum(adapter, "gal1"))
	require.NoError(t, err)
	require.Len(t, galRes.Members, 1)
	assert.Equal(t, imgRes.Image.ID, galRes.Members[0].ID)

	_, _, downloadCalls := adapter.calls()
	assert.Equal(t, 1, downloadCalls, "dedup hit skips the byte download")
}

func TestRawObjectBlobMissingTriggersRefetch(t *testing.T) {
	adapter := &mockAdapter{
		id:         "mockhost",
		staleAfter: time.Hour,
		image:      &hosts.Image{ID: "img1", URL: "https://cdn.example/img1.jpg", MimeType: "image/jpeg"},
	}
	f := newFixture(t, adapter)
	ctx := context.Background()

	res, err := f.svc.Resolve(ctx, parsedImage(adapter, "img1"))
	require.NoError(t, err)

	// Simulate blob loss behind fresh metadata.
	require.NoError(t, f.blobs.Delete(ctx, res.Image.ID))

	image, obj, err := f.svc.RawObject(ctx, parsedImage(adapter, "img1"))
	require.NoError(t, err)
	assert.Equal(t, res.Image.ID, image.ID)
	assert.NotEmpty(t, obj.Data)

	imageCalls, _, downloadCalls := adapter.calls()
	assert.Equal(t, 2, imageCalls, "blob loss forces revalidation despite freshness")
	assert.Equal(t, 2, downloadCalls)
}

func TestResolveGalleryFallsBackToImage(t *testing.T) {
	// An album-hinted id whose origin says "no such album" may still be a
	// single image under the same id space.
	adapter := &mockAdapter{
		id:         "mockhost",
		staleAfter: time.Hour,
		image:      &hosts.Image{ID: "img1", URL: "https://cdn.example/img1.jpg", MimeType: "image/jpeg"},
	}
	f := newFixture(t, adapter)

	res, err := f.svc.Resolve(context.Background(), parsedAlbum(adapter, "img1"))
	require.NoError(t, err)
	assert.False(t, res.IsGallery)
	require.NotNil(t, res.Image)
}

func TestResolveReleasesIdentityLock(t *testing.T) {
	adapter := &mockAdapter{
		id:         "mockhost",
		staleAfter: time.Hour,
		image:      &hosts.Image{ID: "img1", URL: "https://cdn.example/img1.jpg", MimeType: "image/jpeg"},
	}
	f := newFixture(t, adapter)
	ctx := context.Background()

	for _, id := range []string{"img1", "img2", "img3"} {
		_, _ = f.svc.Resolve(ctx, parsedImage(adapter, id))
	}

	held := 0
	f.svc.inFlight.Range(func(_, _ any) bool {
		held++
		return true
	})
	assert.Zero(t, held, "identity locks must not accumulate across resolves")
}

func TestGalleryRefreshRemovesDroppedMembers(t *testing.T) {
	adapter := &mockAdapter{
		id:         "mockhost",
		staleAfter: time.Hour,
		album: &hosts.Album{
			ID: "gal1",
			Images: []hosts.Image{
				{ID: "m0", URL: "https://cdn.example/m0.jpg", MimeType: "image/jpeg"},
				{ID: "m1", URL: "https://cdn.example/m1.jpg", MimeType: "image/jpeg"},
			},
		},
	}
	f := newFixture(t, adapter)
	ctx := context.Background()

	res1, err := f.svc.Resolve(ctx, parsedAlbum(adapter, "gal1"))
	require.NoError(t, err)
	require.Len(t, res1.Members, 2)
	droppedID := res1.Members[1].ID

	// The origin removes m1 from the gallery without deleting the image.
	adapter.mu.Lock()
	adapter.album = &hosts.Album{
		ID:     "gal1",
		Images: []hosts.Image{{ID: "m0", URL: "https://cdn.example/m0.jpg", MimeType: "image/jpeg"}},
	}
	adapter.mu.Unlock()

	f.advance(2 * time.Hour)
	res2, err := f.svc.Resolve(ctx, parsedAlbum(adapter, "gal1"))
	require.NoError(t, err)
	require.Len(t, res2.Members, 1)

	memberships := f.store.membershipsFor(res2.Gallery.ID)
	require.Len(t, memberships, 1, "refresh unlinks members the origin dropped")
	assert.Equal(t, res2.Members[0].ID, memberships[0].ImageID)

	// The dropped member's record survives untombstoned.
	stored, err := f.store.GetImage(droppedID)
	require.NoError(t, err)
	assert.False(t, stored.IsDeleted)
}

func TestSweepRevalidatesOldRecords(t *testing.T) {
	adapter := &mockAdapter{
		id:         "mockhost",
		staleAfter: time.Hour,
		image:      &hosts.Image{ID: "img1", URL: "https://cdn.example/img1.jpg", MimeType: "image/jpeg"},
	}
	f := newFixture(t, adapter)
	ctx := context.Background()

	res, err := f.svc.Resolve(ctx, parsedImage(adapter, "img1"))
	require.NoError(t, err)

	f.advance(3 * time.Hour)
	checked, err := f.svc.Sweep(ctx, f.clock.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, checked)

	stored, err := f.store.GetImage(res.Image.ID)
	require.NoError(t, err)
	assert.Equal(t, f.clock, stored.LastCheckedAt)
}
