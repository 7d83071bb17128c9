package hosts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAdapter is a minimal adapter for registry tests.
type stubAdapter struct {
	id       string
	matches  func(string) bool
	parses   func(string) *ParsedInput
	publics  func(string) *ParsedInput
	config   AdapterConfig
	prefixed bool // CacheKey already emits "<id>:" prefix
}

func (s *stubAdapter) ID() string            { return s.id }
func (s *stubAdapter) Name() string          { return s.id }
func (s *stubAdapter) Config() AdapterConfig { return s.config }

func (s *stubAdapter) MatchInput(input string) bool {
	if s.matches == nil {
		return false
	}
	return s.matches(input)
}

func (s *stubAdapter) ParseInput(input string) *ParsedInput {
	if s.parses == nil {
		return nil
	}
	return s.parses(input)
}

func (s *stubAdapter) ParsePublicID(publicID string) *ParsedInput {
	if s.publics == nil {
		return nil
	}
	return s.publics(publicID)
}

func (s *stubAdapter) ToPublicID(resourceID string) string { return s.id + ":" + resourceID }

func (s *stubAdapter) CacheKey(resourceID string) string {
	if s.prefixed {
		return s.id + ":" + resourceID
	}
	return resourceID
}

func (s *stubAdapter) FetchImage(ctx context.Context, resourceID string) (*Image, error) {
	return nil, nil
}

func (s *stubAdapter) FetchAlbum(ctx context.Context, resourceID string) (*Album, error) {
	return nil, nil
}

func (s *stubAdapter) Download(ctx context.Context, url string) ([]byte, string, error) {
	return nil, "", nil
}

func newTestRegistry(t *testing.T, adapters ...Adapter) *Registry {
	t.Helper()
	r := NewRegistry(RateLimitConfig{})
	for _, a := range adapters {
		require.NoError(t, r.Register(a))
	}
	return r
}

func TestRegistryRejectsDuplicateID(t *testing.T) {
	r := NewRegistry(RateLimitConfig{})
	require.NoError(t, r.Register(&stubAdapter{id: "providerA"}))
	assert.Error(t, r.Register(&stubAdapter{id: "providerA"}))
}

func TestRegistryDefaultIsFirstRegistered(t *testing.T) {
	first := &stubAdapter{id: "first"}
	second := &stubAdapter{id: "second"}
	r := newTestRegistry(t, first, second)

	assert.Same(t, Adapter(first), r.Default())
}

func TestRegistryResolveInputOrder(t *testing.T) {
	// Both adapters claim to match; registration order decides.
	makeParsed := func(id string) func(string) *ParsedInput {
		return func(input string) *ParsedInput {
			return &ParsedInput{ProviderID: id, ResourceID: input}
		}
	}
	first := &stubAdapter{
		id:      "first",
		matches: func(string) bool { return true },
		parses:  makeParsed("first"),
	}
	second := &stubAdapter{
		id:      "second",
		matches: func(string) bool { return true },
		parses:  makeParsed("second"),
	}
	r := newTestRegistry(t, first, second)

	got := r.ResolveInput("anything")
	require.NotNil(t, got)
	assert.Equal(t, "first", got.ProviderID)
}

func TestRegistryResolveInputFallsThroughFailedParse(t *testing.T) {
	// A matching adapter whose parser rejects must not block later ones.
	greedy := &stubAdapter{
		id:      "greedy",
		matches: func(string) bool { return true },
		parses:  func(string) *ParsedInput { return nil },
	}
	precise := &stubAdapter{
		id:      "precise",
		matches: func(input string) bool { return input == "target" },
		parses: func(input string) *ParsedInput {
			return &ParsedInput{ProviderID: "precise", ResourceID: input}
		},
	}
	r := newTestRegistry(t, greedy, precise)

	got := r.ResolveInput("target")
	require.NotNil(t, got)
	assert.Equal(t, "precise", got.ProviderID)
}

func TestRegistryResolveInputWithRealAdapters(t *testing.T) {
	r := newTestRegistry(t,
		NewImgurAdapter(ImgurOptions{}),
		NewPostimagesAdapter(PostimagesOptions{}),
	)

	got := r.ResolveInput("https://postimg.cc/gallery/Xy12Ab")
	require.NotNil(t, got)
	assert.Equal(t, "postimages", got.ProviderID)
	assert.Equal(t, "gallery:Xy12Ab", got.ResourceID)

	got = r.ResolveInput("https://imgur.com/a/AbCd123")
	require.NotNil(t, got)
	assert.Equal(t, "imgur", got.ProviderID)

	// A bare id belongs to the default adapter's namespace.
	got = r.ResolveInput("AbCd12")
	require.NotNil(t, got)
	assert.Equal(t, "imgur", got.ProviderID)
}

func TestRegistryParsePublicIDPrefixDelegation(t *testing.T) {
	r := newTestRegistry(t,
		NewImgurAdapter(ImgurOptions{}),
		NewPostimagesAdapter(PostimagesOptions{}),
	)

	got := r.ParsePublicID("postimages:page:Xy12Ab")
	require.NotNil(t, got)
	assert.Equal(t, "postimages", got.ProviderID)
	assert.Equal(t, "page:Xy12Ab", got.ResourceID)

	// Legacy unprefixed ids fall through to the default adapter.
	got = r.ParsePublicID("AbCd12")
	require.NotNil(t, got)
	assert.Equal(t, "imgur", got.ProviderID)
	assert.Equal(t, "AbCd12", got.ResourceID)
}

func TestRegistryParsePublicIDPrefixDegradation(t *testing.T) {
	// A recognized prefix whose adapter rejects the id degrades to the
	// generic mapping instead of failing.
	strict := &stubAdapter{
		id:      "providerX",
		publics: func(string) *ParsedInput { return nil },
	}
	r := newTestRegistry(t, &stubAdapter{id: "default"}, strict)

	got := r.ParsePublicID("providerX:gallery:99")
	require.NotNil(t, got)
	assert.Equal(t, "providerX", got.ProviderID)
	assert.Equal(t, "gallery:99", got.ResourceID)
	assert.Equal(t, "providerX:gallery:99", got.PublicID)
}

func TestRegistryCacheKeyNonCollision(t *testing.T) {
	imgur := NewImgurAdapter(ImgurOptions{})
	postimages := NewPostimagesAdapter(PostimagesOptions{})
	r := newTestRegistry(t, imgur, postimages)

	// Same raw id on two providers must map to distinct keys.
	defaultKey := r.CacheKey(imgur, "Xy12Ab")
	otherKey := r.CacheKey(postimages, "Xy12Ab")
	assert.Equal(t, "Xy12Ab", defaultKey, "default adapter keys stay unprefixed")
	assert.Equal(t, "postimages:Xy12Ab", otherKey)
	assert.NotEqual(t, defaultKey, otherKey)
}

func TestRegistryCacheKeyIdempotentPrefix(t *testing.T) {
	def := &stubAdapter{id: "default"}
	selfPrefixing := &stubAdapter{id: "providerX", prefixed: true}
	r := newTestRegistry(t, def, selfPrefixing)

	// An adapter that already prefixes its keys must not get a second
	// prefix from the registry.
	assert.Equal(t, "providerX:abc", r.CacheKey(selfPrefixing, "abc"))
	assert.Equal(t, "abc", r.ResourceIDFromCacheKey(selfPrefixing, "providerX:abc"))
}

func TestRegistryRateLimitFor(t *testing.T) {
	override := &RateLimitConfig{Window: time.Minute, MaxRequests: 5}
	limited := &stubAdapter{id: "limited", config: AdapterConfig{RateLimit: override}}
	plain := &stubAdapter{id: "plain"}
	r := newTestRegistry(t, plain, limited)

	assert.Equal(t, *override, r.RateLimitFor(limited))
	assert.Equal(t, DefaultRateLimit, r.RateLimitFor(plain))
}
