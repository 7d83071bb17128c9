// Package hosts contains the per-origin adapters that turn arbitrary user
// input (URLs or bare ids) into canonical resource identities and fetch
// resources from their origin, plus the registry that dispatches between
// them.
package hosts

import (
	"context"
	"time"
)

// ResourceKind hints at what a parsed input points to.
type ResourceKind string

const (
	KindImage ResourceKind = "image"
	KindAlbum ResourceKind = "album"
)

// Image is an origin image as reported by a host adapter. ID is the
// provider-internal identifier expressed in the adapter's own resource-id
// space, so a gallery member's ID is itself resolvable and identical to
// the id a direct resolve of the same image would yield.
type Image struct {
	ID          string
	URL         string // direct byte URL used for download
	SourceURL   string // origin page URL, when distinct
	Title       string
	Description string
	MimeType    string
	Width       int
	Height      int
	SizeBytes   int64
	Animated    bool
}

// Album is an origin album/gallery with its member images in the origin's
// declared order. That order defines membership positions downstream.
type Album struct {
	ID          string
	SourceURL   string
	Title       string
	Description string
	ImageCount  int
	Images      []Image
}

// GalleryResult is the payload of the optional combined gallery fetch, for
// origins that cannot tell album from image without a lookup.
type GalleryResult struct {
	IsAlbum bool
	Album   *Album // set when IsAlbum
	Image   *Image // set when !IsAlbum
}

// RateLimitConfig is a fixed-window request budget.
type RateLimitConfig struct {
	Window      time.Duration
	MaxRequests int
}

// AdapterConfig is the per-provider caching policy. Immutable after
// adapter construction.
type AdapterConfig struct {
	// StaleAfter is the maximum age of a record's last origin check before
	// it must be revalidated.
	StaleAfter time.Duration
	// Cache-Control max-age values for the presentation layer.
	PageCacheSeconds int
	APICacheSeconds  int
	RawCacheSeconds  int
	// RateLimit overrides the shared default when non-nil.
	RateLimit *RateLimitConfig
}

// ParsedInput is the result of resolving raw user input to a canonical
// resource identity. Transient per request, never persisted.
type ParsedInput struct {
	ProviderID string
	// ResourceID is the provider-internal identifier. It may carry
	// ':'-delimited subtype tags that are opaque to everything but the
	// owning adapter.
	ResourceID string
	// PublicID is the stable string placed in public URLs.
	PublicID string
	TypeHint ResourceKind // empty when the input shape doesn't tell
}

// Adapter is the capability set every host adapter implements.
//
// Parsing methods are side-effect-free and synchronous; only the fetch and
// download methods perform network I/O. Fetch methods report confirmed
// origin absence as an error satisfying errors.IsNotFound; any other error
// is a transient failure that must not be treated as absence.
type Adapter interface {
	// ID is the provider identifier used in public-id prefixes and cache
	// keys. Lowercase, stable forever.
	ID() string
	// Name is the human-readable origin name.
	Name() string
	// Config returns the adapter's caching policy.
	Config() AdapterConfig

	// MatchInput is a cheap syntactic test used only to pick evaluation
	// order, never authoritative.
	MatchInput(input string) bool
	// ParseInput authoritatively parses a URL or bare identifier. Returns
	// nil when the input is not this adapter's.
	ParseInput(input string) *ParsedInput
	// ParsePublicID parses a previously issued public identifier back into
	// the same resource-id space. Returns nil when unrecognized.
	ParsePublicID(publicID string) *ParsedInput
	// ToPublicID deterministically maps a resource id to its public form.
	// Stable: the same resource id always yields the same string.
	ToPublicID(resourceID string) string
	// CacheKey maps a resource id to a storage key. The registry
	// disambiguates across providers; see Registry.CacheKey.
	CacheKey(resourceID string) string

	FetchImage(ctx context.Context, resourceID string) (*Image, error)
	FetchAlbum(ctx context.Context, resourceID string) (*Album, error)
	// Download retrieves raw bytes for persisting into the blob store,
	// returning the payload and its content type.
	Download(ctx context.Context, url string) ([]byte, string, error)
}

// GalleryFetcher is the optional combined-fetch capability. Callers that
// find an adapter without it fall back to FetchAlbum then FetchImage.
type GalleryFetcher interface {
	FetchGallery(ctx context.Context, resourceID string) (*GalleryResult, error)
}
