package hosts

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/antonholmquist/jason"
	"golang.org/x/time/rate"

	"github.com/sweepies/imgur-sans-bullshit/internal/errors"
	"github.com/sweepies/imgur-sans-bullshit/internal/httpclient"
	"github.com/sweepies/imgur-sans-bullshit/internal/logging"
)

const (
	imgurProviderID = "imgur"
	imgurAPIBase    = "https://api.imgur.com/3"
	imgurCDNBase    = "https://i.imgur.com"
)

var (
	imgurIDRegex = regexp.MustCompile(`^[a-zA-Z0-9]{4,10}$`)
	// Extracts the id from common imgur paths, tolerating an arbitrary
	// human-readable slug prefix before the true id.
	imgurPathRegex = regexp.MustCompile(`(?:/a/|/album/|/gallery/)?(?:[a-zA-Z0-9-]+-)?([a-zA-Z0-9]{4,10})`)

	imgurPublicIDRegex = regexp.MustCompile(`^imgur:(.+)$`)
)

// ImgurAdapter is the default host adapter. Imgur exposes a JSON API; a
// client id is required for authenticated endpoints but the adapter still
// works for direct CDN downloads without one.
type ImgurAdapter struct {
	clientID string
	config   AdapterConfig
	client   *httpclient.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// ImgurOptions configures the imgur adapter.
type ImgurOptions struct {
	ClientID   string
	StaleAfter time.Duration
	// RateLimit overrides the registry's shared client budget when non-nil.
	RateLimit *RateLimitConfig
	Client    *httpclient.Client
}

// NewImgurAdapter creates the imgur adapter.
func NewImgurAdapter(opts ImgurOptions) *ImgurAdapter {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = time.Hour
	}
	if opts.Client == nil {
		opts.Client = httpclient.New(nil)
	}
	return &ImgurAdapter{
		clientID: opts.ClientID,
		config: AdapterConfig{
			StaleAfter:       opts.StaleAfter,
			PageCacheSeconds: 600,
			APICacheSeconds:  300,
			RawCacheSeconds:  3600,
			RateLimit:        opts.RateLimit,
		},
		client: opts.Client,
		// Keep origin load polite: bursts of 4, sustained 2 req/s.
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 4),
		logger:  logging.ForService("hosts.imgur"),
	}
}

func (a *ImgurAdapter) ID() string            { return imgurProviderID }
func (a *ImgurAdapter) Name() string          { return "Imgur" }
func (a *ImgurAdapter) Config() AdapterConfig { return a.config }

// MatchInput accepts anything mentioning imgur.com, plus bare strings
// shaped like an imgur id. Cheap and non-authoritative.
func (a *ImgurAdapter) MatchInput(input string) bool {
	return strings.Contains(input, "imgur.com") || imgurIDRegex.MatchString(input)
}

// ParseInput extracts the resource id from an imgur URL or bare id. Album
// and gallery paths yield an album type hint; single-image and direct CDN
// paths yield none, since imgur ids are shared between the two.
func (a *ImgurAdapter) ParseInput(input string) *ParsedInput {
	input = strings.TrimSpace(input)

	if strings.Contains(input, "imgur.com") {
		raw := input
		if !strings.HasPrefix(raw, "http") {
			raw = "https://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return nil
		}

		var typeHint ResourceKind
		if strings.HasPrefix(u.Path, "/a/") || strings.HasPrefix(u.Path, "/album/") || strings.HasPrefix(u.Path, "/gallery/") {
			typeHint = KindAlbum
		}

		m := imgurPathRegex.FindStringSubmatch(u.Path)
		if m == nil {
			return nil
		}
		id := m[1]

		return &ParsedInput{
			ProviderID: imgurProviderID,
			ResourceID: id,
			PublicID:   id,
			TypeHint:   typeHint,
		}
	}

	if imgurIDRegex.MatchString(input) {
		return &ParsedInput{
			ProviderID: imgurProviderID,
			ResourceID: input,
			PublicID:   input,
		}
	}

	return nil
}

// ParsePublicID accepts the prefixed form "imgur:<id>" as well as legacy
// bare ids.
func (a *ImgurAdapter) ParsePublicID(publicID string) *ParsedInput {
	if m := imgurPublicIDRegex.FindStringSubmatch(publicID); m != nil {
		return &ParsedInput{
			ProviderID: imgurProviderID,
			ResourceID: m[1],
			PublicID:   publicID,
		}
	}

	if imgurIDRegex.MatchString(publicID) {
		return &ParsedInput{
			ProviderID: imgurProviderID,
			ResourceID: publicID,
			PublicID:   publicID,
		}
	}

	return nil
}

// ToPublicID keeps legacy URLs stable: no prefix for imgur.
func (a *ImgurAdapter) ToPublicID(resourceID string) string {
	return resourceID
}

// CacheKey is likewise unprefixed for backward compatibility; the registry
// leaves default-adapter keys alone.
func (a *ImgurAdapter) CacheKey(resourceID string) string {
	return resourceID
}

// apiGet performs an authenticated API request and returns the payload
// inside the response envelope. A 404, or an envelope without data,
// reports confirmed absence.
func (a *ImgurAdapter) apiGet(ctx context.Context, endpoint, resourceID string) (*jason.Object, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err).
			Component("hosts").
			Category(errors.CategoryUpstream).
			Context("provider", imgurProviderID).
			Build()
	}

	reqURL := fmt.Sprintf("%s/%s/%s", imgurAPIBase, endpoint, url.PathEscape(resourceID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("building imgur request: %w", err)
	}
	if a.clientID != "" {
		req.Header.Set("Authorization", "Client-ID "+a.clientID)
	}

	resp, err := a.client.Do(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err).
			Component("hosts").
			Category(errors.CategoryUpstream).
			Context("provider", imgurProviderID).
			Context("endpoint", endpoint).
			Build()
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.Newf("imgur reports %s/%s absent", endpoint, resourceID).
			Component("hosts").
			Category(errors.CategoryNotFound).
			Context("provider", imgurProviderID).
			Build()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Newf("imgur API returned status %d for %s/%s", resp.StatusCode, endpoint, resourceID).
			Component("hosts").
			Category(errors.CategoryUpstream).
			Context("provider", imgurProviderID).
			Context("status_code", resp.StatusCode).
			Build()
	}

	envelope, err := jason.NewObjectFromReader(resp.Body)
	if err != nil {
		return nil, errors.Newf("imgur API returned malformed JSON: %v", err).
			Component("hosts").
			Category(errors.CategoryUpstream).
			Context("provider", imgurProviderID).
			Build()
	}

	if success, err := envelope.GetBoolean("success"); err == nil && !success {
		return nil, errors.Newf("imgur reports %s/%s absent", endpoint, resourceID).
			Component("hosts").
			Category(errors.CategoryNotFound).
			Context("provider", imgurProviderID).
			Build()
	}

	data, err := envelope.GetObject("data")
	if err != nil {
		return nil, errors.Newf("imgur reports %s/%s absent", endpoint, resourceID).
			Component("hosts").
			Category(errors.CategoryNotFound).
			Context("provider", imgurProviderID).
			Build()
	}

	return data, nil
}

// FetchImage looks up a single image. Tries the gallery-image endpoint
// first since gallery posts carry richer metadata, then the plain image
// endpoint.
func (a *ImgurAdapter) FetchImage(ctx context.Context, resourceID string) (*Image, error) {
	data, err := a.apiGet(ctx, "gallery/image", resourceID)
	if err != nil {
		if !errors.IsNotFound(err) {
			a.logger.Debug("gallery image endpoint failed, trying image endpoint",
				"resource_id", resourceID, "error", err)
		}
		data, err = a.apiGet(ctx, "image", resourceID)
		if err != nil {
			return nil, err
		}
	}

	return imgurImageFromJSON(data), nil
}

// FetchAlbum looks up an album with its member images.
func (a *ImgurAdapter) FetchAlbum(ctx context.Context, resourceID string) (*Album, error) {
	data, err := a.apiGet(ctx, "album", resourceID)
	if err != nil {
		return nil, err
	}
	return imgurAlbumFromJSON(data), nil
}

// FetchGallery uses imgur's combined gallery endpoint, which reports
// whether the post is an album without a second lookup.
func (a *ImgurAdapter) FetchGallery(ctx context.Context, resourceID string) (*GalleryResult, error) {
	data, err := a.apiGet(ctx, "gallery", resourceID)
	if err != nil {
		return nil, err
	}

	if isAlbum, err := data.GetBoolean("is_album"); err == nil && isAlbum {
		return &GalleryResult{IsAlbum: true, Album: imgurAlbumFromJSON(data)}, nil
	}
	return &GalleryResult{IsAlbum: false, Image: imgurImageFromJSON(data)}, nil
}

// Download fetches raw bytes from the imgur CDN.
func (a *ImgurAdapter) Download(ctx context.Context, rawURL string) ([]byte, string, error) {
	data, contentType, err := a.client.GetBytes(ctx, rawURL)
	if err != nil {
		return nil, "", errors.Wrap(err).
			Component("hosts").
			Category(errors.CategoryUpstream).
			Context("provider", imgurProviderID).
			Context("operation", "download").
			Build()
	}
	return data, contentType, nil
}

// imgurImageFromJSON maps an API image payload. Field absence is routine:
// gallery responses omit link and type for some legacy posts, so both get
// CDN-derived fallbacks.
func imgurImageFromJSON(data *jason.Object) *Image {
	img := &Image{MimeType: "image/jpeg"}

	img.ID, _ = data.GetString("id")
	if mimeType, err := data.GetString("type"); err == nil && mimeType != "" {
		img.MimeType = mimeType
	}
	if link, err := data.GetString("link"); err == nil && link != "" {
		img.URL = link
	} else if img.ID != "" {
		ext := "jpg"
		if parts := strings.SplitN(img.MimeType, "/", 2); len(parts) == 2 && parts[1] != "" {
			ext = parts[1]
		}
		img.URL = fmt.Sprintf("%s/%s.%s", imgurCDNBase, img.ID, ext)
	}
	img.SourceURL = img.URL

	img.Title, _ = data.GetString("title")
	img.Description, _ = data.GetString("description")
	if width, err := data.GetInt64("width"); err == nil {
		img.Width = int(width)
	}
	if height, err := data.GetInt64("height"); err == nil {
		img.Height = int(height)
	}
	if size, err := data.GetInt64("size"); err == nil {
		img.SizeBytes = size
	}
	if animated, err := data.GetBoolean("animated"); err == nil {
		img.Animated = animated
	}

	return img
}

// imgurAlbumFromJSON maps an API album payload including member images.
func imgurAlbumFromJSON(data *jason.Object) *Album {
	album := &Album{}

	album.ID, _ = data.GetString("id")
	if link, err := data.GetString("link"); err == nil {
		album.SourceURL = link
	} else if albumURL, err := data.GetString("url"); err == nil {
		album.SourceURL = albumURL
	}
	album.Title, _ = data.GetString("title")
	album.Description, _ = data.GetString("description")

	if images, err := data.GetObjectArray("images"); err == nil {
		album.Images = make([]Image, 0, len(images))
		for _, imageData := range images {
			album.Images = append(album.Images, *imgurImageFromJSON(imageData))
		}
	}

	if count, err := data.GetInt64("images_count"); err == nil && count > 0 {
		album.ImageCount = int(count)
	} else {
		album.ImageCount = len(album.Images)
	}

	return album
}
