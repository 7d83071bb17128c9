package hosts

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/k3a/html2text"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/sweepies/imgur-sans-bullshit/internal/errors"
	"github.com/sweepies/imgur-sans-bullshit/internal/httpclient"
	"github.com/sweepies/imgur-sans-bullshit/internal/logging"
)

const postimagesProviderID = "postimages"

var (
	postimgPageRegex    = regexp.MustCompile(`(?i)postimg\.cc/([A-Za-z0-9]+)`)
	postimgGalleryRegex = regexp.MustCompile(`(?i)postimg\.cc/gallery/([A-Za-z0-9]+)`)
	postimgDirectRegex  = regexp.MustCompile(`(?i)i\.postimg\.cc/([^?#\s]+)`)
	postimgBareIDRegex  = regexp.MustCompile(`^[A-Za-z0-9]+$`)
	postimgLinkRegex    = regexp.MustCompile(`https?://postimg\.cc/([A-Za-z0-9]+)`)

	// Strips the site suffix postimg.cc appends to page titles.
	postimgTitleSuffix = regexp.MustCompile(`(?i)\s*[–—-]\s*Postimages?$`)
)

// mimeByExtension covers the formats postimg.cc serves; the page markup
// never states a content type so the URL extension is the only signal.
var mimeByExtension = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
	"mp4":  "video/mp4",
	"webm": "video/webm",
	"mov":  "video/quicktime",
}

var extensionRegex = regexp.MustCompile(`\.([a-z0-9]+)(?:$|\?)`)

// PostimagesAdapter resolves postimg.cc content by scraping page markup;
// the site has no public API. Resource ids carry a subtype tag —
// "page:<id>", "direct:<path>" or "gallery:<id>" — that only this adapter
// interprets.
type PostimagesAdapter struct {
	config  AdapterConfig
	client  *httpclient.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// PostimagesOptions configures the postimages adapter.
type PostimagesOptions struct {
	StaleAfter time.Duration
	// RateLimit overrides the registry's shared client budget when non-nil.
	RateLimit *RateLimitConfig
	Client    *httpclient.Client
}

// NewPostimagesAdapter creates the postimages adapter.
func NewPostimagesAdapter(opts PostimagesOptions) *PostimagesAdapter {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = time.Hour
	}
	if opts.Client == nil {
		opts.Client = httpclient.New(nil)
	}
	return &PostimagesAdapter{
		config: AdapterConfig{
			StaleAfter:       opts.StaleAfter,
			PageCacheSeconds: 600,
			APICacheSeconds:  300,
			RawCacheSeconds:  3600,
			RateLimit:        opts.RateLimit,
		},
		client: opts.Client,
		// Scraping is heavier on the origin than API calls; stay slower
		// than the imgur adapter.
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
		logger:  logging.ForService("hosts.postimages"),
	}
}

func (a *PostimagesAdapter) ID() string            { return postimagesProviderID }
func (a *PostimagesAdapter) Name() string          { return "Postimages" }
func (a *PostimagesAdapter) Config() AdapterConfig { return a.config }

// MatchInput accepts anything mentioning postimg.cc. Bare ids are not
// matched here: they belong to the default adapter's namespace.
func (a *PostimagesAdapter) MatchInput(input string) bool {
	return strings.Contains(strings.ToLower(input), "postimg.cc")
}

// ParseInput classifies a postimg.cc URL into one of the subtype resource
// ids. Gallery wins over direct wins over page, since the broader page
// pattern also matches inside gallery URLs.
func (a *PostimagesAdapter) ParseInput(input string) *ParsedInput {
	input = strings.TrimSpace(input)

	if m := postimgGalleryRegex.FindStringSubmatch(input); m != nil {
		return a.parsed("gallery:"+m[1], KindAlbum)
	}
	if m := postimgDirectRegex.FindStringSubmatch(input); m != nil {
		return a.parsed("direct:"+m[1], KindImage)
	}
	if m := postimgPageRegex.FindStringSubmatch(input); m != nil && m[1] != "gallery" {
		return a.parsed("page:"+m[1], KindImage)
	}
	if postimgBareIDRegex.MatchString(input) {
		return a.parsed("page:"+input, KindImage)
	}
	return nil
}

// ParsePublicID reverses ToPublicID, accepting only known subtypes.
func (a *PostimagesAdapter) ParsePublicID(publicID string) *ParsedInput {
	rest, ok := strings.CutPrefix(publicID, postimagesProviderID+":")
	if !ok {
		return nil
	}
	switch {
	case strings.HasPrefix(rest, "gallery:"):
		return a.parsed(rest, KindAlbum)
	case strings.HasPrefix(rest, "direct:"), strings.HasPrefix(rest, "page:"):
		return a.parsed(rest, KindImage)
	}
	return nil
}

func (a *PostimagesAdapter) parsed(resourceID string, kind ResourceKind) *ParsedInput {
	return &ParsedInput{
		ProviderID: postimagesProviderID,
		ResourceID: resourceID,
		PublicID:   a.ToPublicID(resourceID),
		TypeHint:   kind,
	}
}

// ToPublicID prefixes with the provider id; the subtype tag inside the
// resource id survives untouched.
func (a *PostimagesAdapter) ToPublicID(resourceID string) string {
	return postimagesProviderID + ":" + resourceID
}

func (a *PostimagesAdapter) CacheKey(resourceID string) string {
	return resourceID
}

// FetchImage resolves a page or direct resource id. Direct URLs need no
// network round trip at all; page ids are scraped for their og:image.
func (a *PostimagesAdapter) FetchImage(ctx context.Context, resourceID string) (*Image, error) {
	switch {
	case strings.HasPrefix(resourceID, "direct:"):
		return a.imageFromDirect(strings.TrimPrefix(resourceID, "direct:")), nil
	case strings.HasPrefix(resourceID, "page:"):
		return a.imageFromPage(ctx, strings.TrimPrefix(resourceID, "page:"))
	default:
		// Unknown subtype, attempt a page resolve.
		return a.imageFromPage(ctx, resourceID)
	}
}

// FetchAlbum scrapes a gallery page and resolves each member page in the
// order the gallery lists them.
func (a *PostimagesAdapter) FetchAlbum(ctx context.Context, resourceID string) (*Album, error) {
	galleryID, ok := strings.CutPrefix(resourceID, "gallery:")
	if !ok {
		return nil, errors.Newf("resource %q is not a postimages gallery", resourceID).
			Component("hosts").
			Category(errors.CategoryValidation).
			Context("provider", postimagesProviderID).
			Build()
	}

	sourceURL := "https://postimg.cc/gallery/" + galleryID
	doc, rawHTML, err := a.fetchPage(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	album := &Album{
		ID:        galleryID,
		SourceURL: sourceURL,
		Title:     cleanPostimgTitle(pageTitle(doc)),
	}

	// Member order on the page is the album order. The same page id can
	// appear in several anchors, keep the first occurrence only.
	seen := make(map[string]bool)
	for _, m := range postimgLinkRegex.FindAllStringSubmatch(rawHTML, -1) {
		pageID := m[1]
		if pageID == "gallery" || seen[pageID] {
			continue
		}
		seen[pageID] = true

		img, err := a.imageFromPage(ctx, pageID)
		if err != nil {
			if errors.IsNotFound(err) {
				a.logger.Debug("gallery member page unresolvable, skipping",
					"gallery_id", galleryID, "page_id", pageID)
				continue
			}
			return nil, err
		}
		album.Images = append(album.Images, *img)
	}

	album.ImageCount = len(album.Images)
	return album, nil
}

// FetchGallery routes gallery ids to FetchAlbum and everything else to
// FetchImage.
func (a *PostimagesAdapter) FetchGallery(ctx context.Context, resourceID string) (*GalleryResult, error) {
	if strings.HasPrefix(resourceID, "gallery:") {
		album, err := a.FetchAlbum(ctx, resourceID)
		if err != nil {
			return nil, err
		}
		return &GalleryResult{IsAlbum: true, Album: album}, nil
	}
	img, err := a.FetchImage(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	return &GalleryResult{IsAlbum: false, Image: img}, nil
}

// Download fetches raw bytes from the postimg CDN.
func (a *PostimagesAdapter) Download(ctx context.Context, rawURL string) ([]byte, string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}
	data, contentType, err := a.client.GetBytes(ctx, rawURL)
	if err != nil {
		return nil, "", errors.Wrap(err).
			Component("hosts").
			Category(errors.CategoryUpstream).
			Context("provider", postimagesProviderID).
			Context("operation", "download").
			Build()
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = guessMimeType(rawURL)
	}
	return data, contentType, nil
}

func (a *PostimagesAdapter) imageFromDirect(path string) *Image {
	imageURL := path
	if !strings.HasPrefix(imageURL, "http") {
		imageURL = "https://i.postimg.cc/" + strings.TrimLeft(path, "/")
	}
	return &Image{
		ID:        "direct:" + path,
		URL:       imageURL,
		SourceURL: imageURL,
		MimeType:  guessMimeType(imageURL),
	}
}

func (a *PostimagesAdapter) imageFromPage(ctx context.Context, pageID string) (*Image, error) {
	sourceURL := "https://postimg.cc/" + pageID
	doc, _, err := a.fetchPage(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	imageURL := metaContent(doc, "og:image")
	if imageURL == "" {
		// A postimg page without og:image carries no image at all.
		return nil, errors.Newf("postimg page %s has no image", pageID).
			Component("hosts").
			Category(errors.CategoryNotFound).
			Context("provider", postimagesProviderID).
			Build()
	}

	img := &Image{
		ID:        "page:" + pageID,
		URL:       imageURL,
		SourceURL: sourceURL,
		Title:     cleanPostimgTitle(pageTitle(doc)),
		MimeType:  guessMimeType(imageURL),
	}
	if desc := metaContent(doc, "og:description"); desc != "" {
		img.Description = strings.TrimSpace(html2text.HTML2Text(desc))
	}
	return img, nil
}

// fetchPage retrieves and parses a postimg.cc page, returning both the DOM
// and the raw markup (the gallery walk needs the raw text for link order).
func (a *PostimagesAdapter) fetchPage(ctx context.Context, pageURL string) (*html.Node, string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}

	data, _, err := a.client.GetBytes(ctx, pageURL)
	if err != nil {
		if httpclient.IsStatus(err, http.StatusNotFound) || httpclient.IsStatus(err, http.StatusGone) {
			return nil, "", errors.Newf("postimg reports %s absent", pageURL).
				Component("hosts").
				Category(errors.CategoryNotFound).
				Context("provider", postimagesProviderID).
				Build()
		}
		return nil, "", errors.Wrap(err).
			Component("hosts").
			Category(errors.CategoryUpstream).
			Context("provider", postimagesProviderID).
			Context("url", pageURL).
			Build()
	}

	doc, err := html.Parse(strings.NewReader(string(data)))
	if err != nil {
		return nil, "", fmt.Errorf("parsing postimg page %s: %w", pageURL, err)
	}
	return doc, string(data), nil
}

// metaContent walks the DOM for a <meta> tag with the given property (or
// name) attribute and returns its content.
func metaContent(doc *html.Node, property string) string {
	var content string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if content != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "meta" {
			var prop, val string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "property", "name":
					prop = attr.Val
				case "content":
					val = attr.Val
				}
			}
			if prop == property && val != "" {
				content = val
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return content
}

// pageTitle returns og:title when present, else the <title> text.
func pageTitle(doc *html.Node) string {
	if t := metaContent(doc, "og:title"); t != "" {
		return t
	}
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}

func cleanPostimgTitle(title string) string {
	return strings.TrimSpace(postimgTitleSuffix.ReplaceAllString(title, ""))
}

// guessMimeType infers a content type from the URL extension.
func guessMimeType(rawURL string) string {
	m := extensionRegex.FindStringSubmatch(strings.ToLower(rawURL))
	if m == nil {
		return "application/octet-stream"
	}
	if mime, ok := mimeByExtension[m[1]]; ok {
		return mime
	}
	return "application/octet-stream"
}
