package httpcontroller

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sweepies/imgur-sans-bullshit/internal/datastore"
	"github.com/sweepies/imgur-sans-bullshit/internal/errors"
	"github.com/sweepies/imgur-sans-bullshit/internal/hosts"
)

// imageJSON is the API representation of one image record.
type imageJSON struct {
	ID              string    `json:"id"`
	PublicID        string    `json:"public_id"`
	URL             string    `json:"url"`
	SourceURL       string    `json:"source_url,omitempty"`
	Provider        string    `json:"provider"`
	ProviderImageID string    `json:"provider_image_id"`
	Title           string    `json:"title,omitempty"`
	Description     string    `json:"description,omitempty"`
	MimeType        string    `json:"type"`
	Width           int       `json:"width,omitempty"`
	Height          int       `json:"height,omitempty"`
	SizeBytes       int64     `json:"size,omitempty"`
	CachedAt        time.Time `json:"cached_at"`
	LastCheckedAt   time.Time `json:"last_checked"`
	Raw             string    `json:"raw"`
}

// albumJSON is the API representation of one gallery with its members.
type albumJSON struct {
	ID            string      `json:"id"`
	PublicID      string      `json:"public_id"`
	Provider      string      `json:"provider"`
	SourceURL     string      `json:"source_url,omitempty"`
	Title         string      `json:"title,omitempty"`
	Description   string      `json:"description,omitempty"`
	ImageCount    int         `json:"images_count"`
	CachedAt      time.Time   `json:"cached_at"`
	LastCheckedAt time.Time   `json:"last_checked"`
	Degraded      bool        `json:"degraded,omitempty"`
	Images        []imageJSON `json:"images"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   s.Settings.Version,
	})
}

// handleView resolves arbitrary user input (URL or bare id) and redirects
// to the canonical page for what it turned out to be.
func (s *Server) handleView(c echo.Context) error {
	target := strings.TrimSpace(c.QueryParam("url"))
	if target == "" {
		return c.Redirect(http.StatusSeeOther, "/")
	}

	parsed := s.Registry.ResolveInput(target)
	if parsed == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unsupported URL or ID format")
	}

	res, err := s.Ingest.Resolve(c.Request().Context(), parsed)
	if err != nil {
		return s.httpError(err)
	}

	if res.IsGallery {
		return c.Redirect(http.StatusFound, "/a/"+parsed.PublicID)
	}
	return c.Redirect(http.StatusFound, "/"+parsed.PublicID)
}

// handleGalleryRedirect disambiguates an id that may name an album or a
// single image, then redirects to the matching view.
func (s *Server) handleGalleryRedirect(c echo.Context) error {
	parsed := s.parsePublicID(c.Param("id"))
	if parsed == nil {
		return echo.NewHTTPError(http.StatusNotFound, "unrecognized identifier")
	}
	// The /gallery/ entry point is album-first by convention.
	if parsed.TypeHint == "" {
		parsed.TypeHint = hosts.KindAlbum
	}

	res, err := s.Ingest.Resolve(c.Request().Context(), parsed)
	if err != nil {
		return s.httpError(err)
	}

	if res.IsGallery {
		return c.Redirect(http.StatusFound, "/a/"+parsed.PublicID)
	}
	return c.Redirect(http.StatusFound, "/"+parsed.PublicID)
}

func (s *Server) handleImagePage(c echo.Context) error {
	parsed := s.parsePublicID(c.Param("id"))
	if parsed == nil {
		return echo.NewHTTPError(http.StatusNotFound, "unrecognized identifier")
	}

	res, err := s.Ingest.Resolve(c.Request().Context(), parsed)
	if err != nil {
		return s.httpError(err)
	}
	if res.IsGallery {
		return c.Redirect(http.StatusFound, "/a/"+parsed.PublicID)
	}

	s.setCacheControl(c, s.adapterConfig(parsed).PageCacheSeconds)
	return s.renderImagePage(c, res.Image)
}

func (s *Server) handleAlbumPage(c echo.Context) error {
	parsed := s.parsePublicID(c.Param("id"))
	if parsed == nil {
		return echo.NewHTTPError(http.StatusNotFound, "unrecognized identifier")
	}
	if parsed.TypeHint == "" {
		parsed.TypeHint = hosts.KindAlbum
	}

	res, err := s.Ingest.ResolveGallery(c.Request().Context(), parsed)
	if err != nil {
		return s.httpError(err)
	}

	s.setCacheControl(c, s.adapterConfig(parsed).PageCacheSeconds)
	return s.renderAlbumPage(c, res)
}

// handleRaw serves the stored bytes for one image.
func (s *Server) handleRaw(c echo.Context) error {
	parsed := s.parsePublicID(c.Param("*"))
	if parsed == nil {
		return echo.NewHTTPError(http.StatusNotFound, "unrecognized identifier")
	}

	image, obj, err := s.Ingest.RawObject(c.Request().Context(), parsed)
	if err != nil {
		return s.httpError(err)
	}

	s.setCacheControl(c, s.adapterConfig(parsed).RawCacheSeconds)
	contentType := obj.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = image.MimeType
	}
	return c.Blob(http.StatusOK, contentType, obj.Data)
}

func (s *Server) handleAPIImage(c echo.Context) error {
	parsed := s.parsePublicID(c.Param("*"))
	if parsed == nil {
		return echo.NewHTTPError(http.StatusNotFound, "unrecognized identifier")
	}

	image, err := s.Ingest.ResolveImage(c.Request().Context(), parsed)
	if err != nil {
		return s.httpError(err)
	}

	s.setCacheControl(c, s.adapterConfig(parsed).APICacheSeconds)
	return c.JSON(http.StatusOK, s.imageToJSON(image))
}

func (s *Server) handleAPIAlbum(c echo.Context) error {
	parsed := s.parsePublicID(c.Param("*"))
	if parsed == nil {
		return echo.NewHTTPError(http.StatusNotFound, "unrecognized identifier")
	}
	if parsed.TypeHint == "" {
		parsed.TypeHint = hosts.KindAlbum
	}

	res, err := s.Ingest.ResolveGallery(c.Request().Context(), parsed)
	if err != nil {
		return s.httpError(err)
	}

	images := make([]imageJSON, 0, len(res.Members))
	for _, member := range res.Members {
		images = append(images, s.imageToJSON(member))
	}

	s.setCacheControl(c, s.adapterConfig(parsed).APICacheSeconds)
	return c.JSON(http.StatusOK, albumJSON{
		ID:            res.Gallery.ID,
		PublicID:      parsed.PublicID,
		Provider:      res.Gallery.ProviderID,
		SourceURL:     res.Gallery.SourceURL,
		Title:         res.Gallery.Title,
		Description:   res.Gallery.Description,
		ImageCount:    res.Gallery.ImageCount,
		CachedAt:      res.Gallery.CachedAt,
		LastCheckedAt: res.Gallery.LastCheckedAt,
		Degraded:      res.Degraded,
		Images:        images,
	})
}

// parsePublicID resolves a path identifier through the registry.
func (s *Server) parsePublicID(raw string) *hosts.ParsedInput {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	return s.Registry.ParsePublicID(raw)
}

// adapterConfig returns the caching policy for the identity's provider,
// falling back to the default adapter's when unregistered.
func (s *Server) adapterConfig(parsed *hosts.ParsedInput) hosts.AdapterConfig {
	if adapter := s.Registry.Get(parsed.ProviderID); adapter != nil {
		return adapter.Config()
	}
	if def := s.Registry.Default(); def != nil {
		return def.Config()
	}
	return hosts.AdapterConfig{}
}

func (s *Server) setCacheControl(c echo.Context, seconds int) {
	if seconds <= 0 {
		return
	}
	c.Response().Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", seconds))
}

// publicIDFor derives the public identifier for a stored record.
func (s *Server) publicIDFor(providerID, providerResourceID string) string {
	if adapter := s.Registry.Get(providerID); adapter != nil {
		return adapter.ToPublicID(providerResourceID)
	}
	return providerResourceID
}

func (s *Server) imageToJSON(image *datastore.Image) imageJSON {
	publicID := s.publicIDFor(image.ProviderID, image.ProviderImageID)
	return imageJSON{
		ID:              image.ID,
		PublicID:        publicID,
		URL:             image.URL,
		SourceURL:       image.SourceURL,
		Provider:        image.ProviderID,
		ProviderImageID: image.ProviderImageID,
		Title:           image.Title,
		Description:     image.Description,
		MimeType:        image.MimeType,
		Width:           image.Width,
		Height:          image.Height,
		SizeBytes:       image.SizeBytes,
		CachedAt:        image.CachedAt,
		LastCheckedAt:   image.LastCheckedAt,
		Raw:             "/raw/" + publicID,
	}
}

// httpError maps the error taxonomy onto HTTP statuses.
func (s *Server) httpError(err error) error {
	switch {
	case errors.IsNotFound(err):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.IsUpstreamUnavailable(err):
		return echo.NewHTTPError(http.StatusBadGateway, "origin unavailable")
	case errors.IsCategory(err, errors.CategoryValidation):
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	case errors.IsCategory(err, errors.CategoryDatabase),
		errors.IsCategory(err, errors.CategoryBlobStorage):
		s.logger.Error("storage failure", "error", err)
		return echo.NewHTTPError(http.StatusServiceUnavailable, "storage unavailable")
	default:
		s.logger.Error("unhandled resolve failure", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
