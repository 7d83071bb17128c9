package httpcontroller

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sweepies/imgur-sans-bullshit/internal/datastore"
	"github.com/sweepies/imgur-sans-bullshit/internal/ingest"
)

// The presentation layer is deliberately minimal: no client-side code, no
// tracking, just the mirrored media.

var homeTmpl = template.Must(template.New("home").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>imgur-sans-bullshit</title></head>
<body>
<h1>imgur-sans-bullshit</h1>
<p>Paste a link or id to view a mirrored copy.</p>
<form action="/view" method="get">
<input type="text" name="url" size="60" placeholder="https://imgur.com/..." autofocus>
<button type="submit">View</button>
</form>
</body>
</html>
`))

var imagePageTmpl = template.Must(template.New("image").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{if .Title}}{{.Title}}{{else}}{{.PublicID}}{{end}}</title>
<meta property="og:image" content="/raw/{{.PublicID}}">
{{if .Title}}<meta property="og:title" content="{{.Title}}">{{end}}
</head>
<body>
{{if .Title}}<h1>{{.Title}}</h1>{{end}}
{{if .IsVideo}}<video controls src="/raw/{{.PublicID}}"></video>
{{else}}<img src="/raw/{{.PublicID}}" alt="{{.Title}}">{{end}}
{{if .Description}}<p>{{.Description}}</p>{{end}}
{{if .SourceURL}}<p><a href="{{.SourceURL}}" rel="noreferrer">original</a></p>{{end}}
</body>
</html>
`))

var albumPageTmpl = template.Must(template.New("album").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{if .Title}}{{.Title}}{{else}}{{.PublicID}}{{end}}</title>
</head>
<body>
{{if .Title}}<h1>{{.Title}}</h1>{{end}}
{{if .Description}}<p>{{.Description}}</p>{{end}}
{{if .Degraded}}<p><em>Origin unreachable; showing the last mirrored copy.</em></p>{{end}}
{{range .Members}}
<figure>
{{if .IsVideo}}<video controls src="/raw/{{.PublicID}}"></video>
{{else}}<img src="/raw/{{.PublicID}}" alt="{{.Title}}" loading="lazy">{{end}}
{{if .Title}}<figcaption>{{.Title}}</figcaption>{{end}}
</figure>
{{end}}
</body>
</html>
`))

type imagePageData struct {
	PublicID    string
	Title       string
	Description string
	SourceURL   string
	IsVideo     bool
}

type albumPageData struct {
	PublicID    string
	Title       string
	Description string
	Degraded    bool
	Members     []imagePageData
}

func (s *Server) handleHome(c echo.Context) error {
	var buf strings.Builder
	if err := homeTmpl.Execute(&buf, nil); err != nil {
		return err
	}
	return c.HTML(http.StatusOK, buf.String())
}

func (s *Server) renderImagePage(c echo.Context, image *datastore.Image) error {
	var buf strings.Builder
	if err := imagePageTmpl.Execute(&buf, s.imagePageData(image)); err != nil {
		return err
	}
	return c.HTML(http.StatusOK, buf.String())
}

func (s *Server) renderAlbumPage(c echo.Context, res *ingest.Result) error {
	data := albumPageData{
		PublicID:    s.publicIDFor(res.Gallery.ProviderID, res.Gallery.ProviderGalleryID),
		Title:       res.Gallery.Title,
		Description: res.Gallery.Description,
		Degraded:    res.Degraded,
		Members:     make([]imagePageData, 0, len(res.Members)),
	}
	for _, member := range res.Members {
		data.Members = append(data.Members, s.imagePageData(member))
	}

	var buf strings.Builder
	if err := albumPageTmpl.Execute(&buf, data); err != nil {
		return err
	}
	return c.HTML(http.StatusOK, buf.String())
}

func (s *Server) imagePageData(image *datastore.Image) imagePageData {
	return imagePageData{
		PublicID:    s.publicIDFor(image.ProviderID, image.ProviderImageID),
		Title:       image.Title,
		Description: image.Description,
		SourceURL:   image.SourceURL,
		IsVideo:     strings.HasPrefix(image.MimeType, "video/"),
	}
}
