package hosts

import (
	"context"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweepies/imgur-sans-bullshit/internal/errors"
	"github.com/sweepies/imgur-sans-bullshit/internal/httpclient"
)

func newTestPostimagesAdapter(t *testing.T) *PostimagesAdapter {
	t.Helper()
	client := httpclient.New(nil)
	httpmock.ActivateNonDefault(client.HTTPClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	return NewPostimagesAdapter(PostimagesOptions{Client: client})
}

func TestPostimagesParseInput(t *testing.T) {
	a := NewPostimagesAdapter(PostimagesOptions{})

	tests := []struct {
		name         string
		input        string
		wantNil      bool
		wantResource string
		wantPublic   string
		wantHint     ResourceKind
	}{
		{
			name:         "gallery URL",
			input:        "https://postimg.cc/gallery/Xy12Ab",
			wantResource: "gallery:Xy12Ab",
			wantPublic:   "postimages:gallery:Xy12Ab",
			wantHint:     KindAlbum,
		},
		{
			name:         "direct URL",
			input:        "https://i.postimg.cc/abc/photo.jpg",
			wantResource: "direct:abc/photo.jpg",
			wantPublic:   "postimages:direct:abc/photo.jpg",
			wantHint:     KindImage,
		},
		{
			name:         "page URL",
			input:        "https://postimg.cc/Xy12Ab",
			wantResource: "page:Xy12Ab",
			wantPublic:   "postimages:page:Xy12Ab",
			wantHint:     KindImage,
		},
		{
			name:         "bare id falls back to page",
			input:        "Xy12Ab",
			wantResource: "page:Xy12Ab",
			wantPublic:   "postimages:page:Xy12Ab",
			wantHint:     KindImage,
		},
		{
			name:    "unrelated URL",
			input:   "https://example.com/Xy12Ab",
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.ParseInput(tt.input)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, "postimages", got.ProviderID)
			assert.Equal(t, tt.wantResource, got.ResourceID)
			assert.Equal(t, tt.wantPublic, got.PublicID)
			assert.Equal(t, tt.wantHint, got.TypeHint)
		})
	}
}

func TestPostimagesPublicIDRoundTrip(t *testing.T) {
	a := NewPostimagesAdapter(PostimagesOptions{})

	for _, resourceID := range []string{"page:Xy12Ab", "direct:abc/photo.jpg", "gallery:Xy12Ab"} {
		public := a.ToPublicID(resourceID)
		parsed := a.ParsePublicID(public)
		require.NotNil(t, parsed, "public id %q must parse back", public)
		assert.Equal(t, resourceID, parsed.ResourceID)
	}

	assert.Nil(t, a.ParsePublicID("postimages:bogus:Xy12Ab"), "unknown subtype is rejected")
	assert.Nil(t, a.ParsePublicID("imgur:Xy12Ab"), "foreign prefix is rejected")
}

func TestPostimagesFetchImageFromPage(t *testing.T) {
	a := newTestPostimagesAdapter(t)

	httpmock.RegisterResponder(http.MethodGet, "https://postimg.cc/Xy12Ab",
		httpmock.NewStringResponder(http.StatusOK, `<html><head>
			<meta property="og:title" content="Sunset — Postimages" />
			<meta property="og:image" content="https://i.postimg.cc/abc/sunset.png" />
			<meta property="og:description" content="A &lt;b&gt;lovely&lt;/b&gt; sunset" />
		</head><body></body></html>`))

	img, err := a.FetchImage(context.Background(), "page:Xy12Ab")
	require.NoError(t, err)
	assert.Equal(t, "page:Xy12Ab", img.ID, "member ids live in resource-id space")
	assert.Equal(t, "https://i.postimg.cc/abc/sunset.png", img.URL)
	assert.Equal(t, "https://postimg.cc/Xy12Ab", img.SourceURL)
	assert.Equal(t, "Sunset", img.Title, "site suffix is stripped from titles")
	assert.Equal(t, "image/png", img.MimeType)
}

func TestPostimagesFetchImageDirect(t *testing.T) {
	a := NewPostimagesAdapter(PostimagesOptions{})

	// Direct resources resolve without any network traffic.
	img, err := a.FetchImage(context.Background(), "direct:abc/photo.webp")
	require.NoError(t, err)
	assert.Equal(t, "https://i.postimg.cc/abc/photo.webp", img.URL)
	assert.Equal(t, "image/webp", img.MimeType)
}

func TestPostimagesFetchImagePageWithoutImage(t *testing.T) {
	a := newTestPostimagesAdapter(t)

	httpmock.RegisterResponder(http.MethodGet, "https://postimg.cc/NoImg1",
		httpmock.NewStringResponder(http.StatusOK, `<html><head><title>Empty page</title></head></html>`))

	_, err := a.FetchImage(context.Background(), "page:NoImg1")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestPostimagesFetchImagePageGone(t *testing.T) {
	a := newTestPostimagesAdapter(t)

	httpmock.RegisterResponder(http.MethodGet, "https://postimg.cc/Gone42",
		httpmock.NewStringResponder(http.StatusNotFound, "not found"))

	_, err := a.FetchImage(context.Background(), "page:Gone42")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestPostimagesFetchAlbum(t *testing.T) {
	a := newTestPostimagesAdapter(t)

	// The gallery page links each member twice (thumbnail and caption);
	// members must come out deduplicated in page order.
	httpmock.RegisterResponder(http.MethodGet, "https://postimg.cc/gallery/Gal42",
		httpmock.NewStringResponder(http.StatusOK, `<html><head>
			<meta property="og:title" content="My gallery – Postimage" />
		</head><body>
			<a href="https://postimg.cc/First1"><img></a>
			<a href="https://postimg.cc/First1">caption</a>
			<a href="https://postimg.cc/Secnd2"><img></a>
		</body></html>`))

	for _, pageID := range []string{"First1", "Secnd2"} {
		id := pageID
		httpmock.RegisterResponder(http.MethodGet, "https://postimg.cc/"+id,
			httpmock.NewStringResponder(http.StatusOK, `<html><head>
				<meta property="og:image" content="https://i.postimg.cc/x/`+id+`.jpg" />
			</head></html>`))
	}

	album, err := a.FetchAlbum(context.Background(), "gallery:Gal42")
	require.NoError(t, err)
	assert.Equal(t, "Gal42", album.ID)
	assert.Equal(t, "My gallery", album.Title)
	assert.Equal(t, 2, album.ImageCount)
	require.Len(t, album.Images, 2)
	assert.Equal(t, "page:First1", album.Images[0].ID)
	assert.Equal(t, "page:Secnd2", album.Images[1].ID)
}

func TestPostimagesFetchAlbumRejectsNonGallery(t *testing.T) {
	a := NewPostimagesAdapter(PostimagesOptions{})

	_, err := a.FetchAlbum(context.Background(), "page:Xy12Ab")
	require.Error(t, err)
}

func TestGuessMimeType(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://i.postimg.cc/x/a.jpg", "image/jpeg"},
		{"https://i.postimg.cc/x/a.JPEG", "image/jpeg"},
		{"https://i.postimg.cc/x/a.png?dl=1", "image/png"},
		{"https://i.postimg.cc/x/a.gif", "image/gif"},
		{"https://i.postimg.cc/x/a.mp4", "video/mp4"},
		{"https://i.postimg.cc/x/a", "application/octet-stream"},
		{"https://i.postimg.cc/x/a.xyz", "application/octet-stream"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, guessMimeType(tt.url), tt.url)
	}
}
