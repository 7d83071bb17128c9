package datastore

import (
	"time"
)

// Image is the persisted metadata for one mirrored image. ID is the locally
// generated identifier; the origin's own id lives in ProviderImageID.
type Image struct {
	ID              string `gorm:"primaryKey"`
	URL             string `gorm:"not null"` // origin byte URL the blob was fetched from
	SourceURL       string // origin page URL, when distinct from URL
	ProviderID      string `gorm:"index:idx_images_provider"`
	ProviderImageID string `gorm:"index:idx_images_provider"`
	Title           string
	Description     string
	MimeType        string `gorm:"not null"`
	Width           int
	Height          int
	SizeBytes       int64
	CachedAt        time.Time `gorm:"index"`
	LastCheckedAt   time.Time `gorm:"index"`
	IsDeleted       bool      `gorm:"index"`
}

// Gallery is the persisted metadata for one mirrored album/gallery.
type Gallery struct {
	ID                string `gorm:"primaryKey"`
	ProviderID        string `gorm:"index:idx_galleries_provider"`
	ProviderGalleryID string `gorm:"index:idx_galleries_provider"`
	SourceURL         string
	Title             string
	Description       string
	ImageCount        int
	CachedAt          time.Time `gorm:"index"`
	LastCheckedAt     time.Time `gorm:"index"`
	IsDeleted         bool      `gorm:"index"`
}

// GalleryImage links an image into a gallery at a fixed position. Position
// is the 0-based index in the origin's declared ordering and defines
// rendering order.
type GalleryImage struct {
	GalleryID string `gorm:"primaryKey"`
	ImageID   string `gorm:"primaryKey"`
	Position  int    `gorm:"not null;index"`
}

// RateLimitWindow is one fixed-window request counter per client and
// endpoint. WindowStart is the window's opening time truncated to the
// window size, stored as unix milliseconds.
type RateLimitWindow struct {
	ClientID    string `gorm:"primaryKey"`
	Endpoint    string `gorm:"primaryKey"`
	WindowStart int64  `gorm:"primaryKey"`
	Count       int    `gorm:"not null"`
}
