// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sweepies/imgur-sans-bullshit/internal/conf"
	"github.com/sweepies/imgur-sans-bullshit/internal/errors"
)

// Sentinel errors for keyed lookups that found nothing. Callers check with
// errors.Is; a miss is an expected condition, not a storage failure.
var (
	ErrImageNotFound   = errors.NewStd("image not found in datastore")
	ErrGalleryNotFound = errors.NewStd("gallery not found in datastore")
)

// Interface abstracts the underlying database implementation and defines
// the metadata store operations the ingestion engine requires.
type Interface interface {
	Open() error
	Close() error

	// Image operations
	GetImage(id string) (*Image, error)
	GetImageByProvider(providerID, providerImageID string) (*Image, error)
	SaveImage(image *Image) error
	DeleteImage(id string) error
	UpdateImageCheckTime(id string, checkedAt time.Time) error
	GetStaleImages(cutoff time.Time) ([]string, error)

	// Gallery operations
	GetGallery(id string) (*Gallery, error)
	GetGalleryByProvider(providerID, providerGalleryID string) (*Gallery, error)
	SaveGallery(gallery *Gallery) error
	DeleteGallery(id string) error
	UpdateGalleryCheckTime(id string, checkedAt time.Time) error

	// Gallery membership, ordered by position
	GetGalleryImageIDs(galleryID string) ([]string, error)
	AddGalleryImage(galleryID, imageID string, position int) error
	RemoveGalleryImage(galleryID, imageID string) error

	// Rate limit windows
	GetRateLimitCount(clientID, endpoint string, windowStart int64) (int, error)
	IncrementRateLimit(clientID, endpoint string, windowStart int64) error
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new datastore instance based on the provided configuration.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			Settings: settings,
		}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			Settings: settings,
		}
	default:
		return nil
	}
}

// GetImage retrieves image metadata by its local id.
func (ds *DataStore) GetImage(id string) (*Image, error) {
	var image Image
	if err := ds.DB.Where("id = ?", id).First(&image).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrImageNotFound
		}
		return nil, fmt.Errorf("getting image %s: %w", id, err)
	}
	return &image, nil
}

// GetImageByProvider retrieves the newest un-deleted image for an origin
// identity. Tombstoned rows are skipped so a fresh ingestion of the same
// origin resource allocates a new local id.
func (ds *DataStore) GetImageByProvider(providerID, providerImageID string) (*Image, error) {
	var image Image
	err := ds.DB.
		Where("provider_id = ? AND provider_image_id = ? AND is_deleted = ?", providerID, providerImageID, false).
		Order("cached_at DESC").
		First(&image).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrImageNotFound
		}
		return nil, fmt.Errorf("getting image by provider %s/%s: %w", providerID, providerImageID, err)
	}
	return &image, nil
}

// SaveImage upserts image metadata by primary key. Concurrent writers for
// the same id converge last-write-wins instead of erroring.
func (ds *DataStore) SaveImage(image *Image) error {
	err := ds.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(image).Error
	if err != nil {
		return fmt.Errorf("saving image %s: %w", image.ID, err)
	}
	return nil
}

// DeleteImage removes image metadata by its local id.
func (ds *DataStore) DeleteImage(id string) error {
	if err := ds.DB.Delete(&Image{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("deleting image %s: %w", id, err)
	}
	return nil
}

// UpdateImageCheckTime refreshes the revalidation timestamp of an image.
func (ds *DataStore) UpdateImageCheckTime(id string, checkedAt time.Time) error {
	err := ds.DB.Model(&Image{}).Where("id = ?", id).
		Update("last_checked_at", checkedAt).Error
	if err != nil {
		return fmt.Errorf("updating image check time %s: %w", id, err)
	}
	return nil
}

// GetStaleImages lists un-deleted image ids whose last check precedes the
// cutoff. Used by the out-of-band revalidation sweep, not the resolve path.
func (ds *DataStore) GetStaleImages(cutoff time.Time) ([]string, error) {
	var ids []string
	err := ds.DB.Model(&Image{}).
		Where("last_checked_at < ? AND is_deleted = ?", cutoff, false).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("listing stale images: %w", err)
	}
	return ids, nil
}

// GetGallery retrieves gallery metadata by its local id.
func (ds *DataStore) GetGallery(id string) (*Gallery, error) {
	var gallery Gallery
	if err := ds.DB.Where("id = ?", id).First(&gallery).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGalleryNotFound
		}
		return nil, fmt.Errorf("getting gallery %s: %w", id, err)
	}
	return &gallery, nil
}

// GetGalleryByProvider retrieves the newest un-deleted gallery for an
// origin identity.
func (ds *DataStore) GetGalleryByProvider(providerID, providerGalleryID string) (*Gallery, error) {
	var gallery Gallery
	err := ds.DB.
		Where("provider_id = ? AND provider_gallery_id = ? AND is_deleted = ?", providerID, providerGalleryID, false).
		Order("cached_at DESC").
		First(&gallery).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGalleryNotFound
		}
		return nil, fmt.Errorf("getting gallery by provider %s/%s: %w", providerID, providerGalleryID, err)
	}
	return &gallery, nil
}

// SaveGallery upserts gallery metadata by primary key.
func (ds *DataStore) SaveGallery(gallery *Gallery) error {
	err := ds.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(gallery).Error
	if err != nil {
		return fmt.Errorf("saving gallery %s: %w", gallery.ID, err)
	}
	return nil
}

// DeleteGallery removes a gallery and its membership rows.
func (ds *DataStore) DeleteGallery(id string) error {
	return ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&Gallery{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("deleting gallery %s: %w", id, err)
		}
		if err := tx.Delete(&GalleryImage{}, "gallery_id = ?", id).Error; err != nil {
			return fmt.Errorf("deleting gallery memberships %s: %w", id, err)
		}
		return nil
	})
}

// UpdateGalleryCheckTime refreshes the revalidation timestamp of a gallery.
func (ds *DataStore) UpdateGalleryCheckTime(id string, checkedAt time.Time) error {
	err := ds.DB.Model(&Gallery{}).Where("id = ?", id).
		Update("last_checked_at", checkedAt).Error
	if err != nil {
		return fmt.Errorf("updating gallery check time %s: %w", id, err)
	}
	return nil
}

// GetGalleryImageIDs lists member image ids ordered by position.
func (ds *DataStore) GetGalleryImageIDs(galleryID string) ([]string, error) {
	var ids []string
	err := ds.DB.Model(&GalleryImage{}).
		Where("gallery_id = ?", galleryID).
		Order("position ASC").
		Pluck("image_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("listing gallery images %s: %w", galleryID, err)
	}
	return ids, nil
}

// AddGalleryImage upserts one membership row.
func (ds *DataStore) AddGalleryImage(galleryID, imageID string, position int) error {
	err := ds.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "gallery_id"}, {Name: "image_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"position"}),
	}).Create(&GalleryImage{
		GalleryID: galleryID,
		ImageID:   imageID,
		Position:  position,
	}).Error
	if err != nil {
		return fmt.Errorf("adding gallery image %s/%s: %w", galleryID, imageID, err)
	}
	return nil
}

// RemoveGalleryImage removes one membership row.
func (ds *DataStore) RemoveGalleryImage(galleryID, imageID string) error {
	err := ds.DB.
		Where("gallery_id = ? AND image_id = ?", galleryID, imageID).
		Delete(&GalleryImage{}).Error
	if err != nil {
		return fmt.Errorf("removing gallery image %s/%s: %w", galleryID, imageID, err)
	}
	return nil
}

// GetRateLimitCount returns the request count for one fixed window, zero if
// no requests have been recorded yet.
func (ds *DataStore) GetRateLimitCount(clientID, endpoint string, windowStart int64) (int, error) {
	var window RateLimitWindow
	err := ds.DB.
		Where("client_id = ? AND endpoint = ? AND window_start = ?", clientID, endpoint, windowStart).
		First(&window).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("getting rate limit count: %w", err)
	}
	return window.Count, nil
}

// IncrementRateLimit bumps the request count for one fixed window,
// creating the row on first use.
func (ds *DataStore) IncrementRateLimit(clientID, endpoint string, windowStart int64) error {
	err := ds.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "client_id"}, {Name: "endpoint"}, {Name: "window_start"},
		},
		DoUpdates: clause.Assignments(map[string]any{"count": gorm.Expr("count + 1")}),
	}).Create(&RateLimitWindow{
		ClientID:    clientID,
		Endpoint:    endpoint,
		WindowStart: windowStart,
		Count:       1,
	}).Error
	if err != nil {
		return fmt.Errorf("incrementing rate limit: %w", err)
	}
	return nil
}
