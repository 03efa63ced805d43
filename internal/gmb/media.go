package gmb

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/go-faster/errors"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"gmbdash/server/internal/db"
	"gmbdash/server/internal/storage"
	"gmbdash/server/pkg/gbpapi"
)

// MaxUploadBytes bounds a single media upload.
const MaxUploadBytes = 10 << 20

// mediaFormats maps accepted upload types to Google's media format.
var mediaFormats = map[string]string{
	"image/jpeg": "PHOTO",
	"image/png":  "PHOTO",
	"video/mp4":  "VIDEO",
}

var mediaCategories = []any{"COVER", "PROFILE", "LOGO", "EXTERIOR", "INTERIOR", "PRODUCT", "AT_WORK", "FOOD_AND_DRINK", "MENU", "COMMON_AREA", "ROOMS", "TEAMS", "ADDITIONAL"}

// MediaUpload is one file headed for a location's gallery.
type MediaUpload struct {
	LocationID  string `json:"location_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Category    string `json:"category"`
	Size        int64  `json:"size"`
	Body        io.Reader
}

func (in MediaUpload) validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.LocationID, validation.Required, is.UUID),
		validation.Field(&in.Filename, validation.Required),
		validation.Field(&in.ContentType, validation.Required, validation.In("image/jpeg", "image/png", "video/mp4")),
		validation.Field(&in.Category, validation.In(mediaCategories...)),
		validation.Field(&in.Size, validation.Required, validation.Max(int64(MaxUploadBytes))),
	)
}

// UploadMedia stores the file in Supabase Storage and registers its public
// URL with Google. The stored object is removed if Google rejects it.
func (s *Service) UploadMedia(ctx context.Context, userID string, in MediaUpload) (*db.GMBMedia, error) {
	if in.Category == "" {
		in.Category = "ADDITIONAL"
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	t, err := s.resolve(ctx, userID, in.LocationID)
	if err != nil {
		return nil, err
	}

	objectPath := storage.ObjectPath(userID, t.location.ID, in.Filename)
	publicURL, err := s.media.Upload(ctx, objectPath, in.ContentType, in.Body)
	if err != nil {
		return nil, err
	}

	item := gbpapi.MediaItem{MediaFormat: mediaFormats[in.ContentType], SourceURL: publicURL}
	item.LocationAssociation.Category = in.Category
	created, err := s.gbp.CreateMedia(ctx, t.token, t.account.AccountName, t.location.LocationName, item)
	if err != nil {
		if rmErr := s.media.Remove(ctx, objectPath); rmErr != nil {
			log.Printf("[gmb] remove orphaned upload %s: %v", objectPath, rmErr)
		}
		return nil, errors.Wrap(err, "register media")
	}

	row := mediaFromAPI(userID, t.location.ID, *created)
	row.StoragePath = objectPath
	if row.MediaFormat == "" {
		row.MediaFormat = item.MediaFormat
	}
	if row.Category == "" {
		row.Category = in.Category
	}
	if row.CreateTime.IsZero() {
		row.CreateTime = s.now().Truncate(time.Second)
	}
	if err := s.store.CreateMedia(&row); err != nil {
		return nil, err
	}
	s.activity(userID, "media_uploaded", "Uploaded "+in.Filename+" to "+t.location.Title, map[string]any{"media_id": row.ID})
	return &row, nil
}
