package images

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/manzil-bh/manzil-backend/internal/db"
	"github.com/manzil-bh/manzil-backend/internal/listing"
	"github.com/manzil-bh/manzil-backend/internal/logging"
)

type Limits struct {
	MaxFileBytes int64
	MaxFiles     int
	AllowedTypes []string
}

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

type Service struct {
	store   Store
	objects ObjectStore
	baseURL string
	limits  Limits
	newKey  func() string
}

// NewService serves object URLs under baseURL + "/media/".
func NewService(store Store, objects ObjectStore, baseURL string, limits Limits) *Service {
	return &Service{
		store:   store,
		objects: objects,
		baseURL: strings.TrimRight(baseURL, "/"),
		limits:  limits,
		newKey:  uuid.NewString,
	}
}

func (s *Service) checkOwner(ctx context.Context, firmID string, listingID int64) error {
	ok, err := s.store.OwnsListing(ctx, firmID, listingID)
	if err != nil {
		return err
	}
	if !ok {
		return db.ErrNotFound
	}
	return nil
}

// Upload stores files one at a time, in order. Files accepted before a
// failure stay attached.
func (s *Service) Upload(ctx context.Context, firmID string, listingID int64, files []*multipart.FileHeader) ([]Image, error) {
	if len(files) == 0 {
		return nil, &listing.ValidationError{Field: "images", Msg: "no files in upload"}
	}
	if s.limits.MaxFiles > 0 && len(files) > s.limits.MaxFiles {
		return nil, &listing.ValidationError{Field: "images", Msg: fmt.Sprintf("at most %d files per upload", s.limits.MaxFiles)}
	}
	if err := s.checkOwner(ctx, firmID, listingID); err != nil {
		return nil, err
	}

	out := make([]Image, 0, len(files))
	for _, fh := range files {
		img, err := s.uploadOne(ctx, listingID, fh)
		if err != nil {
			return out, err
		}
		out = append(out, *img)
	}
	return out, nil
}

func (s *Service) uploadOne(ctx context.Context, listingID int64, fh *multipart.FileHeader) (*Image, error) {
	if s.limits.MaxFileBytes > 0 && fh.Size > s.limits.MaxFileBytes {
		return nil, &listing.ValidationError{Field: "images", Msg: fmt.Sprintf("%s exceeds %d bytes", fh.Filename, s.limits.MaxFileBytes)}
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, 512)
	head, _ := br.Peek(512)
	ct := http.DetectContentType(head)
	if !slices.Contains(s.limits.AllowedTypes, ct) {
		return nil, &listing.ValidationError{Field: "images", Msg: fmt.Sprintf("%s: type %s is not allowed", fh.Filename, ct)}
	}

	key := s.newKey() + extensions[ct]
	filename := path.Base(strings.ReplaceAll(fh.Filename, `\`, "/"))
	if err := s.objects.Put(ctx, key, filename, ct, br); err != nil {
		return nil, err
	}

	img := &Image{
		FirmPropertyID: listingID,
		ObjectKey:      key,
		Filename:       filename,
		ContentType:    ct,
		SizeBytes:      fh.Size,
		URL:            s.baseURL + "/media/" + key,
	}
	if err := s.store.Insert(ctx, img); err != nil {
		if derr := s.objects.Delete(context.WithoutCancel(ctx), key); derr != nil {
			logging.FromContext(ctx).Warn("removing object after failed insert", "key", key, logging.Err(derr))
		}
		return nil, err
	}
	return img, nil
}

func (s *Service) List(ctx context.Context, firmID string, listingID int64) ([]Image, error) {
	if err := s.checkOwner(ctx, firmID, listingID); err != nil {
		return nil, err
	}
	return s.store.ListForListing(ctx, listingID)
}

// ListPublic returns the images of a listing without an ownership check.
// Callers must only pass listings that are publicly visible.
func (s *Service) ListPublic(ctx context.Context, listingID int64) ([]Image, error) {
	return s.store.ListForListing(ctx, listingID)
}

func (s *Service) Delete(ctx context.Context, firmID string, listingID, imageID int64) (*Image, error) {
	if err := s.checkOwner(ctx, firmID, listingID); err != nil {
		return nil, err
	}
	img, err := s.store.Delete(ctx, listingID, imageID)
	if err != nil {
		return nil, err
	}
	if err := s.objects.Delete(ctx, img.ObjectKey); err != nil {
		logging.FromContext(ctx).Warn("deleting image object", "key", img.ObjectKey, logging.Err(err))
	}
	return img, nil
}

// PurgeListing drops every image of a listing that no longer exists.
func (s *Service) PurgeListing(ctx context.Context, listingID int64) error {
	rows, err := s.store.DeleteForListing(ctx, listingID)
	if err != nil {
		return err
	}
	return s.deleteObjects(ctx, rows)
}

// PurgeOrphans removes images whose listing was deleted without a
// successful PurgeListing.
func (s *Service) PurgeOrphans(ctx context.Context) (int, error) {
	rows, err := s.store.DeleteOrphans(ctx)
	if err != nil {
		return 0, err
	}
	return len(rows), s.deleteObjects(ctx, rows)
}

func (s *Service) deleteObjects(ctx context.Context, rows []Image) error {
	var errs []error
	for _, img := range rows {
		if err := s.objects.Delete(ctx, img.ObjectKey); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) Open(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	return s.objects.Open(ctx, key)
}
