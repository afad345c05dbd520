package services

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/dmitrijs2005/certkeeper/internal/common"
	"github.com/dmitrijs2005/certkeeper/internal/compositor"
	"github.com/dmitrijs2005/certkeeper/internal/logging"
	"github.com/dmitrijs2005/certkeeper/internal/server/objectstore"
)

// UploadURLTTL is how long a presigned template upload stays valid.
const UploadURLTTL = 15 * time.Minute

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".bmp": true, ".tif": true, ".tiff": true,
}

// UploadURL is where a client should PUT a template image, and the
// imagePath to reference it by afterwards.
type UploadURL struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// TemplateService manages template images in the object store.
type TemplateService struct {
	store objectstore.Store
	log   logging.Logger
	now   func() time.Time
}

func NewTemplateService(store objectstore.Store, log logging.Logger) *TemplateService {
	if log == nil {
		log = logging.Discard()
	}
	return &TemplateService{store: store, log: log.With("module", "templates"), now: time.Now}
}

// UploadURL hands out a presigned PUT for a new template key. fileName only
// contributes its extension. Stores that cannot presign yield
// objectstore.ErrPresignUnsupported; use Upload instead.
func (s *TemplateService) UploadURL(ctx context.Context, fileName string) (*UploadURL, error) {
	ext := strings.ToLower(path.Ext(fileName))
	if ext != "" && !imageExts[ext] {
		return nil, common.NewValidationError(fmt.Sprintf("unsupported image extension %q", ext))
	}

	p, ok := s.store.(objectstore.Presigner)
	if !ok {
		return nil, objectstore.ErrPresignUnsupported
	}

	now := s.now()
	key := objectstore.NewTemplateKey(now, ext)
	url, err := p.PresignPut(ctx, key, UploadURLTTL)
	if err != nil {
		return nil, fmt.Errorf("presign %s: %w", key, err)
	}
	return &UploadURL{Key: key, URL: url, ExpiresAt: now.Add(UploadURLTTL)}, nil
}

// Upload stores image bytes directly and returns the new key. The bytes must
// decode as a template image.
func (s *TemplateService) Upload(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", common.NewValidationError("image is empty")
	}
	if len(data) > objectstore.MaxTemplateSize {
		return "", common.NewValidationError(fmt.Sprintf("image exceeds %d bytes", objectstore.MaxTemplateSize))
	}
	t, err := compositor.Load(data)
	if err != nil {
		if errors.Is(err, compositor.ErrTemplateLoad) {
			return "", common.NewValidationError("image could not be decoded")
		}
		return "", err
	}

	ext := "." + t.Format()
	key := objectstore.NewTemplateKey(s.now(), ext)
	if err := s.store.Put(ctx, key, data, mime.TypeByExtension(ext)); err != nil {
		return "", fmt.Errorf("store template: %w", err)
	}
	s.log.Info(ctx, "template uploaded", "key", key, "bytes", len(data))
	return key, nil
}
