package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/santiscally/grafica-los-rumbos/internal/platform/storage"
	"github.com/santiscally/grafica-los-rumbos/internal/repositories"
)

var (
	// ErrAttachmentNotFound indicates the referenced attachment does not exist.
	ErrAttachmentNotFound = errors.New("attachment: not found")
	// ErrAttachmentInvalid indicates an unsupported file or malformed reference.
	ErrAttachmentInvalid = errors.New("attachment: invalid")
	// ErrAttachmentTooLarge indicates the upload exceeds the size limit for its purpose.
	ErrAttachmentTooLarge = errors.New("attachment: too large")
	// ErrAttachmentStorage indicates the object store failed.
	ErrAttachmentStorage = errors.New("attachment: storage unavailable")
)

const (
	// DefaultMaxOrderFileBytes caps files attached to orders.
	DefaultMaxOrderFileBytes int64 = 10 << 20
	// DefaultMaxProductImageBytes caps product images.
	DefaultMaxProductImageBytes int64 = 5 << 20
	// DefaultUploadTTL is how long an uncommitted upload survives the sweeper.
	DefaultUploadTTL = time.Hour
)

var (
	imageExtensions = map[string]struct{}{
		".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {},
	}
	documentExtensions = map[string]struct{}{
		".pdf": {}, ".doc": {}, ".docx": {},
	}
)

// AttachmentServiceDeps bundles collaborators required to construct the attachment service.
type AttachmentServiceDeps struct {
	Store                repositories.AttachmentStore
	MaxOrderFileBytes    int64
	MaxProductImageBytes int64
	Clock                func() time.Time
	IDGenerator          func(prefix string) string
	Logger               Logger
}

type attachmentService struct {
	store    repositories.AttachmentStore
	maxFile  int64
	maxImage int64
	clock    func() time.Time
	newID    func(prefix string) string
	logger   Logger
}

var _ AttachmentService = (*attachmentService)(nil)

// NewAttachmentService constructs the attachment service on top of an object store.
func NewAttachmentService(deps AttachmentServiceDeps) (AttachmentService, error) {
	if deps.Store == nil {
		return nil, errors.New("attachment service: store is required")
	}
	maxFile := deps.MaxOrderFileBytes
	if maxFile <= 0 {
		maxFile = DefaultMaxOrderFileBytes
	}
	maxImage := deps.MaxProductImageBytes
	if maxImage <= 0 {
		maxImage = DefaultMaxProductImageBytes
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = newID
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &attachmentService{
		store:    deps.Store,
		maxFile:  maxFile,
		maxImage: maxImage,
		clock:    func() time.Time { return clock().UTC() },
		newID:    idGen,
		logger:   logger,
	}, nil
}

func (s *attachmentService) Store(ctx context.Context, upload AttachmentUpload) (Attachment, error) {
	name, ext, err := cleanFilename(upload.Filename)
	if err != nil {
		return Attachment{}, err
	}
	if !allowedExtension(ext, false) {
		return Attachment{}, fmt.Errorf("%w: file type %q is not allowed", ErrAttachmentInvalid, ext)
	}
	key, err := storage.BuildObjectPath(storage.PurposeUpload, storage.PathParams{
		UploadID: s.newID(""),
		FileName: name,
	})
	if err != nil {
		return Attachment{}, fmt.Errorf("%w: %v", ErrAttachmentInvalid, err)
	}
	return s.put(ctx, key, name, upload, s.maxFile)
}

func (s *attachmentService) StoreProductImage(ctx context.Context, productID string, upload AttachmentUpload) (Attachment, error) {
	name, ext, err := cleanFilename(upload.Filename)
	if err != nil {
		return Attachment{}, err
	}
	if !allowedExtension(ext, true) {
		return Attachment{}, fmt.Errorf("%w: product images must be jpg, png, gif or webp", ErrAttachmentInvalid)
	}
	key, err := storage.BuildObjectPath(storage.PurposeProductImage, storage.PathParams{
		ProductID: productID,
		FileName:  name,
	})
	if err != nil {
		return Attachment{}, fmt.Errorf("%w: %v", ErrAttachmentInvalid, err)
	}
	return s.put(ctx, key, name, upload, s.maxImage)
}

func (s *attachmentService) put(ctx context.Context, key, name string, upload AttachmentUpload, limit int64) (Attachment, error) {
	if upload.Body == nil {
		return Attachment{}, fmt.Errorf("%w: empty upload", ErrAttachmentInvalid)
	}
	if upload.Size > limit {
		return Attachment{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrAttachmentTooLarge, upload.Size, limit)
	}

	body := &cappedReader{r: upload.Body, remaining: limit}
	info, err := s.store.Put(ctx, key, body, storage.ContentTypeFor(key))
	if err != nil {
		if errors.Is(err, errUploadTooLarge) {
			return Attachment{}, fmt.Errorf("%w: more than %d bytes", ErrAttachmentTooLarge, limit)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Attachment{}, err
		}
		s.logger(ctx, "attachment.store_failed", map[string]any{"key": key, "error": err})
		return Attachment{}, fmt.Errorf("%w: %v", ErrAttachmentStorage, err)
	}

	created := info.UpdatedAt
	if created.IsZero() {
		created = s.clock()
	}
	return Attachment{
		Ref:         info.Key,
		Filename:    name,
		ContentType: info.ContentType,
		Size:        info.Size,
		CreatedAt:   created,
	}, nil
}

func (s *attachmentService) Retrieve(ctx context.Context, ref string) (AttachmentContent, error) {
	ref = strings.TrimSpace(ref)
	if err := storage.ValidateKey(ref); err != nil {
		return AttachmentContent{}, fmt.Errorf("%w: %v", ErrAttachmentInvalid, err)
	}
	body, info, err := s.store.Open(ctx, ref)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return AttachmentContent{}, fmt.Errorf("%w: %s", ErrAttachmentNotFound, ref)
		}
		return AttachmentContent{}, fmt.Errorf("%w: %v", ErrAttachmentStorage, err)
	}
	contentType := info.ContentType
	if contentType == "" {
		contentType = storage.ContentTypeFor(ref)
	}
	return AttachmentContent{
		Attachment: Attachment{
			Ref:         ref,
			Filename:    displayName(ref),
			ContentType: contentType,
			Size:        info.Size,
			CreatedAt:   info.UpdatedAt,
		},
		Body: body,
	}, nil
}

func (s *attachmentService) Delete(ctx context.Context, ref string) error {
	ref = strings.TrimSpace(ref)
	if err := storage.ValidateKey(ref); err != nil {
		return fmt.Errorf("%w: %v", ErrAttachmentInvalid, err)
	}
	if err := s.store.Delete(ctx, ref); err != nil {
		return fmt.Errorf("%w: %v", ErrAttachmentStorage, err)
	}
	return nil
}

// CommitToOrder copies temp uploads under the order prefix. On failure every copy made so far is
// removed, leaving the temp uploads for the sweeper.
func (s *attachmentService) CommitToOrder(ctx context.Context, orderID string, refs []string) ([]OrderFile, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	prefix, err := storage.OrderPrefix(orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAttachmentInvalid, err)
	}

	committed := make([]OrderFile, 0, len(refs))
	rollback := func() {
		for _, file := range committed {
			if delErr := s.store.Delete(context.WithoutCancel(ctx), file.Ref); delErr != nil {
				s.logger(ctx, "attachment.rollback_failed", map[string]any{"key": file.Ref, "error": delErr})
			}
		}
	}

	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}

		uploadID, fileName, err := parseTempRef(ref)
		if err != nil {
			rollback()
			return nil, err
		}
		dst, err := storage.BuildObjectPath(storage.PurposeOrderFile, storage.PathParams{
			OrderID:  orderID,
			UploadID: uploadID,
			FileName: fileName,
		})
		if err != nil {
			rollback()
			return nil, fmt.Errorf("%w: %v", ErrAttachmentInvalid, err)
		}
		if err := s.store.Copy(ctx, ref, dst); err != nil {
			rollback()
			if errors.Is(err, storage.ErrObjectNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrAttachmentNotFound, ref)
			}
			return nil, fmt.Errorf("%w: commit %s: %v", ErrAttachmentStorage, ref, err)
		}
		committed = append(committed, OrderFile{
			Ref:         dst,
			Filename:    fileName,
			ContentType: storage.ContentTypeFor(dst),
			UploadedAt:  s.clock(),
		})
	}

	infos, err := s.store.List(ctx, prefix)
	if err != nil {
		s.logger(ctx, "attachment.list_failed", map[string]any{"orderId": orderID, "error": err})
		return committed, nil
	}
	sizes := make(map[string]int64, len(infos))
	for _, info := range infos {
		sizes[info.Key] = info.Size
	}
	for i := range committed {
		committed[i].Size = sizes[committed[i].Ref]
	}
	return committed, nil
}

// SweepStaleUploads deletes temp uploads older than maxAge and reports how many were removed.
func (s *attachmentService) SweepStaleUploads(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = DefaultUploadTTL
	}
	infos, err := s.store.List(ctx, storage.TempPrefix)
	if err != nil {
		return 0, fmt.Errorf("%w: list uploads: %v", ErrAttachmentStorage, err)
	}
	cutoff := s.clock().Add(-maxAge)
	removed := 0
	for _, info := range infos {
		if !info.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if err := s.store.Delete(ctx, info.Key); err != nil {
			s.logger(ctx, "attachment.sweep_delete_failed", map[string]any{"key": info.Key, "error": err})
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger(ctx, "attachment.sweep_completed", map[string]any{"removed": removed, "cutoff": cutoff})
	}
	return removed, nil
}

func parseTempRef(ref string) (uploadID, fileName string, err error) {
	if err := storage.ValidateKey(ref); err != nil || !storage.IsTempPath(ref) {
		return "", "", fmt.Errorf("%w: %q is not an upload reference", ErrAttachmentInvalid, ref)
	}
	parts := strings.Split(strings.TrimPrefix(ref, storage.TempPrefix), "/")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: %q is not an upload reference", ErrAttachmentInvalid, ref)
	}
	return parts[0], parts[1], nil
}

// cleanFilename keeps the base name and replaces characters outside [A-Za-z0-9._-].
func cleanFilename(raw string) (name, ext string, err error) {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(raw), "\\", "/"))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name = strings.TrimLeft(b.String(), ".")
	name = strings.ReplaceAll(name, "..", ".")
	ext = strings.ToLower(path.Ext(name))
	if name == "" || ext == "" || name == ext {
		return "", "", fmt.Errorf("%w: filename %q", ErrAttachmentInvalid, raw)
	}
	return name, ext, nil
}

func allowedExtension(ext string, imagesOnly bool) bool {
	if _, ok := imageExtensions[ext]; ok {
		return true
	}
	if imagesOnly {
		return false
	}
	_, ok := documentExtensions[ext]
	return ok
}

// displayName strips the upload id prefix from committed order file keys.
func displayName(key string) string {
	base := storage.BaseName(key)
	if strings.HasPrefix(key, "orders/") {
		if idx := strings.Index(base, "-"); idx > 0 {
			return base[idx+1:]
		}
	}
	return base
}

var errUploadTooLarge = errors.New("upload exceeds size limit")

// cappedReader fails once more than remaining bytes have been read.
type cappedReader struct {
	r         io.Reader
	remaining int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.remaining < 0 {
		return 0, errUploadTooLarge
	}
	if int64(len(p)) > c.remaining+1 {
		p = p[:c.remaining+1]
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	if c.remaining < 0 {
		return n, errUploadTooLarge
	}
	return n, err
}
