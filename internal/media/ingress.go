// Package media accepts uploaded files into the blob store, streams them back
// and reclaims blobs no record points at.
package media

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/otogram/backend/internal/logging"
	"github.com/otogram/backend/internal/metrics"
	"github.com/otogram/backend/internal/storage"
)

// Kind describes what an upload field accepts.
type Kind struct {
	Name       string
	MaxBytes   int64
	MIMEPrefix string
	URLPrefix  string
}

var (
	// Image accepts pictures up to 5 MB, served from /files/images/.
	Image = Kind{Name: "image", MaxBytes: 5 << 20, MIMEPrefix: "image/", URLPrefix: "/files/images/"}
	// Video accepts clips up to 100 MB, served from /files/videos/.
	Video = Kind{Name: "video", MaxBytes: 100 << 20, MIMEPrefix: "video/", URLPrefix: "/files/videos/"}
)

// maxFieldBytes bounds non-file form values.
const maxFieldBytes = 16 << 10

// StoredFile is a blob written by the ingress.
type StoredFile struct {
	FileID      string `json:"fileId"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// Upload is the result of receiving one multipart request.
type Upload struct {
	Files  map[string]StoredFile
	Fields map[string]string
}

// File returns the stored file for a form field.
func (u Upload) File(field string) (StoredFile, bool) {
	f, ok := u.Files[field]
	return f, ok
}

// Ingress moves uploaded files into a blob store.
type Ingress struct {
	store storage.Backend

	NewID func() string
}

// NewIngress constructs an Ingress writing to store.
func NewIngress(store storage.Backend) *Ingress {
	return &Ingress{store: store}
}

func (in *Ingress) newID() string {
	if in.NewID != nil {
		return in.NewID()
	}
	return uuid.NewString()
}

// Save stores one file of the given kind and content type.
func (in *Ingress) Save(ctx context.Context, kind Kind, contentType string, r io.Reader) (StoredFile, error) {
	buffered := bufio.NewReaderSize(r, 512)
	contentType = resolveContentType(contentType, buffered)
	if !strings.HasPrefix(contentType, kind.MIMEPrefix) {
		metrics.RecordUpload(kind.Name, 0, ErrUnsupportedMediaType)
		return StoredFile{}, fmt.Errorf("%w: %s files must be %s*, got %s", ErrUnsupportedMediaType, kind.Name, kind.MIMEPrefix, contentType)
	}

	id := in.newID()
	limited := &limitedReader{r: buffered, remaining: kind.MaxBytes}
	size, err := in.store.Put(ctx, id, contentType, limited)
	metrics.RecordUpload(kind.Name, size, err)
	if err != nil {
		if limited.exceeded {
			return StoredFile{}, fmt.Errorf("%w: %s files are limited to %d MB", ErrPayloadTooLarge, kind.Name, kind.MaxBytes>>20)
		}
		return StoredFile{}, fmt.Errorf("store %s: %w", kind.Name, err)
	}

	return StoredFile{
		FileID:      id,
		URL:         kind.URLPrefix + id,
		ContentType: contentType,
		Size:        size,
	}, nil
}

// Receive streams a multipart body, storing each file part named in kinds and
// collecting the other form values. Unexpected file parts are discarded. On
// error, files stored so far are removed again.
func (in *Ingress) Receive(r *http.Request, kinds map[string]Kind) (Upload, error) {
	ctx := r.Context()
	upload := Upload{Files: map[string]StoredFile{}, Fields: map[string]string{}}

	reader, err := r.MultipartReader()
	if err != nil {
		return Upload{}, ErrNotMultipart
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			in.Discard(ctx, upload)
			return Upload{}, fmt.Errorf("%w: %w", ErrMalformedUpload, err)
		}

		name := part.FormName()
		if part.FileName() == "" {
			value, err := io.ReadAll(io.LimitReader(part, maxFieldBytes))
			part.Close()
			if err != nil {
				in.Discard(ctx, upload)
				return Upload{}, fmt.Errorf("%w: %w", ErrMalformedUpload, err)
			}
			upload.Fields[name] = string(value)
			continue
		}

		kind, wanted := kinds[name]
		if _, dup := upload.Files[name]; !wanted || dup {
			_, _ = io.Copy(io.Discard, part)
			part.Close()
			continue
		}

		stored, err := in.Save(ctx, kind, part.Header.Get("Content-Type"), part)
		part.Close()
		if err != nil {
			in.Discard(ctx, upload)
			return Upload{}, err
		}
		upload.Files[name] = stored
	}

	return upload, nil
}

// Discard removes every file of an upload, logging failures.
func (in *Ingress) Discard(ctx context.Context, upload Upload) {
	for _, f := range upload.Files {
		in.Remove(ctx, f.FileID)
	}
}

// Remove deletes a blob best effort. A missing blob is not an error.
func (in *Ingress) Remove(ctx context.Context, fileID string) {
	if fileID == "" {
		return
	}
	if err := in.store.Delete(ctx, fileID); err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
		logging.FromContext(ctx).Warn("remove blob", slog.String("file_id", fileID), slog.Any("error", err))
	}
}

// Delete removes a blob, reporting a missing blob as ErrFileNotFound.
func (in *Ingress) Delete(ctx context.Context, fileID string) error {
	if err := in.store.Delete(ctx, fileID); err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			return ErrFileNotFound
		}
		return fmt.Errorf("delete blob %s: %w", fileID, err)
	}
	return nil
}

// Open returns a stored blob for streaming. Callers close the body.
func (in *Ingress) Open(ctx context.Context, fileID string) (storage.Object, error) {
	obj, err := in.store.Get(ctx, fileID)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			return storage.Object{}, ErrFileNotFound
		}
		return storage.Object{}, fmt.Errorf("open blob %s: %w", fileID, err)
	}
	return obj, nil
}

func resolveContentType(declared string, r *bufio.Reader) string {
	if mediaType, _, err := mime.ParseMediaType(declared); err == nil && mediaType != "application/octet-stream" {
		return strings.ToLower(mediaType)
	}
	head, _ := r.Peek(512)
	mediaType, _, _ := mime.ParseMediaType(http.DetectContentType(head))
	return mediaType
}

// limitedReader fails once more than remaining bytes are read.
type limitedReader struct {
	r         io.Reader
	remaining int64
	exceeded  bool
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		l.exceeded = true
		return 0, ErrPayloadTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		l.exceeded = true
		return n, ErrPayloadTooLarge
	}
	return n, err
}
