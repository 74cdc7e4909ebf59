package media

import "errors"

var (
	// ErrPayloadTooLarge indicates an uploaded file exceeds its kind's size limit.
	ErrPayloadTooLarge = errors.New("file too large")
	// ErrUnsupportedMediaType indicates an uploaded file's MIME type is not allowed for its kind.
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	// ErrNotMultipart indicates the request body is not multipart/form-data.
	ErrNotMultipart = errors.New("expected multipart/form-data body")
	// ErrMalformedUpload indicates the multipart body could not be parsed.
	ErrMalformedUpload = errors.New("malformed upload")
	// ErrFileNotFound indicates a requested file id has no stored blob.
	ErrFileNotFound = errors.New("file not found")
)
