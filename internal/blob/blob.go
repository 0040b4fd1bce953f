// Package blob stores receipt images and hands back a URL for them.
package blob

import (
	"context"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MaxSize is the largest accepted receipt, in bytes.
const MaxSize = 5 * 1024 * 1024

// image/jpg is accepted on input and folded into image/jpeg by NormalizeType.
var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

const (
	CodeMissingFile   = "missing_file"
	CodeInvalidType   = "invalid_type"
	CodeTooLarge      = "too_large"
	CodeStorageFailed = "upload_failed"
)

// UploadError is the only error class the blob store returns. Client-side
// codes map to 400; CodeStorageFailed maps to 500 and is the only one retried.
type UploadError struct {
	Code    string
	Message string
	Err     error
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *UploadError) Unwrap() error { return e.Err }

func (e *UploadError) Temporary() bool { return e.Code == CodeStorageFailed }

// TooLarge reports a receipt over MaxSize. cause is set when the transport
// cut the body off before the file could be read in full.
func TooLarge(cause error) *UploadError {
	return &UploadError{Code: CodeTooLarge, Message: "file must be 5MB or smaller", Err: cause}
}

// Upload is a file received from a client. Data holds the full body; the
// size cap keeps that bounded.
type Upload struct {
	FileName    string
	ContentType string
	Size        int64
	Data        []byte
}

// Stored describes a persisted receipt, shaped like the upload response.
type Stored struct {
	URL      string `json:"url"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	FileType string `json:"fileType"`
}

// Store persists a validated upload. Implementations return *UploadError.
type Store interface {
	Put(ctx context.Context, u Upload) (Stored, error)
}

// NormalizeType lowercases a declared content type, drops parameters and
// folds image/jpg into image/jpeg.
func NormalizeType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "image/jpg" {
		return "image/jpeg"
	}
	return ct
}

// Validate checks presence, declared type, size and that the bytes look like
// the declared type, in that order.
func Validate(u *Upload) error {
	if u == nil || (u.FileName == "" && len(u.Data) == 0) {
		return &UploadError{Code: CodeMissingFile, Message: "no file was provided"}
	}

	declared := NormalizeType(u.ContentType)
	if !allowedTypes[declared] {
		return &UploadError{Code: CodeInvalidType, Message: "only image files can be uploaded"}
	}

	size := u.Size
	if n := int64(len(u.Data)); n > size {
		size = n
	}
	if size > MaxSize {
		return TooLarge(nil)
	}

	if !mimetype.Detect(u.Data).Is(declared) {
		return &UploadError{Code: CodeInvalidType, Message: "file content does not match its type"}
	}

	u.Size = size
	return nil
}
