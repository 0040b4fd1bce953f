package blob

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// DefaultURLPrefix is where the HTTP layer serves stored receipts.
const DefaultURLPrefix = "/uploads/receipts"

// LocalStore writes receipts to a directory on disk.
type LocalStore struct {
	dir       string
	urlPrefix string
	now       func() time.Time
}

func NewLocalStore(dir, urlPrefix string) *LocalStore {
	if urlPrefix == "" {
		urlPrefix = DefaultURLPrefix
	}
	return &LocalStore{
		dir:       dir,
		urlPrefix: strings.TrimRight(urlPrefix, "/"),
		now:       time.Now,
	}
}

func (s *LocalStore) Dir() string { return s.dir }

func (s *LocalStore) Put(ctx context.Context, u Upload) (Stored, error) {
	if err := Validate(&u); err != nil {
		return Stored{}, err
	}
	if err := ctx.Err(); err != nil {
		return Stored{}, storageErr(err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Stored{}, storageErr(err)
	}

	name := s.fileName(u)

	// write to a temp file first so a half-written receipt is never served
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return Stored{}, storageErr(err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(u.Data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return Stored{}, storageErr(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return Stored{}, storageErr(err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		_ = os.Remove(tmpName)
		return Stored{}, storageErr(err)
	}

	return Stored{
		URL:      path.Join(s.urlPrefix, name),
		FileName: name,
		FileSize: u.Size,
		FileType: strings.ToLower(strings.TrimSpace(u.ContentType)),
	}, nil
}

// fileName builds receipt_<unix millis>_<random><ext>. The extension comes
// from the client's file name, else from the content type.
func (s *LocalStore) fileName(u Upload) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(u.FileName)))
	if !safeExt(ext) {
		ext = ""
	}
	if ext == "" {
		if m := mimetype.Lookup(NormalizeType(u.ContentType)); m != nil {
			ext = m.Extension()
		}
	}

	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:13]
	return fmt.Sprintf("receipt_%d_%s%s", s.now().UnixMilli(), random, ext)
}

func safeExt(ext string) bool {
	if len(ext) < 2 || len(ext) > 6 {
		return false
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func storageErr(err error) *UploadError {
	return &UploadError{Code: CodeStorageFailed, Message: "file upload failed", Err: err}
}
