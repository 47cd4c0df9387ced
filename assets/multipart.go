package assets

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/user/quill-go/apperror"
)

// formOverhead is the room left for text fields and multipart framing on top of the file limit.
const formOverhead = 1 << 20

// maxFormMemory is how much of a multipart body is kept in memory before spilling to disk.
const maxFormMemory = 8 << 20

// IsMultipart reports whether r carries a multipart/form-data body.
func IsMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// ParseForm parses a multipart body whose file part may be up to c.MaxBytes.
// A body that exceeds the limit is PayloadTooLarge; anything unparsable is BadRequest.
// Callers should `defer CleanupForm(r)`.
func ParseForm(w http.ResponseWriter, r *http.Request, c Constraints) error {
	r.Body = http.MaxBytesReader(w, r.Body, c.MaxBytes+formOverhead)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperror.NewPayloadTooLargeError(c.TooLargeMessage, err)
		}
		return apperror.NewBadRequestError("Invalid form data.", err)
	}
	return nil
}

// CleanupForm removes temporary files left by ParseForm.
func CleanupForm(r *http.Request) {
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}

// FormUpload returns the file sent in field, or nil when the field is absent.
// The caller closes the returned upload.
func FormUpload(r *http.Request, field string) (*Upload, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, apperror.NewBadRequestError("Invalid file upload.", err)
	}
	return &Upload{Filename: header.Filename, Size: header.Size, Content: file}, nil
}

// Close releases the upload's content if it holds an open file.
func (u *Upload) Close() error {
	if u == nil {
		return nil
	}
	if c, ok := u.Content.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
