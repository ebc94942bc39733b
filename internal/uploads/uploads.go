// Package uploads stores the files attached to a registration.
package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/gabriel-vasile/mimetype"
)

// Kind describes one upload field and the content it accepts.
type Kind struct {
	Field   string
	Allowed []string
	Message string
}

var (
	Photo = Kind{
		Field:   "photo",
		Allowed: []string{"image/jpeg", "image/png"},
		Message: "Photo must be JPG or PNG format",
	}
	BirthCertificate = Kind{
		Field:   "birthCertificate",
		Allowed: []string{"application/pdf", "image/jpeg", "image/png"},
		Message: "Birth certificate must be PDF, JPG, or PNG",
	}
)

// ErrNotFound is returned by Open for an unknown reference.
var ErrNotFound = errors.New("upload not found")

// RejectedError reports an upload refused because of its size or content.
type RejectedError struct {
	Field   string
	Message string
}

func (e *RejectedError) Error() string {
	return e.Field + ": " + e.Message
}

// File is an accepted upload held in memory.
type File struct {
	Kind      Kind
	Data      []byte
	MIME      string
	Extension string
}

// Store persists accepted files and returns a reference to keep on the record.
type Store interface {
	Save(ctx context.Context, f File) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Remove(ctx context.Context, ref string) error
}

// Read loads fh, enforcing maxBytes and sniffing the content type from the bytes
// rather than trusting the client-supplied header.
func Read(fh *multipart.FileHeader, kind Kind, maxBytes int64) (File, error) {
	if fh.Size > maxBytes {
		return File{}, &RejectedError{Field: kind.Field, Message: tooLarge(maxBytes)}
	}
	src, err := fh.Open()
	if err != nil {
		return File{}, fmt.Errorf("open %s: %w", kind.Field, err)
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxBytes+1))
	if err != nil {
		return File{}, fmt.Errorf("read %s: %w", kind.Field, err)
	}
	if int64(len(data)) > maxBytes {
		return File{}, &RejectedError{Field: kind.Field, Message: tooLarge(maxBytes)}
	}

	mt := mimetype.Detect(data)
	if !mimetype.EqualsAny(mt.String(), kind.Allowed...) {
		return File{}, &RejectedError{Field: kind.Field, Message: kind.Message}
	}
	return File{Kind: kind, Data: data, MIME: mt.String(), Extension: mt.Extension()}, nil
}

func tooLarge(maxBytes int64) string {
	return fmt.Sprintf("File exceeds the %d KiB limit", maxBytes>>10)
}
