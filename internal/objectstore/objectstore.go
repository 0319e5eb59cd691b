// Package objectstore uploads capture images and returns their public URLs.
package objectstore

import (
	"context"
	"errors"
)

// ContentTypeJPEG is the content type of every capture.
const ContentTypeJPEG = "image/jpeg"

// ErrEmptyObject is returned when asked to upload zero bytes.
var ErrEmptyObject = errors.New("objectstore: empty object")

// Uploader stores an object under key and returns a URL it can be read from.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
