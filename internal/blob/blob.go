// Package blob stores product attachments in an object store.
//
// Objects are addressed by a path and a name. For a product the path is Path(namespace, productID)
// and the name is FileName(originalName); both are part of the storage contract and must stay stable
// for existing objects to remain reachable.
package blob

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/google/uuid"
)

// ErrObjectNotFound is returned by Store.Get when nothing is stored under the key.
var ErrObjectNotFound = errors.New("object not found")

// fileNamePrefix is prepended to the original file name of every stored attachment.
const fileNamePrefix = "product-"

// File is an uploaded attachment.
type File struct {
	// Name is the original file name as sent by the client.
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Store writes and reads objects. Writes overwrite any existing object under the same key.
type Store interface {
	Put(ctx context.Context, path, name string, metadata map[string]string, body io.Reader, size int64) error
	Get(ctx context.Context, path, name string) ([]byte, error)
	Delete(ctx context.Context, path, name string) error
}

// Path returns the storage path of a product's attachments: {namespace}/{productID}.
func Path(namespace string, productID uuid.UUID) string {
	return strings.TrimSuffix(namespace, "/") + "/" + productID.String()
}

// FileName returns the stored object name for an uploaded file name.
func FileName(originalName string) string {
	return fileNamePrefix + originalName
}
