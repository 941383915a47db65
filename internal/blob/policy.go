package blob

import (
	"fmt"
	"mime"
	"slices"
	"strconv"
	"strings"

	perrors "github.com/abgdnv/catalog/internal/errors"
)

// Metadata keys attached to stored objects.
const (
	MetaOriginalName  = "original-name"
	MetaContentType   = "content-type"
	MetaContentLength = "content-length"
)

// Policy decides which uploads are acceptable as attachments.
type Policy struct {
	// MaxSize is the largest accepted file in bytes; zero disables the limit.
	MaxSize int64
	// AllowedContentTypes lists accepted media types; empty accepts any type.
	AllowedContentTypes []string
}

// Validate returns an error wrapping ErrInvalidAttachment when the file is empty, too large,
// of a disallowed content type or carries an unusable name.
func (p Policy) Validate(file File) error {
	if file.Body == nil || file.Size <= 0 {
		return fmt.Errorf("%w: file is empty", perrors.ErrInvalidAttachment)
	}
	if p.MaxSize > 0 && file.Size > p.MaxSize {
		return fmt.Errorf("%w: file size %d exceeds the limit of %d bytes", perrors.ErrInvalidAttachment, file.Size, p.MaxSize)
	}
	if file.Name == "" || strings.ContainsAny(file.Name, `/\`) || file.Name == "." || file.Name == ".." {
		return fmt.Errorf("%w: invalid file name %q", perrors.ErrInvalidAttachment, file.Name)
	}
	if len(p.AllowedContentTypes) > 0 {
		mediaType := normalizeMediaType(file.ContentType)
		allowed := slices.ContainsFunc(p.AllowedContentTypes, func(ct string) bool {
			return normalizeMediaType(ct) == mediaType
		})
		if mediaType == "" || !allowed {
			return fmt.Errorf("%w: content type %q is not allowed", perrors.ErrInvalidAttachment, file.ContentType)
		}
	}
	return nil
}

// ExtractMetadata describes the file for storage alongside its content.
func ExtractMetadata(file File) map[string]string {
	return map[string]string{
		MetaOriginalName:  file.Name,
		MetaContentType:   normalizeMediaType(file.ContentType),
		MetaContentLength: strconv.FormatInt(file.Size, 10),
	}
}

// normalizeMediaType drops parameters and lower-cases the media type.
func normalizeMediaType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType
}
