// Package errors provides custom error types for catalog operations.
package errors

import "errors"

// ErrProductNotFound is returned when no product exists with the requested id.
var ErrProductNotFound = errors.New("product not found")

// ErrImageNotFound is returned when a product has no image, or its image is missing from the blob store.
var ErrImageNotFound = errors.New("product image not found")

// ErrInvalidAttachment is returned when an uploaded file fails the attachment policy.
var ErrInvalidAttachment = errors.New("invalid attachment")

// ErrAttachmentFailed is returned when the blob store could not persist an attachment.
var ErrAttachmentFailed = errors.New("attachment failed")
