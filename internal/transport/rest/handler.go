// Package rest provides HTTP handlers for catalog operations.
package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"reflect"

	"github.com/abgdnv/catalog/internal/blob"
	perrors "github.com/abgdnv/catalog/internal/errors"
	"github.com/abgdnv/catalog/internal/service"
	"github.com/abgdnv/catalog/pkg/web"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// fileField is the multipart form field carrying the uploaded image.
	fileField = "file"
	// multipartOverhead is allowed on top of the file size limit for boundaries and headers.
	multipartOverhead = 1 << 20
	// multipartMemory is kept in memory while parsing, the rest spills to temporary files.
	multipartMemory = 8 << 20
)

type Handler struct {
	service  service.Catalog
	validate *validator.Validate
	logger   *slog.Logger
	// maxUpload limits the upload request body; zero disables the limit.
	maxUpload int64
}

// NewHandler creates a new Handler. maxFileSize is the attachment size limit, zero for none.
func NewHandler(service service.Catalog, logger *slog.Logger, maxFileSize int64) *Handler {
	validate := validator.New()
	validate.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
	var maxUpload int64
	if maxFileSize > 0 {
		maxUpload = maxFileSize + multipartOverhead
	}
	return &Handler{
		service:   service,
		validate:  validate,
		logger:    logger.With("component", "rest"),
		maxUpload: maxUpload,
	}
}

// decimalValue lets validator compare decimal fields as numbers.
func decimalValue(v reflect.Value) any {
	if d, ok := v.Interface().(decimal.Decimal); ok {
		f, _ := d.Float64()
		return f
	}
	return nil
}

// RegisterRoutes registers the HTTP routes for the catalog.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Post("/", h.AddProduct)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetProduct)
			r.Delete("/", h.DeleteProduct)
			r.Post("/image", h.AttachImage)
			r.Get("/image", h.FetchImage)
		})
	})

	r.Get("/healthz", h.HealthCheck)
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListProducts(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Error retrieving product list", "error", err)
		web.RespondError(w, h.logger, http.StatusInternalServerError, "Failed to fetch products")
		return
	}
	h.logger.DebugContext(r.Context(), "Successfully retrieved product list", "count", len(list))
	web.RespondJSON(w, h.logger, http.StatusOK, list)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := web.ParseID(w, r, h.logger)
	if !ok {
		return
	}
	found, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, id, "retrieve product", err)
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, found)
}

// AddProduct creates a product and responds with the full listing.
func (h *Handler) AddProduct(w http.ResponseWriter, r *http.Request) {
	var productCreateDto service.ProductCreateDto
	if err := json.NewDecoder(r.Body).Decode(&productCreateDto); err != nil {
		h.logger.ErrorContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(productCreateDto); err != nil {
		web.RespondValidationError(w, r, h.logger, err)
		return
	}

	list, err := h.service.AddProduct(r.Context(), productCreateDto)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Error creating product", "error", err)
		web.RespondError(w, h.logger, http.StatusInternalServerError, "Failed to create product")
		return
	}
	h.logger.InfoContext(r.Context(), "Product created successfully", "Name", productCreateDto.ProductName)
	web.RespondJSON(w, h.logger, http.StatusCreated, list)
}

// DeleteProduct deletes a product and responds with the remaining listing.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := web.ParseID(w, r, h.logger)
	if !ok {
		return
	}
	list, err := h.service.DeleteProduct(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, id, "delete product", err)
		return
	}
	h.logger.InfoContext(r.Context(), "Product deleted successfully", "ID", id)
	web.RespondJSON(w, h.logger, http.StatusOK, list)
}

// AttachImage stores the multipart "file" field as the product image and responds with the full listing.
func (h *Handler) AttachImage(w http.ResponseWriter, r *http.Request) {
	id, ok := web.ParseID(w, r, h.logger)
	if !ok {
		return
	}
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			// an unknown product is reported before the size
			if _, err := h.service.GetProduct(r.Context(), id); err != nil {
				h.respondServiceError(w, r, id, "attach image", err)
				return
			}
			web.RespondError(w, h.logger, http.StatusBadRequest, fmt.Sprintf("File exceeds the limit of %d bytes", maxBytesErr.Limit-multipartOverhead))
			return
		}
		h.logger.WarnContext(r.Context(), "Error parsing multipart form", "error", err)
		web.RespondError(w, h.logger, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile(fileField)
	if err != nil {
		web.RespondError(w, h.logger, http.StatusBadRequest, fmt.Sprintf("Missing form file %q", fileField))
		return
	}
	defer file.Close()

	contentType, err := detectContentType(file, header)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Error reading uploaded file", "error", err)
		web.RespondError(w, h.logger, http.StatusBadRequest, "Unreadable file")
		return
	}

	list, err := h.service.AttachImage(r.Context(), id, blob.File{
		Name:        header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		h.respondServiceError(w, r, id, "attach image", err)
		return
	}
	h.logger.InfoContext(r.Context(), "Image attached successfully", "ID", id, "file", header.Filename, "size", header.Size)
	web.RespondJSON(w, h.logger, http.StatusOK, list)
}

// FetchImage writes the stored image bytes with a sniffed content type.
func (h *Handler) FetchImage(w http.ResponseWriter, r *http.Request) {
	id, ok := web.ParseID(w, r, h.logger)
	if !ok {
		return
	}
	data, err := h.service.FetchImage(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, id, "fetch image", err)
		return
	}
	w.Header().Set("Content-Type", mimetype.Detect(data).String())
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// HealthCheck is a simple health check endpoint.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// respondServiceError maps catalog errors to HTTP statuses.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, id uuid.UUID, action string, err error) {
	switch {
	case errors.Is(err, perrors.ErrProductNotFound):
		h.logger.WarnContext(r.Context(), "Product not found", "ID", id, "action", action)
		web.RespondError(w, h.logger, http.StatusNotFound, fmt.Sprintf("Product with ID %s not found", id))
	case errors.Is(err, perrors.ErrImageNotFound):
		h.logger.WarnContext(r.Context(), "Product image not found", "ID", id)
		web.RespondError(w, h.logger, http.StatusNotFound, fmt.Sprintf("Image of product with ID %s not found", id))
	case errors.Is(err, perrors.ErrInvalidAttachment):
		h.logger.WarnContext(r.Context(), "Invalid attachment", "ID", id, "error", err)
		web.RespondError(w, h.logger, http.StatusBadRequest, err.Error())
	case errors.Is(err, perrors.ErrAttachmentFailed):
		h.logger.ErrorContext(r.Context(), "Attachment failed", "ID", id, "error", err)
		web.RespondError(w, h.logger, http.StatusBadGateway, fmt.Sprintf("Failed to store image of product with ID %s", id))
	default:
		h.logger.ErrorContext(r.Context(), "Error handling request", "ID", id, "action", action, "error", err)
		web.RespondError(w, h.logger, http.StatusInternalServerError, fmt.Sprintf("Failed to %s with ID %s", action, id))
	}
}

// detectContentType returns the declared part content type, or sniffs it from the content when the
// client sent none or a generic one. The file is rewound afterwards.
func detectContentType(file multipart.File, header *multipart.FileHeader) (string, error) {
	declared := header.Header.Get("Content-Type")
	if declared != "" && declared != "application/octet-stream" {
		return declared, nil
	}
	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return mtype.String(), nil
}
