package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/abgdnv/catalog/internal/blob"
	perrors "github.com/abgdnv/catalog/internal/errors"
	"github.com/abgdnv/catalog/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) ListProducts(ctx context.Context) ([]service.ProductDto, error) {
	args := m.Called(ctx)
	return listArg(args, 0), args.Error(1)
}

func (m *MockCatalog) GetProduct(ctx context.Context, id uuid.UUID) (*service.ProductDto, error) {
	args := m.Called(ctx, id)
	var product *service.ProductDto
	if args.Get(0) != nil {
		product = args.Get(0).(*service.ProductDto)
	}
	return product, args.Error(1)
}

func (m *MockCatalog) AddProduct(ctx context.Context, product service.ProductCreateDto) ([]service.ProductDto, error) {
	args := m.Called(ctx, product)
	return listArg(args, 0), args.Error(1)
}

func (m *MockCatalog) DeleteProduct(ctx context.Context, id uuid.UUID) ([]service.ProductDto, error) {
	args := m.Called(ctx, id)
	return listArg(args, 0), args.Error(1)
}

func (m *MockCatalog) AttachImage(ctx context.Context, id uuid.UUID, file blob.File) ([]service.ProductDto, error) {
	args := m.Called(ctx, id, file)
	return listArg(args, 0), args.Error(1)
}

func (m *MockCatalog) FetchImage(ctx context.Context, id uuid.UUID) ([]byte, error) {
	args := m.Called(ctx, id)
	var data []byte
	if args.Get(0) != nil {
		data = args.Get(0).([]byte)
	}
	return data, args.Error(1)
}

func listArg(args mock.Arguments, i int) []service.ProductDto {
	if args.Get(i) == nil {
		return nil
	}
	return args.Get(i).([]service.ProductDto)
}

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func newTestRouter(svc service.Catalog, maxFileSize int64) http.Handler {
	r := chi.NewRouter()
	NewHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)), maxFileSize).RegisterRoutes(r)
	return r
}

func sampleProduct(id uuid.UUID) service.ProductDto {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return service.ProductDto{
		ProductID:    id.String(),
		ProductName:  "Widget",
		Price:        decimal.RequireFromString("9.99"),
		CreatedDate:  at,
		ModifiedDate: at,
	}
}

func Test_ListProducts(t *testing.T) {
	// given
	id := uuid.New()
	svc := new(MockCatalog)
	svc.On("ListProducts", mock.Anything).Return([]service.ProductDto{sampleProduct(id)}, nil).Once()
	rec := httptest.NewRecorder()

	// when
	newTestRouter(svc, 0).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))

	// then
	require.Equal(t, http.StatusOK, rec.Code)
	var body []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, id.String(), body[0]["productId"])
	assert.Equal(t, "Widget", body[0]["productName"])
	assert.Equal(t, "", body[0]["imageLink"])
	assert.Equal(t, "9.99", body[0]["price"])
	assert.Equal(t, "2024-03-01T12:00:00Z", body[0]["createdDate"])
	svc.AssertExpectations(t)
}

func Test_ListProducts_Error(t *testing.T) {
	svc := new(MockCatalog)
	svc.On("ListProducts", mock.Anything).Return(nil, errors.New("db down")).Once()
	rec := httptest.NewRecorder()

	newTestRouter(svc, 0).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func Test_GetProduct(t *testing.T) {
	id := uuid.New()
	product := sampleProduct(id)
	testCases := []struct {
		name         string
		path         string
		setup        func(svc *MockCatalog)
		expectedCode int
	}{
		{
			name: "success",
			path: "/api/v1/products/" + id.String(),
			setup: func(svc *MockCatalog) {
				svc.On("GetProduct", mock.Anything, id).Return(&product, nil).Once()
			},
			expectedCode: http.StatusOK,
		},
		{
			name: "not found",
			path: "/api/v1/products/" + id.String(),
			setup: func(svc *MockCatalog) {
				svc.On("GetProduct", mock.Anything, id).Return(nil, perrors.ErrProductNotFound).Once()
			},
			expectedCode: http.StatusNotFound,
		},
		{
			name:         "invalid id",
			path:         "/api/v1/products/not-a-uuid",
			setup:        func(*MockCatalog) {},
			expectedCode: http.StatusBadRequest,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc := new(MockCatalog)
			tc.setup(svc)
			rec := httptest.NewRecorder()

			newTestRouter(svc, 0).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))

			assert.Equal(t, tc.expectedCode, rec.Code)
			svc.AssertExpectations(t)
		})
	}
}

func Test_AddProduct(t *testing.T) {
	id := uuid.New()
	testCases := []struct {
		name         string
		body         string
		setup        func(svc *MockCatalog)
		expectedCode int
		expectedBody string
	}{
		{
			name: "created",
			body: `{"productName":"Widget","price":9.99,"ratings":4,"type":"tool","filter":"popular","description":"A widget"}`,
			setup: func(svc *MockCatalog) {
				svc.On("AddProduct", mock.Anything, mock.MatchedBy(func(dto service.ProductCreateDto) bool {
					return dto.ProductName == "Widget" && dto.Price.Equal(decimal.RequireFromString("9.99"))
				})).Return([]service.ProductDto{sampleProduct(id)}, nil).Once()
			},
			expectedCode: http.StatusCreated,
			expectedBody: id.String(),
		},
		{
			name:         "missing name",
			body:         `{"price":"1.00"}`,
			setup:        func(*MockCatalog) {},
			expectedCode: http.StatusBadRequest,
			expectedBody: "validation_errors",
		},
		{
			name:         "negative price",
			body:         `{"productName":"Widget","price":-1}`,
			setup:        func(*MockCatalog) {},
			expectedCode: http.StatusBadRequest,
			expectedBody: "Price",
		},
		{
			name:         "ratings out of range",
			body:         `{"productName":"Widget","price":1,"ratings":7}`,
			setup:        func(*MockCatalog) {},
			expectedCode: http.StatusBadRequest,
			expectedBody: "Ratings",
		},
		{
			name:         "malformed json",
			body:         `{"productName":`,
			setup:        func(*MockCatalog) {},
			expectedCode: http.StatusBadRequest,
			expectedBody: "Invalid request body",
		},
		{
			name: "service failure",
			body: `{"productName":"Widget","price":1}`,
			setup: func(svc *MockCatalog) {
				svc.On("AddProduct", mock.Anything, mock.Anything).Return(nil, errors.New("db down")).Once()
			},
			expectedCode: http.StatusInternalServerError,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			svc := new(MockCatalog)
			tc.setup(svc)
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/products", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")

			// when
			newTestRouter(svc, 0).ServeHTTP(rec, req)

			// then
			assert.Equal(t, tc.expectedCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.expectedBody)
			svc.AssertExpectations(t)
		})
	}
}

func Test_DeleteProduct(t *testing.T) {
	id := uuid.New()
	testCases := []struct {
		name         string
		err          error
		expectedCode int
	}{
		{"deleted", nil, http.StatusOK},
		{"not found", perrors.ErrProductNotFound, http.StatusNotFound},
		{"failure", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc := new(MockCatalog)
			var list []service.ProductDto
			if tc.err == nil {
				list = []service.ProductDto{}
			}
			svc.On("DeleteProduct", mock.Anything, id).Return(list, tc.err).Once()
			rec := httptest.NewRecorder()

			newTestRouter(svc, 0).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/products/"+id.String(), nil))

			assert.Equal(t, tc.expectedCode, rec.Code)
			if tc.err == nil {
				assert.JSONEq(t, "[]", rec.Body.String())
			}
			svc.AssertExpectations(t)
		})
	}
}

// multipartBody builds a form with a single file part.
func multipartBody(t *testing.T, fileName, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func Test_AttachImage(t *testing.T) {
	id := uuid.New()
	attached := sampleProduct(id)
	attached.ImageLink = "product-a.png"
	testCases := []struct {
		name         string
		contentType  string
		err          error
		expectedCode int
	}{
		{"declared type", "image/png", nil, http.StatusOK},
		{"sniffed type", "", nil, http.StatusOK},
		{"generic type is sniffed", "application/octet-stream", nil, http.StatusOK},
		{"not found", "image/png", perrors.ErrProductNotFound, http.StatusNotFound},
		{"invalid attachment", "image/png", perrors.ErrInvalidAttachment, http.StatusBadRequest},
		{"attachment failed", "image/png", perrors.ErrAttachmentFailed, http.StatusBadGateway},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			svc := new(MockCatalog)
			var list []service.ProductDto
			if tc.err == nil {
				list = []service.ProductDto{attached}
			}
			var received []byte
			svc.On("AttachImage", mock.Anything, id, mock.MatchedBy(func(f blob.File) bool {
				return f.Name == "a.png" && f.ContentType == "image/png" && f.Size == int64(len(pngBytes))
			})).Run(func(args mock.Arguments) {
				received, _ = io.ReadAll(args.Get(2).(blob.File).Body)
			}).Return(list, tc.err).Once()
			body, formType := multipartBody(t, "a.png", tc.contentType, pngBytes)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/products/"+id.String()+"/image", body)
			req.Header.Set("Content-Type", formType)
			rec := httptest.NewRecorder()

			// when
			newTestRouter(svc, 1024).ServeHTTP(rec, req)

			// then
			assert.Equal(t, tc.expectedCode, rec.Code)
			assert.Equal(t, pngBytes, received, "the handler must pass the whole file")
			if tc.err == nil {
				assert.Contains(t, rec.Body.String(), `"imageLink":"product-a.png"`)
			}
			svc.AssertExpectations(t)
		})
	}
}

func Test_AttachImage_BadRequests(t *testing.T) {
	id := uuid.New()
	path := "/api/v1/products/" + id.String() + "/image"

	t.Run("not multipart", func(t *testing.T) {
		svc := new(MockCatalog)
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader("{}"))
		req.Header.Set("Content-Type", "application/json")

		newTestRouter(svc, 1024).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "AttachImage", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing file field", func(t *testing.T) {
		svc := new(MockCatalog)
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		require.NoError(t, w.WriteField("other", "x"))
		require.NoError(t, w.Close())
		req := httptest.NewRequest(http.MethodPost, path, &buf)
		req.Header.Set("Content-Type", w.FormDataContentType())
		rec := httptest.NewRecorder()

		newTestRouter(svc, 1024).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "file")
	})

	t.Run("body over the limit", func(t *testing.T) {
		svc := new(MockCatalog)
		svc.On("GetProduct", mock.Anything, id).Return(&service.ProductDto{ProductID: id.String()}, nil).Once()
		body, formType := multipartBody(t, "big.png", "image/png", bytes.Repeat([]byte{1}, 2*multipartOverhead))
		req := httptest.NewRequest(http.MethodPost, path, body)
		req.Header.Set("Content-Type", formType)
		rec := httptest.NewRecorder()

		newTestRouter(svc, 1024).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "exceeds the limit")
		svc.AssertNotCalled(t, "AttachImage", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("body over the limit for unknown product", func(t *testing.T) {
		svc := new(MockCatalog)
		svc.On("GetProduct", mock.Anything, id).Return(nil, perrors.ErrProductNotFound).Once()
		body, formType := multipartBody(t, "big.png", "image/png", bytes.Repeat([]byte{1}, 2*multipartOverhead))
		req := httptest.NewRequest(http.MethodPost, path, body)
		req.Header.Set("Content-Type", formType)
		rec := httptest.NewRecorder()

		newTestRouter(svc, 10).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		svc.AssertExpectations(t)
		svc.AssertNotCalled(t, "AttachImage", mock.Anything, mock.Anything, mock.Anything)
	})
}

func Test_FetchImage(t *testing.T) {
	id := uuid.New()
	testCases := []struct {
		name         string
		data         []byte
		err          error
		expectedCode int
	}{
		{"found", pngBytes, nil, http.StatusOK},
		{"product not found", nil, perrors.ErrProductNotFound, http.StatusNotFound},
		{"image not found", nil, perrors.ErrImageNotFound, http.StatusNotFound},
		{"failure", nil, errors.New("s3 down"), http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc := new(MockCatalog)
			svc.On("FetchImage", mock.Anything, id).Return(tc.data, tc.err).Once()
			rec := httptest.NewRecorder()

			newTestRouter(svc, 0).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products/"+id.String()+"/image", nil))

			assert.Equal(t, tc.expectedCode, rec.Code)
			if tc.err == nil {
				assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
				assert.Equal(t, pngBytes, rec.Body.Bytes())
			}
			svc.AssertExpectations(t)
		})
	}
}

func Test_HealthCheck(t *testing.T) {
	rec := httptest.NewRecorder()

	newTestRouter(new(MockCatalog), 0).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}
