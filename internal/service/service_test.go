package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/abgdnv/catalog/internal/blob"
	"github.com/abgdnv/catalog/internal/clock"
	perrors "github.com/abgdnv/catalog/internal/errors"
	"github.com/abgdnv/catalog/internal/events"
	"github.com/abgdnv/catalog/internal/store"
	"github.com/abgdnv/catalog/pkg/messaging"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testNamespace = "minicapstone-jeff/minicapstone/john/products"

var startTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// countingStore records the writes reaching the wrapped ProductStore.
type countingStore struct {
	store.ProductStore
	saves   int
	deletes int
}

func (c *countingStore) Save(ctx context.Context, p store.Product) error {
	c.saves++
	return c.ProductStore.Save(ctx, p)
}

func (c *countingStore) DeleteByID(ctx context.Context, id uuid.UUID) error {
	c.deletes++
	return c.ProductStore.DeleteByID(ctx, id)
}

// failingBlobStore fails every call with err.
type failingBlobStore struct {
	err error
}

func (f failingBlobStore) Put(context.Context, string, string, map[string]string, io.Reader, int64) error {
	return f.err
}

func (f failingBlobStore) Get(context.Context, string, string) ([]byte, error) {
	return nil, f.err
}

func (f failingBlobStore) Delete(context.Context, string, string) error {
	return f.err
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, event messaging.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type fixture struct {
	svc      *Service
	products *countingStore
	blobs    *blob.MemoryStore
	clock    *clock.MockClock
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		products: &countingStore{ProductStore: store.NewInMemoryStore()},
		blobs:    blob.NewMemoryStore(),
		clock:    clock.NewMockClock(startTime),
	}
	f.svc = newTestService(t, f.products, f.blobs, f.clock, nil, cfg)
	return f
}

func newTestService(t *testing.T, products store.ProductStore, blobs blob.Store, clk clock.Clock, pub messaging.Publisher, cfg Config) *Service {
	t.Helper()
	if cfg.Namespace == "" {
		cfg.Namespace = testNamespace
	}
	svc, err := NewService(products, blobs, clk, pub, slog.New(slog.NewTextHandler(io.Discard, nil)), cfg)
	require.NoError(t, err)
	return svc
}

func widget() ProductCreateDto {
	return ProductCreateDto{
		ProductName: "Widget",
		Price:       decimal.RequireFromString("9.99"),
		Ratings:     4.5,
		Type:        "tool",
		Filter:      "popular",
		Description: "A widget",
	}
}

func pngFile(name string, data []byte) blob.File {
	return blob.File{Name: name, ContentType: "image/png", Size: int64(len(data)), Body: bytes.NewReader(data)}
}

func (f *fixture) addProduct(t *testing.T, req ProductCreateDto) ProductDto {
	t.Helper()
	before, err := f.svc.ListProducts(context.Background())
	require.NoError(t, err)
	list, err := f.svc.AddProduct(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, list, len(before)+1)
	for _, p := range list {
		if !containsID(before, p.ProductID) {
			return p
		}
	}
	t.Fatal("created product not found in listing")
	return ProductDto{}
}

func containsID(list []ProductDto, id string) bool {
	for _, p := range list {
		if p.ProductID == id {
			return true
		}
	}
	return false
}

func Test_AddProduct(t *testing.T) {
	// given
	f := newFixture(t, Config{})

	// when
	list, err := f.svc.AddProduct(context.Background(), widget())

	// then
	require.NoError(t, err)
	require.Len(t, list, 1)
	p := list[0]
	assert.NotEmpty(t, p.ProductID)
	_, parseErr := uuid.Parse(p.ProductID)
	assert.NoError(t, parseErr)
	assert.Equal(t, "Widget", p.ProductName)
	assert.True(t, decimal.RequireFromString("9.99").Equal(p.Price))
	assert.Equal(t, 4.5, p.Ratings)
	assert.Equal(t, "tool", p.Type)
	assert.Equal(t, "popular", p.Filter)
	assert.Equal(t, "A widget", p.Description)
	assert.Empty(t, p.ImageLink)
	assert.Equal(t, startTime, p.CreatedDate)
	assert.Equal(t, p.CreatedDate, p.ModifiedDate)
}

func Test_AddProduct_ReturnsFullListing(t *testing.T) {
	// given
	f := newFixture(t, Config{})
	first := f.addProduct(t, widget())
	f.clock.Advance(time.Minute)

	// when
	req := widget()
	req.ProductName = "Gadget"
	list, err := f.svc.AddProduct(context.Background(), req)

	// then
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ProductID, list[0].ProductID)
	assert.Equal(t, "Gadget", list[1].ProductName)
	assert.NotEqual(t, list[0].ProductID, list[1].ProductID)
}

func Test_AddProduct_StoreFailure(t *testing.T) {
	svc := newTestService(t, &brokenStore{err: errors.New("db down")}, blob.NewMemoryStore(), clock.NewMockClock(startTime), nil, Config{})

	_, err := svc.AddProduct(context.Background(), widget())

	assert.ErrorContains(t, err, "db down")
}

func Test_ListProducts_NonDecreasingCreatedDate(t *testing.T) {
	// given
	f := newFixture(t, Config{})
	offsets := []time.Duration{3 * time.Hour, 0, time.Hour, time.Hour, 2 * time.Hour}
	for _, o := range offsets {
		f.clock.Set(startTime.Add(o))
		f.addProduct(t, widget())
	}

	// when
	list, err := f.svc.ListProducts(context.Background())

	// then
	require.NoError(t, err)
	require.Len(t, list, len(offsets))
	for i := 1; i < len(list); i++ {
		assert.False(t, list[i].CreatedDate.Before(list[i-1].CreatedDate), "listing must be ordered by createdDate")
	}
}

func Test_ListProducts_Empty(t *testing.T) {
	f := newFixture(t, Config{})

	list, err := f.svc.ListProducts(context.Background())

	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func Test_GetProduct(t *testing.T) {
	f := newFixture(t, Config{})
	created := f.addProduct(t, widget())

	got, err := f.svc.GetProduct(context.Background(), uuid.MustParse(created.ProductID))

	require.NoError(t, err)
	assert.Equal(t, created, *got)
}

func Test_MissingProduct_NotFoundWithoutMutation(t *testing.T) {
	ctx := context.Background()
	missing := uuid.New()
	testCases := []struct {
		name string
		call func(svc *Service) error
	}{
		{"get", func(svc *Service) error {
			_, err := svc.GetProduct(ctx, missing)
			return err
		}},
		{"delete", func(svc *Service) error {
			_, err := svc.DeleteProduct(ctx, missing)
			return err
		}},
		{"attach image", func(svc *Service) error {
			_, err := svc.AttachImage(ctx, missing, pngFile("a.png", []byte("0123456789")))
			return err
		}},
		{"fetch image", func(svc *Service) error {
			_, err := svc.FetchImage(ctx, missing)
			return err
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			f := newFixture(t, Config{})
			f.addProduct(t, widget())
			savesBefore := f.products.saves

			// when
			err := tc.call(f.svc)

			// then
			assert.ErrorIs(t, err, perrors.ErrProductNotFound)
			assert.Equal(t, savesBefore, f.products.saves)
			assert.Zero(t, f.products.deletes)
			assert.Zero(t, f.blobs.Writes())
			assert.Zero(t, f.blobs.Len())
		})
	}
}

func Test_DeleteProduct_TwiceFailsSecondTime(t *testing.T) {
	// given
	f := newFixture(t, Config{})
	keep := f.addProduct(t, widget())
	target := f.addProduct(t, widget())
	id := uuid.MustParse(target.ProductID)

	// when
	list, err := f.svc.DeleteProduct(context.Background(), id)

	// then
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, keep.ProductID, list[0].ProductID)

	_, err = f.svc.DeleteProduct(context.Background(), id)
	assert.ErrorIs(t, err, perrors.ErrProductNotFound)
	assert.Equal(t, 1, f.products.deletes)
}

func Test_DeleteProduct_KeepsBlobByDefault(t *testing.T) {
	// given
	f := newFixture(t, Config{})
	p := f.addProduct(t, widget())
	id := uuid.MustParse(p.ProductID)
	_, err := f.svc.AttachImage(context.Background(), id, pngFile("a.png", []byte("0123456789")))
	require.NoError(t, err)

	// when
	_, err = f.svc.DeleteProduct(context.Background(), id)

	// then
	require.NoError(t, err)
	assert.Equal(t, 1, f.blobs.Len())
}

func Test_DeleteProduct_CleanupOnDelete(t *testing.T) {
	// given
	f := newFixture(t, Config{CleanupOnDelete: true})
	p := f.addProduct(t, widget())
	id := uuid.MustParse(p.ProductID)
	_, err := f.svc.AttachImage(context.Background(), id, pngFile("a.png", []byte("0123456789")))
	require.NoError(t, err)

	// when
	_, err = f.svc.DeleteProduct(context.Background(), id)

	// then
	require.NoError(t, err)
	assert.Zero(t, f.blobs.Len())
}

func Test_DeleteProduct_CleanupFailureIsNotFatal(t *testing.T) {
	// given
	products := store.NewInMemoryStore()
	id := uuid.New()
	require.NoError(t, products.Save(context.Background(), store.Product{
		ProductID: id, ProductName: "Widget", ImageLink: "product-a.png", CreatedDate: startTime, ModifiedDate: startTime,
	}))
	svc := newTestService(t, products, failingBlobStore{err: errors.New("s3 down")}, clock.NewMockClock(startTime), nil,
		Config{CleanupOnDelete: true})

	// when
	list, err := svc.DeleteProduct(context.Background(), id)

	// then
	require.NoError(t, err)
	assert.Empty(t, list)
}

func Test_AttachImage_ThenFetchImage(t *testing.T) {
	// given
	f := newFixture(t, Config{Policy: blob.Policy{MaxSize: 1024, AllowedContentTypes: []string{"image/png"}}})
	p := f.addProduct(t, widget())
	id := uuid.MustParse(p.ProductID)
	data := []byte{0x89, 'P', 'N', 'G', 0, 1, 2, 3, 4, 5}
	f.clock.Advance(time.Hour)

	// when
	list, err := f.svc.AttachImage(context.Background(), id, pngFile("a.png", data))

	// then
	require.NoError(t, err)
	require.Len(t, list, 1)
	updated := list[0]
	assert.Equal(t, "product-a.png", updated.ImageLink)
	assert.Equal(t, startTime.Add(time.Hour), updated.ModifiedDate)
	assert.Equal(t, p.CreatedDate, updated.CreatedDate)
	assert.Equal(t, p.ProductName, updated.ProductName)
	assert.True(t, p.Price.Equal(updated.Price))
	assert.Equal(t, p.Ratings, updated.Ratings)
	assert.Equal(t, p.Type, updated.Type)
	assert.Equal(t, p.Filter, updated.Filter)
	assert.Equal(t, p.Description, updated.Description)

	got, err := f.svc.FetchImage(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	meta, ok := f.blobs.Metadata(testNamespace+"/"+p.ProductID, "product-a.png")
	require.True(t, ok)
	assert.Equal(t, "a.png", meta[blob.MetaOriginalName])
	assert.Equal(t, "image/png", meta[blob.MetaContentType])
	assert.Equal(t, "10", meta[blob.MetaContentLength])
}

func Test_AttachImage_ReplacesPreviousImage(t *testing.T) {
	f := newFixture(t, Config{})
	p := f.addProduct(t, widget())
	id := uuid.MustParse(p.ProductID)

	_, err := f.svc.AttachImage(context.Background(), id, pngFile("a.png", []byte("first")))
	require.NoError(t, err)
	list, err := f.svc.AttachImage(context.Background(), id, pngFile("b.png", []byte("second")))
	require.NoError(t, err)

	assert.Equal(t, "product-b.png", list[0].ImageLink)
	got, err := f.svc.FetchImage(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func Test_AttachImage_InvalidFile(t *testing.T) {
	policy := blob.Policy{MaxSize: 8, AllowedContentTypes: []string{"image/png"}}
	testCases := []struct {
		name string
		file blob.File
	}{
		{"oversized", pngFile("a.png", []byte("0123456789"))},
		{"empty", pngFile("a.png", nil)},
		{"disallowed type", blob.File{Name: "a.gif", ContentType: "image/gif", Size: 3, Body: bytes.NewReader([]byte("gif"))}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			f := newFixture(t, Config{Policy: policy})
			p := f.addProduct(t, widget())
			id := uuid.MustParse(p.ProductID)
			savesBefore := f.products.saves

			// when
			_, err := f.svc.AttachImage(context.Background(), id, tc.file)

			// then
			assert.ErrorIs(t, err, perrors.ErrInvalidAttachment)
			got, getErr := f.svc.GetProduct(context.Background(), id)
			require.NoError(t, getErr)
			assert.Empty(t, got.ImageLink)
			assert.Equal(t, savesBefore, f.products.saves)
			assert.Zero(t, f.blobs.Writes())
		})
	}
}

func Test_AttachImage_StorageFailureLeavesRecordUnchanged(t *testing.T) {
	// given
	products := &countingStore{ProductStore: store.NewInMemoryStore()}
	cause := errors.New("connection reset")
	svc := newTestService(t, products, failingBlobStore{err: cause}, clock.NewMockClock(startTime), nil, Config{})
	list, err := svc.AddProduct(context.Background(), widget())
	require.NoError(t, err)
	id := uuid.MustParse(list[0].ProductID)

	// when
	_, err = svc.AttachImage(context.Background(), id, pngFile("a.png", []byte("0123456789")))

	// then
	assert.ErrorIs(t, err, perrors.ErrAttachmentFailed)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 1, products.saves)
	got, err := svc.GetProduct(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, list[0], *got)
}

func Test_FetchImage_NoImage(t *testing.T) {
	f := newFixture(t, Config{})
	p := f.addProduct(t, widget())

	_, err := f.svc.FetchImage(context.Background(), uuid.MustParse(p.ProductID))

	assert.ErrorIs(t, err, perrors.ErrImageNotFound)
}

func Test_FetchImage_BlobMissing(t *testing.T) {
	// given
	f := newFixture(t, Config{})
	p := f.addProduct(t, widget())
	id := uuid.MustParse(p.ProductID)
	_, err := f.svc.AttachImage(context.Background(), id, pngFile("a.png", []byte("0123456789")))
	require.NoError(t, err)
	require.NoError(t, f.blobs.Delete(context.Background(), testNamespace+"/"+p.ProductID, "product-a.png"))

	// when
	_, err = f.svc.FetchImage(context.Background(), id)

	// then
	assert.ErrorIs(t, err, perrors.ErrImageNotFound)
}

func Test_FetchImage_StorageFailure(t *testing.T) {
	products := store.NewInMemoryStore()
	id := uuid.New()
	require.NoError(t, products.Save(context.Background(), store.Product{ProductID: id, ImageLink: "product-a.png"}))
	svc := newTestService(t, products, failingBlobStore{err: errors.New("timeout")}, clock.NewMockClock(startTime), nil, Config{})

	_, err := svc.FetchImage(context.Background(), id)

	assert.ErrorContains(t, err, "timeout")
	assert.NotErrorIs(t, err, perrors.ErrImageNotFound)
}

func Test_Events_PublishedAfterWrites(t *testing.T) {
	// given
	pub := new(mockPublisher)
	pub.On("Publish", mock.Anything, mock.AnythingOfType("events.ProductCreatedEvent")).Return(nil).Once()
	pub.On("Publish", mock.Anything, mock.AnythingOfType("events.ProductImageAttachedEvent")).Return(nil).Once()
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(e messaging.Event) bool {
		deleted, ok := e.(events.ProductDeletedEvent)
		return ok && deleted.DeletedAt.Equal(startTime)
	})).Return(errors.New("nats down")).Once()
	svc := newTestService(t, store.NewInMemoryStore(), blob.NewMemoryStore(), clock.NewMockClock(startTime), pub, Config{})

	// when
	list, err := svc.AddProduct(context.Background(), widget())
	require.NoError(t, err)
	id := uuid.MustParse(list[0].ProductID)
	_, err = svc.AttachImage(context.Background(), id, pngFile("a.png", []byte("x")))
	require.NoError(t, err)
	list, err = svc.DeleteProduct(context.Background(), id)

	// then
	require.NoError(t, err, "publish failure must not fail the operation")
	assert.Empty(t, list)
	pub.AssertExpectations(t)
}

func Test_WidgetScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{Policy: blob.Policy{MaxSize: 1 << 20, AllowedContentTypes: []string{"image/png"}}})

	req := ProductCreateDto{ProductName: "Widget", Price: decimal.RequireFromString("9.99")}
	list, err := f.svc.AddProduct(ctx, req)
	require.NoError(t, err)
	list, err = f.svc.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Widget", list[0].ProductName)
	assert.Empty(t, list[0].ImageLink)
	id := uuid.MustParse(list[0].ProductID)

	image := []byte("0123456789")
	_, err = f.svc.AttachImage(ctx, id, pngFile("a.png", image))
	require.NoError(t, err)
	list, err = f.svc.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "product-a.png", list[0].ImageLink)

	got, err := f.svc.FetchImage(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, image, got)

	list, err = f.svc.DeleteProduct(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, list)
	_, err = f.svc.FetchImage(ctx, id)
	assert.ErrorIs(t, err, perrors.ErrProductNotFound)
}

// brokenStore fails every call with err.
type brokenStore struct {
	err error
}

func (b *brokenStore) ListAll(context.Context) ([]store.Product, error) { return nil, b.err }

func (b *brokenStore) FindByID(context.Context, uuid.UUID) (*store.Product, error) { return nil, b.err }

func (b *brokenStore) Save(context.Context, store.Product) error { return b.err }

func (b *brokenStore) DeleteByID(context.Context, uuid.UUID) error { return b.err }
