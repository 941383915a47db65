package service

import (
	"time"

	"github.com/abgdnv/catalog/internal/store"
	"github.com/shopspring/decimal"
)

// ProductCreateDto represents the data transfer object for creating a new product.
type ProductCreateDto struct {
	ProductName string          `json:"productName" validate:"required,max=200"`
	Price       decimal.Decimal `json:"price"       validate:"gte=0"`
	Ratings     float64         `json:"ratings"     validate:"gte=0,lte=5"`
	Type        string          `json:"type"        validate:"max=100"`
	Filter      string          `json:"filter"      validate:"max=100"`
	Description string          `json:"description" validate:"max=2000"`
}

// ProductDto represents the data transfer object for a product.
// ImageLink is empty when no image is attached.
type ProductDto struct {
	ProductID    string          `json:"productId"`
	ProductName  string          `json:"productName"`
	ImageLink    string          `json:"imageLink"`
	Price        decimal.Decimal `json:"price"`
	Ratings      float64         `json:"ratings"`
	Type         string          `json:"type"`
	Filter       string          `json:"filter"`
	Description  string          `json:"description"`
	CreatedDate  time.Time       `json:"createdDate"`
	ModifiedDate time.Time       `json:"modifiedDate"`
}

// toDto converts a store.Product to a ProductDto.
func toDto(p *store.Product) *ProductDto {
	return &ProductDto{
		ProductID:    p.ProductID.String(),
		ProductName:  p.ProductName,
		ImageLink:    p.ImageLink,
		Price:        p.Price,
		Ratings:      p.Ratings,
		Type:         p.Type,
		Filter:       p.Filter,
		Description:  p.Description,
		CreatedDate:  p.CreatedDate,
		ModifiedDate: p.ModifiedDate,
	}
}

func toDtos(products []store.Product) []ProductDto {
	dtos := make([]ProductDto, len(products))
	for i := range products {
		dtos[i] = *toDto(&products[i])
	}
	return dtos
}
