// Package catalog manages the products sold in the storefront and their
// images.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/printstore/internal/apperr"
	"github.com/joao-fontenele/printstore/internal/blobstore"
	"github.com/joao-fontenele/printstore/internal/docstore"
	"github.com/joao-fontenele/printstore/internal/domain"
	"github.com/joao-fontenele/printstore/internal/validation"
)

var ErrProductNotFound = fmt.Errorf("product %w", apperr.ErrNotFound)

type ImageUpload struct {
	Name    string `json:"name" validate:"required,max=200"`
	DataURI string `json:"dataUri" validate:"required"`
}

// ProductInput is the admin payload for creating or editing a product.
// Images are added; RemoveImages lists stored image paths to drop.
type ProductInput struct {
	Name          string               `json:"name" validate:"required,max=200"`
	Description   string               `json:"description" validate:"max=5000"`
	Price         decimal.Decimal      `json:"price" validate:"gt=0"`
	OriginalPrice *decimal.Decimal     `json:"originalPrice,omitempty" validate:"omitempty,gt=0"`
	Stock         int                  `json:"stock" validate:"gte=0"`
	Category      string               `json:"category" validate:"required,max=100"`
	Status        domain.ProductStatus `json:"status" validate:"required,oneof=active draft inactive"`
	Tags          []string             `json:"tags" validate:"max=20,dive,max=40"`
	Featured      bool                 `json:"featured"`
	Images        []ImageUpload        `json:"images,omitempty" validate:"max=10,dive"`
	RemoveImages  []string             `json:"removeImages,omitempty"`
}

type ListFilter struct {
	Status   domain.ProductStatus
	Category string
}

type Service struct {
	products    docstore.Collection[domain.Product]
	adjustments docstore.Collection[domain.StockAdjustment]
	files       blobstore.Store
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(
	products docstore.Collection[domain.Product],
	adjustments docstore.Collection[domain.StockAdjustment],
	files blobstore.Store,
	logger *slog.Logger,
) *Service {
	return &Service{
		products:    products,
		adjustments: adjustments,
		files:       files,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Create(ctx context.Context, in ProductInput) (*domain.Product, error) {
	if err := validate(in); err != nil {
		return nil, err
	}

	now := s.now()
	product := &domain.Product{
		ID:        uuid.New().String(),
		Images:    []domain.ProductImage{},
		CreatedAt: now,
	}
	apply(product, in, now)

	added, err := s.uploadImages(ctx, product.ID, in.Images)
	if err != nil {
		return nil, err
	}
	product.Images = append(product.Images, added...)

	if err := s.products.Insert(ctx, product.ID, product); err != nil {
		s.logger.Error("failed to save product", "error", err, "product_id", product.ID)
		s.deleteImages(ctx, product.ID, added)
		return nil, &apperr.PersistenceError{Err: err}
	}

	s.logger.Info("product created", "product_id", product.ID, "images", len(product.Images))
	return product, nil
}

// Update replaces the editable fields of a product. Removed images are
// deleted from storage best-effort.
func (s *Service) Update(ctx context.Context, id string, in ProductInput) (*domain.Product, error) {
	if err := validate(in); err != nil {
		return nil, err
	}

	product, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var removed []domain.ProductImage
	product.Images = slices.DeleteFunc(product.Images, func(img domain.ProductImage) bool {
		if slices.Contains(in.RemoveImages, img.Path) {
			removed = append(removed, img)
			return true
		}
		return false
	})

	added, err := s.uploadImages(ctx, product.ID, in.Images)
	if err != nil {
		return nil, err
	}
	product.Images = append(product.Images, added...)
	apply(product, in, s.now())

	ok, err := s.products.Replace(ctx, id, product)
	if err != nil {
		s.logger.Error("failed to update product", "error", err, "product_id", id)
		s.deleteImages(ctx, id, added)
		return nil, &apperr.PersistenceError{Err: err}
	}
	if !ok {
		s.deleteImages(ctx, id, added)
		return nil, ErrProductNotFound
	}

	s.deleteImages(ctx, id, removed)
	s.logger.Info("product updated", "product_id", id, "images_added", len(added), "images_removed", len(removed))
	return product, nil
}

// Delete removes every image of the product, logging failures, and then the
// product itself.
func (s *Service) Delete(ctx context.Context, id string) error {
	product, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	s.deleteImages(ctx, id, product.Images)

	ok, err := s.products.Delete(ctx, id)
	if err != nil {
		return &apperr.PersistenceError{Err: err}
	}
	if !ok {
		return ErrProductNotFound
	}

	s.logger.Info("product deleted", "product_id", id)
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Product, error) {
	product, err := s.products.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}
	return product, nil
}

// GetActive hides products that are not for sale.
func (s *Service) GetActive(ctx context.Context, id string) (*domain.Product, error) {
	product, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if product.Status != domain.ProductStatusActive {
		return nil, ErrProductNotFound
	}
	return product, nil
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]domain.Product, error) {
	var (
		products []domain.Product
		err      error
	)
	if filter.Status == "" {
		products, err = s.products.List(ctx)
	} else {
		products, err = s.products.Find(ctx, "status", string(filter.Status))
	}
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	if filter.Category != "" {
		products = slices.DeleteFunc(products, func(p domain.Product) bool {
			return p.Category != filter.Category
		})
	}
	return products, nil
}

// AdjustStock adds delta to the product's stock, never going below zero.
// A non-empty reference makes the change apply at most once per product:
// repeating it returns the product unchanged.
func (s *Service) AdjustStock(ctx context.Context, id string, delta int, reference string) (*domain.Product, error) {
	if reference == "" {
		return s.addStock(ctx, id, delta)
	}

	marker := &domain.StockAdjustment{
		ID:        adjustmentID(reference, id),
		ProductID: id,
		Reference: reference,
		Delta:     delta,
		CreatedAt: s.now(),
	}
	if err := s.adjustments.Insert(ctx, marker.ID, marker); err != nil {
		if !errors.Is(err, docstore.ErrDuplicate) {
			return nil, &apperr.PersistenceError{Err: err}
		}
		s.logger.Info("stock adjustment already applied", "product_id", id, "reference", reference)
		return s.Get(ctx, id)
	}

	product, err := s.addStock(ctx, id, delta)
	if err != nil {
		if _, delErr := s.adjustments.Delete(ctx, marker.ID); delErr != nil {
			s.logger.Error("failed to drop stock adjustment marker", "error", delErr, "adjustment_id", marker.ID)
		}
		return nil, err
	}
	return product, nil
}

// RevertStock undoes the change recorded under reference. Reverting a
// reference that was never applied, or already reverted, changes nothing.
func (s *Service) RevertStock(ctx context.Context, id, reference string) (*domain.Product, error) {
	markerID := adjustmentID(reference, id)
	marker, err := s.adjustments.Get(ctx, markerID)
	if err != nil {
		return nil, &apperr.PersistenceError{Err: err}
	}
	if marker == nil {
		return s.Get(ctx, id)
	}

	// Only the caller that removes the marker applies the reversal.
	deleted, err := s.adjustments.Delete(ctx, markerID)
	if err != nil {
		return nil, &apperr.PersistenceError{Err: err}
	}
	if !deleted {
		return s.Get(ctx, id)
	}

	product, err := s.addStock(ctx, id, -marker.Delta)
	if err != nil {
		if insErr := s.adjustments.Insert(ctx, markerID, marker); insErr != nil {
			s.logger.Error("failed to restore stock adjustment marker", "error", insErr, "adjustment_id", markerID)
		}
		return nil, err
	}
	s.logger.Info("stock adjustment reverted", "product_id", id, "reference", reference)
	return product, nil
}

func (s *Service) addStock(ctx context.Context, id string, delta int) (*domain.Product, error) {
	product, err := s.products.AddInt(ctx, id, "stock", delta)
	if err != nil {
		return nil, &apperr.PersistenceError{Err: err}
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	s.logger.Info("product stock adjusted", "product_id", id, "delta", delta, "stock", product.Stock)
	return product, nil
}

func adjustmentID(reference, productID string) string {
	return reference + "/" + productID
}

func (s *Service) uploadImages(ctx context.Context, productID string, uploads []ImageUpload) ([]domain.ProductImage, error) {
	images := make([]domain.ProductImage, 0, len(uploads))
	for i, upload := range uploads {
		path := fmt.Sprintf("products/%s/%s-%s", productID, uuid.New().String()[:8], blobstore.SanitizeName(upload.Name))

		uploaded, err := blobstore.UploadDataURI(ctx, s.files, path, upload.DataURI)
		if err != nil {
			s.deleteImages(ctx, productID, images)
			if errors.Is(err, blobstore.ErrInvalidDataURI) {
				return nil, apperr.NewValidation(fmt.Sprintf("images[%d].dataUri", i), err.Error())
			}
			s.logger.Error("failed to upload product image", "error", err, "product_id", productID)
			return nil, &apperr.UpstreamError{Service: "object store", Err: err}
		}
		images = append(images, domain.ProductImage{URL: uploaded.URL, Path: uploaded.Path})
	}
	return images, nil
}

func (s *Service) deleteImages(ctx context.Context, productID string, images []domain.ProductImage) {
	for _, img := range images {
		if err := s.files.Delete(ctx, img.Path); err != nil {
			s.logger.Warn("failed to delete product image", "error", err, "product_id", productID, "path", img.Path)
		}
	}
}

func validate(in ProductInput) error {
	issues := validation.Check(in)
	if in.OriginalPrice != nil && in.OriginalPrice.LessThan(in.Price) {
		issues = append(issues, apperr.Issue{Field: "originalPrice", Message: "must not be lower than price"})
	}
	if len(issues) > 0 {
		return &apperr.ValidationError{Issues: issues}
	}
	return nil
}

func apply(p *domain.Product, in ProductInput, now time.Time) {
	p.Name = in.Name
	p.Description = in.Description
	p.Price = in.Price
	p.OriginalPrice = in.OriginalPrice
	p.Stock = in.Stock
	p.Category = in.Category
	p.Status = in.Status
	p.Tags = in.Tags
	if p.Tags == nil {
		p.Tags = []string{}
	}
	p.Featured = in.Featured
	p.UpdatedAt = now
}
