package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/billcraft/billcraft/internal/models"
	apperrors "github.com/billcraft/billcraft/pkg/errors"
)

// ErrProductNotFound indicates no product matches within the workspace.
var ErrProductNotFound = apperrors.New("PRODUCT_NOT_FOUND", "Product not found", http.StatusNotFound)

// ProductService manages the workspace product catalog.
type ProductService struct {
	db *gorm.DB
}

// NewProductService constructs a ProductService instance.
func NewProductService(db *gorm.DB) (*ProductService, error) {
	if db == nil {
		return nil, errors.New("product service: db is required")
	}
	return &ProductService{db: db}, nil
}

// ProductInput carries product fields for create and update. On update, nil
// pointers leave the field unchanged.
type ProductInput struct {
	Name          *string
	Description   *string
	Price         *decimal.Decimal
	StockQuantity *int
}

// Create inserts a catalog item into the workspace.
func (s *ProductService) Create(ctx context.Context, workspaceID, createdBy string, input ProductInput) (*models.Product, error) {
	ctx = ensureContext(ctx)

	if input.Name == nil || strings.TrimSpace(*input.Name) == "" {
		return nil, apperrors.NewBadRequest("product name is required")
	}
	if input.Price == nil || input.Price.IsNegative() {
		return nil, apperrors.NewBadRequest("product price must be zero or positive")
	}
	if input.StockQuantity != nil && *input.StockQuantity < 0 {
		return nil, apperrors.NewBadRequest("stock quantity cannot be negative")
	}

	product := &models.Product{
		WorkspaceID: workspaceID,
		CreatedByID: createdBy,
		Name:        strings.TrimSpace(*input.Name),
		Price:       *input.Price,
	}
	if input.Description != nil {
		product.Description = strings.TrimSpace(*input.Description)
	}
	if input.StockQuantity != nil {
		product.StockQuantity = *input.StockQuantity
	}

	if err := s.db.WithContext(ctx).Create(product).Error; err != nil {
		return nil, fmt.Errorf("product service: create: %w", err)
	}
	return product, nil
}

// Get loads a product by ID within the workspace.
func (s *ProductService) Get(ctx context.Context, workspaceID, id string) (*models.Product, error) {
	ctx = ensureContext(ctx)

	var product models.Product
	err := s.db.WithContext(ctx).
		First(&product, "id = ? AND workspace_id = ?", id, workspaceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("product service: get: %w", err)
	}
	return &product, nil
}

// List returns workspace products with pagination and optional name search.
func (s *ProductService) List(ctx context.Context, workspaceID string, opts ListOptions) ([]models.Product, int64, error) {
	ctx = ensureContext(ctx)
	opts = opts.normalise()

	query := s.db.WithContext(ctx).Model(&models.Product{}).
		Where("workspace_id = ?", workspaceID)
	if opts.Search != "" {
		query = query.Where("name LIKE ?", "%"+opts.Search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("product service: count: %w", err)
	}

	var products []models.Product
	err := paginate(query, opts).Order("created_at DESC").Find(&products).Error
	if err != nil {
		return nil, 0, fmt.Errorf("product service: list: %w", err)
	}
	return products, total, nil
}

// Update applies the given fields to a workspace product.
func (s *ProductService) Update(ctx context.Context, workspaceID, id string, input ProductInput) (*models.Product, error) {
	ctx = ensureContext(ctx)

	product, err := s.Get(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.NewBadRequest("product name cannot be empty")
		}
		updates["name"] = name
	}
	if input.Description != nil {
		updates["description"] = strings.TrimSpace(*input.Description)
	}
	if input.Price != nil {
		if input.Price.IsNegative() {
			return nil, apperrors.NewBadRequest("product price must be zero or positive")
		}
		updates["price"] = *input.Price
	}
	if input.StockQuantity != nil {
		if *input.StockQuantity < 0 {
			return nil, apperrors.NewBadRequest("stock quantity cannot be negative")
		}
		updates["stock_quantity"] = *input.StockQuantity
	}

	if len(updates) == 0 {
		return product, nil
	}
	if err := s.db.WithContext(ctx).Model(product).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("product service: update: %w", err)
	}
	return s.Get(ctx, workspaceID, id)
}

// Delete removes a product from the workspace. Invoice items keep their own
// price and description snapshots, so deletion never rewrites history.
func (s *ProductService) Delete(ctx context.Context, workspaceID, id string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("id = ? AND workspace_id = ?", id, workspaceID).
		Delete(&models.Product{})
	if result.Error != nil {
		return fmt.Errorf("product service: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrProductNotFound
	}
	return nil
}
