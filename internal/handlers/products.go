package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/billcraft/billcraft/internal/services"
	"github.com/billcraft/billcraft/pkg/response"
)

// ProductHandler exposes product catalog endpoints.
type ProductHandler struct {
	products *services.ProductService
}

// NewProductHandler constructs a ProductHandler.
func NewProductHandler(products *services.ProductService) (*ProductHandler, error) {
	if products == nil {
		return nil, errors.New("product handler: product service is required")
	}
	return &ProductHandler{products: products}, nil
}

type productRequest struct {
	Name          *string          `json:"name" validate:"omitempty,min=1,max=200"`
	Description   *string          `json:"description" validate:"omitempty,max=2000"`
	Price         *decimal.Decimal `json:"price"`
	StockQuantity *int             `json:"stock_quantity"`
}

func (r productRequest) toInput() services.ProductInput {
	return services.ProductInput{
		Name:          r.Name,
		Description:   r.Description,
		Price:         r.Price,
		StockQuantity: r.StockQuantity,
	}
}

// Create adds a catalog item to the active workspace.
func (h *ProductHandler) Create(c *gin.Context) {
	workspaceID, userID, ok := workspaceScope(c)
	if !ok {
		return
	}

	var req productRequest
	if !bindAndValidate(c, &req) {
		return
	}

	product, err := h.products.Create(requestContext(c), workspaceID, userID, req.toInput())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, product)
}

// List returns the workspace's products.
func (h *ProductHandler) List(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	opts := listOptions(c)
	products, total, err := h.products.List(requestContext(c), workspaceID, opts)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, products, listMeta(opts, total))
}

// Get returns a single product.
func (h *ProductHandler) Get(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	product, err := h.products.Get(requestContext(c), workspaceID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, product)
}

// Update changes product fields.
func (h *ProductHandler) Update(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	var req productRequest
	if !bindAndValidate(c, &req) {
		return
	}

	product, err := h.products.Update(requestContext(c), workspaceID, c.Param("id"), req.toInput())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, product)
}

// Delete removes a product.
func (h *ProductHandler) Delete(c *gin.Context) {
	workspaceID, _, ok := workspaceScope(c)
	if !ok {
		return
	}

	if err := h.products.Delete(requestContext(c), workspaceID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
