package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/billcraft/billcraft/internal/models"
	apperrors "github.com/billcraft/billcraft/pkg/errors"
)

// DocumentItemInput is a requested line on an invoice or estimate. When
// ProductID is set, missing description and unit price are snapshotted from
// the catalog at creation time.
type DocumentItemInput struct {
	ProductID   *string
	Description string
	Quantity    int
	UnitPrice   *decimal.Decimal
}

// documentLine is a resolved line with the frozen price and computed total.
type documentLine struct {
	ProductID   *string
	Description string
	Quantity    int
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
}

// resolveLines validates item inputs and freezes catalog prices. Product
// lookups are scoped to the workspace.
func resolveLines(tx *gorm.DB, workspaceID string, items []DocumentItemInput) ([]documentLine, error) {
	if len(items) == 0 {
		return nil, apperrors.NewBadRequest("at least one line item is required")
	}

	lines := make([]documentLine, 0, len(items))
	for i, item := range items {
		if item.Quantity <= 0 {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("item %d: quantity must be positive", i+1))
		}

		line := documentLine{
			ProductID:   item.ProductID,
			Description: strings.TrimSpace(item.Description),
			Quantity:    item.Quantity,
		}

		if item.UnitPrice != nil {
			if item.UnitPrice.IsNegative() {
				return nil, apperrors.NewBadRequest(fmt.Sprintf("item %d: unit price cannot be negative", i+1))
			}
			line.UnitPrice = *item.UnitPrice
		}

		if item.ProductID != nil {
			var product models.Product
			err := tx.First(&product, "id = ? AND workspace_id = ?", *item.ProductID, workspaceID).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrProductNotFound
			}
			if err != nil {
				return nil, fmt.Errorf("resolve line items: %w", err)
			}
			if item.UnitPrice == nil {
				line.UnitPrice = product.Price
			}
			if line.Description == "" {
				line.Description = product.Name
			}
		}

		if line.Description == "" {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("item %d: description is required", i+1))
		}

		line.LineTotal = line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		lines = append(lines, line)
	}

	return lines, nil
}

// documentTotals computes subtotal, tax, and total from resolved lines. Totals
// are always server-computed; client-sent totals are ignored.
func documentTotals(lines []documentLine, taxRate decimal.Decimal) (subtotal, taxAmount, total decimal.Decimal) {
	subtotal = decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.LineTotal)
	}
	taxAmount = subtotal.Mul(taxRate).Div(decimal.NewFromInt(100)).Round(2)
	total = subtotal.Add(taxAmount)
	return subtotal, taxAmount, total
}

// nextDocumentNumber issues the next sequential document number for a
// workspace, e.g. INV-000042, from a per-workspace counter row. The counter
// never rewinds, so deleting a document cannot cause its number to be
// reissued. The UPDATE row-locks the counter for the rest of the enclosing
// transaction, which serialises numbering under concurrent creates.
func nextDocumentNumber(tx *gorm.DB, workspaceID, prefix string) (string, error) {
	advance := func() (int64, error) {
		result := tx.Model(&models.DocumentCounter{}).
			Where("workspace_id = ? AND kind = ?", workspaceID, prefix).
			Update("value", gorm.Expr("value + 1"))
		if result.Error != nil {
			return 0, result.Error
		}
		if result.RowsAffected == 0 {
			return 0, gorm.ErrRecordNotFound
		}

		var counter models.DocumentCounter
		err := tx.First(&counter, "workspace_id = ? AND kind = ?", workspaceID, prefix).Error
		return counter.Value, err
	}

	value, err := advance()
	if errors.Is(err, gorm.ErrRecordNotFound) {
		counter := models.DocumentCounter{WorkspaceID: workspaceID, Kind: prefix, Value: 1}
		if createErr := tx.Create(&counter).Error; createErr == nil {
			return fmt.Sprintf("%s-%06d", prefix, counter.Value), nil
		}
		// Lost the race to create the counter row; increment the winner's.
		value, err = advance()
	}
	if err != nil {
		return "", fmt.Errorf("next document number: %w", err)
	}
	return fmt.Sprintf("%s-%06d", prefix, value), nil
}

// checkDocumentQuota enforces the free plan's monthly document allowance.
// Invoices and estimates share one counter; pro workspaces are unlimited.
func checkDocumentQuota(tx *gorm.DB, workspaceID string, limit int, now time.Time) error {
	if limit <= 0 {
		return nil
	}

	var workspace models.Workspace
	if err := tx.First(&workspace, "id = ?", workspaceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrWorkspaceNotFound
		}
		return fmt.Errorf("check document quota: %w", err)
	}
	if workspace.Plan != models.PlanFree {
		return nil
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	var invoices, estimates int64
	err := tx.Model(&models.Invoice{}).
		Where("workspace_id = ? AND created_at >= ?", workspaceID, monthStart).
		Count(&invoices).Error
	if err != nil {
		return fmt.Errorf("check document quota: %w", err)
	}
	err = tx.Model(&models.Estimate{}).
		Where("workspace_id = ? AND created_at >= ?", workspaceID, monthStart).
		Count(&estimates).Error
	if err != nil {
		return fmt.Errorf("check document quota: %w", err)
	}

	if invoices+estimates >= int64(limit) {
		return apperrors.ErrPlanLimit
	}
	return nil
}
