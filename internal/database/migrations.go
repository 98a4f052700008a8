package database

import (
	"gorm.io/gorm"

	"github.com/billcraft/billcraft/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Workspace{},
		&models.Membership{},
		&models.Customer{},
		&models.Product{},
		&models.DocumentCounter{},
		&models.Invoice{},
		&models.InvoiceItem{},
		&models.Payment{},
		&models.Estimate{},
		&models.EstimateItem{},
		&models.RecurringInvoice{},
		&models.RecurringInvoiceItem{},
		&models.Expense{},
		&models.StaffMember{},
		&models.PortalToken{},
		&models.CustomerGrant{},
	)
}
