// Package models contains the GORM row types and their mapping to domain
// aggregates. Domain packages never import this package.
package models

// All lists every model, in dependency order, for AutoMigrate
func All() []any {
	return []any{
		&StockModel{},
		&CheckoutModel{},
		&CheckoutItemModel{},
	}
}
