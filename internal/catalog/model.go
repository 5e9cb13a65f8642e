package catalog

import "github.com/shopspring/decimal"

// Material is a raw material tracked by the ledger.
type Material struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Unit string `json:"unit,omitempty"`
}

// BOMLine is the quantity of one material consumed per produced unit.
type BOMLine struct {
	MaterialID   int64           `json:"material_id"`
	MaterialName string          `json:"material_name"`
	Unit         string          `json:"unit,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
}

// Requirement is the total quantity of a material a production run needs.
type Requirement struct {
	MaterialID   int64           `json:"material_id"`
	MaterialName string          `json:"material_name"`
	Quantity     decimal.Decimal `json:"quantity"`
}
