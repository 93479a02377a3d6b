package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const ProjectStatusActive = "active"

// DefaultProjectFolders are seeded for every project created from an estimate
var DefaultProjectFolders = []string{
	"Estimates",
	"Invoices",
	"Change Orders",
	"Permits",
	"Plans & Drawings",
	"Photos",
	"Inspections",
	"Receipts",
}

type Project struct {
	ID               int64            `json:"id"`
	Name             string           `json:"name"`
	Description      string           `json:"description"`
	Address          string           `json:"address"`
	Customer         CustomerSnapshot `json:"customer"`
	Budget           decimal.Decimal  `json:"budget"`
	StartDate        *time.Time       `json:"start_date,omitempty"`
	Status           string           `json:"status"`
	SourceEstimateID *int64           `json:"source_estimate_id,omitempty"`
	UserID           int64            `json:"user_id"`
	Folders          []ProjectFolder  `json:"folders"`
	CreatedAt        time.Time        `json:"created_at"`
}

type ProjectFolder struct {
	ID        int64  `json:"id"`
	ProjectID int64  `json:"project_id"`
	Name      string `json:"name"`
	Position  int    `json:"position"`
}

// ProjectFields are caller-supplied values for a project created from an estimate
type ProjectFields struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Address     string     `json:"address"`
	StartDate   *time.Time `json:"start_date,omitempty"`
}
