// Package catalog defines the medicine catalog and patient data collaborators.
package catalog

import (
	"context"
	"errors"
	"sort"
	"time"
)

// ErrNotFound is returned when a medicine, patient, or order record is absent.
var ErrNotFound = errors.New("not found")

// ErrInsufficientStock is returned when a stock update would drive stock below zero.
var ErrInsufficientStock = errors.New("insufficient stock")

// Medicine is a catalog entry. Read-only to the orchestration core except for
// stock updates through UpdateStock.
type Medicine struct {
	ID                   string  `json:"medicine_id"`
	Name                 string  `json:"medicine_name"`
	Strength             string  `json:"strength"`
	StockLevel           int     `json:"stock_level"`
	UnitPrice            float64 `json:"unit_price"`
	MaxQuantityPerOrder  int     `json:"max_quantity_per_order"`
	PrescriptionRequired bool    `json:"prescription_required"`
	ControlledSubstance  bool    `json:"controlled_substance"`
	Discontinued         bool    `json:"discontinued"`
}

// Patient identifies a patient and their contact details.
type Patient struct {
	ID    string `json:"patient_id"`
	Name  string `json:"patient_name"`
	Email string `json:"patient_email,omitempty"`
	Phone string `json:"patient_phone,omitempty"`
}

// OrderRecord is one line of a patient's purchase history.
type OrderRecord struct {
	OrderID      string    `json:"order_id"`
	PatientID    string    `json:"patient_id"`
	MedicineID   string    `json:"medicine_id"`
	MedicineName string    `json:"medicine"`
	Strength     string    `json:"dosage"`
	Quantity     int       `json:"quantity"`
	PurchaseDate time.Time `json:"purchase_date"`
	SupplyDays   int       `json:"supply_days"`
	Status       string    `json:"order_status"`
}

// RecordsDueForRefill filters a purchase history down to the most recent
// record per medicine whose supply runs out within seven days of asOf.
// Records without a supply window assume 30 days.
func RecordsDueForRefill(records []OrderRecord, asOf time.Time) []OrderRecord {
	latest := make(map[string]OrderRecord)
	for _, rec := range records {
		prev, ok := latest[rec.MedicineID]
		if !ok || rec.PurchaseDate.After(prev.PurchaseDate) {
			latest[rec.MedicineID] = rec
		}
	}

	var due []OrderRecord
	for _, rec := range latest {
		supply := rec.SupplyDays
		if supply <= 0 {
			supply = 30
		}
		elapsed := int(asOf.Sub(rec.PurchaseDate).Hours() / 24)
		if supply-elapsed <= 7 {
			due = append(due, rec)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].MedicineID < due[j].MedicineID })
	return due
}

// Store provides read access to the medicine catalog plus atomic stock updates.
type Store interface {
	Search(ctx context.Context, name string) ([]Medicine, error)
	GetByID(ctx context.Context, id string) (Medicine, error)
	// UpdateStock applies delta to the medicine's stock level as a single
	// read-modify-write. Negative delta decrements.
	UpdateStock(ctx context.Context, id string, delta int) error
}

// PatientStore provides patient identity and purchase history lookups.
type PatientStore interface {
	GetPatient(ctx context.Context, id string) (Patient, error)
	GetOrderHistory(ctx context.Context, patientID string) ([]OrderRecord, error)
	AddOrderRecord(ctx context.Context, rec OrderRecord) error
	// GetMedicinesNeedingRefill returns history rows whose supply window is
	// near exhaustion as of asOf.
	GetMedicinesNeedingRefill(ctx context.Context, patientID string, asOf time.Time) ([]OrderRecord, error)
	ListPatients(ctx context.Context) ([]Patient, error)
}
