package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory catalog backing, used for single-process runs
// and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	medicines map[string]Medicine
}

// NewMemoryStore creates a catalog pre-loaded with the given medicines.
func NewMemoryStore(meds []Medicine) *MemoryStore {
	m := &MemoryStore{medicines: make(map[string]Medicine, len(meds))}
	for _, med := range meds {
		m.medicines[med.ID] = med
	}
	return m
}

// Search returns medicines whose name contains the query, case-insensitive,
// ordered by id for determinism.
func (m *MemoryStore) Search(ctx context.Context, name string) ([]Medicine, error) {
	q := strings.ToLower(strings.TrimSpace(name))
	if q == "" {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []Medicine
	for _, med := range m.medicines {
		if strings.Contains(strings.ToLower(med.Name), q) {
			results = append(results, med)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

// List returns the full catalog ordered by id.
func (m *MemoryStore) List() []Medicine {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Medicine, 0, len(m.medicines))
	for _, med := range m.medicines {
		out = append(out, med)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetByID returns a medicine by id.
func (m *MemoryStore) GetByID(ctx context.Context, id string) (Medicine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	med, ok := m.medicines[id]
	if !ok {
		return Medicine{}, fmt.Errorf("medicine %s: %w", id, ErrNotFound)
	}
	return med, nil
}

// UpdateStock atomically applies delta to a medicine's stock level.
func (m *MemoryStore) UpdateStock(ctx context.Context, id string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	med, ok := m.medicines[id]
	if !ok {
		return fmt.Errorf("medicine %s: %w", id, ErrNotFound)
	}
	next := med.StockLevel + delta
	if next < 0 {
		return fmt.Errorf("medicine %s stock %d delta %d: %w", id, med.StockLevel, delta, ErrInsufficientStock)
	}
	med.StockLevel = next
	m.medicines[id] = med
	return nil
}

// SeedMedicines returns the default demo inventory.
func SeedMedicines() []Medicine {
	return []Medicine{
		{ID: "MED001", Name: "Paracetamol", Strength: "500mg", StockLevel: 500, UnitPrice: 0.15, MaxQuantityPerOrder: 60, PrescriptionRequired: false},
		{ID: "MED002", Name: "Metformin", Strength: "500mg", StockLevel: 300, UnitPrice: 0.20, MaxQuantityPerOrder: 90, PrescriptionRequired: true},
		{ID: "MED003", Name: "Atorvastatin", Strength: "20mg", StockLevel: 200, UnitPrice: 0.85, MaxQuantityPerOrder: 30, PrescriptionRequired: true},
		{ID: "MED004", Name: "Lisinopril", Strength: "10mg", StockLevel: 150, UnitPrice: 0.55, MaxQuantityPerOrder: 30, PrescriptionRequired: true},
		{ID: "MED005", Name: "Amlodipine", Strength: "5mg", StockLevel: 180, UnitPrice: 0.65, MaxQuantityPerOrder: 30, PrescriptionRequired: true},
		{ID: "MED006", Name: "Omeprazole", Strength: "20mg", StockLevel: 250, UnitPrice: 0.40, MaxQuantityPerOrder: 30, PrescriptionRequired: false},
		{ID: "MED007", Name: "Amoxicillin", Strength: "500mg", StockLevel: 120, UnitPrice: 0.35, MaxQuantityPerOrder: 30, PrescriptionRequired: true},
		{ID: "MED008", Name: "Ibuprofen", Strength: "400mg", StockLevel: 400, UnitPrice: 0.20, MaxQuantityPerOrder: 60, PrescriptionRequired: false},
		{ID: "MED009", Name: "Aspirin", Strength: "75mg", StockLevel: 350, UnitPrice: 0.10, MaxQuantityPerOrder: 60, PrescriptionRequired: false},
		{ID: "MED010", Name: "Tramadol", Strength: "50mg", StockLevel: 40, UnitPrice: 0.95, MaxQuantityPerOrder: 20, PrescriptionRequired: true, ControlledSubstance: true},
		{ID: "MED011", Name: "Ranitidine", Strength: "150mg", StockLevel: 0, UnitPrice: 0.30, MaxQuantityPerOrder: 30, Discontinued: true},
	}
}

// MemoryPatientStore is an in-memory patient data backing.
type MemoryPatientStore struct {
	mu       sync.RWMutex
	patients map[string]Patient
	orders   map[string][]OrderRecord
}

// NewMemoryPatientStore creates a patient store pre-loaded with patients.
func NewMemoryPatientStore(patients []Patient) *MemoryPatientStore {
	p := &MemoryPatientStore{
		patients: make(map[string]Patient, len(patients)),
		orders:   make(map[string][]OrderRecord),
	}
	for _, pt := range patients {
		p.patients[pt.ID] = pt
	}
	return p
}

// SeedPatients returns the default demo patients.
func SeedPatients() []Patient {
	return []Patient{
		{ID: "PAT001", Name: "Asha Verma", Email: "asha.verma@example.com", Phone: "+1-555-0101"},
		{ID: "PAT002", Name: "John Doe", Email: "john.doe@example.com", Phone: "+1-555-0102"},
		{ID: "PAT003", Name: "Maria Santos", Email: "maria.santos@example.com", Phone: "+1-555-0103"},
	}
}

// GetPatient returns a patient by id.
func (p *MemoryPatientStore) GetPatient(ctx context.Context, id string) (Patient, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	pt, ok := p.patients[id]
	if !ok {
		return Patient{}, fmt.Errorf("patient %s: %w", id, ErrNotFound)
	}
	return pt, nil
}

// ListPatients returns all patients ordered by id.
func (p *MemoryPatientStore) ListPatients(ctx context.Context) ([]Patient, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Patient, 0, len(p.patients))
	for _, pt := range p.patients {
		out = append(out, pt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetOrderHistory returns a patient's purchase history, oldest first.
func (p *MemoryPatientStore) GetOrderHistory(ctx context.Context, patientID string) ([]OrderRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	recs := p.orders[patientID]
	out := make([]OrderRecord, len(recs))
	copy(out, recs)
	return out, nil
}

// AddOrderRecord appends a purchase record to the patient's history.
func (p *MemoryPatientStore) AddOrderRecord(ctx context.Context, rec OrderRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.orders[rec.PatientID] = append(p.orders[rec.PatientID], rec)
	return nil
}

// GetMedicinesNeedingRefill returns the most recent record per medicine whose
// supply runs out within seven days of asOf.
func (p *MemoryPatientStore) GetMedicinesNeedingRefill(ctx context.Context, patientID string, asOf time.Time) ([]OrderRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return RecordsDueForRefill(p.orders[patientID], asOf), nil
}
