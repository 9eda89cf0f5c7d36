package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPPatientStore implements PatientStore against the chat API's patient
// endpoints, so out-of-process consumers like the refill scanner read the
// same records the conversational flow writes.
type HTTPPatientStore struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPPatientStore creates a client for the chat API at baseURL. apiKey
// may be empty when the API runs without authentication.
func NewHTTPPatientStore(baseURL, apiKey string) *HTTPPatientStore {
	return &HTTPPatientStore{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPPatientStore) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return err
	}
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("get %s: %w", path, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("get %s: decode response: %w", path, err)
	}
	return nil
}

func (s *HTTPPatientStore) GetPatient(ctx context.Context, id string) (Patient, error) {
	var p Patient
	if err := s.get(ctx, "/api/patients/"+id, &p); err != nil {
		return Patient{}, err
	}
	return p, nil
}

func (s *HTTPPatientStore) ListPatients(ctx context.Context) ([]Patient, error) {
	var out []Patient
	if err := s.get(ctx, "/api/patients", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *HTTPPatientStore) GetOrderHistory(ctx context.Context, patientID string) ([]OrderRecord, error) {
	var out []OrderRecord
	if err := s.get(ctx, "/api/patients/"+patientID+"/history", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetMedicinesNeedingRefill fetches the patient's full history and applies
// the refill window locally, the same filter the in-memory store uses.
func (s *HTTPPatientStore) GetMedicinesNeedingRefill(ctx context.Context, patientID string, asOf time.Time) ([]OrderRecord, error) {
	history, err := s.GetOrderHistory(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return RecordsDueForRefill(history, asOf), nil
}
