// Package memory is an in-process dataset source and result sink, seedable
// from a YAML dataset file.
package memory

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"upagg/internal/aggregation/models"
	"upagg/pkg/platform/sentinel"
)

type Store struct {
	mu      sync.RWMutex
	dataset *models.Dataset
	runs    []*models.Report
	results map[models.EntityID]models.Result
}

// New stores a normalized copy of ds. A nil dataset loads as empty.
func New(ds *models.Dataset) *Store {
	if ds == nil {
		ds = &models.Dataset{}
	}
	cp := ds.Clone()
	cp.Normalize()
	return &Store{dataset: cp, results: make(map[models.EntityID]models.Result)}
}

// Open reads a YAML dataset file.
func Open(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	ds, err := Decode(f)
	if err != nil {
		return nil, err
	}
	return New(ds), nil
}

// Decode parses a YAML dataset. Unknown fields are rejected.
func Decode(r io.Reader) (*models.Dataset, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var ds models.Dataset
	if err := dec.Decode(&ds); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return &ds, nil
}

func (s *Store) Load(_ context.Context) (*models.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dataset.Clone(), nil
}

// SaveRun keeps the report and replaces the served results.
func (s *Store) SaveRun(ctx context.Context, report *models.Report) error {
	s.mu.Lock()
	s.runs = append(s.runs, report)
	s.mu.Unlock()
	return s.PutResults(ctx, report.Results)
}

func (s *Store) PutResults(_ context.Context, results []models.Result) error {
	next := make(map[models.EntityID]models.Result, len(results))
	for _, r := range results {
		next[r.EntityID] = r
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = next
	return nil
}

func (s *Store) FindResult(_ context.Context, id models.EntityID) (*models.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &r, nil
}

// Runs returns the saved reports in save order.
func (s *Store) Runs() []*models.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*models.Report(nil), s.runs...)
}
