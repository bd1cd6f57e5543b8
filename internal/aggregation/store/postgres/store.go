// Package postgres reads run inputs from and writes run outputs to
// PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"upagg/internal/aggregation/models"
	"upagg/pkg/platform/sentinel"
	txcontext "upagg/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

var resultColumns = []string{
	"run_id", "entity_id", "name", "domicile", "ultimate_parent_id", "ultimate_country",
	"name_of_ultimate_parent", "case_code", "parent_provenance", "country_provenance", "note",
	"used_pref_for_parent", "used_pref_for_country",
}

var compactColumns = []string{
	"run_id", "entity_id", "name", "domicile", "ultimate_parent_id", "ultimate_country",
	"name_of_ultimate_parent", "parent_provenance", "country_provenance",
}

// Store implements the dataset source, the run sink and result lookups.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) querier(ctx context.Context) dbQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Load reads the issuer table, every source table and the name tables.
// Source rows keep insertion order.
func (s *Store) Load(ctx context.Context) (*models.Dataset, error) {
	ds := &models.Dataset{
		Attestations: make(map[models.Source][]models.RawAttestation),
		Names:        make(map[models.Source][]models.NameRecord),
	}
	q := s.querier(ctx)

	rows, err := q.QueryContext(ctx, `
		SELECT entity_id, name, domicile, assoc_parent_id, assoc_country, modal_country
		FROM issuers
		ORDER BY entity_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query issuers: %w", err)
	}
	for rows.Next() {
		var r models.IssuerRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.Domicile, &r.AssocParentID, &r.AssocCountry, &r.ModalCountry); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan issuer: %w", err)
		}
		ds.Issuers = append(ds.Issuers, r)
	}
	if err := closeRows(rows, "issuers"); err != nil {
		return nil, err
	}

	rows, err = q.QueryContext(ctx, `
		SELECT source, entity_id, parent_id, country
		FROM source_attestations
		ORDER BY source, seq
	`)
	if err != nil {
		return nil, fmt.Errorf("query source attestations: %w", err)
	}
	for rows.Next() {
		var src models.Source
		var r models.RawAttestation
		if err := rows.Scan(&src, &r.ChildID, &r.ParentID, &r.Country); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan source attestation: %w", err)
		}
		ds.Attestations[src] = append(ds.Attestations[src], r)
	}
	if err := closeRows(rows, "source attestations"); err != nil {
		return nil, err
	}

	rows, err = q.QueryContext(ctx, `
		SELECT source, entity_id, name
		FROM entity_names
		ORDER BY source, seq
	`)
	if err != nil {
		return nil, fmt.Errorf("query entity names: %w", err)
	}
	for rows.Next() {
		var src models.Source
		var r models.NameRecord
		if err := rows.Scan(&src, &r.ID, &r.Name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan entity name: %w", err)
		}
		ds.Names[src] = append(ds.Names[src], r)
	}
	if err := closeRows(rows, "entity names"); err != nil {
		return nil, err
	}

	ds.Normalize()
	return ds, nil
}

func closeRows(rows *sql.Rows, what string) error {
	err := rows.Err()
	if cerr := rows.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", what, err)
	}
	return nil
}

// SaveRun writes the run row, the full table and the compact projection in
// one transaction. A run id already stored returns sentinel.ErrConflict.
func (s *Store) SaveRun(ctx context.Context, report *models.Report) error {
	if report == nil {
		return fmt.Errorf("report is required")
	}
	diag, err := json.Marshal(report.Diagnostics)
	if err != nil {
		return fmt.Errorf("marshal diagnostics: %w", err)
	}
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		_, err := s.querier(ctx).ExecContext(ctx, `
			INSERT INTO resolution_runs (run_id, started_at, finished_at, diagnostics)
			VALUES ($1, $2, $3, $4)
		`, report.RunID, report.StartedAt, report.FinishedAt, string(diag))
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				return fmt.Errorf("run %s: %w", report.RunID, sentinel.ErrConflict)
			}
			return fmt.Errorf("insert run: %w", err)
		}

		err = s.copyRows(ctx, "resolution_results", resultColumns, len(report.Results), func(i int) []any {
			r := report.Results[i]
			return []any{
				report.RunID, string(r.EntityID), r.Name, string(r.Domicile), string(r.ParentID), string(r.Country),
				r.ParentName, int(r.Case), r.ParentProvenance, r.CountryProvenance, r.Note,
				r.UsedPrefForParent, r.UsedPrefForCountry,
			}
		})
		if err != nil {
			return err
		}
		return s.copyRows(ctx, "resolution_results_compact", compactColumns, len(report.Results), func(i int) []any {
			c := report.Results[i].Compact()
			return []any{
				report.RunID, string(c.EntityID), c.Name, string(c.Domicile), string(c.ParentID), string(c.Country),
				c.ParentName, c.ParentProvenance, c.CountryProvenance,
			}
		})
	})
}

func (s *Store) copyRows(ctx context.Context, table string, columns []string, n int, row func(int) []any) error {
	tx, ok := txcontext.From(ctx)
	if !ok {
		return fmt.Errorf("copy into %s: %w", table, sentinel.ErrInvalidState)
	}
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table, columns...))
	if err != nil {
		return fmt.Errorf("prepare copy into %s: %w", table, err)
	}
	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, row(i)...); err != nil {
			_ = stmt.Close()
			return fmt.Errorf("copy row into %s: %w", table, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return fmt.Errorf("flush copy into %s: %w", table, err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("close copy into %s: %w", table, err)
	}
	return nil
}

// FindResult returns the row for id from the most recently finished run.
func (s *Store) FindResult(ctx context.Context, id models.EntityID) (*models.Result, error) {
	var r models.Result
	var caseCode int
	err := s.querier(ctx).QueryRowContext(ctx, `
		SELECT r.entity_id, r.name, r.domicile, r.ultimate_parent_id, r.ultimate_country,
		       r.name_of_ultimate_parent, r.case_code, r.parent_provenance, r.country_provenance,
		       r.note, r.used_pref_for_parent, r.used_pref_for_country
		FROM resolution_results r
		WHERE r.entity_id = $1
		  AND r.run_id = (SELECT run_id FROM resolution_runs ORDER BY finished_at DESC LIMIT 1)
	`, string(id)).Scan(
		&r.EntityID, &r.Name, &r.Domicile, &r.ParentID, &r.Country,
		&r.ParentName, &caseCode, &r.ParentProvenance, &r.CountryProvenance,
		&r.Note, &r.UsedPrefForParent, &r.UsedPrefForCountry,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find result: %w", err)
	}
	r.Case = models.CaseCode(caseCode)
	return &r, nil
}
