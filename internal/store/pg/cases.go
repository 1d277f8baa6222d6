package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"casedesk.org/internal/cases"
	"casedesk.org/internal/ids"
)

// CaseStore persists cases and creditors.
type CaseStore struct {
	db *sql.DB
}

var _ cases.Store = (*CaseStore)(nil)

const caseColumns = `id, tenant_id, case_number, title, client_user_id, lawyer_id, assigned_staff_ids, created_at`

func (s *CaseStore) Create(ctx context.Context, c cases.Case) (cases.Case, error) {
	if c.TenantID == "" {
		return cases.Case{}, fmt.Errorf("%w: tenant is required", cases.ErrConflict)
	}
	if c.ID == "" {
		c.ID = ids.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	staff, err := json.Marshal(nonNil(c.AssignedStaffIDs))
	if err != nil {
		return cases.Case{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cases.Case{}, err
	}
	defer func() { _ = tx.Rollback() }()

	year := c.CreatedAt.Year()
	var seq int
	if err := tx.QueryRowContext(ctx, `
		insert into case_sequences(tenant_id, year, last_value)
		values ($1,$2,1)
		on conflict (tenant_id, year) do update
		set last_value = case_sequences.last_value + 1
		returning last_value
	`, c.TenantID, year).Scan(&seq); err != nil {
		return cases.Case{}, err
	}
	c.Number = cases.FormatNumber(year, seq)

	if _, err := tx.ExecContext(ctx, `
		insert into cases(`+caseColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, c.ID, c.TenantID, c.Number, c.Title, c.ClientUserID, c.LawyerID, staff, c.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return cases.Case{}, fmt.Errorf("%w: case %s exists", cases.ErrConflict, c.ID)
		}
		return cases.Case{}, err
	}
	if err := tx.Commit(); err != nil {
		return cases.Case{}, err
	}
	return c, nil
}

func (s *CaseStore) Get(ctx context.Context, tenantID, id string) (cases.Case, error) {
	row := s.db.QueryRowContext(ctx, `select `+caseColumns+` from cases where id=$1 and tenant_id=$2`, id, tenantID)
	return scanCase(row)
}

func (s *CaseStore) Lookup(ctx context.Context, id string) (cases.Case, error) {
	row := s.db.QueryRowContext(ctx, `select `+caseColumns+` from cases where id=$1`, id)
	return scanCase(row)
}

func (s *CaseStore) List(ctx context.Context, tenantID string, f cases.Filter) ([]cases.Case, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+caseColumns+`
		from cases
		where tenant_id=$1
		  and ($2 = '' or assigned_staff_ids @> jsonb_build_array($2::text))
		  and ($3 = '' or client_user_id = $3)
		order by id desc
		limit $4
	`, tenantID, f.AssignedStaffID, f.ClientUserID, clamp(f.Limit, cases.DefaultListLimit, cases.DefaultListLimit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []cases.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *CaseStore) AddCreditor(ctx context.Context, cr cases.Creditor) (cases.Creditor, error) {
	if cr.ID == "" {
		cr.ID = ids.New()
	}
	if cr.CreatedAt.IsZero() {
		cr.CreatedAt = time.Now().UTC()
	}
	// The select ties the insert to a case of the same tenant.
	res, err := s.db.ExecContext(ctx, `
		insert into creditors(id, tenant_id, case_id, name, normalized_name, created_at)
		select $1,$2,$3,$4,$5,$6
		from cases where id=$3 and tenant_id=$2
	`, cr.ID, cr.TenantID, cr.CaseID, cr.Name, cases.NormalizeName(cr.Name), cr.CreatedAt)
	if err != nil {
		return cases.Creditor{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return cases.Creditor{}, err
	} else if n == 0 {
		return cases.Creditor{}, cases.ErrNotFound
	}
	return cr, nil
}

func (s *CaseStore) ListCreditors(ctx context.Context, tenantID, caseID string) ([]cases.Creditor, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, tenant_id, case_id, name, noticed_at, created_at
		from creditors
		where tenant_id=$1 and case_id=$2
		order by id asc
	`, tenantID, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []cases.Creditor
	for rows.Next() {
		var cr cases.Creditor
		var noticed sql.NullTime
		if err := rows.Scan(&cr.ID, &cr.TenantID, &cr.CaseID, &cr.Name, &noticed, &cr.CreatedAt); err != nil {
			return nil, err
		}
		if noticed.Valid {
			t := noticed.Time.UTC()
			cr.NoticedAt = &t
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}

func (s *CaseStore) MarkCreditorsNoticed(ctx context.Context, tenantID, caseID string, m cases.CreditorMatch, at time.Time) (int, error) {
	name := cases.NormalizeName(m.Name)
	if m.ID == "" && name == "" {
		return 0, nil
	}
	var (
		res sql.Result
		err error
	)
	if m.ID != "" {
		res, err = s.db.ExecContext(ctx, `
			update creditors set noticed_at=$4
			where tenant_id=$1 and case_id=$2 and id=$3 and noticed_at is null
		`, tenantID, caseID, m.ID, at.UTC())
	} else {
		res, err = s.db.ExecContext(ctx, `
			update creditors set noticed_at=$4
			where tenant_id=$1 and case_id=$2 and normalized_name=$3 and noticed_at is null
		`, tenantID, caseID, name, at.UTC())
	}
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(r rowScanner) (cases.Case, error) {
	var c cases.Case
	var staff []byte
	err := r.Scan(&c.ID, &c.TenantID, &c.Number, &c.Title, &c.ClientUserID, &c.LawyerID, &staff, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return cases.Case{}, cases.ErrNotFound
	}
	if err != nil {
		return cases.Case{}, err
	}
	if len(staff) > 0 {
		if err := json.Unmarshal(staff, &c.AssignedStaffIDs); err != nil {
			return cases.Case{}, fmt.Errorf("decode assigned staff of case %s: %w", c.ID, err)
		}
	}
	if len(c.AssignedStaffIDs) == 0 {
		c.AssignedStaffIDs = nil
	}
	return c, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
