package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"casedesk.org/internal/draft"
	"casedesk.org/internal/ids"
)

// DraftStore persists drafts. Disposition is a conditional update so only one
// of several concurrent reviewers can move a draft out of PENDING.
type DraftStore struct {
	db *sql.DB
}

var _ draft.Store = (*DraftStore)(nil)

// versionAttempts bounds retries when two creates race for the same lineage version.
const versionAttempts = 3

const draftColumns = `id, tenant_id, case_id, draft_type, version, content, flags, status,
	reviewer_id, reviewed_at, review_comment, final_content, created_at`

func (s *DraftStore) Create(ctx context.Context, d draft.Draft) (draft.Draft, error) {
	if d.ID == "" {
		d.ID = ids.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if d.Flags == nil {
		d.Flags = []draft.Flag{}
	}
	d.Status = draft.StatusPending
	d.ReviewerID, d.ReviewedAt, d.ReviewComment, d.FinalContent = "", nil, "", ""

	flags, err := json.Marshal(d.Flags)
	if err != nil {
		return draft.Draft{}, err
	}
	for attempt := 1; ; attempt++ {
		err = s.db.QueryRowContext(ctx, `
			insert into drafts(id, tenant_id, case_id, draft_type, version, content, flags, status, created_at)
			select $1,$2,$3,$4, coalesce(max(version),0)+1, $5,$6,'PENDING',$7
			from drafts where tenant_id=$2 and case_id=$3 and draft_type=$4
			returning version
		`, d.ID, d.TenantID, d.CaseID, string(d.Type), d.Content, flags, d.CreatedAt).Scan(&d.Version)
		if err == nil {
			return d, nil
		}
		if !isUniqueViolation(err) || attempt == versionAttempts {
			return draft.Draft{}, fmt.Errorf("insert draft: %w", err)
		}
	}
}

func (s *DraftStore) Get(ctx context.Context, id string) (draft.Draft, error) {
	row := s.db.QueryRowContext(ctx, `select `+draftColumns+` from drafts where id=$1`, id)
	return scanDraft(row)
}

func (s *DraftStore) ListByCase(ctx context.Context, tenantID, caseID string) ([]draft.Draft, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+draftColumns+`
		from drafts
		where tenant_id=$1 and case_id=$2
		order by id desc
	`, tenantID, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []draft.Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *DraftStore) Dispose(ctx context.Context, tenantID, id string, disp draft.Disposition) error {
	res, err := s.db.ExecContext(ctx, `
		update drafts
		set status=$3, reviewer_id=$4, reviewed_at=$5, review_comment=$6, final_content=$7
		where id=$1 and tenant_id=$2 and status='PENDING'
	`, id, tenantID, string(disp.Status), disp.ReviewerID, disp.ReviewedAt.UTC(), disp.Comment, disp.FinalContent)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return draft.ErrAlreadyProcessed
	}
	return nil
}

func scanDraft(r rowScanner) (draft.Draft, error) {
	var (
		d        draft.Draft
		typ      string
		status   string
		flags    []byte
		reviewed sql.NullTime
	)
	err := r.Scan(&d.ID, &d.TenantID, &d.CaseID, &typ, &d.Version, &d.Content, &flags, &status,
		&d.ReviewerID, &reviewed, &d.ReviewComment, &d.FinalContent, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return draft.Draft{}, draft.ErrNotFound
	}
	if err != nil {
		return draft.Draft{}, err
	}
	d.Type = draft.Type(typ)
	d.Status = draft.Status(status)
	if reviewed.Valid {
		t := reviewed.Time.UTC()
		d.ReviewedAt = &t
	}
	if len(flags) > 0 {
		if err := json.Unmarshal(flags, &d.Flags); err != nil {
			return draft.Draft{}, fmt.Errorf("decode flags of draft %s: %w", d.ID, err)
		}
	}
	return d, nil
}
