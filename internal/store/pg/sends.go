package pg

import (
	"context"
	"database/sql"
	"errors"

	"casedesk.org/internal/guard"
	"casedesk.org/internal/send"
)

// SendStore persists external sends. The table rejects updates and deletes.
type SendStore struct {
	db *sql.DB
}

var _ send.Store = (*SendStore)(nil)

const sendColumns = `id, tenant_id, case_id, send_type, recipient_type, recipient_name, recipient_address,
	creditor_id, draft_id, content_snapshot, content_hash, send_method, sender_id, sent_at, confirmation_checked`

func (s *SendStore) Create(ctx context.Context, x send.ExternalSend) error {
	_, err := s.db.ExecContext(ctx, `
		insert into external_sends(`+sendColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, x.ID, x.TenantID, x.CaseID, string(x.SendType), string(x.RecipientType), x.RecipientName, x.RecipientAddress,
		nullString(x.CreditorID), nullString(x.DraftID), x.ContentSnapshot, x.ContentHash, string(x.SendMethod),
		x.SenderID, x.SentAt.UTC(), x.ConfirmationChecked)
	return err
}

func (s *SendStore) Get(ctx context.Context, tenantID, id string) (send.ExternalSend, error) {
	row := s.db.QueryRowContext(ctx, `select `+sendColumns+` from external_sends where id=$1 and tenant_id=$2`, id, tenantID)
	return scanSend(row)
}

func (s *SendStore) List(ctx context.Context, tenantID, caseID string, limit int) ([]send.ExternalSend, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+sendColumns+`
		from external_sends
		where tenant_id=$1 and ($2 = '' or case_id = $2)
		order by sent_at desc, id desc
		limit $3
	`, tenantID, caseID, clamp(limit, send.MaxList, send.MaxList))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []send.ExternalSend
	for rows.Next() {
		x, err := scanSend(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, rows.Err()
}

func scanSend(r rowScanner) (send.ExternalSend, error) {
	var (
		x                         send.ExternalSend
		sendType, recipient, meth string
		creditorID, draftID       sql.NullString
	)
	err := r.Scan(&x.ID, &x.TenantID, &x.CaseID, &sendType, &recipient, &x.RecipientName, &x.RecipientAddress,
		&creditorID, &draftID, &x.ContentSnapshot, &x.ContentHash, &meth, &x.SenderID, &x.SentAt, &x.ConfirmationChecked)
	if errors.Is(err, sql.ErrNoRows) {
		return send.ExternalSend{}, send.ErrNotFound
	}
	if err != nil {
		return send.ExternalSend{}, err
	}
	x.SendType = guard.SendType(sendType)
	x.RecipientType = guard.RecipientType(recipient)
	x.SendMethod = send.Method(meth)
	x.CreditorID = creditorID.String
	x.DraftID = draftID.String
	x.SentAt = x.SentAt.UTC()
	return x, nil
}
