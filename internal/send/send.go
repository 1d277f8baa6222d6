// Package send is the terminal gate for content leaving the system.
package send

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"casedesk.org/internal/cases"
	"casedesk.org/internal/guard"
)

var ErrNotFound = errors.New("send: not found")

// Method is how a send was transmitted.
type Method string

const (
	MethodEmail          Method = "EMAIL"
	MethodFax            Method = "FAX"
	MethodPostal         Method = "POSTAL"
	MethodRegisteredMail Method = "REGISTERED_MAIL"
	MethodEFiling        Method = "E_FILING"
	MethodPortal         Method = "PORTAL"
	MethodHandDelivery   Method = "HAND_DELIVERY"
)

var knownMethods = map[Method]struct{}{
	MethodEmail: {}, MethodFax: {}, MethodPostal: {}, MethodRegisteredMail: {},
	MethodEFiling: {}, MethodPortal: {}, MethodHandDelivery: {},
}

// ExternalSend is the immutable evidence of one transmission.
type ExternalSend struct {
	ID                  string              `json:"id"`
	TenantID            string              `json:"tenantId"`
	CaseID              string              `json:"caseId"`
	SendType            guard.SendType      `json:"sendType"`
	RecipientType       guard.RecipientType `json:"recipientType"`
	RecipientName       string              `json:"recipientName"`
	RecipientAddress    string              `json:"recipientAddress,omitempty"`
	CreditorID          string              `json:"creditorId,omitempty"`
	DraftID             string              `json:"draftId,omitempty"`
	ContentSnapshot     string              `json:"contentSnapshot"`
	ContentHash         string              `json:"contentHash"`
	SendMethod          Method              `json:"sendMethod"`
	SenderID            string              `json:"senderId"`
	SentAt              time.Time           `json:"sentAt"`
	ConfirmationChecked bool                `json:"confirmationChecked"`
}

// hashed is the canonical form fed to ContentHash. Field order is fixed.
type hashed struct {
	TenantID            string `json:"tenantId"`
	CaseID              string `json:"caseId"`
	SendType            string `json:"sendType"`
	RecipientType       string `json:"recipientType"`
	RecipientName       string `json:"recipientName"`
	RecipientAddress    string `json:"recipientAddress"`
	CreditorID          string `json:"creditorId"`
	DraftID             string `json:"draftId"`
	Content             string `json:"content"`
	SendMethod          string `json:"sendMethod"`
	SenderID            string `json:"senderId"`
	SentAt              string `json:"sentAt"`
	ConfirmationChecked bool   `json:"confirmationChecked"`
}

// ComputeHash returns "sha256:<hex>" over the canonical JSON of s without its
// ID and hash.
func ComputeHash(s ExternalSend) (string, error) {
	b, err := json.Marshal(hashed{
		TenantID:            s.TenantID,
		CaseID:              s.CaseID,
		SendType:            string(s.SendType),
		RecipientType:       string(s.RecipientType),
		RecipientName:       s.RecipientName,
		RecipientAddress:    s.RecipientAddress,
		CreditorID:          s.CreditorID,
		DraftID:             s.DraftID,
		Content:             s.ContentSnapshot,
		SendMethod:          string(s.SendMethod),
		SenderID:            s.SenderID,
		SentAt:              s.SentAt.UTC().Format(time.RFC3339Nano),
		ConfirmationChecked: s.ConfirmationChecked,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// Verify reports whether s still matches its recorded hash.
func Verify(s ExternalSend) bool {
	h, err := ComputeHash(s)
	return err == nil && h == s.ContentHash
}

// Store persists sends. There is no update or delete.
type Store interface {
	Create(ctx context.Context, s ExternalSend) error
	Get(ctx context.Context, tenantID, id string) (ExternalSend, error)
	// List returns up to limit sends of the case, newest first.
	List(ctx context.Context, tenantID, caseID string, limit int) ([]ExternalSend, error)
}

// CreditorNoticer marks creditors as having received a retention notice.
type CreditorNoticer interface {
	MarkCreditorsNoticed(ctx context.Context, tenantID, caseID string, m cases.CreditorMatch, at time.Time) (int, error)
}

// Archiver copies a completed send to durable evidence storage.
type Archiver interface {
	Archive(ctx context.Context, s ExternalSend) error
}

// MaxList caps List results.
const MaxList = 100
