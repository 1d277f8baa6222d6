// Package cases holds the case and creditor records the control plane scopes
// drafts and sends to.
package cases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	textcases "golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"casedesk.org/internal/guard"
)

var (
	ErrNotFound = errors.New("cases: not found")
	ErrConflict = errors.New("cases: conflict")
)

// Case is one client matter within a tenant.
type Case struct {
	ID               string    `json:"id"`
	TenantID         string    `json:"tenantId"`
	Number           string    `json:"caseNumber"`
	Title            string    `json:"title"`
	ClientUserID     string    `json:"clientUserId,omitempty"`
	LawyerID         string    `json:"lawyerId,omitempty"`
	AssignedStaffIDs []string  `json:"assignedStaffIds,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Scope returns the visibility attributes of c.
func (c Case) Scope() guard.CaseScope {
	return guard.CaseScope{
		TenantID:         c.TenantID,
		ClientUserID:     c.ClientUserID,
		LawyerID:         c.LawyerID,
		AssignedStaffIDs: c.AssignedStaffIDs,
	}
}

// Creditor is a party owed by the client of a case.
type Creditor struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenantId"`
	CaseID    string     `json:"caseId"`
	Name      string     `json:"name"`
	NoticedAt *time.Time `json:"noticedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// CreditorMatch selects creditors of one case. ID wins over Name when set.
type CreditorMatch struct {
	ID   string
	Name string
}

// Filter narrows List to a visibility scope. Empty fields do not filter.
type Filter struct {
	AssignedStaffID string
	ClientUserID    string
	Limit           int
}

// Store persists cases and creditors. Every call is tenant scoped.
type Store interface {
	// Create assigns the case number for the tenant and creation year.
	Create(ctx context.Context, c Case) (Case, error)
	Get(ctx context.Context, tenantID, id string) (Case, error)
	// Lookup loads by id alone so callers can tell a foreign case from a
	// missing one. The result must pass a tenant check before use.
	Lookup(ctx context.Context, id string) (Case, error)
	List(ctx context.Context, tenantID string, f Filter) ([]Case, error)

	AddCreditor(ctx context.Context, cr Creditor) (Creditor, error)
	ListCreditors(ctx context.Context, tenantID, caseID string) ([]Creditor, error)
	// MarkCreditorsNoticed stamps at on matching creditors not yet noticed and
	// returns how many were updated.
	MarkCreditorsNoticed(ctx context.Context, tenantID, caseID string, m CreditorMatch, at time.Time) (int, error)
}

// FormatNumber renders the human-readable case number.
func FormatNumber(year, seq int) string {
	return fmt.Sprintf("%d-%04d", year, seq)
}

// NormalizeName folds case, width and whitespace so equivalent spellings of a
// creditor name compare equal.
func NormalizeName(name string) string {
	name = norm.NFKC.String(name)
	name = strings.Join(strings.Fields(name), " ")
	return textcases.Fold().String(name)
}

// DefaultListLimit bounds List when the filter carries no limit.
const DefaultListLimit = 200

func clampLimit(n int) int {
	if n <= 0 || n > DefaultListLimit {
		return DefaultListLimit
	}
	return n
}
