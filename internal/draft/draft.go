// Package draft implements the lawyer review workflow for AI-produced drafts.
package draft

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound         = errors.New("draft: not found")
	ErrAlreadyProcessed = errors.New("draft: already processed")
)

// Status is the review state. PENDING is the only non-terminal state.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusModified Status = "MODIFIED"
	StatusRejected Status = "REJECTED"
)

// Terminal reports whether no further transition exists from s.
func (s Status) Terminal() bool { return s != StatusPending }

// Sendable reports whether a draft in status s may back an external send.
func (s Status) Sendable() bool { return s == StatusApproved || s == StatusModified }

// Type is the document category of a draft.
type Type string

const (
	TypeRetentionNotice     Type = "RETENTION_NOTICE"
	TypePetition            Type = "PETITION"
	TypeSupplementaryFiling Type = "SUPPLEMENTARY_FILING"
	TypeCourtResponse       Type = "COURT_RESPONSE"
	TypeClientLegalResponse Type = "CLIENT_LEGAL_RESPONSE"
	TypeCreditorList        Type = "CREDITOR_LIST"
	TypeStatementOfAffairs  Type = "STATEMENT_OF_AFFAIRS"
)

var knownTypes = map[Type]struct{}{
	TypeRetentionNotice: {}, TypePetition: {}, TypeSupplementaryFiling: {},
	TypeCourtResponse: {}, TypeClientLegalResponse: {}, TypeCreditorList: {},
	TypeStatementOfAffairs: {},
}

// ParseType accepts the canonical form case-insensitively.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := knownTypes[t]; !ok {
		return "", fmt.Errorf("unknown draft type %q", s)
	}
	return t, nil
}

// Severity grades a flag.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Flag is an advisory item naming a next action. It never states a legal conclusion.
type Flag struct {
	Kind     string   `json:"kind"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Action   string   `json:"action"`
}

// Draft is one version of proposed content awaiting lawyer disposition.
type Draft struct {
	ID            string     `json:"id"`
	CaseID        string     `json:"caseId"`
	TenantID      string     `json:"tenantId"`
	Type          Type       `json:"draftType"`
	Version       int        `json:"version"`
	Content       string     `json:"content"`
	Flags         []Flag     `json:"flags"`
	Status        Status     `json:"status"`
	ReviewerID    string     `json:"reviewerId,omitempty"`
	ReviewedAt    *time.Time `json:"reviewedAt,omitempty"`
	ReviewComment string     `json:"reviewComment,omitempty"`
	FinalContent  string     `json:"finalContent,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// clone returns a copy that shares no mutable state with d.
func (d Draft) clone() Draft {
	if d.Flags != nil {
		d.Flags = append([]Flag(nil), d.Flags...)
	}
	if d.ReviewedAt != nil {
		t := *d.ReviewedAt
		d.ReviewedAt = &t
	}
	return d
}

// Disposition is the terminal write applied by Store.Dispose.
type Disposition struct {
	Status       Status
	ReviewerID   string
	ReviewedAt   time.Time
	Comment      string
	FinalContent string
}

// Store persists drafts.
type Store interface {
	// Create assigns the next version in the tenant/case/type lineage.
	Create(ctx context.Context, d Draft) (Draft, error)
	// Get loads by id. Callers must compare TenantID before exposing the draft.
	Get(ctx context.Context, id string) (Draft, error)
	ListByCase(ctx context.Context, tenantID, caseID string) ([]Draft, error)
	// Dispose moves a PENDING draft of tenantID to a terminal status. It returns
	// ErrAlreadyProcessed when no PENDING row matched.
	Dispose(ctx context.Context, tenantID, id string, d Disposition) error
}
