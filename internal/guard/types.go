package guard

import (
	"strings"

	"casedesk.org/internal/auth"
)

// SendType enumerates the legally gated external send categories.
type SendType string

const (
	SendRetentionNotice     SendType = "RETENTION_NOTICE"
	SendPetition            SendType = "PETITION"
	SendSupplementaryFiling SendType = "SUPPLEMENTARY_FILING"
	SendCourtResponse       SendType = "COURT_RESPONSE"
	SendClientLegalResponse SendType = "CLIENT_LEGAL_RESPONSE"
)

// AllSendTypes lists the five gated categories.
var AllSendTypes = []SendType{
	SendRetentionNotice, SendPetition, SendSupplementaryFiling, SendCourtResponse, SendClientLegalResponse,
}

var sendPermission = map[SendType]auth.Permission{
	SendRetentionNotice:     auth.PermSendRetentionNotice,
	SendPetition:            auth.PermSendPetition,
	SendSupplementaryFiling: auth.PermSendSupplementary,
	SendCourtResponse:       auth.PermSendCourtResponse,
	SendClientLegalResponse: auth.PermSendClientLegal,
}

// Permission returns the capability guarding t, if t is a gated category.
func (t SendType) Permission() (auth.Permission, bool) {
	p, ok := sendPermission[t]
	return p, ok
}

// NormalizeSendType canonicalizes s without judging it; RequireSendPermission
// rejects anything outside the gated categories.
func NormalizeSendType(s string) SendType {
	return SendType(strings.ToUpper(strings.TrimSpace(s)))
}

// MessageType is the client-facing class a send of type t carries. Every
// gated category is a legal communication; anything else is SYSTEM.
func (t SendType) MessageType() MessageType {
	if _, gated := t.Permission(); gated {
		return MessageLegalResponse
	}
	return MessageSystem
}

// RecipientType is the class of party receiving an external send.
type RecipientType string

const (
	RecipientClient   RecipientType = "CLIENT"
	RecipientCreditor RecipientType = "CREDITOR"
	RecipientCourt    RecipientType = "COURT"
)

// NormalizeRecipientType canonicalizes s; unknown recipients are refused by
// RequireRecipient.
func NormalizeRecipientType(s string) RecipientType {
	return RecipientType(strings.ToUpper(strings.TrimSpace(s)))
}

// MessageType classifies client-facing messages.
type MessageType string

const (
	MessageLegalResponse MessageType = "LEGAL_RESPONSE"
	MessageAdminNotice   MessageType = "ADMIN_NOTICE"
	MessageReminder      MessageType = "REMINDER"
	MessageSystem        MessageType = "SYSTEM"
)

// CaseScope is the subset of a case that decides who may see it.
type CaseScope struct {
	TenantID         string
	ClientUserID     string
	LawyerID         string
	AssignedStaffIDs []string
}
