package audit

import (
	"encoding/json"
	"fmt"
)

// Details is the per-action payload of an entry. Each variant is bound to
// exactly one Action.
type Details interface {
	Action() Action
	isDetails()
}

type CaseViewDetails struct {
	Scope    string `json:"scope"`
	Returned int    `json:"returned,omitempty"`
}

type CaseCreateDetails struct {
	CaseNumber string `json:"caseNumber"`
	Title      string `json:"title"`
}

type DraftCreateDetails struct {
	DraftType string `json:"draftType"`
	Version   int    `json:"version"`
	FlagCount int    `json:"flagCount"`
}

type DraftViewDetails struct {
	DraftType string `json:"draftType"`
	Version   int    `json:"version"`
	Status    string `json:"status"`
}

// DraftApproveDetails records a disposition. Decision carries the outcome
// since the action is DRAFT_APPROVE for approve, modify and reject alike.
type DraftApproveDetails struct {
	Decision          string  `json:"decision"`
	DraftType         string  `json:"draftType"`
	DraftVersion      int     `json:"draftVersion"`
	ReviewTimeSeconds float64 `json:"reviewTimeSeconds"`
	ContentModified   bool    `json:"contentModified"`
	FlagCount         int     `json:"flagCount"`
	FlagsAcknowledged bool    `json:"flagsAcknowledged"`
}

type SendExecuteDetails struct {
	SendType            string `json:"sendType"`
	RecipientType       string `json:"recipientType"`
	RecipientName       string `json:"recipientName"`
	SendMethod          string `json:"sendMethod"`
	ConfirmationChecked bool   `json:"confirmationChecked"`
	DraftID             string `json:"draftId,omitempty"`
	ContentHash         string `json:"contentHash"`
}

type PermissionDeniedDetails struct {
	Operation string `json:"operation"`
	Code      string `json:"code"`
	Reason    string `json:"reason"`
}

type AuditViewDetails struct {
	Query    string `json:"query"`
	Returned int    `json:"returned"`
}

func (CaseViewDetails) Action() Action         { return ActionCaseView }
func (CaseCreateDetails) Action() Action       { return ActionCaseCreate }
func (DraftCreateDetails) Action() Action      { return ActionDraftCreate }
func (DraftViewDetails) Action() Action        { return ActionDraftView }
func (DraftApproveDetails) Action() Action     { return ActionDraftApprove }
func (SendExecuteDetails) Action() Action      { return ActionSendExecute }
func (PermissionDeniedDetails) Action() Action { return ActionPermissionDenied }
func (AuditViewDetails) Action() Action        { return ActionAuditView }

func (CaseViewDetails) isDetails()         {}
func (CaseCreateDetails) isDetails()       {}
func (DraftCreateDetails) isDetails()      {}
func (DraftViewDetails) isDetails()        {}
func (DraftApproveDetails) isDetails()     {}
func (SendExecuteDetails) isDetails()      {}
func (PermissionDeniedDetails) isDetails() {}
func (AuditViewDetails) isDetails()        {}

// EncodeDetails serialises d for storage. A nil Details encodes as nil.
func EncodeDetails(d Details) ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

// DecodeDetails restores the variant bound to action from its stored form.
func DecodeDetails(action Action, raw []byte) (Details, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var (
		d   Details
		err error
	)
	switch action {
	case ActionCaseView:
		d, err = decodeAs[CaseViewDetails](raw)
	case ActionCaseCreate:
		d, err = decodeAs[CaseCreateDetails](raw)
	case ActionDraftCreate:
		d, err = decodeAs[DraftCreateDetails](raw)
	case ActionDraftView:
		d, err = decodeAs[DraftViewDetails](raw)
	case ActionDraftApprove:
		d, err = decodeAs[DraftApproveDetails](raw)
	case ActionSendExecute:
		d, err = decodeAs[SendExecuteDetails](raw)
	case ActionPermissionDenied:
		d, err = decodeAs[PermissionDeniedDetails](raw)
	case ActionAuditView:
		d, err = decodeAs[AuditViewDetails](raw)
	default:
		return nil, fmt.Errorf("audit: no details variant for action %q", action)
	}
	if err != nil {
		return nil, fmt.Errorf("audit: decode %s details: %w", action, err)
	}
	return d, nil
}

func decodeAs[T Details](raw []byte) (Details, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// UnmarshalJSON restores Details using the entry's action as the tag.
func (e *Entry) UnmarshalJSON(b []byte) error {
	type plain Entry
	var aux struct {
		plain
		Details json.RawMessage `json:"details"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	d, err := DecodeDetails(aux.Action, aux.Details)
	if err != nil {
		return err
	}
	*e = Entry(aux.plain)
	e.Details = d
	return nil
}
