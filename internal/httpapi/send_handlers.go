package httpapi

import (
	"net/http"
	"strings"

	"casedesk.org/internal/guard"
	"casedesk.org/internal/send"
)

type sendRequest struct {
	CaseID              string `json:"caseId"`
	SendType            string `json:"sendType"`
	RecipientType       string `json:"recipientType"`
	RecipientName       string `json:"recipientName"`
	RecipientAddress    string `json:"recipientAddress"`
	CreditorID          string `json:"creditorId"`
	DraftID             string `json:"draftId"`
	Content             string `json:"content"`
	SendMethod          string `json:"sendMethod"`
	ConfirmationChecked bool   `json:"confirmationChecked"`
}

func (a *API) executeSend(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req sendRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	receipt, err := a.svc.Sends.Execute(r.Context(), p, send.Request{
		CaseID:              req.CaseID,
		SendType:            guard.NormalizeSendType(req.SendType),
		RecipientType:       guard.NormalizeRecipientType(req.RecipientType),
		RecipientName:       req.RecipientName,
		RecipientAddress:    req.RecipientAddress,
		CreditorID:          req.CreditorID,
		DraftID:             req.DraftID,
		Content:             req.Content,
		SendMethod:          send.Method(strings.ToUpper(strings.TrimSpace(req.SendMethod))),
		ConfirmationChecked: req.ConfirmationChecked,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (a *API) listSends(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out, err := a.svc.Sends.List(r.Context(), p, r.URL.Query().Get("caseId"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items(out))
}
