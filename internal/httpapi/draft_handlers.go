package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"casedesk.org/internal/draft"
)

type reviewRequest struct {
	Action            string     `json:"action"`
	FinalContent      string     `json:"finalContent"`
	Comment           string     `json:"comment"`
	ReviewStartTime   *time.Time `json:"reviewStartTime"`
	FlagsAcknowledged bool       `json:"flagsAcknowledged"`
}

func (a *API) getDraft(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	d, err := a.svc.Drafts.Get(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) reviewDraft(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req reviewRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	rr := draft.ReviewRequest{
		Action:            draft.Action(req.Action),
		FinalContent:      req.FinalContent,
		Comment:           req.Comment,
		FlagsAcknowledged: req.FlagsAcknowledged,
	}
	if req.ReviewStartTime != nil {
		rr.ReviewStartedAt = *req.ReviewStartTime
	}
	d, err := a.svc.Drafts.Review(r.Context(), p, chi.URLParam(r, "id"), rr)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
