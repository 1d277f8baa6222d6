package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"casedesk.org/internal/apperr"
	"casedesk.org/internal/cases"
	"casedesk.org/internal/draft"
)

type createCaseRequest struct {
	Title            string   `json:"title"`
	ClientUserID     string   `json:"clientUserId"`
	LawyerID         string   `json:"lawyerId"`
	AssignedStaffIDs []string `json:"assignedStaffIds"`
}

type addCreditorRequest struct {
	Name string `json:"name"`
}

type createDraftRequest struct {
	DraftType string       `json:"draftType"`
	Content   string       `json:"content"`
	Flags     []draft.Flag `json:"flags"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
}

func items[T any](v []T) listResponse[T] {
	if v == nil {
		v = []T{}
	}
	return listResponse[T]{Items: v}
}

func (a *API) listCases(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out, err := a.svc.Cases.List(r.Context(), p, limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items(out))
}

func (a *API) createCase(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req createCaseRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	c, err := a.svc.Cases.Create(r.Context(), p, cases.NewCase{
		Title:            req.Title,
		ClientUserID:     req.ClientUserID,
		LawyerID:         req.LawyerID,
		AssignedStaffIDs: req.AssignedStaffIDs,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (a *API) getCase(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	c, err := a.svc.Cases.Get(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) listCreditors(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out, err := a.svc.Cases.Creditors(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items(out))
}

func (a *API) addCreditor(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req addCreditorRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	cr, err := a.svc.Cases.AddCreditor(r.Context(), p, chi.URLParam(r, "id"), req.Name)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cr)
}

func (a *API) listDrafts(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out, err := a.svc.Drafts.ListByCase(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items(out))
}

func (a *API) createDraft(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req createDraftRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	typ, err := draft.ParseType(req.DraftType)
	if err != nil {
		a.fail(w, r, apperr.Invalid("", "%v", err))
		return
	}
	d, err := a.svc.Drafts.Create(r.Context(), p, draft.NewDraft{
		CaseID:  chi.URLParam(r, "id"),
		Type:    typ,
		Content: req.Content,
		Flags:   req.Flags,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.Invalid("", "%s must be a non-negative integer", key)
	}
	return n, nil
}
