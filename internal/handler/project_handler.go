package handler

import (
	"net/http"
	"strconv"
	"strings"

	"workbridge/internal/model"
	"workbridge/internal/service"
	"workbridge/pkg/apierror"
)

type ProjectHandler struct {
	projects  *service.ProjectService
	proposals *service.ProposalService
}

func NewProjectHandler(projects *service.ProjectService, proposals *service.ProposalService) *ProjectHandler {
	return &ProjectHandler{projects: projects, proposals: proposals}
}

func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload model.CreateProjectRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	project, err := h.projects.Create(r.Context(), actorFromRequest(r).UserID, payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, project, nil)
}

func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	query, err := parseProjectQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	list, meta, err := h.projects.List(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, list, meta)
}

func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, model.ErrProjectNotFound)
	if err != nil {
		writeError(w, err)
		return
	}

	project, err := h.projects.Get(r.Context(), projectID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, project, nil)
}

func (h *ProjectHandler) Close(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, model.ErrProjectNotFound)
	if err != nil {
		writeError(w, err)
		return
	}

	project, err := h.projects.Close(r.Context(), actorFromRequest(r), projectID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, project, nil)
}

func (h *ProjectHandler) SubmitProposal(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, model.ErrProjectNotFound)
	if err != nil {
		writeError(w, err)
		return
	}

	var payload model.SubmitProposalRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	proposal, err := h.proposals.Submit(r.Context(), actorFromRequest(r).UserID, projectID, payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, proposal, nil)
}

func (h *ProjectHandler) ListProposals(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, model.ErrProjectNotFound)
	if err != nil {
		writeError(w, err)
		return
	}

	list, err := h.proposals.ListForProject(r.Context(), actorFromRequest(r), projectID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, list, nil)
}

func (h *ProjectHandler) AcceptProposal(w http.ResponseWriter, r *http.Request) {
	proposalID, err := pathID(r, model.ErrProposalNotFound)
	if err != nil {
		writeError(w, err)
		return
	}

	acceptance, err := h.proposals.Accept(r.Context(), actorFromRequest(r), proposalID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, acceptance, nil)
}

func parseProjectQuery(r *http.Request) (model.ProjectQuery, error) {
	values := r.URL.Query()
	query := model.ProjectQuery{
		Status: model.ProjectStatus(strings.TrimSpace(values.Get("status"))),
	}

	switch query.Status {
	case "", model.ProjectOpen, model.ProjectInProgress, model.ProjectCompleted, model.ProjectClosed:
	default:
		return model.ProjectQuery{}, apierror.BadRequest("invalid status filter", string(query.Status))
	}

	var err error
	if query.Page, err = intParam(values.Get("page"), "page"); err != nil {
		return model.ProjectQuery{}, err
	}
	if query.Limit, err = intParam(values.Get("limit"), "limit"); err != nil {
		return model.ProjectQuery{}, err
	}

	return query, nil
}

func intParam(raw string, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apierror.BadRequest("invalid "+name, name)
	}
	return n, nil
}
