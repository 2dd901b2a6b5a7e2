// Package httpapi exposes proposal intake, review and directory reads over JSON.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/now-is/chicommons-maps/internal/auth"
	"github.com/now-is/chicommons-maps/internal/domain"
	"github.com/now-is/chicommons-maps/internal/ingestion"
	"github.com/now-is/chicommons-maps/internal/middleware"
	"github.com/now-is/chicommons-maps/internal/moderation"
	"github.com/now-is/chicommons-maps/internal/repository"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	maxBodyBytes   = 1 << 20
	maxUploadBytes = 32 << 20
)

// Submitter records proposals.
type Submitter interface {
	Submit(ctx context.Context, actor domain.ActorContext, sub domain.Submission) (domain.Proposal, error)
}

// Reviewer closes proposals.
type Reviewer interface {
	Review(ctx context.Context, actor domain.ActorContext, proposalID uuid.UUID, decision domain.Decision, notes string) (domain.Proposal, error)
}

// Importer bulk-loads entries from an uploaded spreadsheet.
type Importer interface {
	Import(ctx context.Context, req ingestion.Request) (ingestion.Summary, error)
}

// Handler serves the directory API.
type Handler struct {
	Intake Submitter
	Review Reviewer
	Store  repository.Store
	Clock  domain.Clock
	Log    *zap.Logger
	// Imports enables POST /api/imports when set.
	Imports Importer

	lookup moderation.PublicationLookup
}

// NewHandler wires the API handlers.
func NewHandler(intake Submitter, review Reviewer, store repository.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Intake: intake,
		Review: review,
		Store:  store,
		Clock:  domain.SystemClock{},
		Log:    logger,
		lookup: moderation.NewPublicationLookup(logger),
	}
}

type submitRequest struct {
	Operation        string            `json:"operation"`
	PublicIdentityID *uuid.UUID        `json:"publicIdentityId,omitempty"`
	Entry            *domain.EntryBody `json:"entry,omitempty"`
}

type reviewRequest struct {
	Decision string `json:"decision"`
	Notes    string `json:"notes,omitempty"`
}

type proposalView struct {
	Proposal domain.Proposal       `json:"proposal"`
	Snapshot *domain.EntrySnapshot `json:"snapshot,omitempty"`
}

type entryView struct {
	Identity domain.PublicIdentity `json:"identity"`
	Snapshot domain.EntrySnapshot  `json:"snapshot"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (h *Handler) actor(r *http.Request) domain.ActorContext {
	actor, _ := auth.ActorFromContext(r.Context())
	return domain.ActorContext{Actor: actor, Clock: h.Clock}
}

// SubmitProposal handles POST /api/proposals.
func (h *Handler) SubmitProposal(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	sub, err := domain.ParseSubmission(req.Operation, req.PublicIdentityID, req.Entry)
	if err != nil {
		h.writeError(w, err)
		return
	}

	proposal, err := h.Intake.Submit(r.Context(), h.actor(r), sub)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, proposal)
}

// ReviewProposal handles POST /api/proposals/{id}/review.
func (h *Handler) ReviewProposal(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req reviewRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	decision, err := domain.ParseDecision(req.Decision)
	if err != nil {
		h.writeError(w, err)
		return
	}

	proposal, err := h.Review.Review(r.Context(), h.actor(r), id, decision, req.Notes)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proposal)
}

// GetProposal handles GET /api/proposals/{id}.
func (h *Handler) GetProposal(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	proposal, err := h.Store.Repos().Proposals().GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	view := proposalView{Proposal: proposal}
	if proposal.SnapshotID != nil {
		snapshot, err := h.Store.Repos().Snapshots().GetByID(r.Context(), *proposal.SnapshotID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		view.Snapshot = &snapshot
	}
	writeJSON(w, http.StatusOK, view)
}

// ListProposals handles GET /api/proposals, the review queue. Drafts are
// fetched through the request's snapshot loader in one batch.
func (h *Handler) ListProposals(w http.ResponseWriter, r *http.Request) {
	status := domain.ProposalPending
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status = domain.ProposalStatus(strings.ToUpper(raw))
		switch status {
		case domain.ProposalPending, domain.ProposalApproved, domain.ProposalRejected:
		default:
			h.writeError(w, domain.Validationf("unknown proposal status %q", raw))
			return
		}
	}
	limit, err := intParam(r, "limit", 50)
	if err != nil {
		h.writeError(w, err)
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		h.writeError(w, err)
		return
	}

	proposals, err := h.Store.Repos().Proposals().ListByStatus(r.Context(), status, limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}

	ids := make([]uuid.UUID, 0, len(proposals))
	for _, p := range proposals {
		if p.SnapshotID != nil {
			ids = append(ids, *p.SnapshotID)
		}
	}
	snapshots := map[uuid.UUID]domain.EntrySnapshot{}
	if loader := middleware.SnapshotLoaderFromContext(r.Context()); loader != nil && len(ids) > 0 {
		loaded, err := loader.LoadMany(r.Context(), ids)
		if err != nil {
			h.writeError(w, err)
			return
		}
		for _, s := range loaded {
			snapshots[s.ID] = s
		}
	}

	views := make([]proposalView, 0, len(proposals))
	for _, p := range proposals {
		view := proposalView{Proposal: p}
		if p.SnapshotID != nil {
			if s, ok := snapshots[*p.SnapshotID]; ok {
				view.Snapshot = &s
			}
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, views)
}

// GetEntry handles GET /api/entries/{identityId}: the published version.
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "identityId")
	if err != nil {
		h.writeError(w, err)
		return
	}

	repos := h.Store.Repos()
	identity, err := repos.Identities().GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	active, err := h.lookup.ActiveSnapshotFor(r.Context(), repos.Snapshots(), identity.ID, false)
	if err != nil {
		h.writeError(w, err)
		return
	}
	snapshot, err := repos.Snapshots().GetByID(r.Context(), active.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entryView{Identity: identity, Snapshot: snapshot})
}

// ImportEntries handles POST /api/imports, a multipart upload with a "file"
// part and an optional "approve" flag.
func (h *Handler) ImportEntries(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.writeError(w, domain.Validationf("invalid form data: %v", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, domain.Validationf("file required: %v", err))
		return
	}
	defer file.Close()

	approve := false
	if raw := strings.TrimSpace(r.FormValue("approve")); raw != "" {
		approve, err = strconv.ParseBool(raw)
		if err != nil {
			h.writeError(w, domain.Validationf("approve must be a boolean"))
			return
		}
	}

	summary, err := h.Imports.Import(r.Context(), ingestion.Request{
		FileName: header.Filename,
		Data:     file,
		Actor:    h.actor(r),
		Approve:  approve,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ListVocabulary handles GET /api/vocabulary.
func (h *Handler) ListVocabulary(w http.ResponseWriter, r *http.Request) {
	terms, err := h.Store.Repos().Vocabulary().List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, terms)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Validationf("request body is required")
		}
		return domain.Validationf("invalid JSON body: %v", err)
	}
	return nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.Validationf("invalid %s %q", name, raw)
	}
	return id, nil
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, domain.Validationf("invalid %s %q", name, raw)
	}
	return v, nil
}

func statusFor(err error) int {
	kind, ok := domain.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}
	if kind, ok := domain.KindOf(err); ok {
		resp.Kind = string(kind)
	}
	if status == http.StatusInternalServerError {
		h.Log.Error("request failed", zap.Error(err))
		resp.Error = fmt.Sprintf("internal error: %s", http.StatusText(status))
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
