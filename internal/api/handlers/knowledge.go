package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cloo-solutions/replygate/internal/api"
	"github.com/cloo-solutions/replygate/internal/domain"
	"github.com/cloo-solutions/replygate/internal/service"
	"github.com/go-chi/chi/v5"
)

type KnowledgeService interface {
	Ingest(ctx context.Context, input service.IngestInput) (*domain.KnowledgeEntry, error)
	Update(ctx context.Context, id string, input service.UpdateKnowledgeInput) (*domain.KnowledgeEntry, error)
	Deactivate(ctx context.Context, id string) (*domain.KnowledgeEntry, error)
	Get(ctx context.Context, id string) (*domain.KnowledgeEntry, error)
	List(ctx context.Context, includeInactive bool) ([]*domain.KnowledgeEntry, error)
	Search(ctx context.Context, query string, limit int, category string) ([]domain.ScoredEntry, error)
}

type KnowledgeHandler struct {
	svc KnowledgeService
}

func NewKnowledgeHandler(svc KnowledgeService) *KnowledgeHandler {
	return &KnowledgeHandler{svc: svc}
}

type IngestKnowledgeRequest struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

// UpdateKnowledgeRequest uses pointers so absent fields are left unchanged.
type UpdateKnowledgeRequest struct {
	Title    *string   `json:"title"`
	Content  *string   `json:"content"`
	Category *string   `json:"category"`
	Tags     *[]string `json:"tags"`
}

type SearchKnowledgeRequest struct {
	Query    string `json:"query"`
	Limit    int    `json:"limit"`
	Category string `json:"category"`
}

type ChunkResponse struct {
	ID      string `json:"id"`
	Index   int    `json:"index"`
	Content string `json:"content"`
}

type KnowledgeResponse struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Content    string          `json:"content,omitempty"`
	Category   string          `json:"category"`
	Tags       []string        `json:"tags"`
	Active     bool            `json:"active"`
	ChunkCount int             `json:"chunk_count"`
	Chunks     []ChunkResponse `json:"chunks,omitempty"`
	CreatedAt  string          `json:"created_at"`
	UpdatedAt  string          `json:"updated_at"`
}

type SearchResultResponse struct {
	Entry      *KnowledgeResponse `json:"entry"`
	Similarity float64            `json:"similarity"`
	BestChunk  *ChunkResponse     `json:"best_chunk,omitempty"`
}

func knowledgeToResponse(e *domain.KnowledgeEntry, withChunks bool) *KnowledgeResponse {
	resp := &KnowledgeResponse{
		ID:         e.ID,
		Title:      e.Title,
		Category:   e.Category,
		Tags:       e.Tags,
		Active:     e.Active,
		ChunkCount: len(e.Chunks),
		CreatedAt:  e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  e.UpdatedAt.Format(time.RFC3339),
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	if withChunks {
		resp.Content = e.Content
		resp.Chunks = make([]ChunkResponse, len(e.Chunks))
		for i, c := range e.Chunks {
			resp.Chunks[i] = chunkToResponse(c)
		}
	}
	return resp
}

func chunkToResponse(c domain.KnowledgeChunk) ChunkResponse {
	return ChunkResponse{ID: c.ID, Index: c.Index, Content: c.Content}
}

func (h *KnowledgeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req IngestKnowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := h.svc.Ingest(r.Context(), service.IngestInput{
		Title:    req.Title,
		Content:  req.Content,
		Category: req.Category,
		Tags:     req.Tags,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, knowledgeToResponse(entry, true))
}

func (h *KnowledgeHandler) Get(w http.ResponseWriter, r *http.Request) {
	entry, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, knowledgeToResponse(entry, true))
}

func (h *KnowledgeHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateKnowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input := service.UpdateKnowledgeInput{
		Title:    req.Title,
		Content:  req.Content,
		Category: req.Category,
	}
	if req.Tags != nil {
		input.Tags = *req.Tags
		input.SetTags = true
	}

	entry, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, knowledgeToResponse(entry, true))
}

// Delete deactivates the entry. It stays listable with include_inactive.
func (h *KnowledgeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	entry, err := h.svc.Deactivate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, knowledgeToResponse(entry, false))
}

func (h *KnowledgeHandler) List(w http.ResponseWriter, r *http.Request) {
	includeInactive := false
	if v := r.URL.Query().Get("include_inactive"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "include_inactive must be a boolean")
			return
		}
		includeInactive = parsed
	}

	entries, err := h.svc.List(r.Context(), includeInactive)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]*KnowledgeResponse, len(entries))
	for i, e := range entries {
		items[i] = knowledgeToResponse(e, false)
	}
	api.Success(w, http.StatusOK, map[string]any{"items": items})
}

func (h *KnowledgeHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchKnowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	results, err := h.svc.Search(r.Context(), req.Query, req.Limit, req.Category)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]SearchResultResponse, len(results))
	for i, res := range results {
		items[i] = SearchResultResponse{
			Entry:      knowledgeToResponse(res.Entry, false),
			Similarity: res.Similarity,
		}
		if res.BestChunk != nil {
			c := chunkToResponse(*res.BestChunk)
			items[i].BestChunk = &c
		}
	}
	api.Success(w, http.StatusOK, map[string]any{"results": items})
}
