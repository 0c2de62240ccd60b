package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/starford/atlas/internal/apperr"
	"github.com/starford/atlas/internal/catalog"
	"github.com/starford/atlas/internal/configservice"
	"github.com/starford/atlas/internal/index"
	"github.com/starford/atlas/internal/reconcile"
)

// Notifier receives catalog change notifications for fan-out to clients.
type Notifier interface {
	PublishCatalogEvent(kind, path string)
}

// Handler holds API route handlers.
type Handler struct {
	cache   *catalog.Cache
	items   *catalog.Service
	configs *configservice.Service
	rec     *reconcile.Reconciler
	idx     index.Index
	notify  Notifier
}

// NewHandler creates a new Handler. notify may be nil.
func NewHandler(cache *catalog.Cache, items *catalog.Service, configs *configservice.Service,
	rec *reconcile.Reconciler, idx index.Index, notify Notifier) *Handler {
	return &Handler{cache: cache, items: items, configs: configs, rec: rec, idx: idx, notify: notify}
}

// actingUser extracts the acting user id from the X-User-ID header.
func actingUser(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.Header.Get("X-User-ID"))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// viewer resolves the request's catalog visibility scope. Requests without
// a valid X-User-ID header see org-scoped items only.
func (h *Handler) viewer(r *http.Request) *catalog.Viewer {
	userID, ok := actingUser(r)
	if !ok {
		return nil
	}
	v := &catalog.Viewer{UserID: userID}
	teams, err := h.idx.TeamsOf(userID)
	if err != nil {
		slog.Warn("viewer team lookup failed",
			slog.String("user_id", userID.String()), slog.String("error", err.Error()))
		return v
	}
	for _, t := range teams {
		v.TeamIDs = append(v.TeamIDs, t.ID)
	}
	return v
}

// pathID extracts a uuid path parameter, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

// ListItems handles GET /api/catalog.
//
//	@Summary		List catalog items visible to the caller
//	@Tags			catalog
//	@Produce		json
//	@Param			type	query		string	false	"Filter by item type"	Enums(skill, mcp, tool)
//	@Param			q		query		string	false	"Search query"
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{object}	ItemListResponse
//	@Security		BearerAuth
//	@Router			/catalog [get]
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	var itemType catalog.ItemType
	if raw := q.Get("type"); raw != "" {
		t, ok := catalog.ParseType(raw)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorBody("unknown item type"))
			return
		}
		itemType = t
	}

	items, total, err := h.cache.List(r.Context(), h.viewer(r), catalog.ListFilter{
		Type:   itemType,
		Query:  q.Get("q"),
		Offset: offset,
		Limit:  limit,
	})
	if err != nil {
		slog.Error("list items failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": total,
	})
}

// GetItem handles GET /api/catalog/{id}.
//
//	@Summary		Get a catalog item with its documentation
//	@Tags			catalog
//	@Produce		json
//	@Param			id	path		string	true	"Item id"
//	@Success		200	{object}	ItemDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/catalog/{id} [get]
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	detail, err := h.items.GetDetail(r.Context(), id, h.viewer(r))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get item failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// CreateItem handles POST /api/items.
//
//	@Summary		Publish a new item into the caller's namespace
//	@Tags			catalog
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateItemRequest	true	"Item to publish"
//	@Success		201		{object}	catalog.Item
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items [post]
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("X-User-ID header is required"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	item, err := h.items.Create(r.Context(), userID, req)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrValidation):
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		case errors.Is(err, apperr.ErrAlreadyExists):
			writeJSON(w, http.StatusConflict, errorBody("item already exists"))
		default:
			slog.Error("create item failed", slog.String("name", req.Name), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	if h.notify != nil {
		h.notify.PublishCatalogEvent("changed", item.Path)
	}
	writeJSON(w, http.StatusCreated, item)
}

// UpdateItem handles PUT /api/items/{id}.
//
//	@Summary		Edit an item the caller owns
//	@Tags			catalog
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Item id"
//	@Param			body	body		UpdateItemRequest	true	"Fields to change"
//	@Success		200		{object}	catalog.Item
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items/{id} [put]
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("X-User-ID header is required"))
		return
	}
	id := chi.URLParam(r, "id")

	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req UpdateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	item, err := h.items.Update(r.Context(), userID, id, req)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("update item failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	if h.notify != nil {
		h.notify.PublishCatalogEvent("changed", item.Path)
	}
	writeJSON(w, http.StatusOK, item)
}

// DeleteItem handles DELETE /api/items/{id}.
//
//	@Summary		Remove an item the caller owns
//	@Tags			catalog
//	@Param			id	path	string	true	"Item id"
//	@Success		204	"Item deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items/{id} [delete]
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("X-User-ID header is required"))
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.items.Delete(r.Context(), userID, id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("delete item failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Dashboard handles GET /api/dashboard.
//
//	@Summary		Per-user overview of catalog and configuration state
//	@Tags			dashboard
//	@Produce		json
//	@Success		200	{object}	catalog.Dashboard
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/dashboard [get]
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := actingUser(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("X-User-ID header is required"))
		return
	}
	d, err := h.items.Dashboard(r.Context(), userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("user not found"))
		} else {
			slog.Error("dashboard failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// SyncAll handles POST /api/sync.
//
//	@Summary		Run a full catalog reconciliation
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	SyncResponse
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *Handler) SyncAll(w http.ResponseWriter, r *http.Request) {
	result := h.rec.SyncAll(r.Context())
	h.afterSync(r, result)
	writeJSON(w, http.StatusOK, result)
}

// SyncPaths handles POST /api/sync/paths.
//
//	@Summary		Reconcile a specific list of content paths
//	@Tags			sync
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SyncPathsRequest	true	"Paths to reconcile"
//	@Success		200		{object}	SyncResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync/paths [post]
func (h *Handler) SyncPaths(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req SyncPathsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if len(req.Paths) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("paths are required"))
		return
	}
	result := h.rec.SyncPaths(r.Context(), req.Paths)
	h.afterSync(r, result)
	writeJSON(w, http.StatusOK, result)
}

// afterSync refreshes the cache and notifies clients once a manual
// reconciliation finished.
func (h *Handler) afterSync(r *http.Request, result reconcile.Result) {
	if err := h.cache.RefreshNow(r.Context()); err != nil {
		slog.Warn("cache refresh after sync failed", slog.String("error", err.Error()))
	}
	if h.notify != nil && result.Created+result.Updated+result.Deleted > 0 {
		h.notify.PublishCatalogEvent("synced", "")
	}
}

// CreateUser handles POST /api/users.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Email == "" || req.Username == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("email and username are required"))
		return
	}
	if existing, err := h.idx.GetUserByEmail(req.Email); err == nil {
		writeJSON(w, http.StatusOK, existing)
		return
	} else if !errors.Is(err, apperr.ErrNotFound) {
		slog.Error("user lookup failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}

	user := index.UserRow{
		ID:        uuid.New(),
		Email:     req.Email,
		Username:  req.Username,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.idx.UpsertUser(user); err != nil {
		slog.Error("create user failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// GetUser handles GET /api/users/{userID}.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	user, err := h.idx.GetUser(userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get user failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// CreateTeam handles POST /api/teams.
func (h *Handler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req CreateTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}
	team := index.TeamRow{
		ID:        uuid.New(),
		Name:      req.Name,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.idx.UpsertTeam(team); err != nil {
		slog.Error("create team failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusCreated, team)
}

// AddMember handles POST /api/teams/{teamID}/members.
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(w, r, "teamID")
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req AddMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid user_id"))
		return
	}
	if _, err := h.idx.GetTeam(teamID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("team not found"))
		} else {
			slog.Error("team lookup failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	if err := h.idx.AddMember(teamID, userID); err != nil {
		slog.Error("add member failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveMember handles DELETE /api/teams/{teamID}/members/{userID}.
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(w, r, "teamID")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	if err := h.idx.RemoveMember(teamID, userID); err != nil {
		slog.Error("remove member failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
