package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/starford/atlas/internal/apperr"
	"github.com/starford/atlas/internal/contentstore"
)

const maxConfigBytes = 10 << 20

// GetConfiguration handles GET /api/users/{userID}/configuration.
//
//	@Summary		Get a user's personal configuration
//	@Tags			configuration
//	@Produce		json
//	@Param			userID	path		string	true	"User id"
//	@Success		200		{object}	ConfigurationResponse
//	@Security		BearerAuth
//	@Router			/users/{userID}/configuration [get]
func (h *Handler) GetConfiguration(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	content, cfg, err := h.configs.Get(r.Context(), userID)
	if err != nil {
		slog.Error("get configuration failed",
			slog.String("user_id", userID.String()), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, ConfigurationResponse{
		Content:   content,
		Path:      cfg.Path,
		Version:   cfg.Version,
		UpdatedAt: cfg.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

// SaveConfiguration handles PUT /api/users/{userID}/configuration.
//
//	@Summary		Save a user's configuration as a new version
//	@Tags			configuration
//	@Accept			json
//	@Produce		json
//	@Param			userID	path		string						true	"User id"
//	@Param			body	body		SaveConfigurationRequest	true	"Configuration content"
//	@Success		200		{object}	ConfigurationResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/users/{userID}/configuration [put]
func (h *Handler) SaveConfiguration(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxConfigBytes)
	var req SaveConfigurationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}
	cfg, err := h.configs.Save(r.Context(), userID, req.Content, req.Message)
	if err != nil {
		slog.Error("save configuration failed",
			slog.String("user_id", userID.String()), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, ConfigurationResponse{
		Content:   req.Content,
		Path:      cfg.Path,
		Version:   cfg.Version,
		UpdatedAt: cfg.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

// EffectiveConfiguration handles GET /api/users/{userID}/configuration/effective.
//
//	@Summary		Get the merged org, team, and personal configuration
//	@Tags			configuration
//	@Produce		json
//	@Param			userID	path		string	true	"User id"
//	@Success		200		{object}	EffectiveResponse
//	@Security		BearerAuth
//	@Router			/users/{userID}/configuration/effective [get]
func (h *Handler) EffectiveConfiguration(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	eff, err := h.configs.Effective(r.Context(), userID)
	if err != nil {
		slog.Error("effective configuration failed",
			slog.String("user_id", userID.String()), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, eff)
}

// ConfigurationVersions handles GET /api/users/{userID}/configuration/versions.
//
//	@Summary		List a user's configuration history, newest first
//	@Tags			configuration
//	@Produce		json
//	@Param			userID	path		string	true	"User id"
//	@Param			limit	query		int		false	"Max versions"
//	@Success		200		{object}	VersionListResponse
//	@Security		BearerAuth
//	@Router			/users/{userID}/configuration/versions [get]
func (h *Handler) ConfigurationVersions(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	versions, err := h.configs.History(r.Context(), userID, limit)
	if err != nil {
		slog.Error("configuration history failed",
			slog.String("user_id", userID.String()), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if versions == nil {
		versions = []contentstore.Version{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"versions": versions,
	})
}

// RollbackConfiguration handles POST /api/users/{userID}/configuration/rollback.
//
//	@Summary		Replay a historical version as a new version
//	@Tags			configuration
//	@Accept			json
//	@Produce		json
//	@Param			userID	path		string			true	"User id"
//	@Param			body	body		RollbackRequest	true	"Version to replay"
//	@Success		200		{object}	ConfigurationResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/users/{userID}/configuration/rollback [post]
func (h *Handler) RollbackConfiguration(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req RollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Version == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("version is required"))
		return
	}
	cfg, err := h.configs.Rollback(r.Context(), userID, req.Version)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
		} else {
			slog.Error("rollback failed",
				slog.String("user_id", userID.String()), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, ConfigurationResponse{
		Path:      cfg.Path,
		Version:   cfg.Version,
		UpdatedAt: cfg.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

// ImportConfiguration handles POST /api/users/{userID}/configuration/import
// (multipart/form-data, field "file").
//
//	@Summary		Import a local configuration file as a new version
//	@Tags			configuration
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			userID	path		string	true	"User id"
//	@Param			file	formData	file	true	"Configuration file"
//	@Success		200		{object}	ConfigurationResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/users/{userID}/configuration/import [post]
func (h *Handler) ImportConfiguration(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxConfigBytes)

	if err := r.ParseMultipartForm(maxConfigBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}
	if len(content) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("file is empty"))
		return
	}

	cfg, err := h.configs.Import(r.Context(), userID, string(content))
	if err != nil {
		slog.Error("import configuration failed",
			slog.String("user_id", userID.String()), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, ConfigurationResponse{
		Content:   string(content),
		Path:      cfg.Path,
		Version:   cfg.Version,
		UpdatedAt: cfg.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}
