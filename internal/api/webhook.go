package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/starford/atlas/internal/catalog"
)

const maxWebhookBytes = 5 << 20

// pushPayload is the subset of the GitHub push event the handler needs.
type pushPayload struct {
	Ref     string `json:"ref"`
	Commits []struct {
		Added    []string `json:"added"`
		Modified []string `json:"modified"`
		Removed  []string `json:"removed"`
	} `json:"commits"`
}

// WebhookHandler receives GitHub push events and reconciles the paths they
// touched. It carries its own secret and is mounted outside the Bearer
// auth group since GitHub authenticates via request signature.
type WebhookHandler struct {
	secret []byte
	inner  *Handler
}

// NewWebhookHandler creates a webhook handler. An empty secret disables
// signature verification, which is only acceptable in development.
func NewWebhookHandler(secret string, inner *Handler) *WebhookHandler {
	return &WebhookHandler{secret: []byte(secret), inner: inner}
}

// verifySignature checks the X-Hub-Signature-256 header against the body.
func (wh *WebhookHandler) verifySignature(body []byte, header string) bool {
	if len(wh.secret) == 0 {
		return true
	}
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	mac := hmac.New(sha256.New, wh.secret)
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(sig), []byte(want))
}

// changedPaths collects the distinct recognized paths touched across all
// commits in the push, sorted for reproducible sync reports.
func changedPaths(p pushPayload) []string {
	seen := make(map[string]struct{})
	for _, c := range p.Commits {
		for _, group := range [][]string{c.Added, c.Modified, c.Removed} {
			for _, path := range group {
				if catalog.Recognized(path) {
					seen[path] = struct{}{}
				}
			}
		}
	}
	paths := make([]string, 0, len(seen))
	for path := range seen {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// ServeHTTP handles POST /webhooks/github.
func (wh *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	if !wh.verifySignature(body, r.Header.Get("X-Hub-Signature-256")) {
		writeJSON(w, http.StatusUnauthorized, errorBody("invalid signature"))
		return
	}

	if event := r.Header.Get("X-GitHub-Event"); event != "" && event != "push" {
		writeJSON(w, http.StatusOK, map[string]any{"ignored": event})
		return
	}

	var payload pushPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	paths := changedPaths(payload)
	if len(paths) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"synced": 0})
		return
	}

	result := wh.inner.rec.SyncPaths(r.Context(), paths)
	wh.inner.afterSync(r, result)
	slog.Info("webhook sync complete",
		slog.String("ref", payload.Ref),
		slog.Int("paths", len(paths)),
		slog.Int("created", result.Created),
		slog.Int("updated", result.Updated),
		slog.Int("deleted", result.Deleted))
	writeJSON(w, http.StatusOK, result)
}
