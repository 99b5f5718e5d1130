// Package admin exposes bearer-protected CRUD over portfolio collections.
package admin

import (
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/louisbranch/portfolio.studio/internal/auth"
	"github.com/louisbranch/portfolio.studio/internal/content"
	apperrors "github.com/louisbranch/portfolio.studio/internal/platform/errors"
	"github.com/louisbranch/portfolio.studio/internal/platform/logging"
	module "github.com/louisbranch/portfolio.studio/internal/services/web/module"
	"github.com/louisbranch/portfolio.studio/internal/services/web/platform/httpx"
	"github.com/louisbranch/portfolio.studio/internal/services/web/routepath"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
	maxBodyBytes    = 1 << 20
)

// Module provides the admin API. Authentication is applied by the
// composer's protected group.
type Module struct {
	store content.Store
}

// New returns an admin module.
func New() *Module { return &Module{} }

// ID returns a stable module identifier.
func (*Module) ID() string { return "admin" }

// Healthy reports whether a content store is configured.
func (m *Module) Healthy() bool { return m.store != nil }

// Mount wires admin route handlers.
func (m *Module) Mount(deps module.Dependencies) (module.Mount, error) {
	m.store = deps.Store
	h := handlers{store: deps.Store, logger: logging.OrNop(deps.Logger).Named("admin")}
	mux := http.NewServeMux()
	mux.HandleFunc(http.MethodGet+" "+routepath.AdminCollection, h.handleList)
	mux.HandleFunc(http.MethodPost+" "+routepath.AdminCollection, h.handleCreate)
	mux.HandleFunc(routepath.AdminCollection, httpx.MethodNotAllowed("GET, POST"))
	mux.HandleFunc(http.MethodGet+" "+routepath.AdminItem, h.handleGet)
	mux.HandleFunc(http.MethodPatch+" "+routepath.AdminItem, h.handleUpdate)
	mux.HandleFunc(http.MethodPut+" "+routepath.AdminItem, h.handleUpdate)
	mux.HandleFunc(http.MethodDelete+" "+routepath.AdminItem, h.handleDelete)
	mux.HandleFunc(routepath.AdminItem, httpx.MethodNotAllowed("GET, PATCH, PUT, DELETE"))
	return module.Mount{Prefix: routepath.AdminPrefix, Handler: mux}, nil
}

type handlers struct {
	store  content.Store
	logger *zap.Logger
}

type listResponse struct {
	Items         []content.Item `json:"items"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

func (h handlers) ready(w http.ResponseWriter) bool {
	if h.store == nil {
		_ = httpx.WriteJSONError(w, http.StatusServiceUnavailable, "content store is not configured")
		return false
	}
	return true
}

func (h handlers) handleList(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	collection, err := content.ParseCollection(r.PathValue("collection"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	pageSize, err := parsePageSize(r.URL.Query().Get("page_size"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	page, err := h.store.List(r.Context(), collection, pageSize, r.URL.Query().Get("page_token"))
	if err != nil {
		h.fail(w, r, "list", err)
		return
	}
	items := page.Items
	if items == nil {
		items = []content.Item{}
	}
	_ = httpx.WriteJSON(w, http.StatusOK, listResponse{Items: items, NextPageToken: page.NextPageToken})
}

func (h handlers) handleCreate(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	collection, err := content.ParseCollection(r.PathValue("collection"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	var item content.Item
	if err := httpx.DecodeJSON(r, maxBodyBytes, &item); err != nil {
		httpx.WriteError(w, err)
		return
	}
	item.Collection = collection
	item = item.Normalize()
	if err := item.Validate(); err != nil {
		httpx.WriteError(w, err)
		return
	}
	created, err := h.store.Create(r.Context(), item)
	if err != nil {
		h.fail(w, r, "create", err)
		return
	}
	h.audit(r, "created", created)
	w.Header().Set("Location", routepath.AdminItemPath(collection, created.ID))
	_ = httpx.WriteJSON(w, http.StatusCreated, created)
}

func (h handlers) handleGet(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	collection, id, err := itemPath(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	item, err := h.store.Get(r.Context(), collection, id)
	if err != nil {
		h.fail(w, r, "get", err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, item)
}

func (h handlers) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	collection, id, err := itemPath(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	var item content.Item
	if err := httpx.DecodeJSON(r, maxBodyBytes, &item); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if item.ID != "" && strings.TrimSpace(item.ID) != id {
		httpx.WriteError(w, apperrors.E(apperrors.KindInvalidInput, "item id does not match path"))
		return
	}
	item.ID = id
	item.Collection = collection
	item = item.Normalize()
	if err := item.Validate(); err != nil {
		httpx.WriteError(w, err)
		return
	}
	updated, err := h.store.Update(r.Context(), item)
	if err != nil {
		h.fail(w, r, "update", err)
		return
	}
	h.audit(r, "updated", updated)
	_ = httpx.WriteJSON(w, http.StatusOK, updated)
}

func (h handlers) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	collection, id, err := itemPath(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if err := h.store.Delete(r.Context(), collection, id); err != nil {
		h.fail(w, r, "delete", err)
		return
	}
	h.audit(r, "deleted", content.Item{ID: id, Collection: collection})
	w.WriteHeader(http.StatusNoContent)
}

func (h handlers) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if apperrors.KindOf(err) == apperrors.KindUnknown || apperrors.IsKind(err, apperrors.KindUnavailable) {
		h.logger.Error("admin store call failed",
			zap.String("op", op),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	httpx.WriteError(w, err)
}

func (h handlers) audit(r *http.Request, action string, item content.Item) {
	user, _ := auth.UserFromContext(r.Context())
	h.logger.Info("portfolio item "+action,
		zap.String("collection", string(item.Collection)),
		zap.String("id", item.ID),
		zap.String("user_id", user.ID))
}

func itemPath(r *http.Request) (content.Collection, string, error) {
	collection, err := content.ParseCollection(r.PathValue("collection"))
	if err != nil {
		return "", "", err
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		return "", "", apperrors.E(apperrors.KindInvalidInput, "item id is required")
	}
	return collection, id, nil
}

func parsePageSize(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultPageSize, nil
	}
	size, err := strconv.Atoi(raw)
	if err != nil || size <= 0 {
		return 0, apperrors.E(apperrors.KindInvalidInput, "page_size must be a positive integer")
	}
	return min(size, maxPageSize), nil
}
