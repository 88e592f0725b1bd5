package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sirupsen/logrus"

	"github.com/leadrelay/keygate/internal/model"
	"github.com/leadrelay/keygate/internal/permission"
	"github.com/leadrelay/keygate/internal/server/middleware"
	"github.com/leadrelay/keygate/internal/service"
	"github.com/leadrelay/keygate/internal/store"
)

// Error codes of the management API.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodeBadRequest = "BAD_REQUEST"
	CodeInternal   = "INTERNAL_ERROR"
)

const secretWarning = "Store this key securely. It will not be shown again."

// KeyHandler serves the management API for an account's API keys. Every
// route runs behind middleware.RequireSession and is scoped to the session's
// account.
type KeyHandler struct {
	keys   *service.KeyManager
	usage  *service.UsageRecorder
	logger *logrus.Logger
}

// NewKeyHandler creates the management handler.
func NewKeyHandler(keys *service.KeyManager, usage *service.UsageRecorder, logger *logrus.Logger) *KeyHandler {
	return &KeyHandler{keys: keys, usage: usage, logger: logger}
}

// keyView adds the display preview to the masked record.
type keyView struct {
	model.KeyRecord
	KeyPreview string `json:"key_preview"`
}

type createdKeyView struct {
	keyView
	Key string `json:"key"`
}

func viewOf(k model.KeyRecord) keyView {
	return keyView{KeyRecord: k, KeyPreview: k.Preview()}
}

func createdViewOf(c *model.CreatedKeySecret) createdKeyView {
	return createdKeyView{keyView: viewOf(c.KeyRecord), Key: c.Secret}
}

// List returns the account's keys.
// GET /api/v1/api-keys
func (h *KeyHandler) List(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())
	keys, err := h.keys.ListKeys(r.Context(), p.AccountID)
	if err != nil {
		h.fail(w, r, err, "list api keys")
		return
	}
	views := make([]keyView, 0, len(keys))
	for _, k := range keys {
		views = append(views, viewOf(k))
	}
	writeData(w, http.StatusOK, views, "")
}

// Create issues a key and returns its plaintext exactly once.
// POST /api/v1/api-keys
func (h *KeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())

	var in service.CreateKeyInput
	if err := readJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	in.AccountID = p.AccountID
	in.CreatedBy = p.UserID

	created, err := h.keys.CreateKey(r.Context(), in)
	if err != nil {
		h.fail(w, r, err, "create api key")
		return
	}
	writeData(w, http.StatusCreated, createdViewOf(created), secretWarning)
}

// Permissions lists the grantable permission catalogue.
// GET /api/v1/api-keys/permissions
func (h *KeyHandler) Permissions(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, permission.Available, "")
}

// Get returns one key.
// GET /api/v1/api-keys/{id}
func (h *KeyHandler) Get(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	k, err := h.keys.GetKey(r.Context(), id, p.AccountID)
	if err != nil {
		h.fail(w, r, err, "get api key")
		return
	}
	writeData(w, http.StatusOK, viewOf(*k), "")
}

// Update applies a partial update to a key.
// PATCH /api/v1/api-keys/{id}
func (h *KeyHandler) Update(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var u model.KeyUpdate
	if err := readJSON(w, r, &u); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	k, err := h.keys.UpdateKey(r.Context(), id, p.AccountID, u)
	if err != nil {
		h.fail(w, r, err, "update api key")
		return
	}
	writeData(w, http.StatusOK, viewOf(*k), "API key updated")
}

// Delete hard-deletes a key and its history.
// DELETE /api/v1/api-keys/{id}
func (h *KeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	deleted, err := h.keys.DeleteKey(r.Context(), id, p.AccountID)
	if err != nil {
		h.fail(w, r, err, "delete api key")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, CodeNotFound, "API key not found")
		return
	}
	writeData(w, http.StatusOK, nil, "API key deleted")
}

// Revoke deactivates a key.
// POST /api/v1/api-keys/{id}/revoke
func (h *KeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	if err := h.keys.RevokeKey(r.Context(), id, p.AccountID); err != nil {
		h.fail(w, r, err, "revoke api key")
		return
	}
	writeData(w, http.StatusOK, nil, "API key revoked")
}

// Regenerate revokes a key and issues a replacement with the same settings.
// POST /api/v1/api-keys/{id}/regenerate
func (h *KeyHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	created, err := h.keys.RegenerateKey(r.Context(), id, p.AccountID, p.UserID)
	if err != nil {
		h.fail(w, r, err, "regenerate api key")
		return
	}
	writeData(w, http.StatusCreated, createdViewOf(created), secretWarning)
}

// Usage reports a key's usage statistics.
// GET /api/v1/api-keys/{id}/usage?days=N
func (h *KeyHandler) Usage(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	// Ownership check before exposing any stats.
	if _, err := h.keys.GetKey(r.Context(), id, p.AccountID); err != nil {
		h.fail(w, r, err, "key usage")
		return
	}
	stats, err := h.usage.Stats(r.Context(), id, queryInt(r, "days", service.DefaultStatsDays))
	if err != nil {
		h.fail(w, r, err, "key usage")
		return
	}
	writeData(w, http.StatusOK, stats, "")
}

func (h *KeyHandler) id(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid key ID: "+chi.URLParam(r, "id"))
	}
	return id, ok
}

// fail maps a service error to a response. Unexpected errors are logged and
// reported without detail.
func (h *KeyHandler) fail(w http.ResponseWriter, r *http.Request, err error, op string) {
	var fieldErrs validation.Errors
	switch {
	case errors.Is(err, service.ErrValidation):
		fields := map[string]interface{}{}
		if errors.As(err, &fieldErrs) {
			fields["details"] = fieldErrs
		}
		writeError(w, http.StatusBadRequest, CodeValidation, "Validation failed", fields)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, "API key not found")
	default:
		h.logger.WithError(err).WithFields(logrus.Fields{
			"op":         op,
			"request_id": middleware.GetRequestID(r.Context()),
		}).Error("management request failed")
		writeError(w, http.StatusInternalServerError, CodeInternal, "Internal server error")
	}
}
