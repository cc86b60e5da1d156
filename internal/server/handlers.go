package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/mneme-app/mneme/internal/remote"
)

type ctxKey int

const ctxOwnerID ctxKey = iota

// Handler serves the remote store HTTP contract.
type Handler struct {
	store    *Store
	validate *validator.Validate
	logger   *zap.Logger
}

// NewHandler creates a Handler over store.
func NewHandler(store *Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:    store,
		validate: validator.New(),
		logger:   logger,
	}
}

// Router builds the full route table with device auth applied.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.deviceAuth)
	r.HandleFunc("/chats", h.createChat).Methods(http.MethodPost)
	r.HandleFunc("/chats", h.listChats).Methods(http.MethodGet)
	r.HandleFunc("/chats/{id}", h.updateChat).Methods(http.MethodPut)
	r.HandleFunc("/chats/{id}/messages", h.createMessage).Methods(http.MethodPost)
	r.HandleFunc("/messages", h.listMessages).Methods(http.MethodGet)
	r.HandleFunc("/messages/{id}", h.updateMessage).Methods(http.MethodPut)
	r.HandleFunc("/users/me", h.getUser).Methods(http.MethodGet)
	r.HandleFunc("/users/me", h.putUser).Methods(http.MethodPut)
	return r
}

// deviceAuth resolves X-Device-ID to an owner, registering the device on
// first contact. Every route below requires it.
func (h *Handler) deviceAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deviceID := r.Header.Get("X-Device-ID")
		if deviceID == "" {
			writeError(w, http.StatusUnauthorized, "missing X-Device-ID header")
			return
		}
		ownerID, err := h.store.EnsureUser(deviceID)
		if err != nil {
			h.logger.Error("register device", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		ctx := context.WithValue(r.Context(), ctxOwnerID, ownerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ownerFrom(r *http.Request) string {
	id, _ := r.Context().Value(ctxOwnerID).(string)
	return id
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	if err := h.validate.Struct(out); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return false
	}
	return true
}

func (h *Handler) internal(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (h *Handler) createChat(w http.ResponseWriter, r *http.Request) {
	var in remote.Chat
	if !h.decode(w, r, &in) {
		return
	}
	out, err := h.store.CreateChat(ownerFrom(r), &in)
	if err != nil {
		h.internal(w, "create chat", err)
		return
	}
	writeData(w, http.StatusCreated, out)
}

func (h *Handler) updateChat(w http.ResponseWriter, r *http.Request) {
	var in remote.Chat
	if !h.decode(w, r, &in) {
		return
	}
	out, err := h.store.UpdateChat(ownerFrom(r), mux.Vars(r)["id"], &in)
	if err != nil {
		h.internal(w, "update chat", err)
		return
	}
	if out == nil {
		writeError(w, http.StatusNotFound, "chat not found")
		return
	}
	writeData(w, http.StatusOK, out)
}

func (h *Handler) listChats(w http.ResponseWriter, r *http.Request) {
	out, err := h.store.ListChats(ownerFrom(r))
	if err != nil {
		h.internal(w, "list chats", err)
		return
	}
	if out == nil {
		out = []remote.Chat{}
	}
	writeData(w, http.StatusOK, out)
}

func (h *Handler) createMessage(w http.ResponseWriter, r *http.Request) {
	var in remote.Message
	if !h.decode(w, r, &in) {
		return
	}
	out, err := h.store.CreateMessage(ownerFrom(r), mux.Vars(r)["id"], &in)
	if err != nil {
		h.internal(w, "create message", err)
		return
	}
	if out == nil {
		writeError(w, http.StatusNotFound, "chat not found")
		return
	}
	writeData(w, http.StatusCreated, out)
}

func (h *Handler) updateMessage(w http.ResponseWriter, r *http.Request) {
	var in remote.Message
	if !h.decode(w, r, &in) {
		return
	}
	out, err := h.store.UpdateMessage(ownerFrom(r), mux.Vars(r)["id"], &in)
	if err != nil {
		h.internal(w, "update message", err)
		return
	}
	if out == nil {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}
	writeData(w, http.StatusOK, out)
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		var err error
		since, err = parseMillis(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since parameter")
			return
		}
	}
	out, err := h.store.ListMessages(ownerFrom(r), since)
	if err != nil {
		h.internal(w, "list messages", err)
		return
	}
	if out == nil {
		out = []remote.Message{}
	}
	writeData(w, http.StatusOK, out)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	out, err := h.store.GetUser(ownerFrom(r))
	if err != nil {
		h.internal(w, "get user", err)
		return
	}
	if out == nil {
		writeError(w, http.StatusNotFound, "profile not set")
		return
	}
	writeData(w, http.StatusOK, out)
}

func (h *Handler) putUser(w http.ResponseWriter, r *http.Request) {
	var in remote.User
	if !h.decode(w, r, &in) {
		return
	}
	out, err := h.store.PutUser(ownerFrom(r), &in)
	if err != nil {
		h.internal(w, "put user", err)
		return
	}
	writeData(w, http.StatusOK, out)
}
