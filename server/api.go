package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"collabnotes/protocol"
)

// API is the HTTP surface of the server: document CRUD under /api/docs and
// the websocket endpoint under /api/ws.
type API struct {
	store  Store
	hub    *Hub
	router *mux.Router
}

// NewAPI wires the routes.
func NewAPI(store Store, hub *Hub) *API {
	a := &API{store: store, hub: hub, router: mux.NewRouter()}
	a.router.HandleFunc("/api/docs", a.listDocuments).Methods(http.MethodGet)
	a.router.HandleFunc("/api/docs", a.createDocument).Methods(http.MethodPost)
	a.router.HandleFunc("/api/docs/{id}", a.getDocument).Methods(http.MethodGet)
	a.router.HandleFunc("/api/docs/{id}", a.deleteDocument).Methods(http.MethodDelete)
	a.router.HandleFunc("/api/ws", hub.HandleWS)
	return a
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

func (a *API) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := a.store.Documents(r.Context())
	if err != nil {
		log.Printf("api: listing documents: %v", err)
		http.Error(w, "failed to list documents", http.StatusInternalServerError)
		return
	}
	if docs == nil {
		docs = []protocol.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (a *API) createDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title         string `json:"title"`
		CreatedBy     string `json:"createdBy"`
		CreatedByName string `json:"createdByName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		http.Error(w, "title is required", http.StatusBadRequest)
		return
	}
	now := time.Now().UTC()
	doc := protocol.Document{
		ID:            uuid.NewString(),
		Title:         req.Title,
		CreatedBy:     req.CreatedBy,
		CreatedByName: req.CreatedByName,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := a.store.CreateDocument(r.Context(), doc); err != nil {
		log.Printf("api: creating document: %v", err)
		http.Error(w, "failed to create document", http.StatusInternalServerError)
		return
	}
	// Let every connected client refresh its document list.
	a.hub.BroadcastNewDocument(doc)
	writeJSON(w, http.StatusCreated, doc)
}

func (a *API) getDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	doc, err := a.store.Document(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "document not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("api: loading document %s: %v", id, err)
		http.Error(w, "failed to load document", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (a *API) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := a.store.DeleteDocument(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "document not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("api: deleting document %s: %v", id, err)
		http.Error(w, "failed to delete document", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: writing response: %v", err)
	}
}
