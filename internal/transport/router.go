package transport

import "net/http"

type Handler interface {
	startBatch(w http.ResponseWriter, r *http.Request)
	cancel(w http.ResponseWriter, r *http.Request)
	tasks(w http.ResponseWriter, r *http.Request)
	health(w http.ResponseWriter, r *http.Request)
}

type router struct {
	h Handler
}

func NewRouter(h Handler) *router {
	return &router{h: h}
}

func (r *router) MountRoutes(mux *http.ServeMux) *http.ServeMux {
	mux.HandleFunc("/batches", r.h.startBatch)
	mux.HandleFunc("/batches/cancel", r.h.cancel)
	mux.HandleFunc("/tasks", r.h.tasks)
	mux.HandleFunc("/health", r.h.health)

	return mux
}
