package http

import (
	"net/http"

	"github.com/Wyydra/yamesh/internal/adapter/driven/gateway/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

type Handler struct {
	Hub       *ws.Hub
	JWTSecret string
	StaticDir string

	upgrader websocket.Upgrader
}

func NewHandler(hub *ws.Hub, jwtSecret string, allowedOrigins []string, staticDir string) *Handler {
	return &Handler{
		Hub:       hub,
		JWTSecret: jwtSecret,
		StaticDir: staticDir,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     OriginFilter(allowedOrigins),
		},
	}
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.With(JWTAuth(h.JWTSecret)).Get("/ws", h.ServeWS)

	if h.StaticDir != "" {
		fs := http.FileServer(http.Dir(h.StaticDir))
		r.Handle("/*", fs)
	}

	return r
}
