package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	httpmw "github.com/vega-chat/chat-service/internal/transport/http/middleware"
	"github.com/vega-chat/chat-service/internal/transport/ws"
)

func NewRouter(h *Handler, verifier httpmw.TokenVerifier, wsServer *ws.Server, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewareChi.RequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(middlewareChi.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// WS endpoint authenticates the handshake itself
	r.Get("/ws", wsServer.HandleWS)

	r.Route("/api", func(api chi.Router) {
		api.Use(middlewareChi.Timeout(30 * time.Second))

		api.Post("/login", h.Login)
		api.Post("/register", h.Register)

		api.Group(func(pr chi.Router) {
			pr.Use(httpmw.AuthMiddleware(verifier))

			pr.Get("/profile", h.GetProfile)
			pr.Put("/profile", h.UpdateProfile)

			pr.Get("/messages", h.GetMessages)
			pr.Get("/messages/private/{otherId}", h.GetPrivateMessages)
			pr.Get("/messages/search", h.SearchMessages)

			pr.Get("/rooms", h.ListRooms)
			pr.Post("/rooms", h.CreateRoom)

			pr.Get("/users", h.ListUsers)
		})
	})

	// health
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
