package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/quirze62/nodus/internal/client"
	"github.com/quirze62/nodus/internal/storage"
)

const maxBodyBytes = 32 * 1024

// newRouter builds the HTTP API surface.
func newRouter(c *client.Client, store *storage.Store, cacheBackendType string) http.Handler {
	api := &apiServer{client: c, store: store}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestLoggingMiddleware)
	r.Use(securityHeaders)
	r.Use(limitBody)

	r.Get("/health", api.handleHealth)
	r.Get("/metrics", metricsHandler(c, cacheBackendType))

	r.Route("/api", func(r chi.Router) {
		// Reads
		r.Get("/timeline", api.handleTimeline)
		r.Get("/thread/{id}", api.handleThread)
		r.Get("/profile/{pubkey}", api.handleGetProfile)
		r.Get("/contacts/{pubkey}", api.handleContacts)
		r.Get("/dm/{pubkey}", api.handleConversation)
		r.Get("/relays", api.handleGetRelays)

		// Writes
		r.Post("/post", api.handlePost)
		r.Post("/reply", api.handleReply)
		r.Post("/react", api.handleReact)
		r.Post("/repost", api.handleRepost)
		r.Post("/quote", api.handleQuote)
		r.Post("/delete", api.handleDelete)
		r.Post("/dm", api.handleSendDM)
		r.Post("/profile", api.handleUpdateProfile)
		r.Post("/follow", api.handleFollow)
		r.Post("/unfollow", api.handleUnfollow)
		r.Post("/relays", api.handleAddRelay)
		r.Delete("/relays", api.handleRemoveRelay)

		// Local store
		r.Route("/local", func(r chi.Router) {
			r.Get("/users", api.handleLocalListUsers)
			r.Post("/users", api.handleLocalCreateUser)
			r.Get("/users/{id}", api.handleLocalGetUser)
			r.Put("/users/{id}", api.handleLocalUpdateUser)
			r.Delete("/users/{id}", api.handleLocalDeleteUser)

			r.Get("/notes", api.handleLocalListNotes)
			r.Post("/notes", api.handleLocalSaveNote)
			r.Get("/notes/{id}", api.handleLocalGetNote)
			r.Delete("/notes/{id}", api.handleLocalDeleteNote)

			r.Get("/messages", api.handleLocalListMessages)
			r.Post("/messages", api.handleLocalSaveMessage)

			r.Get("/follows", api.handleLocalListFollows)
			r.Post("/follows", api.handleLocalFollow)
			r.Delete("/follows", api.handleLocalUnfollow)
		})
	})

	return r
}

type apiServer struct {
	client *client.Client
	store  *storage.Store
}

// securityHeaders sets conservative response headers on every request.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// limitBody caps request bodies; events and profile payloads are small.
func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}
