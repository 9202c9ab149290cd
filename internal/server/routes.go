package server

import (
	"net/http"

	"github.com/go-chi/cors"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check.
	mux.HandleFunc("GET /health", s.handleHealth)

	// Uploads.
	mux.HandleFunc("POST /v1/images", s.handleUploadImage)
	mux.HandleFunc("POST /v1/profile-images", s.handleUploadProfileImage)

	// By key.
	mux.HandleFunc("GET /v1/images/{key}", s.handleGetImage)
	mux.HandleFunc("DELETE /v1/images/{key}", s.handleDeleteImage)

	// By owner.
	mux.HandleFunc("GET /v1/owners/{owner}/image", s.handleGetOwnerImage)
	mux.HandleFunc("DELETE /v1/owners/{owner}/image", s.handleDeleteOwnerImage)

	// Admin.
	mux.HandleFunc("GET /v1/admin/images", s.handleAdminListImages)

	return mux
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Admin-Token"},
		MaxAge:         300,
	})(next)
}
