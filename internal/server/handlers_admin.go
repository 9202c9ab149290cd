package server

import (
	"fmt"
	"net/http"
	"strings"

	"imgstore/internal/api"
	"imgstore/internal/auth"
)

const adminTokenHeader = "X-Admin-Token"

func (s *Server) handleAdminListImages(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	limit, err := queryIntDefault(r, "limit", 0)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	images, err := s.images.ListImages(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ImageListResponse{Images: images, Count: len(images)})
}

// requireAdmin checks the admin token against the configured bcrypt hash.
// Without a configured hash the admin routes are closed.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if s.adminTokenHash == "" {
		s.writeErrorReq(w, r, http.StatusUnauthorized, unauthorized(fmt.Errorf("admin access is not configured")))
		return false
	}
	token := strings.TrimSpace(r.Header.Get(adminTokenHeader))
	if token == "" || !auth.VerifyToken(s.adminTokenHash, token) {
		s.writeErrorReq(w, r, http.StatusUnauthorized, unauthorized(fmt.Errorf("invalid admin token")))
		return false
	}
	return true
}
