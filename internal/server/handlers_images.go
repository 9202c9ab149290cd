package server

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"imgstore/internal/api"
	"imgstore/internal/models"
)

func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	if !s.allowUpload(w, r) {
		return
	}
	upload, ok := s.readUpload(w, r, s.images.generalPolicy)
	if !ok {
		return
	}

	info, err := s.images.UploadGeneral(r.Context(), upload)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, uploadResponse(info))
}

func (s *Server) handleUploadProfileImage(w http.ResponseWriter, r *http.Request) {
	if !s.allowUpload(w, r) {
		return
	}
	upload, ok := s.readUpload(w, r, s.images.ownerPolicy)
	if !ok {
		return
	}

	info, err := s.images.UploadForOwner(r.Context(), upload, r.FormValue("owner"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, uploadResponse(info))
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	img, err := s.images.FetchByKey(r.Context(), r.PathValue("key"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeImage(w, r, img)
}

func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	deleted, err := s.images.DeleteByKey(r.Context(), key)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.DeleteResponse{Key: key, Deleted: deleted})
}

func (s *Server) handleGetOwnerImage(w http.ResponseWriter, r *http.Request) {
	img, err := s.images.FetchByOwner(r.Context(), r.PathValue("owner"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeImage(w, r, img)
}

func (s *Server) handleDeleteOwnerImage(w http.ResponseWriter, r *http.Request) {
	owner := strings.TrimSpace(r.PathValue("owner"))
	deleted, err := s.images.DeleteByOwner(r.Context(), owner)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.DeleteResponse{Owner: owner, Deleted: deleted})
}

// readUpload parses the multipart "file" part. The declared size and
// content type come from the part headers, not from the bytes. A body past
// the server-wide limit fails policy's size rule.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request, policy UploadPolicy) (ImageUpload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBody)
	if err := r.ParseMultipartForm(multipartMaxMemory); err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, classifyMultipartError(err, policy))
		return ImageUpload{}, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("file is required"), ErrCodeMissingRequired))
		return ImageUpload{}, false
	}
	defer file.Close()

	if header.Size == 0 {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("file is empty"), ErrCodeEmptyFile))
		return ImageUpload{}, false
	}

	payload, err := io.ReadAll(file)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, classifyMultipartError(err, policy))
		return ImageUpload{}, false
	}

	return ImageUpload{
		Payload:      payload,
		DeclaredSize: header.Size,
		OriginalName: header.Filename,
		ContentType:  strings.TrimSpace(header.Header.Get("Content-Type")),
	}, true
}

func (s *Server) writeImage(w http.ResponseWriter, r *http.Request, img *models.StoredImage) {
	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, "", img.CreatedAt, bytes.NewReader(img.Payload))
}

func uploadResponse(info models.ImageInfo) api.UploadResponse {
	return api.UploadResponse{
		Key:         info.Key,
		URL:         "/v1/images/" + url.PathEscape(info.Key),
		SizeBytes:   info.SizeBytes,
		ContentType: info.ContentType,
		Owner:       info.Owner,
	}
}
