package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"imgstore/internal/api"
)

const multipartMaxMemory = 8 << 20 // 8 MiB

// statusCodeNames maps HTTP statuses to the string codes clients switch on.
var statusCodeNames = map[int]string{
	http.StatusBadRequest:          "invalid_argument",
	http.StatusUnauthorized:        "unauthorized",
	http.StatusForbidden:           "forbidden",
	http.StatusNotFound:            "not_found",
	http.StatusTooManyRequests:     "resource_exhausted",
	http.StatusInternalServerError: "internal",
}

// apiError carries the HTTP status and both error codes alongside the cause.
type apiError struct {
	status  int
	code    string
	errCode int
	err     error
}

func (e apiError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e apiError) Unwrap() error {
	return e.err
}

// makeAPIError wraps err unless it already carries a status.
func makeAPIError(status int, errCode int, err error) error {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}
	var existing apiError
	if errors.As(err, &existing) && existing.status != 0 {
		return existing
	}
	return apiError{status: status, code: statusCodeNames[status], errCode: errCode, err: err}
}

func badRequestCode(err error, code int) error {
	return makeAPIError(http.StatusBadRequest, code, err)
}

func notFoundCode(err error, code int) error {
	return makeAPIError(http.StatusNotFound, code, err)
}

func unauthorized(err error) error {
	return makeAPIError(http.StatusUnauthorized, ErrCodeUnauthorized, err)
}

func tooManyRequests(err error) error {
	return makeAPIError(http.StatusTooManyRequests, ErrCodeResourceExhausted, err)
}

func storeFailure(err error) error {
	return makeAPIError(http.StatusInternalServerError, ErrCodeStoreFailure, err)
}

func httpStatusFromError(err error) int {
	var apiErr apiError
	if errors.As(err, &apiErr) {
		return apiErr.status
	}
	return http.StatusInternalServerError
}

func errorCode(status int, err error) string {
	var apiErr apiError
	if errors.As(err, &apiErr) && apiErr.code != "" {
		return apiErr.code
	}
	return statusCodeNames[status]
}

func errorNumericCode(status int, err error) int {
	var apiErr apiError
	if errors.As(err, &apiErr) && apiErr.errCode > 0 {
		return apiErr.errCode
	}
	return defaultErrorCodeByStatus(status)
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeErrorReq(w, r, httpStatusFromError(err), err)
}

// writeErrorReq writes the JSON error body. Messages of 5xx errors stay in
// the log and the client sees "internal error".
func (s *Server) writeErrorReq(w http.ResponseWriter, r *http.Request, status int, err error) {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}

	resp := api.ErrorResponse{
		Error:     err.Error(),
		Code:      errorCode(status, err),
		ErrorCode: errorNumericCode(status, err),
	}
	fields := []any{"status", status, "code", resp.Code, "error_code", resp.ErrorCode, "error", err}
	if r != nil {
		fields = append(fields, "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)
	}

	switch {
	case status >= 500:
		s.log().Error("request error", fields...)
		resp.Error = "internal error"
	case shouldWarnClientError(status):
		s.log().Warn("request rejected", fields...)
	default:
		s.log().Debug("request rejected", fields...)
	}

	s.writeJSON(w, status, resp)
}

func shouldWarnClientError(status int) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("write json response", "status", status, "error", err)
	}
}

// classifyMultipartError reports an oversized body as the route's file size
// rule and any other parse failure as a plain invalid argument.
func classifyMultipartError(err error, policy UploadPolicy) error {
	if err == nil {
		return nil
	}
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) || strings.Contains(strings.ToLower(err.Error()), "request body too large") {
		return fileTooLarge(policy)
	}
	return badRequestCode(fmt.Errorf("invalid multipart upload: %w", err), ErrCodeInvalidArgument)
}

func queryIntDefault(r *http.Request, key string, def int) (int, error) {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, badRequestCode(fmt.Errorf("invalid %s", key), ErrCodeInvalidQuery)
	}
	if parsed < 0 {
		return 0, badRequestCode(fmt.Errorf("%s must be >= 0", key), ErrCodeInvalidQuery)
	}
	return parsed, nil
}
