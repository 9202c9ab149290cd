package server

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"
)

// newUploadLimiter returns a token bucket shared by all upload routes, or
// nil when perSecond is not positive.
func newUploadLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = int(math.Ceil(perSecond))
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func (s *Server) allowUpload(w http.ResponseWriter, r *http.Request) bool {
	if s.uploadLimiter == nil || s.uploadLimiter.Allow() {
		return true
	}
	retryAfter := int(math.Ceil(1 / float64(s.uploadLimiter.Limit())))
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	s.writeErrorReq(w, r, http.StatusTooManyRequests, tooManyRequests(fmt.Errorf("too many uploads, retry later")))
	return false
}
