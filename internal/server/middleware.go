package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xtxerr/playertrack/internal/constants"
	"github.com/xtxerr/playertrack/internal/errors"
	"github.com/xtxerr/playertrack/internal/wire"
)

// securityHeaders sets the browser hardening headers on every response.
func securityHeaders(csp string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "SAMEORIGIN")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Cross-Origin-Opener-Policy", "same-origin")
		h.Set("Cross-Origin-Resource-Policy", "same-origin")
		if csp != "" {
			h.Set("Content-Security-Policy", csp)
		}
		c.Next()
	}
}

// requestLog logs every request at debug level.
func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}

// ingestAuth checks the bearer token. Addresses that keep presenting a
// wrong token are refused without comparing.
func (s *Server) ingestAuth() gin.HandlerFunc {
	want := []byte(s.cfg.IngestToken)
	return func(c *gin.Context) {
		addr := s.governor.ResolveAddress(c.Request.Header, c.Request.RemoteAddr)
		if s.authLimiter.IsBlocked(addr) {
			abort(c, http.StatusTooManyRequests, errors.ErrRateLimited)
			return
		}

		token, ok := strings.CutPrefix(c.GetHeader(constants.HeaderAuthorization), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), want) != 1 {
			s.authLimiter.RecordFailure(addr)
			log.Warn("ingest authentication failed", "remote", addr,
				"failure_count", s.authLimiter.FailureCount(addr))
			abort(c, http.StatusUnauthorized, errors.ErrUnauthorized)
			return
		}

		s.authLimiter.Reset(addr)
		c.Next()
	}
}

// abort ends the request with an error envelope.
func abort(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, wire.NewErrorFromErr(err))
}
