package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/classfiles/internal/common"
	"github.com/dmitrijs2005/classfiles/internal/server/auth"
)

const teacherIDKey = "teacherID"

// identity verifies the bearer token when a secret is configured and
// stores the teacher it names on the context.
func (s *Server) identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.jwtSecret == nil {
			c.Next()
			return
		}

		token, err := auth.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			writeError(c, http.StatusUnauthorized, "Authentication required", codeUnauthorized, nil)
			c.Abort()
			return
		}

		teacherID, err := auth.TeacherIDFromToken(token, s.jwtSecret)
		if err != nil {
			msg := "Invalid token"
			if errors.Is(err, common.ErrTokenExpired) {
				msg = "Token expired"
			}
			s.security.Warn(c.Request.Context(), "rejected bearer token", "path", c.Request.URL.Path, "error", err)
			writeError(c, http.StatusUnauthorized, msg, codeUnauthorized, nil)
			c.Abort()
			return
		}

		c.Set(teacherIDKey, teacherID)
		c.Next()
	}
}

// teacherID settles who is asking. With tokens, an asserted id must match
// the verified one; without, the asserted id is taken as given.
func (s *Server) teacherID(c *gin.Context, asserted string) (string, bool) {
	verified := c.GetString(teacherIDKey)
	if verified == "" {
		return asserted, true
	}
	if asserted != "" && asserted != verified {
		s.security.Warn(c.Request.Context(), "teacher id does not match token",
			"asserted", asserted, "verified", verified, "path", c.Request.URL.Path)
		writeError(c, http.StatusForbidden, "Access denied", codeForbidden, nil)
		return "", false
	}
	return verified, true
}
