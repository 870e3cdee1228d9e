package httpapi

import (
	"net/http"
	"strconv"

	"voice-auth/internal/voice"

	"github.com/gin-gonic/gin"
)

// ListUsers pages through identities ordered by id. RBAC: admin.
//
// Query: id, username (case-insensitive substring), role, limit, offset.
func (h Handlers) ListUsers(c *gin.Context) {
	f := voice.IdentityFilter{
		Username: c.Query("username"),
		Role:     c.Query("role"),
	}
	if q := c.Query("id"); q != "" {
		id, err := strconv.ParseInt(q, 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "id must be an integer"})
			return
		}
		f.ID = &id
	}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		if q := c.Query(name); q != "" {
			n, err := strconv.Atoi(q)
			if err != nil || n < 0 {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": name + " must be a non-negative integer"})
				return
			}
			*dst = n
		}
	}

	page, err := h.Flow.ListIdentities(c.Request.Context(), f)
	if err != nil {
		abortWithError(c, err)
		return
	}
	users := make([]userResponse, 0, len(page.Users))
	for _, idn := range page.Users {
		users = append(users, toUserResponse(idn))
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "total": page.Total})
}

// UpdateUserRole changes a user's role. RBAC: admin.
func (h Handlers) UpdateUserRole(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	var req roleRequest
	if !bindJSON(c, &req) {
		return
	}
	idn, err := h.Flow.UpdateRole(c.Request.Context(), id, req.Role)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(idn))
}

// DeleteUser removes a user with their samples and profile. RBAC: admin.
func (h Handlers) DeleteUser(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	if err := h.Flow.DeleteIdentity(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func userIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "id must be an integer"})
		return 0, false
	}
	return id, true
}
