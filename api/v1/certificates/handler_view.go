package certificates

import (
	"errors"
	"net/http"

	"go_certmgr/internal/model"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// View handles GET /api/v1/certificates/html?course=..., the public
// certificate page for the logged-in user. Anything short of a
// downloadable certificate renders the invalid page rather than an
// error so the route never leaks certificate state.
func (h *Handler) View(c *gin.Context) {
	username := c.GetString("username")
	courseKey := c.Query("course")
	if username == "" || courseKey == "" {
		h.renderInvalid(c)
		return
	}

	var user model.User
	if err := h.db.Where("username = ?", username).First(&user).Error; err != nil {
		h.renderInvalid(c)
		return
	}

	var course model.Course
	if err := h.db.Where("course_key = ?", courseKey).First(&course).Error; err != nil {
		h.renderInvalid(c)
		return
	}

	var cert model.GeneratedCertificate
	err := h.db.Where("user_id = ? AND course_id = ?", user.ID, course.ID).First(&cert).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			c.String(http.StatusInternalServerError, "internal error")
			return
		}
		h.renderInvalid(c)
		return
	}

	page, err := h.renderer.RenderValid(user, course, cert)
	if err != nil {
		c.String(http.StatusInternalServerError, "internal error")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
}

func (h *Handler) renderInvalid(c *gin.Context) {
	page, err := h.renderer.RenderInvalid()
	if err != nil {
		c.String(http.StatusInternalServerError, "internal error")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
}
