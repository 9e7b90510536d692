package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// configStatus показывает, какие провайдеры настроены. Значения ключей не раскрываются.
func (h *Handler) configStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.cfg.Validate())
}
