package notify

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/valeevte/pricewatch/internal/httpapi"
)

type Handler struct {
	Center *Center
	Logger *zap.Logger
}

func (h *Handler) Register(r *gin.Engine) {
	group := r.Group("/api/notifications")
	group.GET("", h.list)
	group.POST("/read", h.markRead)
}

func (h *Handler) list(c *gin.Context) {
	items := h.Center.List()
	httpapi.Ok(c, items, map[string]any{
		"total":  len(items),
		"unread": h.Center.Unread(),
	})
}

type markReadRequest struct {
	ID string `json:"id"`
}

// markRead marks one entry, or every entry when no id is given.
func (h *Handler) markRead(c *gin.Context) {
	var req markReadRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpapi.Error(c, http.StatusBadRequest, "invalid payload", nil)
			return
		}
	}
	ctx := c.Request.Context()
	if req.ID == "" {
		n := h.Center.MarkAllRead(ctx)
		httpapi.Ok(c, gin.H{"marked": n}, nil)
		return
	}
	if !h.Center.MarkRead(ctx, req.ID) {
		httpapi.Error(c, http.StatusNotFound, "notification not found", nil)
		return
	}
	httpapi.Ok(c, gin.H{"marked": 1}, nil)
}
