package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"parktronic/internal/api/middleware"
	"parktronic/internal/service"
)

type FavoriteHandler struct {
	favorites *service.FavoriteService
	log       *zap.Logger
}

func NewFavoriteHandler(favorites *service.FavoriteService, log *zap.Logger) *FavoriteHandler {
	return &FavoriteHandler{favorites: favorites, log: log}
}

// POST /favorites/:lot_id
func (h *FavoriteHandler) Add(c *gin.Context) {
	lotID, ok := pathID(c, "lot_id")
	if !ok {
		return
	}
	if err := h.favorites.Add(c.Request.Context(), c.GetInt(middleware.UserIDKey), lotID); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusCreated)
}

// DELETE /favorites/:lot_id
func (h *FavoriteHandler) Remove(c *gin.Context) {
	lotID, ok := pathID(c, "lot_id")
	if !ok {
		return
	}
	if err := h.favorites.Remove(c.Request.Context(), c.GetInt(middleware.UserIDKey), lotID); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /favorites
func (h *FavoriteHandler) List(c *gin.Context) {
	ids, err := h.favorites.List(c.Request.Context(), c.GetInt(middleware.UserIDKey))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"parking_lots": ids})
}
