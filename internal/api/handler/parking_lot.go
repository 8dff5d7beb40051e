package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"parktronic/internal/ingest"
	"parktronic/internal/service"
)

type ParkingLotHandler struct {
	occupancy *service.OccupancyService
	ingest    *ingest.Handler
	log       *zap.Logger
}

func NewParkingLotHandler(occupancy *service.OccupancyService, ingestHandler *ingest.Handler, log *zap.Logger) *ParkingLotHandler {
	return &ParkingLotHandler{occupancy: occupancy, ingest: ingestHandler, log: log}
}

// POST /parking_lot
func (h *ParkingLotHandler) PostSnapshot(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read request body"})
		return
	}
	res, err := h.ingest.Handle(c.Request.Context(), body)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /parking_lots
func (h *ParkingLotHandler) ListParkingLots(c *gin.Context) {
	listing, err := h.occupancy.ListLots(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

// GET /parking_lots/:id
func (h *ParkingLotHandler) GetParkingLotByID(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	lot, err := h.occupancy.GetLot(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, lot)
}

// DELETE /parking_lots/:id
func (h *ParkingLotHandler) DeleteParkingLot(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.occupancy.DeleteLot(c.Request.Context(), id); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func pathID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
