package http

import (
	"net/http"

	"github.com/dkeye/meshcall/internal/app"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/gin-gonic/gin"
)

type roomsHandler struct {
	rooms *app.RoomManager
}

// GET /api/rooms
func (h *roomsHandler) list(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.rooms.List()})
}

// GET /api/rooms/:id
func (h *roomsHandler) get(c *gin.Context) {
	id, err := domain.ParseRoomID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}
	room, ok := h.rooms.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	c.JSON(http.StatusOK, room.Stats())
}
