package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/commonroom/commonroom/internal/community"
	logger "github.com/commonroom/commonroom/middleware/log"
)

// GroupHandler exposes the CommunityStore over HTTP. Soft failures from the
// store map to 4xx notices; the state is untouched either way.
type GroupHandler struct {
	store *community.Store
	log   *logger.Logger
}

func NewGroupHandler(store *community.Store, log *logger.Logger) *GroupHandler {
	return &GroupHandler{store: store, log: log}
}

type CreateGroupRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// List serves the discover/search screen: the catalog filtered by q.
// Each request gets its own view; the store-wide filter stays untouched.
func (h *GroupHandler) List(c *gin.Context) {
	query := c.Query("q")
	c.JSON(http.StatusOK, gin.H{
		"groups": h.store.Search(query),
		"query":  query,
	})
}

// Mine serves the my-groups screen.
func (h *GroupHandler) Mine(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"groups": h.store.Snapshot().UserGroups})
}

// Create makes a new group with the caller as its admin.
func (h *GroupHandler) Create(c *gin.Context) {
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, err := h.store.CreateGroup(c.Request.Context(), req.Name, req.Description, req.Tags)
	if err != nil {
		h.notice(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": group})
}

// Detail serves the single-group chat+info screen: the group, its roster
// and its message log.
func (h *GroupHandler) Detail(c *gin.Context) {
	if err := h.store.SelectGroup(c.Request.Context(), c.Param("id")); err != nil {
		h.notice(c, err)
		return
	}

	snapshot := h.store.Snapshot()
	if snapshot.ActiveGroup == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": community.ErrGroupNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"group":    snapshot.ActiveGroup,
		"members":  snapshot.Members,
		"messages": snapshot.Messages,
	})
}

// Join adds the caller to the group's roster.
func (h *GroupHandler) Join(c *gin.Context) {
	if err := h.store.JoinGroup(c.Request.Context(), c.Param("id")); err != nil {
		h.notice(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "joined"})
}

// Leave removes the caller from the group's roster.
func (h *GroupHandler) Leave(c *gin.Context) {
	if err := h.store.LeaveGroup(c.Request.Context(), c.Param("id")); err != nil {
		h.notice(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "left"})
}

type SendMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// SendMessage appends a message to the group's log.
func (h *GroupHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	message, err := h.store.SendMessageTo(c.Request.Context(), c.Param("id"), req.Text)
	if err != nil {
		h.notice(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": message})
}

// notice translates store failures into transient HTTP notices.
func (h *GroupHandler) notice(c *gin.Context, err error) {
	switch {
	case errors.Is(err, community.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, community.ErrGroupNotFound), errors.Is(err, community.ErrNoGroupSelected):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, community.ErrAlreadyMember):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, community.ErrNameRequired), errors.Is(err, community.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.log.Error("store operation", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
