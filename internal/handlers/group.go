// internal/handlers/group.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/studyhive/studyhive-backend/internal/chat"
	"github.com/studyhive/studyhive-backend/internal/services"
	"github.com/studyhive/studyhive-backend/internal/utils"
)

type GroupHandler struct {
	groupService   *services.GroupService
	storageService *services.StorageService
	hub            *chat.Hub
	upgrader       websocket.Upgrader
}

func NewGroupHandler(groupService *services.GroupService, storageService *services.StorageService, hub *chat.Hub) *GroupHandler {
	return &GroupHandler{
		groupService:   groupService,
		storageService: storageService,
		hub:            hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect from the frontend origin; auth is
			// enforced by the JWT middleware before the upgrade.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// POST /groups
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		utils.ValidationErrorResponse(c, utils.GetValidationErrors(err))
		return
	}

	group, err := h.groupService.CreateGroup(userID, &req)
	if err != nil {
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.CreatedResponse(c, gin.H{"group": group})
}

// GET /groups
func (h *GroupHandler) GetGroups(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	groups, total, err := h.groupService.SearchGroups(params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(groups, total, params))
}

// GET /groups/:id
func (h *GroupHandler) GetGroup(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid group ID", nil)
		return
	}

	group, err := h.groupService.GetGroup(id)
	if err != nil {
		if errors.Is(err, services.ErrGroupNotFound) {
			utils.NotFoundResponse(c, "Group")
			return
		}
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{"group": group})
}

// POST /groups/:id/join
func (h *GroupHandler) JoinGroup(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid group ID", nil)
		return
	}

	member, err := h.groupService.JoinGroup(groupID, userID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrGroupNotFound):
			utils.NotFoundResponse(c, "Group")
		case errors.Is(err, services.ErrGroupFull):
			utils.ConflictResponse(c, "Group is full")
		default:
			utils.InternalErrorResponse(c, err.Error())
		}
		return
	}

	utils.SuccessResponse(c, gin.H{"member": member})
}

// GET /groups/:id/members
func (h *GroupHandler) GetMembers(c *gin.Context) {
	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid group ID", nil)
		return
	}

	members, err := h.groupService.ListMembers(groupID)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{"members": members})
}

// POST /groups/:id/cover
func (h *GroupHandler) UploadCover(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid group ID", nil)
		return
	}

	file, header, err := c.Request.FormFile("cover")
	if err != nil {
		utils.BadRequestResponse(c, "Cover image is required", nil)
		return
	}
	defer file.Close()

	if err := h.storageService.ValidateImage(file); err != nil {
		utils.BadRequestResponse(c, "Cover must be a JPEG or PNG image", nil)
		return
	}

	upload, err := h.storageService.UploadFile(file, header, h.storageService.GetDefaultUploadOptions("groups"))
	if err != nil {
		logrus.WithError(err).Error("Cover upload failed")
		utils.InternalErrorResponse(c, "Failed to store cover image")
		return
	}

	group, err := h.groupService.SetCoverImage(groupID, userID, upload.URL)
	if err != nil {
		h.storageService.DeleteFile(upload.Key)
		switch {
		case errors.Is(err, services.ErrGroupNotFound):
			utils.NotFoundResponse(c, "Group")
		case errors.Is(err, services.ErrNotGroupMember):
			utils.ForbiddenResponse(c, "Join this group first")
		default:
			utils.ForbiddenResponse(c, err.Error())
		}
		return
	}

	utils.SuccessResponse(c, gin.H{"group": group})
}

// GET /groups/:id/messages
func (h *GroupHandler) GetMessages(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid group ID", nil)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid before cursor, expected RFC 3339 timestamp", nil)
			return
		}
		before = &parsed
	}

	messages, err := h.groupService.ListMessages(groupID, userID, limit, before)
	if err != nil {
		if errors.Is(err, services.ErrNotGroupMember) {
			utils.ForbiddenResponse(c, "Join this group to read its messages")
			return
		}
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{"messages": messages})
}

// POST /groups/:id/messages
//
// HTTP fallback for posting; the message is also fanned out to any live
// websocket subscribers of the group.
func (h *GroupHandler) SendMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid group ID", nil)
		return
	}

	var req services.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	message, err := h.groupService.SendMessage(groupID, userID, &req)
	if err != nil {
		if errors.Is(err, services.ErrNotGroupMember) {
			utils.ForbiddenResponse(c, "Join this group to post messages")
			return
		}
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	h.broadcastMessage(groupID, message)

	utils.CreatedResponse(c, gin.H{"message": message})
}

// GET /groups/:id/files
func (h *GroupHandler) GetSharedFiles(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid group ID", nil)
		return
	}

	files, err := h.groupService.ListSharedFiles(groupID, userID)
	if err != nil {
		if errors.Is(err, services.ErrNotGroupMember) {
			utils.ForbiddenResponse(c, "Join this group to see its files")
			return
		}
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{"files": files})
}

// POST /groups/:id/files
func (h *GroupHandler) ShareFile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid group ID", nil)
		return
	}

	var req struct {
		ProductID string `json:"product_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Product ID is required", nil)
		return
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid product ID", nil)
		return
	}

	shared, err := h.groupService.ShareFile(groupID, productID, userID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrGroupNotFound):
			utils.NotFoundResponse(c, "Group")
		case errors.Is(err, services.ErrProductNotFound):
			utils.NotFoundResponse(c, "Product")
		case errors.Is(err, services.ErrNotGroupMember):
			utils.ForbiddenResponse(c, "Join this group to share files")
		case errors.Is(err, services.ErrEntitlementRequired):
			utils.ForbiddenResponse(c, "Purchase this product before sharing it")
		default:
			utils.BadRequestResponse(c, err.Error(), nil)
		}
		return
	}

	utils.CreatedResponse(c, gin.H{"file": shared})
}

// GET /groups/:id/chat
//
// Upgrades to a websocket subscribed to the group's chat room. Incoming
// frames are persisted through the group service and fanned out to the
// room, so HTTP readers and socket readers see the same history.
func (h *GroupHandler) ServeWS(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid group ID", nil)
		return
	}

	isMember, err := h.groupService.IsMember(groupID, userID)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}
	if !isMember {
		utils.ForbiddenResponse(c, "Join this group to open its chat")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	client := chat.NewClient(h.hub, conn, groupID, userID, h.handleInbound)
	client.Start()
}

// handleInbound persists a raw chat frame and rebroadcasts the stored
// message. Frames that fail validation are dropped silently; the sender
// still has the HTTP endpoint for detailed errors.
func (h *GroupHandler) handleInbound(senderID uuid.UUID, raw []byte) {
	var frame struct {
		GroupID string `json:"group_id"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		return
	}

	groupID, err := uuid.Parse(frame.GroupID)
	if err != nil {
		return
	}

	message, err := h.groupService.SendMessage(groupID, senderID, &services.SendMessageRequest{Message: frame.Message})
	if err != nil {
		logrus.WithError(err).WithField("group_id", groupID).Debug("Dropped chat frame")
		return
	}

	h.broadcastMessage(groupID, message)
}

func (h *GroupHandler) broadcastMessage(groupID uuid.UUID, message interface{}) {
	payload, err := json.Marshal(gin.H{"type": "message", "data": message})
	if err != nil {
		return
	}
	h.hub.Broadcast(groupID, payload)
}
