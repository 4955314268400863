package handlers

import (
	"context"
	"net/http"
	"strconv"

	"community-campaigns/internal/auth"
	"community-campaigns/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CampaignEngine is the campaign lifecycle as seen by HTTP callers.
// *services.CampaignService satisfies it.
type CampaignEngine interface {
	CreateCampaign(ctx context.Context, req *models.CreateCampaignRequest, creatorID uint) (*models.Campaign, error)
	ApproveCampaign(ctx context.Context, campaignID uuid.UUID, tokenAmount int64) (*models.Campaign, error)
	JoinCampaign(ctx context.Context, campaignID uuid.UUID, userID uint) (*models.Campaign, error)
	GetCampaign(ctx context.Context, campaignID uuid.UUID) (*models.Campaign, error)
	ListCampaigns(ctx context.Context, status string, limit, offset int) ([]*models.Campaign, int64, error)
}

type CampaignHandler struct {
	campaigns CampaignEngine
}

func NewCampaignHandler(campaigns CampaignEngine) *CampaignHandler {
	return &CampaignHandler{campaigns: campaigns}
}

// CreateCampaign creates a new campaign owned by the caller
// POST /api/campaigns
func (h *CampaignHandler) CreateCampaign(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req models.CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	campaign, err := h.campaigns.CreateCampaign(c.Request.Context(), &req, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, campaign)
}

// ApproveCampaign activates a campaign with its reward
// POST /api/admin/campaigns/:id/approve
func (h *CampaignHandler) ApproveCampaign(c *gin.Context) {
	campaignID, ok := parseCampaignID(c)
	if !ok {
		return
	}

	var req models.ApproveCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	campaign, err := h.campaigns.ApproveCampaign(c.Request.Context(), campaignID, req.Token)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, campaign)
}

// JoinCampaign enrolls the caller
// POST /api/campaigns/:id/join
func (h *CampaignHandler) JoinCampaign(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	campaignID, ok := parseCampaignID(c)
	if !ok {
		return
	}

	campaign, err := h.campaigns.JoinCampaign(c.Request.Context(), campaignID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, campaign)
}

// GetCampaign retrieves a campaign by ID
// GET /api/campaigns/:id
func (h *CampaignHandler) GetCampaign(c *gin.Context) {
	campaignID, ok := parseCampaignID(c)
	if !ok {
		return
	}

	campaign, err := h.campaigns.GetCampaign(c.Request.Context(), campaignID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, campaign)
}

// ListCampaigns returns a page of campaigns
// GET /api/campaigns?status=ACTIVE&limit=20&offset=0
func (h *CampaignHandler) ListCampaigns(c *gin.Context) {
	limit := 20
	offset := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	campaigns, total, err := h.campaigns.ListCampaigns(c.Request.Context(), c.Query("status"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"campaigns": campaigns,
		"total":     total,
		"limit":     limit,
		"offset":    offset,
	})
}

func parseCampaignID(c *gin.Context) (uuid.UUID, bool) {
	campaignID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid campaign id"})
		return uuid.Nil, false
	}
	return campaignID, true
}
