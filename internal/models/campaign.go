package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CampaignStatus string

const (
	CampaignStatusCreated    CampaignStatus = "CREATED"
	CampaignStatusActive     CampaignStatus = "ACTIVE"
	CampaignStatusInProgress CampaignStatus = "IN_PROGRESS"
	CampaignStatusCompleted  CampaignStatus = "COMPLETED"
)

var campaignStatusRank = map[CampaignStatus]int{
	CampaignStatusCreated:    1,
	CampaignStatusActive:     2,
	CampaignStatusInProgress: 3,
	CampaignStatusCompleted:  4,
}

// Valid reports whether s is a known status.
func (s CampaignStatus) Valid() bool {
	_, ok := campaignStatusRank[s]
	return ok
}

// AtLeast reports whether s is at or beyond other in the lifecycle.
func (s CampaignStatus) AtLeast(other CampaignStatus) bool {
	return s.Valid() && campaignStatusRank[s] >= campaignStatusRank[other]
}

// CanTransitionTo allows only the single forward step.
func (s CampaignStatus) CanTransitionTo(next CampaignStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	return campaignStatusRank[next] == campaignStatusRank[s]+1
}

// Campaign is the off-chain record of a community campaign. The Onchain*
// fields mirror the ledger registration and stay empty until it confirms.
type Campaign struct {
	ID                  uuid.UUID             `gorm:"type:uuid;primaryKey" json:"id"`
	Name                string                `gorm:"size:255;uniqueIndex;not null" json:"name"`
	Description         string                `gorm:"type:text" json:"description"`
	Address             string                `gorm:"size:255" json:"address"`
	City                string                `gorm:"size:100" json:"city"`
	Country             string                `gorm:"size:100" json:"country"`
	Latitude            *float64              `json:"latitude,omitempty"`
	Longitude           *float64              `json:"longitude,omitempty"`
	TotalParticipants   int                   `gorm:"not null" json:"total_participants"`
	CurrentParticipants int                   `gorm:"not null;default:0" json:"current_participants"`
	Goal                string                `gorm:"type:text" json:"goal"`
	StartAt             time.Time             `gorm:"not null" json:"start_at"`
	EndAt               time.Time             `gorm:"not null" json:"end_at"`
	Token               int64                 `gorm:"not null;default:0" json:"token"`
	Status              CampaignStatus        `gorm:"size:50;not null;default:CREATED;index" json:"status"`
	CreatorID           uint                  `gorm:"not null;index" json:"creator_id"`
	Creator             *User                 `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
	Participants        []CampaignParticipant `gorm:"foreignKey:CampaignID" json:"participants,omitempty"`
	Version             int64                 `gorm:"not null;default:0" json:"-"`
	OnchainTxHash       *string               `gorm:"size:66;index" json:"onchain_tx_hash"`
	OnchainCampaignID   *string               `gorm:"size:78" json:"onchain_campaign_id"`
	CreatedAt           time.Time             `json:"created_at"`
	UpdatedAt           time.Time             `json:"updated_at"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// IsFull reports whether every seat is taken.
func (c *Campaign) IsFull() bool {
	return c.CurrentParticipants >= c.TotalParticipants
}

// CampaignParticipant links a user to a campaign they joined.
type CampaignParticipant struct {
	CampaignID uuid.UUID `gorm:"type:uuid;primaryKey" json:"campaign_id"`
	UserID     uint      `gorm:"primaryKey;index" json:"user_id"`
	User       *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	JoinedAt   time.Time `gorm:"not null" json:"joined_at"`
}

func (CampaignParticipant) TableName() string {
	return "campaign_participants"
}

// CreateCampaignRequest represents a request to create a new campaign
type CreateCampaignRequest struct {
	Name              string    `json:"name" binding:"required,max=255"`
	Description       string    `json:"description"`
	Address           string    `json:"address"`
	City              string    `json:"city"`
	Country           string    `json:"country"`
	Latitude          *float64  `json:"latitude"`
	Longitude         *float64  `json:"longitude"`
	TotalParticipants int       `json:"total_participants" binding:"required,gt=0"`
	Goal              string    `json:"goal"`
	StartAt           time.Time `json:"start_at" binding:"required"`
	EndAt             time.Time `json:"end_at" binding:"required"`
}

// ApproveCampaignRequest carries the reward granted on approval
type ApproveCampaignRequest struct {
	Token int64 `json:"token" binding:"gte=0"`
}
