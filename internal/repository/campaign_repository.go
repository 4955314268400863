package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"community-campaigns/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultJoinAttempts bounds the optimistic retry loop in ApplyJoin.
const DefaultJoinAttempts = 5

type CampaignRepository struct {
	db              *gorm.DB
	maxJoinAttempts int
}

func NewCampaignRepository(db *gorm.DB) *CampaignRepository {
	return &CampaignRepository{db: db, maxJoinAttempts: DefaultJoinAttempts}
}

// Create inserts a new campaign. A name collision on the unique index is
// reported as ErrNameTaken.
func (r *CampaignRepository) Create(ctx context.Context, campaign *models.Campaign) error {
	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(campaign).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("campaign %q: %w", campaign.Name, ErrNameTaken)
	}
	return err
}

// GetByID retrieves a campaign with its creator and participants
func (r *CampaignRepository) GetByID(ctx context.Context, campaignID uuid.UUID) (*models.Campaign, error) {
	return loadCampaign(r.db.WithContext(ctx), campaignID)
}

// GetByName retrieves a campaign by its unique name
func (r *CampaignRepository) GetByName(ctx context.Context, name string) (*models.Campaign, error) {
	var campaign models.Campaign
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&campaign).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("campaign %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

// List returns campaigns newest first, optionally filtered by status, with
// the total count.
func (r *CampaignRepository) List(
	ctx context.Context,
	status *models.CampaignStatus,
	limit int,
	offset int,
) ([]*models.Campaign, int64, error) {
	filtered := func() *gorm.DB {
		query := r.db.WithContext(ctx).Model(&models.Campaign{})
		if status != nil {
			query = query.Where("status = ?", *status)
		}
		return query
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var campaigns []*models.Campaign
	err := filtered().
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&campaigns).Error
	if err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

// IsParticipant reports whether userID has joined campaignID
func (r *CampaignRepository) IsParticipant(ctx context.Context, campaignID uuid.UUID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.CampaignParticipant{}).
		Where("campaign_id = ? AND user_id = ?", campaignID, userID).
		Count(&count).Error
	return count > 0, err
}

// Approve moves a CREATED campaign to ACTIVE and sets its reward. The status
// guard is part of the UPDATE so two racing approvals cannot both win.
func (r *CampaignRepository) Approve(ctx context.Context, campaignID uuid.UUID, token int64) (*models.Campaign, error) {
	var result *models.Campaign

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Campaign{}).
			Where("id = ? AND status = ?", campaignID, models.CampaignStatusCreated).
			Updates(map[string]interface{}{
				"status":  models.CampaignStatusActive,
				"token":   token,
				"version": gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.Campaign{}).Where("id = ?", campaignID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return fmt.Errorf("campaign %s: %w", campaignID, ErrNotFound)
			}
			return ErrStatusMismatch
		}

		loaded, err := loadCampaign(tx, campaignID)
		if err != nil {
			return err
		}
		result = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// ApplyJoin enrolls userID in campaignID as one atomic unit: it locks the
// campaign row, re-checks status, creator, capacity and membership,
// increments the counter, records the membership and, when the increment
// fills the campaign, flips the status to IN_PROGRESS in the same UPDATE.
//
// The UPDATE is also guarded by the row version so engines without row
// locks (SQLite) still detect a lost race; such attempts are retried up to
// maxJoinAttempts times.
//
// justReachedCapacity is true only for the single call whose increment
// filled the campaign.
func (r *CampaignRepository) ApplyJoin(
	ctx context.Context,
	campaignID uuid.UUID,
	userID uint,
	expectedStatus models.CampaignStatus,
) (campaign *models.Campaign, justReachedCapacity bool, err error) {
	for attempt := 1; attempt <= r.maxJoinAttempts; attempt++ {
		campaign, justReachedCapacity, err = r.applyJoinOnce(ctx, campaignID, userID, expectedStatus)
		if !errors.Is(err, ErrConcurrentUpdate) {
			return campaign, justReachedCapacity, err
		}
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
	}
	return nil, false, err
}

func (r *CampaignRepository) applyJoinOnce(
	ctx context.Context,
	campaignID uuid.UUID,
	userID uint,
	expectedStatus models.CampaignStatus,
) (*models.Campaign, bool, error) {
	var (
		result  *models.Campaign
		reached bool
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Campaign
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", campaignID).
			First(&current).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("campaign %s: %w", campaignID, ErrNotFound)
		}
		if err != nil {
			return err
		}

		if current.CreatorID == userID {
			return ErrCreatorCannotJoin
		}
		if current.Status != expectedStatus {
			return ErrStatusMismatch
		}
		if current.IsFull() {
			return ErrCapacityReached
		}

		var memberships int64
		err = tx.Model(&models.CampaignParticipant{}).
			Where("campaign_id = ? AND user_id = ?", campaignID, userID).
			Count(&memberships).Error
		if err != nil {
			return err
		}
		if memberships > 0 {
			return ErrAlreadyParticipant
		}

		next := current.CurrentParticipants + 1
		updates := map[string]interface{}{
			"current_participants": next,
			"version":              current.Version + 1,
		}
		reached = next == current.TotalParticipants
		if reached {
			if !current.Status.CanTransitionTo(models.CampaignStatusInProgress) {
				return ErrStatusMismatch
			}
			updates["status"] = models.CampaignStatusInProgress
		}

		res := tx.Model(&models.Campaign{}).
			Where("id = ? AND version = ? AND status = ?", campaignID, current.Version, expectedStatus).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConcurrentUpdate
		}

		membership := &models.CampaignParticipant{
			CampaignID: campaignID,
			UserID:     userID,
			JoinedAt:   time.Now(),
		}
		if err := tx.Omit(clause.Associations).Create(membership).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyParticipant
			}
			return err
		}

		loaded, err := loadCampaign(tx, campaignID)
		if err != nil {
			return err
		}
		result = loaded
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return result, reached, nil
}

// SetOnchainRecord stores the ledger mirror fields for a campaign
func (r *CampaignRepository) SetOnchainRecord(
	ctx context.Context,
	campaignID uuid.UUID,
	txHash string,
	onchainCampaignID *string,
) error {
	res := r.db.WithContext(ctx).Model(&models.Campaign{}).
		Where("id = ?", campaignID).
		Updates(map[string]interface{}{
			"onchain_tx_hash":     txHash,
			"onchain_campaign_id": onchainCampaignID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("campaign %s: %w", campaignID, ErrNotFound)
	}
	return nil
}

// CountAwaitingOnchain counts IN_PROGRESS campaigns without a ledger record
func (r *CampaignRepository) CountAwaitingOnchain(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Campaign{}).
		Where("status = ? AND onchain_tx_hash IS NULL", models.CampaignStatusInProgress).
		Count(&count).Error
	return count, err
}

func loadCampaign(db *gorm.DB, campaignID uuid.UUID) (*models.Campaign, error) {
	var campaign models.Campaign
	err := db.
		Preload("Creator").
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Order("joined_at ASC")
		}).
		Preload("Participants.User").
		Where("id = ?", campaignID).
		First(&campaign).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("campaign %s: %w", campaignID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}
