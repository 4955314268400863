package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"community-campaigns/internal/models"
	"community-campaigns/internal/repository"
	"community-campaigns/pkg/logger"

	"github.com/google/uuid"
)

// CampaignStore is the persistence the campaign engine needs.
// *repository.CampaignRepository satisfies it.
type CampaignStore interface {
	Create(ctx context.Context, campaign *models.Campaign) error
	GetByID(ctx context.Context, campaignID uuid.UUID) (*models.Campaign, error)
	GetByName(ctx context.Context, name string) (*models.Campaign, error)
	List(ctx context.Context, status *models.CampaignStatus, limit, offset int) ([]*models.Campaign, int64, error)
	IsParticipant(ctx context.Context, campaignID uuid.UUID, userID uint) (bool, error)
	Approve(ctx context.Context, campaignID uuid.UUID, token int64) (*models.Campaign, error)
	ApplyJoin(ctx context.Context, campaignID uuid.UUID, userID uint, expectedStatus models.CampaignStatus) (*models.Campaign, bool, error)
}

// CampaignService drives the campaign lifecycle:
// CREATED -> ACTIVE (approval) -> IN_PROGRESS (last seat taken).
type CampaignService struct {
	campaigns CampaignStore
	users     UserLookup
	queue     TaskQueue
}

// NewCampaignService creates a new CampaignService
func NewCampaignService(campaigns CampaignStore, users UserLookup, queue TaskQueue) *CampaignService {
	return &CampaignService{
		campaigns: campaigns,
		users:     users,
		queue:     queue,
	}
}

// CreateCampaign stores a new campaign in CREATED state for creatorID
func (s *CampaignService) CreateCampaign(
	ctx context.Context,
	req *models.CreateCampaignRequest,
	creatorID uint,
) (*models.Campaign, error) {
	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)

	if _, err := s.users.GetByID(ctx, creatorID); err != nil {
		return nil, fmt.Errorf("creator: %w", err)
	}

	existing, err := s.campaigns.GetByName(ctx, name)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: campaign name %q already taken", ErrConflict, name)
	}

	campaign := &models.Campaign{
		Name:                name,
		Description:         req.Description,
		Address:             req.Address,
		City:                req.City,
		Country:             req.Country,
		Latitude:            req.Latitude,
		Longitude:           req.Longitude,
		TotalParticipants:   req.TotalParticipants,
		CurrentParticipants: 0,
		Goal:                req.Goal,
		StartAt:             req.StartAt,
		EndAt:               req.EndAt,
		Token:               0,
		Status:              models.CampaignStatusCreated,
		CreatorID:           creatorID,
	}

	if err := s.campaigns.Create(ctx, campaign); err != nil {
		return nil, translateStoreError(err)
	}

	campaignTransitionsTotal.WithLabelValues(string(models.CampaignStatusCreated)).Inc()
	logger.Info().
		Str("campaign_id", campaign.ID.String()).
		Uint("creator_id", creatorID).
		Int("total_participants", campaign.TotalParticipants).
		Msg("campaign created")

	return campaign, nil
}

// ApproveCampaign activates a CREATED campaign with its reward. Approving
// twice is a conflict, not a no-op.
func (s *CampaignService) ApproveCampaign(ctx context.Context, campaignID uuid.UUID, tokenAmount int64) (*models.Campaign, error) {
	if tokenAmount < 0 {
		return nil, fmt.Errorf("%w: token amount must not be negative", ErrInvalidInput)
	}

	campaign, err := s.campaigns.Approve(ctx, campaignID, tokenAmount)
	if err != nil {
		if errors.Is(err, repository.ErrStatusMismatch) {
			return nil, fmt.Errorf("%w: campaign %s is not awaiting approval", ErrConflict, campaignID)
		}
		return nil, translateStoreError(err)
	}

	campaignTransitionsTotal.WithLabelValues(string(models.CampaignStatusActive)).Inc()
	logger.Info().
		Str("campaign_id", campaignID.String()).
		Int64("token", tokenAmount).
		Msg("campaign approved")

	return campaign, nil
}

// JoinCampaign enrolls userID. The call that takes the last seat moves the
// campaign to IN_PROGRESS and queues its ledger registration; the response
// does not wait for it.
func (s *CampaignService) JoinCampaign(ctx context.Context, campaignID uuid.UUID, userID uint) (*models.Campaign, error) {
	campaign, err := s.joinCampaign(ctx, campaignID, userID)
	campaignJoinsTotal.WithLabelValues(joinOutcome(err)).Inc()
	return campaign, err
}

func (s *CampaignService) joinCampaign(ctx context.Context, campaignID uuid.UUID, userID uint) (*models.Campaign, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, fmt.Errorf("user: %w", err)
	}

	current, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, translateStoreError(err)
	}

	if current.CreatorID == userID {
		return nil, fmt.Errorf("%w: creator cannot join own campaign", ErrConflict)
	}
	if current.Status != models.CampaignStatusActive {
		return nil, fmt.Errorf("%w: campaign is %s, not open for joining", ErrConflict, current.Status)
	}

	joined, err := s.campaigns.IsParticipant(ctx, campaignID, userID)
	if err != nil {
		return nil, err
	}
	if joined {
		return nil, fmt.Errorf("%w: user already joined campaign", ErrConflict)
	}

	// The checks above are repeated under the row lock; a join that lost a
	// race surfaces here as a conflict.
	campaign, justReachedCapacity, err := s.campaigns.ApplyJoin(ctx, campaignID, userID, models.CampaignStatusActive)
	if err != nil {
		return nil, translateStoreError(err)
	}

	logger.Info().
		Str("campaign_id", campaignID.String()).
		Uint("user_id", userID).
		Int("current_participants", campaign.CurrentParticipants).
		Int("total_participants", campaign.TotalParticipants).
		Msg("user joined campaign")

	if justReachedCapacity {
		campaignTransitionsTotal.WithLabelValues(string(models.CampaignStatusInProgress)).Inc()
		s.dispatchRegistration(campaign)
	}

	return campaign, nil
}

// dispatchRegistration hands the filled campaign to the task queue. Nothing
// here can fail the join.
func (s *CampaignService) dispatchRegistration(campaign *models.Campaign) {
	if s.queue == nil {
		registrationDispatchTotal.WithLabelValues("no_queue").Inc()
		logger.Warn().
			Str("campaign_id", campaign.ID.String()).
			Msg("no task queue configured, campaign will not be registered on ledger")
		return
	}

	task := NewRegistrationTask(campaign)
	if err := s.queue.Enqueue(task); err != nil {
		registrationDispatchTotal.WithLabelValues("error").Inc()
		logger.Error().
			Err(err).
			Str("campaign_id", campaign.ID.String()).
			Msg("failed to enqueue ledger registration")
		return
	}
	registrationDispatchTotal.WithLabelValues("enqueued").Inc()
}

// GetCampaign returns a campaign with its creator and participants
func (s *CampaignService) GetCampaign(ctx context.Context, campaignID uuid.UUID) (*models.Campaign, error) {
	campaign, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, translateStoreError(err)
	}
	return campaign, nil
}

// ListCampaigns returns a page of campaigns, optionally filtered by status
func (s *CampaignService) ListCampaigns(
	ctx context.Context,
	status string,
	limit int,
	offset int,
) ([]*models.Campaign, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var filter *models.CampaignStatus
	if status != "" {
		st := models.CampaignStatus(strings.ToUpper(status))
		if !st.Valid() {
			return nil, 0, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
		}
		filter = &st
	}

	return s.campaigns.List(ctx, filter, limit, offset)
}

func validateCreateRequest(req *models.CreateCampaignRequest) error {
	if req == nil {
		return fmt.Errorf("%w: empty request", ErrInvalidInput)
	}
	if strings.TrimSpace(req.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if req.TotalParticipants < 1 {
		return fmt.Errorf("%w: total_participants must be at least 1", ErrInvalidInput)
	}
	if req.StartAt.IsZero() || req.EndAt.IsZero() {
		return fmt.Errorf("%w: start_at and end_at are required", ErrInvalidInput)
	}
	if !req.EndAt.After(req.StartAt) {
		return fmt.Errorf("%w: end_at must be after start_at", ErrInvalidInput)
	}
	return nil
}
