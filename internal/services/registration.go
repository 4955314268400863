package services

import (
	"context"
	"fmt"
	"time"

	"community-campaigns/internal/blockchain"
	"community-campaigns/internal/models"
	"community-campaigns/pkg/logger"

	"github.com/google/uuid"
)

const (
	TaskTypeRegisterCampaign = "campaign:register"

	DefaultRegistrationTimeout = 5 * time.Minute
	mirrorWriteTimeout         = 10 * time.Second
)

// RegistrationTask carries the snapshot captured when a campaign filled up.
type RegistrationTask struct {
	CampaignID uuid.UUID                   `json:"campaign_id"`
	Snapshot   blockchain.CampaignSnapshot `json:"snapshot"`
	QueuedAt   time.Time                   `json:"queued_at"`
}

// CampaignRegistrar records a finalized campaign on the ledger.
// *blockchain.CampaignRegistry satisfies it.
type CampaignRegistrar interface {
	RegisterCampaign(ctx context.Context, snapshot blockchain.CampaignSnapshot) (*blockchain.Receipt, error)
}

// OnchainRecorder persists the ledger mirror fields of a campaign.
type OnchainRecorder interface {
	SetOnchainRecord(ctx context.Context, campaignID uuid.UUID, txHash string, onchainCampaignID *string) error
}

// NewRegistrationTask snapshots campaign for the ledger. The campaign must
// have Creator and Participants.User loaded.
func NewRegistrationTask(campaign *models.Campaign) *RegistrationTask {
	snapshot := blockchain.CampaignSnapshot{
		CampaignID:   campaign.ID.String(),
		Name:         campaign.Name,
		Description:  campaign.Description,
		StartAt:      campaign.StartAt,
		EndAt:        campaign.EndAt,
		Participants: make([]blockchain.ParticipantEntry, 0, len(campaign.Participants)),
	}
	if campaign.Status.AtLeast(models.CampaignStatusActive) {
		snapshot.RewardAmount = campaign.Token
	}
	if campaign.Creator != nil {
		snapshot.CreatorWallet = campaign.Creator.WalletAddress
	}
	for _, p := range campaign.Participants {
		if p.User == nil {
			continue
		}
		snapshot.Participants = append(snapshot.Participants, blockchain.ParticipantEntry{
			Name:   p.User.Nickname,
			Wallet: p.User.WalletAddress,
		})
	}

	return &RegistrationTask{
		CampaignID: campaign.ID,
		Snapshot:   snapshot,
		QueuedAt:   time.Now(),
	}
}

// RegistrationProcessor runs a registration task: it calls the ledger and
// mirrors the receipt onto the campaign. It never re-submits; a failed
// registration leaves the campaign IN_PROGRESS with empty on-chain fields.
type RegistrationProcessor struct {
	registrar CampaignRegistrar
	records   OnchainRecorder
	timeout   time.Duration
}

// NewRegistrationProcessor creates a processor. A non-positive timeout
// falls back to DefaultRegistrationTimeout.
func NewRegistrationProcessor(registrar CampaignRegistrar, records OnchainRecorder, timeout time.Duration) *RegistrationProcessor {
	if timeout <= 0 {
		timeout = DefaultRegistrationTimeout
	}
	return &RegistrationProcessor{
		registrar: registrar,
		records:   records,
		timeout:   timeout,
	}
}

// Process registers the task's snapshot. The returned error is the ledger
// failure, if any; mirror write failures are only logged.
func (p *RegistrationProcessor) Process(ctx context.Context, task *RegistrationTask) error {
	if task == nil {
		return fmt.Errorf("%w: nil registration task", ErrInvalidInput)
	}

	log := logger.ForCampaign(task.CampaignID.String())

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	receipt, err := p.registrar.RegisterCampaign(ctx, task.Snapshot)
	if err != nil {
		event := log.Error()
		if blockchain.ErrorKind(err) == "configuration" {
			event = log.Warn()
		}
		event.
			Err(err).
			Str("error_kind", blockchain.ErrorKind(err)).
			Bool("retryable", blockchain.IsRetryable(err)).
			Msg("ledger registration failed")
		return err
	}

	log.Info().
		Str("tx_hash", receipt.TxHash).
		Uint64("block", receipt.BlockNumber).
		Int("attempts", receipt.Attempts).
		Msg("campaign registered on ledger")

	// The transaction is final; the mirror write must not be cut short by
	// the registration deadline.
	writeCtx, writeCancel := context.WithTimeout(context.WithoutCancel(ctx), mirrorWriteTimeout)
	defer writeCancel()

	if err := p.records.SetOnchainRecord(writeCtx, task.CampaignID, receipt.TxHash, receipt.OnchainID()); err != nil {
		log.Error().
			Err(err).
			Str("tx_hash", receipt.TxHash).
			Msg("failed to store on-chain record")
	}

	return nil
}
