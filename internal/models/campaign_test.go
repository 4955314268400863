package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCampaignStatus_AtLeast(t *testing.T) {
	assert.True(t, CampaignStatusActive.AtLeast(CampaignStatusActive))
	assert.True(t, CampaignStatusInProgress.AtLeast(CampaignStatusActive))
	assert.False(t, CampaignStatusCreated.AtLeast(CampaignStatusActive))
	assert.False(t, CampaignStatus("PAUSED").AtLeast(CampaignStatusCreated))
}

func TestCampaignStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to CampaignStatus
		want     bool
	}{
		{CampaignStatusCreated, CampaignStatusActive, true},
		{CampaignStatusActive, CampaignStatusInProgress, true},
		{CampaignStatusInProgress, CampaignStatusCompleted, true},
		{CampaignStatusCreated, CampaignStatusInProgress, false},
		{CampaignStatusActive, CampaignStatusCreated, false},
		{CampaignStatusActive, CampaignStatusActive, false},
		{CampaignStatus("bogus"), CampaignStatusActive, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestCampaign_IsFull(t *testing.T) {
	c := &Campaign{TotalParticipants: 2, CurrentParticipants: 1}
	assert.False(t, c.IsFull())

	c.CurrentParticipants = 2
	assert.True(t, c.IsFull())
}
