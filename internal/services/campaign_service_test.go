package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sync"
	"testing"
	"time"

	"community-campaigns/internal/blockchain"
	"community-campaigns/internal/database"
	"community-campaigns/internal/models"
	"community-campaigns/internal/repository"
	"community-campaigns/pkg/logger"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type fakeRegistrar struct {
	mu        sync.Mutex
	snapshots []blockchain.CampaignSnapshot
	err       error
	receipt   *blockchain.Receipt
}

func (f *fakeRegistrar) RegisterCampaign(ctx context.Context, snapshot blockchain.CampaignSnapshot) (*blockchain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.snapshots = append(f.snapshots, snapshot)
	if f.err != nil {
		return nil, f.err
	}
	if f.receipt != nil {
		return f.receipt, nil
	}
	return &blockchain.Receipt{TxHash: "0x01", BlockNumber: 1, Attempts: 1}, nil
}

func (f *fakeRegistrar) calls() []blockchain.CampaignSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]blockchain.CampaignSnapshot(nil), f.snapshots...)
}

type testEnv struct {
	db        *gorm.DB
	campaigns *repository.CampaignRepository
	service   *CampaignService
	queue     *LocalQueue
	registrar CampaignRegistrar
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.Open("sqlite", dsn)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func newTestEnv(t *testing.T, registrar CampaignRegistrar) *testEnv {
	t.Helper()

	db := setupTestDB(t)
	campaigns := repository.NewCampaignRepository(db)
	users := NewUserService(repository.NewUserRepository(db))
	processor := NewRegistrationProcessor(registrar, campaigns, 5*time.Second)
	queue := NewLocalQueue(2, 16, processor.Process)
	t.Cleanup(func() { queue.Close() })

	return &testEnv{
		db:        db,
		campaigns: campaigns,
		service:   NewCampaignService(campaigns, users, queue),
		queue:     queue,
		registrar: registrar,
	}
}

func (e *testEnv) user(t *testing.T, n int) *models.User {
	t.Helper()
	user := &models.User{
		Email:         fmt.Sprintf("user%d@example.com", n),
		Nickname:      fmt.Sprintf("user%d", n),
		WalletAddress: fmt.Sprintf("0x%040x", n),
	}
	require.NoError(t, e.db.Create(user).Error)
	return user
}

func campaignRequest(name string, total int) *models.CreateCampaignRequest {
	start := time.Date(2030, 1, 1, 9, 0, 0, 0, time.UTC)
	return &models.CreateCampaignRequest{
		Name:              name,
		Description:       "clean the riverbank",
		City:              "Lisbon",
		TotalParticipants: total,
		StartAt:           start,
		EndAt:             start.Add(6 * time.Hour),
	}
}

// activeCampaign creates and approves a campaign owned by a fresh creator.
func (e *testEnv) activeCampaign(t *testing.T, name string, total int, token int64) (*models.Campaign, *models.User) {
	t.Helper()
	creator := e.user(t, 1000+total)
	ctx := context.Background()

	campaign, err := e.service.CreateCampaign(ctx, campaignRequest(name, total), creator.ID)
	require.NoError(t, err)
	campaign, err = e.service.ApproveCampaign(ctx, campaign.ID, token)
	require.NoError(t, err)
	return campaign, creator
}

func TestCreateCampaign(t *testing.T) {
	env := newTestEnv(t, &fakeRegistrar{})
	ctx := context.Background()
	creator := env.user(t, 1)

	campaign, err := env.service.CreateCampaign(ctx, campaignRequest("River Cleanup", 3), creator.ID)
	require.NoError(t, err)

	assert.Equal(t, models.CampaignStatusCreated, campaign.Status)
	assert.Equal(t, 0, campaign.CurrentParticipants)
	assert.Equal(t, int64(0), campaign.Token)
	assert.Equal(t, creator.ID, campaign.CreatorID)
	assert.Nil(t, campaign.OnchainTxHash)
}

func TestCreateCampaign_DuplicateName(t *testing.T) {
	env := newTestEnv(t, &fakeRegistrar{})
	ctx := context.Background()
	creator := env.user(t, 1)

	first, err := env.service.CreateCampaign(ctx, campaignRequest("Tree Planting", 3), creator.ID)
	require.NoError(t, err)

	_, err = env.service.CreateCampaign(ctx, campaignRequest("Tree Planting", 10), creator.ID)
	assert.ErrorIs(t, err, ErrConflict)

	stored, err := env.service.GetCampaign(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.TotalParticipants)
	assert.Equal(t, models.CampaignStatusCreated, stored.Status)
}

func TestCreateCampaign_MissingCreator(t *testing.T) {
	env := newTestEnv(t, &fakeRegistrar{})

	_, err := env.service.CreateCampaign(context.Background(), campaignRequest("Orphan", 3), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateCampaign_InvalidInput(t *testing.T) {
	env := newTestEnv(t, &fakeRegistrar{})
	creator := env.user(t, 1)

	tests := []struct {
		name   string
		mutate func(r *models.CreateCampaignRequest)
	}{
		{"blank name", func(r *models.CreateCampaignRequest) { r.Name = "  " }},
		{"zero capacity", func(r *models.CreateCampaignRequest) { r.TotalParticipants = 0 }},
		{"end before start", func(r *models.CreateCampaignRequest) { r.EndAt = r.StartAt.Add(-time.Hour) }},
		{"missing start", func(r *models.CreateCampaignRequest) { r.StartAt = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := campaignRequest("Invalid", 2)
			tt.mutate(req)
			_, err := env.service.CreateCampaign(context.Background(), req, creator.ID)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestApproveCampaign(t *testing.T) {
	env := newTestEnv(t, &fakeRegistrar{})
	ctx := context.Background()
	creator := env.user(t, 1)

	campaign, err := env.service.CreateCampaign(ctx, campaignRequest("Food Drive", 2), creator.ID)
	require.NoError(t, err)

	approved, err := env.service.ApproveCampaign(ctx, campaign.ID, 250)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusActive, approved.Status)
	assert.Equal(t, int64(250), approved.Token)

	_, err = env.service.ApproveCampaign(ctx, campaign.ID, 500)
	assert.ErrorIs(t, err, ErrConflict)

	stored, err := env.service.GetCampaign(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(250), stored.Token)
}

func TestApproveCampaign_NotCreated(t *testing.T) {
	env := newTestEnv(t, &fakeRegistrar{})
	ctx := context.Background()
	campaign, _ := env.activeCampaign(t, "Full", 1, 10)

	_, err := env.service.JoinCampaign(ctx, campaign.ID, env.user(t, 2).ID)
	require.NoError(t, err)

	_, err = env.service.ApproveCampaign(ctx, campaign.ID, 10)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestApproveCampaign_Errors(t *testing.T) {
	env := newTestEnv(t, &fakeRegistrar{})
	ctx := context.Background()

	_, err := env.service.ApproveCampaign(ctx, uuid.New(), 10)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.service.ApproveCampaign(ctx, uuid.New(), -1)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestApproveCampaign_ConcurrentApprovalsOneWins(t *testing.T) {
	env := newTestEnv(t, &fakeRegistrar{})
	ctx := context.Background()
	creator := env.user(t, 1)
	campaign, err := env.service.CreateCampaign(ctx, campaignRequest("Race", 2), creator.ID)
	require.NoError(t, err)

	var (
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	var g errgroup.Group
	for i := 0; i < 4; i++ {
		token := int64(100 + i)
		g.Go(func() error {
			_, err := env.service.ApproveCampaign(ctx, campaign.ID, token)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, wins)
	assert.Equal(t, 3, conflicts)
}

func TestJoinCampaign_Preconditions(t *testing.T) {
	env := newTestEnv(t, &fakeRegistrar{})
	ctx := context.Background()
	campaign, creator := env.activeCampaign(t, "Park Day", 3, 10)
	alice := env.user(t, 2)

	t.Run("missing user", func(t *testing.T) {
		_, err := env.service.JoinCampaign(ctx, campaign.ID, 9999)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("missing campaign", func(t *testing.T) {
		_, err := env.service.JoinCampaign(ctx, uuid.New(), alice.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("creator", func(t *testing.T) {
		_, err := env.service.JoinCampaign(ctx, campaign.ID, creator.ID)
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("second join", func(t *testing.T) {
		_, err := env.service.JoinCampaign(ctx, campaign.ID, alice.ID)
		require.NoError(t, err)

		_, err = env.service.JoinCampaign(ctx, campaign.ID, alice.ID)
		assert.ErrorIs(t, err, ErrConflict)

		stored, err := env.service.GetCampaign(ctx, campaign.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.CurrentParticipants)
	})
}

func TestJoinCampaign_NotActive(t *testing.T) {
	env := newTestEnv(t, &fakeRegistrar{})
	ctx := context.Background()
	creator := env.user(t, 1)
	alice := env.user(t, 2)

	campaign, err := env.service.CreateCampaign(ctx, campaignRequest("Pending", 2), creator.ID)
	require.NoError(t, err)

	_, err = env.service.JoinCampaign(ctx, campaign.ID, alice.ID)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestJoinCampaign_CreatorRejectedInEveryStatus(t *testing.T) {
	env := newTestEnv(t, &fakeRegistrar{})
	ctx := context.Background()
	creator := env.user(t, 1)

	campaign, err := env.service.CreateCampaign(ctx, campaignRequest("Own", 1), creator.ID)
	require.NoError(t, err)

	_, err = env.service.JoinCampaign(ctx, campaign.ID, creator.ID)
	assert.ErrorIs(t, err, ErrConflict, "CREATED")

	_, err = env.service.ApproveCampaign(ctx, campaign.ID, 5)
	require.NoError(t, err)
	_, err = env.service.JoinCampaign(ctx, campaign.ID, creator.ID)
	assert.ErrorIs(t, err, ErrConflict, "ACTIVE")

	_, err = env.service.JoinCampaign(ctx, campaign.ID, env.user(t, 2).ID)
	require.NoError(t, err)
	_, err = env.service.JoinCampaign(ctx, campaign.ID, creator.ID)
	assert.ErrorIs(t, err, ErrConflict, "IN_PROGRESS")
}

func TestJoinCampaign_ReachingCapacityRegistersOnce(t *testing.T) {
	registrar := &fakeRegistrar{
		receipt: &blockchain.Receipt{TxHash: "0xfeed", BlockNumber: 42, CampaignID: big.NewInt(7), Attempts: 1},
	}
	env := newTestEnv(t, registrar)
	ctx := context.Background()
	campaign, creator := env.activeCampaign(t, "Beach", 2, 3)
	alice := env.user(t, 2)
	bob := env.user(t, 3)

	after, err := env.service.JoinCampaign(ctx, campaign.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusActive, after.Status)

	after, err = env.service.JoinCampaign(ctx, campaign.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusInProgress, after.Status)
	assert.Equal(t, 2, after.CurrentParticipants)

	require.NoError(t, env.queue.Close())

	calls := registrar.calls()
	require.Len(t, calls, 1)
	snapshot := calls[0]
	assert.Equal(t, campaign.ID.String(), snapshot.CampaignID)
	assert.Equal(t, "Beach", snapshot.Name)
	assert.Equal(t, creator.WalletAddress, snapshot.CreatorWallet)
	assert.Equal(t, int64(3), snapshot.RewardAmount)
	assert.Equal(t, []blockchain.ParticipantEntry{
		{Name: alice.Nickname, Wallet: alice.WalletAddress},
		{Name: bob.Nickname, Wallet: bob.WalletAddress},
	}, snapshot.Participants)

	stored, err := env.service.GetCampaign(ctx, campaign.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.OnchainTxHash)
	assert.Equal(t, "0xfeed", *stored.OnchainTxHash)
	require.NotNil(t, stored.OnchainCampaignID)
	assert.Equal(t, "7", *stored.OnchainCampaignID)
}

func TestJoinCampaign_TwoConcurrentJoinsFillCampaign(t *testing.T) {
	registrar := &fakeRegistrar{}
	env := newTestEnv(t, registrar)
	ctx := context.Background()
	campaign, _ := env.activeCampaign(t, "Concurrent", 2, 1)
	alice := env.user(t, 2)
	bob := env.user(t, 3)

	var g errgroup.Group
	for _, u := range []*models.User{alice, bob} {
		userID := u.ID
		g.Go(func() error {
			_, err := env.service.JoinCampaign(ctx, campaign.ID, userID)
			return err
		})
	}
	require.NoError(t, g.Wait())
	require.NoError(t, env.queue.Close())

	stored, err := env.service.GetCampaign(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.CurrentParticipants)
	assert.Equal(t, models.CampaignStatusInProgress, stored.Status)

	calls := registrar.calls()
	require.Len(t, calls, 1)
	assert.ElementsMatch(t, []blockchain.ParticipantEntry{
		{Name: alice.Nickname, Wallet: alice.WalletAddress},
		{Name: bob.Nickname, Wallet: bob.WalletAddress},
	}, calls[0].Participants)
}

func TestJoinCampaign_ConcurrentOverflowNeverExceedsCapacity(t *testing.T) {
	registrar := &fakeRegistrar{}
	env := newTestEnv(t, registrar)
	ctx := context.Background()

	const capacity = 4
	campaign, _ := env.activeCampaign(t, "Overflow", capacity, 1)

	users := make([]*models.User, 10)
	for i := range users {
		users[i] = env.user(t, 10+i)
	}

	var (
		mu        sync.Mutex
		joined    int
		conflicts int
	)
	var g errgroup.Group
	for _, u := range users {
		userID := u.ID
		g.Go(func() error {
			_, err := env.service.JoinCampaign(ctx, campaign.ID, userID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				joined++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.NoError(t, env.queue.Close())

	assert.Equal(t, capacity, joined)
	assert.Equal(t, len(users)-capacity, conflicts)

	stored, err := env.service.GetCampaign(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, capacity, stored.CurrentParticipants)
	assert.Equal(t, models.CampaignStatusInProgress, stored.Status)
	assert.Len(t, stored.Participants, capacity)
	assert.Len(t, registrar.calls(), 1)
}

func TestJoinCampaign_MissingSigningKeyStillCommits(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(zerolog.SyncWriter(&buf))
	t.Cleanup(func() { logger.SetOutput(os.Stdout) })

	registry := blockchain.NewCampaignRegistry(blockchain.Config{
		RPCURL:          "http://127.0.0.1:8545",
		ContractAddress: "0x5FbDB2315678afecb367f032d93F642f64180aa3",
	})
	env := newTestEnv(t, registry)
	ctx := context.Background()
	campaign, _ := env.activeCampaign(t, "No Key", 1, 5)

	after, err := env.service.JoinCampaign(ctx, campaign.ID, env.user(t, 2).ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusInProgress, after.Status)

	require.NoError(t, env.queue.Close())

	var failures []TaskFailure
	for f := range env.queue.Failures() {
		failures = append(failures, f)
	}
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0].Err, blockchain.ErrConfiguration)
	assert.Equal(t, campaign.ID, failures[0].Task.CampaignID)

	stored, err := env.service.GetCampaign(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusInProgress, stored.Status)
	assert.Nil(t, stored.OnchainTxHash)
	assert.Nil(t, stored.OnchainCampaignID)

	assert.Contains(t, buf.String(), `"error_kind":"configuration"`)
	assert.Contains(t, buf.String(), campaign.ID.String())
}

func TestJoinCampaign_LedgerFailureDoesNotFailJoin(t *testing.T) {
	registrar := &fakeRegistrar{
		err: &blockchain.LedgerError{Op: "confirm", TxHash: "0xdead", Retryable: true, Err: context.DeadlineExceeded},
	}
	env := newTestEnv(t, registrar)
	ctx := context.Background()
	campaign, _ := env.activeCampaign(t, "Timeout", 1, 5)

	_, err := env.service.JoinCampaign(ctx, campaign.ID, env.user(t, 2).ID)
	require.NoError(t, err)
	require.NoError(t, env.queue.Close())

	assert.Len(t, registrar.calls(), 1)

	stored, err := env.service.GetCampaign(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusInProgress, stored.Status)
	assert.Nil(t, stored.OnchainTxHash)
}

func TestJoinCampaign_WithoutQueue(t *testing.T) {
	env := newTestEnv(t, &fakeRegistrar{})
	users := NewUserService(repository.NewUserRepository(env.db))
	service := NewCampaignService(env.campaigns, users, nil)
	ctx := context.Background()

	creator := env.user(t, 1)
	campaign, err := service.CreateCampaign(ctx, campaignRequest("Queueless", 1), creator.ID)
	require.NoError(t, err)
	_, err = service.ApproveCampaign(ctx, campaign.ID, 1)
	require.NoError(t, err)

	after, err := service.JoinCampaign(ctx, campaign.ID, env.user(t, 2).ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusInProgress, after.Status)
}

func TestListCampaigns(t *testing.T) {
	env := newTestEnv(t, &fakeRegistrar{})
	ctx := context.Background()
	creator := env.user(t, 1)

	for _, name := range []string{"One", "Two", "Three"} {
		_, err := env.service.CreateCampaign(ctx, campaignRequest(name, 2), creator.ID)
		require.NoError(t, err)
	}
	env.activeCampaign(t, "Four", 5, 1)

	all, total, err := env.service.ListCampaigns(ctx, "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Len(t, all, 4)

	active, total, err := env.service.ListCampaigns(ctx, "active", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, active, 1)
	assert.Equal(t, "Four", active[0].Name)

	_, _, err = env.service.ListCampaigns(ctx, "finished", 10, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
