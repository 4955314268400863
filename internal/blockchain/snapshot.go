package blockchain

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// TokenDecimals is the fixed-point precision of the on-chain reward amount.
const TokenDecimals = 18

// ParticipantEntry is one enrolled participant as sent to the contract.
type ParticipantEntry struct {
	Name   string `json:"name"`
	Wallet string `json:"wallet"`
}

// CampaignSnapshot is an immutable copy of the campaign taken when it
// reached capacity. RewardAmount is in whole tokens.
type CampaignSnapshot struct {
	CampaignID    string             `json:"campaign_id"`
	Name          string             `json:"name"`
	Description   string             `json:"description"`
	StartAt       time.Time          `json:"start_at"`
	EndAt         time.Time          `json:"end_at"`
	CreatorWallet string             `json:"creator_wallet"`
	Participants  []ParticipantEntry `json:"participants"`
	RewardAmount  int64              `json:"reward_amount"`
}

// createCampaignArgs holds the chain-native arguments of createCampaign,
// in ABI order.
type createCampaignArgs struct {
	Name               string
	Description        string
	StartAt            *big.Int
	EndAt              *big.Int
	Creator            common.Address
	ParticipantNames   []string
	ParticipantWallets []common.Address
	RewardAmount       *big.Int
}

func (a *createCampaignArgs) params() []interface{} {
	return []interface{}{
		a.Name,
		a.Description,
		a.StartAt,
		a.EndAt,
		a.Creator,
		a.ParticipantNames,
		a.ParticipantWallets,
		a.RewardAmount,
	}
}

// ParseAddress accepts only 0x-prefixed, 40 hex character, non-zero addresses.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return common.Address{}, fmt.Errorf("address %q: missing 0x prefix", s)
	}
	if len(s) != 2+2*common.AddressLength {
		return common.Address{}, fmt.Errorf("address %q: expected %d hex characters", s, 2*common.AddressLength)
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("address %q: not hex", s)
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("address %q: zero address", s)
	}
	return addr, nil
}

// ToMinorUnits converts a token amount to its 18-decimal integer form.
// Negative amounts and precision beyond 18 places are rejected.
func ToMinorUnits(amount decimal.Decimal) (*big.Int, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("amount %s is negative", amount)
	}
	scaled := amount.Shift(TokenDecimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %s exceeds %d decimal places", amount, TokenDecimals)
	}
	return scaled.BigInt(), nil
}

func epochSeconds(t time.Time) (*big.Int, error) {
	if t.IsZero() || t.Unix() < 0 {
		return nil, fmt.Errorf("timestamp %v is not representable as uint256", t)
	}
	return big.NewInt(t.Unix()), nil
}

func encodeSnapshot(s CampaignSnapshot) (*createCampaignArgs, error) {
	if s.Name == "" {
		return nil, fmt.Errorf("%w: name is empty", ErrInvalidSnapshot)
	}
	startAt, err := epochSeconds(s.StartAt)
	if err != nil {
		return nil, fmt.Errorf("%w: start: %v", ErrInvalidSnapshot, err)
	}
	endAt, err := epochSeconds(s.EndAt)
	if err != nil {
		return nil, fmt.Errorf("%w: end: %v", ErrInvalidSnapshot, err)
	}
	creator, err := ParseAddress(s.CreatorWallet)
	if err != nil {
		return nil, fmt.Errorf("%w: creator wallet: %v", ErrInvalidSnapshot, err)
	}
	reward, err := ToMinorUnits(decimal.NewFromInt(s.RewardAmount))
	if err != nil {
		return nil, fmt.Errorf("%w: reward: %v", ErrInvalidSnapshot, err)
	}

	names := make([]string, 0, len(s.Participants))
	wallets := make([]common.Address, 0, len(s.Participants))
	for _, p := range s.Participants {
		wallet, err := ParseAddress(p.Wallet)
		if err != nil {
			return nil, fmt.Errorf("%w: participant %q wallet: %v", ErrInvalidSnapshot, p.Name, err)
		}
		names = append(names, p.Name)
		wallets = append(wallets, wallet)
	}

	return &createCampaignArgs{
		Name:               s.Name,
		Description:        s.Description,
		StartAt:            startAt,
		EndAt:              endAt,
		Creator:            creator,
		ParticipantNames:   names,
		ParticipantWallets: wallets,
		RewardAmount:       reward,
	}, nil
}
