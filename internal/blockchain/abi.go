package blockchain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	createCampaignMethod = "createCampaign"
	campaignCreatedEvent = "CampaignCreated"
)

// CampaignRegistryABI is the subset of the registry contract this service calls.
const CampaignRegistryABI = `[
  {
    "type": "function",
    "name": "createCampaign",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "name", "type": "string"},
      {"name": "description", "type": "string"},
      {"name": "startAt", "type": "uint256"},
      {"name": "endAt", "type": "uint256"},
      {"name": "creator", "type": "address"},
      {"name": "participantNames", "type": "string[]"},
      {"name": "participantWallets", "type": "address[]"},
      {"name": "rewardAmount", "type": "uint256"}
    ],
    "outputs": [{"name": "campaignId", "type": "uint256"}]
  },
  {
    "type": "event",
    "name": "CampaignCreated",
    "anonymous": false,
    "inputs": [
      {"name": "campaignId", "type": "uint256", "indexed": true},
      {"name": "creator", "type": "address", "indexed": true}
    ]
  }
]`

var parsedRegistryABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(CampaignRegistryABI))
	if err != nil {
		panic("blockchain: invalid registry ABI: " + err.Error())
	}
	parsedRegistryABI = parsed
}
