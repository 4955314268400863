package blockchain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"community-campaigns/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DiagnosticResult holds the result of a ledger connectivity diagnostic
type DiagnosticResult struct {
	ConfigValid     bool   `json:"config_valid"`
	ConfigError     string `json:"config_error,omitempty"`
	RPCConnected    bool   `json:"rpc_connected"`
	RPCURL          string `json:"rpc_url"`
	RPCError        string `json:"rpc_error,omitempty"`
	ChainID         string `json:"chain_id,omitempty"`
	LatestBlock     uint64 `json:"latest_block,omitempty"`
	SignerKeySet    bool   `json:"signer_key_set"`
	SignerAddress   string `json:"signer_address,omitempty"`
	SignerError     string `json:"signer_error,omitempty"`
	ContractAddress string `json:"contract_address,omitempty"`
	ContractHasCode bool   `json:"contract_has_code"`
	Timestamp       string `json:"timestamp"`
}

// RunDiagnostics checks configuration, node reachability, the signer key and
// whether code is deployed at the contract address. It never sends a
// transaction.
func (r *CampaignRegistry) RunDiagnostics(ctx context.Context) *DiagnosticResult {
	result := &DiagnosticResult{
		Timestamp:       time.Now().Format(time.RFC3339),
		RPCURL:          r.cfg.RPCURL,
		ContractAddress: r.cfg.ContractAddress,
	}

	if err := r.cfg.Validate(); err != nil {
		result.ConfigError = err.Error()
		logger.Warnf("[Diagnostics] Ledger config invalid: %v", err)
	} else {
		result.ConfigValid = true
	}

	result.SignerKeySet = r.cfg.PrivateKey != ""
	if result.SignerKeySet {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(r.cfg.PrivateKey, "0x"))
		if err != nil {
			result.SignerError = fmt.Sprintf("invalid key: %v", err)
		} else {
			result.SignerAddress = crypto.PubkeyToAddress(key.PublicKey).Hex()
		}
	}

	if r.cfg.RPCURL == "" {
		result.RPCError = "RPC URL not set"
		return result
	}

	backend, err := r.dial(ctx, r.cfg.RPCURL)
	if err != nil {
		result.RPCError = err.Error()
		logger.Warnf("[Diagnostics] RPC dial failed: %v", err)
		return result
	}

	header, err := backend.HeaderByNumber(ctx, nil)
	if err != nil {
		result.RPCError = err.Error()
		logger.Warnf("[Diagnostics] RPC failed: %v", err)
		return result
	}
	result.RPCConnected = true
	if header.Number != nil {
		result.LatestBlock = header.Number.Uint64()
	}

	if chainID, err := backend.ChainID(ctx); err == nil {
		result.ChainID = chainID.String()
	}

	if addr, err := ParseAddress(r.cfg.ContractAddress); err == nil {
		code, err := backend.CodeAt(ctx, addr, nil)
		if err == nil {
			result.ContractHasCode = len(code) > 0
		}
	} else if r.cfg.ContractAddress != "" {
		logger.Warnf("[Diagnostics] Contract address %s invalid", r.cfg.ContractAddress)
	}

	return result
}

// SignerAddress is the address transactions are sent from, once connected.
func (r *CampaignRegistry) SignerAddress() (common.Address, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.signer, r.backend != nil
}
