package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"community-campaigns/pkg/logger"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ChainBackend is the node API the registry needs. *ethclient.Client
// satisfies it.
type ChainBackend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

// campaignTransactor signs, broadcasts and waits for createCampaign
// transactions. Signing never broadcasts.
type campaignTransactor interface {
	PendingNonce(ctx context.Context) (uint64, error)
	SignCreateCampaign(ctx context.Context, args *createCampaignArgs, nonce uint64) (*types.Transaction, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// Receipt is the confirmed result of a registration.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	CampaignID  *big.Int // nil when the receipt carries no CampaignCreated event
	Attempts    int
}

// OnchainID returns the campaign id as a decimal string, or nil.
func (r *Receipt) OnchainID() *string {
	if r == nil || r.CampaignID == nil {
		return nil
	}
	id := r.CampaignID.String()
	return &id
}

// CampaignRegistry registers finalized campaigns with the registry contract.
// The node connection is opened lazily on first use so a missing secret
// surfaces as ErrConfiguration at invocation time.
type CampaignRegistry struct {
	cfg  Config
	dial func(ctx context.Context, rpcURL string) (ChainBackend, error)

	mu         sync.Mutex
	sendMu     sync.Mutex
	backend    ChainBackend
	transactor campaignTransactor
	signer     common.Address
}

type Option func(*CampaignRegistry)

// WithDialer replaces the ethclient dialer.
func WithDialer(dial func(ctx context.Context, rpcURL string) (ChainBackend, error)) Option {
	return func(r *CampaignRegistry) {
		r.dial = dial
	}
}

func withTransactor(t campaignTransactor) Option {
	return func(r *CampaignRegistry) {
		r.transactor = t
	}
}

// NewCampaignRegistry builds a registry. It does not validate cfg; that
// happens on every RegisterCampaign call.
func NewCampaignRegistry(cfg Config, opts ...Option) *CampaignRegistry {
	r := &CampaignRegistry{
		cfg: cfg.withDefaults(),
		dial: func(ctx context.Context, rpcURL string) (ChainBackend, error) {
			return ethclient.DialContext(ctx, rpcURL)
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the effective configuration.
func (r *CampaignRegistry) Config() Config {
	return r.cfg
}

// RegisterCampaign submits the snapshot and waits for block inclusion.
// The transaction is signed once at a pinned nonce; send failures re-broadcast
// that same signed transaction with exponential backoff, so at most one
// createCampaign can be mined per call. A confirmation timeout comes back as a
// retryable *LedgerError carrying the tx hash.
func (r *CampaignRegistry) RegisterCampaign(ctx context.Context, snapshot CampaignSnapshot) (*Receipt, error) {
	start := time.Now()
	receipt, err := r.register(ctx, snapshot)
	registrationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		registrationsTotal.WithLabelValues(ErrorKind(err)).Inc()
		return nil, err
	}
	registrationsTotal.WithLabelValues("success").Inc()
	return receipt, nil
}

func (r *CampaignRegistry) register(ctx context.Context, snapshot CampaignSnapshot) (*Receipt, error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}

	args, err := encodeSnapshot(snapshot)
	if err != nil {
		return nil, err
	}

	transactor, err := r.connect(ctx)
	if err != nil {
		return nil, err
	}

	tx, attempts, err := r.submit(ctx, transactor, args, snapshot.CampaignID)
	if err != nil {
		return nil, err
	}

	txHash := tx.Hash().Hex()
	logger.Info().
		Str("campaign_id", snapshot.CampaignID).
		Str("tx_hash", txHash).
		Int("attempts", attempts).
		Msg("[Ledger] createCampaign submitted, waiting for confirmation")

	confirmCtx, cancel := context.WithTimeout(ctx, r.cfg.ConfirmTimeout)
	defer cancel()

	mined, err := transactor.WaitMined(confirmCtx, tx)
	if err != nil {
		return nil, &LedgerError{Op: "confirm", TxHash: txHash, Retryable: true, Err: err}
	}
	if mined.Status != types.ReceiptStatusSuccessful {
		return nil, &LedgerError{Op: "confirm", TxHash: txHash, Retryable: false, Err: errors.New("transaction reverted")}
	}

	receipt := &Receipt{
		TxHash:     txHash,
		CampaignID: r.campaignIDFromLogs(mined.Logs),
		Attempts:   attempts,
	}
	if mined.BlockNumber != nil {
		receipt.BlockNumber = mined.BlockNumber.Uint64()
	}
	return receipt, nil
}

// submit signs createCampaign once and broadcasts it until the node takes
// it. Submissions are serialized so concurrent registrations never share a
// nonce.
func (r *CampaignRegistry) submit(ctx context.Context, transactor campaignTransactor, args *createCampaignArgs, campaignID string) (*types.Transaction, int, error) {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	nonceCtx, cancel := context.WithTimeout(ctx, r.cfg.SendTimeout)
	nonce, err := transactor.PendingNonce(nonceCtx)
	cancel()
	if err != nil {
		return nil, 0, &LedgerError{Op: "nonce", Retryable: true, Err: err}
	}

	var signed *types.Transaction
	attempts := 0
	tx, err := backoff.Retry(ctx, func() (*types.Transaction, error) {
		attempts++
		sendAttemptsTotal.Inc()

		sendCtx, cancel := context.WithTimeout(ctx, r.cfg.SendTimeout)
		defer cancel()

		if signed == nil {
			tx, err := transactor.SignCreateCampaign(sendCtx, args, nonce)
			if err != nil {
				return nil, retryableOrPermanent(classifySendError(err))
			}
			signed = tx
		}

		if err := transactor.SendTransaction(sendCtx, signed); err != nil {
			if alreadyAccepted(err) {
				logger.Info().
					Str("campaign_id", campaignID).
					Str("tx_hash", signed.Hash().Hex()).
					Str("reply", err.Error()).
					Msg("[Ledger] createCampaign already with the node")
				return signed, nil
			}
			return nil, retryableOrPermanent(classifySendError(err))
		}
		return signed, nil
	},
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(uint(r.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn().
				Str("campaign_id", campaignID).
				Uint64("nonce", nonce).
				Err(err).
				Dur("retry_in", next).
				Msg("[Ledger] createCampaign send failed, retrying")
		}),
	)
	if err != nil {
		var lerr *LedgerError
		if !errors.As(err, &lerr) {
			lerr = &LedgerError{Op: "send", Retryable: true, Err: err}
		}
		if signed != nil && lerr.TxHash == "" {
			lerr.TxHash = signed.Hash().Hex()
		}
		return nil, attempts, lerr
	}
	return tx, attempts, nil
}

func retryableOrPermanent(lerr *LedgerError) error {
	if !lerr.Retryable {
		return backoff.Permanent(lerr)
	}
	return lerr
}

// alreadyAccepted reports a node reply meaning the pinned-nonce transaction
// was taken by an earlier broadcast.
func alreadyAccepted(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already known") ||
		strings.Contains(msg, "known transaction") ||
		strings.Contains(msg, "nonce too low")
}

func (r *CampaignRegistry) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialBackoff
	b.MaxInterval = r.cfg.MaxBackoff
	return b
}

// connect opens the node connection and signer once. A failed attempt
// leaves nothing cached so the next call tries again.
func (r *CampaignRegistry) connect(ctx context.Context) (campaignTransactor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.transactor != nil {
		return r.transactor, nil
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(r.cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: signing key: %v", ErrConfiguration, err)
	}

	backend, err := r.dial(ctx, r.cfg.RPCURL)
	if err != nil {
		return nil, &LedgerError{Op: "dial", Retryable: true, Err: err}
	}

	chainID := big.NewInt(r.cfg.ChainID)
	if r.cfg.ChainID == 0 {
		chainID, err = backend.ChainID(ctx)
		if err != nil {
			return nil, &LedgerError{Op: "chain id", Retryable: true, Err: err}
		}
	}

	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("%w: transactor: %v", ErrConfiguration, err)
	}

	contract := bind.NewBoundContract(
		common.HexToAddress(r.cfg.ContractAddress),
		parsedRegistryABI,
		backend,
		backend,
		backend,
	)

	r.backend = backend
	r.signer = crypto.PubkeyToAddress(key.PublicKey)
	r.transactor = &boundTransactor{
		backend:  backend,
		contract: contract,
		opts:     opts,
	}

	logger.Infof("[Ledger] Connected to %s as %s (chain %s)", r.cfg.RPCURL, r.signer.Hex(), chainID)
	return r.transactor, nil
}

func (r *CampaignRegistry) campaignIDFromLogs(logs []*types.Log) *big.Int {
	event, ok := parsedRegistryABI.Events[campaignCreatedEvent]
	if !ok {
		return nil
	}
	contract := common.HexToAddress(r.cfg.ContractAddress)
	for _, l := range logs {
		if l == nil || l.Address != contract || len(l.Topics) < 2 || l.Topics[0] != event.ID {
			continue
		}
		return new(big.Int).SetBytes(l.Topics[1].Bytes())
	}
	return nil
}

// classifySendError marks contract-level rejections as permanent; anything
// else (transport, timeouts, nonce races) may pass on another attempt.
func classifySendError(err error) *LedgerError {
	msg := strings.ToLower(err.Error())
	permanent := strings.Contains(msg, "execution reverted") ||
		strings.Contains(msg, "insufficient funds")
	return &LedgerError{Op: "send", Retryable: !permanent, Err: err}
}

// boundTransactor is the go-ethereum backed campaignTransactor.
type boundTransactor struct {
	backend  ChainBackend
	contract *bind.BoundContract
	opts     *bind.TransactOpts
}

func (t *boundTransactor) PendingNonce(ctx context.Context) (uint64, error) {
	return t.backend.PendingNonceAt(ctx, t.opts.From)
}

func (t *boundTransactor) SignCreateCampaign(ctx context.Context, args *createCampaignArgs, nonce uint64) (*types.Transaction, error) {
	opts := *t.opts
	opts.Context = ctx
	opts.Nonce = new(big.Int).SetUint64(nonce)
	opts.NoSend = true
	return t.contract.Transact(&opts, createCampaignMethod, args.params()...)
}

func (t *boundTransactor) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return t.backend.SendTransaction(ctx, tx)
}

func (t *boundTransactor) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	return bind.WaitMined(ctx, t.backend, tx)
}
