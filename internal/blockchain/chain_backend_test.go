package blockchain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChain is an in-memory node. Its mempool takes a transaction whose
// nonce matches the pending nonce; replies for each broadcast are scripted.
type fakeChain struct {
	mu           sync.Mutex
	pendingNonce uint64
	replies      []error
	broadcasts   []*types.Transaction
	accepted     map[common.Hash]*types.Transaction
	nonceCalls   int
}

func newFakeChain(replies ...error) *fakeChain {
	return &fakeChain{replies: replies, accepted: make(map[common.Hash]*types.Transaction)}
}

func (c *fakeChain) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x60, 0x80}, nil
}

func (c *fakeChain) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}

func (c *fakeChain) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 250_000, nil
}

func (c *fakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (c *fakeChain) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (c *fakeChain) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(100)}, nil
}

func (c *fakeChain) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return []byte{0x60, 0x80}, nil
}

func (c *fakeChain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nonceCalls++
	return c.pendingNonce, nil
}

func (c *fakeChain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.broadcasts = append(c.broadcasts, tx)
	_, known := c.accepted[tx.Hash()]
	if !known && tx.Nonce() == c.pendingNonce {
		c.accepted[tx.Hash()] = tx
		c.pendingNonce++
	}

	if len(c.replies) > 0 {
		reply := c.replies[0]
		c.replies = c.replies[1:]
		return reply
	}
	if known {
		return errors.New("already known")
	}
	return nil
}

func (c *fakeChain) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (c *fakeChain) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("subscriptions not supported")
}

func (c *fakeChain) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.accepted[txHash]; !ok {
		return nil, ethereum.NotFound
	}
	receipt := successfulReceipt(11)
	receipt.TxHash = txHash
	return receipt, nil
}

func (c *fakeChain) ChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(31337), nil
}

func registryOn(chain *fakeChain) *CampaignRegistry {
	return NewCampaignRegistry(testRegistryConfig(), WithDialer(func(ctx context.Context, rpcURL string) (ChainBackend, error) {
		return chain, nil
	}))
}

func TestRegisterCampaign_TimedOutSendIsNotBroadcastTwice(t *testing.T) {
	chain := newFakeChain(context.DeadlineExceeded)
	registry := registryOn(chain)

	receipt, err := registry.RegisterCampaign(context.Background(), validSnapshot())
	require.NoError(t, err)

	require.Len(t, chain.broadcasts, 2)
	first := chain.broadcasts[0]
	assert.Equal(t, uint64(0), first.Nonce())
	assert.Equal(t, first.Hash(), chain.broadcasts[1].Hash())
	assert.Len(t, chain.accepted, 1)
	assert.Equal(t, uint64(1), chain.pendingNonce)
	assert.Equal(t, 1, chain.nonceCalls)

	assert.Equal(t, first.Hash().Hex(), receipt.TxHash)
	assert.Equal(t, 2, receipt.Attempts)
	require.NotNil(t, receipt.OnchainID())
	assert.Equal(t, "11", *receipt.OnchainID())
}

func TestRegisterCampaign_NonceTooLowAfterTimeoutIsAccepted(t *testing.T) {
	chain := newFakeChain(context.DeadlineExceeded, errors.New("nonce too low"))
	registry := registryOn(chain)

	receipt, err := registry.RegisterCampaign(context.Background(), validSnapshot())
	require.NoError(t, err)

	require.Len(t, chain.broadcasts, 2)
	assert.Len(t, chain.accepted, 1)
	assert.Equal(t, chain.broadcasts[0].Hash().Hex(), receipt.TxHash)
}

func TestRegisterCampaign_SequentialRegistrationsUseNextNonce(t *testing.T) {
	chain := newFakeChain()
	registry := registryOn(chain)

	first, err := registry.RegisterCampaign(context.Background(), validSnapshot())
	require.NoError(t, err)
	second, err := registry.RegisterCampaign(context.Background(), validSnapshot())
	require.NoError(t, err)

	require.Len(t, chain.broadcasts, 2)
	assert.Equal(t, uint64(0), chain.broadcasts[0].Nonce())
	assert.Equal(t, uint64(1), chain.broadcasts[1].Nonce())
	assert.NotEqual(t, first.TxHash, second.TxHash)
}
