package chain

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	"gatecrawl-backend/config"
	"gatecrawl-backend/utils"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Addresses holds the deployed contract addresses.
type Addresses struct {
	BossEvents common.Address `json:"bossEvents"`
	RelicNFT   common.Address `json:"relicNft"`
	PlayerSBT  common.Address `json:"playerSbt"`
}

// Deployed reports whether every contract address is set.
func (a Addresses) Deployed() bool {
	zero := common.Address{}
	return a.BossEvents != zero && a.RelicNFT != zero && a.PlayerSBT != zero
}

func AddressesFromConfig(cfg config.ChainConfig) Addresses {
	return Addresses{
		BossEvents: common.HexToAddress(cfg.BossEventsAddress),
		RelicNFT:   common.HexToAddress(cfg.RelicNFTAddress),
		PlayerSBT:  common.HexToAddress(cfg.PlayerSBTAddress),
	}
}

// Client implements Contracts over an ethclient connection.
type Client struct {
	eth     *ethclient.Client
	addrs   Addresses
	timeout time.Duration
	log     *zap.Logger

	txMu   sync.Mutex
	txOpts *bind.TransactOpts

	bossEvents *bind.BoundContract
	relicNFT   *bind.BoundContract
	playerSBT  *bind.BoundContract
}

// Dial connects to the RPC endpoint. A missing private key yields a read-only client.
func Dial(ctx context.Context, cfg config.ChainConfig, log *zap.Logger) (*Client, error) {
	rpcClient, err := rpc.DialOptions(ctx, cfg.RPCURL, rpc.WithHTTPClient(utils.HTTPClient))
	if err != nil {
		return nil, errors.Wrap(err, "rpc.DialOptions")
	}
	eth := ethclient.NewClient(rpcClient)

	c := &Client{
		eth:     eth,
		addrs:   AddressesFromConfig(cfg),
		timeout: cfg.TxTimeout,
		log:     log,
	}
	if cfg.PrivateKey != "" {
		c.txOpts, err = TransactOptsFromPrivateKey(cfg.PrivateKey, cfg.ChainID)
		if err != nil {
			return nil, err
		}
	}

	c.bossEvents = bind.NewBoundContract(c.addrs.BossEvents, mustParseABI(bossEventsABI), eth, eth, eth)
	c.relicNFT = bind.NewBoundContract(c.addrs.RelicNFT, mustParseABI(relicNFTABI), eth, eth, eth)
	c.playerSBT = bind.NewBoundContract(c.addrs.PlayerSBT, mustParseABI(playerSBTABI), eth, eth, eth)
	return c, nil
}

// Eth exposes the underlying client for network queries.
func (c *Client) Eth() *ethclient.Client { return c.eth }

func (c *Client) Close() { c.eth.Close() }

func TransactOptsFromPrivateKey(privateKey string, chainID int64) (*bind.TransactOpts, error) {
	privateKey = strings.TrimPrefix(privateKey, "0x")

	pk, err := crypto.HexToECDSA(privateKey)
	if err != nil {
		return nil, errors.Wrap(err, "crypto.HexToECDSA")
	}

	opts, err := bind.NewKeyedTransactorWithChainID(pk, big.NewInt(chainID))
	if err != nil {
		return nil, errors.Wrap(err, "bind.NewKeyedTransactorWithChainID")
	}
	return opts, nil
}

func (c *Client) EmitBossKilled(ctx context.Context, gateID string, gateRank uint8, bossID string, participants []common.Address, contributions []*big.Int) (common.Hash, error) {
	receipt, err := c.transact(ctx, c.bossEvents, "emitBossKilled", gateID, gateRank, bossID, participants, contributions)
	if err != nil {
		return common.Hash{}, err
	}
	return receipt.TxHash, nil
}

func (c *Client) MintRelic(ctx context.Context, to common.Address, relicType string, affixValues []*big.Int, cid string) (*big.Int, common.Hash, error) {
	receipt, err := c.transact(ctx, c.relicNFT, "mintRelic", to, relicType, affixValues, cid)
	if err != nil {
		return nil, common.Hash{}, err
	}
	tokenID, ok := transferredTokenID(receipt, c.addrs.RelicNFT, true)
	if !ok {
		return nil, receipt.TxHash, errors.Errorf("mintRelic %s: no Transfer event in receipt", receipt.TxHash.Hex())
	}
	return tokenID, receipt.TxHash, nil
}

func (c *Client) UpdateProgress(ctx context.Context, player common.Address, rank uint8, level, xp *big.Int) (*big.Int, common.Hash, error) {
	receipt, err := c.transact(ctx, c.playerSBT, "updateProgress", player, rank, level, xp)
	if err != nil {
		return nil, common.Hash{}, err
	}
	tokenID, _ := transferredTokenID(receipt, c.addrs.PlayerSBT, true)
	return tokenID, receipt.TxHash, nil
}

func (c *Client) OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	var out []any
	if err := c.relicNFT.Call(&bind.CallOpts{Context: ctx}, &out, "ownerOf", tokenID); err != nil {
		return common.Address{}, errors.Wrap(err, "ownerOf")
	}
	if len(out) != 1 {
		return common.Address{}, errors.Errorf("ownerOf: unexpected output length %d", len(out))
	}
	owner, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, errors.Errorf("ownerOf: unexpected output type %T", out[0])
	}
	return owner, nil
}

// transact submits one transaction and waits for a successful receipt.
func (c *Client) transact(ctx context.Context, contract *bind.BoundContract, method string, args ...any) (*types.Receipt, error) {
	if c.txOpts == nil {
		return nil, errors.Errorf("%s: no signing key configured", method)
	}

	c.txMu.Lock()
	opts := *c.txOpts
	opts.Context = ctx
	tx, err := contract.Transact(&opts, method, args...)
	c.txMu.Unlock()
	if err != nil {
		return nil, errors.Wrap(err, method)
	}

	c.log.Info("[CHAIN] tx submitted", zap.String("method", method), zap.String("tx", tx.Hash().Hex()))

	waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, c.eth, tx)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: wait for %s", method, tx.Hash().Hex())
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, errors.Errorf("%s: tx %s reverted", method, tx.Hash().Hex())
	}
	return receipt, nil
}

// NewFromConfig dials the RPC endpoint (when configured) and wires the contract client
// only if every contract address is deployed.
func NewFromConfig(ctx context.Context, cfg config.ChainConfig, metadata MetadataStore, log *zap.Logger) (*Settlement, func(), error) {
	addrs := AddressesFromConfig(cfg)
	if cfg.RPCURL == "" {
		return NewSettlement(nil, nil, metadata, addrs, cfg.ChainID, log), func() {}, nil
	}

	client, err := Dial(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}

	var contracts Contracts
	if addrs.Deployed() {
		contracts = client
	} else {
		log.Warn("[CHAIN] contract addresses not set, settlement runs in mock mode")
	}
	return NewSettlement(contracts, client.Eth(), metadata, addrs, cfg.ChainID, log), client.Close, nil
}
