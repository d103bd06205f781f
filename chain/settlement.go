package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"gatecrawl-backend/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	ModeLive = "live"
	ModeMock = "mock"
)

// MetadataStore persists relic metadata documents and returns their public URL.
type MetadataStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// NetworkReader is the read-only part of ethclient used for status endpoints.
type NetworkReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
	NetworkID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

var ErrNoNetwork = errors.New("chain network not configured")

// SettleInput is everything submitted on-chain for one finished run.
type SettleInput struct {
	RunID        string
	GateID       string
	GateRank     models.Rank
	BossID       string
	Participants []models.RunParticipant
	Relics       []models.MintedRelic
	Awards       []models.XPAward
}

type Status struct {
	Mode        string    `json:"mode"`
	ChainID     int64     `json:"chainId"`
	BlockNumber uint64    `json:"blockNumber"`
	Contracts   Addresses `json:"contracts"`
}

type NetworkInfo struct {
	ChainID   string `json:"chainId"`
	NetworkID string `json:"networkId"`
}

// Settlement submits run outcomes to the chain, or fakes them when contracts are not deployed.
type Settlement struct {
	contracts Contracts
	network   NetworkReader
	metadata  MetadataStore
	addrs     Addresses
	chainID   int64
	log       *zap.Logger
	now       func() time.Time

	mockSeq atomic.Uint64
}

func NewSettlement(contracts Contracts, network NetworkReader, metadata MetadataStore, addrs Addresses, chainID int64, log *zap.Logger) *Settlement {
	return &Settlement{
		contracts: contracts,
		network:   network,
		metadata:  metadata,
		addrs:     addrs,
		chainID:   chainID,
		log:       log,
		now:       time.Now,
	}
}

// MockMode is true when no contracts are deployed; settlement then never touches the chain.
func (s *Settlement) MockMode() bool {
	return s.contracts == nil || !s.addrs.Deployed()
}

func (s *Settlement) Contracts() Contracts { return s.contracts }

// Settle emits the boss kill, mints each relic and updates each player's SBT, in that
// order. Calls are not batched; a failure mid-way leaves earlier transactions in place.
func (s *Settlement) Settle(ctx context.Context, in SettleInput) (*models.SettlementResult, error) {
	s.uploadMetadata(ctx, in.Relics)

	if s.MockMode() {
		return s.mockSettle(in), nil
	}

	participants := make([]common.Address, len(in.Participants))
	contributions := make([]*big.Int, len(in.Participants))
	for i, p := range in.Participants {
		participants[i] = common.HexToAddress(p.Wallet)
		contributions[i] = big.NewInt(p.Damage)
	}

	killTx, err := s.contracts.EmitBossKilled(ctx, in.GateID, uint8(in.GateRank.Index()), in.BossID, participants, contributions)
	if err != nil {
		return nil, errors.Wrap(err, "emitBossKilled")
	}
	s.log.Info("[CHAIN] boss kill recorded", zap.String("run", in.RunID), zap.String("tx", killTx.Hex()))

	result := &models.SettlementResult{
		TxHash:      killTx.Hex(),
		Relics:      make([]models.MintedRelic, len(in.Relics)),
		SbtTokenIDs: make(map[string]string),
	}

	for i, relic := range in.Relics {
		tokenID, _, err := s.contracts.MintRelic(ctx, common.HexToAddress(relic.Owner), relic.RelicType, affixValues(relic.Affixes), relic.CID)
		if err != nil {
			return nil, errors.Wrapf(err, "mintRelic for %s", relic.Owner)
		}
		relic.TokenID = tokenID.String()
		result.Relics[i] = relic
	}

	for _, award := range in.Awards {
		sbtID, _, err := s.contracts.UpdateProgress(ctx, common.HexToAddress(award.Wallet), uint8(award.Rank.Index()),
			big.NewInt(int64(award.Level)), big.NewInt(award.TotalXP))
		if err != nil {
			return nil, errors.Wrapf(err, "updateProgress for %s", award.Wallet)
		}
		if sbtID != nil {
			result.SbtTokenIDs[award.Wallet] = sbtID.String()
		}
	}

	return result, nil
}

func (s *Settlement) mockSettle(in SettleInput) *models.SettlementResult {
	ms := s.now().UnixMilli()
	seq := s.mockSeq.Add(1) % 1000
	result := &models.SettlementResult{
		TxHash:      fmt.Sprintf("mock_tx_%d", ms),
		Relics:      make([]models.MintedRelic, len(in.Relics)),
		SbtTokenIDs: map[string]string{},
	}
	for i, relic := range in.Relics {
		// <unix ms><relic index><settlement sequence>
		relic.TokenID = fmt.Sprintf("%d%02d%03d", ms, i, seq)
		result.Relics[i] = relic
	}
	s.log.Info("[CHAIN] contracts not deployed, mock settlement", zap.String("run", in.RunID), zap.String("tx", result.TxHash))
	return result
}

// uploadMetadata stores relic metadata under its content id. Failures are logged only.
func (s *Settlement) uploadMetadata(ctx context.Context, relics []models.MintedRelic) {
	if s.metadata == nil {
		return
	}
	for _, relic := range relics {
		body := RelicMetadataJSON(relic.RelicType, relic.Affixes)
		if _, err := s.metadata.Put(ctx, MetadataKey(relic.RelicType, relic.CID), body, "application/json"); err != nil {
			s.log.Warn("[CHAIN] relic metadata upload failed", zap.String("cid", relic.CID), zap.Error(err))
		}
	}
}

// OwnerOf returns the lowercase hex owner of a relic token.
func (s *Settlement) OwnerOf(ctx context.Context, tokenID string) (string, error) {
	if s.MockMode() {
		return "", errors.New("ownerOf unavailable in mock mode")
	}
	id, ok := new(big.Int).SetString(tokenID, 10)
	if !ok {
		return "", errors.Errorf("invalid token id %q", tokenID)
	}
	owner, err := s.contracts.OwnerOf(ctx, id)
	if err != nil {
		return "", err
	}
	return lowerHex(owner), nil
}

func (s *Settlement) Status(ctx context.Context) (*Status, error) {
	st := &Status{Mode: ModeLive, ChainID: s.chainID, Contracts: s.addrs}
	if s.MockMode() {
		st.Mode = ModeMock
	}
	if s.network == nil {
		if st.Mode == ModeMock {
			return st, nil
		}
		return nil, ErrNoNetwork
	}

	block, err := s.network.BlockNumber(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "BlockNumber")
	}
	st.BlockNumber = block

	chainID, err := s.network.ChainID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "ChainID")
	}
	st.ChainID = chainID.Int64()
	return st, nil
}

// GasPrice returns the suggested gas price in wei.
func (s *Settlement) GasPrice(ctx context.Context) (*big.Int, error) {
	if s.network == nil {
		return nil, ErrNoNetwork
	}
	price, err := s.network.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "SuggestGasPrice")
	}
	return price, nil
}

func (s *Settlement) Network(ctx context.Context) (*NetworkInfo, error) {
	if s.network == nil {
		return nil, ErrNoNetwork
	}
	chainID, err := s.network.ChainID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "ChainID")
	}
	networkID, err := s.network.NetworkID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "NetworkID")
	}
	return &NetworkInfo{ChainID: chainID.String(), NetworkID: networkID.String()}, nil
}

func lowerHex(addr common.Address) string {
	return fmt.Sprintf("0x%x", addr.Bytes())
}
