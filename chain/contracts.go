// Package chain talks to the game contracts on an EVM chain: boss-kill events, relic NFT
// mints and soulbound progress tokens.
package chain

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

//go:generate mockgen -destination=mocks/mock_contracts.go -package=mocks gatecrawl-backend/chain Contracts

// Contracts is the set of contract calls made during settlement and inventory sync.
type Contracts interface {
	EmitBossKilled(ctx context.Context, gateID string, gateRank uint8, bossID string, participants []common.Address, contributions []*big.Int) (common.Hash, error)
	// MintRelic returns the minted token id parsed from the Transfer log.
	MintRelic(ctx context.Context, to common.Address, relicType string, affixValues []*big.Int, cid string) (*big.Int, common.Hash, error)
	// UpdateProgress returns a token id only when the call minted a new SBT.
	UpdateProgress(ctx context.Context, player common.Address, rank uint8, level, xp *big.Int) (*big.Int, common.Hash, error)
	OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error)
}

const bossEventsABI = `[
	{"type":"function","name":"emitBossKilled","stateMutability":"nonpayable","inputs":[
		{"name":"gateId","type":"string"},
		{"name":"gateRank","type":"uint8"},
		{"name":"bossId","type":"string"},
		{"name":"participants","type":"address[]"},
		{"name":"contributions","type":"uint256[]"}],"outputs":[]}
]`

const relicNFTABI = `[
	{"type":"function","name":"mintRelic","stateMutability":"nonpayable","inputs":[
		{"name":"to","type":"address"},
		{"name":"relicType","type":"string"},
		{"name":"affixValues","type":"uint256[]"},
		{"name":"ipfsCid","type":"string"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"ownerOf","stateMutability":"view","inputs":[
		{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"event","name":"Transfer","anonymous":false,"inputs":[
		{"name":"from","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"tokenId","type":"uint256","indexed":true}]}
]`

const playerSBTABI = `[
	{"type":"function","name":"updateProgress","stateMutability":"nonpayable","inputs":[
		{"name":"player","type":"address"},
		{"name":"rank","type":"uint8"},
		{"name":"level","type":"uint256"},
		{"name":"xp","type":"uint256"}],"outputs":[]},
	{"type":"event","name":"Transfer","anonymous":false,"inputs":[
		{"name":"from","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"tokenId","type":"uint256","indexed":true}]}
]`

var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// transferredTokenID finds the first ERC-721 Transfer emitted by contract in receipt.
// When mintOnly is set, transfers from a non-zero address are skipped.
func transferredTokenID(receipt *types.Receipt, contract common.Address, mintOnly bool) (*big.Int, bool) {
	if receipt == nil {
		return nil, false
	}
	for _, l := range receipt.Logs {
		if l.Address != contract || len(l.Topics) != 4 || l.Topics[0] != transferTopic {
			continue
		}
		if mintOnly && l.Topics[1] != (common.Hash{}) {
			continue
		}
		return new(big.Int).SetBytes(l.Topics[3].Bytes()), true
	}
	return nil, false
}
