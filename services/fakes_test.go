package services

import (
	"context"
	"fmt"
	"sync"

	"gatecrawl-backend/chain"
	"gatecrawl-backend/models"
)

type fakeSettler struct {
	mu    sync.Mutex
	calls int
	err   error
	sbt   map[string]string
	last  chain.SettleInput
}

func (f *fakeSettler) Settle(_ context.Context, in chain.SettleInput) (*models.SettlementResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.last = in
	if f.err != nil {
		return nil, f.err
	}

	relics := make([]models.MintedRelic, len(in.Relics))
	for i, r := range in.Relics {
		r.TokenID = fmt.Sprintf("%d", 100*f.calls+i)
		relics[i] = r
	}
	sbt := f.sbt
	if sbt == nil {
		sbt = map[string]string{}
	}
	return &models.SettlementResult{
		TxHash:      fmt.Sprintf("0xsettled%d", f.calls),
		Relics:      relics,
		SbtTokenIDs: sbt,
	}, nil
}

func (f *fakeSettler) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeOwners struct {
	mock   bool
	owners map[string]string
	errs   map[string]error
}

func (f *fakeOwners) MockMode() bool { return f.mock }

func (f *fakeOwners) OwnerOf(_ context.Context, tokenID string) (string, error) {
	if err, ok := f.errs[tokenID]; ok {
		return "", err
	}
	return f.owners[tokenID], nil
}
