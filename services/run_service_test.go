package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"gatecrawl-backend/apperrors"
	"gatecrawl-backend/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startedRun(t *testing.T, ts *testServices, n int) (*models.Party, *models.Run) {
	t.Helper()
	party := readyParty(t, ts, n)
	party, run, err := ts.parties.Start(context.Background(), walletN(0), party.ID)
	require.NoError(t, err)
	return party, run
}

func contributionsFor(n int) []models.Contribution {
	out := make([]models.Contribution, n)
	for i := range out {
		out[i] = models.Contribution{Wallet: walletN(i), Damage: int64(1000 * (i + 1)), NormalKills: int64(i)}
	}
	return out
}

func TestFinishRunRejectsWrongContributionCount(t *testing.T) {
	ctx := context.Background()
	ts := newTestServices(t)
	_, run := startedRun(t, ts, 3)

	_, err := ts.runs.FinishRun(ctx, run.ID, FinishRequest{BossID: run.BossID, Contributions: contributionsFor(2)}, "k1")
	requireCode(t, err, apperrors.CodeInvalidContributions)

	stored, err := ts.runs.GetResults(ctx, run.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.EndedAt)
	for _, p := range stored.Participants {
		assert.Zero(t, p.Damage)
	}

	var records, outbox int64
	require.NoError(t, ts.db.Model(&models.ContributionRecord{}).Count(&records).Error)
	require.NoError(t, ts.db.Model(&models.OutboxEntry{}).Count(&outbox).Error)
	assert.Zero(t, records)
	assert.Zero(t, outbox)
	assert.Zero(t, ts.settler.Calls())
}

func TestFinishRunIsIdempotentPerKey(t *testing.T) {
	ctx := context.Background()
	ts := newTestServices(t)
	_, run := startedRun(t, ts, 2)
	req := FinishRequest{BossID: run.BossID, Contributions: contributionsFor(2)}

	first, err := ts.runs.FinishRun(ctx, run.ID, req, "retry-key")
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := ts.runs.FinishRun(ctx, run.ID, req, "retry-key")
	require.NoError(t, err)
	assert.True(t, second.Replayed)

	assert.Equal(t, []byte(first.Payload), []byte(second.Payload))
	assert.Equal(t, 1, ts.settler.Calls())

	_, err = ts.runs.FinishRun(ctx, run.ID, req, "other-key")
	requireCode(t, err, apperrors.CodeRunAlreadyFinished)

	_, err = ts.runs.FinishRun(ctx, run.ID, req, "")
	requireCode(t, err, apperrors.CodeRunAlreadyFinished)
	assert.Equal(t, 1, ts.settler.Calls())
}

func TestFinishRunAppliesRewards(t *testing.T) {
	ctx := context.Background()
	ts := newTestServices(t)
	ts.settler.sbt = map[string]string{walletN(0): "77"}
	party, run := startedRun(t, ts, 2)

	resp, err := ts.runs.FinishRun(ctx, run.ID, FinishRequest{BossID: run.BossID, Contributions: contributionsFor(2)}, "")
	require.NoError(t, err)

	var result FinishResult
	require.NoError(t, json.Unmarshal(resp.Payload, &result))
	assert.Equal(t, "0xsettled1", result.TxHash)
	require.Len(t, result.Relics, 2)
	assert.Equal(t, "100", result.Relics[0].TokenID)

	// settlement saw the recorded contributions
	assert.Equal(t, int64(2000), ts.settler.last.Participants[1].Damage)
	assert.Equal(t, models.RankC, ts.settler.last.GateRank)

	stored, err := ts.runs.GetResults(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.EndedAt)
	require.NotNil(t, stored.TxHash)
	assert.Equal(t, "0xsettled1", *stored.TxHash)
	assert.Len(t, stored.XPAwards, 2)
	require.NotNil(t, stored.XPAwards[0].SbtTokenID)
	assert.Equal(t, "77", *stored.XPAwards[0].SbtTokenID)

	// shared = 3000/2/10 = 150
	prof, err := ts.profiles.Get(ctx, walletN(1))
	require.NoError(t, err)
	assert.Equal(t, int64(170), prof.XP)

	prof, err = ts.profiles.Get(ctx, walletN(0))
	require.NoError(t, err)
	assert.Equal(t, int64(160), prof.XP)
	require.NotNil(t, prof.SbtTokenID)
	assert.Equal(t, "77", *prof.SbtTokenID)

	items, err := ts.inventory.List(ctx, walletN(0))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "100", items[0].TokenID)

	closed, err := ts.parties.Get(ctx, party.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PartyClosed, closed.State)

	var records int64
	require.NoError(t, ts.db.Model(&models.ContributionRecord{}).Where("run_id = ?", run.ID).Count(&records).Error)
	assert.Equal(t, int64(2), records)
}

func TestFinishRunChainFailureLeavesRunEnded(t *testing.T) {
	ctx := context.Background()
	ts := newTestServices(t)
	ts.settler.err = errors.New("rpc timeout")
	party, run := startedRun(t, ts, 1)

	_, err := ts.runs.FinishRun(ctx, run.ID, FinishRequest{BossID: run.BossID, Contributions: contributionsFor(1)}, "k")
	requireCode(t, err, apperrors.CodeChain)

	stored, err := ts.runs.GetResults(ctx, run.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.EndedAt)
	assert.Nil(t, stored.TxHash)
	assert.Contains(t, stored.SettlementError, "rpc timeout")

	prof, err := ts.profiles.Get(ctx, walletN(0))
	require.NoError(t, err)
	assert.Zero(t, prof.XP)

	p, err := ts.parties.Get(ctx, party.ID)
	require.NoError(t, err)
	assert.NotEqual(t, models.PartyClosed, p.State)

	_, err = ts.runs.FinishRun(ctx, run.ID, FinishRequest{BossID: run.BossID, Contributions: contributionsFor(1)}, "k")
	requireCode(t, err, apperrors.CodeRunAlreadyFinished)
}

func TestFinishRunUnknownRun(t *testing.T) {
	ts := newTestServices(t)
	_, err := ts.runs.FinishRun(context.Background(), "missing", FinishRequest{BossID: "b"}, "")
	requireCode(t, err, apperrors.CodeRunNotFound)
}

func TestFinishRunIgnoresNonParticipantContributions(t *testing.T) {
	ctx := context.Background()
	ts := newTestServices(t)
	_, run := startedRun(t, ts, 2)

	contribs := []models.Contribution{
		{Wallet: walletN(0), Damage: 500},
		{Wallet: walletN(42), Damage: 99999},
	}
	_, err := ts.runs.FinishRun(ctx, run.ID, FinishRequest{BossID: run.BossID, Contributions: contribs}, "")
	require.NoError(t, err)

	stored, err := ts.runs.GetResults(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), stored.Participants[0].Damage)
	assert.Zero(t, stored.Participants[1].Damage)
}

func TestSimulateRunDoesNotTouchParties(t *testing.T) {
	ctx := context.Background()
	ts := newTestServices(t)
	seedGate(t, ts.db, "g1", 4, true)
	seedProfile(t, ts.db, walletN(0), "devhunter")

	run, resp, err := ts.runs.SimulateRun(ctx, walletN(0), "g1")
	require.NoError(t, err)
	require.NotNil(t, resp)

	stored, err := ts.runs.GetResults(ctx, run.ID)
	require.NoError(t, err)
	assert.True(t, stored.Synthetic)
	assert.NotNil(t, stored.EndedAt)
	assert.Empty(t, stored.PartyID)
	assert.Positive(t, stored.Participants[0].Damage)
	assert.Equal(t, 1, ts.settler.Calls())
}

func TestFinishRunMatchesChecksummedWallets(t *testing.T) {
	ctx := context.Background()
	ts := newTestServices(t)
	seedGate(t, ts.db, "g1", 4, true)
	hunter := "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd"
	seedProfile(t, ts.db, hunter, "checksum")

	party, err := ts.parties.Create(ctx, hunter, "g1")
	require.NoError(t, err)
	_, err = ts.parties.UpdateMemberState(ctx, hunter, party.ID, MemberPatch{IsReady: boolPtr(true), IsLocked: boolPtr(true)})
	require.NoError(t, err)
	_, run, err := ts.parties.Start(ctx, hunter, party.ID)
	require.NoError(t, err)

	checksummed := common.HexToAddress(hunter).Hex()
	require.NotEqual(t, hunter, checksummed)
	contribs := []models.Contribution{{Wallet: checksummed, Damage: 5000, NormalKills: 3}}
	_, err = ts.runs.FinishRun(ctx, run.ID, FinishRequest{BossID: run.BossID, Contributions: contribs}, "")
	require.NoError(t, err)

	stored, err := ts.runs.GetResults(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), stored.Participants[0].Damage)
	assert.Equal(t, int64(3), stored.Participants[0].NormalKills)
	require.Len(t, stored.XPAwards, 1)
	assert.Positive(t, stored.XPAwards[0].XP)
}

func TestFinishRunRejectsMalformedContributionWallet(t *testing.T) {
	ctx := context.Background()
	ts := newTestServices(t)
	_, run := startedRun(t, ts, 1)

	contribs := []models.Contribution{{Wallet: "not-a-wallet", Damage: 10}}
	_, err := ts.runs.FinishRun(ctx, run.ID, FinishRequest{BossID: run.BossID, Contributions: contribs}, "")
	requireCode(t, err, apperrors.CodeValidation)

	stored, err := ts.runs.GetResults(ctx, run.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.EndedAt)
}
