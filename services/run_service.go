package services

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"time"

	"gatecrawl-backend/apperrors"
	"gatecrawl-backend/chain"
	"gatecrawl-backend/models"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Settler submits a finished run to the chain.
type Settler interface {
	Settle(ctx context.Context, in chain.SettleInput) (*models.SettlementResult, error)
}

type RunService struct {
	DB        *gorm.DB
	settler   Settler
	parties   *PartyService
	profiles  *ProfileService
	inventory *InventoryService
	log       *zap.Logger
	now       func() time.Time
	rng       func() *rand.Rand
}

func NewRunService(db *gorm.DB, settler Settler, parties *PartyService, profiles *ProfileService, inventory *InventoryService, log *zap.Logger) *RunService {
	return &RunService{
		DB:        db,
		settler:   settler,
		parties:   parties,
		profiles:  profiles,
		inventory: inventory,
		log:       log,
		now:       time.Now,
		rng: func() *rand.Rand {
			return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		},
	}
}

type FinishRequest struct {
	BossID        string                `json:"bossId" validate:"required"`
	Contributions []models.Contribution `json:"contributions" validate:"required,dive"`
}

// FinishResult is the body returned (and stored for replay) by a finish-run call.
type FinishResult struct {
	TxHash string               `json:"txHash"`
	Relics []models.MintedRelic `json:"relics"`
}

type FinishResponse struct {
	Payload  json.RawMessage
	Replayed bool
}

func createRun(tx *gorm.DB, partyID, gateID, bossID string, participants []models.RunParticipant, synthetic bool, now time.Time) (*models.Run, error) {
	run := &models.Run{
		ID:           uuid.NewString(),
		PartyID:      partyID,
		GateID:       gateID,
		BossID:       bossID,
		Synthetic:    synthetic,
		Participants: participants,
		StartedAt:    now,
		MintedRelics: []models.MintedRelic{},
		XPAwards:     []models.XPAward{},
		RankUps:      []models.RankUp{},
	}
	if err := tx.Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// CreateRun records a new run with zeroed contributions.
func (s *RunService) CreateRun(ctx context.Context, tx *gorm.DB, partyID, gateID, bossID string, participants []models.RunParticipant) (*models.Run, error) {
	if tx == nil {
		tx = s.DB
	}
	return createRun(tx.WithContext(ctx), partyID, gateID, bossID, participants, false, s.now())
}

func getRun(tx *gorm.DB, runID string) (*models.Run, error) {
	var run models.Run
	err := tx.Where("id = ?", runID).First(&run).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperrors.Newf(apperrors.CodeRunNotFound, "run %s not found", runID)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *RunService) GetResults(ctx context.Context, runID string) (*models.Run, error) {
	return getRun(s.DB.WithContext(ctx), runID)
}

func (s *RunService) storedResponse(ctx context.Context, runID, key string) (json.RawMessage, bool, error) {
	var entry models.OutboxEntry
	err := s.DB.WithContext(ctx).Where("run_id = ? AND idempotency_key = ?", runID, key).First(&entry).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return json.RawMessage(entry.Response), true, nil
}

// FinishRun ends a run: it records contributions, computes rewards, settles on-chain,
// updates profiles and inventory, closes the party and stores the response under
// idempotencyKey. A repeat call with the same key returns the stored bytes.
func (s *RunService) FinishRun(ctx context.Context, runID string, req FinishRequest, idempotencyKey string) (*FinishResponse, error) {
	if idempotencyKey != "" {
		stored, ok, err := s.storedResponse(ctx, runID, idempotencyKey)
		if err != nil {
			return nil, err
		}
		if ok {
			s.log.Info("[RUN] idempotent replay", zap.String("run", runID), zap.String("key", idempotencyKey))
			runsFinished.WithLabelValues("replayed").Inc()
			return &FinishResponse{Payload: stored, Replayed: true}, nil
		}
	}

	run, gate, err := s.recordOutcome(ctx, runID, req)
	if err != nil {
		if apperrors.Is(err, apperrors.CodeInvalidContributions) {
			runsFinished.WithLabelValues("invalid").Inc()
		}
		return nil, err
	}

	start := time.Now()
	res, err := s.settler.Settle(ctx, chain.SettleInput{
		RunID:        run.ID,
		GateID:       gate.ID,
		GateRank:     gate.Rank,
		BossID:       run.BossID,
		Participants: run.Participants,
		Relics:       run.MintedRelics,
		Awards:       run.XPAwards,
	})
	settlementDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		settlementFailures.Inc()
		runsFinished.WithLabelValues("chain_error").Inc()
		s.log.Error("[RUN] settlement failed", zap.String("run", run.ID), zap.Error(err))
		if dbErr := s.DB.WithContext(ctx).Model(&models.Run{}).Where("id = ?", run.ID).
			Update("settlement_error", err.Error()).Error; dbErr != nil {
			s.log.Error("[RUN] failed to record settlement error", zap.String("run", run.ID), zap.Error(dbErr))
		}
		return nil, apperrors.Wrap(err, apperrors.CodeChain, "chain settlement failed")
	}

	if err := s.applySettlement(ctx, run, res); err != nil {
		return nil, err
	}

	if !run.Synthetic && run.PartyID != "" {
		if err := s.parties.Close(ctx, run.PartyID, "run_finished"); err != nil {
			s.log.Error("[RUN] failed to close party", zap.String("party", run.PartyID), zap.Error(err))
		}
	}

	relics := run.MintedRelics
	if relics == nil {
		relics = []models.MintedRelic{}
	}
	payload, err := json.Marshal(FinishResult{TxHash: res.TxHash, Relics: relics})
	if err != nil {
		return nil, err
	}

	if idempotencyKey != "" {
		payload, err = s.storeResponse(ctx, run.ID, idempotencyKey, payload)
		if err != nil {
			return nil, err
		}
	}

	runsFinished.WithLabelValues("settled").Inc()
	s.log.Info("[RUN] finished", zap.String("run", run.ID), zap.String("tx", res.TxHash), zap.Int("relics", len(relics)))
	return &FinishResponse{Payload: payload}, nil
}

// recordOutcome validates contributions and persists the terminal run state.
func (s *RunService) recordOutcome(ctx context.Context, runID string, req FinishRequest) (*models.Run, *models.Gate, error) {
	var (
		run  *models.Run
		gate *models.Gate
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if run, err = getRun(tx.Clauses(clause.Locking{Strength: "UPDATE"}), runID); err != nil {
			return err
		}
		if run.Finished() {
			return apperrors.New(apperrors.CodeRunAlreadyFinished, "run already finished")
		}
		contributions, err := normalizeContributions(req.Contributions)
		if err != nil {
			return err
		}
		if len(contributions) != len(run.Participants) {
			return apperrors.Newf(apperrors.CodeInvalidContributions,
				"expected %d contributions, got %d", len(run.Participants), len(contributions))
		}
		if req.BossID != run.BossID {
			s.log.Warn("[RUN] boss id mismatch", zap.String("run", run.ID), zap.String("run_boss", run.BossID), zap.String("reported", req.BossID))
		}

		s.applyContributions(run, contributions)

		if gate, err = s.parties.gates.getGate(tx, run.GateID); err != nil {
			return err
		}

		wallets := make([]string, len(run.Participants))
		for i, p := range run.Participants {
			wallets[i] = p.Wallet
		}
		profiles, err := profilesByWallet(tx, wallets)
		if err != nil {
			return err
		}

		rewards := CalculateRewards(run, profiles, s.rng())
		now := s.now()
		run.EndedAt = &now
		run.XPAwards = rewards.XPAwards
		run.RankUps = rewards.RankUps
		run.MintedRelics = rewards.Relics

		if err := tx.Save(run).Error; err != nil {
			return err
		}

		records := make([]models.ContributionRecord, len(run.Participants))
		for i, p := range run.Participants {
			records[i] = models.ContributionRecord{
				ID:          uuid.NewString(),
				RunID:       run.ID,
				Wallet:      p.Wallet,
				GateID:      run.GateID,
				BossID:      run.BossID,
				Damage:      p.Damage,
				NormalKills: p.NormalKills,
				EndedAt:     now,
			}
		}
		return tx.Create(&records).Error
	})
	return run, gate, err
}

// normalizeContributions lowercases contribution wallets so checksummed addresses match
// stored participants.
func normalizeContributions(in []models.Contribution) ([]models.Contribution, error) {
	out := make([]models.Contribution, len(in))
	for i, c := range in {
		wallet, err := NormalizeWallet(c.Wallet)
		if err != nil {
			return nil, err
		}
		c.Wallet = wallet
		out[i] = c
	}
	return out, nil
}

// applyContributions copies reported numbers onto matching participants. Contributions
// for wallets outside the run are ignored.
func (s *RunService) applyContributions(run *models.Run, contributions []models.Contribution) {
	byWallet := make(map[string]models.Contribution, len(contributions))
	for _, c := range contributions {
		byWallet[c.Wallet] = c
	}

	participants := mapset.NewThreadUnsafeSet[string]()
	for i := range run.Participants {
		p := &run.Participants[i]
		participants.Add(p.Wallet)
		if c, ok := byWallet[p.Wallet]; ok {
			p.Damage = c.Damage
			p.NormalKills = c.NormalKills
		}
	}

	for wallet := range byWallet {
		if !participants.Contains(wallet) {
			s.log.Warn("[RUN] contribution for non-participant ignored", zap.String("run", run.ID), zap.String("wallet", wallet))
		}
	}
}

// applySettlement stores chain results on the run, then updates profiles and inventory.
func (s *RunService) applySettlement(ctx context.Context, run *models.Run, res *models.SettlementResult) error {
	now := s.now()
	txHash := res.TxHash
	run.TxHash = &txHash
	run.MintedRelics = res.Relics
	for i := range run.XPAwards {
		if id, ok := res.SbtTokenIDs[run.XPAwards[i].Wallet]; ok {
			sbt := id
			run.XPAwards[i].SbtTokenID = &sbt
		}
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(run).Select("tx_hash", "minted_relics", "xp_awards").Updates(run).Error; err != nil {
			return err
		}
		if err := s.profiles.ApplyAwards(tx, run.XPAwards, res.SbtTokenIDs, now); err != nil {
			return err
		}
		return s.inventory.AddMinted(tx, res.Relics)
	})
}

// storeResponse writes the outbox entry. If a concurrent call with the same key won,
// its stored bytes are returned instead.
func (s *RunService) storeResponse(ctx context.Context, runID, key string, payload []byte) ([]byte, error) {
	entry := models.OutboxEntry{
		ID:             uuid.NewString(),
		RunID:          runID,
		IdempotencyKey: key,
		Response:       string(payload),
	}
	err := s.DB.WithContext(ctx).Create(&entry).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		stored, ok, lookupErr := s.storedResponse(ctx, runID, key)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if ok {
			return stored, nil
		}
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// SimulateRun creates a synthetic solo run for wallet on gateID and finishes it with
// random contributions.
func (s *RunService) SimulateRun(ctx context.Context, wallet, gateID string) (*models.Run, *FinishResponse, error) {
	var run *models.Run
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		gate, err := s.parties.gates.getGate(tx, gateID)
		if err != nil {
			return err
		}
		prof, err := getProfile(tx, wallet)
		if err != nil {
			return err
		}
		participants := []models.RunParticipant{{
			Wallet:           wallet,
			DisplayName:      prof.DisplayName,
			AvatarID:         prof.AvatarID,
			EquippedRelicIDs: []string{},
		}}
		run, err = createRun(tx, "", gate.ID, gate.BossID, participants, true, s.now())
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	rng := s.rng()
	req := FinishRequest{
		BossID: run.BossID,
		Contributions: []models.Contribution{{
			Wallet:      wallet,
			Damage:      int64(500 + rng.IntN(4500)),
			NormalKills: int64(rng.IntN(30)),
		}},
	}
	resp, err := s.FinishRun(ctx, run.ID, req, "")
	if err != nil {
		return run, nil, err
	}
	return run, resp, nil
}
