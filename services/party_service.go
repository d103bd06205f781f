package services

import (
	"context"
	"time"

	"gatecrawl-backend/apperrors"
	"gatecrawl-backend/models"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PartyService struct {
	DB        *gorm.DB
	events    PartyEvents
	gates     *GateService
	inventory *InventoryService
	ttl       time.Duration
	log       *zap.Logger
	now       func() time.Time
}

func NewPartyService(db *gorm.DB, events PartyEvents, gates *GateService, inventory *InventoryService, ttl time.Duration, log *zap.Logger) *PartyService {
	return &PartyService{
		DB:        db,
		events:    events,
		gates:     gates,
		inventory: inventory,
		ttl:       ttl,
		log:       log,
		now:       time.Now,
	}
}

// MemberPatch carries optional member state changes; nil fields are left alone.
type MemberPatch struct {
	IsReady          *bool     `json:"isReady"`
	IsLocked         *bool     `json:"isLocked"`
	EquippedRelicIDs *[]string `json:"equippedRelicIds"`
}

// StartPayload is what each member's client needs to load into a run.
type StartPayload struct {
	RunID        string                  `json:"runId"`
	PartyID      string                  `json:"partyId"`
	GateID       string                  `json:"gateId"`
	GateRank     models.Rank             `json:"gateRank"`
	BossID       string                  `json:"bossId"`
	Participants []models.RunParticipant `json:"participants"`
}

func orderedMembers(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// lockParty loads a party with its members, row-locked on databases that support it.
func lockParty(tx *gorm.DB, partyID string) (*models.Party, error) {
	var party models.Party
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Members", orderedMembers).
		Where("id = ?", partyID).
		First(&party).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperrors.Newf(apperrors.CodePartyNotFound, "party %s not found", partyID)
	}
	if err != nil {
		return nil, err
	}
	return &party, nil
}

// ensureNotInParty fails when wallet already belongs to an open party other than exceptID.
func ensureNotInParty(tx *gorm.DB, wallet, exceptID string) error {
	var count int64
	q := tx.Model(&models.PartyMember{}).
		Joins("JOIN parties ON parties.id = party_members.party_id").
		Where("party_members.wallet = ? AND parties.state <> ?", wallet, models.PartyClosed)
	if exceptID != "" {
		q = q.Where("parties.id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return apperrors.New(apperrors.CodeAlreadyInParty, "wallet is already in an open party")
	}
	return nil
}

func (s *PartyService) event(t models.PartyEventType, partyID, wallet string, data map[string]any) models.PartyEvent {
	return models.PartyEvent{Type: t, PartyID: partyID, Wallet: wallet, Data: data, At: s.now()}
}

func (s *PartyService) publish(ctx context.Context, evs []models.PartyEvent) {
	for _, ev := range evs {
		s.events.Publish(ctx, ev)
	}
}

func (s *PartyService) Get(ctx context.Context, partyID string) (*models.Party, error) {
	var party models.Party
	err := s.DB.WithContext(ctx).Preload("Members", orderedMembers).Where("id = ?", partyID).First(&party).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperrors.Newf(apperrors.CodePartyNotFound, "party %s not found", partyID)
	}
	if err != nil {
		return nil, err
	}
	return &party, nil
}

// Create opens a waiting party on gateID led by wallet.
func (s *PartyService) Create(ctx context.Context, wallet, gateID string) (*models.Party, error) {
	var party models.Party
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		gate, err := s.gates.getGate(tx, gateID)
		if err != nil {
			return err
		}
		if !gate.IsActive {
			return apperrors.Newf(apperrors.CodeGateInactive, "gate %s is not active", gateID)
		}
		if gate.Occupied() >= gate.Capacity {
			return apperrors.Newf(apperrors.CodeGateFull, "gate %s is full", gateID)
		}

		prof, err := getProfile(tx, wallet)
		if err != nil {
			return err
		}
		if err := ensureNotInParty(tx, wallet, ""); err != nil {
			return err
		}

		now := s.now()
		partyID := uuid.NewString()
		party = models.Party{
			ID:        partyID,
			GateID:    gate.ID,
			Leader:    wallet,
			Capacity:  gate.Capacity,
			State:     models.PartyWaiting,
			ExpiresAt: now.Add(s.ttl),
			Members: []models.PartyMember{{
				ID:               uuid.NewString(),
				PartyID:          partyID,
				Wallet:           wallet,
				DisplayName:      prof.DisplayName,
				AvatarID:         prof.AvatarID,
				EquippedRelicIDs: []string{},
				Position:         0,
				JoinedAt:         now,
			}},
		}
		if err := tx.Create(&party).Error; err != nil {
			return err
		}
		return s.gates.addOccupancy(tx, gate.ID, party.ID, 1, gate.Capacity)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("[PARTY] created", zap.String("party", party.ID), zap.String("gate", gateID), zap.String("leader", wallet))
	s.publish(ctx, []models.PartyEvent{s.event(models.EventMemberJoined, party.ID, wallet, nil)})
	return &party, nil
}

// Join adds wallet to a waiting party. Joining a party you are already in is a no-op.
func (s *PartyService) Join(ctx context.Context, wallet, partyID string) (*models.Party, error) {
	var (
		party  *models.Party
		joined bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if party, err = lockParty(tx, partyID); err != nil {
			return err
		}
		if party.Member(wallet) != nil {
			return nil
		}
		if party.State != models.PartyWaiting {
			return apperrors.New(apperrors.CodePartyNotWaiting, "party is not accepting members")
		}
		if len(party.Members) >= party.Capacity {
			return apperrors.New(apperrors.CodePartyFull, "party is full")
		}

		prof, err := getProfile(tx, wallet)
		if err != nil {
			return err
		}
		if err := ensureNotInParty(tx, wallet, party.ID); err != nil {
			return err
		}

		position := 0
		if n := len(party.Members); n > 0 {
			position = party.Members[n-1].Position + 1
		}
		member := models.PartyMember{
			ID:               uuid.NewString(),
			PartyID:          party.ID,
			Wallet:           wallet,
			DisplayName:      prof.DisplayName,
			AvatarID:         prof.AvatarID,
			EquippedRelicIDs: []string{},
			Position:         position,
			JoinedAt:         s.now(),
		}
		if err := tx.Create(&member).Error; err != nil {
			return err
		}
		party.Members = append(party.Members, member)
		joined = true

		return s.gates.setOccupancy(tx, party.GateID, party.ID, len(party.Members))
	})
	if err != nil {
		return nil, err
	}

	if joined {
		s.log.Info("[PARTY] member joined", zap.String("party", party.ID), zap.String("wallet", wallet))
		s.publish(ctx, []models.PartyEvent{s.event(models.EventMemberJoined, party.ID, wallet, nil)})
	}
	return party, nil
}

// Leave removes wallet from the party, handing leadership to the next member or
// closing the party when it empties.
func (s *PartyService) Leave(ctx context.Context, wallet, partyID string) (*models.Party, error) {
	var (
		party *models.Party
		evs   []models.PartyEvent
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if party, err = lockParty(tx, partyID); err != nil {
			return err
		}
		if party.Member(wallet) == nil {
			return apperrors.New(apperrors.CodeNotAMember, "not a member of this party")
		}
		if party.State == models.PartyClosed {
			return apperrors.New(apperrors.CodePartyClosed, "party is closed")
		}

		if err := tx.Where("party_id = ? AND wallet = ?", party.ID, wallet).Delete(&models.PartyMember{}).Error; err != nil {
			return err
		}
		remaining := make([]models.PartyMember, 0, len(party.Members))
		for _, m := range party.Members {
			if m.Wallet != wallet {
				remaining = append(remaining, m)
			}
		}
		party.Members = remaining
		evs = append(evs, s.event(models.EventMemberLeft, party.ID, wallet, nil))

		if len(remaining) == 0 {
			if err := s.closeTx(tx, party); err != nil {
				return err
			}
			evs = append(evs, s.event(models.EventClosed, party.ID, "", map[string]any{"reason": "empty"}))
			return nil
		}

		if party.Leader == wallet {
			party.Leader = remaining[0].Wallet
			if err := tx.Model(&models.Party{}).Where("id = ?", party.ID).Update("leader", party.Leader).Error; err != nil {
				return err
			}
			evs = append(evs, s.event(models.EventLeaderChanged, party.ID, party.Leader, nil))
		}
		return s.gates.setOccupancy(tx, party.GateID, party.ID, len(remaining))
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("[PARTY] member left", zap.String("party", party.ID), zap.String("wallet", wallet), zap.String("state", string(party.State)))
	s.publish(ctx, evs)
	return party, nil
}

// UpdateMemberState applies ready, lock and equipment changes for a member.
func (s *PartyService) UpdateMemberState(ctx context.Context, wallet, partyID string, patch MemberPatch) (*models.Party, error) {
	var relicIDs []string
	if patch.EquippedRelicIDs != nil {
		relicIDs = dedupeOrdered(*patch.EquippedRelicIDs)
		if len(relicIDs) > models.MaxEquippedRelics {
			return nil, apperrors.Newf(apperrors.CodeValidation, "at most %d relics can be equipped", models.MaxEquippedRelics)
		}
	}

	var (
		party *models.Party
		evs   []models.PartyEvent
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if party, err = lockParty(tx, partyID); err != nil {
			return err
		}
		member := party.Member(wallet)
		if member == nil {
			return apperrors.New(apperrors.CodeNotAMember, "not a member of this party")
		}
		if party.State == models.PartyClosed {
			return apperrors.New(apperrors.CodePartyClosed, "party is closed")
		}
		if patch.EquippedRelicIDs != nil {
			if err := s.inventory.checkOwned(tx, wallet, relicIDs); err != nil {
				return err
			}
			member.EquippedRelicIDs = relicIDs
		}
		if patch.IsReady != nil && *patch.IsReady != member.IsReady {
			member.IsReady = *patch.IsReady
			evs = append(evs, s.event(models.EventReadyChanged, party.ID, wallet, map[string]any{"isReady": member.IsReady}))
		}
		if patch.IsLocked != nil && *patch.IsLocked != member.IsLocked {
			member.IsLocked = *patch.IsLocked
			evs = append(evs, s.event(models.EventLockedChanged, party.ID, wallet, map[string]any{"isLocked": member.IsLocked}))
		}

		return tx.Model(member).
			Select("is_ready", "is_locked", "equipped_relic_ids").
			Updates(member).Error
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, evs)
	return party, nil
}

func dedupeOrdered(ids []string) []string {
	seen := mapset.NewThreadUnsafeSet[string]()
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen.Add(id) {
			out = append(out, id)
		}
	}
	return out
}

// Start moves a fully ready and locked party to starting and creates its run.
func (s *PartyService) Start(ctx context.Context, wallet, partyID string) (*models.Party, *models.Run, error) {
	var (
		party *models.Party
		run   *models.Run
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if party, err = lockParty(tx, partyID); err != nil {
			return err
		}
		if party.Leader != wallet {
			return apperrors.New(apperrors.CodeNotLeader, "only the party leader can start")
		}
		if party.State != models.PartyWaiting {
			return apperrors.New(apperrors.CodePartyNotWaiting, "party is not waiting")
		}
		if !party.AllReadyAndLocked() {
			return apperrors.New(apperrors.CodePartyNotReady, "every member must be ready and locked")
		}

		gate, err := s.gates.getGate(tx, party.GateID)
		if err != nil {
			return err
		}
		if run, err = createRun(tx, party.ID, gate.ID, gate.BossID, participantsFromMembers(party.Members), false, s.now()); err != nil {
			return err
		}

		party.State = models.PartyStarting
		party.RunID = &run.ID
		return tx.Model(&models.Party{}).Where("id = ?", party.ID).
			Updates(map[string]any{"state": party.State, "run_id": run.ID}).Error
	})
	if err != nil {
		return nil, nil, err
	}

	s.log.Info("[PARTY] started", zap.String("party", party.ID), zap.String("run", run.ID))
	s.publish(ctx, []models.PartyEvent{s.event(models.EventStarted, party.ID, wallet, map[string]any{"runId": run.ID})})
	return party, run, nil
}

func participantsFromMembers(members []models.PartyMember) []models.RunParticipant {
	out := make([]models.RunParticipant, len(members))
	for i, m := range members {
		relics := m.EquippedRelicIDs
		if relics == nil {
			relics = []string{}
		}
		out[i] = models.RunParticipant{
			Wallet:           m.Wallet,
			DisplayName:      m.DisplayName,
			AvatarID:         m.AvatarID,
			EquippedRelicIDs: relics,
		}
	}
	return out
}

// StartPayload returns the run details for a member. The first request after start
// moves the party from starting to started.
func (s *PartyService) StartPayload(ctx context.Context, wallet, partyID string) (*StartPayload, error) {
	var payload StartPayload
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		party, err := lockParty(tx, partyID)
		if err != nil {
			return err
		}
		if party.Member(wallet) == nil {
			return apperrors.New(apperrors.CodeNotAMember, "not a member of this party")
		}
		if party.RunID == nil {
			return apperrors.New(apperrors.CodePartyNotReady, "party has not started")
		}

		run, err := getRun(tx, *party.RunID)
		if err != nil {
			return err
		}
		gate, err := s.gates.getGate(tx, party.GateID)
		if err != nil {
			return err
		}

		if party.State == models.PartyStarting {
			if err := tx.Model(&models.Party{}).Where("id = ?", party.ID).Update("state", models.PartyStarted).Error; err != nil {
				return err
			}
		}

		payload = StartPayload{
			RunID:        run.ID,
			PartyID:      party.ID,
			GateID:       gate.ID,
			GateRank:     gate.Rank,
			BossID:       run.BossID,
			Participants: run.Participants,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &payload, nil
}

func (s *PartyService) closeTx(tx *gorm.DB, party *models.Party) error {
	now := s.now()
	party.State = models.PartyClosed
	party.ClosedAt = &now
	if err := tx.Model(&models.Party{}).Where("id = ?", party.ID).
		Updates(map[string]any{"state": models.PartyClosed, "closed_at": now}).Error; err != nil {
		return err
	}
	return s.gates.removeOccupancy(tx, party.GateID, party.ID)
}

// Close moves the party to closed from any state. Closing a closed party is a no-op.
func (s *PartyService) Close(ctx context.Context, partyID, reason string) error {
	_, err := s.closeWith(ctx, partyID, reason, false)
	return err
}

func (s *PartyService) closeWith(ctx context.Context, partyID, reason string, onlyWaiting bool) (bool, error) {
	closed := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		party, err := lockParty(tx, partyID)
		if err != nil {
			return err
		}
		if party.State == models.PartyClosed {
			return nil
		}
		if onlyWaiting && party.State != models.PartyWaiting {
			return nil
		}
		closed = true
		return s.closeTx(tx, party)
	})
	if err != nil {
		return false, err
	}
	if closed {
		s.log.Info("[PARTY] closed", zap.String("party", partyID), zap.String("reason", reason))
		s.publish(ctx, []models.PartyEvent{s.event(models.EventClosed, partyID, "", map[string]any{"reason": reason})})
	}
	return closed, nil
}

// ExpireStale closes waiting parties whose TTL has passed and returns how many.
func (s *PartyService) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	var ids []string
	if err := s.DB.WithContext(ctx).Model(&models.Party{}).
		Where("state = ? AND expires_at < ?", models.PartyWaiting, now).
		Pluck("id", &ids).Error; err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		closed, err := s.closeWith(ctx, id, "expired", true)
		if err != nil {
			s.log.Error("[PARTY] expire failed", zap.String("party", id), zap.Error(err))
			continue
		}
		if closed {
			expired++
			partiesExpired.Inc()
		}
	}
	return expired, nil
}

// Subscribe streams live events for a party.
func (s *PartyService) Subscribe(ctx context.Context, partyID string) (<-chan models.PartyEvent, func()) {
	return s.events.Subscribe(ctx, partyID)
}
