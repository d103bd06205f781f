package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"gatecrawl-backend/chain"
	"gatecrawl-backend/config"
	"gatecrawl-backend/logger"
	"gatecrawl-backend/middleware"
	"gatecrawl-backend/models"
	"gatecrawl-backend/services"
	"gatecrawl-backend/utils"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testEnv struct {
	app     *fiber.App
	db      *gorm.DB
	auth    *services.AuthService
	parties *services.PartyService
	events  *services.MemoryBroker
}

type apiResponse struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`

	status int
	header http.Header
	raw    []byte
}

func newTestEnv(t *testing.T, production bool) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	cfg := &config.Config{AppEnv: "test", AllowedOrigins: []string{"http://localhost:3000"}}
	if production {
		cfg.AppEnv = config.EnvProduction
	}
	log := logger.Nop()

	settlement := chain.NewSettlement(nil, nil, nil, chain.Addresses{}, 31337, log)
	auth := services.NewAuthService(db, "test-secret", time.Hour, 5*time.Minute, log)
	gates := services.NewGateService(db, log)
	profiles := services.NewProfileService(db, log)
	inventory := services.NewInventoryService(db, settlement, log)
	events := services.NewMemoryBroker(log)
	parties := services.NewPartyService(db, events, gates, inventory, 30*time.Minute, log)
	runs := services.NewRunService(db, settlement, parties, profiles, inventory, log)

	require.NoError(t, gates.Seed(context.Background(), []models.Gate{
		{ID: "g1", Name: "Gate One", Rank: models.RankC, Capacity: 4, BossID: "boss-1", IsActive: true},
	}))

	app := NewApp(Deps{
		Config:       cfg,
		Log:          log,
		Auth:         auth,
		Gates:        gates,
		Parties:      parties,
		Runs:         runs,
		Profiles:     profiles,
		Inventory:    inventory,
		Leaderboards: services.NewLeaderboardService(db, log),
		Media:        services.NewMediaService(utils.NewDiskStore(t.TempDir(), "/uploads"), profiles, log),
		Chain:        settlement,
	})
	return &testEnv{app: app, db: db, auth: auth, parties: parties, events: events}
}

func (e *testEnv) token(t *testing.T, wallet string) string {
	t.Helper()
	s, err := e.auth.IssueSession(wallet)
	require.NoError(t, err)
	return s.Token
}

func (e *testEnv) send(t *testing.T, req *http.Request) *apiResponse {
	t.Helper()
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := &apiResponse{status: resp.StatusCode, header: resp.Header, raw: raw}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, out), string(raw))
	}
	return out
}

func (e *testEnv) call(t *testing.T, method, path, token string, body any, headers ...string) *apiResponse {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	return e.send(t, req)
}

func requireErr(t *testing.T, resp *apiResponse, status int, code string) {
	t.Helper()
	require.Equal(t, status, resp.status, string(resp.raw))
	assert.False(t, resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, code, resp.Error.Code)
}

func decode[T any](t *testing.T, resp *apiResponse) T {
	t.Helper()
	require.True(t, resp.OK, string(resp.raw))
	var v T
	require.NoError(t, json.Unmarshal(resp.Data, &v))
	return v
}

func wallet(i int) string { return fmt.Sprintf("0x%040x", i+1) }

func TestEnvelopeShape(t *testing.T) {
	env := newTestEnv(t, false)

	resp := env.call(t, "GET", "/healthz", "", nil)
	assert.Equal(t, 200, resp.status)
	assert.JSONEq(t, `{"ok":true,"data":{"status":"ok"}}`, string(resp.raw))

	resp = env.call(t, "GET", "/api/v1/gates/missing", "", nil)
	requireErr(t, resp, 404, "GATE_NOT_FOUND")
	assert.NotContains(t, string(resp.raw), `"data"`)

	resp = env.call(t, "GET", "/api/v1/nowhere", "", nil)
	assert.Equal(t, 404, resp.status)
	assert.False(t, resp.OK)

	gates := decode[[]models.Gate](t, env.call(t, "GET", "/api/v1/gates", "", nil))
	require.Len(t, gates, 1)
	assert.Equal(t, "g1", gates[0].ID)

	resp = env.call(t, "GET", "/api/v1/inventory", "", nil)
	requireErr(t, resp, 401, "UNAUTHORIZED")
}

func TestValidationRejectsBeforeMutation(t *testing.T) {
	env := newTestEnv(t, false)
	tok := env.token(t, wallet(0))

	resp := env.call(t, "POST", "/api/v1/parties", tok, map[string]any{})
	requireErr(t, resp, 400, "VALIDATION_ERROR")
	assert.Contains(t, string(resp.Error.Details), "gateId")

	resp = env.call(t, "POST", "/api/v1/inventory/equip", tok, map[string]any{"tokenIds": []string{"1", "2", "3", "4"}})
	requireErr(t, resp, 400, "VALIDATION_ERROR")

	var count int64
	require.NoError(t, env.db.Model(&models.Party{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPartyToFinishedRun(t *testing.T) {
	env := newTestEnv(t, false)
	leader, member := wallet(0), wallet(1)
	lt, mt := env.token(t, leader), env.token(t, member)

	for i, tok := range []string{lt, mt} {
		resp := env.call(t, "POST", "/api/v1/profiles", tok, map[string]any{"displayName": fmt.Sprintf("hunter%d", i)})
		require.Equal(t, 201, resp.status, string(resp.raw))
	}

	resp := env.call(t, "POST", "/api/v1/parties", lt, map[string]any{"gateId": "g1"})
	require.Equal(t, 201, resp.status, string(resp.raw))
	party := decode[models.Party](t, resp)

	base := "/api/v1/parties/" + party.ID
	decode[models.Party](t, env.call(t, "POST", base+"/join", mt, nil))

	requireErr(t, env.call(t, "POST", base+"/start", mt, nil), 403, "NOT_LEADER")
	requireErr(t, env.call(t, "POST", base+"/start", lt, nil), 409, "PARTY_NOT_READY")

	for _, tok := range []string{lt, mt} {
		decode[models.Party](t, env.call(t, "POST", base+"/ready", tok, map[string]any{"isReady": true}))
		decode[models.Party](t, env.call(t, "POST", base+"/lock", tok, map[string]any{"isLocked": true}))
	}

	started := decode[startResponse](t, env.call(t, "POST", base+"/start", lt, nil))
	require.NotEmpty(t, started.RunID)

	payload := decode[services.StartPayload](t, env.call(t, "GET", base+"/start-payload", mt, nil))
	assert.Equal(t, started.RunID, payload.RunID)
	assert.Len(t, payload.Participants, 2)

	finish := map[string]any{
		"bossId": "boss-1",
		"contributions": []map[string]any{
			{"wallet": leader, "damage": 1200, "normalKills": 4},
			{"wallet": member, "damage": 800, "normalKills": 2},
		},
	}
	runPath := "/api/v1/runs/" + started.RunID

	requireErr(t, env.call(t, "POST", runPath+"/finish", env.token(t, wallet(9)), finish), 403, "NOT_A_MEMBER")

	first := env.call(t, "POST", runPath+"/finish", lt, finish, "Idempotency-Key", "abc")
	require.Equal(t, 200, first.status, string(first.raw))
	result := decode[services.FinishResult](t, first)
	assert.True(t, strings.HasPrefix(result.TxHash, "mock_tx_"))

	replay := env.call(t, "POST", runPath+"/finish", lt, finish, "Idempotency-Key", "abc")
	assert.Equal(t, string(first.raw), string(replay.raw))
	assert.Equal(t, "true", replay.header.Get("Idempotent-Replayed"))

	requireErr(t, env.call(t, "POST", runPath+"/finish", lt, finish, "Idempotency-Key", "other"), 409, "RUN_ALREADY_FINISHED")

	run := decode[models.Run](t, env.call(t, "GET", runPath+"/results", mt, nil))
	assert.NotNil(t, run.EndedAt)
	require.NotNil(t, run.TxHash)
	assert.Equal(t, result.TxHash, *run.TxHash)

	closed := decode[models.Party](t, env.call(t, "GET", base, lt, nil))
	assert.Equal(t, models.PartyClosed, closed.State)

	board := decode[[]services.LeaderboardEntry](t, env.call(t, "GET", "/api/v1/leaderboards/boss/boss-1", "", nil))
	require.Len(t, board, 2)
	assert.Equal(t, leader, board[0].Wallet)
	assert.Equal(t, "hunter0", board[0].DisplayName)
}

func TestWalletLoginOverHTTP(t *testing.T) {
	env := newTestEnv(t, false)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()

	challenge := decode[services.NonceChallenge](t, env.call(t, "POST", "/api/v1/auth/nonce", "", map[string]any{"wallet": addr}))
	sig, err := crypto.Sign(accounts.TextHash([]byte(challenge.Message)), key)
	require.NoError(t, err)

	resp := env.call(t, "POST", "/api/v1/auth/verify", "", map[string]any{
		"wallet": addr, "nonce": challenge.Nonce, "signature": hexutil.Encode(sig),
	})
	require.Equal(t, 200, resp.status, string(resp.raw))

	var cookie string
	for _, c := range (&http.Response{Header: resp.header}).Cookies() {
		if c.Name == middleware.SessionCookie {
			cookie = c.Value
			assert.True(t, c.HttpOnly)
		}
	}
	require.NotEmpty(t, cookie)

	req := httptest.NewRequest("GET", "/api/v1/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: cookie})
	me := decode[meResponse](t, env.send(t, req))
	assert.Equal(t, strings.ToLower(addr), me.Wallet)
	assert.Nil(t, me.Profile)

	resp = env.call(t, "POST", "/api/v1/auth/verify", "", map[string]any{
		"wallet": addr, "nonce": challenge.Nonce, "signature": hexutil.Encode(sig),
	})
	requireErr(t, resp, 401, "NONCE_INVALID")
}

func TestDevRoutesAreGuarded(t *testing.T) {
	env := newTestEnv(t, false)

	requireErr(t, env.call(t, "POST", "/api/v1/dev/grant-relic", env.token(t, wallet(0)), nil), 403, "FORBIDDEN")

	devTok := env.token(t, middleware.DevWallet)
	resp := env.call(t, "POST", "/api/v1/dev/grant-relic", devTok, map[string]any{"relicType": "totem"})
	require.Equal(t, 201, resp.status, string(resp.raw))
	relic := decode[models.MintedRelic](t, resp)
	assert.Equal(t, "totem", relic.RelicType)

	requireErr(t, env.call(t, "POST", "/api/v1/dev/simulate-run", devTok, map[string]any{"gateId": "g1"}), 404, "PROFILE_NOT_FOUND")

	env.call(t, "POST", "/api/v1/profiles", devTok, map[string]any{"displayName": "devhunter"})
	sim := decode[simulateResponse](t, env.call(t, "POST", "/api/v1/dev/simulate-run", devTok, map[string]any{"gateId": "g1"}))
	assert.True(t, sim.Run.Synthetic)
	assert.NotNil(t, sim.Run.EndedAt)
	assert.Contains(t, string(sim.Result), "mock_tx_")

	prod := newTestEnv(t, true)
	requireErr(t, prod.call(t, "POST", "/api/v1/dev/grant-relic", prod.token(t, middleware.DevWallet), nil), 403, "FORBIDDEN")
}

func TestChainRoutesInMockMode(t *testing.T) {
	env := newTestEnv(t, false)

	st := decode[chain.Status](t, env.call(t, "GET", "/api/v1/chain/status", "", nil))
	assert.Equal(t, chain.ModeMock, st.Mode)
	assert.Equal(t, int64(31337), st.ChainID)

	requireErr(t, env.call(t, "GET", "/api/v1/chain/gas-price", "", nil), 502, "CHAIN_ERROR")
}

func TestProfileImageUpload(t *testing.T) {
	env := newTestEnv(t, false)
	tok := env.token(t, wallet(0))
	env.call(t, "POST", "/api/v1/profiles", tok, map[string]any{"displayName": "painter"})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="me.png"`)
	h.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/v1/media/profile-image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+tok)
	up := decode[services.Upload](t, env.send(t, req))
	assert.True(t, strings.HasPrefix(up.Key, "profile/"))

	prof := decode[models.Profile](t, env.call(t, "GET", "/api/v1/profiles/me", tok, nil))
	assert.Equal(t, up.URL, prof.ImageURL)

	req = httptest.NewRequest("POST", "/api/v1/media/relic-image", strings.NewReader(""))
	req.Header.Set("Authorization", "Bearer "+tok)
	requireErr(t, env.send(t, req), 400, "VALIDATION_ERROR")
}

func TestPartyStream(t *testing.T) {
	env := newTestEnv(t, false)
	leader := wallet(0)
	lt := env.token(t, leader)
	resp := env.call(t, "POST", "/api/v1/profiles", lt, map[string]any{"displayName": "streamer"})
	require.Equal(t, 201, resp.status, string(resp.raw))
	party := decode[models.Party](t, env.call(t, "POST", "/api/v1/parties", lt, map[string]any{"gateId": "g1"}))

	streamPath := "/api/v1/parties/" + party.ID + "/stream?token="
	requireErr(t, env.call(t, "GET", streamPath+env.token(t, wallet(5)), "", nil), 403, "NOT_A_MEMBER")
	requireErr(t, env.call(t, "GET", streamPath, "", nil), 401, "UNAUTHORIZED")

	type streamResult struct {
		resp *http.Response
		err  error
	}
	done := make(chan streamResult, 1)
	go func() {
		resp, err := env.app.Test(httptest.NewRequest("GET", streamPath+lt, nil), -1)
		done <- streamResult{resp, err}
	}()

	// the handler subscribes asynchronously, so keep publishing until the stream ends
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	timeout := time.After(5 * time.Second)
	var res streamResult
wait:
	for {
		select {
		case res = <-done:
			break wait
		case <-ticker.C:
			env.events.Publish(context.Background(), models.PartyEvent{
				Type: models.EventClosed, PartyID: party.ID, Data: map[string]any{"reason": "test"}, At: time.Now(),
			})
		case <-timeout:
			t.Fatal("stream did not end after closed event")
		}
	}

	require.NoError(t, res.err)
	assert.Equal(t, 200, res.resp.StatusCode)
	assert.True(t, strings.HasPrefix(res.resp.Header.Get("Content-Type"), "text/event-stream"))
	body, err := io.ReadAll(res.resp.Body)
	require.NoError(t, err)

	frames := string(body)
	require.True(t, strings.HasPrefix(frames, "event: snapshot\ndata: "), frames)
	snapshotData := strings.TrimPrefix(strings.SplitN(frames, "\n\n", 2)[0], "event: snapshot\ndata: ")
	var snapshot models.Party
	require.NoError(t, json.Unmarshal([]byte(snapshotData), &snapshot))
	assert.Equal(t, party.ID, snapshot.ID)
	require.Len(t, snapshot.Members, 1)
	assert.Equal(t, leader, snapshot.Members[0].Wallet)

	assert.Contains(t, frames, "event: closed\ndata: ")
	assert.True(t, strings.HasSuffix(frames, "\n\n"))
	assert.Equal(t, 1, strings.Count(frames, "event: closed"))

	require.NoError(t, env.parties.Close(context.Background(), party.ID, "test"))
	requireErr(t, env.call(t, "GET", streamPath+lt, "", nil), 409, "PARTY_CLOSED")
}
