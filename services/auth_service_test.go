package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"gatecrawl-backend/apperrors"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAuth(t *testing.T) *AuthService {
	t.Helper()
	return NewAuthService(newTestDB(t), "test-secret", time.Hour, 5*time.Minute, zap.NewNop())
}

func signPersonal(t *testing.T, message string) (wallet, signature string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27 // wallets return v as 27/28

	return strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex()), hexutil.Encode(sig)
}

func TestWalletLogin(t *testing.T) {
	ctx := context.Background()
	auth := newTestAuth(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	wallet := strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())

	challenge, err := auth.IssueNonce(ctx, wallet)
	require.NoError(t, err)
	assert.Contains(t, challenge.Message, challenge.Nonce)
	assert.Contains(t, challenge.Message, wallet)

	sig, err := crypto.Sign(accounts.TextHash([]byte(challenge.Message)), key)
	require.NoError(t, err)

	session, err := auth.Verify(ctx, wallet, challenge.Nonce, hexutil.Encode(sig))
	require.NoError(t, err)
	assert.Equal(t, wallet, session.Wallet)

	got, err := auth.ParseSession(session.Token)
	require.NoError(t, err)
	assert.Equal(t, wallet, got)

	// nonces are single use
	_, err = auth.Verify(ctx, wallet, challenge.Nonce, hexutil.Encode(sig))
	requireCode(t, err, apperrors.CodeNonceInvalid)
}

func TestWalletLoginRejectsOtherKey(t *testing.T) {
	ctx := context.Background()
	auth := newTestAuth(t)
	wallet := walletN(0)

	challenge, err := auth.IssueNonce(ctx, wallet)
	require.NoError(t, err)

	signer, sig := signPersonal(t, challenge.Message)
	require.NotEqual(t, wallet, signer)

	_, err = auth.Verify(ctx, wallet, challenge.Nonce, sig)
	requireCode(t, err, apperrors.CodeInvalidSignature)

	_, err = auth.Verify(ctx, wallet, challenge.Nonce, "0xdeadbeef")
	requireCode(t, err, apperrors.CodeInvalidSignature)
}

func TestVerifyAcceptsLegacyRecoveryID(t *testing.T) {
	ctx := context.Background()
	auth := newTestAuth(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())

	challenge, err := auth.IssueNonce(ctx, addr)
	require.NoError(t, err)
	sig, err := crypto.Sign(accounts.TextHash([]byte(challenge.Message)), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27

	_, err = auth.Verify(ctx, addr, challenge.Nonce, hexutil.Encode(sig))
	require.NoError(t, err)
}

func TestVerifyRejectsExpiredNonce(t *testing.T) {
	ctx := context.Background()
	auth := newTestAuth(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	wallet := strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())

	challenge, err := auth.IssueNonce(ctx, wallet)
	require.NoError(t, err)
	sig, err := crypto.Sign(accounts.TextHash([]byte(challenge.Message)), key)
	require.NoError(t, err)

	later := time.Now().Add(10 * time.Minute)
	auth.now = func() time.Time { return later }
	_, err = auth.Verify(ctx, wallet, challenge.Nonce, hexutil.Encode(sig))
	requireCode(t, err, apperrors.CodeNonceInvalid)

	_, err = auth.Verify(ctx, wallet, "missing", hexutil.Encode(sig))
	requireCode(t, err, apperrors.CodeNonceInvalid)

	purged, err := auth.PurgeNonces(ctx, later.UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}

func TestParseSessionRejectsBadTokens(t *testing.T) {
	auth := newTestAuth(t)

	session, err := auth.IssueSession(walletN(0))
	require.NoError(t, err)

	other := NewAuthService(auth.DB, "other-secret", time.Hour, time.Minute, zap.NewNop())
	_, err = other.ParseSession(session.Token)
	requireCode(t, err, apperrors.CodeUnauthorized)

	auth.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = auth.ParseSession(session.Token)
	requireCode(t, err, apperrors.CodeUnauthorized)

	_, err = auth.ParseSession("garbage")
	requireCode(t, err, apperrors.CodeUnauthorized)
}
