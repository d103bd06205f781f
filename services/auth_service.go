package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gatecrawl-backend/apperrors"
	"gatecrawl-backend/models"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const sessionIssuer = "gatecrawl"

type AuthService struct {
	DB         *gorm.DB
	secret     []byte
	sessionTTL time.Duration
	nonceTTL   time.Duration
	log        *zap.Logger
	now        func() time.Time
}

func NewAuthService(db *gorm.DB, secret string, sessionTTL, nonceTTL time.Duration, log *zap.Logger) *AuthService {
	return &AuthService{
		DB:         db,
		secret:     []byte(secret),
		sessionTTL: sessionTTL,
		nonceTTL:   nonceTTL,
		log:        log,
		now:        time.Now,
	}
}

type NonceChallenge struct {
	Nonce     string    `json:"nonce"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Session struct {
	Token     string    `json:"-"`
	Wallet    string    `json:"wallet"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// LoginMessage is the exact text a wallet signs for a nonce.
func LoginMessage(n *models.AuthNonce) string {
	return fmt.Sprintf(
		"GateCrawl wants you to sign in with your wallet.\n\nWallet: %s\nNonce: %s\nIssued At: %s\nExpiration Time: %s",
		n.Wallet, n.Nonce,
		n.IssuedAt.UTC().Format(time.RFC3339),
		n.ExpiresAt.UTC().Format(time.RFC3339),
	)
}

func (s *AuthService) IssueNonce(ctx context.Context, wallet string) (*NonceChallenge, error) {
	now := s.now().UTC().Truncate(time.Second)
	n := models.AuthNonce{
		Nonce:     uuid.NewString(),
		Wallet:    wallet,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.nonceTTL),
	}
	if err := s.DB.WithContext(ctx).Create(&n).Error; err != nil {
		return nil, err
	}
	return &NonceChallenge{Nonce: n.Nonce, Message: LoginMessage(&n), ExpiresAt: n.ExpiresAt}, nil
}

// recoverSigner returns the lowercase address that produced an EIP-191 personal signature.
func recoverSigner(message, signature string) (string, error) {
	sig, err := hexutil.Decode(strings.TrimSpace(signature))
	if err != nil || len(sig) != crypto.SignatureLength {
		return "", apperrors.New(apperrors.CodeInvalidSignature, "malformed signature")
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeInvalidSignature, "signature recovery failed")
	}
	return strings.ToLower(crypto.PubkeyToAddress(*pub).Hex()), nil
}

// Verify checks the signature over the nonce's login message, consumes the nonce and
// issues a session for wallet.
func (s *AuthService) Verify(ctx context.Context, wallet, nonce, signature string) (*Session, error) {
	now := s.now()

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n models.AuthNonce
		err := tx.Where("nonce = ? AND wallet = ?", nonce, wallet).First(&n).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.New(apperrors.CodeNonceInvalid, "unknown nonce")
		}
		if err != nil {
			return err
		}
		if n.UsedAt != nil || !now.Before(n.ExpiresAt) {
			return apperrors.New(apperrors.CodeNonceInvalid, "nonce expired or already used")
		}

		signer, err := recoverSigner(LoginMessage(&n), signature)
		if err != nil {
			return err
		}
		if signer != wallet {
			s.log.Warn("🚫 [AUTH] signer mismatch", zap.String("wallet", wallet), zap.String("signer", signer))
			return apperrors.New(apperrors.CodeInvalidSignature, "signature does not match wallet")
		}

		res := tx.Model(&models.AuthNonce{}).
			Where("nonce = ? AND used_at IS NULL", n.Nonce).
			Update("used_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.New(apperrors.CodeNonceInvalid, "nonce already used")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("✅ [AUTH] wallet signed in", zap.String("wallet", wallet))
	return s.IssueSession(wallet)
}

func (s *AuthService) IssueSession(wallet string) (*Session, error) {
	now := s.now()
	expires := now.Add(s.sessionTTL)
	claims := jwt.RegisteredClaims{
		Subject:   wallet,
		Issuer:    sessionIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, Wallet: wallet, ExpiresAt: expires}, nil
}

// ParseSession validates a session token and returns its wallet.
func (s *AuthService) ParseSession(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeUnauthorized, "invalid session")
	}
	if claims.Subject == "" {
		return "", apperrors.New(apperrors.CodeUnauthorized, "invalid session")
	}
	return claims.Subject, nil
}

// PurgeNonces deletes challenges that expired before cutoff.
func (s *AuthService) PurgeNonces(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).Where("expires_at < ?", cutoff).Delete(&models.AuthNonce{})
	return res.RowsAffected, res.Error
}
