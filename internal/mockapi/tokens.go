package mockapi

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	apierrors "github.com/jrsteele09/go-api-client/internal/errors"
)

// tokenIssuer mints HMAC-signed access tokens and opaque refresh tokens, and keeps enough
// state to revoke either kind on demand.
type tokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	nowFunc    func() time.Time

	lock          sync.Mutex
	activeAccess  map[string]struct{}     // jti of access tokens still accepted
	refreshTokens map[string]refreshEntry // refresh token to owner
}

type refreshEntry struct {
	UserID int
	Iat    time.Time
}

func newTokenIssuer(secret []byte, accessTTL, refreshTTL time.Duration, now func() time.Time) *tokenIssuer {
	return &tokenIssuer{
		secret:        secret,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		nowFunc:       now,
		activeAccess:  make(map[string]struct{}),
		refreshTokens: make(map[string]refreshEntry),
	}
}

func (ti *tokenIssuer) CreateAccessToken(userID int) (string, error) {
	now := ti.nowFunc()
	jti := uuid.New().String()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ti.accessTTL)),
		ID:        jti,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token with HMAC: %w", err)
	}

	ti.lock.Lock()
	ti.activeAccess[jti] = struct{}{}
	ti.lock.Unlock()
	return signed, nil
}

// VerifyAccessToken returns the user ID the token was issued to.
func (ti *tokenIssuer) VerifyAccessToken(token string) (int, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ti.secret, nil
	}, jwt.WithTimeFunc(ti.nowFunc), jwt.WithExpirationRequired())
	if err != nil {
		return 0, apierrors.Wrapf(apierrors.ErrInvalidToken, "%s", err)
	}

	ti.lock.Lock()
	_, active := ti.activeAccess[claims.ID]
	ti.lock.Unlock()
	if !active {
		return 0, apierrors.ErrTokenExpired
	}

	id, err := strconv.Atoi(claims.Subject)
	if err != nil {
		return 0, apierrors.Wrapf(apierrors.ErrInvalidToken, "subject %q", claims.Subject)
	}
	return id, nil
}

func (ti *tokenIssuer) CreateRefreshToken(userID int) (string, error) {
	tokenBytes := make([]byte, 32) // 256 bits
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	tokenStr := hex.EncodeToString(tokenBytes)

	ti.lock.Lock()
	ti.refreshTokens[tokenStr] = refreshEntry{UserID: userID, Iat: ti.nowFunc()}
	ti.lock.Unlock()
	return tokenStr, nil
}

// UseRefreshToken validates a refresh token. Refresh tokens are not rotated.
func (ti *tokenIssuer) UseRefreshToken(token string) (int, error) {
	ti.lock.Lock()
	defer ti.lock.Unlock()

	rt, ok := ti.refreshTokens[token]
	if !ok {
		return 0, apierrors.ErrInvalidRefreshToken
	}
	if ti.nowFunc().Sub(rt.Iat) > ti.refreshTTL {
		delete(ti.refreshTokens, token)
		return 0, apierrors.ErrInvalidRefreshToken
	}
	return rt.UserID, nil
}

// ExpireAccessTokens makes every issued access token fail verification.
func (ti *tokenIssuer) ExpireAccessTokens() {
	ti.lock.Lock()
	defer ti.lock.Unlock()
	ti.activeAccess = make(map[string]struct{})
}

func (ti *tokenIssuer) RevokeRefreshTokens() {
	ti.lock.Lock()
	defer ti.lock.Unlock()
	ti.refreshTokens = make(map[string]refreshEntry)
}
