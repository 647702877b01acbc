package security

import (
	"fmt"
	"time"

	"recruit_proctor/internal/common"

	"github.com/golang-jwt/jwt/v5"
)

const pairingSubject = "mobile-pairing"

// PairingClaims binds a phone to one exam attempt. SessionID carries the
// assignment ID the tracker keys on.
type PairingClaims struct {
	ExamID    string `json:"examId"`
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId,omitempty"`
	jwt.RegisteredClaims
}

// PairingTokens issues and verifies short-lived pairing credentials. Tokens are
// not single-use: the same token is presented for pairing, heartbeat and
// disconnect until it expires. There is no revocation list.
type PairingTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewPairingTokens(secret []byte, ttl time.Duration, now func() time.Time) *PairingTokens {
	if now == nil {
		now = time.Now
	}
	return &PairingTokens{secret: secret, ttl: ttl, now: now}
}

func (p *PairingTokens) TTL() time.Duration { return p.ttl }

// Issue signs claims with a fixed validity window and returns the token and
// its expiry.
func (p *PairingTokens) Issue(examID, userID, sessionID string) (string, time.Time, error) {
	if examID == "" || userID == "" {
		return "", time.Time{}, fmt.Errorf("examId and userId are required: %w", common.ErrValidation)
	}
	issuedAt := p.now()
	expiresAt := issuedAt.Add(p.ttl)
	claims := PairingClaims{
		ExamID:    examID,
		UserID:    userID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   pairingSubject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign pairing token: %w", err)
	}
	return token, claims.ExpiresAt.Time, nil
}

// Verify has no side effects. Malformed, tampered, expired and wrongly scoped
// tokens all yield common.ErrPairingLinkExpired.
func (p *PairingTokens) Verify(tokenString string) (*PairingClaims, error) {
	claims := &PairingClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) { return p.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
		jwt.WithExpirationRequired(),
		jwt.WithSubject(pairingSubject),
	)
	if err != nil || !token.Valid {
		return nil, common.ErrPairingLinkExpired
	}
	if claims.ExamID == "" || claims.UserID == "" {
		return nil, common.ErrPairingLinkExpired
	}
	return claims, nil
}
