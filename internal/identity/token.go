package identity

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeSession = "session"
	tokenTypeState   = "oauth-state"

	stateTTL = 10 * time.Minute
)

// TokenClaims are the JWT claims for session handles and OAuth state.
type TokenClaims struct {
	jwt.RegisteredClaims
	Type     string `json:"type"` // "session" or "oauth-state"
	ClientID string `json:"cid,omitempty"`
	AuthTime int64  `json:"auth_time,omitempty"`
}

// TokenIssuer issues and verifies RS256 session handles.
type TokenIssuer struct {
	key    *rsa.PrivateKey
	pub    *rsa.PublicKey
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates a TokenIssuer.
//
//	issuerURL: the "iss" claim value; the server's public URL.
//	ttl: session handle lifetime (default: 14 days).
func NewTokenIssuer(key *rsa.PrivateKey, issuerURL string, ttl time.Duration) *TokenIssuer {
	if ttl == 0 {
		ttl = 14 * 24 * time.Hour
	}
	return &TokenIssuer{
		key:    key,
		pub:    &key.PublicKey,
		issuer: issuerURL,
		ttl:    ttl,
		now:    time.Now,
	}
}

// IssueSession signs a session handle for uid. authTime is when the user
// last authenticated with the provider.
func (t *TokenIssuer) IssueSession(uid string, authTime time.Time) (string, error) {
	now := t.now().UTC()
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			ID:        uuid.New().String(),
		},
		Type:     tokenTypeSession,
		AuthTime: authTime.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("sign session handle: %w", err)
	}
	return signed, nil
}

// VerifySession parses and validates a session handle.
func (t *TokenIssuer) VerifySession(tokenStr string) (*TokenClaims, error) {
	claims, err := t.parse(tokenStr)
	if err != nil {
		return nil, fmt.Errorf("verify session handle: %w", err)
	}
	if claims.Type != tokenTypeSession || claims.Subject == "" {
		return nil, fmt.Errorf("not a session handle")
	}
	return claims, nil
}

// IssueState creates a short-lived JWT used as the OAuth state parameter.
// The client id is embedded so the callback can only complete the sign-in
// it started.
func (t *TokenIssuer) IssueState(clientID string) (string, error) {
	now := t.now().UTC()
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   tokenTypeState,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
			ID:        uuid.New().String(),
		},
		Type:     tokenTypeState,
		ClientID: clientID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("sign oauth state: %w", err)
	}
	return signed, nil
}

// VerifyState validates an OAuth state JWT and returns the embedded client id.
func (t *TokenIssuer) VerifyState(tokenStr string) (clientID string, err error) {
	claims, err := t.parse(tokenStr)
	if err != nil {
		return "", fmt.Errorf("invalid oauth state: %w", err)
	}
	if claims.Type != tokenTypeState {
		return "", fmt.Errorf("not an oauth state token")
	}
	return claims.ClientID, nil
}

func (t *TokenIssuer) parse(tokenStr string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&TokenClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return t.pub, nil
		},
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
