package tokenizer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

const AudienceAccess = "session:access"
const AudienceRefresh = "session:refresh"

// JWTTokenizer implements the Tokenizer interface using JWT
type JWTTokenizer struct {
	signKey *ecdsa.PrivateKey
	issuer  string
}

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(signKey *ecdsa.PrivateKey, issuer string) ports.Tokenizer {
	return &JWTTokenizer{signKey: signKey, issuer: issuer}
}

func sessionClaims(session *core.Session) SessionClaims {
	return SessionClaims{
		Address:        session.Address,
		Chain:          string(session.Chain),
		Provider:       string(session.Provider),
		ProfilePending: session.ProfilePending,
	}
}

// SessionToAccessToken converts a Session to an access JWT token
func (j *JWTTokenizer) SessionToAccessToken(session *core.Session) (string, error) {
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   session.UserID,
			ID:        session.ID,
			ExpiresAt: jwt.NewNumericDate(session.AccessExpiry),
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceAccess},
		},
		SessionClaims: sessionClaims(session),
		RefreshID:     session.RefreshID,
	}

	return j.sign(claims, "access")
}

// SessionToRefreshToken converts a Session to a refresh JWT token
func (j *JWTTokenizer) SessionToRefreshToken(session *core.Session) (string, error) {
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   session.UserID,
			ID:        session.RefreshID, // Use RefreshID as the JWT ID for the refresh token
			ExpiresAt: jwt.NewNumericDate(session.RefreshExpiry),
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceRefresh},
		},
		SessionClaims: sessionClaims(session),
	}

	return j.sign(claims, "refresh")
}

func (j *JWTTokenizer) sign(claims jwt.Claims, kind string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)

	signedToken, err := token.SignedString(j.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", kind, err)
	}

	return signedToken, nil
}

func (j *JWTTokenizer) keyFunc(token *jwt.Token) (interface{}, error) {
	// Validate the signing method
	if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return &j.signKey.PublicKey, nil
}

func (j *JWTTokenizer) parserOptions(audience string) []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithAudience(audience),
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}
	return opts
}

// AccessTokenToSession parses an access token and returns the associated session
func (j *JWTTokenizer) AccessTokenToSession(tokenStr string) (*core.Session, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &AccessClaims{}, j.keyFunc, j.parserOptions(AudienceAccess)...)
	if err != nil {
		return nil, parseError(err)
	}

	// Validate token
	if !token.Valid {
		return nil, core.ErrInvalidToken
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims type")
	}

	session := &core.Session{
		ID:             claims.ID,
		UserID:         claims.Subject,
		Address:        claims.Address,
		Chain:          core.ChainID(claims.Chain),
		Provider:       core.ProviderID(claims.Provider),
		ProfilePending: claims.ProfilePending,
		IssuedAt:       claims.IssuedAt.Time,
		AccessExpiry:   claims.ExpiresAt.Time,
		RefreshID:      claims.RefreshID,
	}

	return session, nil
}

// RefreshTokenToSession parses a refresh token and returns the associated session
func (j *JWTTokenizer) RefreshTokenToSession(tokenStr string) (*core.Session, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &RefreshClaims{}, j.keyFunc, j.parserOptions(AudienceRefresh)...)
	if err != nil {
		return nil, parseError(err)
	}

	// Validate token
	if !token.Valid {
		return nil, core.ErrInvalidToken
	}

	claims, ok := token.Claims.(*RefreshClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims type")
	}

	// AccessExpiry stays zero, refresh tokens carry no access window
	session := &core.Session{
		UserID:         claims.Subject,
		Address:        claims.Address,
		Chain:          core.ChainID(claims.Chain),
		Provider:       core.ProviderID(claims.Provider),
		ProfilePending: claims.ProfilePending,
		IssuedAt:       claims.IssuedAt.Time,
		RefreshExpiry:  claims.ExpiresAt.Time,
		RefreshID:      claims.ID, // The JWT ID is the refresh token ID
	}

	return session, nil
}

func parseError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return fmt.Errorf("failed to parse token: %w", core.ErrTokenExpired)
	}
	return fmt.Errorf("failed to parse token: %w: %v", core.ErrInvalidToken, err)
}
