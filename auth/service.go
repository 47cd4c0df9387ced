// Package auth is responsible for credentials and request identity.
// It hashes and verifies passwords, issues and verifies signed identity tokens, guards
// protected routes, and converts errors into HTTP responses at the boundary.
// Nothing here touches persistence: user records live behind the users workflow.
package auth

import (
	"errors"
	"fmt"
	"time"

	// Third-party library for JWT handling. `jwt/v5` indicates version 5.
	"github.com/golang-jwt/jwt/v5"
	// Library for password hashing using bcrypt.
	"golang.org/x/crypto/bcrypt"

	"github.com/user/quill-go/apperror"
	"github.com/user/quill-go/config"
)

// tokenIssuer is written into every token's `iss` claim.
const tokenIssuer = "quill"

// Identity is the verified {userId, name} pair carried by a token.
type Identity struct {
	UserID string `json:"id"`
	Name   string `json:"name"`
}

// Claims embeds jwt.RegisteredClaims and adds the identity fields.
// The payload keys (`id`, `name`) match what existing clients already decode.
type Claims struct {
	UserID string `json:"id"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

// CredentialService hashes passwords and signs/verifies identity tokens.
// It is stateless apart from its configuration and safe for concurrent use.
type CredentialService struct {
	secret        []byte
	tokenDuration time.Duration
	bcryptCost    int
	now           func() time.Time
}

// NewCredentialService creates a CredentialService from the auth configuration.
func NewCredentialService(cfg *config.AuthConfig) *CredentialService {
	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	duration := cfg.TokenDuration
	if duration <= 0 {
		duration = 24 * time.Hour
	}
	return &CredentialService{
		secret:        []byte(cfg.JWTSecret),
		tokenDuration: duration,
		bcryptCost:    cost,
		now:           time.Now,
	}
}

// HashPassword produces a salted bcrypt hash. The salt is embedded in the hash itself.
func (s *CredentialService) HashPassword(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), s.bcryptCost)
	if err != nil {
		return "", apperror.NewCryptoError("Could not secure password.", fmt.Errorf("failed to hash password: %w", err))
	}
	return string(hashed), nil
}

// VerifyPassword reports whether plain matches hash.
// A mismatch is (false, nil); an error is returned only when the stored hash is malformed.
func (s *CredentialService) VerifyPassword(plain, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, apperror.NewCryptoError("Could not verify password.", fmt.Errorf("failed to compare password hash: %w", err))
}

// IssueToken signs an HS256 token carrying the identity, expiring tokenDuration after issuance.
func (s *CredentialService) IssueToken(userID, name string) (string, error) {
	now := s.now()
	claims := &Claims{
		UserID: userID,
		Name:   name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   userID,
		},
	}

	// Create a new token object with the specified signing method (HS256) and claims.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", apperror.NewCryptoError("Could not issue token.", fmt.Errorf("failed to sign token: %w", err))
	}
	return tokenString, nil
}

// VerifyToken checks signature, structure and expiry and returns the carried identity.
// Every failure is an AuthError; the guard decides which status to surface.
func (s *CredentialService) VerifyToken(tokenString string) (*Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, apperror.NewAuthError("Invalid token.", err)
	}
	if !token.Valid {
		return nil, apperror.NewAuthError("Invalid token.", errors.New("token is invalid"))
	}
	if claims.UserID == "" {
		return nil, apperror.NewAuthError("Invalid token.", errors.New("id claim is missing"))
	}
	return &Identity{UserID: claims.UserID, Name: claims.Name}, nil
}
