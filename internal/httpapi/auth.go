package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"kantina/backend/internal/domain"
	"kantina/backend/internal/store"
)

// ProfileStore is the slice of the repository the auth layer needs.
type ProfileStore interface {
	GetProfile(ctx context.Context, username string) (*domain.Profile, error)
	ListProfiles(ctx context.Context) ([]domain.Profile, error)
	UpdateProfilePassword(ctx context.Context, username string, password string) error
}

type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	profiles ProfileStore

	mu      sync.Mutex
	revoked map[string]time.Time
}

type sessionClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, profiles ProfileStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		profiles: profiles,
		revoked:  make(map[string]time.Time),
	}
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" || strings.TrimSpace(req.Password) == "" {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}

	profile, err := a.profiles.GetProfile(ctx, username)
	if err != nil {
		// NotFound and backend failures look identical to the caller.
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(profile.Password), []byte(req.Password)) != nil {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}
	if !profile.Active {
		return domain.LoginResponse{}, errors.New("account is inactive")
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(username, profile.Role, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        profile.Role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) sign(username string, role string, expiresAt time.Time) (string, error) {
	claims := sessionClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   username,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "kantina",
		},
		Role: role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthManager) parse(tokenStr string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return nil, errors.New("invalid or expired token")
	}
	return claims, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims, err := a.parse(tokenStr)
	if err != nil {
		return domain.Actor{}, err
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	if a.isRevoked(claims.ID) {
		return domain.Actor{}, errors.New("token revoked")
	}
	return domain.Actor{Username: sub, Role: claims.Role}, nil
}

// Revoke denylists the token id until its natural expiry. A token that fails
// to parse is ignored; it could never authenticate anyway.
func (a *AuthManager) Revoke(tokenStr string) {
	claims, err := a.parse(tokenStr)
	if err != nil || claims.ID == "" {
		return
	}
	expiry := time.Now().UTC().Add(a.tokenTTL)
	if claims.ExpiresAt != nil {
		expiry = claims.ExpiresAt.Time
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	now := time.Now()
	for id, exp := range a.revoked {
		if exp.Before(now) {
			delete(a.revoked, id)
		}
	}
	a.revoked[claims.ID] = expiry
}

func (a *AuthManager) isRevoked(tokenID string) bool {
	if tokenID == "" {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	expiry, found := a.revoked[tokenID]
	return found && expiry.After(time.Now())
}

// ResetPassword rehashes every profile of the given role with the new
// password. A lookup failure is reported distinctly from an update failure so
// the endpoint can map them to different statuses.
func (a *AuthManager) ResetPassword(ctx context.Context, role string, newPassword string) error {
	profiles, err := a.profiles.ListProfiles(ctx)
	if err != nil {
		return fmt.Errorf("profile lookup failed: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	updated := 0
	for _, profile := range profiles {
		if profile.Role != role {
			continue
		}
		if err := a.profiles.UpdateProfilePassword(ctx, profile.Username, string(hash)); err != nil {
			return fmt.Errorf("%w: failed to update password for %s", store.ErrValidation, profile.Username)
		}
		updated++
	}
	if updated == 0 {
		return fmt.Errorf("%w: no %s account to reset", store.ErrValidation, role)
	}
	return nil
}
