package services

import (
	"context"
	"errors"
	"strings"

	"namlend/internal/adapters/persistence/models"
	"namlend/internal/adapters/persistence/repositories"
	"namlend/internal/core/domain"
	"namlend/internal/pkg/jwt"
	"namlend/internal/pkg/password"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Auth errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrUserInactive       = errors.New("user account is inactive")
)

// TokenConfig holds access token settings
type TokenConfig struct {
	Secret        string
	AccessMinutes int
}

// AuthService handles authentication business logic
type AuthService struct {
	users repositories.UserRepository
	cfg   TokenConfig
	log   *zap.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(users repositories.UserRepository, cfg TokenConfig, log *zap.Logger) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{users: users, cfg: cfg, log: log.Named("auth")}
}

// RegisterInput represents registration input
type RegisterInput struct {
	Email    string `json:"email" validate:"required,email,max=100"`
	FullName string `json:"full_name" validate:"required,max=150"`
	Password string `json:"password" validate:"required,min=8"`
}

// LoginInput represents login input
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse represents authentication response
type AuthResponse struct {
	User        *models.UserResponse `json:"user"`
	AccessToken string               `json:"access_token"`
	ExpiresIn   int                  `json:"expires_in"`
}

// Register signs up a borrower. New accounts hold the client role only.
func (s *AuthService) Register(ctx context.Context, input *RegisterInput) (*AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if !password.ValidatePassword(input.Password) {
		return nil, ErrWeakPassword
	}

	_, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, ErrUserAlreadyExists
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	hashed, err := password.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:    email,
		FullName: strings.TrimSpace(input.FullName),
		Password: hashed,
		IsActive: true,
		Roles:    []models.UserRole{{Role: domain.RoleClient.String()}},
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUserAlreadyExists
		}
		return nil, err
	}

	s.log.Info("✅ user registered", zap.Uint("user_id", user.ID), zap.String("email", user.Email))
	return s.issue(user)
}

// Login authenticates a user by email and password
func (s *AuthService) Login(ctx context.Context, input *LoginInput) (*AuthResponse, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(input.Email)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.IsActive {
		return nil, ErrUserInactive
	}
	if !password.Verify(input.Password, user.Password) {
		return nil, ErrInvalidCredentials
	}

	s.log.Info("✅ user logged in", zap.Uint("user_id", user.ID))
	return s.issue(user)
}

// Me returns the current user's profile
func (s *AuthService) Me(ctx context.Context, userID uint) (*models.UserResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user.ToResponse(), nil
}

// ValidateAccessToken validates an access token
func (s *AuthService) ValidateAccessToken(accessToken string) (*jwt.Claims, error) {
	claims, err := jwt.ValidateAccessToken(accessToken, s.cfg.Secret)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ActorFromClaims builds the service actor for a validated token. Unknown
// role names in the token are ignored.
func ActorFromClaims(c *jwt.Claims) Actor {
	var set domain.RoleSet
	for _, name := range c.Roles {
		if r, err := domain.ParseRole(name); err == nil {
			set = set.With(r)
		}
	}
	return Actor{UserID: c.UserID, Email: c.Email, Roles: set}
}

func (s *AuthService) issue(user *models.User) (*AuthResponse, error) {
	resp := user.ToResponse()
	token, err := jwt.GenerateAccessToken(user.ID, user.Email, resp.Roles, s.cfg.Secret, s.cfg.AccessMinutes)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{User: resp, AccessToken: token, ExpiresIn: s.cfg.AccessMinutes * 60}, nil
}
