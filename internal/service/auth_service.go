package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"parktronic/internal/domain"
	"parktronic/internal/repository"
	"parktronic/internal/session"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrTokenInvalid       = errors.New("token is invalid or expired")
)

type AuthService struct {
	users      repository.UserRepository
	sessions   session.Store
	jwtSecret  []byte
	expiration time.Duration
	now        func() time.Time
	log        *zap.Logger
}

func NewAuthService(users repository.UserRepository, sessions session.Store, jwtSecret string, expiration time.Duration, log *zap.Logger) *AuthService {
	return &AuthService{
		users:      users,
		sessions:   sessions,
		jwtSecret:  []byte(jwtSecret),
		expiration: expiration,
		now:        time.Now,
		log:        log,
	}
}

func (s *AuthService) Signup(ctx context.Context, dto domain.SignupDTO) (*domain.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(dto.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.users.Create(ctx, &domain.User{
		Email:        dto.Email,
		FirstName:    dto.FirstName,
		Username:     dto.Username,
		PasswordHash: string(hash),
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("user signed up", zap.Int("user_id", user.ID))
	return user, nil
}

// Login checks the credentials and opens a session. The token's jti is the
// session key, so Logout invalidates the token before it expires.
func (s *AuthService) Login(ctx context.Context, dto domain.LoginDTO) (*domain.AuthResponseDTO, error) {
	user, err := s.users.FindByEmail(ctx, dto.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	ok, legacy := checkPassword(user.PasswordHash, dto.Password)
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if legacy {
		s.rehash(ctx, user.ID, dto.Password)
	}

	now := s.now()
	expiresAt := now.Add(s.expiration)
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   strconv.Itoa(user.ID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	if err := s.sessions.Set(ctx, claims.ID, user.ID, s.expiration); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	return &domain.AuthResponseDTO{
		Token:     token,
		UserID:    user.ID,
		Username:  user.Username,
		ExpiresAt: expiresAt.UTC(),
	}, nil
}

// checkPassword compares against a bcrypt hash, or against a plain value
// carried over from the old users table. legacy reports the latter.
func checkPassword(stored, password string) (ok, legacy bool) {
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil, false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1, true
}

func (s *AuthService) rehash(ctx context.Context, userID int, password string) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err == nil {
		err = s.users.UpdatePasswordHash(ctx, userID, string(hash))
	}
	if err != nil {
		s.log.Warn("could not re-hash legacy password", zap.Int("user_id", userID), zap.Error(err))
		return
	}
	s.log.Info("legacy password re-hashed", zap.Int("user_id", userID))
}

func (s *AuthService) Logout(ctx context.Context, token string) error {
	claims, err := s.parse(token, jwt.WithoutClaimsValidation())
	if err != nil {
		return err
	}
	return s.sessions.Delete(ctx, claims.ID)
}

// Authenticate returns the user id of a valid token with a live session.
func (s *AuthService) Authenticate(ctx context.Context, token string) (int, error) {
	claims, err := s.parse(token)
	if err != nil {
		return 0, err
	}
	userID, err := s.sessions.Get(ctx, claims.ID)
	if errors.Is(err, session.ErrNotFound) {
		return 0, fmt.Errorf("%w: session closed", ErrTokenInvalid)
	}
	if err != nil {
		return 0, err
	}
	if strconv.Itoa(userID) != claims.Subject {
		return 0, fmt.Errorf("%w: subject mismatch", ErrTokenInvalid)
	}
	return userID, nil
}

func (s *AuthService) parse(token string, opts ...jwt.ParserOption) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("%w: malformed", ErrTokenInvalid)
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: expired", ErrTokenInvalid)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing jti", ErrTokenInvalid)
	}
	return claims, nil
}
