package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/templui/refinekit/internal/model"
	"github.com/templui/refinekit/internal/repository"
	"github.com/templui/refinekit/internal/validation"
	"golang.org/x/crypto/bcrypt"
)

// SessionCookieName holds the session credential. Client script reads it to
// keep in-page auth state in sync, so it is not httpOnly.
const SessionCookieName = "auth_token"

// dummyHash is compared against when a login email is unknown so both
// branches spend a bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("refinekit-timing-equalizer"), bcrypt.DefaultCost)

type AuthService struct {
	userRepository      repository.UserRepository
	subscriptionService *SubscriptionService
	jwtSecret           string
	jwtExpiry           time.Duration
	isProduction        bool
	now                 func() time.Time
}

func NewAuthService(
	userRepository repository.UserRepository,
	subscriptionService *SubscriptionService,
	jwtSecret string,
	jwtExpiry time.Duration,
	isProduction bool,
) *AuthService {
	return &AuthService{
		userRepository:      userRepository,
		subscriptionService: subscriptionService,
		jwtSecret:           jwtSecret,
		jwtExpiry:           jwtExpiry,
		isProduction:        isProduction,
		now:                 time.Now,
	}
}

func (s *AuthService) Signup(ctx context.Context, email, password, name string) (*model.User, error) {
	email = validation.NormalizeEmail(email)

	err := validation.ValidateEmail(email)
	if err != nil {
		return nil, newValidationError("email", err)
	}
	err = validation.ValidatePassword(password)
	if err != nil {
		return nil, newValidationError("password", err)
	}
	err = validation.ValidateName(name)
	if err != nil {
		return nil, newValidationError("name", err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	first, last := validation.SplitName(name)
	now := s.now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: &hash,
		FirstName:    first,
		LastName:     last,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.userRepository.Create(ctx, user)
	if errors.Is(err, repository.ErrDuplicateEmail) {
		return nil, ErrEmailAlreadyExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if s.subscriptionService != nil {
		err = s.subscriptionService.CreateFreeSubscription(ctx, user.ID)
		if err != nil {
			// Don't fail signup
			slog.WarnContext(ctx, "failed to create free subscription", "error", err, "user_id", user.ID)
		}
	}

	slog.InfoContext(ctx, "user signed up", "user_id", user.ID)
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*model.User, error) {
	email = validation.NormalizeEmail(email)

	user, err := s.userRepository.ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !user.HasPassword() {
		// OAuth-only account
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}

	err = ComparePassword(password, *user.PasswordHash)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

func HashPassword(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}

func ComparePassword(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// GenerateJWT mints the session credential and returns its expiry.
func (s *AuthService) GenerateJWT(user *model.User) (string, time.Time, error) {
	now := s.now()
	expiry := now.Add(s.jwtExpiry)
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"email":   user.Email,
		"exp":     expiry.Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiry, nil
}

func (s *AuthService) VerifyJWT(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	}, jwt.WithTimeFunc(s.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

// UserFromSession resolves a session credential to its user.
func (s *AuthService) UserFromSession(ctx context.Context, tokenString string) (*model.User, error) {
	claims, err := s.VerifyJWT(tokenString)
	if err != nil {
		return nil, err
	}

	userID, _ := claims["user_id"].(string)
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("session has no user")
	}

	return s.userRepository.ByID(ctx, userID)
}

func (s *AuthService) SetSessionCookie(w http.ResponseWriter, token string, expiry time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Expires:  expiry,
		Path:     "/",
		HttpOnly: false,
		Secure:   s.isProduction,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *AuthService) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Path:     "/",
		HttpOnly: false,
		Secure:   s.isProduction,
		SameSite: http.SameSiteLaxMode,
	})
}

// StartSession mints a credential for user and sets the session cookie.
func (s *AuthService) StartSession(w http.ResponseWriter, user *model.User) (string, error) {
	token, expiry, err := s.GenerateJWT(user)
	if err != nil {
		return "", fmt.Errorf("failed to sign session: %w", err)
	}
	s.SetSessionCookie(w, token, expiry)
	return token, nil
}
