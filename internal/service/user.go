package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/templui/refinekit/internal/model"
	"github.com/templui/refinekit/internal/repository"
	"github.com/templui/refinekit/internal/validation"
)

// GoogleProfile is the subset of the Google userinfo response used for sign-in.
type GoogleProfile struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

type UserService struct {
	userRepository      repository.UserRepository
	subscriptionService *SubscriptionService
}

func NewUserService(userRepository repository.UserRepository, subscriptionService *SubscriptionService) *UserService {
	return &UserService{
		userRepository:      userRepository,
		subscriptionService: subscriptionService,
	}
}

// UpsertGoogleUser resolves a Google identity to a local user: by Google id,
// then by normalized email (linking the Google id), else a new account.
// Running it twice for the same identity yields the same user.
func (s *UserService) UpsertGoogleUser(ctx context.Context, profile GoogleProfile) (*model.User, error) {
	if profile.ID == "" {
		return nil, errors.New("google profile has no id")
	}
	email := validation.NormalizeEmail(profile.Email)
	err := validation.ValidateEmailShape(email)
	if err != nil {
		return nil, fmt.Errorf("google profile email: %w", err)
	}

	first, last := validation.SplitName(profile.Name)

	user, err := s.userRepository.ByGoogleID(ctx, profile.ID)
	if err == nil {
		return s.refreshGoogleUser(ctx, user, profile, first, last)
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to lookup user by google id: %w", err)
	}

	user, err = s.userRepository.ByEmail(ctx, email)
	if err == nil {
		return s.refreshGoogleUser(ctx, user, profile, first, last)
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to lookup user by email: %w", err)
	}

	now := time.Now()
	googleID := profile.ID
	user = &model.User{
		ID:        uuid.New().String(),
		Email:     email,
		FirstName: first,
		LastName:  last,
		GoogleID:  &googleID,
		AvatarURL: profile.Picture,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.userRepository.Create(ctx, user)
	if errors.Is(err, repository.ErrDuplicateEmail) {
		// A concurrent callback for the same identity won the insert.
		existing, lookupErr := s.userRepository.ByGoogleID(ctx, profile.ID)
		if lookupErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if s.subscriptionService != nil {
		err = s.subscriptionService.CreateFreeSubscription(ctx, user.ID)
		if err != nil {
			slog.WarnContext(ctx, "failed to create free subscription", "error", err, "user_id", user.ID)
		}
	}

	slog.InfoContext(ctx, "new OAuth user created", "user_id", user.ID, "provider", "google")
	return user, nil
}

// refreshGoogleUser links the Google id and fills in profile fields the local record is missing.
func (s *UserService) refreshGoogleUser(ctx context.Context, user *model.User, profile GoogleProfile, first, last string) (*model.User, error) {
	changed := false
	if user.GoogleID == nil || *user.GoogleID != profile.ID {
		googleID := profile.ID
		user.GoogleID = &googleID
		changed = true
	}
	if profile.Picture != "" && user.AvatarURL != profile.Picture {
		user.AvatarURL = profile.Picture
		changed = true
	}
	if user.FirstName == "" && user.LastName == "" && (first != "" || last != "") {
		user.FirstName, user.LastName = first, last
		changed = true
	}

	if changed {
		err := s.userRepository.Update(ctx, user)
		if err != nil {
			return nil, fmt.Errorf("failed to update user: %w", err)
		}
	}

	slog.InfoContext(ctx, "user authenticated via OAuth", "user_id", user.ID, "provider", "google")
	return user, nil
}
