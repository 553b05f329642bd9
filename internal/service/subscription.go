package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/templui/refinekit/internal/model"
	"github.com/templui/refinekit/internal/repository"
)

type SubscriptionService struct {
	repo repository.SubscriptionRepository
}

func NewSubscriptionService(repo repository.SubscriptionRepository) *SubscriptionService {
	return &SubscriptionService{repo: repo}
}

func (s *SubscriptionService) CreateFreeSubscription(ctx context.Context, userID string) error {
	now := time.Now()
	subscription := &model.Subscription{
		ID:        uuid.New().String(),
		UserID:    userID,
		PlanID:    model.SubscriptionPlanFree,
		Status:    model.SubscriptionStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.repo.Create(ctx, subscription)
	if err != nil {
		return fmt.Errorf("failed to create free subscription: %w", err)
	}

	return nil
}

// Subscription returns the user's subscription, creating the free one on first access.
func (s *SubscriptionService) Subscription(ctx context.Context, userID string) (*model.Subscription, error) {
	sub, err := s.repo.ByUserID(ctx, userID)
	if errors.Is(err, repository.ErrSubscriptionNotFound) {
		err = s.CreateFreeSubscription(ctx, userID)
		if err != nil {
			return nil, err
		}
		sub, err = s.repo.ByUserID(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return sub, nil
}

func (s *SubscriptionService) ByProviderSubscriptionID(ctx context.Context, providerSubID string) (*model.Subscription, error) {
	sub, err := s.repo.ByProviderSubscriptionID(ctx, providerSubID)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription by provider ID: %w", err)
	}

	return sub, nil
}

func (s *SubscriptionService) UpdateSubscription(ctx context.Context, sub *model.Subscription) error {
	sub.UpdatedAt = time.Now()

	err := s.repo.Update(ctx, sub)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}

	return nil
}

// Activate moves the user onto a paid plan after a completed checkout.
func (s *SubscriptionService) Activate(ctx context.Context, userID, provider, planID, customerID, providerSubID string) error {
	sub, err := s.Subscription(ctx, userID)
	if err != nil {
		return err
	}

	if planID == "" {
		planID = model.SubscriptionPlanPro
	}
	sub.PlanID = planID
	sub.Status = model.SubscriptionStatusActive
	sub.Provider = provider
	if customerID != "" {
		sub.ProviderCustomerID = &customerID
	}
	if providerSubID != "" {
		sub.ProviderSubscriptionID = &providerSubID
	}

	return s.UpdateSubscription(ctx, sub)
}

func (s *SubscriptionService) DowngradeToFree(ctx context.Context, sub *model.Subscription) error {
	sub.PlanID = model.SubscriptionPlanFree
	sub.Status = model.SubscriptionStatusActive
	sub.ProviderSubscriptionID = nil
	sub.CurrentPeriodEnd = nil

	return s.UpdateSubscription(ctx, sub)
}
