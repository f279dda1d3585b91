package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fjod/storefront/domain"
	r "github.com/fjod/storefront/internal/repository"
)

// resolveCustomer finds or creates the provider customer for a buyer. The
// content-store link is checked first, then the provider by email, then a new
// provider customer is created. The link is upserted in the last two cases so a
// run that crashed after creating the provider record heals on retry.
func (s *CheckoutInitiator) resolveCustomer(ctx context.Context, buyer *domain.Buyer) (*domain.CustomerLink, error) {
	ch := s.customers.DoChan(buyer.ID, func() (interface{}, error) {
		// The shared call outlives any one waiter, so it must not inherit a
		// single caller's cancellation.
		sharedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*s.storeTimeout+s.providerTimeout)
		defer cancel()
		return s.lookupOrCreateCustomer(sharedCtx, buyer)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			slog.DebugContext(ctx, "customer resolution shared with concurrent checkout", "buyer_id", buyer.ID)
		}
		return res.Val.(*domain.CustomerLink), nil
	}
}

func (s *CheckoutInitiator) lookupOrCreateCustomer(ctx context.Context, buyer *domain.Buyer) (*domain.CustomerLink, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	link, err := s.store.FindCustomerByBuyerID(storeCtx, buyer.ID)
	cancel()
	if err == nil && link.ProviderCustomerID != "" {
		return link, nil
	}
	if err != nil && !errors.Is(err, r.ErrCustomerNotFound) {
		return nil, fmt.Errorf("failed to look up customer link: %w", err)
	}

	providerCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	providerID, found, err := s.provider.FindCustomerByEmail(providerCtx, buyer.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to search provider customers: %w", err)
	}
	if !found {
		providerID, err = s.provider.CreateCustomer(providerCtx, *buyer)
		if err != nil {
			return nil, fmt.Errorf("failed to create provider customer: %w", err)
		}
		slog.InfoContext(ctx, "created provider customer", "buyer_id", buyer.ID, "provider_customer_id", providerID)
	}

	storeCtx, cancel = context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	saved, err := s.store.UpsertCustomer(storeCtx, &domain.CustomerLink{
		BuyerID:            buyer.ID,
		Email:              buyer.Email,
		Name:               buyer.Name,
		ProviderCustomerID: providerID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save customer link: %w", err)
	}
	return saved, nil
}
