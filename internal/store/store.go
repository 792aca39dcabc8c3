// Package store defines the campaign store boundary: the only place
// campaign and voucher state is read or mutated.
package store

import (
	"context"

	"github.com/cellinlab/ipipo/internal/model"
)

// Store is the campaign store and voucher ledger. Mutations are atomic:
// either every effect of an operation is applied or none is, and the
// stateful precondition checks (pause gating, supply cap, balance) run
// inside the same critical section as the mutation so concurrent writers
// cannot observe or produce partial state.
//
// Failed preconditions surface as tagged *model.Error values so callers
// can distinguish not-found from paused from capacity from balance.
type Store interface {
	// CreateCampaign stores a fully-built campaign record
	CreateCampaign(ctx context.Context, campaign *model.Campaign) error

	// GetCampaign returns the campaign with the given id
	GetCampaign(ctx context.Context, id string) (*model.Campaign, error)

	// ListCampaigns returns one page of campaigns matching the filter,
	// ordered per sort with a stable insertion-order tie-break.
	ListCampaigns(ctx context.Context, filter model.CampaignFilter, sort model.SortOptions, page, pageSize int) (*model.CampaignPage, error)

	// CampaignsByCreator returns all campaigns created by the address
	CampaignsByCreator(ctx context.Context, creator string) ([]model.Campaign, error)

	// SetPaused toggles the pause flag on a campaign
	SetPaused(ctx context.Context, id string, paused bool) error

	// ApplyPurchase commits a validated purchase: increments the
	// campaign's sold counter, upserts the buyer's voucher and appends
	// the purchase to its history. The supply-cap and pause checks run
	// atomically with the commit.
	ApplyPurchase(ctx context.Context, purchase *model.Purchase) error

	// ApplyRedemption commits a redemption: decrements the redeemer's
	// voucher balance by one, increments its redeemed total and appends
	// the redemption to its history. The balance check runs atomically
	// with the commit.
	ApplyRedemption(ctx context.Context, redemption *model.Redemption) error

	// GetVoucher returns the holder's voucher for a campaign with its
	// history and campaign attached
	GetVoucher(ctx context.Context, holder, campaignID string) (*model.Voucher, error)

	// VouchersByHolder returns every voucher the holder has ever
	// purchased into, zero-balance ones included, in first-purchase order
	VouchersByHolder(ctx context.Context, holder string) ([]model.Voucher, error)

	// PurchasesByBuyer returns the buyer's purchases across campaigns
	PurchasesByBuyer(ctx context.Context, buyer string) ([]model.Purchase, error)
}
