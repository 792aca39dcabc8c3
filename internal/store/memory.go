package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cellinlab/ipipo/internal/model"
)

type voucherKey struct {
	holder     string
	campaignID string
}

// MemoryStore is the in-memory campaign store. A single mutex serializes
// every operation, so each one is atomic with respect to the others.
// Intended for tests and local development; state does not survive the
// process.
type MemoryStore struct {
	mu sync.Mutex

	campaigns map[string]*model.Campaign
	// order keeps campaign ids in insertion order for stable sorting
	order []string

	vouchers map[voucherKey]*model.Voucher
	// holderOrder keeps each holder's campaigns in first-purchase order
	holderOrder map[string][]string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		campaigns:   make(map[string]*model.Campaign),
		vouchers:    make(map[voucherKey]*model.Voucher),
		holderOrder: make(map[string][]string),
	}
}

// CreateCampaign stores a fully-built campaign record
func (s *MemoryStore) CreateCampaign(_ context.Context, campaign *model.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.campaigns[campaign.ID]; ok {
		return model.NewValidationError(fmt.Sprintf("campaign %s already exists", campaign.ID))
	}

	stored := *campaign
	s.campaigns[campaign.ID] = &stored
	s.order = append(s.order, campaign.ID)
	return nil
}

// GetCampaign returns a copy of the campaign with the given id
func (s *MemoryStore) GetCampaign(_ context.Context, id string) (*model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	campaign, ok := s.campaigns[id]
	if !ok {
		return nil, model.NewNotFoundError(fmt.Sprintf("campaign %s not found", id))
	}
	copied := *campaign
	return &copied, nil
}

// ListCampaigns filters, sorts and paginates the campaign list
func (s *MemoryStore) ListCampaigns(_ context.Context, filter model.CampaignFilter, sortOpts model.SortOptions, page, pageSize int) (*model.CampaignPage, error) {
	if page < 1 || pageSize < 1 {
		return nil, model.NewValidationError("page and page size must be at least 1")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]model.Campaign, 0, len(s.order))
	for _, id := range s.order {
		c := s.campaigns[id]
		if matchesFilter(c, filter) {
			matched = append(matched, *c)
		}
	}

	sortCampaigns(matched, sortOpts)

	total := len(matched)
	start := (page - 1) * pageSize
	end := start + pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	return &model.CampaignPage{
		Items:    matched[start:end],
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		HasMore:  page*pageSize < total,
	}, nil
}

// CampaignsByCreator returns all campaigns created by the address
func (s *MemoryStore) CampaignsByCreator(_ context.Context, creator string) ([]model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var campaigns []model.Campaign
	for _, id := range s.order {
		c := s.campaigns[id]
		if strings.EqualFold(c.Creator, creator) {
			campaigns = append(campaigns, *c)
		}
	}
	return campaigns, nil
}

// SetPaused toggles the pause flag on a campaign
func (s *MemoryStore) SetPaused(_ context.Context, id string, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	campaign, ok := s.campaigns[id]
	if !ok {
		return model.NewNotFoundError(fmt.Sprintf("campaign %s not found", id))
	}
	campaign.Paused = paused
	return nil
}

// ApplyPurchase commits a purchase atomically under the store mutex
func (s *MemoryStore) ApplyPurchase(_ context.Context, purchase *model.Purchase) error {
	if purchase.Amount <= 0 {
		return model.NewValidationError("purchase amount must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	campaign, ok := s.campaigns[purchase.CampaignID]
	if !ok {
		return model.NewNotFoundError(fmt.Sprintf("campaign %s not found", purchase.CampaignID))
	}
	if campaign.Sold > campaign.Supply {
		// never correct silently, surface to operators
		return model.NewOversoldError(fmt.Sprintf("campaign %s oversold: sold=%d supply=%d",
			campaign.ID, campaign.Sold, campaign.Supply))
	}
	if campaign.Paused {
		return model.NewPausedError(fmt.Sprintf("campaign %s is paused", campaign.ID))
	}
	// compare against the remainder, not the sum: sold + amount overflows
	// for adversarial amounts near MaxInt64
	if purchase.Amount > campaign.Supply-campaign.Sold {
		return model.NewCapacityExceededError(fmt.Sprintf(
			"amount %d exceeds remaining supply %d", purchase.Amount, campaign.Remaining()))
	}

	campaign.Sold += purchase.Amount

	key := voucherKey{holder: purchase.Buyer, campaignID: purchase.CampaignID}
	voucher, ok := s.vouchers[key]
	if !ok {
		voucher = &model.Voucher{
			Holder:     purchase.Buyer,
			CampaignID: purchase.CampaignID,
		}
		s.vouchers[key] = voucher
		s.holderOrder[purchase.Buyer] = append(s.holderOrder[purchase.Buyer], purchase.CampaignID)
	}
	voucher.Balance += purchase.Amount
	voucher.TotalPurchased += purchase.Amount
	voucher.PurchaseHistory = append(voucher.PurchaseHistory, *purchase)

	return nil
}

// ApplyRedemption commits a redemption atomically under the store mutex
func (s *MemoryStore) ApplyRedemption(_ context.Context, redemption *model.Redemption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := voucherKey{holder: redemption.Redeemer, campaignID: redemption.CampaignID}
	voucher, ok := s.vouchers[key]
	if !ok {
		return model.NewNotFoundError(fmt.Sprintf(
			"no voucher for holder %s on campaign %s", redemption.Redeemer, redemption.CampaignID))
	}
	if voucher.Balance <= 0 {
		return model.NewInsufficientBalanceError(fmt.Sprintf(
			"voucher balance is zero on campaign %s", redemption.CampaignID))
	}

	voucher.Balance--
	voucher.TotalRedeemed++
	voucher.RedemptionHistory = append(voucher.RedemptionHistory, *redemption)

	return nil
}

// GetVoucher returns a copy of the holder's voucher with history attached
func (s *MemoryStore) GetVoucher(_ context.Context, holder, campaignID string) (*model.Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	voucher, ok := s.vouchers[voucherKey{holder: holder, campaignID: campaignID}]
	if !ok {
		return nil, model.NewNotFoundError(fmt.Sprintf(
			"no voucher for holder %s on campaign %s", holder, campaignID))
	}
	return s.copyVoucher(voucher), nil
}

// VouchersByHolder returns the holder's vouchers in first-purchase order
func (s *MemoryStore) VouchersByHolder(_ context.Context, holder string) ([]model.Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var vouchers []model.Voucher
	for _, campaignID := range s.holderOrder[holder] {
		if voucher, ok := s.vouchers[voucherKey{holder: holder, campaignID: campaignID}]; ok {
			vouchers = append(vouchers, *s.copyVoucher(voucher))
		}
	}
	return vouchers, nil
}

// PurchasesByBuyer returns the buyer's purchases across campaigns
func (s *MemoryStore) PurchasesByBuyer(_ context.Context, buyer string) ([]model.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purchases []model.Purchase
	for _, campaignID := range s.holderOrder[buyer] {
		if voucher, ok := s.vouchers[voucherKey{holder: buyer, campaignID: campaignID}]; ok {
			purchases = append(purchases, voucher.PurchaseHistory...)
		}
	}
	return purchases, nil
}

// copyVoucher snapshots a voucher with its history and campaign so the
// caller never aliases store-owned state. Callers must hold the mutex.
func (s *MemoryStore) copyVoucher(voucher *model.Voucher) *model.Voucher {
	copied := *voucher
	copied.PurchaseHistory = append([]model.Purchase(nil), voucher.PurchaseHistory...)
	copied.RedemptionHistory = append([]model.Redemption(nil), voucher.RedemptionHistory...)
	if campaign, ok := s.campaigns[voucher.CampaignID]; ok {
		campaignCopy := *campaign
		copied.Campaign = &campaignCopy
	}
	return &copied
}

func matchesFilter(c *model.Campaign, filter model.CampaignFilter) bool {
	if len(filter.Kinds) > 0 && !containsKind(filter.Kinds, c.Kind) {
		return false
	}
	if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, c.Status()) {
		return false
	}
	if filter.Creator != "" {
		creator := strings.ToLower(filter.Creator)
		if !strings.EqualFold(c.Creator, filter.Creator) &&
			!strings.Contains(strings.ToLower(c.CreatorHandle), creator) {
			return false
		}
	}
	if filter.Search != "" {
		search := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(c.CreatorHandle), search) &&
			!strings.Contains(strings.ToLower(c.Name), search) &&
			!strings.Contains(strings.ToLower(c.Description), search) {
			return false
		}
	}
	if filter.PriceMin != nil && c.BasePrice < *filter.PriceMin {
		return false
	}
	if filter.PriceMax != nil && c.BasePrice > *filter.PriceMax {
		return false
	}
	return true
}

func containsKind(kinds []model.CampaignKind, kind model.CampaignKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func containsStatus(statuses []model.CampaignStatus, status model.CampaignStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// sortCampaigns orders campaigns in place. The sort is stable so ties
// keep insertion order.
func sortCampaigns(campaigns []model.Campaign, opts model.SortOptions) {
	if opts.Field == "" {
		return
	}

	less := func(a, b *model.Campaign) bool {
		switch opts.Field {
		case model.SortByCreatedAt:
			return a.CreatedAt.Before(b.CreatedAt)
		case model.SortByPrice:
			return a.BasePrice < b.BasePrice
		case model.SortBySold:
			return a.Sold < b.Sold
		case model.SortByRemaining:
			return a.Remaining() < b.Remaining()
		}
		return false
	}

	sort.SliceStable(campaigns, func(i, j int) bool {
		if opts.Direction == model.SortDesc {
			return less(&campaigns[j], &campaigns[i])
		}
		return less(&campaigns[i], &campaigns[j])
	})
}
