package store

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellinlab/ipipo/internal/model"
)

func newCampaign(id string, kind model.CampaignKind, basePrice, supply int64) *model.Campaign {
	return &model.Campaign{
		ID:            id,
		Creator:       "0xcreator" + id,
		CreatorHandle: "@handle" + id,
		Kind:          kind,
		Name:          "campaign " + id,
		Description:   "description " + id,
		BasePrice:     basePrice,
		Supply:        supply,
		CreatedAt:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(len(id)) * time.Hour),
	}
}

func newPurchase(campaignID, buyer string, amount, unitPrice int64) *model.Purchase {
	return &model.Purchase{
		ID:         fmt.Sprintf("p-%s-%s-%d", campaignID, buyer, amount),
		CampaignID: campaignID,
		Buyer:      buyer,
		Amount:     amount,
		UnitPrice:  unitPrice,
		TotalPaid:  amount * unitPrice,
		Timestamp:  time.Now().UTC(),
		TxRef:      "0xtest",
	}
}

func newRedemption(campaignID, redeemer string) *model.Redemption {
	return &model.Redemption{
		ID:         fmt.Sprintf("r-%s-%s", campaignID, redeemer),
		CampaignID: campaignID,
		Redeemer:   redeemer,
		ProofURL:   "https://x.com/redeemer/status/1",
		Status:     model.RedemptionCompleted,
		Timestamp:  time.Now().UTC(),
		TxRef:      "0xtest",
	}
}

func TestApplyPurchaseSupplyBoundary(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateCampaign(ctx, newCampaign("c1", model.KindTweet, 100, 10)))

	// 7 units fit
	require.NoError(t, s.ApplyPurchase(ctx, newPurchase("c1", "0xbuyer", 7, 100)))
	campaign, err := s.GetCampaign(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), campaign.Sold)

	// 4 more would exceed supply and must leave sold untouched
	err = s.ApplyPurchase(ctx, newPurchase("c1", "0xbuyer", 4, 100))
	assert.True(t, model.IsCode(err, model.ErrCodeCapacityExceeded))
	campaign, err = s.GetCampaign(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), campaign.Sold)

	// 3 fill the campaign exactly
	require.NoError(t, s.ApplyPurchase(ctx, newPurchase("c1", "0xbuyer", 3, 100)))
	campaign, err = s.GetCampaign(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), campaign.Sold)
	assert.Equal(t, model.StatusSoldOut, campaign.Status())

	// even a single unit now fails although the campaign is not paused
	err = s.ApplyPurchase(ctx, newPurchase("c1", "0xbuyer", 1, 100))
	assert.True(t, model.IsCode(err, model.ErrCodeCapacityExceeded))

	// adversarial repeats never push sold past supply
	for i := 0; i < 20; i++ {
		_ = s.ApplyPurchase(ctx, newPurchase("c1", "0xother", 1, 100))
	}
	campaign, err = s.GetCampaign(ctx, "c1")
	require.NoError(t, err)
	assert.LessOrEqual(t, campaign.Sold, campaign.Supply)
	assert.Equal(t, int64(10), campaign.Sold)
}

func TestApplyPurchaseAmountBounds(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateCampaign(ctx, newCampaign("c1", model.KindTweet, 100, 10)))
	require.NoError(t, s.ApplyPurchase(ctx, newPurchase("c1", "0xbuyer", 5, 100)))

	// an amount near MaxInt64 must not wrap the capacity check negative
	err := s.ApplyPurchase(ctx, newPurchase("c1", "0xeve", math.MaxInt64-2, 100))
	assert.True(t, model.IsCode(err, model.ErrCodeCapacityExceeded))

	// non-positive amounts never reach the ledger
	err = s.ApplyPurchase(ctx, newPurchase("c1", "0xeve", 0, 100))
	assert.True(t, model.IsCode(err, model.ErrCodeValidation))
	err = s.ApplyPurchase(ctx, newPurchase("c1", "0xeve", -3, 100))
	assert.True(t, model.IsCode(err, model.ErrCodeValidation))

	campaign, err := s.GetCampaign(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), campaign.Sold)
	assert.Equal(t, model.StatusActive, campaign.Status())

	_, err = s.GetVoucher(ctx, "0xeve", "c1")
	assert.True(t, model.IsCode(err, model.ErrCodeNotFound))
}

func TestApplyPurchasePausedGating(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateCampaign(ctx, newCampaign("c1", model.KindTweet, 100, 10)))

	require.NoError(t, s.SetPaused(ctx, "c1", true))
	err := s.ApplyPurchase(ctx, newPurchase("c1", "0xbuyer", 1, 100))
	assert.True(t, model.IsCode(err, model.ErrCodePaused))

	campaign, err := s.GetCampaign(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), campaign.Sold)
	assert.Equal(t, model.StatusPaused, campaign.Status())

	// unpausing restores purchase capability
	require.NoError(t, s.SetPaused(ctx, "c1", false))
	require.NoError(t, s.ApplyPurchase(ctx, newPurchase("c1", "0xbuyer", 1, 100)))
}

func TestApplyPurchaseUnknownCampaign(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	err := s.ApplyPurchase(ctx, newPurchase("missing", "0xbuyer", 1, 100))
	assert.True(t, model.IsCode(err, model.ErrCodeNotFound))
}

func TestVoucherLedgerBookkeeping(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateCampaign(ctx, newCampaign("c1", model.KindTweet, 100, 10)))

	require.NoError(t, s.ApplyPurchase(ctx, newPurchase("c1", "0xbuyer", 3, 100)))

	voucher, err := s.GetVoucher(ctx, "0xbuyer", "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), voucher.Balance)
	assert.Equal(t, int64(3), voucher.TotalPurchased)
	assert.Equal(t, int64(0), voucher.TotalRedeemed)
	require.Len(t, voucher.PurchaseHistory, 1)
	assert.Equal(t, int64(300), voucher.PurchaseHistory[0].TotalPaid)

	// one redemption debits exactly one unit
	require.NoError(t, s.ApplyRedemption(ctx, newRedemption("c1", "0xbuyer")))
	voucher, err = s.GetVoucher(ctx, "0xbuyer", "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), voucher.Balance)
	assert.Equal(t, int64(1), voucher.TotalRedeemed)
	require.Len(t, voucher.RedemptionHistory, 1)
	assert.Equal(t, model.RedemptionCompleted, voucher.RedemptionHistory[0].Status)

	// balance always equals purchased minus redeemed
	assert.Equal(t, voucher.TotalPurchased-voucher.TotalRedeemed, voucher.Balance)
}

func TestApplyRedemptionZeroBalance(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateCampaign(ctx, newCampaign("c1", model.KindTweet, 100, 10)))
	require.NoError(t, s.ApplyPurchase(ctx, newPurchase("c1", "0xbuyer", 1, 100)))
	require.NoError(t, s.ApplyRedemption(ctx, newRedemption("c1", "0xbuyer")))

	// the voucher survives at zero balance and redeeming again fails
	// without mutating anything
	err := s.ApplyRedemption(ctx, newRedemption("c1", "0xbuyer"))
	assert.True(t, model.IsCode(err, model.ErrCodeInsufficientBalance))

	voucher, err := s.GetVoucher(ctx, "0xbuyer", "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), voucher.Balance)
	assert.Equal(t, int64(1), voucher.TotalRedeemed)
	assert.Len(t, voucher.RedemptionHistory, 1)
}

func TestApplyRedemptionNoVoucher(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateCampaign(ctx, newCampaign("c1", model.KindTweet, 100, 10)))

	err := s.ApplyRedemption(ctx, newRedemption("c1", "0xstranger"))
	assert.True(t, model.IsCode(err, model.ErrCodeNotFound))
}

func TestVouchersByHolderIncludesZeroBalance(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateCampaign(ctx, newCampaign("c1", model.KindTweet, 100, 10)))
	require.NoError(t, s.CreateCampaign(ctx, newCampaign("c2", model.KindQuote, 200, 5)))

	require.NoError(t, s.ApplyPurchase(ctx, newPurchase("c1", "0xbuyer", 1, 100)))
	require.NoError(t, s.ApplyPurchase(ctx, newPurchase("c2", "0xbuyer", 2, 200)))
	require.NoError(t, s.ApplyRedemption(ctx, newRedemption("c1", "0xbuyer")))

	vouchers, err := s.VouchersByHolder(ctx, "0xbuyer")
	require.NoError(t, err)
	require.Len(t, vouchers, 2)

	// first-purchase order, zero-balance first
	assert.Equal(t, "c1", vouchers[0].CampaignID)
	assert.Equal(t, int64(0), vouchers[0].Balance)
	assert.Equal(t, "c2", vouchers[1].CampaignID)
	assert.Equal(t, int64(2), vouchers[1].Balance)

	// campaign is attached for value aggregation
	require.NotNil(t, vouchers[1].Campaign)
	assert.Equal(t, int64(200), vouchers[1].Campaign.BasePrice)
}

func listFixture(t *testing.T) *MemoryStore {
	t.Helper()
	ctx := context.Background()
	s := NewMemoryStore()

	c1 := newCampaign("c1", model.KindTweet, 300, 10)
	c2 := newCampaign("c2", model.KindTweet, 100, 10)
	c3 := newCampaign("c3", model.KindQuote, 200, 10)
	require.NoError(t, s.CreateCampaign(ctx, c1))
	require.NoError(t, s.CreateCampaign(ctx, c2))
	require.NoError(t, s.CreateCampaign(ctx, c3))
	return s
}

func TestListCampaignsFilterAndSort(t *testing.T) {
	ctx := context.Background()
	s := listFixture(t)

	page, err := s.ListCampaigns(ctx,
		model.CampaignFilter{Kinds: []model.CampaignKind{model.KindTweet}},
		model.SortOptions{Field: model.SortByPrice, Direction: model.SortAsc},
		1, 10)
	require.NoError(t, err)

	require.Len(t, page.Items, 2)
	assert.Equal(t, 2, page.Total)
	for _, c := range page.Items {
		assert.Equal(t, model.KindTweet, c.Kind)
	}
	// non-decreasing base price
	assert.Equal(t, "c2", page.Items[0].ID)
	assert.Equal(t, "c1", page.Items[1].ID)
	assert.LessOrEqual(t, page.Items[0].BasePrice, page.Items[1].BasePrice)
}

func TestListCampaignsStableTieBreak(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	// same sold count everywhere; ties keep insertion order
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.CreateCampaign(ctx, newCampaign(id, model.KindReply, 100, 10)))
	}

	page, err := s.ListCampaigns(ctx, model.CampaignFilter{},
		model.SortOptions{Field: model.SortBySold, Direction: model.SortDesc}, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, "a", page.Items[0].ID)
	assert.Equal(t, "b", page.Items[1].ID)
	assert.Equal(t, "c", page.Items[2].ID)
}

func TestListCampaignsStatusFilter(t *testing.T) {
	ctx := context.Background()
	s := listFixture(t)

	require.NoError(t, s.SetPaused(ctx, "c2", true))
	for i := 0; i < 10; i++ {
		require.NoError(t, s.ApplyPurchase(ctx, newPurchase("c3", "0xbuyer", 1, 200)))
	}

	tests := []struct {
		name     string
		statuses []model.CampaignStatus
		wantIDs  []string
	}{
		{name: "active", statuses: []model.CampaignStatus{model.StatusActive}, wantIDs: []string{"c1"}},
		{name: "paused", statuses: []model.CampaignStatus{model.StatusPaused}, wantIDs: []string{"c2"}},
		{name: "sold out", statuses: []model.CampaignStatus{model.StatusSoldOut}, wantIDs: []string{"c3"}},
		{name: "paused or sold out", statuses: []model.CampaignStatus{model.StatusPaused, model.StatusSoldOut}, wantIDs: []string{"c2", "c3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := s.ListCampaigns(ctx, model.CampaignFilter{Statuses: tt.statuses},
				model.SortOptions{}, 1, 10)
			require.NoError(t, err)
			ids := make([]string, 0, len(page.Items))
			for _, c := range page.Items {
				ids = append(ids, c.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestListCampaignsTextAndPriceFilters(t *testing.T) {
	ctx := context.Background()
	s := listFixture(t)

	// creator handle substring, case-insensitive
	page, err := s.ListCampaigns(ctx, model.CampaignFilter{Creator: "HANDLEc2"},
		model.SortOptions{}, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "c2", page.Items[0].ID)

	// free text over name/description
	page, err = s.ListCampaigns(ctx, model.CampaignFilter{Search: "description c3"},
		model.SortOptions{}, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "c3", page.Items[0].ID)

	// inclusive price range
	min, max := int64(100), int64(200)
	page, err = s.ListCampaigns(ctx, model.CampaignFilter{PriceMin: &min, PriceMax: &max},
		model.SortOptions{}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
}

func TestListCampaignsPagination(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.CreateCampaign(ctx,
			newCampaign(fmt.Sprintf("c%d", i), model.KindTweet, 100, 10)))
	}

	page, err := s.ListCampaigns(ctx, model.CampaignFilter{}, model.SortOptions{}, 1, 2)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 5, page.Total)
	assert.True(t, page.HasMore)

	page, err = s.ListCampaigns(ctx, model.CampaignFilter{}, model.SortOptions{}, 3, 2)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.False(t, page.HasMore)

	// page past the end is empty, not an error
	page, err = s.ListCampaigns(ctx, model.CampaignFilter{}, model.SortOptions{}, 4, 2)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.False(t, page.HasMore)

	// non-positive page and page size fail instead of slicing negative
	_, err = s.ListCampaigns(ctx, model.CampaignFilter{}, model.SortOptions{}, 0, 2)
	assert.True(t, model.IsCode(err, model.ErrCodeValidation))
	_, err = s.ListCampaigns(ctx, model.CampaignFilter{}, model.SortOptions{}, 1, 0)
	assert.True(t, model.IsCode(err, model.ErrCodeValidation))
}

func TestStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateCampaign(ctx, newCampaign("c1", model.KindTweet, 100, 10)))

	campaign, err := s.GetCampaign(ctx, "c1")
	require.NoError(t, err)
	campaign.Sold = 999

	fresh, err := s.GetCampaign(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), fresh.Sold)
}
