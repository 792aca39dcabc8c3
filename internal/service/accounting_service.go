package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cellinlab/ipipo/internal/metrics"
	"github.com/cellinlab/ipipo/internal/model"
	"github.com/cellinlab/ipipo/internal/store"
)

// defaultShowcaseURL backs the Showcase attribute when a creator does
// not supply one.
const defaultShowcaseURL = "https://x.com/cellinlab/status/1956527249223483563"

const deliverySLA = "Deliver within 7 days after coordination."

// AccountingService enforces the campaign accounting rules. It is the
// only caller of store mutations: input validation, creator
// authorization and proof checks happen here, the stateful invariant
// checks happen atomically inside the store.
type AccountingService struct {
	store        store.Store
	proofDomains []string
	log          *zap.Logger
}

// NewAccountingService creates a new accounting service. proofDomains
// is the allowlist of hosts accepted as redemption proof.
func NewAccountingService(st store.Store, proofDomains []string, log *zap.Logger) *AccountingService {
	return &AccountingService{
		store:        st,
		proofDomains: proofDomains,
		log:          log,
	}
}

// CreateCampaignInput carries the creator-supplied campaign fields
type CreateCampaignInput struct {
	Creator       string
	CreatorHandle string
	Kind          model.CampaignKind
	Name          string
	Description   string
	ExternalURL   string
	Image         string
	ShowcaseURL   string
	BasePrice     int64
	PriceStep     int64
	Supply        int64
}

// CreateCampaign validates the input and stores a new campaign with
// sold = 0 and paused = false
func (s *AccountingService) CreateCampaign(ctx context.Context, input CreateCampaignInput) (*model.Campaign, error) {
	if input.Creator == "" {
		return nil, model.NewValidationError("creator is required")
	}
	if strings.TrimSpace(input.CreatorHandle) == "" {
		return nil, model.NewValidationError("creator handle is required")
	}
	if !model.ValidKind(input.Kind) {
		return nil, model.NewValidationError(fmt.Sprintf("unknown campaign kind %q", input.Kind))
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, model.NewValidationError("name is required")
	}
	if strings.TrimSpace(input.Description) == "" {
		return nil, model.NewValidationError("description is required")
	}
	if input.Supply <= 0 {
		return nil, model.NewValidationError("supply must be positive")
	}
	if input.BasePrice < 0 {
		return nil, model.NewValidationError("base price must not be negative")
	}
	if input.PriceStep < 0 {
		return nil, model.NewValidationError("price step must not be negative")
	}

	showcase := input.ShowcaseURL
	if showcase == "" {
		showcase = defaultShowcaseURL
	}
	externalURL := input.ExternalURL
	if externalURL == "" {
		externalURL = "https://x.com/" + strings.TrimPrefix(input.CreatorHandle, "@")
	}

	campaign := &model.Campaign{
		ID:            uuid.NewString(),
		Creator:       input.Creator,
		CreatorHandle: input.CreatorHandle,
		Kind:          input.Kind,
		Name:          strings.TrimSpace(input.Name),
		Description:   strings.TrimSpace(input.Description),
		ExternalURL:   externalURL,
		Image:         input.Image,
		Attributes: model.MetaAttributes{
			{TraitType: "Kind", Value: input.Kind.Label()},
			{TraitType: "SLA", Value: deliverySLA},
			{TraitType: "Showcase", Value: showcase},
		},
		BasePrice: input.BasePrice,
		PriceStep: input.PriceStep,
		Supply:    input.Supply,
		Sold:      0,
		Paused:    false,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.CreateCampaign(ctx, campaign); err != nil {
		return nil, err
	}

	s.log.Info("campaign created",
		zap.String("campaign_id", campaign.ID),
		zap.String("creator", campaign.Creator),
		zap.String("kind", string(campaign.Kind)),
		zap.Int64("supply", campaign.Supply))

	return campaign, nil
}

// Purchase buys amount voucher units at the flat base price. The unit
// price is snapshotted from the campaign; PriceStep is never applied.
func (s *AccountingService) Purchase(ctx context.Context, campaignID, buyer string, amount int64) (*model.Purchase, error) {
	start := time.Now()
	result := "failed"
	defer func() {
		metrics.RecordPurchaseDuration(result, time.Since(start).Seconds())
	}()

	if buyer == "" {
		return nil, model.NewValidationError("buyer is required")
	}
	if amount <= 0 {
		return nil, model.NewValidationError("amount must be positive")
	}

	// Price is immutable after creation, so the snapshot taken here is
	// safe even though the capacity check runs later inside the store.
	campaign, err := s.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	purchase := &model.Purchase{
		ID:         uuid.NewString(),
		CampaignID: campaignID,
		Buyer:      buyer,
		Amount:     amount,
		UnitPrice:  campaign.BasePrice,
		TotalPaid:  amount * campaign.BasePrice,
		Timestamp:  time.Now().UTC(),
		TxRef:      newTxRef(),
	}

	if err := s.store.ApplyPurchase(ctx, purchase); err != nil {
		return nil, err
	}
	result = "success"
	metrics.PurchasedUnits.Add(float64(amount))

	s.log.Info("purchase committed",
		zap.String("campaign_id", campaignID),
		zap.String("buyer", buyer),
		zap.Int64("amount", amount),
		zap.Int64("total_paid", purchase.TotalPaid))

	return purchase, nil
}

// Redeem consumes one voucher unit against a proof link. The proof host
// must be on the configured allowlist. Redemptions complete immediately;
// the pending and disputed states are reserved.
func (s *AccountingService) Redeem(ctx context.Context, campaignID, redeemer, proofURL string) (*model.Redemption, error) {
	start := time.Now()
	result := "failed"
	defer func() {
		metrics.RecordRedeemDuration(result, time.Since(start).Seconds())
	}()

	if redeemer == "" {
		return nil, model.NewValidationError("redeemer is required")
	}
	if err := s.validateProofURL(proofURL); err != nil {
		return nil, err
	}

	redemption := &model.Redemption{
		ID:         uuid.NewString(),
		CampaignID: campaignID,
		Redeemer:   redeemer,
		ProofURL:   proofURL,
		Status:     model.RedemptionCompleted,
		Timestamp:  time.Now().UTC(),
		TxRef:      newTxRef(),
	}

	if err := s.store.ApplyRedemption(ctx, redemption); err != nil {
		return nil, err
	}
	result = "success"

	s.log.Info("redemption committed",
		zap.String("campaign_id", campaignID),
		zap.String("redeemer", redeemer),
		zap.String("proof_url", proofURL))

	return redemption, nil
}

// SetPaused toggles the pause flag. Only the campaign's creator may do
// this; anyone else gets an unauthorized error.
func (s *AccountingService) SetPaused(ctx context.Context, campaignID, requester string, paused bool) error {
	campaign, err := s.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	if !strings.EqualFold(campaign.Creator, requester) {
		return model.NewUnauthorizedError("only the campaign creator may pause or resume it")
	}

	if err := s.store.SetPaused(ctx, campaignID, paused); err != nil {
		return err
	}

	s.log.Info("campaign pause toggled",
		zap.String("campaign_id", campaignID),
		zap.Bool("paused", paused))

	return nil
}

// GetCampaign returns one campaign by id
func (s *AccountingService) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	return s.store.GetCampaign(ctx, id)
}

// ListCampaigns returns one page of the filtered campaign list
func (s *AccountingService) ListCampaigns(ctx context.Context, filter model.CampaignFilter, sortOpts model.SortOptions, page, pageSize int) (*model.CampaignPage, error) {
	if page < 1 {
		return nil, model.NewValidationError("page must be at least 1")
	}
	if pageSize < 1 {
		return nil, model.NewValidationError("page size must be at least 1")
	}
	if sortOpts.Field != "" && !model.ValidSortField(sortOpts.Field) {
		return nil, model.NewValidationError(fmt.Sprintf("unknown sort field %q", sortOpts.Field))
	}
	return s.store.ListCampaigns(ctx, filter, sortOpts, page, pageSize)
}

// CampaignsByCreator returns all campaigns created by the address
func (s *AccountingService) CampaignsByCreator(ctx context.Context, creator string) ([]model.Campaign, error) {
	return s.store.CampaignsByCreator(ctx, creator)
}

// GetVoucher returns the holder's voucher for one campaign
func (s *AccountingService) GetVoucher(ctx context.Context, holder, campaignID string) (*model.Voucher, error) {
	return s.store.GetVoucher(ctx, holder, campaignID)
}

// VouchersByHolder returns every voucher the holder has purchased into,
// zero-balance ones included
func (s *AccountingService) VouchersByHolder(ctx context.Context, holder string) ([]model.Voucher, error) {
	return s.store.VouchersByHolder(ctx, holder)
}

// HolderStats aggregates the holder's vouchers: units held, units
// redeemed and holding value at the campaigns' base prices
func (s *AccountingService) HolderStats(ctx context.Context, holder string) (*model.HolderStats, error) {
	vouchers, err := s.store.VouchersByHolder(ctx, holder)
	if err != nil {
		return nil, err
	}

	stats := &model.HolderStats{Campaigns: len(vouchers)}
	for _, voucher := range vouchers {
		stats.TotalHeld += voucher.Balance
		stats.TotalRedeemed += voucher.TotalRedeemed
		if voucher.Campaign != nil {
			stats.HoldingValue += voucher.Balance * voucher.Campaign.BasePrice
		}
	}
	return stats, nil
}

// CreatorStats aggregates one address's creator-side earnings and
// buyer-side spend
func (s *AccountingService) CreatorStats(ctx context.Context, address string) (*model.CreatorStats, error) {
	campaigns, err := s.store.CampaignsByCreator(ctx, address)
	if err != nil {
		return nil, err
	}

	stats := &model.CreatorStats{TotalCampaigns: len(campaigns)}
	for _, campaign := range campaigns {
		stats.TotalEarnings += campaign.BasePrice * campaign.Sold
	}

	purchases, err := s.store.PurchasesByBuyer(ctx, address)
	if err != nil {
		return nil, err
	}
	for _, purchase := range purchases {
		stats.TotalSpent += purchase.TotalPaid
	}

	vouchers, err := s.store.VouchersByHolder(ctx, address)
	if err != nil {
		return nil, err
	}
	for _, voucher := range vouchers {
		stats.TotalVouchers += voucher.Balance
	}

	return stats, nil
}

// validateProofURL checks the proof link against the host allowlist
func (s *AccountingService) validateProofURL(proofURL string) error {
	parsed, err := url.Parse(proofURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return model.NewInvalidProofError("proof must be a valid http(s) URL")
	}

	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	for _, domain := range s.proofDomains {
		if host == strings.ToLower(domain) {
			return nil
		}
	}

	return model.NewInvalidProofError(fmt.Sprintf(
		"proof host %q is not accepted; expected one of %s", host, strings.Join(s.proofDomains, ", ")))
}

// newTxRef generates the transaction reference recorded on history
// entries. The contract collaborator replaces it with the real hash
// once the on-chain call settles.
func newTxRef() string {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		id := uuid.New()
		return "0x" + hex.EncodeToString(id[:])
	}
	return "0x" + hex.EncodeToString(buf[:])
}
