package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/cellinlab/ipipo/internal/model"
)

// PostgresStore is the Postgres-backed campaign store. Mutations run in
// transactions; campaign and voucher rows are locked before their
// invariant checks so two concurrent purchases cannot both pass the
// capacity check.
type PostgresStore struct {
	postgres     *sqlx.DB
	campaignRepo *CampaignRepository
	voucherRepo  *VoucherRepository
	log          *zap.Logger
}

// NewPostgresStore creates a Postgres-backed store
func NewPostgresStore(postgres *sqlx.DB, log *zap.Logger) *PostgresStore {
	return &PostgresStore{
		postgres:     postgres,
		campaignRepo: NewCampaignRepository(),
		voucherRepo:  NewVoucherRepository(),
		log:          log,
	}
}

// CreateCampaign stores a fully-built campaign record
func (s *PostgresStore) CreateCampaign(ctx context.Context, campaign *model.Campaign) error {
	return s.campaignRepo.CreateCampaign(ctx, s.postgres, campaign)
}

// GetCampaign returns the campaign with the given id
func (s *PostgresStore) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	return s.campaignRepo.GetCampaign(ctx, s.postgres, id)
}

// ListCampaigns filters, sorts and paginates the campaign list
func (s *PostgresStore) ListCampaigns(ctx context.Context, filter model.CampaignFilter, sortOpts model.SortOptions, page, pageSize int) (*model.CampaignPage, error) {
	return s.campaignRepo.ListCampaigns(ctx, s.postgres, filter, sortOpts, page, pageSize)
}

// CampaignsByCreator returns all campaigns created by the address
func (s *PostgresStore) CampaignsByCreator(ctx context.Context, creator string) ([]model.Campaign, error) {
	return s.campaignRepo.CampaignsByCreator(ctx, s.postgres, creator)
}

// SetPaused toggles the pause flag on a campaign
func (s *PostgresStore) SetPaused(ctx context.Context, id string, paused bool) error {
	return s.campaignRepo.SetPaused(ctx, s.postgres, id, paused)
}

// ApplyPurchase commits a purchase inside one transaction. The campaign
// row is locked first, then the stateful preconditions are checked
// against the locked row.
func (s *PostgresStore) ApplyPurchase(ctx context.Context, purchase *model.Purchase) error {
	if purchase.Amount <= 0 {
		return model.NewValidationError("purchase amount must be positive")
	}

	tx, err := s.postgres.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	campaign, err := s.campaignRepo.GetCampaignForUpdate(ctx, tx, purchase.CampaignID)
	if err != nil {
		return err
	}

	if campaign.Sold > campaign.Supply {
		// never correct silently, surface to operators
		s.log.Error("oversold campaign detected",
			zap.String("campaign_id", campaign.ID),
			zap.Int64("sold", campaign.Sold),
			zap.Int64("supply", campaign.Supply))
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

	if err := s.campaignRepo.IncrementSold(ctx, tx, campaign.ID, purchase.Amount); err != nil {
		return err
	}
	if err := s.voucherRepo.UpsertOnPurchase(ctx, tx, purchase.Buyer, purchase.CampaignID, purchase.Amount); err != nil {
		return err
	}
	if err := s.voucherRepo.InsertPurchase(ctx, tx, purchase); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit purchase: %w", err)
	}

	return nil
}

// ApplyRedemption commits a redemption inside one transaction with the
// voucher row locked
func (s *PostgresStore) ApplyRedemption(ctx context.Context, redemption *model.Redemption) error {
	tx, err := s.postgres.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	voucher, err := s.voucherRepo.GetVoucherForUpdate(ctx, tx, redemption.Redeemer, redemption.CampaignID)
	if err != nil {
		return err
	}
	if voucher.Balance <= 0 {
		return model.NewInsufficientBalanceError(fmt.Sprintf(
			"voucher balance is zero on campaign %s", redemption.CampaignID))
	}

	if err := s.voucherRepo.DebitOnRedemption(ctx, tx, redemption.Redeemer, redemption.CampaignID); err != nil {
		return err
	}
	if err := s.voucherRepo.InsertRedemption(ctx, tx, redemption); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit redemption: %w", err)
	}

	return nil
}

// GetVoucher returns the holder's voucher with history and campaign
// attached
func (s *PostgresStore) GetVoucher(ctx context.Context, holder, campaignID string) (*model.Voucher, error) {
	voucher, err := s.voucherRepo.GetVoucher(ctx, s.postgres, holder, campaignID)
	if err != nil {
		return nil, err
	}
	if err := s.attachDetails(ctx, voucher); err != nil {
		return nil, err
	}
	return voucher, nil
}

// VouchersByHolder returns the holder's vouchers in first-purchase order
func (s *PostgresStore) VouchersByHolder(ctx context.Context, holder string) ([]model.Voucher, error) {
	vouchers, err := s.voucherRepo.VouchersByHolder(ctx, s.postgres, holder)
	if err != nil {
		return nil, err
	}
	for i := range vouchers {
		if err := s.attachDetails(ctx, &vouchers[i]); err != nil {
			return nil, err
		}
	}
	return vouchers, nil
}

// PurchasesByBuyer returns the buyer's purchases across campaigns
func (s *PostgresStore) PurchasesByBuyer(ctx context.Context, buyer string) ([]model.Purchase, error) {
	return s.voucherRepo.PurchasesByBuyer(ctx, s.postgres, buyer)
}

func (s *PostgresStore) attachDetails(ctx context.Context, voucher *model.Voucher) error {
	campaign, err := s.campaignRepo.GetCampaign(ctx, s.postgres, voucher.CampaignID)
	if err != nil {
		return err
	}
	voucher.Campaign = campaign

	if voucher.PurchaseHistory, err = s.voucherRepo.PurchaseHistory(ctx, s.postgres, voucher.Holder, voucher.CampaignID); err != nil {
		return err
	}
	if voucher.RedemptionHistory, err = s.voucherRepo.RedemptionHistory(ctx, s.postgres, voucher.Holder, voucher.CampaignID); err != nil {
		return err
	}
	return nil
}
