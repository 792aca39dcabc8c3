package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cellinlab/ipipo/internal/model"
)

const voucherColumns = `holder, campaign_id, balance, total_purchased, total_redeemed`

// VoucherRepository handles voucher ledger and history operations
type VoucherRepository struct{}

// NewVoucherRepository creates a new voucher repository
func NewVoucherRepository() *VoucherRepository {
	return &VoucherRepository{}
}

// GetVoucher retrieves a holder's voucher row for one campaign
func (r *VoucherRepository) GetVoucher(ctx context.Context, db DBExecutor, holder, campaignID string) (*model.Voucher, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM vouchers WHERE holder = $1 AND campaign_id = $2`, voucherColumns)

	var voucher model.Voucher
	err := db.GetContext(ctx, &voucher, query, holder, campaignID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, model.NewNotFoundError(fmt.Sprintf(
				"no voucher for holder %s on campaign %s", holder, campaignID))
		}
		return nil, fmt.Errorf("failed to get voucher: %w", err)
	}

	return &voucher, nil
}

// GetVoucherForUpdate retrieves a voucher row and locks it for the
// duration of the transaction
func (r *VoucherRepository) GetVoucherForUpdate(ctx context.Context, db DBExecutor, holder, campaignID string) (*model.Voucher, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM vouchers WHERE holder = $1 AND campaign_id = $2 FOR UPDATE`, voucherColumns)

	var voucher model.Voucher
	err := db.GetContext(ctx, &voucher, query, holder, campaignID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, model.NewNotFoundError(fmt.Sprintf(
				"no voucher for holder %s on campaign %s", holder, campaignID))
		}
		return nil, fmt.Errorf("failed to lock voucher: %w", err)
	}

	return &voucher, nil
}

// UpsertOnPurchase creates or tops up the buyer's voucher for a campaign
func (r *VoucherRepository) UpsertOnPurchase(ctx context.Context, db DBExecutor, holder, campaignID string, amount int64) error {
	query := `
		INSERT INTO vouchers (holder, campaign_id, balance, total_purchased, total_redeemed)
		VALUES ($1, $2, $3, $3, 0)
		ON CONFLICT (holder, campaign_id) DO UPDATE
		SET balance = vouchers.balance + EXCLUDED.balance,
		    total_purchased = vouchers.total_purchased + EXCLUDED.total_purchased
	`

	if _, err := db.ExecContext(ctx, query, holder, campaignID, amount); err != nil {
		return fmt.Errorf("failed to upsert voucher: %w", err)
	}

	return nil
}

// DebitOnRedemption decrements the voucher balance by one. The balance
// guard in the WHERE clause makes a concurrent double-spend impossible
// even without the row lock.
func (r *VoucherRepository) DebitOnRedemption(ctx context.Context, db DBExecutor, holder, campaignID string) error {
	query := `
		UPDATE vouchers
		SET balance = balance - 1, total_redeemed = total_redeemed + 1
		WHERE holder = $1 AND campaign_id = $2 AND balance > 0
	`

	result, err := db.ExecContext(ctx, query, holder, campaignID)
	if err != nil {
		return fmt.Errorf("failed to debit voucher: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewInsufficientBalanceError(fmt.Sprintf(
			"voucher balance is zero on campaign %s", campaignID))
	}

	return nil
}

// InsertPurchase appends a purchase history row
func (r *VoucherRepository) InsertPurchase(ctx context.Context, db DBExecutor, purchase *model.Purchase) error {
	query := `
		INSERT INTO purchases (id, campaign_id, buyer, amount, unit_price, total_paid, ts, tx_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := db.ExecContext(ctx, query,
		purchase.ID, purchase.CampaignID, purchase.Buyer, purchase.Amount,
		purchase.UnitPrice, purchase.TotalPaid, purchase.Timestamp, purchase.TxRef)
	if err != nil {
		return fmt.Errorf("failed to insert purchase: %w", err)
	}

	return nil
}

// InsertRedemption appends a redemption history row
func (r *VoucherRepository) InsertRedemption(ctx context.Context, db DBExecutor, redemption *model.Redemption) error {
	query := `
		INSERT INTO redemptions (id, campaign_id, redeemer, proof_url, status, ts, tx_ref, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := db.ExecContext(ctx, query,
		redemption.ID, redemption.CampaignID, redemption.Redeemer, redemption.ProofURL,
		redemption.Status, redemption.Timestamp, redemption.TxRef, redemption.Note)
	if err != nil {
		return fmt.Errorf("failed to insert redemption: %w", err)
	}

	return nil
}

// VouchersByHolder retrieves the holder's voucher rows in first-purchase
// order, zero-balance rows included
func (r *VoucherRepository) VouchersByHolder(ctx context.Context, db DBExecutor, holder string) ([]model.Voucher, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM vouchers WHERE LOWER(holder) = LOWER($1) ORDER BY seq ASC`, voucherColumns)

	var vouchers []model.Voucher
	if err := db.SelectContext(ctx, &vouchers, query, holder); err != nil {
		return nil, fmt.Errorf("failed to get holder vouchers: %w", err)
	}

	return vouchers, nil
}

// PurchaseHistory retrieves the holder's purchases for one campaign in
// purchase order
func (r *VoucherRepository) PurchaseHistory(ctx context.Context, db DBExecutor, holder, campaignID string) ([]model.Purchase, error) {
	query := `
		SELECT id, campaign_id, buyer, amount, unit_price, total_paid, ts, tx_ref
		FROM purchases
		WHERE LOWER(buyer) = LOWER($1) AND campaign_id = $2
		ORDER BY seq ASC
	`

	var purchases []model.Purchase
	if err := db.SelectContext(ctx, &purchases, query, holder, campaignID); err != nil {
		return nil, fmt.Errorf("failed to get purchase history: %w", err)
	}

	return purchases, nil
}

// RedemptionHistory retrieves the holder's redemptions for one campaign
// in redemption order
func (r *VoucherRepository) RedemptionHistory(ctx context.Context, db DBExecutor, holder, campaignID string) ([]model.Redemption, error) {
	query := `
		SELECT id, campaign_id, redeemer, proof_url, status, ts, tx_ref, note
		FROM redemptions
		WHERE LOWER(redeemer) = LOWER($1) AND campaign_id = $2
		ORDER BY seq ASC
	`

	var redemptions []model.Redemption
	if err := db.SelectContext(ctx, &redemptions, query, holder, campaignID); err != nil {
		return nil, fmt.Errorf("failed to get redemption history: %w", err)
	}

	return redemptions, nil
}

// PurchasesByBuyer retrieves the buyer's purchases across all campaigns
func (r *VoucherRepository) PurchasesByBuyer(ctx context.Context, db DBExecutor, buyer string) ([]model.Purchase, error) {
	query := `
		SELECT id, campaign_id, buyer, amount, unit_price, total_paid, ts, tx_ref
		FROM purchases
		WHERE LOWER(buyer) = LOWER($1)
		ORDER BY seq ASC
	`

	var purchases []model.Purchase
	if err := db.SelectContext(ctx, &purchases, query, buyer); err != nil {
		return nil, fmt.Errorf("failed to get buyer purchases: %w", err)
	}

	return purchases, nil
}
