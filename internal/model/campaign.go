package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// CampaignKind is the deliverable a campaign sells.
type CampaignKind string

const (
	KindTweet CampaignKind = "tweet"
	KindQuote CampaignKind = "quote"
	KindReply CampaignKind = "reply"
)

// ValidKind checks if a kind is one of the known deliverables
func ValidKind(kind CampaignKind) bool {
	return kind == KindTweet || kind == KindQuote || kind == KindReply
}

// Label returns the display label used in campaign metadata
func (k CampaignKind) Label() string {
	switch k {
	case KindTweet:
		return "Tweet"
	case KindQuote:
		return "Quote"
	case KindReply:
		return "Reply"
	}
	return string(k)
}

// CampaignStatus is the derived read-state of a campaign. It is never
// stored; compute it with Campaign.Status.
type CampaignStatus string

const (
	StatusActive  CampaignStatus = "active"
	StatusPaused  CampaignStatus = "paused"
	StatusSoldOut CampaignStatus = "sold_out"
)

// MetaAttribute is an opaque trait attached to campaign metadata.
type MetaAttribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// MetaAttributes stores the attribute list as a JSON column.
type MetaAttributes []MetaAttribute

// Value implements driver.Valuer
func (a MetaAttributes) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner
func (a *MetaAttributes) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	}
	return fmt.Errorf("unsupported attributes column type %T", src)
}

// Campaign represents a creator's fixed-supply voucher offer
type Campaign struct {
	ID            string         `db:"id" json:"id"`
	Creator       string         `db:"creator" json:"creator"`
	CreatorHandle string         `db:"creator_handle" json:"creator_handle"`
	Kind          CampaignKind   `db:"kind" json:"kind"`
	Name          string         `db:"name" json:"name"`
	Description   string         `db:"description" json:"description"`
	ExternalURL   string         `db:"external_url" json:"external_url,omitempty"`
	Image         string         `db:"image" json:"image,omitempty"`
	Attributes    MetaAttributes `db:"attributes" json:"attributes"`
	BasePrice     int64          `db:"base_price" json:"base_price"`
	// PriceStep is reserved for linear price escalation. Purchases always
	// charge the flat BasePrice; the field is carried but never applied.
	PriceStep int64     `db:"price_step" json:"price_step"`
	Supply    int64     `db:"supply" json:"supply"`
	Sold      int64     `db:"sold" json:"sold"`
	Paused    bool      `db:"paused" json:"paused"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Status derives the read-state: paused wins over sold-out.
func (c *Campaign) Status() CampaignStatus {
	if c.Paused {
		return StatusPaused
	}
	if c.Sold >= c.Supply {
		return StatusSoldOut
	}
	return StatusActive
}

// Remaining returns the unsold supply
func (c *Campaign) Remaining() int64 {
	return c.Supply - c.Sold
}

// Purchase is an append-only record of a voucher buy
type Purchase struct {
	ID         string    `db:"id" json:"id"`
	CampaignID string    `db:"campaign_id" json:"campaign_id"`
	Buyer      string    `db:"buyer" json:"buyer"`
	Amount     int64     `db:"amount" json:"amount"`
	UnitPrice  int64     `db:"unit_price" json:"unit_price"`
	TotalPaid  int64     `db:"total_paid" json:"total_paid"`
	Timestamp  time.Time `db:"ts" json:"timestamp"`
	TxRef      string    `db:"tx_ref" json:"tx_ref"`
}

// RedemptionStatus tracks a redemption through its lifecycle. Only
// Completed is produced today; the other states are reserved for a
// creator-approval step.
type RedemptionStatus string

const (
	RedemptionPending   RedemptionStatus = "pending"
	RedemptionCompleted RedemptionStatus = "completed"
	RedemptionDisputed  RedemptionStatus = "disputed"
	RedemptionRejected  RedemptionStatus = "rejected"
)

// Redemption is an append-only record of one voucher unit being consumed
type Redemption struct {
	ID         string           `db:"id" json:"id"`
	CampaignID string           `db:"campaign_id" json:"campaign_id"`
	Redeemer   string           `db:"redeemer" json:"redeemer"`
	ProofURL   string           `db:"proof_url" json:"proof_url"`
	Status     RedemptionStatus `db:"status" json:"status"`
	Timestamp  time.Time        `db:"ts" json:"timestamp"`
	TxRef      string           `db:"tx_ref" json:"tx_ref"`
	Note       string           `db:"note" json:"note,omitempty"`
}

// Voucher is a holder's ledger entry for one campaign. Balance always
// equals TotalPurchased - TotalRedeemed.
type Voucher struct {
	Holder            string       `db:"holder" json:"holder"`
	CampaignID        string       `db:"campaign_id" json:"campaign_id"`
	Balance           int64        `db:"balance" json:"balance"`
	TotalPurchased    int64        `db:"total_purchased" json:"total_purchased"`
	TotalRedeemed     int64        `db:"total_redeemed" json:"total_redeemed"`
	Campaign          *Campaign    `db:"-" json:"campaign,omitempty"`
	PurchaseHistory   []Purchase   `db:"-" json:"purchase_history"`
	RedemptionHistory []Redemption `db:"-" json:"redemption_history"`
}
