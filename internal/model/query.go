package model

// SortField selects the campaign list ordering key
type SortField string

const (
	SortByCreatedAt SortField = "created_at"
	SortByPrice     SortField = "price"
	SortBySold      SortField = "sold"
	SortByRemaining SortField = "remaining"
)

// ValidSortField checks if a sort field is known
func ValidSortField(f SortField) bool {
	return f == SortByCreatedAt || f == SortByPrice || f == SortBySold || f == SortByRemaining
}

// SortDirection selects ascending or descending order
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SortOptions describes the requested campaign ordering. Ties keep the
// original insertion order.
type SortOptions struct {
	Field     SortField
	Direction SortDirection
}

// CampaignFilter narrows the campaign list. All predicates are optional
// and combined with AND. Creator matches the address exactly or the
// handle as a case-insensitive substring; Search matches handle, name
// and description case-insensitively.
type CampaignFilter struct {
	Kinds    []CampaignKind
	Statuses []CampaignStatus
	Creator  string
	Search   string
	PriceMin *int64
	PriceMax *int64
}

// Empty reports whether the filter has no predicates set
func (f CampaignFilter) Empty() bool {
	return len(f.Kinds) == 0 && len(f.Statuses) == 0 && f.Creator == "" &&
		f.Search == "" && f.PriceMin == nil && f.PriceMax == nil
}

// CampaignPage is one page of a filtered campaign listing. Total counts
// all matches before pagination.
type CampaignPage struct {
	Items    []Campaign `json:"items"`
	Total    int        `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
	HasMore  bool       `json:"has_more"`
}

// HolderStats aggregates a holder's vouchers across all campaigns.
// HoldingValue is the sum of balance times base price per held campaign.
type HolderStats struct {
	Campaigns     int   `json:"campaigns"`
	TotalHeld     int64 `json:"total_held"`
	TotalRedeemed int64 `json:"total_redeemed"`
	HoldingValue  int64 `json:"holding_value"`
}

// CreatorStats aggregates one address's creator-side earnings and
// buyer-side spend.
type CreatorStats struct {
	TotalCampaigns int   `json:"total_campaigns"`
	TotalEarnings  int64 `json:"total_earnings"`
	TotalSpent     int64 `json:"total_spent"`
	TotalVouchers  int64 `json:"total_vouchers"`
}
