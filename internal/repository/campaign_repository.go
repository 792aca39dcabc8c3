package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/cellinlab/ipipo/internal/model"
)

// DBExecutor interface for database operations (can be *sqlx.DB or *sqlx.Tx)
type DBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

const campaignColumns = `id, creator, creator_handle, kind, name, description,
	external_url, image, attributes, base_price, price_step, supply, sold, paused, created_at`

// CampaignRepository handles campaign data operations
type CampaignRepository struct{}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository() *CampaignRepository {
	return &CampaignRepository{}
}

// CreateCampaign inserts a new campaign row
func (r *CampaignRepository) CreateCampaign(ctx context.Context, db DBExecutor, campaign *model.Campaign) error {
	query := `
		INSERT INTO campaigns (id, creator, creator_handle, kind, name, description,
			external_url, image, attributes, base_price, price_step, supply, sold, paused, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := db.ExecContext(ctx, query,
		campaign.ID, campaign.Creator, campaign.CreatorHandle, campaign.Kind,
		campaign.Name, campaign.Description, campaign.ExternalURL, campaign.Image,
		campaign.Attributes, campaign.BasePrice, campaign.PriceStep,
		campaign.Supply, campaign.Sold, campaign.Paused, campaign.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	return nil
}

// GetCampaign retrieves a campaign by ID
func (r *CampaignRepository) GetCampaign(ctx context.Context, db DBExecutor, id string) (*model.Campaign, error) {
	query := fmt.Sprintf(`SELECT %s FROM campaigns WHERE id = $1`, campaignColumns)

	var campaign model.Campaign
	err := db.GetContext(ctx, &campaign, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, model.NewNotFoundError(fmt.Sprintf("campaign %s not found", id))
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	return &campaign, nil
}

// GetCampaignForUpdate retrieves a campaign and locks its row for the
// duration of the transaction
func (r *CampaignRepository) GetCampaignForUpdate(ctx context.Context, db DBExecutor, id string) (*model.Campaign, error) {
	query := fmt.Sprintf(`SELECT %s FROM campaigns WHERE id = $1 FOR UPDATE`, campaignColumns)

	var campaign model.Campaign
	err := db.GetContext(ctx, &campaign, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, model.NewNotFoundError(fmt.Sprintf("campaign %s not found", id))
		}
		return nil, fmt.Errorf("failed to lock campaign: %w", err)
	}

	return &campaign, nil
}

// IncrementSold adds amount to the campaign's sold counter
func (r *CampaignRepository) IncrementSold(ctx context.Context, db DBExecutor, id string, amount int64) error {
	result, err := db.ExecContext(ctx,
		`UPDATE campaigns SET sold = sold + $1 WHERE id = $2`, amount, id)
	if err != nil {
		return fmt.Errorf("failed to increment sold: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewNotFoundError(fmt.Sprintf("campaign %s not found", id))
	}

	return nil
}

// SetPaused toggles the pause flag on a campaign
func (r *CampaignRepository) SetPaused(ctx context.Context, db DBExecutor, id string, paused bool) error {
	result, err := db.ExecContext(ctx,
		`UPDATE campaigns SET paused = $1 WHERE id = $2`, paused, id)
	if err != nil {
		return fmt.Errorf("failed to set paused: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewNotFoundError(fmt.Sprintf("campaign %s not found", id))
	}

	return nil
}

// CampaignsByCreator retrieves all campaigns created by the address
func (r *CampaignRepository) CampaignsByCreator(ctx context.Context, db DBExecutor, creator string) ([]model.Campaign, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM campaigns WHERE LOWER(creator) = LOWER($1) ORDER BY seq ASC`,
		campaignColumns)

	var campaigns []model.Campaign
	if err := db.SelectContext(ctx, &campaigns, query, creator); err != nil {
		return nil, fmt.Errorf("failed to get creator campaigns: %w", err)
	}

	return campaigns, nil
}

// ListCampaigns filters, sorts and paginates the campaign list. The seq
// column carries insertion order and breaks sort-key ties.
func (r *CampaignRepository) ListCampaigns(ctx context.Context, db DBExecutor, filter model.CampaignFilter, sortOpts model.SortOptions, page, pageSize int) (*model.CampaignPage, error) {
	if page < 1 || pageSize < 1 {
		return nil, model.NewValidationError("page and page size must be at least 1")
	}

	where, args := buildCampaignFilter(filter)

	countQuery := `SELECT COUNT(*) FROM campaigns` + where
	var total int
	if err := db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, fmt.Errorf("failed to count campaigns: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM campaigns%s ORDER BY %s LIMIT %d OFFSET %d`,
		campaignColumns, where, buildCampaignOrder(sortOpts), pageSize, (page-1)*pageSize)

	var campaigns []model.Campaign
	if err := db.SelectContext(ctx, &campaigns, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}

	return &model.CampaignPage{
		Items:    campaigns,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		HasMore:  page*pageSize < total,
	}, nil
}

// buildCampaignFilter renders the filter as a WHERE clause with
// positional arguments
func buildCampaignFilter(filter model.CampaignFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	next := func(arg interface{}) string {
		args = append(args, arg)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.Kinds) > 0 {
		placeholders := make([]string, len(filter.Kinds))
		for i, kind := range filter.Kinds {
			placeholders[i] = next(string(kind))
		}
		clauses = append(clauses, fmt.Sprintf("kind IN (%s)", strings.Join(placeholders, ", ")))
	}

	if len(filter.Statuses) > 0 {
		// status is derived, not stored: translate each requested state
		// back to the columns that produce it
		var statusClauses []string
		for _, status := range filter.Statuses {
			switch status {
			case model.StatusPaused:
				statusClauses = append(statusClauses, "paused")
			case model.StatusSoldOut:
				statusClauses = append(statusClauses, "(NOT paused AND sold >= supply)")
			case model.StatusActive:
				statusClauses = append(statusClauses, "(NOT paused AND sold < supply)")
			}
		}
		if len(statusClauses) > 0 {
			clauses = append(clauses, "("+strings.Join(statusClauses, " OR ")+")")
		}
	}

	if filter.Creator != "" {
		addr := next(filter.Creator)
		handle := next("%" + escapeLike(filter.Creator) + "%")
		clauses = append(clauses, fmt.Sprintf(
			`(LOWER(creator) = LOWER(%s) OR creator_handle ILIKE %s ESCAPE '\')`, addr, handle))
	}

	if filter.Search != "" {
		pattern := next("%" + escapeLike(filter.Search) + "%")
		clauses = append(clauses, fmt.Sprintf(
			`(creator_handle ILIKE %[1]s ESCAPE '\' OR name ILIKE %[1]s ESCAPE '\' OR description ILIKE %[1]s ESCAPE '\')`, pattern))
	}

	if filter.PriceMin != nil {
		clauses = append(clauses, fmt.Sprintf("base_price >= %s", next(*filter.PriceMin)))
	}
	if filter.PriceMax != nil {
		clauses = append(clauses, fmt.Sprintf("base_price <= %s", next(*filter.PriceMax)))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// escapeLike neutralizes LIKE metacharacters so user text matches as a
// literal substring, the same way the memory backend matches it
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func buildCampaignOrder(opts model.SortOptions) string {
	column := "seq"
	switch opts.Field {
	case model.SortByCreatedAt:
		column = "created_at"
	case model.SortByPrice:
		column = "base_price"
	case model.SortBySold:
		column = "sold"
	case model.SortByRemaining:
		column = "(supply - sold)"
	}

	direction := "ASC"
	if opts.Direction == model.SortDesc {
		direction = "DESC"
	}

	if column == "seq" {
		return "seq " + direction
	}
	return fmt.Sprintf("%s %s, seq ASC", column, direction)
}
