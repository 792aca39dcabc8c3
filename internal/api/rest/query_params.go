package rest

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/cellinlab/ipipo/internal/model"
)

// ListCampaignsQueryParams holds query parameters for GET /campaigns
type ListCampaignsQueryParams struct {
	// Filters; kind and status may repeat
	Kind     []string `form:"kind"`
	Status   []string `form:"status"`
	Creator  string   `form:"creator"`
	Search   string   `form:"search"`
	PriceMin *int64   `form:"price_min"`
	PriceMax *int64   `form:"price_max"`

	// Sorting
	Sort  string `form:"sort,default=created_at"`
	Order string `form:"order,default=desc"`

	// Pagination (1-indexed)
	Page     int `form:"page,default=1"`
	PageSize int `form:"page_size"`
}

// ParseListCampaignsQuery parses and validates the campaign listing
// query. Page size falls back to defaultPageSize and is capped at
// maxPageSize.
func ParseListCampaignsQuery(c *gin.Context, defaultPageSize, maxPageSize int) (model.CampaignFilter, model.SortOptions, int, int, error) {
	var params ListCampaignsQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		return model.CampaignFilter{}, model.SortOptions{}, 0, 0, err
	}

	filter := model.CampaignFilter{
		Creator:  params.Creator,
		Search:   params.Search,
		PriceMin: params.PriceMin,
		PriceMax: params.PriceMax,
	}

	for _, kind := range params.Kind {
		k := model.CampaignKind(kind)
		if !model.ValidKind(k) {
			return filter, model.SortOptions{}, 0, 0, fmt.Errorf("unknown kind %q", kind)
		}
		filter.Kinds = append(filter.Kinds, k)
	}

	for _, status := range params.Status {
		switch s := model.CampaignStatus(status); s {
		case model.StatusActive, model.StatusPaused, model.StatusSoldOut:
			filter.Statuses = append(filter.Statuses, s)
		default:
			return filter, model.SortOptions{}, 0, 0, fmt.Errorf("unknown status %q", status)
		}
	}

	sortOpts := model.SortOptions{
		Field:     model.SortField(params.Sort),
		Direction: model.SortDirection(params.Order),
	}
	if !model.ValidSortField(sortOpts.Field) {
		return filter, sortOpts, 0, 0, fmt.Errorf("unknown sort field %q", params.Sort)
	}
	if sortOpts.Direction != model.SortAsc && sortOpts.Direction != model.SortDesc {
		return filter, sortOpts, 0, 0, fmt.Errorf("order must be asc or desc")
	}

	if params.Page < 1 {
		return filter, sortOpts, 0, 0, fmt.Errorf("page must be at least 1")
	}
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	return filter, sortOpts, params.Page, pageSize, nil
}
