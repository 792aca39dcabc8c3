package rest

import (
	"context"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cellinlab/ipipo/internal/model"
	"github.com/cellinlab/ipipo/internal/service"
)

// walletHeader carries the caller's address, set by the wallet gateway
// in front of this service. The core treats it as an opaque
// authenticated identity.
const walletHeader = "X-Wallet-Address"

// Handler defines the REST API handlers
type Handler interface {
	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)

	// HealthDB returns the store's health
	// GET /health/db
	HealthDB(c *gin.Context)

	// ListCampaigns lists campaigns with filters, sorting and pagination
	// GET /api/v1/campaigns?kind=<kind>&status=<status>&creator=<addr-or-handle>&search=<text>&price_min=<n>&price_max=<n>&sort=<field>&order=<asc|desc>&page=<n>&page_size=<n>
	ListCampaigns(c *gin.Context)

	// GetCampaign returns one campaign
	// GET /api/v1/campaigns/:id
	GetCampaign(c *gin.Context)

	// CreateCampaign mints a new campaign for the caller
	// POST /api/v1/campaigns
	CreateCampaign(c *gin.Context)

	// Purchase buys voucher units on a campaign
	// POST /api/v1/campaigns/:id/purchase
	Purchase(c *gin.Context)

	// Redeem consumes one voucher unit against a proof link
	// POST /api/v1/campaigns/:id/redeem
	Redeem(c *gin.Context)

	// SetPaused pauses or resumes a campaign (creator only)
	// POST /api/v1/campaigns/:id/pause
	SetPaused(c *gin.Context)

	// CreatorCampaigns lists all campaigns by a creator address
	// GET /api/v1/creators/:address/campaigns
	CreatorCampaigns(c *gin.Context)

	// CreatorStats returns earnings/spend aggregates for an address
	// GET /api/v1/creators/:address/stats
	CreatorStats(c *gin.Context)

	// MyVouchers returns the caller's vouchers and holding stats
	// GET /api/v1/vouchers
	MyVouchers(c *gin.Context)
}

// PingFunc probes the backing store; nil means there is no external
// store to probe (memory backend).
type PingFunc func(ctx context.Context) error

// handler implements the Handler interface
type handler struct {
	accounting      *service.AccountingService
	pingStore       PingFunc
	defaultPageSize int
	maxPageSize     int
	log             *zap.Logger
}

// NewHandler creates a new REST API handler
func NewHandler(accounting *service.AccountingService, pingStore PingFunc, defaultPageSize, maxPageSize int, log *zap.Logger) Handler {
	return &handler{
		accounting:      accounting,
		pingStore:       pingStore,
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
		log:             log,
	}
}

func (h *handler) HealthCheck(c *gin.Context) {
	hostname, _ := os.Hostname()
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"service":  "ipipo",
		"hostname": hostname,
	})
}

func (h *handler) HealthDB(c *gin.Context) {
	if h.pingStore == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "store": "memory"})
		return
	}
	if err := h.pingStore(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "message": "postgres unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "store": "postgres"})
}

func (h *handler) ListCampaigns(c *gin.Context) {
	filter, sortOpts, page, pageSize, err := ParseListCampaignsQuery(c, h.defaultPageSize, h.maxPageSize)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	result, err := h.accounting.ListCampaigns(c.Request.Context(), filter, sortOpts, page, pageSize)
	if err != nil {
		respondDomainError(c, err, h.log)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *handler) GetCampaign(c *gin.Context) {
	campaign, err := h.accounting.GetCampaign(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

// createCampaignRequest is the POST /campaigns body
type createCampaignRequest struct {
	CreatorHandle string `json:"creator_handle"`
	Kind          string `json:"kind"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	ExternalURL   string `json:"external_url"`
	Image         string `json:"image"`
	ShowcaseURL   string `json:"showcase_url"`
	BasePrice     int64  `json:"base_price"`
	PriceStep     int64  `json:"price_step"`
	Supply        int64  `json:"supply"`
}

func (h *handler) CreateCampaign(c *gin.Context) {
	caller := c.GetHeader(walletHeader)
	if caller == "" {
		respondValidationError(c, walletHeader+" header is required")
		return
	}

	var req createCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	campaign, err := h.accounting.CreateCampaign(c.Request.Context(), service.CreateCampaignInput{
		Creator:       caller,
		CreatorHandle: req.CreatorHandle,
		Kind:          model.CampaignKind(req.Kind),
		Name:          req.Name,
		Description:   req.Description,
		ExternalURL:   req.ExternalURL,
		Image:         req.Image,
		ShowcaseURL:   req.ShowcaseURL,
		BasePrice:     req.BasePrice,
		PriceStep:     req.PriceStep,
		Supply:        req.Supply,
	})
	if err != nil {
		respondDomainError(c, err, h.log)
		return
	}

	c.JSON(http.StatusCreated, campaign)
}

// purchaseRequest is the POST /campaigns/:id/purchase body
type purchaseRequest struct {
	Amount int64 `json:"amount"`
}

func (h *handler) Purchase(c *gin.Context) {
	caller := c.GetHeader(walletHeader)
	if caller == "" {
		respondValidationError(c, walletHeader+" header is required")
		return
	}

	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	purchase, err := h.accounting.Purchase(c.Request.Context(), c.Param("id"), caller, req.Amount)
	if err != nil {
		respondDomainError(c, err, h.log)
		return
	}

	c.JSON(http.StatusCreated, purchase)
}

// redeemRequest is the POST /campaigns/:id/redeem body
type redeemRequest struct {
	ProofURL string `json:"proof_url"`
}

func (h *handler) Redeem(c *gin.Context) {
	caller := c.GetHeader(walletHeader)
	if caller == "" {
		respondValidationError(c, walletHeader+" header is required")
		return
	}

	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	redemption, err := h.accounting.Redeem(c.Request.Context(), c.Param("id"), caller, req.ProofURL)
	if err != nil {
		respondDomainError(c, err, h.log)
		return
	}

	c.JSON(http.StatusCreated, redemption)
}

// pauseRequest is the POST /campaigns/:id/pause body
type pauseRequest struct {
	Paused *bool `json:"paused"`
}

func (h *handler) SetPaused(c *gin.Context) {
	caller := c.GetHeader(walletHeader)
	if caller == "" {
		respondValidationError(c, walletHeader+" header is required")
		return
	}

	var req pauseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}
	if req.Paused == nil {
		respondValidationError(c, "paused is required")
		return
	}

	if err := h.accounting.SetPaused(c.Request.Context(), c.Param("id"), caller, *req.Paused); err != nil {
		respondDomainError(c, err, h.log)
		return
	}

	c.JSON(http.StatusOK, gin.H{"paused": *req.Paused})
}

func (h *handler) CreatorCampaigns(c *gin.Context) {
	campaigns, err := h.accounting.CampaignsByCreator(c.Request.Context(), c.Param("address"))
	if err != nil {
		respondDomainError(c, err, h.log)
		return
	}
	if campaigns == nil {
		campaigns = []model.Campaign{}
	}
	c.JSON(http.StatusOK, gin.H{"items": campaigns})
}

func (h *handler) CreatorStats(c *gin.Context) {
	stats, err := h.accounting.CreatorStats(c.Request.Context(), c.Param("address"))
	if err != nil {
		respondDomainError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *handler) MyVouchers(c *gin.Context) {
	caller := c.GetHeader(walletHeader)
	if caller == "" {
		respondValidationError(c, walletHeader+" header is required")
		return
	}

	vouchers, err := h.accounting.VouchersByHolder(c.Request.Context(), caller)
	if err != nil {
		respondDomainError(c, err, h.log)
		return
	}
	stats, err := h.accounting.HolderStats(c.Request.Context(), caller)
	if err != nil {
		respondDomainError(c, err, h.log)
		return
	}
	if vouchers == nil {
		vouchers = []model.Voucher{}
	}

	c.JSON(http.StatusOK, gin.H{
		"items": vouchers,
		"stats": stats,
	})
}
