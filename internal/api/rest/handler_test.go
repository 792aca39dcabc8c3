package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cellinlab/ipipo/internal/model"
	"github.com/cellinlab/ipipo/internal/service"
	"github.com/cellinlab/ipipo/internal/store"
)

const testCreator = "0x742d35Cc5Ba1e2e5b9bC0e0ed50E38A8e9b9e999"

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.NewMemoryStore()
	accounting := service.NewAccountingService(st, []string{"x.com", "twitter.com"}, zap.NewNop())

	router := gin.New()
	handler := NewHandler(accounting, nil, 12, 100, zap.NewNop())
	SetupRoutes(router, handler)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path, wallet string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if wallet != "" {
		req.Header.Set("X-Wallet-Address", wallet)
	}

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func createCampaign(t *testing.T, router *gin.Engine, basePrice, supply int64) model.Campaign {
	t.Helper()
	recorder := doJSON(t, router, http.MethodPost, "/api/v1/campaigns", testCreator, gin.H{
		"creator_handle": "@cellinlab",
		"kind":           "tweet",
		"name":           "Sponsored tweet",
		"description":    "One sponsored tweet about your product",
		"base_price":     basePrice,
		"supply":         supply,
	})
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())

	var campaign model.Campaign
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &campaign))
	return campaign
}

func errorCode(t *testing.T, recorder *httptest.ResponseRecorder) model.ErrorCode {
	t.Helper()
	var response struct {
		Error struct {
			Code model.ErrorCode `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	return response.Error.Code
}

func TestHealthEndpoints(t *testing.T) {
	router := newTestRouter(t)

	recorder := doJSON(t, router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)

	recorder = doJSON(t, router, http.MethodGet, "/health/db", "", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "memory")
}

func TestCreateCampaignRequiresWallet(t *testing.T) {
	router := newTestRouter(t)

	recorder := doJSON(t, router, http.MethodPost, "/api/v1/campaigns", "", gin.H{
		"creator_handle": "@cellinlab",
		"kind":           "tweet",
		"name":           "n",
		"description":    "d",
		"base_price":     100,
		"supply":         10,
	})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestPurchaseFlow(t *testing.T) {
	router := newTestRouter(t)
	campaign := createCampaign(t, router, 100, 10)

	recorder := doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/campaigns/%s/purchase", campaign.ID), "0xbuyer", gin.H{"amount": 7})
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())

	var purchase model.Purchase
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &purchase))
	assert.Equal(t, int64(700), purchase.TotalPaid)

	// over-capacity purchase maps to 409 with the capacity code
	recorder = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/campaigns/%s/purchase", campaign.ID), "0xbuyer", gin.H{"amount": 4})
	assert.Equal(t, http.StatusConflict, recorder.Code)
	assert.Equal(t, model.ErrCodeCapacityExceeded, errorCode(t, recorder))

	// sold counter unchanged after the failed purchase
	recorder = doJSON(t, router, http.MethodGet, "/api/v1/campaigns/"+campaign.ID, "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	var fetched model.Campaign
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &fetched))
	assert.Equal(t, int64(7), fetched.Sold)
}

func TestPurchaseUnknownCampaign(t *testing.T) {
	router := newTestRouter(t)

	recorder := doJSON(t, router, http.MethodPost,
		"/api/v1/campaigns/nope/purchase", "0xbuyer", gin.H{"amount": 1})
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assert.Equal(t, model.ErrCodeNotFound, errorCode(t, recorder))
}

func TestPauseAuthorizationOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	campaign := createCampaign(t, router, 100, 10)

	// non-creator is rejected
	recorder := doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/campaigns/%s/pause", campaign.ID), "0xintruder", gin.H{"paused": true})
	assert.Equal(t, http.StatusForbidden, recorder.Code)
	assert.Equal(t, model.ErrCodeUnauthorized, errorCode(t, recorder))

	// creator pauses, purchase now conflicts
	recorder = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/campaigns/%s/pause", campaign.ID), testCreator, gin.H{"paused": true})
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/campaigns/%s/purchase", campaign.ID), "0xbuyer", gin.H{"amount": 1})
	assert.Equal(t, http.StatusConflict, recorder.Code)
	assert.Equal(t, model.ErrCodePaused, errorCode(t, recorder))
}

func TestRedeemFlow(t *testing.T) {
	router := newTestRouter(t)
	campaign := createCampaign(t, router, 100, 10)

	recorder := doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/campaigns/%s/purchase", campaign.ID), "0xbuyer", gin.H{"amount": 1})
	require.Equal(t, http.StatusCreated, recorder.Code)

	// bad proof host rejected
	recorder = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/campaigns/%s/redeem", campaign.ID), "0xbuyer",
		gin.H{"proof_url": "https://example.com/post"})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, model.ErrCodeInvalidProof, errorCode(t, recorder))

	// valid proof redeems
	recorder = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/campaigns/%s/redeem", campaign.ID), "0xbuyer",
		gin.H{"proof_url": "https://x.com/buyer/status/1"})
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())

	var redemption model.Redemption
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &redemption))
	assert.Equal(t, model.RedemptionCompleted, redemption.Status)

	// second redeem conflicts on empty balance
	recorder = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/campaigns/%s/redeem", campaign.ID), "0xbuyer",
		gin.H{"proof_url": "https://x.com/buyer/status/2"})
	assert.Equal(t, http.StatusConflict, recorder.Code)
	assert.Equal(t, model.ErrCodeInsufficientBalance, errorCode(t, recorder))
}

func TestErrorEnvelopeMessage(t *testing.T) {
	router := newTestRouter(t)
	campaign := createCampaign(t, router, 100, 1)

	recorder := doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/campaigns/%s/purchase", campaign.ID), "0xbuyer", gin.H{"amount": 5})
	require.Equal(t, http.StatusConflict, recorder.Code)

	var response struct {
		Error struct {
			Code    model.ErrorCode `json:"code"`
			Message string          `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.Equal(t, model.ErrCodeCapacityExceeded, response.Error.Code)

	// the code lives in its own field; the message must not repeat it
	assert.NotEmpty(t, response.Error.Message)
	assert.NotContains(t, response.Error.Message, string(model.ErrCodeCapacityExceeded))
}

func TestListCampaignsQuery(t *testing.T) {
	router := newTestRouter(t)
	createCampaign(t, router, 300, 10)
	createCampaign(t, router, 100, 10)
	createCampaign(t, router, 200, 10)

	recorder := doJSON(t, router, http.MethodGet,
		"/api/v1/campaigns?kind=tweet&sort=price&order=asc&page=1&page_size=2", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	var page model.CampaignPage
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &page))
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)
	assert.LessOrEqual(t, page.Items[0].BasePrice, page.Items[1].BasePrice)

	// invalid sort field is a validation error
	recorder = doJSON(t, router, http.MethodGet, "/api/v1/campaigns?sort=alphabetical", "", nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestMyVouchers(t *testing.T) {
	router := newTestRouter(t)
	campaign := createCampaign(t, router, 100, 10)

	recorder := doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/campaigns/%s/purchase", campaign.ID), "0xbuyer", gin.H{"amount": 3})
	require.Equal(t, http.StatusCreated, recorder.Code)

	recorder = doJSON(t, router, http.MethodGet, "/api/v1/vouchers", "0xbuyer", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var response struct {
		Items []model.Voucher   `json:"items"`
		Stats model.HolderStats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	require.Len(t, response.Items, 1)
	assert.Equal(t, int64(3), response.Items[0].Balance)
	assert.Equal(t, int64(3), response.Stats.TotalHeld)
	assert.Equal(t, int64(300), response.Stats.HoldingValue)

	// identity header is mandatory
	recorder = doJSON(t, router, http.MethodGet, "/api/v1/vouchers", "", nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestCreatorEndpoints(t *testing.T) {
	router := newTestRouter(t)
	campaign := createCampaign(t, router, 100, 10)

	recorder := doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/campaigns/%s/purchase", campaign.ID), "0xbuyer", gin.H{"amount": 4})
	require.Equal(t, http.StatusCreated, recorder.Code)

	recorder = doJSON(t, router, http.MethodGet, "/api/v1/creators/"+testCreator+"/campaigns", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	var listResponse struct {
		Items []model.Campaign `json:"items"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &listResponse))
	require.Len(t, listResponse.Items, 1)
	assert.Equal(t, int64(4), listResponse.Items[0].Sold)

	recorder = doJSON(t, router, http.MethodGet, "/api/v1/creators/"+testCreator+"/stats", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	var stats model.CreatorStats
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalCampaigns)
	assert.Equal(t, int64(400), stats.TotalEarnings)
}
