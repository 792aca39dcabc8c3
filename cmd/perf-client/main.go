package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// PerfResult gathers aggregated metrics for the test run.
// Atomic counters are used to avoid lock contention on hot paths.
// LatencySum & P95Latency are in nanoseconds.
//
// P95Latency is maintained via a lightweight reservoir sampler.
type PerfResult struct {
	TotalRequests int64
	SuccessCount  int64
	ErrorCount    int64
	LatencySum    int64
	P95Latency    int64
}

const (
	fixedWorkers   = 50
	fixedRPSTarget = 700
	fixedDuration  = 30 * time.Second
	defaultTimeout = 30 * time.Second
	fixedSupply    = 50000

	creatorAddress = "0x742d35Cc5Ba1e2e5b9bC0e0ed50E38A8e9b9e999"
	walletHeader   = "X-Wallet-Address"
)

func baseURL() string {
	if url := os.Getenv("PERF_BASE_URL"); url != "" {
		return url
	}
	return "http://localhost:8080"
}

func main() {
	rps := fixedRPSTarget
	duration := fixedDuration
	workers := fixedWorkers

	// HTTP client tuned for many concurrent keep-alive connections
	transport := &http.Transport{
		MaxIdleConns:        workers * 4,
		MaxIdleConnsPerHost: workers * 4,
		IdleConnTimeout:     90 * time.Second,
	}
	httpClient := &http.Client{
		Transport: transport,
		Timeout:   defaultTimeout,
	}

	campaignID, err := createCampaign(httpClient, fixedSupply)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create campaign: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("campaign created: %s (supply %d)\n", campaignID, fixedSupply)

	fmt.Println("==========================================")
	fmt.Println("ipipo purchase load test")
	fmt.Println("==========================================")
	fmt.Printf("campaign : %s\n", campaignID)
	fmt.Printf("target   : %d rps for %v, %d workers\n", rps, duration, workers)
	fmt.Println("==========================================")

	burst := rps / workers
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	var result PerfResult
	var wg sync.WaitGroup

	// latencyChan collects latencies for P95 estimation.
	latencyChan := make(chan time.Duration, 4096)
	go trackP95(latencyChan, &result)

	for i := 0; i < workers; i++ {
		buyer := fmt.Sprintf("0x%040x", i+1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if err := limiter.Wait(ctx); err != nil { // context cancelled, exit
					return
				}
				doPurchase(httpClient, campaignID, buyer, &result, latencyChan)
			}
		}()
	}

	start := time.Now()
	<-ctx.Done()

	wg.Wait()
	close(latencyChan)

	totalDur := time.Since(start)

	fmt.Println("==========================================")
	fmt.Println("results")
	fmt.Println("==========================================")
	fmt.Printf("elapsed          : %.2fs\n", totalDur.Seconds())
	fmt.Printf("total requests   : %d\n", result.TotalRequests)
	fmt.Printf("succeeded        : %d\n", result.SuccessCount)
	fmt.Printf("failed           : %d\n", result.ErrorCount)

	actualRPS := float64(result.SuccessCount) / totalDur.Seconds()
	successRate := float64(result.SuccessCount) / float64(result.TotalRequests) * 100

	var avgLatency time.Duration
	if result.SuccessCount > 0 {
		avgLatency = time.Duration(result.LatencySum / result.SuccessCount)
	}

	fmt.Printf("actual rps       : %.2f\n", actualRPS)
	fmt.Printf("success rate     : %.2f%%\n", successRate)
	fmt.Printf("avg latency      : %v\n", avgLatency)
	fmt.Printf("p95 latency      : %v\n", time.Duration(result.P95Latency))
	fmt.Println("==========================================")

	fmt.Println("consistency check")
	fmt.Println("==========================================")
	if err := verifyConsistency(httpClient, campaignID, result.SuccessCount); err != nil {
		fmt.Printf("FAILED: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("sold counter matches successful purchases, no oversell")
	fmt.Println("==========================================")
}

type campaignResponse struct {
	ID     string `json:"id"`
	Supply int64  `json:"supply"`
	Sold   int64  `json:"sold"`
}

// createCampaign creates a fresh capped campaign to purchase against
func createCampaign(httpClient *http.Client, supply int64) (string, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"creator_handle": "perfbot",
		"kind":           "tweet",
		"name":           "load test campaign",
		"description":    "throwaway campaign for purchase load testing",
		"base_price":     100,
		"supply":         supply,
	})

	req, err := http.NewRequest(http.MethodPost, baseURL()+"/api/v1/campaigns", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(walletHeader, creatorAddress)

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("create campaign failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("create campaign: unexpected status %d", resp.StatusCode)
	}

	var campaign campaignResponse
	if err := json.NewDecoder(resp.Body).Decode(&campaign); err != nil {
		return "", err
	}
	if campaign.ID == "" {
		return "", fmt.Errorf("campaign response has no id")
	}
	return campaign.ID, nil
}

// doPurchase performs a single one-unit purchase and collects metrics.
func doPurchase(httpClient *http.Client, campaignID, buyer string, result *PerfResult, latencyChan chan<- time.Duration) {
	body, _ := json.Marshal(map[string]int64{"amount": 1})

	req, err := http.NewRequest(http.MethodPost,
		fmt.Sprintf("%s/api/v1/campaigns/%s/purchase", baseURL(), campaignID), bytes.NewReader(body))
	if err != nil {
		atomic.AddInt64(&result.ErrorCount, 1)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(walletHeader, buyer)

	start := time.Now()
	atomic.AddInt64(&result.TotalRequests, 1)

	resp, err := httpClient.Do(req)
	latency := time.Since(start)

	if err != nil {
		atomic.AddInt64(&result.ErrorCount, 1)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusCreated {
		atomic.AddInt64(&result.SuccessCount, 1)
		atomic.AddInt64(&result.LatencySum, latency.Nanoseconds())
		select {
		case latencyChan <- latency:
		default:
		}
	} else {
		atomic.AddInt64(&result.ErrorCount, 1)
	}
}

// trackP95 maintains a best-effort rolling P95 latency estimation.
func trackP95(latencies <-chan time.Duration, result *PerfResult) {
	const size = 1000
	buf := make([]int64, 0, size)

	for lat := range latencies {
		if len(buf) < size {
			buf = append(buf, lat.Nanoseconds())
		} else {
			// Replace random element (simple reservoir sampling)
			if idx := time.Now().UnixNano() % int64(size); idx < int64(size/10) {
				buf[idx] = lat.Nanoseconds()
			}
		}

		// Update P95 periodically
		if len(buf) >= 100 && len(buf)%100 == 0 {
			copyBuf := make([]int64, len(buf))
			copy(copyBuf, buf)
			quickSort(copyBuf)
			p95Index := int(float64(len(copyBuf)) * 0.95)
			if p95Index >= len(copyBuf) {
				p95Index = len(copyBuf) - 1
			}
			atomic.StoreInt64(&result.P95Latency, copyBuf[p95Index])
		}
	}
}

// quickSort sorts the array in ascending order
func quickSort(arr []int64) {
	if len(arr) < 2 {
		return
	}

	left, right := 0, len(arr)-1
	pivot := len(arr) / 2

	arr[pivot], arr[right] = arr[right], arr[pivot]

	for i := range arr {
		if arr[i] < arr[right] {
			arr[left], arr[i] = arr[i], arr[left]
			left++
		}
	}

	arr[left], arr[right] = arr[right], arr[left]

	quickSort(arr[:left])
	quickSort(arr[left+1:])
}

// verifyConsistency checks the sold counter against the successful
// purchase count and the supply cap
func verifyConsistency(httpClient *http.Client, campaignID string, expectedSold int64) error {
	resp, err := httpClient.Get(fmt.Sprintf("%s/api/v1/campaigns/%s", baseURL(), campaignID))
	if err != nil {
		return fmt.Errorf("failed to get campaign: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get campaign: unexpected status %d", resp.StatusCode)
	}

	var campaign campaignResponse
	if err := json.NewDecoder(resp.Body).Decode(&campaign); err != nil {
		return err
	}

	fmt.Printf("campaign         : %s\n", campaignID)
	fmt.Printf("supply           : %d\n", campaign.Supply)
	fmt.Printf("sold (server)    : %d\n", campaign.Sold)
	fmt.Printf("sold (client)    : %d\n", expectedSold)
	fmt.Printf("remaining        : %d\n", campaign.Supply-campaign.Sold)

	if campaign.Sold != expectedSold {
		return fmt.Errorf("sold mismatch: server=%d client=%d diff=%d",
			campaign.Sold, expectedSold, campaign.Sold-expectedSold)
	}
	if campaign.Sold > campaign.Supply {
		return fmt.Errorf("oversell detected: sold=%d > supply=%d", campaign.Sold, campaign.Supply)
	}

	return nil
}
