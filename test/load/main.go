package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type jobPayload struct {
	OwnerID        string         `json:"ownerId"`
	Kind           string         `json:"kind"`
	Params         map[string]any `json:"params"`
	IdempotencyKey string         `json:"idempotencyKey,omitempty"`
}

type paymentPayload struct {
	EventID     string `json:"event_id"`
	Provider    string `json:"provider"`
	Status      string `json:"status"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	PrincipalID string `json:"principal_id"`
}

type LoadTestConfig struct {
	BaseURL           string
	RequestsPerSecond int
	DurationSeconds   int
	ConcurrentWorkers int
	Owners            int
	// SeedAmount is the BRL amount in cents credited to every owner before
	// the run. Zero skips seeding.
	SeedAmount int64
	// ReplayRatio is the share of requests that reuse an earlier
	// idempotency key.
	ReplayRatio float64
}

type Stats struct {
	created       atomic.Int64
	replayed      atomic.Int64
	rejected      atomic.Int64
	errorCount    atomic.Int64
	responseTimes []float64
	mu            sync.Mutex
}

func (s *Stats) addResponseTime(duration float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responseTimes = append(s.responseTimes, duration)
}

func (s *Stats) getResponseTimes() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	times := make([]float64, len(s.responseTimes))
	copy(times, s.responseTimes)
	return times
}

func post(client *http.Client, url string, body any) (int, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func seedOwners(client *http.Client, config LoadTestConfig) error {
	run := time.Now().Unix()
	for i := 0; i < config.Owners; i++ {
		status, err := post(client, config.BaseURL+"/webhooks/payments", paymentPayload{
			EventID:     fmt.Sprintf("load-%d-%d", run, i),
			Provider:    "loadtest",
			Status:      "approved",
			Amount:      config.SeedAmount,
			Currency:    "BRL",
			PrincipalID: ownerID(i),
		})
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("seeding %s returned %d", ownerID(i), status)
		}
	}
	return nil
}

func ownerID(i int) string {
	return fmt.Sprintf("load-user-%d", i)
}

func sendRequest(client *http.Client, config LoadTestConfig, n int64, stats *Stats) {
	key := fmt.Sprintf("load-%d", n)
	if config.ReplayRatio > 0 && n > 0 && float64(n%100) < config.ReplayRatio*100 {
		key = fmt.Sprintf("load-%d", n/2)
	}
	payload := jobPayload{
		OwnerID: ownerID(int(n) % config.Owners),
		Kind:    "transformation",
		Params: map[string]any{
			"text": "Load test request " + strconv.FormatInt(n, 10),
			"tone": "neutral",
		},
		IdempotencyKey: key,
	}

	start := time.Now()
	status, err := post(client, config.BaseURL+"/jobs", payload)
	stats.addResponseTime(time.Since(start).Seconds())
	if err != nil {
		stats.errorCount.Add(1)
		return
	}

	switch status {
	case http.StatusCreated:
		stats.created.Add(1)
	case http.StatusOK:
		stats.replayed.Add(1)
	case http.StatusPaymentRequired, http.StatusTooManyRequests:
		stats.rejected.Add(1)
	default:
		stats.errorCount.Add(1)
	}
}

func worker(client *http.Client, config LoadTestConfig, stats *Stats, jobs <-chan int64, wg *sync.WaitGroup) {
	defer wg.Done()
	for n := range jobs {
		sendRequest(client, config, n, stats)
	}
}

func calculatePercentile(sorted []float64, percentile float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	index := int(float64(len(sorted)) * percentile)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func main() {
	config := LoadTestConfig{
		BaseURL:           strings.TrimRight(getEnvOrDefault("TARGET_URL", "http://localhost:8080/api/v1"), "/"),
		RequestsPerSecond: getEnvIntOrDefault("REQUESTS_PER_SECOND", 500),
		DurationSeconds:   getEnvIntOrDefault("DURATION_SECONDS", 30),
		ConcurrentWorkers: getEnvIntOrDefault("CONCURRENT_WORKERS", 100),
		Owners:            max(getEnvIntOrDefault("OWNERS", 50), 1),
		SeedAmount:        int64(getEnvIntOrDefault("SEED_AMOUNT_CENTS", 100_000)),
		ReplayRatio:       getEnvFloatOrDefault("REPLAY_RATIO", 0.1),
	}

	fmt.Println("Starting load test...")
	fmt.Printf("Target: %s/jobs\n", config.BaseURL)
	fmt.Printf("Total requests: %d\n", config.RequestsPerSecond*config.DurationSeconds)
	fmt.Printf("Target RPS: %d\n", config.RequestsPerSecond)
	fmt.Printf("Concurrent workers: %d\n", config.ConcurrentWorkers)
	fmt.Printf("Owners: %d, replay ratio: %.2f\n", config.Owners, config.ReplayRatio)
	fmt.Println(strings.Repeat("-", 50))

	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        config.ConcurrentWorkers,
			MaxIdleConnsPerHost: config.ConcurrentWorkers,
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: 60 * time.Second,
	}

	if config.SeedAmount > 0 {
		if err := seedOwners(client, config); err != nil {
			fmt.Fprintln(os.Stderr, "seeding failed:", err)
			os.Exit(1)
		}
		fmt.Printf("Seeded %d owners with %d cents each\n", config.Owners, config.SeedAmount)
	}

	stats := &Stats{}
	jobs := make(chan int64, config.RequestsPerSecond)

	var wg sync.WaitGroup
	for i := 0; i < config.ConcurrentWorkers; i++ {
		wg.Add(1)
		go worker(client, config, stats, jobs, &wg)
	}

	startTime := time.Now()
	totalRequests := int64(config.RequestsPerSecond * config.DurationSeconds)
	var sent int64

	for i := 0; i < config.DurationSeconds && sent < totalRequests; i++ {
		batchStart := time.Now()
		for j := 0; j < config.RequestsPerSecond && sent < totalRequests; j++ {
			jobs <- sent
			sent++
		}

		done := stats.created.Load() + stats.replayed.Load() + stats.rejected.Load() + stats.errorCount.Load()
		fmt.Printf("[%ds] Completed: %d | Created: %d | Replayed: %d | Rejected: %d | Errors: %d\n",
			i+1, done, stats.created.Load(), stats.replayed.Load(), stats.rejected.Load(), stats.errorCount.Load())

		if elapsed := time.Since(batchStart); elapsed < time.Second {
			time.Sleep(time.Second - elapsed)
		}
	}

	close(jobs)
	wg.Wait()
	duration := time.Since(startTime).Seconds()

	created := stats.created.Load()
	replayed := stats.replayed.Load()
	rejected := stats.rejected.Load()
	errors := stats.errorCount.Load()
	total := created + replayed + rejected + errors

	times := stats.getResponseTimes()
	sort.Float64s(times)
	var avg float64
	for _, t := range times {
		avg += t
	}
	if len(times) > 0 {
		avg /= float64(len(times))
	}

	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Println("LOAD TEST RESULTS")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Duration: %.2f seconds\n", duration)
	fmt.Printf("Total requests: %d\n", total)
	fmt.Printf("Created (201): %d\n", created)
	fmt.Printf("Replayed (200): %d\n", replayed)
	fmt.Printf("Rejected (402/429): %d\n", rejected)
	fmt.Printf("Failed: %d\n", errors)
	if total > 0 {
		fmt.Printf("Success rate: %.2f%%\n", float64(created+replayed)/float64(total)*100)
	}
	fmt.Printf("\nActual RPS: %.2f\n", float64(total)/duration)
	if len(times) > 0 {
		fmt.Printf("\nResponse times:\n")
		fmt.Printf("  Average: %.2f ms\n", avg*1000)
		fmt.Printf("  P50: %.2f ms\n", calculatePercentile(times, 0.50)*1000)
		fmt.Printf("  P95: %.2f ms\n", calculatePercentile(times, 0.95)*1000)
		fmt.Printf("  P99: %.2f ms\n", calculatePercentile(times, 0.99)*1000)
		fmt.Printf("  Min: %.2f ms\n", times[0]*1000)
		fmt.Printf("  Max: %.2f ms\n", times[len(times)-1]*1000)
	}
}
