package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type chatMessage struct {
	Role    string `json:"role" binding:"required"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model" binding:"required"`
	Messages       []chatMessage `json:"messages" binding:"required,min=1"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type transcriptionResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

type HealthResponse struct {
	Status      string    `json:"status"`
	ProviderID  string    `json:"provider_id"`
	Timestamp   time.Time `json:"timestamp"`
	FailureRate float64   `json:"failure_rate"`
}

// MockProvider simulates an OpenAI-compatible upstream with configurable
// latency and failures.
type MockProvider struct {
	mu          sync.Mutex
	failureRate float64
	minDelay    time.Duration
	maxDelay    time.Duration
	providerID  string
	rng         *rand.Rand
	assets      map[string][]byte
}

func NewMockProvider(failureRate float64, minDelay, maxDelay time.Duration) *MockProvider {
	return &MockProvider{
		failureRate: failureRate,
		minDelay:    minDelay,
		maxDelay:    maxDelay,
		providerID:  "MOCK_PROVIDER_" + uuid.New().String()[:8],
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		assets:      make(map[string][]byte),
	}
}

func (m *MockProvider) randomDelay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	delta := m.maxDelay - m.minDelay
	if delta <= 0 {
		return m.minDelay
	}
	return m.minDelay + time.Duration(m.rng.Int63n(int64(delta)))
}

// maybeFail writes a simulated upstream error and reports whether it did.
func (m *MockProvider) maybeFail(c *gin.Context) bool {
	m.mu.Lock()
	fail := m.rng.Float64() < m.failureRate
	rateLimited := m.rng.Intn(2) == 0
	m.mu.Unlock()
	if !fail {
		return false
	}
	if rateLimited {
		c.Header("Retry-After", "1")
		c.JSON(http.StatusTooManyRequests, gin.H{"error": gin.H{"message": "rate limit reached", "type": "rate_limit"}})
	} else {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": gin.H{"message": "engine overloaded", "type": "server_error"}})
	}
	log.Warn().Str("path", c.Request.URL.Path).Int("status", c.Writer.Status()).Msg("simulated upstream failure")
	return true
}

type Handler struct {
	provider *MockProvider
}

func NewHandler(provider *MockProvider) *Handler {
	return &Handler{provider: provider}
}

func (h *Handler) ChatCompletions(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error(), "type": "invalid_request_error"}})
		return
	}
	time.Sleep(h.provider.randomDelay())
	if h.provider.maybeFail(c) {
		return
	}

	user := req.Messages[len(req.Messages)-1].Content
	content := "Rewritten: " + strings.TrimSpace(user)
	if req.ResponseFormat != nil && req.ResponseFormat.Type == "json_object" {
		raw, _ := json.Marshal(gin.H{
			"title":    "Mock short",
			"hook":     "Wait for it",
			"script":   firstWords(user, 40),
			"captions": []string{"Opening", "Closing"},
		})
		content = string(raw)
	}

	log.Info().Str("model", req.Model).Int("messages", len(req.Messages)).Msg("chat completion")
	c.JSON(http.StatusOK, chatResponse{
		ID:    "chatcmpl-" + uuid.NewString(),
		Model: req.Model,
		Choices: []chatChoice{{
			Message:      chatMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: chatUsage{PromptTokens: len(strings.Fields(user)), CompletionTokens: len(strings.Fields(content))},
	})
}

func (h *Handler) Transcriptions(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "file is required", "type": "invalid_request_error"}})
		return
	}
	if c.PostForm("model") == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "model is required", "type": "invalid_request_error"}})
		return
	}
	if ct := file.Header.Get("Content-Type"); strings.Contains(ct, "webm") || strings.Contains(ct, "ogg") {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "unsupported file format " + ct, "type": "invalid_request_error"}})
		return
	}
	time.Sleep(h.provider.randomDelay())
	if h.provider.maybeFail(c) {
		return
	}

	lang := c.PostForm("language")
	if lang == "" {
		lang = "english"
	}
	// 32 kB per second of 16kHz mono PCM
	duration := float64(file.Size) / 32000
	log.Info().Str("filename", file.Filename).Int64("bytes", file.Size).Msg("transcription")
	c.JSON(http.StatusOK, transcriptionResponse{
		Text:     fmt.Sprintf("mock transcript of %s", file.Filename),
		Language: lang,
		Duration: duration,
	})
}

func (h *Handler) PutAsset(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil || len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body is required"})
		return
	}
	h.provider.mu.Lock()
	h.provider.assets[c.Param("name")] = data
	h.provider.mu.Unlock()
	c.Status(http.StatusCreated)
}

func (h *Handler) GetAsset(c *gin.Context) {
	h.provider.mu.Lock()
	data, ok := h.provider.assets[c.Param("name")]
	h.provider.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "asset not found"})
		return
	}
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	h.provider.mu.Lock()
	rate := h.provider.failureRate
	h.provider.mu.Unlock()
	c.JSON(http.StatusOK, HealthResponse{
		Status:      "healthy",
		ProviderID:  h.provider.providerID,
		Timestamp:   time.Now(),
		FailureRate: rate,
	})
}

// UpdateConfig changes the failure rate at runtime.
func (h *Handler) UpdateConfig(c *gin.Context) {
	var config struct {
		FailureRate *float64 `json:"failure_rate"`
	}
	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	h.provider.mu.Lock()
	if config.FailureRate != nil && *config.FailureRate >= 0 && *config.FailureRate <= 1.0 {
		h.provider.failureRate = *config.FailureRate
		log.Info().Float64("rate", *config.FailureRate).Msg("Updated failure rate")
	}
	rate := h.provider.failureRate
	h.provider.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"message": "Configuration updated", "failure_rate": rate})
}

func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request processed")
	})

	v1 := router.Group("/v1")
	{
		v1.POST("/chat/completions", handler.ChatCompletions)
		v1.POST("/audio/transcriptions", handler.Transcriptions)
		v1.PUT("/config", handler.UpdateConfig)
	}
	router.PUT("/assets/:name", handler.PutAsset)
	router.GET("/assets/:name", handler.GetAsset)
	router.GET("/health", handler.HealthCheck)
	return router
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	port := getEnv("PORT", "8081")
	failureRate := getEnvFloat("FAILURE_RATE", 0)
	minDelay := getEnvDuration("MIN_DELAY", 50*time.Millisecond)
	maxDelay := getEnvDuration("MAX_DELAY", 500*time.Millisecond)

	log.Info().
		Str("port", port).
		Float64("failure_rate", failureRate).
		Dur("min_delay", minDelay).
		Dur("max_delay", maxDelay).
		Msg("Starting mock provider")

	router := SetupRouter(NewHandler(NewMockProvider(failureRate, minDelay, maxDelay)))
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited")
}

func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
