package gateway

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	"github.com/valyala/fasthttp"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// LLMClient talks to an OpenAI-compatible chat completions endpoint.
type LLMClient struct {
	*apiClient
	model string
}

func NewLLMClient(cfg Config, modelName string) *LLMClient {
	if cfg.Name == "" {
		cfg.Name = "llm"
	}
	return &LLMClient{apiClient: newAPIClient(cfg), model: modelName}
}

func (c *LLMClient) Complete(ctx context.Context, in model.CompletionRequest) (*model.Completion, error) {
	const op = "chat completion"

	body := chatRequest{
		Model:       c.model,
		Temperature: in.Temperature,
	}
	if in.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: in.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: in.User})
	if in.JSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, op, func(req *fasthttp.Request) {
		req.SetRequestURI(c.cfg.BaseURL + "/chat/completions")
		req.Header.SetMethod(fasthttp.MethodPost)
		req.Header.SetContentType("application/json")
		req.SetBody(raw)
	})
	if err != nil {
		return nil, err
	}

	var out chatResponse
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return nil, protocolError(op, "decode response: %v", err)
	}
	if len(out.Choices) == 0 {
		return nil, protocolError(op, "response has no choices")
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return nil, protocolError(op, "empty completion (finish_reason %q)", out.Choices[0].FinishReason)
	}

	return &model.Completion{
		Text:             text,
		Model:            out.Model,
		PromptTokens:     out.Usage.PromptTokens,
		CompletionTokens: out.Usage.CompletionTokens,
	}, nil
}
