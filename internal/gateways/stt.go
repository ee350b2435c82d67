package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	"github.com/valyala/fasthttp"
)

type transcriptionResponse struct {
	Text     *string `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

// STTClient posts audio to an OpenAI-compatible /audio/transcriptions
// endpoint and asks for verbose JSON so duration comes back for pricing.
type STTClient struct {
	*apiClient
	model string
}

func NewSTTClient(cfg Config, modelName string) *STTClient {
	if cfg.Name == "" {
		cfg.Name = "stt"
	}
	return &STTClient{apiClient: newAPIClient(cfg), model: modelName}
}

func (c *STTClient) Transcribe(ctx context.Context, in model.TranscriptionRequest) (*model.Transcript, error) {
	const op = "transcription"

	body, contentType, err := c.form(in)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, op, func(req *fasthttp.Request) {
		req.SetRequestURI(c.cfg.BaseURL + "/audio/transcriptions")
		req.Header.SetMethod(fasthttp.MethodPost)
		req.Header.SetContentType(contentType)
		req.SetBody(body)
	})
	if err != nil {
		return nil, err
	}

	var out transcriptionResponse
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return nil, protocolError(op, "decode response: %v", err)
	}
	if out.Text == nil {
		return nil, protocolError(op, "response has no text field")
	}
	return &model.Transcript{
		Text:            strings.TrimSpace(*out.Text),
		Language:        out.Language,
		DurationSeconds: out.Duration,
	}, nil
}

func (c *STTClient) form(in model.TranscriptionRequest) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	filename := in.Filename
	if filename == "" {
		filename = "audio"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	if in.MimeType != "" {
		header.Set("Content-Type", in.MimeType)
	}
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(in.Audio); err != nil {
		return nil, "", err
	}

	fields := [][2]string{
		{"model", c.model},
		{"response_format", "verbose_json"},
	}
	if in.Language != "" {
		fields = append(fields, [2]string{"language", in.Language})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
