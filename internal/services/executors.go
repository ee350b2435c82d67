package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
)

type CompletionClient interface {
	Complete(ctx context.Context, req model.CompletionRequest) (*model.Completion, error)
}

type TranscriptionClient interface {
	Transcribe(ctx context.Context, req model.TranscriptionRequest) (*model.Transcript, error)
}

type AssetFetcher interface {
	Fetch(ctx context.Context, url string) (*model.Asset, error)
}

type MediaNormalizer interface {
	Normalize(ctx context.Context, data []byte, declaredMime, filename string) (*model.NormalizedMedia, error)
}

const defaultPersona = "a clear, friendly writer"

// TransformationExecutor rewrites text through the completion endpoint.
type TransformationExecutor struct {
	llm CompletionClient
}

func NewTransformationExecutor(llm CompletionClient) *TransformationExecutor {
	return &TransformationExecutor{llm: llm}
}

func (e *TransformationExecutor) Execute(ctx context.Context, job *model.Job) (model.JobOutput, error) {
	p, ok := job.Params.(model.TransformationParams)
	if !ok {
		return nil, fmt.Errorf("transformation executor got %T params", job.Params)
	}

	var system strings.Builder
	fmt.Fprintf(&system, "You are %s. Rewrite the user's text.", orDefault(p.Persona, defaultPersona))
	if p.Tone != "" {
		fmt.Fprintf(&system, " Use a %s tone.", p.Tone)
	}
	switch p.Format {
	case "markdown":
		system.WriteString(" Answer in Markdown.")
	case "bullets":
		system.WriteString(" Answer as a bullet list.")
	default:
		system.WriteString(" Answer in plain text.")
	}

	res, err := e.llm.Complete(ctx, model.CompletionRequest{
		System:      system.String(),
		User:        p.Text,
		Temperature: 0.7,
	})
	if err != nil {
		return nil, err
	}
	return model.TransformationOutput{
		Text:             strings.TrimSpace(res.Text),
		Model:            res.Model,
		PromptTokens:     res.PromptTokens,
		CompletionTokens: res.CompletionTokens,
	}, nil
}

// TranscriptionExecutor downloads an asset, normalizes it and sends it to
// speech-to-text.
type TranscriptionExecutor struct {
	assets     AssetFetcher
	normalizer MediaNormalizer
	stt        TranscriptionClient
}

func NewTranscriptionExecutor(assets AssetFetcher, normalizer MediaNormalizer, stt TranscriptionClient) *TranscriptionExecutor {
	return &TranscriptionExecutor{assets: assets, normalizer: normalizer, stt: stt}
}

func (e *TranscriptionExecutor) Execute(ctx context.Context, job *model.Job) (model.JobOutput, error) {
	p, ok := job.Params.(model.TranscriptionParams)
	if !ok {
		return nil, fmt.Errorf("transcription executor got %T params", job.Params)
	}

	asset, err := e.assets.Fetch(ctx, p.AssetURL)
	if err != nil {
		return nil, err
	}
	declared := p.MimeType
	if declared == "" {
		declared = asset.ContentType
	}
	media, err := e.normalizer.Normalize(ctx, asset.Data, declared, p.Filename)
	if err != nil {
		return nil, err
	}

	tr, err := e.stt.Transcribe(ctx, model.TranscriptionRequest{
		Audio:    media.Data,
		Filename: media.Filename,
		MimeType: media.MimeType,
		Language: p.Language,
	})
	if err != nil {
		return nil, err
	}
	lang := tr.Language
	if lang == "" {
		lang = p.Language
	}
	return model.TranscriptionOutput{
		Text:            strings.TrimSpace(tr.Text),
		Language:        lang,
		DurationSeconds: tr.DurationSeconds,
		MimeType:        media.MimeType,
		Transcoded:      media.Transcoded,
	}, nil
}

// VideoShortExecutor asks the completion endpoint for a short-form video
// script as a JSON object.
type VideoShortExecutor struct {
	llm CompletionClient
}

func NewVideoShortExecutor(llm CompletionClient) *VideoShortExecutor {
	return &VideoShortExecutor{llm: llm}
}

type videoShortScript struct {
	Title    string   `json:"title"`
	Hook     string   `json:"hook"`
	Script   string   `json:"script"`
	Captions []string `json:"captions"`
}

func (e *VideoShortExecutor) Execute(ctx context.Context, job *model.Job) (model.JobOutput, error) {
	p, ok := job.Params.(model.VideoShortParams)
	if !ok {
		return nil, fmt.Errorf("video short executor got %T params", job.Params)
	}
	aspect := orDefault(p.AspectRatio, "9:16")

	system := fmt.Sprintf(
		"You are %s writing a %d second vertical video in %s. "+
			`Reply with a JSON object {"title": string, "hook": string, "script": string, "captions": [string]}.`,
		orDefault(p.Persona, defaultPersona), p.DurationSeconds, aspect)

	res, err := e.llm.Complete(ctx, model.CompletionRequest{
		System:      system,
		User:        p.Transcript,
		JSON:        true,
		Temperature: 0.8,
	})
	if err != nil {
		return nil, err
	}

	var script videoShortScript
	if err := json.Unmarshal([]byte(stripCodeFence(res.Text)), &script); err != nil {
		return nil, fmt.Errorf("%w: video short script is not JSON: %v", model.ErrProtocol, err)
	}
	if strings.TrimSpace(script.Script) == "" {
		return nil, fmt.Errorf("%w: video short script is empty", model.ErrProtocol)
	}
	if script.Captions == nil {
		script.Captions = []string{}
	}
	return model.VideoShortOutput{
		Title:           script.Title,
		Hook:            script.Hook,
		Script:          script.Script,
		Captions:        script.Captions,
		DurationSeconds: p.DurationSeconds,
		AspectRatio:     aspect,
	}, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
