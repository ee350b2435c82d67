package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

type JobKind string

const (
	JobKindTransformation JobKind = "transformation"
	JobKindTranscription  JobKind = "transcription"
	JobKindVideoShort     JobKind = "video_short"
)

func (k JobKind) Valid() bool {
	switch k {
	case JobKindTransformation, JobKindTranscription, JobKindVideoShort:
		return true
	}
	return false
}

// RefType is the ledger reference type a job of this kind is billed under.
func (k JobKind) RefType() RefType {
	return RefType(k)
}

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

const (
	MaxTextLength         = 20_000
	MaxIdempotencyKeyLen  = 128
	MinVideoShortDuration = 15
	MaxVideoShortDuration = 180
)

type Job struct {
	ID             string     `json:"id"`
	OwnerID        string     `json:"ownerId"`
	Kind           JobKind    `json:"kind"`
	Params         JobParams  `json:"params"`
	Output         JobOutput  `json:"outputs"`
	Status         JobStatus  `json:"status"`
	Error          string     `json:"error,omitempty"`
	IdempotencyKey string     `json:"idempotencyKey,omitempty"`
	Cost           *int64     `json:"cost,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	FinishedAt     *time.Time `json:"finishedAt,omitempty"`
}

// CreateJobRequest is the input of JobService.Create.
type CreateJobRequest struct {
	OwnerID        string
	Kind           JobKind
	Params         json.RawMessage
	IdempotencyKey string
}

func (r CreateJobRequest) Validate() error {
	if strings.TrimSpace(r.OwnerID) == "" {
		return NewValidationError("ownerId", "is required")
	}
	if !r.Kind.Valid() {
		return NewValidationError("kind", "unknown kind %q", r.Kind)
	}
	if len(r.IdempotencyKey) > MaxIdempotencyKeyLen {
		return NewValidationError("idempotencyKey", "must not exceed %d characters", MaxIdempotencyKeyLen)
	}
	return nil
}

// JobParams is the validated input of one job kind.
type JobParams interface {
	Kind() JobKind
	Validate() error
}

// JobOutput is the result of one job kind.
type JobOutput interface {
	Kind() JobKind
}

type TransformationParams struct {
	Text    string `json:"text"`
	Persona string `json:"persona,omitempty"`
	Tone    string `json:"tone,omitempty"`
	Format  string `json:"format,omitempty"`
}

func (TransformationParams) Kind() JobKind { return JobKindTransformation }

func (p TransformationParams) Validate() error {
	if strings.TrimSpace(p.Text) == "" {
		return NewValidationError("params.text", "is required")
	}
	if utf8.RuneCountInString(p.Text) > MaxTextLength {
		return NewValidationError("params.text", "must not exceed %d characters", MaxTextLength)
	}
	switch p.Format {
	case "", "text", "markdown", "bullets":
	default:
		return NewValidationError("params.format", "unsupported format %q", p.Format)
	}
	return nil
}

type TranscriptionParams struct {
	AssetURL string `json:"assetUrl"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Language string `json:"language,omitempty"`
}

func (TranscriptionParams) Kind() JobKind { return JobKindTranscription }

func (p TranscriptionParams) Validate() error {
	if p.AssetURL == "" {
		return NewValidationError("params.assetUrl", "is required")
	}
	u, err := url.Parse(p.AssetURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return NewValidationError("params.assetUrl", "must be an absolute http(s) url")
	}
	if p.Language != "" && (len(p.Language) < 2 || len(p.Language) > 5) {
		return NewValidationError("params.language", "must be an ISO-639 code")
	}
	return nil
}

type VideoShortParams struct {
	Transcript      string `json:"transcript"`
	Persona         string `json:"persona,omitempty"`
	DurationSeconds int    `json:"durationSeconds"`
	AspectRatio     string `json:"aspectRatio,omitempty"`
}

func (VideoShortParams) Kind() JobKind { return JobKindVideoShort }

func (p VideoShortParams) Validate() error {
	if strings.TrimSpace(p.Transcript) == "" {
		return NewValidationError("params.transcript", "is required")
	}
	if utf8.RuneCountInString(p.Transcript) > MaxTextLength {
		return NewValidationError("params.transcript", "must not exceed %d characters", MaxTextLength)
	}
	if p.DurationSeconds < MinVideoShortDuration || p.DurationSeconds > MaxVideoShortDuration {
		return NewValidationError("params.durationSeconds", "must be between %d and %d", MinVideoShortDuration, MaxVideoShortDuration)
	}
	switch p.AspectRatio {
	case "", "9:16", "1:1", "16:9":
	default:
		return NewValidationError("params.aspectRatio", "unsupported aspect ratio %q", p.AspectRatio)
	}
	return nil
}

type TransformationOutput struct {
	Text             string `json:"text"`
	Model            string `json:"model,omitempty"`
	PromptTokens     int    `json:"promptTokens,omitempty"`
	CompletionTokens int    `json:"completionTokens,omitempty"`
}

func (TransformationOutput) Kind() JobKind { return JobKindTransformation }

type TranscriptionOutput struct {
	Text            string  `json:"text"`
	Language        string  `json:"language,omitempty"`
	DurationSeconds float64 `json:"durationSeconds"`
	MimeType        string  `json:"mimeType"`
	Transcoded      bool    `json:"transcoded"`
}

func (TranscriptionOutput) Kind() JobKind { return JobKindTranscription }

type VideoShortOutput struct {
	Title           string   `json:"title"`
	Hook            string   `json:"hook"`
	Script          string   `json:"script"`
	Captions        []string `json:"captions"`
	DurationSeconds int      `json:"durationSeconds"`
	AspectRatio     string   `json:"aspectRatio"`
}

func (VideoShortOutput) Kind() JobKind { return JobKindVideoShort }

// ParseParams strictly decodes raw into the params type of kind and
// validates it. Unknown fields are rejected.
func ParseParams(kind JobKind, raw json.RawMessage) (JobParams, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, NewValidationError("params", "is required")
	}
	var p JobParams
	switch kind {
	case JobKindTransformation:
		var v TransformationParams
		if err := decodeStrict(raw, &v); err != nil {
			return nil, err
		}
		p = v
	case JobKindTranscription:
		var v TranscriptionParams
		if err := decodeStrict(raw, &v); err != nil {
			return nil, err
		}
		p = v
	case JobKindVideoShort:
		var v VideoShortParams
		if err := decodeStrict(raw, &v); err != nil {
			return nil, err
		}
		p = v
	default:
		return nil, NewValidationError("kind", "unknown kind %q", kind)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// ParseOutput decodes a stored output of kind. A nil or empty raw value
// yields a nil output.
func ParseOutput(kind JobKind, raw []byte) (JobOutput, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	switch kind {
	case JobKindTransformation:
		var v TransformationOutput
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case JobKindTranscription:
		var v TranscriptionOutput
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case JobKindVideoShort:
		var v VideoShortOutput
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil, fmt.Errorf("unknown job kind %q", kind)
}

func decodeStrict(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return NewValidationError("params", "%s", err.Error())
	}
	if dec.More() {
		return NewValidationError("params", "trailing data after object")
	}
	return nil
}

// JobDispatch is the queue payload that hands a job to the processor.
type JobDispatch struct {
	JobID   string  `json:"job_id"`
	OwnerID string  `json:"owner_id"`
	Kind    JobKind `json:"kind"`
}
