package fixtures

import (
	"encoding/json"
	"fmt"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
)

const (
	PrincipalFunded    = "user-funded"
	PrincipalEmpty     = "user-empty"
	PrincipalUnlimited = "user-unlimited"
)

func TransformationParams() model.TransformationParams {
	return model.TransformationParams{
		Text:   "Our launch is next week and we need a short teaser.",
		Tone:   "playful",
		Format: "text",
	}
}

func TranscriptionParams(assetURL string) model.TranscriptionParams {
	return model.TranscriptionParams{
		AssetURL: assetURL,
		Filename: "note.webm",
		Language: "pt",
	}
}

func VideoShortParams() model.VideoShortParams {
	return model.VideoShortParams{
		Transcript:      "Three tips for recording clean audio at home.",
		DurationSeconds: 45,
		AspectRatio:     "9:16",
	}
}

// CreateJobRequest builds a request for params, encoding them as the API
// would receive them.
func CreateJobRequest(ownerID string, params model.JobParams, idempotencyKey string) model.CreateJobRequest {
	raw, err := json.Marshal(params)
	if err != nil {
		panic(err)
	}
	return model.CreateJobRequest{
		OwnerID:        ownerID,
		Kind:           params.Kind(),
		Params:         raw,
		IdempotencyKey: idempotencyKey,
	}
}

// CreateJobBody is the HTTP body of POST /jobs.
func CreateJobBody(ownerID string, params model.JobParams, idempotencyKey string) []byte {
	body := map[string]any{
		"ownerId": ownerID,
		"kind":    params.Kind(),
		"params":  params,
	}
	if idempotencyKey != "" {
		body["idempotencyKey"] = idempotencyKey
	}
	raw, err := json.Marshal(body)
	if err != nil {
		panic(err)
	}
	return raw
}

// ApprovedPayment is an approved BRL payment of amountMinor cents.
func ApprovedPayment(eventID, principalID string, amountMinor int64) model.PaymentEvent {
	return model.PaymentEvent{
		EventID:     eventID,
		Provider:    "mercadopago",
		Status:      model.PaymentApproved,
		Amount:      amountMinor,
		Currency:    "BRL",
		PrincipalID: principalID,
	}
}

func RefundedPayment(eventID, principalID string, amountMinor int64) model.PaymentEvent {
	ev := ApprovedPayment(eventID, principalID, amountMinor)
	ev.Status = model.PaymentRefunded
	return ev
}

func PaymentBody(ev model.PaymentEvent) []byte {
	raw, err := json.Marshal(ev)
	if err != nil {
		panic(err)
	}
	return raw
}

// EventID returns a distinct provider event id for index n.
func EventID(n int) string {
	return fmt.Sprintf("evt-%04d", n)
}
