package services

import (
	"testing"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPricer(t *testing.T) {
	p := NewPricer(testPrices)
	job := &model.Job{Kind: model.JobKindTranscription}

	tests := []struct {
		name   string
		output model.JobOutput
		want   int64
	}{
		{"transformation flat", model.TransformationOutput{Text: "x"}, 10},
		{"transcription under a minute uses minimum", model.TranscriptionOutput{DurationSeconds: 12}, 5},
		{"transcription rounds minutes up", model.TranscriptionOutput{DurationSeconds: 121}, 15},
		{"video short base", model.VideoShortOutput{DurationSeconds: 30}, 25},
		{"video short per started 30s", model.VideoShortOutput{DurationSeconds: 61}, 45},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Price(job, tt.output)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := p.Price(job, nil)
	assert.Error(t, err)
}

func TestPricer_Estimate(t *testing.T) {
	p := NewPricer(testPrices)
	assert.Equal(t, int64(10), p.Estimate(model.TransformationParams{Text: "x"}))
	assert.Equal(t, int64(5), p.Estimate(model.TranscriptionParams{AssetURL: "https://a/b.mp3"}))
	assert.Equal(t, int64(35), p.Estimate(model.VideoShortParams{DurationSeconds: 45}))
}
