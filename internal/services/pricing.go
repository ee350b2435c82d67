package services

import (
	"fmt"
	"math"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
)

type PriceTable struct {
	Transformation         int64
	TranscriptionPerMinute int64
	TranscriptionMinimum   int64
	VideoShort             int64
	VideoShortPer30Seconds int64
}

// Pricer turns a job and its output into a credit cost.
type Pricer struct {
	table PriceTable
}

func NewPricer(table PriceTable) *Pricer {
	return &Pricer{table: table}
}

// Estimate is the price known before running the job. It is the minimum a
// job of this kind can cost and is used for the pre-flight balance check.
func (p *Pricer) Estimate(params model.JobParams) int64 {
	switch v := params.(type) {
	case model.TransformationParams:
		return p.table.Transformation
	case model.TranscriptionParams:
		return p.table.TranscriptionMinimum
	case model.VideoShortParams:
		return p.videoShort(v.DurationSeconds)
	}
	return 0
}

// Price returns the final cost of a completed job.
func (p *Pricer) Price(job *model.Job, output model.JobOutput) (int64, error) {
	switch out := output.(type) {
	case model.TransformationOutput:
		return p.table.Transformation, nil
	case model.TranscriptionOutput:
		minutes := int64(math.Ceil(out.DurationSeconds / 60))
		return max(minutes*p.table.TranscriptionPerMinute, p.table.TranscriptionMinimum), nil
	case model.VideoShortOutput:
		return p.videoShort(out.DurationSeconds), nil
	}
	return 0, fmt.Errorf("no price for %s output %T", job.Kind, output)
}

// videoShort charges the base price for the first 30 seconds and a step per
// started 30 seconds after that.
func (p *Pricer) videoShort(seconds int) int64 {
	cost := p.table.VideoShort
	if extra := seconds - 30; extra > 0 {
		steps := int64((extra + 29) / 30)
		cost += steps * p.table.VideoShortPer30Seconds
	}
	return cost
}
