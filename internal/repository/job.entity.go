package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/pg"
)

type JobEntity struct {
	pg.Model
	OwnerID        string     `gorm:"column:owner_id;type:varchar(128);not null;index;uniqueIndex:ux_jobs_owner_idem,priority:1"`
	Kind           string     `gorm:"column:kind;type:varchar(32);not null"`
	Params         string     `gorm:"column:params;type:text;not null"`
	Outputs        *string    `gorm:"column:outputs;type:text"`
	Status         string     `gorm:"column:status;type:varchar(16);not null;index:ix_jobs_status_updated,priority:1"`
	Error          *string    `gorm:"column:error;type:text"`
	IdempotencyKey *string    `gorm:"column:idempotency_key;type:varchar(128);uniqueIndex:ux_jobs_owner_idem,priority:2"`
	Cost           *int64     `gorm:"column:cost"`
	StartedAt      *time.Time `gorm:"column:started_at"`
	FinishedAt     *time.Time `gorm:"column:finished_at"`
}

func (JobEntity) TableName() string {
	return "jobs"
}

func toJobEntity(m *model.Job) (*JobEntity, error) {
	if m == nil {
		return nil, nil
	}
	params, err := json.Marshal(m.Params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	e := &JobEntity{
		Model: pg.Model{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		OwnerID:    m.OwnerID,
		Kind:       string(m.Kind),
		Params:     string(params),
		Status:     string(m.Status),
		Cost:       m.Cost,
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
	}
	if m.Output != nil {
		out, err := json.Marshal(m.Output)
		if err != nil {
			return nil, fmt.Errorf("encode outputs: %w", err)
		}
		s := string(out)
		e.Outputs = &s
	}
	if m.Error != "" {
		s := m.Error
		e.Error = &s
	}
	if m.IdempotencyKey != "" {
		k := m.IdempotencyKey
		e.IdempotencyKey = &k
	}
	return e, nil
}

func toJobModel(e *JobEntity) (*model.Job, error) {
	if e == nil {
		return nil, nil
	}
	kind := model.JobKind(e.Kind)
	params, err := model.ParseParams(kind, json.RawMessage(e.Params))
	if err != nil {
		return nil, fmt.Errorf("job %s: decode params: %w", e.ID, err)
	}
	m := &model.Job{
		ID:         e.ID,
		OwnerID:    e.OwnerID,
		Kind:       kind,
		Params:     params,
		Status:     model.JobStatus(e.Status),
		Cost:       e.Cost,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
		StartedAt:  e.StartedAt,
		FinishedAt: e.FinishedAt,
	}
	if e.Outputs != nil {
		out, err := model.ParseOutput(kind, []byte(*e.Outputs))
		if err != nil {
			return nil, fmt.Errorf("job %s: decode outputs: %w", e.ID, err)
		}
		m.Output = out
	}
	if e.Error != nil {
		m.Error = *e.Error
	}
	if e.IdempotencyKey != nil {
		m.IdempotencyKey = *e.IdempotencyKey
	}
	return m, nil
}

func toJobModels(entities []*JobEntity) ([]*model.Job, error) {
	models := make([]*model.Job, 0, len(entities))
	for _, e := range entities {
		m, err := toJobModel(e)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, nil
}
