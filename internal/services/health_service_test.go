package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthService_Check(t *testing.T) {
	svc := NewHealthService(time.Second)
	svc.Register("postgres", PingFunc(func(context.Context) error { return nil }))

	status, err := svc.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"postgres": "ok"}, status)

	svc.Register("redis", PingFunc(func(context.Context) error { return errors.New("connection refused") }))
	status, err = svc.Check(context.Background())
	assert.ErrorIs(t, err, ErrUnhealthy)
	assert.Equal(t, "connection refused", status["redis"])
	assert.Equal(t, "ok", status["postgres"])
}
