package health

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckerRegistry_Statuses(t *testing.T) {
	tests := []struct {
		name   string
		errs   []error
		status Status
	}{
		{name: "no checkers", status: StatusHealthy},
		{name: "all healthy", errs: []error{nil, nil}, status: StatusHealthy},
		{name: "degraded", errs: []error{nil, fmt.Errorf("transform: %w", ErrDegraded)}, status: StatusDegraded},
		{name: "unhealthy wins", errs: []error{ErrDegraded, errors.New("down")}, status: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewCheckerRegistry()
			for i, err := range tt.errs {
				err := err
				registry.Register(NewFuncChecker(fmt.Sprintf("c%d", i), func(context.Context) error { return err }))
			}

			h := registry.Check(context.Background())
			assert.Equal(t, tt.status, h.Status)
			assert.Len(t, h.Checks, len(tt.errs))
		})
	}
}

func TestRedisChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	checker := NewRedisChecker(client)
	assert.Equal(t, "redis", checker.Name())
	require.NoError(t, checker.Check(context.Background()))

	mr.Close()
	assert.Error(t, checker.Check(context.Background()))
}

func TestKafkaChecker_NoBrokers(t *testing.T) {
	err := NewKafkaChecker(nil).Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers configured")
}
