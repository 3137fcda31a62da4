package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugatenow/edugate/pkg/storage"
)

func TestConfigFromStorage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty string", input: "", expected: nil},
		{name: "single URL", input: "postgres://r1/db", expected: []string{"postgres://r1/db"}},
		{
			name:     "whitespace and empty entries",
			input:    " postgres://r1/db ,, postgres://r2/db ,",
			expected: []string{"postgres://r1/db", "postgres://r2/db"},
		},
		{name: "only commas", input: " , , ", expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := storage.DefaultConfig()
			cfg.PostgresURL = "postgres://primary/db"
			got := ConfigFromStorage(cfg, tt.input)
			assert.Equal(t, tt.expected, got.ReplicaURLs)
			assert.Equal(t, "postgres://primary/db", got.PrimaryURL)
			assert.Equal(t, 20, got.MaxConns)
			assert.Equal(t, 10*time.Second, got.Timeout)
		})
	}
}

func TestConfigFromStorageDefaultsTimeout(t *testing.T) {
	got := ConfigFromStorage(storage.Config{}, "")
	assert.Equal(t, 10*time.Second, got.Timeout)
}

func TestReplicaFallsBackToPrimary(t *testing.T) {
	primary, _, err := sqlmock.New()
	require.NoError(t, err)
	defer primary.Close()

	cm := NewFromDB(primary)
	assert.Same(t, primary, cm.Replica())
	assert.Same(t, primary, cm.Primary())
}

func TestReplicaRoundRobin(t *testing.T) {
	primary, _, _ := sqlmock.New()
	r1, _, _ := sqlmock.New()
	r2, _, _ := sqlmock.New()
	defer primary.Close()
	defer r1.Close()
	defer r2.Close()

	cm := NewFromDB(primary, r1, r2)
	first := cm.Replica()
	second := cm.Replica()
	third := cm.Replica()
	assert.NotSame(t, first, second)
	assert.Same(t, first, third)
}

func TestHealthCheck(t *testing.T) {
	primary, pmock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	replica, rmock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	pmock.ExpectPing()
	rmock.ExpectPing().WillReturnError(errors.New("down"))

	cm := NewFromDB(primary, replica)
	err = cm.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all replicas unhealthy")

	pmock.ExpectPing().WillReturnError(errors.New("refused"))
	err = cm.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "primary unhealthy")

	pmock.ExpectClose()
	rmock.ExpectClose()
	require.NoError(t, cm.Close())
	assert.NoError(t, pmock.ExpectationsWereMet())
	assert.NoError(t, rmock.ExpectationsWereMet())
}
