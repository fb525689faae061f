package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agile-defense/routetrack/pkg/eligibility"
	"github.com/agile-defense/routetrack/pkg/geo"
	"github.com/agile-defense/routetrack/pkg/tracker"
)

func TestParseTargetState(t *testing.T) {
	tests := []struct {
		in   string
		want eligibility.TargetState
	}{
		{"available", eligibility.TargetAvailable},
		{"en_route", eligibility.TargetEnRoute},
		{"EXPIRED", eligibility.TargetExpired},
		{"Disponible", eligibility.TargetAvailable},
		{"Tomada", eligibility.TargetTaken},
		{"EnCamino", eligibility.TargetEnRoute},
		{"en_camino", eligibility.TargetEnRoute},
		{"Resuelto", eligibility.TargetResolved},
		{"NoAtendida", eligibility.TargetUnattended},
		{" vencida ", eligibility.TargetExpired},
		{"", eligibility.TargetAvailable},
		{"unknown", eligibility.TargetAvailable},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseTargetState(tt.in))
		})
	}
}

func TestTargetRoundTrip(t *testing.T) {
	url := os.Getenv("POSTGRES_URL")
	if url == "" {
		t.Skip("POSTGRES_URL not set")
	}

	ctx := context.Background()
	pool, err := NewPoolFromURL(ctx, url)
	require.NoError(t, err)
	defer pool.Close()

	require.NoError(t, pool.EnsureSchema(ctx))
	require.NoError(t, pool.Health(ctx))

	want := eligibility.Target{
		ID:       "test-alert-1",
		Position: geo.Position{Lat: -18.0066, Lon: -70.2463},
		State:    eligibility.TargetTaken,
	}
	require.NoError(t, pool.UpsertTarget(ctx, want))
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), "DELETE FROM alerts WHERE id = $1", want.ID)
	})

	got, err := pool.Target(ctx, want.ID)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	want.AssignedUnitID = "unit-7"
	want.State = eligibility.TargetEnRoute
	require.NoError(t, pool.UpsertTarget(ctx, want))

	got, err = pool.Target(ctx, want.ID)
	require.NoError(t, err)
	assert.Equal(t, "unit-7", got.AssignedUnitID)
	assert.Equal(t, eligibility.TargetEnRoute, got.State)

	_, err = pool.Target(ctx, "does-not-exist")
	assert.ErrorIs(t, err, tracker.ErrTargetNotFound)
}
