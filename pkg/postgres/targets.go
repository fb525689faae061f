package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/agile-defense/routetrack/pkg/eligibility"
	"github.com/agile-defense/routetrack/pkg/geo"
	"github.com/agile-defense/routetrack/pkg/tracker"
)

// Alert states as written by the dispatch console
var consoleStates = map[string]eligibility.TargetState{
	"disponible": eligibility.TargetAvailable,
	"tomada":     eligibility.TargetTaken,
	"encamino":   eligibility.TargetEnRoute,
	"resuelto":   eligibility.TargetResolved,
	"noatendida": eligibility.TargetUnattended,
	"vencida":    eligibility.TargetExpired,
}

// ParseTargetState maps a stored state to a TargetState. Unknown states are
// treated as available so they never block routing on their own.
func ParseTargetState(s string) eligibility.TargetState {
	s = strings.ToLower(strings.TrimSpace(s))
	if st := eligibility.TargetState(s); st.Valid() {
		return st
	}
	if st, ok := consoleStates[strings.ReplaceAll(s, "_", "")]; ok {
		return st
	}
	return eligibility.TargetAvailable
}

// Target loads an alert as a routing target
func (p *Pool) Target(ctx context.Context, targetID string) (eligibility.Target, error) {
	query := `
		SELECT id, lat, lon, state, assigned_unit_id
		FROM alerts
		WHERE id = $1
	`

	var (
		t        eligibility.Target
		lat, lon float64
		state    string
		assigned *string
	)
	err := p.QueryRow(ctx, query, targetID).Scan(&t.ID, &lat, &lon, &state, &assigned)
	if errors.Is(err, pgx.ErrNoRows) {
		return eligibility.Target{}, tracker.ErrTargetNotFound
	}
	if err != nil {
		return eligibility.Target{}, fmt.Errorf("failed to get alert: %w", err)
	}

	t.Position = geo.Position{Lat: lat, Lon: lon}
	t.State = ParseTargetState(state)
	if assigned != nil {
		t.AssignedUnitID = *assigned
	}
	return t, nil
}

// UpsertTarget inserts or updates an alert
func (p *Pool) UpsertTarget(ctx context.Context, t eligibility.Target) error {
	query := `
		INSERT INTO alerts (id, lat, lon, state, assigned_unit_id)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		ON CONFLICT (id) DO UPDATE SET
			lat = EXCLUDED.lat,
			lon = EXCLUDED.lon,
			state = EXCLUDED.state,
			assigned_unit_id = EXCLUDED.assigned_unit_id,
			updated_at = NOW()
	`

	state := t.State
	if state == "" {
		state = eligibility.TargetAvailable
	}
	_, err := p.Exec(ctx, query, t.ID, t.Position.Lat, t.Position.Lon, string(state), t.AssignedUnitID)
	if err != nil {
		return fmt.Errorf("failed to upsert alert: %w", err)
	}
	return nil
}
