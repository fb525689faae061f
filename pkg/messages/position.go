package messages

import (
	"time"

	"github.com/agile-defense/routetrack/pkg/geo"
)

// SubjectUnitPosition prefixes every unit position subject
const SubjectUnitPosition = "unit.position."

// UnitPosition is a position report from a mobile unit
type UnitPosition struct {
	BaseMessage

	UnitID     string       `json:"unit_id"`
	Position   geo.Position `json:"position"`
	Status     string       `json:"status"` // active, inactive
	Speed      float64      `json:"speed,omitempty"`
	ReportedAt time.Time    `json:"reported_at"`
}

func (p *UnitPosition) Subject() string {
	return SubjectUnitPosition + p.UnitID
}

// NewUnitPosition creates a position report stamped with the current time
func NewUnitPosition(source, unitID string, pos geo.Position, status string) *UnitPosition {
	env := NewEnvelope(source, "unit-reporter")
	return &UnitPosition{
		BaseMessage: BaseMessage{Envelope: env},
		UnitID:      unitID,
		Position:    pos,
		Status:      status,
		ReportedAt:  env.Timestamp,
	}
}
