package models

import (
	"database/sql"
	"time"
)

// Программная карточка для списков (view)
type ProgramEnriched struct {
	ID                int           `db:"id"`
	BranchID          int           `db:"branch_id"`
	BranchName        string        `db:"branch_name"` // lookup
	Name              string        `db:"name"`
	MemberNames       []string      `db:"member_names"` // lookup
	TotalSessions     int           `db:"total_sessions"`
	UnitPrice         int64         `db:"unit_price"`
	CompletedSessions int           `db:"completed_sessions"`
	Status            ProgramStatus `db:"status"`
	TrainerID         sql.NullInt64 `db:"trainer_id"`
	TrainerName       string        `db:"trainer_name"` // lookup

	Remaining     int       `db:"remaining"`       // вычисляемая
	LastSessionAt time.Time `db:"last_session_at"` // вычисляемая
	DaysSinceLast int       `db:"days_since_last"` // вычисляемая
}
