package models

import (
	"database/sql"
	"time"
)

type Branch struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// RateKind discriminates a trainer's compensation policy for one branch.
type RateKind string

const (
	RatePercentage RateKind = "percentage" // Value is a fraction of the unit price, in [0,1]
	RateFixed      RateKind = "fixed"      // Value is an absolute amount in whole won
)

// BranchRate is the tagged form of a compensation rate. The legacy storage
// format keeps a single numeric column where -1 marks "fixed"; see Frozen and
// RateFromFrozen for the boundary conversion.
type BranchRate struct {
	Kind  RateKind `json:"kind"`
	Value float64  `json:"value"`
}

func PercentageRate(v float64) BranchRate {
	return BranchRate{Kind: RatePercentage, Value: v}
}

func FixedRate(amount float64) BranchRate {
	return BranchRate{Kind: RateFixed, Value: amount}
}

// FrozenFixedRate is the sentinel stored in a completed session's rate column
// when a fixed rate was applied.
const FrozenFixedRate = -1

// Frozen returns the single-column form persisted on a completed session:
// the percentage fraction, or FrozenFixedRate for a fixed rate.
func (r BranchRate) Frozen() float64 {
	if r.Kind == RateFixed {
		return FrozenFixedRate
	}
	return r.Value
}

// RateFromFrozen rebuilds the tagged rate from a session's frozen rate column.
// The fixed amount is not stored in the rate column (the trainer fee itself
// is), so the caller supplies it.
func RateFromFrozen(frozen float64, trainerFee int64) BranchRate {
	if frozen < 0 {
		return FixedRate(float64(trainerFee))
	}
	return PercentageRate(frozen)
}

type Trainer struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Active bool   `json:"active"`
	// BranchIDs lists the branches the trainer serves; Rates carries the
	// compensation policy per branch. A branch missing from Rates means the
	// trainer cannot bill there.
	BranchIDs []int              `json:"branch_ids"`
	Rates     map[int]BranchRate `json:"rates"`
}

func (t Trainer) ServesBranch(branchID int) bool {
	for _, id := range t.BranchIDs {
		if id == branchID {
			return true
		}
	}
	return false
}

type Member struct {
	ID       int       `json:"id"`
	Name     string    `json:"name"`
	Phone    string    `json:"phone"`
	JoinedAt time.Time `json:"joined_at"`
}

type ProgramStatus string

const (
	ProgramValid     ProgramStatus = "valid"
	ProgramSuspended ProgramStatus = "suspended"
	ProgramExpired   ProgramStatus = "expired"
)

// MemberProgram is a purchased block of sessions for one or more members.
// Invariant: 0 <= CompletedSessions <= TotalSessions.
type MemberProgram struct {
	ID                int           `json:"id"`
	BranchID          int           `json:"branch_id"`
	Name              string        `json:"name"`
	MemberIDs         []int         `json:"member_ids"`
	TotalSessions     int           `json:"total_sessions"`
	UnitPrice         int64         `json:"unit_price"` // base price per session, whole won
	CompletedSessions int           `json:"completed_sessions"`
	Status            ProgramStatus `json:"status"`
	TrainerID         sql.NullInt64 `json:"trainer_id"` // default assigned trainer, optional
}

type SessionStatus string

const (
	SessionBooked    SessionStatus = "booked"
	SessionCompleted SessionStatus = "completed"
)

// Session is one numbered lesson inside a program. Fee fields are written
// exactly once, when the session transitions to completed, and never mutated
// after; TrainerRate keeps the frozen rate column (see BranchRate.Frozen).
type Session struct {
	ID              int             `json:"id"`
	ProgramID       int             `json:"program_id"`
	SessionNumber   int             `json:"session_number"` // 1-based, unique per program
	TrainerID       int             `json:"trainer_id"`
	StartsAt        time.Time       `json:"starts_at"`
	DurationMinutes int             `json:"duration_minutes"`
	Status          SessionStatus   `json:"status"`
	AttendedIDs     []int           `json:"attended_ids"` // subset of the program's members
	SessionFee      sql.NullInt64   `json:"session_fee"`  // studio revenue, completed only
	TrainerFee      sql.NullInt64   `json:"trainer_fee"`  // trainer compensation, completed only
	TrainerRate     sql.NullFloat64 `json:"trainer_rate"` // frozen rate column, completed only
}

type Role string

const (
	RoleUnassigned Role = "unassigned"
	RoleTrainer    Role = "trainer"
	RoleManager    Role = "manager"
	RoleAdmin      Role = "admin"
)

// User is the permissions-side identity. BranchIDs is meaningful only for
// managers; TrainerID links a trainer-role user to its Trainer profile. An
// admin carries neither: its authority is global and it is never reassigned.
type User struct {
	ID        int           `json:"id"`
	Name      string        `json:"name"`
	Role      Role          `json:"role"`
	BranchIDs []int         `json:"branch_ids"`
	TrainerID sql.NullInt64 `json:"trainer_id"`
}

func (u User) HasBranch(branchID int) bool {
	for _, id := range u.BranchIDs {
		if id == branchID {
			return true
		}
	}
	return false
}
