package progress

import (
	"database/sql"
	"errors"
	"reflect"
	"testing"
	"time"

	"studio-manager/internal/models"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func testProgram(total, completed int) models.MemberProgram {
	return models.MemberProgram{
		ID:                1,
		BranchID:          1,
		Name:              "PT 10",
		MemberIDs:         []int{10, 11},
		TotalSessions:     total,
		UnitPrice:         100000,
		CompletedSessions: completed,
		Status:            models.ProgramValid,
	}
}

func completedSession(id, number int, startsAt time.Time) models.Session {
	return models.Session{
		ID:            id,
		ProgramID:     1,
		SessionNumber: number,
		TrainerID:     7,
		StartsAt:      startsAt,
		Status:        models.SessionCompleted,
		AttendedIDs:   []int{10},
		SessionFee:    sql.NullInt64{Int64: 100000, Valid: true},
		TrainerFee:    sql.NullInt64{Int64: 50000, Valid: true},
		TrainerRate:   sql.NullFloat64{Float64: 0.5, Valid: true},
	}
}

func bookedSession(id, number int, startsAt time.Time) models.Session {
	return models.Session{
		ID:            id,
		ProgramID:     1,
		SessionNumber: number,
		TrainerID:     7,
		StartsAt:      startsAt,
		Status:        models.SessionBooked,
	}
}

func TestDeriveSlots_Grid(t *testing.T) {
	p := testProgram(10, 1)
	sessions := []models.Session{
		completedSession(100, 1, now.AddDate(0, 0, -3)),
		bookedSession(101, 3, now.AddDate(0, 0, 2)), // бронь в будущем
	}

	slots, err := DeriveSlots(p, sessions, now)
	if err != nil {
		t.Fatalf("DeriveSlots: %v", err)
	}
	if len(slots) != 10 {
		t.Fatalf("slots len: want 10, got %d", len(slots))
	}
	for i, slot := range slots {
		if slot.Number != i+1 {
			t.Errorf("slot %d: number %d", i, slot.Number)
		}
		want := SlotEmpty
		switch i + 1 {
		case 1:
			want = SlotCompleted
		case 3:
			want = SlotBooked
		}
		if slot.State != want {
			t.Errorf("slot %d: want %s, got %s", i+1, want, slot.State)
		}
	}
	if slots[0].TrainerID != 7 || !reflect.DeepEqual(slots[0].AttendedIDs, []int{10}) {
		t.Errorf("completed slot lost display fields: %+v", slots[0])
	}
}

func TestDeriveSlots_Overdue(t *testing.T) {
	p := testProgram(3, 0)
	sessions := []models.Session{
		bookedSession(100, 1, now.Add(-time.Hour)), // время начала прошло
		bookedSession(101, 2, now.Add(time.Hour)),
	}
	slots, err := DeriveSlots(p, sessions, now)
	if err != nil {
		t.Fatalf("DeriveSlots: %v", err)
	}
	if slots[0].State != SlotOverdue {
		t.Errorf("slot 1: want overdue, got %s", slots[0].State)
	}
	if slots[1].State != SlotBooked {
		t.Errorf("slot 2: want booked, got %s", slots[1].State)
	}
}

func TestDeriveSlots_DuplicateNumber(t *testing.T) {
	p := testProgram(5, 1)
	sessions := []models.Session{
		completedSession(100, 2, now.AddDate(0, 0, -1)),
		bookedSession(101, 2, now.AddDate(0, 0, 1)),
	}
	if _, err := DeriveSlots(p, sessions, now); !errors.Is(err, ErrInconsistentState) {
		t.Errorf("want ErrInconsistentState, got %v", err)
	}
}

func TestDeriveSlots_IgnoresOtherPrograms(t *testing.T) {
	p := testProgram(3, 0)
	foreign := bookedSession(100, 1, now.Add(time.Hour))
	foreign.ProgramID = 99
	slots, err := DeriveSlots(p, []models.Session{foreign}, now)
	if err != nil {
		t.Fatalf("DeriveSlots: %v", err)
	}
	for _, slot := range slots {
		if slot.State != SlotEmpty {
			t.Errorf("slot %d: want empty, got %s", slot.Number, slot.State)
		}
	}
}

// Повторный вызов на тех же данных даёт идентичный результат, вход не мутируется
func TestDeriveSlots_Idempotent(t *testing.T) {
	p := testProgram(10, 1)
	sessions := []models.Session{
		completedSession(100, 1, now.AddDate(0, 0, -3)),
		bookedSession(101, 3, now.AddDate(0, 0, 2)),
	}
	first, err := DeriveSlots(p, sessions, now)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := DeriveSlots(p, sessions, now)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("derive not idempotent:\n%+v\n%+v", first, second)
	}
}

func TestRemaining(t *testing.T) {
	if got := Remaining(testProgram(10, 3)); got != 7 {
		t.Errorf("remaining: want 7, got %d", got)
	}
	if got := Remaining(testProgram(10, 10)); got != 0 {
		t.Errorf("remaining full: want 0, got %d", got)
	}
}

func TestLastCompleted(t *testing.T) {
	sessions := []models.Session{
		completedSession(100, 1, now.AddDate(0, 0, -10)),
		completedSession(101, 2, now.AddDate(0, 0, -2)),
		bookedSession(102, 3, now.AddDate(0, 0, -1)), // бронь не считается
	}
	last, ok := LastCompleted(sessions)
	if !ok || last.ID != 101 {
		t.Errorf("want session 101, got %+v (ok=%v)", last, ok)
	}
}

// При равных датах побеждает больший номер сеанса
func TestLastCompleted_TieBreak(t *testing.T) {
	same := now.AddDate(0, 0, -2)
	sessions := []models.Session{
		completedSession(100, 5, same),
		completedSession(101, 2, same),
	}
	last, ok := LastCompleted(sessions)
	if !ok || last.SessionNumber != 5 {
		t.Errorf("want session number 5, got %+v (ok=%v)", last, ok)
	}
}

func TestLastCompleted_None(t *testing.T) {
	if _, ok := LastCompleted([]models.Session{bookedSession(1, 1, now)}); ok {
		t.Error("want ok=false without completed sessions")
	}
}

func TestDaysSinceLastCompleted(t *testing.T) {
	sessions := []models.Session{completedSession(100, 1, now.AddDate(0, 0, -3))}
	days, ok := DaysSinceLastCompleted(sessions, now)
	if !ok || days != 3 {
		t.Errorf("want 3 days, got %d (ok=%v)", days, ok)
	}
}

func TestCheckIntegrity(t *testing.T) {
	p := testProgram(10, 1)
	sessions := []models.Session{
		completedSession(100, 1, now.AddDate(0, 0, -3)),
		bookedSession(101, 3, now.AddDate(0, 0, 2)),
	}
	if err := CheckIntegrity(p, sessions); err != nil {
		t.Errorf("want ok, got %v", err)
	}
}

func TestCheckIntegrity_CounterMismatch(t *testing.T) {
	p := testProgram(10, 2) // счётчик говорит 2, фактически завершён 1
	sessions := []models.Session{
		completedSession(100, 1, now.AddDate(0, 0, -3)),
	}
	if err := CheckIntegrity(p, sessions); !errors.Is(err, ErrInconsistentState) {
		t.Errorf("want ErrInconsistentState, got %v", err)
	}
}

func TestCheckIntegrity_NumberOutOfRange(t *testing.T) {
	p := testProgram(5, 1)
	sessions := []models.Session{
		completedSession(100, 6, now.AddDate(0, 0, -3)),
	}
	if err := CheckIntegrity(p, sessions); !errors.Is(err, ErrInconsistentState) {
		t.Errorf("want ErrInconsistentState, got %v", err)
	}
}

func TestCheckIntegrity_DuplicateNumber(t *testing.T) {
	p := testProgram(5, 1)
	sessions := []models.Session{
		completedSession(100, 2, now.AddDate(0, 0, -2)),
		bookedSession(101, 2, now.AddDate(0, 0, 1)),
	}
	if err := CheckIntegrity(p, sessions); !errors.Is(err, ErrInconsistentState) {
		t.Errorf("want ErrInconsistentState, got %v", err)
	}
}
