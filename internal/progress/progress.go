package progress

import (
	"errors"
	"fmt"
	"time"

	"studio-manager/internal/models"
)

// ErrInconsistentState — расхождение данных программы и её сеансов
var ErrInconsistentState = errors.New("progress: inconsistent program state")

type SlotState string

const (
	SlotEmpty     SlotState = "empty"
	SlotBooked    SlotState = "booked"
	SlotCompleted SlotState = "completed"
	SlotOverdue   SlotState = "overdue"
)

// SlotView — одна из TotalSessions позиций трекера программы (view)
type SlotView struct {
	Number      int       `json:"number"`
	State       SlotState `json:"state"`
	SessionID   int       `json:"session_id,omitempty"`
	TrainerID   int       `json:"trainer_id,omitempty"`
	StartsAt    time.Time `json:"starts_at,omitempty"`
	AttendedIDs []int     `json:"attended_ids,omitempty"`
}

// DeriveSlots раскладывает сеансы программы по слотам 1..TotalSessions.
// Слот без сеанса — empty; завершённый — completed; забронированный —
// overdue, если время начала уже прошло, иначе booked. Текущее время
// передаётся параметром, глобальные часы не читаются. Вход не мутируется.
func DeriveSlots(p models.MemberProgram, sessions []models.Session, now time.Time) ([]SlotView, error) {
	byNumber := make(map[int]models.Session, len(sessions))
	for _, s := range sessions {
		if s.ProgramID != p.ID {
			continue
		}
		if _, dup := byNumber[s.SessionNumber]; dup {
			return nil, fmt.Errorf("%w: duplicate session number %d in program %d",
				ErrInconsistentState, s.SessionNumber, p.ID)
		}
		byNumber[s.SessionNumber] = s
	}

	slots := make([]SlotView, 0, p.TotalSessions)
	for i := 1; i <= p.TotalSessions; i++ {
		s, ok := byNumber[i]
		if !ok {
			slots = append(slots, SlotView{Number: i, State: SlotEmpty})
			continue
		}
		state := SlotBooked
		switch {
		case s.Status == models.SessionCompleted:
			state = SlotCompleted
		case s.StartsAt.Before(now):
			state = SlotOverdue
		}
		slots = append(slots, SlotView{
			Number:      i,
			State:       state,
			SessionID:   s.ID,
			TrainerID:   s.TrainerID,
			StartsAt:    s.StartsAt,
			AttendedIDs: s.AttendedIDs,
		})
	}
	return slots, nil
}

// Remaining — сколько сеансов осталось по программе
func Remaining(p models.MemberProgram) int {
	return p.TotalSessions - p.CompletedSessions
}

// LastCompleted возвращает завершённый сеанс с максимальной датой; при равных
// датах побеждает больший номер сеанса (детерминированно). false — если
// завершённых нет.
func LastCompleted(sessions []models.Session) (models.Session, bool) {
	var best models.Session
	found := false
	for _, s := range sessions {
		if s.Status != models.SessionCompleted {
			continue
		}
		if !found ||
			s.StartsAt.After(best.StartsAt) ||
			(s.StartsAt.Equal(best.StartsAt) && s.SessionNumber > best.SessionNumber) {
			best = s
			found = true
		}
	}
	return best, found
}

// DaysSinceLastCompleted — «дней с последнего занятия» для карточки программы
func DaysSinceLastCompleted(sessions []models.Session, now time.Time) (int, bool) {
	last, ok := LastCompleted(sessions)
	if !ok {
		return 0, false
	}
	days := int(now.Sub(last.StartsAt).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return days, true
}

// CheckIntegrity сверяет счётчик программы с фактическими сеансами:
// дубликаты номеров, номера вне диапазона 1..TotalSessions, расхождение
// CompletedSessions с числом завершённых. Запускается по запросу
// (админ-проверка), не на каждом рендере.
func CheckIntegrity(p models.MemberProgram, sessions []models.Session) error {
	seen := make(map[int]bool, len(sessions))
	completed := 0
	for _, s := range sessions {
		if s.ProgramID != p.ID {
			continue
		}
		if seen[s.SessionNumber] {
			return fmt.Errorf("%w: duplicate session number %d in program %d",
				ErrInconsistentState, s.SessionNumber, p.ID)
		}
		seen[s.SessionNumber] = true
		if s.SessionNumber < 1 || s.SessionNumber > p.TotalSessions {
			return fmt.Errorf("%w: session number %d outside 1..%d in program %d",
				ErrInconsistentState, s.SessionNumber, p.TotalSessions, p.ID)
		}
		if s.Status == models.SessionCompleted {
			completed++
		}
	}
	if completed != p.CompletedSessions {
		return fmt.Errorf("%w: program %d counter %d, actually completed %d",
			ErrInconsistentState, p.ID, p.CompletedSessions, completed)
	}
	if p.CompletedSessions < 0 || p.CompletedSessions > p.TotalSessions {
		return fmt.Errorf("%w: program %d counter %d outside 0..%d",
			ErrInconsistentState, p.ID, p.CompletedSessions, p.TotalSessions)
	}
	return nil
}
