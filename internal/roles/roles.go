package roles

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"studio-manager/internal/models"
)

// ErrBranchMismatch — перевод в тренеры на филиал, который профиль тренера не обслуживает
var ErrBranchMismatch = errors.New("roles: trainer profile does not serve target branch")

// Command — явная команда перевода пользователя («перетащили на цель»):
// целевая роль и филиал (для manager/trainer). TrainerID заполняется, когда
// пользователю без профиля тренера назначают профиль тем же действием.
type Command struct {
	UserID       int         `json:"user_id"`
	TargetRole   models.Role `json:"target_role"`
	TargetBranch int         `json:"target_branch"`
	TrainerID    int         `json:"trainer_id,omitempty"`
}

// AuditEvent — запись в журнал о сработавшем переходе (до/после)
type AuditEvent struct {
	ID           string      `json:"id"`
	ActorID      int         `json:"actor_id"`
	UserID       int         `json:"user_id"`
	At           time.Time   `json:"at"`
	FromRole     models.Role `json:"from_role"`
	ToRole       models.Role `json:"to_role"`
	FromBranches []int       `json:"from_branches"`
	ToBranches   []int       `json:"to_branches"`
}

// ApplyTransition применяет команду перевода к пользователю и возвращает новую
// запись User (вход не мутируется). Правила:
//   - admin — тупиковое состояние: ни входящих, ни исходящих переходов;
//   - цель manager(B): действующий manager получает B объединением
//     (идемпотентно, без замены набора); trainer/unassigned становится
//     manager{B}, связь с профилем тренера сбрасывается;
//   - цель trainer(B): профиль тренера обязан обслуживать B, иначе
//     ErrBranchMismatch без изменения состояния; сам профиль здесь не
//     редактируется;
//   - сброс на текущий контекст и нераспознанная цель — тихий no-op.
//
// trainer — профиль, на который ссылается пользователь (или назначаемый
// командой); nil допустим для нетренерских целей. Для no-op возвращается
// исходный пользователь и nil-событие; событие аудита создаётся только при
// фактическом изменении, запись в журнал — забота вызывающего.
func ApplyTransition(user models.User, trainer *models.Trainer, cmd Command, actorID int, now time.Time) (models.User, *AuditEvent, error) {
	// админа не двигаем и в админы не переводим
	if user.Role == models.RoleAdmin || cmd.TargetRole == models.RoleAdmin {
		return user, nil, nil
	}

	switch cmd.TargetRole {
	case models.RoleManager:
		if cmd.TargetBranch <= 0 {
			return user, nil, nil
		}
		if user.Role == models.RoleManager {
			if user.HasBranch(cmd.TargetBranch) {
				return user, nil, nil // уже назначен — no-op
			}
			next := user
			next.BranchIDs = append(append([]int{}, user.BranchIDs...), cmd.TargetBranch)
			sort.Ints(next.BranchIDs)
			return next, newEvent(user, next, actorID, now), nil
		}
		next := user
		next.Role = models.RoleManager
		next.BranchIDs = []int{cmd.TargetBranch}
		next.TrainerID.Valid = false
		next.TrainerID.Int64 = 0
		return next, newEvent(user, next, actorID, now), nil

	case models.RoleTrainer:
		if cmd.TargetBranch <= 0 {
			return user, nil, nil
		}
		if user.Role == models.RoleTrainer && user.TrainerID.Valid &&
			trainer != nil && int(user.TrainerID.Int64) == trainer.ID &&
			trainer.ServesBranch(cmd.TargetBranch) {
			return user, nil, nil // тот же контекст — no-op
		}
		if trainer == nil || !trainer.ServesBranch(cmd.TargetBranch) {
			return user, nil, fmt.Errorf("%w: user %d, branch %d",
				ErrBranchMismatch, user.ID, cmd.TargetBranch)
		}
		next := user
		next.Role = models.RoleTrainer
		next.BranchIDs = nil
		next.TrainerID.Valid = true
		next.TrainerID.Int64 = int64(trainer.ID)
		return next, newEvent(user, next, actorID, now), nil

	default:
		// нераспознанная цель (включая unassigned) — тихий no-op
		return user, nil, nil
	}
}

// RemoveManagerBranch снимает один филиал с менеджера (отдельное действие, не
// drag). Роль не меняется никогда: пустой набор филиалов оставляет менеджера
// менеджером, понижение — только явной командой. Для не-менеджера и
// неназначенного филиала — no-op.
func RemoveManagerBranch(user models.User, branchID int, actorID int, now time.Time) (models.User, *AuditEvent) {
	if user.Role != models.RoleManager || !user.HasBranch(branchID) {
		return user, nil
	}
	next := user
	next.BranchIDs = make([]int, 0, len(user.BranchIDs)-1)
	for _, id := range user.BranchIDs {
		if id != branchID {
			next.BranchIDs = append(next.BranchIDs, id)
		}
	}
	return next, newEvent(user, next, actorID, now)
}

func newEvent(before, after models.User, actorID int, now time.Time) *AuditEvent {
	return &AuditEvent{
		ID:           uuid.NewString(),
		ActorID:      actorID,
		UserID:       before.ID,
		At:           now,
		FromRole:     before.Role,
		ToRole:       after.Role,
		FromBranches: append([]int{}, before.BranchIDs...),
		ToBranches:   append([]int{}, after.BranchIDs...),
	}
}
