package roles

import (
	"database/sql"
	"errors"
	"reflect"
	"testing"
	"time"

	"studio-manager/internal/models"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

const actorID = 1

func manager(branches ...int) models.User {
	return models.User{ID: 5, Name: "박지훈", Role: models.RoleManager, BranchIDs: branches}
}

func trainerProfile(branches ...int) *models.Trainer {
	return &models.Trainer{ID: 7, Name: "김태현", Active: true, BranchIDs: branches}
}

func TestApplyTransition_AdminImmovable(t *testing.T) {
	admin := models.User{ID: 2, Role: models.RoleAdmin}
	for _, target := range []models.Role{models.RoleManager, models.RoleTrainer, models.RoleUnassigned} {
		next, ev, err := ApplyTransition(admin, nil, Command{UserID: 2, TargetRole: target, TargetBranch: 1}, actorID, now)
		if err != nil || ev != nil {
			t.Errorf("target %s: want silent no-op, got ev=%v err=%v", target, ev, err)
		}
		if !reflect.DeepEqual(next, admin) {
			t.Errorf("target %s: admin changed: %+v", target, next)
		}
	}
}

func TestApplyTransition_NoPromotionToAdmin(t *testing.T) {
	u := manager(1)
	next, ev, err := ApplyTransition(u, nil, Command{UserID: 5, TargetRole: models.RoleAdmin, TargetBranch: 1}, actorID, now)
	if err != nil || ev != nil || !reflect.DeepEqual(next, u) {
		t.Errorf("want silent no-op, got %+v ev=%v err=%v", next, ev, err)
	}
}

// Менеджер получает филиал объединением, а не заменой набора
func TestApplyTransition_ManagerBranchUnion(t *testing.T) {
	u := manager(1)
	next, ev, err := ApplyTransition(u, nil, Command{UserID: 5, TargetRole: models.RoleManager, TargetBranch: 2}, actorID, now)
	if err != nil {
		t.Fatalf("ApplyTransition: %v", err)
	}
	if !reflect.DeepEqual(next.BranchIDs, []int{1, 2}) {
		t.Errorf("branches: want [1 2], got %v", next.BranchIDs)
	}
	if next.Role != models.RoleManager {
		t.Errorf("role: want manager, got %s", next.Role)
	}
	if ev == nil {
		t.Fatal("want audit event")
	}
	if !reflect.DeepEqual(ev.FromBranches, []int{1}) || !reflect.DeepEqual(ev.ToBranches, []int{1, 2}) {
		t.Errorf("audit branches: %v -> %v", ev.FromBranches, ev.ToBranches)
	}
	// вход не мутируется
	if !reflect.DeepEqual(u.BranchIDs, []int{1}) {
		t.Errorf("input mutated: %v", u.BranchIDs)
	}
}

func TestApplyTransition_ManagerSameBranchNoop(t *testing.T) {
	u := manager(1, 2)
	next, ev, err := ApplyTransition(u, nil, Command{UserID: 5, TargetRole: models.RoleManager, TargetBranch: 2}, actorID, now)
	if err != nil || ev != nil || !reflect.DeepEqual(next, u) {
		t.Errorf("want no-op, got %+v ev=%v err=%v", next, ev, err)
	}
}

// Тренер/неназначенный становится менеджером одного филиала, связь с профилем
// тренера сбрасывается
func TestApplyTransition_TrainerBecomesManager(t *testing.T) {
	u := models.User{
		ID:        5,
		Role:      models.RoleTrainer,
		TrainerID: sql.NullInt64{Int64: 7, Valid: true},
	}
	next, ev, err := ApplyTransition(u, nil, Command{UserID: 5, TargetRole: models.RoleManager, TargetBranch: 3}, actorID, now)
	if err != nil {
		t.Fatalf("ApplyTransition: %v", err)
	}
	if next.Role != models.RoleManager || !reflect.DeepEqual(next.BranchIDs, []int{3}) {
		t.Errorf("got %+v", next)
	}
	if next.TrainerID.Valid {
		t.Error("trainer link must be discarded")
	}
	if ev == nil || ev.FromRole != models.RoleTrainer || ev.ToRole != models.RoleManager {
		t.Errorf("audit: %+v", ev)
	}
}

func TestApplyTransition_TrainerTarget(t *testing.T) {
	u := models.User{ID: 5, Role: models.RoleUnassigned}
	profile := trainerProfile(1, 2)
	next, ev, err := ApplyTransition(u, profile, Command{UserID: 5, TargetRole: models.RoleTrainer, TargetBranch: 2, TrainerID: 7}, actorID, now)
	if err != nil {
		t.Fatalf("ApplyTransition: %v", err)
	}
	if next.Role != models.RoleTrainer {
		t.Errorf("role: want trainer, got %s", next.Role)
	}
	if !next.TrainerID.Valid || next.TrainerID.Int64 != 7 {
		t.Errorf("trainer link: %+v", next.TrainerID)
	}
	if ev == nil {
		t.Error("want audit event")
	}
}

// Профиль тренера не обслуживает целевой филиал — отказ без изменения состояния
func TestApplyTransition_BranchMismatch(t *testing.T) {
	u := models.User{
		ID:        5,
		Role:      models.RoleTrainer,
		TrainerID: sql.NullInt64{Int64: 7, Valid: true},
	}
	profile := trainerProfile(1)
	next, ev, err := ApplyTransition(u, profile, Command{UserID: 5, TargetRole: models.RoleTrainer, TargetBranch: 9}, actorID, now)
	if !errors.Is(err, ErrBranchMismatch) {
		t.Fatalf("want ErrBranchMismatch, got %v", err)
	}
	if ev != nil {
		t.Error("no audit on failed transition")
	}
	if !reflect.DeepEqual(next, u) {
		t.Errorf("state changed on failure: %+v", next)
	}
}

func TestApplyTransition_TrainerTargetWithoutProfile(t *testing.T) {
	u := models.User{ID: 5, Role: models.RoleUnassigned}
	_, _, err := ApplyTransition(u, nil, Command{UserID: 5, TargetRole: models.RoleTrainer, TargetBranch: 1}, actorID, now)
	if !errors.Is(err, ErrBranchMismatch) {
		t.Errorf("want ErrBranchMismatch, got %v", err)
	}
}

func TestApplyTransition_TrainerSameContextNoop(t *testing.T) {
	u := models.User{
		ID:        5,
		Role:      models.RoleTrainer,
		TrainerID: sql.NullInt64{Int64: 7, Valid: true},
	}
	profile := trainerProfile(1, 2)
	next, ev, err := ApplyTransition(u, profile, Command{UserID: 5, TargetRole: models.RoleTrainer, TargetBranch: 1}, actorID, now)
	if err != nil || ev != nil || !reflect.DeepEqual(next, u) {
		t.Errorf("want no-op, got %+v ev=%v err=%v", next, ev, err)
	}
}

func TestApplyTransition_UnknownTargetNoop(t *testing.T) {
	u := manager(1)
	next, ev, err := ApplyTransition(u, nil, Command{UserID: 5, TargetRole: "ghost", TargetBranch: 1}, actorID, now)
	if err != nil || ev != nil || !reflect.DeepEqual(next, u) {
		t.Errorf("want no-op, got %+v ev=%v err=%v", next, ev, err)
	}
}

func TestRemoveManagerBranch(t *testing.T) {
	u := manager(1, 2)
	next, ev := RemoveManagerBranch(u, 1, actorID, now)
	if !reflect.DeepEqual(next.BranchIDs, []int{2}) {
		t.Errorf("branches: want [2], got %v", next.BranchIDs)
	}
	if next.Role != models.RoleManager {
		t.Errorf("role: want manager, got %s", next.Role)
	}
	if ev == nil {
		t.Error("want audit event")
	}
}

// Снятие последнего филиала не понижает роль: менеджер с пустым набором
func TestRemoveManagerBranch_LastBranchKeepsRole(t *testing.T) {
	u := manager(1)
	next, ev := RemoveManagerBranch(u, 1, actorID, now)
	if next.Role != models.RoleManager {
		t.Errorf("role: want manager, got %s", next.Role)
	}
	if len(next.BranchIDs) != 0 {
		t.Errorf("branches: want empty, got %v", next.BranchIDs)
	}
	if ev == nil {
		t.Error("want audit event")
	}
}

func TestRemoveManagerBranch_Noop(t *testing.T) {
	u := manager(1)
	if _, ev := RemoveManagerBranch(u, 9, actorID, now); ev != nil {
		t.Error("absent branch: want no-op")
	}
	trainerUser := models.User{ID: 5, Role: models.RoleTrainer}
	if _, ev := RemoveManagerBranch(trainerUser, 1, actorID, now); ev != nil {
		t.Error("non-manager: want no-op")
	}
}
