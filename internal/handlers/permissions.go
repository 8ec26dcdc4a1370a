package handlers

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/lib/pq"

	"studio-manager/internal/database"
	"studio-manager/internal/models"
	"studio-manager/internal/roles"
)

func loadUser(ctx context.Context, q querier, id int) (models.User, error) {
	var u models.User
	var branchIDs pq.Int64Array
	err := q.QueryRowContext(ctx, `
		SELECT u.id, u.name, u.role, u.trainer_id,
		       COALESCE(array_agg(ub.branch_id ORDER BY ub.branch_id)
		                FILTER (WHERE ub.branch_id IS NOT NULL), '{}')
		FROM app_user u
		LEFT JOIN user_branch ub ON ub.user_id = u.id
		WHERE u.id=$1
		GROUP BY u.id
	`, id).Scan(&u.ID, &u.Name, &u.Role, &u.TrainerID, &branchIDs)
	if err != nil {
		return u, err
	}
	for _, b := range branchIDs {
		u.BranchIDs = append(u.BranchIDs, int(b))
	}
	return u, nil
}

func saveUser(ctx context.Context, tx *sql.Tx, u models.User) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE app_user SET role=$2, trainer_id=$3 WHERE id=$1
	`, u.ID, string(u.Role), u.TrainerID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM user_branch WHERE user_id=$1
	`, u.ID); err != nil {
		return err
	}
	for _, b := range u.BranchIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_branch (user_id, branch_id) VALUES ($1, $2)
		`, u.ID, b); err != nil {
			return err
		}
	}
	return nil
}

func saveAudit(ctx context.Context, tx *sql.Tx, ev *roles.AuditEvent) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO role_audit
		(id, actor_id, user_id, at, from_role, to_role, from_branches, to_branches)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, ev.ID, ev.ActorID, ev.UserID, ev.At,
		string(ev.FromRole), string(ev.ToRole),
		pq.Array(ev.FromBranches), pq.Array(ev.ToBranches))
	return err
}

// GetPermissionUsers — JSON всех пользователей с ролями и филиалами
func GetPermissionUsers(c *fiber.Ctx) error {
	db := database.GetDB()
	ctx, cancel := withDBTimeout()
	defer cancel()

	rows, err := db.QueryContext(ctx, `SELECT id FROM app_user ORDER BY id`)
	if err != nil {
		return jsonError(c, 500, "DB: ошибка выборки пользователей", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return jsonError(c, 500, "Ошибка чтения строки", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return jsonError(c, 500, "Ошибка курсора", err)
	}

	var users []models.User
	for _, id := range ids {
		u, err := loadUser(ctx, db, id)
		if err != nil {
			return jsonError(c, 500, "DB: ошибка чтения пользователя", err)
		}
		users = append(users, u)
	}
	return jsonOK(c, fiber.Map{"users": users})
}

// MoveUser обрабатывает «перетаскивание» пользователя на целевой контекст.
// Сами правила переходов — в roles.ApplyTransition; здесь загрузка, запись и
// журнал. No-op (сброс на тот же контекст, админ, нераспознанная цель)
// возвращает 200 без изменений и в журнал не пишется.
func MoveUser(c *fiber.Ctx) error {
	var cmd roles.Command
	if err := c.BodyParser(&cmd); err != nil {
		return jsonError(c, 400, "Неверные данные формы", err)
	}
	if cmd.UserID <= 0 {
		return jsonError(c, 400, "Некорректный id", nil)
	}

	db := database.GetDB()
	ctx, cancel := withDBTimeout()
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return jsonError(c, 500, "DB: ошибка транзакции", err)
	}
	defer tx.Rollback()

	user, err := loadUser(ctx, tx, cmd.UserID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return jsonError(c, 404, "Пользователь не найден", nil)
	case err != nil:
		return jsonError(c, 500, "DB: ошибка чтения", err)
	}

	// профиль тренера: привязанный, либо назначаемый этой же командой
	var trainer *models.Trainer
	profileID := cmd.TrainerID
	if profileID == 0 && user.TrainerID.Valid {
		profileID = int(user.TrainerID.Int64)
	}
	if cmd.TargetRole == models.RoleTrainer && profileID > 0 {
		t, err := loadTrainer(ctx, tx, profileID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// нет профиля — ApplyTransition отклонит перевод
		case err != nil:
			return jsonError(c, 500, "DB: ошибка чтения тренера", err)
		default:
			trainer = &t
		}
	}

	next, event, err := roles.ApplyTransition(user, trainer, cmd, actingUser(c).UserID, time.Now())
	if errors.Is(err, roles.ErrBranchMismatch) {
		return jsonError(c, 409, "Профиль тренера не обслуживает филиал", err)
	}
	if err != nil {
		return jsonError(c, 500, "Ошибка перевода", err)
	}
	if event == nil {
		// намеренный тихий no-op, не ошибка
		return jsonOK(c, fiber.Map{"changed": false, "user": user})
	}

	if err := saveUser(ctx, tx, next); err != nil {
		return jsonError(c, 500, "Ошибка сохранения", err)
	}
	if err := saveAudit(ctx, tx, event); err != nil {
		return jsonError(c, 500, "Ошибка записи журнала", err)
	}
	if err := tx.Commit(); err != nil {
		return jsonError(c, 500, "DB: ошибка фиксации", err)
	}

	log.Printf("✅ Перевод пользователя %d: %s -> %s", next.ID, event.FromRole, event.ToRole)
	return jsonOK(c, fiber.Map{"changed": true, "user": next})
}

// RemoveUserBranch снимает один филиал с менеджера (отдельное действие, не
// drag); роль никогда не меняется, пустой набор филиалов допустим
func RemoveUserBranch(c *fiber.Ctx) error {
	type formT struct {
		UserID   int `form:"user_id" json:"user_id" validate:"required,gt=0"`
		BranchID int `form:"branch_id" json:"branch_id" validate:"required,gt=0"`
	}
	var f formT
	if err := c.BodyParser(&f); err != nil {
		return jsonError(c, 400, "Неверные данные формы", err)
	}
	if err := validate.Struct(f); err != nil {
		return jsonError(c, 400, "Заполните обязательные поля", err)
	}

	db := database.GetDB()
	ctx, cancel := withDBTimeout()
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return jsonError(c, 500, "DB: ошибка транзакции", err)
	}
	defer tx.Rollback()

	user, err := loadUser(ctx, tx, f.UserID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return jsonError(c, 404, "Пользователь не найден", nil)
	case err != nil:
		return jsonError(c, 500, "DB: ошибка чтения", err)
	}

	next, event := roles.RemoveManagerBranch(user, f.BranchID, actingUser(c).UserID, time.Now())
	if event == nil {
		return jsonOK(c, fiber.Map{"changed": false, "user": user})
	}

	if err := saveUser(ctx, tx, next); err != nil {
		return jsonError(c, 500, "Ошибка сохранения", err)
	}
	if err := saveAudit(ctx, tx, event); err != nil {
		return jsonError(c, 500, "Ошибка записи журнала", err)
	}
	if err := tx.Commit(); err != nil {
		return jsonError(c, 500, "DB: ошибка фиксации", err)
	}
	return jsonOK(c, fiber.Map{"changed": true, "user": next})
}

// GetRoleAudit — последние записи журнала переводов
func GetRoleAudit(c *fiber.Ctx) error {
	db := database.GetDB()
	ctx, cancel := withDBTimeout()
	defer cancel()

	rows, err := db.QueryContext(ctx, `
		SELECT id, actor_id, user_id, at, from_role, to_role, from_branches, to_branches
		FROM role_audit
		ORDER BY at DESC
		LIMIT 200
	`)
	if err != nil {
		return jsonError(c, 500, "DB: ошибка выборки журнала", err)
	}
	defer rows.Close()

	var events []roles.AuditEvent
	for rows.Next() {
		var ev roles.AuditEvent
		var from, to pq.Int64Array
		if err := rows.Scan(&ev.ID, &ev.ActorID, &ev.UserID, &ev.At,
			&ev.FromRole, &ev.ToRole, &from, &to); err != nil {
			return jsonError(c, 500, "Ошибка чтения строки", err)
		}
		for _, b := range from {
			ev.FromBranches = append(ev.FromBranches, int(b))
		}
		for _, b := range to {
			ev.ToBranches = append(ev.ToBranches, int(b))
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return jsonError(c, 500, "Ошибка курсора", err)
	}
	return jsonOK(c, fiber.Map{"audit": events})
}
