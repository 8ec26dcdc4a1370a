package handlers

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/lib/pq"

	"studio-manager/internal/billing"
	"studio-manager/internal/database"
	"studio-manager/internal/models"
)

// loadTrainer читает тренера вместе с обслуживаемыми филиалами и ставками.
// Используется и хендлерами тренеров, и завершением сеанса, и переводами ролей.
func loadTrainer(ctx context.Context, q querier, id int) (models.Trainer, error) {
	var t models.Trainer
	err := q.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(phone,''), active FROM trainer WHERE id=$1
	`, id).Scan(&t.ID, &t.Name, &t.Phone, &t.Active)
	if err != nil {
		return t, err
	}
	t.Rates = map[int]models.BranchRate{}

	rows, err := q.QueryContext(ctx, `
		SELECT branch_id, rate_kind, rate_value
		FROM trainer_branch
		WHERE trainer_id=$1
		ORDER BY branch_id
	`, id)
	if err != nil {
		return t, err
	}
	defer rows.Close()
	for rows.Next() {
		var branchID int
		var kind string
		var value float64
		if err := rows.Scan(&branchID, &kind, &value); err != nil {
			return t, err
		}
		t.BranchIDs = append(t.BranchIDs, branchID)
		t.Rates[branchID] = models.BranchRate{Kind: models.RateKind(kind), Value: value}
	}
	return t, rows.Err()
}

// GetTrainers — JSON список тренеров с филиалами и ставками
func GetTrainers(c *fiber.Ctx) error {
	db := database.GetDB()
	ctx, cancel := withDBTimeout()
	defer cancel()

	rows, err := db.QueryContext(ctx, `SELECT id FROM trainer ORDER BY id`)
	if err != nil {
		return jsonError(c, 500, "DB: ошибка выборки тренеров", err)
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

	var trainers []models.Trainer
	for _, id := range ids {
		t, err := loadTrainer(ctx, db, id)
		if err != nil {
			return jsonError(c, 500, "DB: ошибка чтения тренера", err)
		}
		trainers = append(trainers, t)
	}
	return jsonOK(c, fiber.Map{"trainers": trainers})
}

func GetTrainerByID(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil || id <= 0 {
		return jsonError(c, 400, "Некорректный id", err)
	}
	db := database.GetDB()
	ctx, cancel := withDBTimeout()
	defer cancel()

	t, err := loadTrainer(ctx, db, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return jsonError(c, 404, "Тренер не найден", nil)
	case err != nil:
		return jsonError(c, 500, "DB: ошибка чтения", err)
	}
	return jsonOK(c, fiber.Map{"trainer": t})
}

func CreateTrainer(c *fiber.Ctx) error {
	type formT struct {
		Name  string `form:"name" json:"name" validate:"required,min=1,max=100"`
		Phone string `form:"phone" json:"phone" validate:"max=20"`
	}
	var f formT
	if err := c.BodyParser(&f); err != nil {
		return jsonError(c, 400, "Неверные данные формы", err)
	}
	f.Name = strings.TrimSpace(f.Name)
	if err := validate.Struct(f); err != nil {
		return jsonError(c, 400, "Заполните обязательные поля", err)
	}

	db := database.GetDB()
	ctx, cancel := withDBTimeout()
	defer cancel()

	var id int
	err := db.QueryRowContext(ctx, `
		INSERT INTO trainer (name, phone, active) VALUES ($1, $2, true) RETURNING id
	`, f.Name, nullIfEmpty(f.Phone)).Scan(&id)
	if err != nil {
		log.Printf("create trainer err: %v", err)
		return jsonError(c, 500, "Ошибка сохранения", err)
	}
	return jsonOK(c, fiber.Map{"id": id, "message": "Тренер создан"})
}

func UpdateTrainer(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil || id <= 0 {
		return jsonError(c, 400, "Некорректный id", err)
	}
	type formT struct {
		Name   string `form:"name" json:"name" validate:"required,min=1,max=100"`
		Phone  string `form:"phone" json:"phone" validate:"max=20"`
		Active *bool  `form:"active" json:"active" validate:"required"`
	}
	var f formT
	if err := c.BodyParser(&f); err != nil {
		return jsonError(c, 400, "Неверные данные формы", err)
	}
	f.Name = strings.TrimSpace(f.Name)
	if err := validate.Struct(f); err != nil {
		return jsonError(c, 400, "Заполните обязательные поля", err)
	}

	db := database.GetDB()
	ctx, cancel := withDBTimeout()
	defer cancel()

	res, err := db.ExecContext(ctx, `
		UPDATE trainer SET name=$2, phone=$3, active=$4 WHERE id=$1
	`, id, f.Name, nullIfEmpty(f.Phone), *f.Active)
	if err != nil {
		return jsonError(c, 500, "Ошибка обновления", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return jsonError(c, 404, "Тренер не найден", nil)
	}
	return jsonOK(c, fiber.Map{"message": "Обновлено"})
}

func DeleteTrainer(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil || id <= 0 {
		return jsonError(c, 400, "Некорректный id", err)
	}
	db := database.GetDB()
	ctx, cancel := withDBTimeout()
	defer cancel()

	res, err := db.ExecContext(ctx, `DELETE FROM trainer WHERE id=$1`, id)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "foreign_key_violation" {
			// по тренеру есть сеансы — историю не трогаем, деактивируйте тренера
			return jsonError(c, 409, "Невозможно удалить: у тренера есть сеансы", err)
		}
		return jsonError(c, 500, "Ошибка удаления", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return jsonError(c, 404, "Тренер не найден", nil)
	}
	return jsonOK(c, fiber.Map{"message": "Удалено"})
}

// SetTrainerBranchRate — назначить/обновить ставку тренера для филиала.
// Наличие записи здесь и есть допуск тренера к филиалу.
func SetTrainerBranchRate(c *fiber.Ctx) error {
	trainerID, err1 := strconv.Atoi(c.Params("id"))
	branchID, err2 := strconv.Atoi(c.Params("branchID"))
	if err1 != nil || trainerID <= 0 || err2 != nil || branchID <= 0 {
		return jsonError(c, 400, "Некорректный id", nil)
	}
	type formT struct {
		Kind  string  `form:"kind" json:"kind" validate:"required,oneof=percentage fixed"`
		Value float64 `form:"value" json:"value"`
	}
	var f formT
	if err := c.BodyParser(&f); err != nil {
		return jsonError(c, 400, "Неверные данные формы", err)
	}
	if err := validate.Struct(f); err != nil {
		return jsonError(c, 400, "Заполните обязательные поля", err)
	}

	rate := models.BranchRate{Kind: models.RateKind(f.Kind), Value: f.Value}
	if err := billing.ValidateRate(rate); err != nil {
		return jsonError(c, 400, "Некорректная ставка", err)
	}

	db := database.GetDB()
	ctx, cancel := withDBTimeout()
	defer cancel()

	_, err := db.ExecContext(ctx, `
		INSERT INTO trainer_branch (trainer_id, branch_id, rate_kind, rate_value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (trainer_id, branch_id)
		DO UPDATE SET rate_kind = EXCLUDED.rate_kind, rate_value = EXCLUDED.rate_value
	`, trainerID, branchID, string(rate.Kind), rate.Value)
	if err != nil {
		return jsonError(c, 500, "Ошибка сохранения", err)
	}
	return jsonOK(c, fiber.Map{"message": "Ставка сохранена"})
}

// RemoveTrainerBranchRate — снять допуск тренера к филиалу. Исторические
// завершённые сеансы не трогаются: в них ставка заморожена.
func RemoveTrainerBranchRate(c *fiber.Ctx) error {
	trainerID, err1 := strconv.Atoi(c.Params("id"))
	branchID, err2 := strconv.Atoi(c.Params("branchID"))
	if err1 != nil || trainerID <= 0 || err2 != nil || branchID <= 0 {
		return jsonError(c, 400, "Некорректный id", nil)
	}
	db := database.GetDB()
	ctx, cancel := withDBTimeout()
	defer cancel()

	res, err := db.ExecContext(ctx, `
		DELETE FROM trainer_branch WHERE trainer_id=$1 AND branch_id=$2
	`, trainerID, branchID)
	if err != nil {
		return jsonError(c, 500, "Ошибка удаления", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return jsonError(c, 404, "Ставка не найдена", nil)
	}
	return jsonOK(c, fiber.Map{"message": "Удалено"})
}

// GetTrainersForSelect возвращает список активных тренеров для ComboBox
func GetTrainersForSelect(c *fiber.Ctx) error {
	db := database.GetDB()
	ctx, cancel := withDBTimeout()
	defer cancel()

	rows, err := db.QueryContext(ctx, `
		SELECT id, name FROM trainer WHERE active = true ORDER BY name
	`)
	if err != nil {
		log.Printf("❌ Ошибка получения тренеров: %v", err)
		return jsonError(c, 500, "DB: ошибка выборки тренеров", err)
	}
	defer rows.Close()

	var trainers []fiber.Map
	for rows.Next() {
		var id int
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			continue
		}
		trainers = append(trainers, fiber.Map{"id": id, "name": name})
	}
	return jsonOK(c, fiber.Map{"trainers": trainers})
}
