package handlers

import (
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/lib/pq"

	"studio-manager/internal/database"
	"studio-manager/internal/models"
)

// GetBranches — JSON список филиалов
func GetBranches(c *fiber.Ctx) error {
	db := database.GetDB()
	ctx, cancel := withDBTimeout()
	defer cancel()

	rows, err := db.QueryContext(ctx, `
		SELECT id, name FROM branch ORDER BY id
	`)
	if err != nil {
		return jsonError(c, 500, "DB: ошибка выборки филиалов", err)
	}
	defer rows.Close()

	var list []models.Branch
	for rows.Next() {
		var b models.Branch
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return jsonError(c, 500, "Ошибка чтения строки", err)
		}
		list = append(list, b)
	}
	if err := rows.Err(); err != nil {
		return jsonError(c, 500, "Ошибка курсора", err)
	}
	return jsonOK(c, fiber.Map{"branches": list})
}

func GetBranchByID(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil || id <= 0 {
		return jsonError(c, 400, "Некорректный id", err)
	}
	db := database.GetDB()
	ctx, cancel := withDBTimeout()
	defer cancel()

	var b models.Branch
	err = db.QueryRowContext(ctx, `SELECT id, name FROM branch WHERE id=$1`, id).
		Scan(&b.ID, &b.Name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return jsonError(c, 404, "Филиал не найден", nil)
	case err != nil:
		return jsonError(c, 500, "DB: ошибка чтения", err)
	}
	return jsonOK(c, fiber.Map{"branch": b})
}

func CreateBranch(c *fiber.Ctx) error {
	type formT struct {
		Name string `form:"name" json:"name" validate:"required,min=1,max=100"`
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
		INSERT INTO branch (name) VALUES ($1) RETURNING id
	`, f.Name).Scan(&id)
	if err != nil {
		return jsonError(c, 500, "Ошибка сохранения", err)
	}
	return jsonOK(c, fiber.Map{"id": id, "message": "Филиал создан"})
}

func UpdateBranch(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil || id <= 0 {
		return jsonError(c, 400, "Некорректный id", err)
	}
	type formT struct {
		Name string `form:"name" json:"name" validate:"required,min=1,max=100"`
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

	res, err := db.ExecContext(ctx, `UPDATE branch SET name=$2 WHERE id=$1`, id, f.Name)
	if err != nil {
		return jsonError(c, 500, "Ошибка обновления", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return jsonError(c, 404, "Филиал не найден", nil)
	}
	return jsonOK(c, fiber.Map{"message": "Обновлено"})
}

func DeleteBranch(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil || id <= 0 {
		return jsonError(c, 400, "Некорректный id", err)
	}
	db := database.GetDB()
	ctx, cancel := withDBTimeout()
	defer cancel()

	res, err := db.ExecContext(ctx, `DELETE FROM branch WHERE id=$1`, id)
	if err != nil {
		// на филиал ссылаются программы/ставки/назначения — удалять нельзя
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "foreign_key_violation" {
			return jsonError(c, 409, "Невозможно удалить: филиал используется", err)
		}
		return jsonError(c, 500, "Ошибка удаления", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return jsonError(c, 404, "Филиал не найден", nil)
	}
	return jsonOK(c, fiber.Map{"message": "Удалено"})
}
