package handlers

import (
	"database/sql"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/lib/pq"

	"studio-manager/internal/database"
	"studio-manager/internal/models"
)

// GetMembers — JSON список участников, с опциональным поиском по имени/телефону
func GetMembers(c *fiber.Ctx) error {
	q := strings.TrimSpace(c.Query("q"))

	db := database.GetDB()
	ctx, cancel := withDBTimeout()
	defer cancel()

	query := `SELECT id, name, COALESCE(phone,''), joined_at FROM member`
	args := []any{}
	if q != "" {
		query += ` WHERE name ILIKE $1 OR phone ILIKE $1`
		args = append(args, "%"+q+"%")
	}
	query += ` ORDER BY name`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return jsonError(c, 500, "DB: ошибка выборки участников", err)
	}
	defer rows.Close()

	var list []models.Member
	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.ID, &m.Name, &m.Phone, &m.JoinedAt); err != nil {
			log.Printf("❌ scan member: %v", err)
			continue
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return jsonError(c, 500, "Ошибка курсора", err)
	}
	return jsonOK(c, fiber.Map{"members": list})
}

func GetMemberByID(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil || id <= 0 {
		return jsonError(c, 400, "Некорректный id", err)
	}
	db := database.GetDB()
	ctx, cancel := withDBTimeout()
	defer cancel()

	var m models.Member
	err = db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(phone,''), joined_at FROM member WHERE id=$1
	`, id).Scan(&m.ID, &m.Name, &m.Phone, &m.JoinedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return jsonError(c, 404, "Участник не найден", nil)
	case err != nil:
		return jsonError(c, 500, "DB: ошибка чтения", err)
	}
	return jsonOK(c, fiber.Map{"member": m})
}

func CreateMember(c *fiber.Ctx) error {
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
		INSERT INTO member (name, phone, joined_at) VALUES ($1, $2, $3) RETURNING id
	`, f.Name, nullIfEmpty(f.Phone), time.Now()).Scan(&id)
	if err != nil {
		log.Printf("create member err: %v", err)
		return jsonError(c, 500, "Ошибка сохранения", err)
	}
	return jsonOK(c, fiber.Map{"id": id, "message": "Участник создан"})
}

func UpdateMember(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil || id <= 0 {
		return jsonError(c, 400, "Некорректный id", err)
	}
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

	res, err := db.ExecContext(ctx, `
		UPDATE member SET name=$2, phone=$3 WHERE id=$1
	`, id, f.Name, nullIfEmpty(f.Phone))
	if err != nil {
		return jsonError(c, 500, "Ошибка обновления", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return jsonError(c, 404, "Участник не найден", nil)
	}
	return jsonOK(c, fiber.Map{"message": "Обновлено"})
}

func DeleteMember(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil || id <= 0 {
		return jsonError(c, 400, "Некорректный id", err)
	}
	db := database.GetDB()
	ctx, cancel := withDBTimeout()
	defer cancel()

	res, err := db.ExecContext(ctx, `DELETE FROM member WHERE id=$1`, id)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "foreign_key_violation" {
			return jsonError(c, 409, "Невозможно удалить: у участника есть программы", err)
		}
		return jsonError(c, 500, "Ошибка удаления", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return jsonError(c, 404, "Участник не найден", nil)
	}
	return jsonOK(c, fiber.Map{"message": "Удалено"})
}

// GetMembersForSelect возвращает список участников для ComboBox
func GetMembersForSelect(c *fiber.Ctx) error {
	db := database.GetDB()
	ctx, cancel := withDBTimeout()
	defer cancel()

	rows, err := db.QueryContext(ctx, `SELECT id, name FROM member ORDER BY name`)
	if err != nil {
		return jsonError(c, 500, "DB: ошибка выборки участников", err)
	}
	defer rows.Close()

	var members []fiber.Map
	for rows.Next() {
		var id int
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			continue
		}
		members = append(members, fiber.Map{"id": id, "name": name})
	}
	return jsonOK(c, fiber.Map{"members": members})
}
