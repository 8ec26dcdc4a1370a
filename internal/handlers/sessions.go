package handlers

import (
	"database/sql"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/lib/pq"

	"studio-manager/internal/billing"
	"studio-manager/internal/database"
	"studio-manager/internal/models"
)

// GetProgramSessions — JSON сеансы одной программы
func GetProgramSessions(c *fiber.Ctx) error {
	programID, err := strconv.Atoi(c.Params("id"))
	if err != nil || programID <= 0 {
		return jsonError(c, 400, "Некорректный id", err)
	}
	db := database.GetDB()
	ctx, cancel := withDBTimeout()
	defer cancel()

	sessions, err := loadProgramSessions(ctx, db, programID)
	if err != nil {
		return jsonError(c, 500, "DB: ошибка выборки сеансов", err)
	}
	return jsonOK(c, fiber.Map{"sessions": sessions})
}

// ====== Бронирование ======

// CreateSession бронирует сеанс в слот программы. Бронь допускается только по
// действующей программе; коллизия номера слота отклоняется до записи.
func CreateSession(c *fiber.Ctx) error {
	type formT struct {
		ProgramID     int    `form:"program_id" json:"program_id" validate:"required,gt=0"`
		SessionNumber int    `form:"session_number" json:"session_number" validate:"required,gt=0"`
		TrainerID     int    `form:"trainer_id" json:"trainer_id" validate:"required,gt=0"`
		Date          string `form:"date" json:"date" validate:"required"`
		Start         string `form:"start_time" json:"start_time" validate:"required"`
		Duration      int    `form:"duration" json:"duration" validate:"required,gt=0"`
	}
	var f formT
	if err := c.BodyParser(&f); err != nil {
		return jsonError(c, 400, "Неверные данные формы", err)
	}
	if err := validate.Struct(f); err != nil {
		return jsonError(c, 400, "Заполните обязательные поля", err)
	}
	startsAt, err := time.Parse("2006-01-02 15:04", f.Date+" "+f.Start)
	if err != nil {
		return jsonError(c, 400, "Неверный формат даты", err)
	}

	db := database.GetDB()
	ctx, cancel := withDBTimeout()
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return jsonError(c, 500, "DB: ошибка транзакции", err)
	}
	defer tx.Rollback()

	p, err := loadProgram(ctx, tx, f.ProgramID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return jsonError(c, 404, "Программа не найдена", nil)
	case err != nil:
		return jsonError(c, 500, "DB: ошибка чтения", err)
	}
	if p.Status != models.ProgramValid {
		return jsonError(c, 409, "Недопустимый статус программы для брони", nil)
	}
	if f.SessionNumber > p.TotalSessions {
		return jsonError(c, 400, "Номер сеанса больше объёма программы", nil)
	}

	var id int
	err = tx.QueryRowContext(ctx, `
		INSERT INTO session
		(program_id, session_number, trainer_id, starts_at, duration_minutes, status)
		VALUES ($1, $2, $3, $4, $5, 'booked')
		RETURNING id
	`, f.ProgramID, f.SessionNumber, f.TrainerID, startsAt, f.Duration).Scan(&id)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return jsonError(c, 409, "Номер занят: слот уже забронирован", err)
		}
		log.Printf("create session err: %v", err)
		return jsonError(c, 500, "Ошибка сохранения", err)
	}
	if err := tx.Commit(); err != nil {
		return jsonError(c, 500, "DB: ошибка фиксации", err)
	}
	return jsonOK(c, fiber.Map{"id": id, "message": "Сеанс забронирован"})
}

// UpdateSession — перенос брони (дата/время/тренер). Завершённый сеанс —
// замороженная история, менять нельзя.
func UpdateSession(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil || id <= 0 {
		return jsonError(c, 400, "Некорректный id", err)
	}
	type formT struct {
		TrainerID int    `form:"trainer_id" json:"trainer_id" validate:"required,gt=0"`
		Date      string `form:"date" json:"date" validate:"required"`
		Start     string `form:"start_time" json:"start_time" validate:"required"`
		Duration  int    `form:"duration" json:"duration" validate:"required,gt=0"`
	}
	var f formT
	if err := c.BodyParser(&f); err != nil {
		return jsonError(c, 400, "Неверные данные формы", err)
	}
	if err := validate.Struct(f); err != nil {
		return jsonError(c, 400, "Заполните обязательные поля", err)
	}
	startsAt, err := time.Parse("2006-01-02 15:04", f.Date+" "+f.Start)
	if err != nil {
		return jsonError(c, 400, "Неверный формат даты", err)
	}

	db := database.GetDB()
	ctx, cancel := withDBTimeout()
	defer cancel()

	res, err := db.ExecContext(ctx, `
		UPDATE session
		SET trainer_id=$2, starts_at=$3, duration_minutes=$4
		WHERE id=$1 AND status='booked'
	`, id, f.TrainerID, startsAt, f.Duration)
	if err != nil {
		return jsonError(c, 500, "Ошибка обновления", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return jsonError(c, 409, "Сеанс уже завершён или не найден", nil)
	}
	return jsonOK(c, fiber.Map{"message": "Обновлено"})
}

// DeleteSession — отмена брони; завершённые сеансы не удаляются
func DeleteSession(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil || id <= 0 {
		return jsonError(c, 400, "Некорректный id", err)
	}
	db := database.GetDB()
	ctx, cancel := withDBTimeout()
	defer cancel()

	res, err := db.ExecContext(ctx, `
		DELETE FROM session WHERE id=$1 AND status='booked'
	`, id)
	if err != nil {
		return jsonError(c, 500, "Ошибка удаления", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return jsonError(c, 409, "Сеанс уже завершён или не найден", nil)
	}
	return jsonOK(c, fiber.Map{"message": "Удалено"})
}

// ====== Завершение ======

// CompleteSession переводит сеанс в completed. Одна транзакция: ставка
// тренера разрешается по филиалу программы, вознаграждение и выручка
// считаются и замораживаются, счётчик программы растёт на единицу. Повторное
// завершение отсекается условием status='booked' — поля пишутся не более
// одного раза, частичный сбой откатывает и сеанс, и счётчик.
func CompleteSession(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil || id <= 0 {
		return jsonError(c, 400, "Некорректный id", err)
	}
	type formT struct {
		AttendedIDs []int `form:"attended_ids" json:"attended_ids"`
	}
	var f formT
	if err := c.BodyParser(&f); err != nil {
		return jsonError(c, 400, "Неверные данные формы", err)
	}

	db := database.GetDB()
	ctx, cancel := withDBTimeout()
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return jsonError(c, 500, "DB: ошибка транзакции", err)
	}
	defer tx.Rollback()

	var s models.Session
	err = tx.QueryRowContext(ctx, `
		SELECT id, program_id, session_number, trainer_id, starts_at, status
		FROM session WHERE id=$1 FOR UPDATE
	`, id).Scan(&s.ID, &s.ProgramID, &s.SessionNumber, &s.TrainerID, &s.StartsAt, &s.Status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return jsonError(c, 404, "Сеанс не найден", nil)
	case err != nil:
		return jsonError(c, 500, "DB: ошибка чтения", err)
	}
	if s.Status != models.SessionBooked {
		return jsonError(c, 409, "Сеанс уже завершён", nil)
	}

	p, err := loadProgram(ctx, tx, s.ProgramID)
	if err != nil {
		return jsonError(c, 500, "DB: ошибка чтения программы", err)
	}
	if p.CompletedSessions >= p.TotalSessions {
		return jsonError(c, 409, "Рассогласование: программа уже выбрана полностью", nil)
	}

	// посещаемость — только участники программы, без повторов
	attended := uniqueAttendees(f.AttendedIDs)
	inProgram := make(map[int]bool, len(p.MemberIDs))
	for _, m := range p.MemberIDs {
		inProgram[m] = true
	}
	for _, m := range attended {
		if !inProgram[m] {
			return jsonError(c, 400, "Участник не входит в программу", nil)
		}
	}

	trainer, err := loadTrainer(ctx, tx, s.TrainerID)
	if err != nil {
		return jsonError(c, 500, "DB: ошибка чтения тренера", err)
	}
	rate, err := billing.Resolve(trainer, p.BranchID)
	if err != nil {
		return jsonError(c, 409, "У тренера нет ставки для этого филиала", err)
	}
	fees, err := billing.ComputeFees(p.UnitPrice, rate)
	if err != nil {
		return jsonError(c, 400, "Некорректная ставка", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE session
		SET status='completed', session_fee=$2, trainer_fee=$3, trainer_rate=$4
		WHERE id=$1 AND status='booked'
	`, id, fees.SessionFee, fees.TrainerFee, rate.Frozen())
	if err != nil {
		return jsonError(c, 500, "Ошибка сохранения", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return jsonError(c, 409, "Сеанс уже завершён", nil)
	}

	for _, m := range attended {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO session_attendance (session_id, member_id) VALUES ($1, $2)
		`, id, m); err != nil {
			return jsonError(c, 500, "Ошибка сохранения посещаемости", err)
		}
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE member_program
		SET completed_sessions = completed_sessions + 1
		WHERE id=$1 AND completed_sessions < total_sessions
	`, s.ProgramID)
	if err != nil {
		return jsonError(c, 500, "Ошибка обновления программы", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return jsonError(c, 409, "Рассогласование: счётчик программы не сошёлся", nil)
	}

	if err := tx.Commit(); err != nil {
		return jsonError(c, 500, "DB: ошибка фиксации", err)
	}

	log.Printf("✅ Сеанс %d завершён: fee=%d, revenue=%d", id, fees.TrainerFee, fees.SessionFee)
	return jsonOK(c, fiber.Map{
		"message":     "Сеанс завершён",
		"trainer_fee": fees.TrainerFee,
		"session_fee": fees.SessionFee,
		"rate":        rate.Frozen(),
	})
}

// ====== helpers ======

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// uniqueAttendees убирает повторы id, сохраняя порядок первого вхождения
func uniqueAttendees(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
