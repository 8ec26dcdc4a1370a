package handlers

import (
	"context"
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
	"studio-manager/internal/progress"
)

type querier interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}

// loadProgram читает программу вместе со списком участников
func loadProgram(ctx context.Context, q querier, id int) (models.MemberProgram, error) {
	var p models.MemberProgram
	var memberIDs pq.Int64Array
	err := q.QueryRowContext(ctx, `
		SELECT p.id, p.branch_id, p.name, p.total_sessions, p.unit_price,
		       p.completed_sessions, p.status, p.trainer_id,
		       COALESCE(array_agg(pm.member_id ORDER BY pm.member_id)
		                FILTER (WHERE pm.member_id IS NOT NULL), '{}')
		FROM member_program p
		LEFT JOIN program_member pm ON pm.program_id = p.id
		WHERE p.id=$1
		GROUP BY p.id
	`, id).Scan(&p.ID, &p.BranchID, &p.Name, &p.TotalSessions, &p.UnitPrice,
		&p.CompletedSessions, &p.Status, &p.TrainerID, &memberIDs)
	if err != nil {
		return p, err
	}
	for _, m := range memberIDs {
		p.MemberIDs = append(p.MemberIDs, int(m))
	}
	return p, nil
}

// loadProgramSessions читает сеансы программы с посещаемостью
func loadProgramSessions(ctx context.Context, q querier, programID int) ([]models.Session, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT s.id, s.program_id, s.session_number, s.trainer_id, s.starts_at,
		       s.duration_minutes, s.status, s.session_fee, s.trainer_fee, s.trainer_rate,
		       COALESCE(array_agg(sa.member_id ORDER BY sa.member_id)
		                FILTER (WHERE sa.member_id IS NOT NULL), '{}')
		FROM session s
		LEFT JOIN session_attendance sa ON sa.session_id = s.id
		WHERE s.program_id=$1
		GROUP BY s.id
		ORDER BY s.session_number
	`, programID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var s models.Session
		var attended pq.Int64Array
		if err := rows.Scan(&s.ID, &s.ProgramID, &s.SessionNumber, &s.TrainerID,
			&s.StartsAt, &s.DurationMinutes, &s.Status,
			&s.SessionFee, &s.TrainerFee, &s.TrainerRate, &attended); err != nil {
			return nil, err
		}
		for _, m := range attended {
			s.AttendedIDs = append(s.AttendedIDs, int(m))
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// GetPrograms — JSON список программ с подстановками (view)
func GetPrograms(c *fiber.Ctx) error {
	qStatus := strings.TrimSpace(c.Query("status"))
	qBranch := strings.TrimSpace(c.Query("branch_id"))

	db := database.GetDB()
	ctx, cancel := withDBTimeout()
	defer cancel()

	where := []string{}
	args := []any{}
	if qStatus != "" {
		args = append(args, qStatus)
		where = append(where, `p.status = $`+strconv.Itoa(len(args)))
	}
	if qBranch != "" {
		args = append(args, qBranch)
		where = append(where, `p.branch_id = $`+strconv.Itoa(len(args))+`::int`)
	}

	query := `
		SELECT p.id, p.branch_id, b.name, p.name, p.total_sessions, p.unit_price,
		       p.completed_sessions, p.status, p.trainer_id, COALESCE(t.name,''),
		       COALESCE(array_agg(DISTINCT m.name) FILTER (WHERE m.name IS NOT NULL), '{}')
		FROM member_program p
		JOIN branch b ON b.id = p.branch_id
		LEFT JOIN trainer t ON t.id = p.trainer_id
		LEFT JOIN program_member pm ON pm.program_id = p.id
		LEFT JOIN member m ON m.id = pm.member_id
	`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` GROUP BY p.id, b.name, t.name ORDER BY p.id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return jsonError(c, 500, "DB: ошибка выборки программ", err)
	}
	defer rows.Close()

	var list []models.ProgramEnriched
	for rows.Next() {
		var p models.ProgramEnriched
		var memberNames pq.StringArray
		if err := rows.Scan(&p.ID, &p.BranchID, &p.BranchName, &p.Name,
			&p.TotalSessions, &p.UnitPrice, &p.CompletedSessions, &p.Status,
			&p.TrainerID, &p.TrainerName, &memberNames); err != nil {
			log.Printf("❌ scan program: %v", err)
			continue
		}
		p.MemberNames = memberNames
		p.Remaining = p.TotalSessions - p.CompletedSessions
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return jsonError(c, 500, "Ошибка курсора", err)
	}
	return jsonOK(c, fiber.Map{"programs": list})
}

func GetProgramByID(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil || id <= 0 {
		return jsonError(c, 400, "Некорректный id", err)
	}
	db := database.GetDB()
	ctx, cancel := withDBTimeout()
	defer cancel()

	p, err := loadProgram(ctx, db, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return jsonError(c, 404, "Программа не найдена", nil)
	case err != nil:
		return jsonError(c, 500, "DB: ошибка чтения", err)
	}
	return jsonOK(c, fiber.Map{"program": p, "remaining": progress.Remaining(p)})
}

func CreateProgram(c *fiber.Ctx) error {
	type formT struct {
		BranchID      int    `form:"branch_id" json:"branch_id" validate:"required,gt=0"`
		Name          string `form:"name" json:"name" validate:"required,min=1,max=100"`
		MemberIDs     []int  `form:"member_ids" json:"member_ids" validate:"required,min=1,dive,gt=0"`
		TotalSessions int    `form:"total_sessions" json:"total_sessions" validate:"required,gt=0"`
		UnitPrice     int64  `form:"unit_price" json:"unit_price" validate:"required,gt=0"`
		TrainerID     int    `form:"trainer_id" json:"trainer_id"`
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

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return jsonError(c, 500, "DB: ошибка транзакции", err)
	}
	defer tx.Rollback()

	var id int
	err = tx.QueryRowContext(ctx, `
		INSERT INTO member_program
		(branch_id, name, total_sessions, unit_price, completed_sessions, status, trainer_id)
		VALUES ($1, $2, $3, $4, 0, 'valid', $5)
		RETURNING id
	`, f.BranchID, f.Name, f.TotalSessions, f.UnitPrice, nullIfZero(f.TrainerID)).Scan(&id)
	if err != nil {
		log.Printf("create program err: %v", err)
		return jsonError(c, 500, "Ошибка сохранения", err)
	}
	for _, memberID := range f.MemberIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO program_member (program_id, member_id) VALUES ($1, $2)
		`, id, memberID); err != nil {
			return jsonError(c, 500, "Ошибка сохранения участников", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return jsonError(c, 500, "DB: ошибка фиксации", err)
	}
	return jsonOK(c, fiber.Map{"id": id, "message": "Программа создана"})
}

// UpdateProgramStatus — статус программы выставляется снаружи (продление,
// заморозка); здесь он только проверяется на допустимость и сохраняется.
func UpdateProgramStatus(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil || id <= 0 {
		return jsonError(c, 400, "Некорректный id", err)
	}
	status := models.ProgramStatus(strings.TrimSpace(c.FormValue("status")))
	switch status {
	case models.ProgramValid, models.ProgramSuspended, models.ProgramExpired:
	default:
		return jsonError(c, 400, "Неверный статус", nil)
	}

	db := database.GetDB()
	ctx, cancel := withDBTimeout()
	defer cancel()

	res, err := db.ExecContext(ctx, `
		UPDATE member_program SET status=$2 WHERE id=$1
	`, id, string(status))
	if err != nil {
		return jsonError(c, 500, "Ошибка обновления", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return jsonError(c, 404, "Программа не найдена", nil)
	}
	return jsonOK(c, fiber.Map{"message": "Обновлено"})
}

// GetProgramSlots — трекер программы: сетка слотов 1..total, остаток и
// «дней с последнего занятия»
func GetProgramSlots(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil || id <= 0 {
		return jsonError(c, 400, "Некорректный id", err)
	}
	db := database.GetDB()
	ctx, cancel := withDBTimeout()
	defer cancel()

	p, err := loadProgram(ctx, db, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return jsonError(c, 404, "Программа не найдена", nil)
	case err != nil:
		return jsonError(c, 500, "DB: ошибка чтения", err)
	}
	sessions, err := loadProgramSessions(ctx, db, id)
	if err != nil {
		return jsonError(c, 500, "DB: ошибка чтения сеансов", err)
	}

	now := time.Now()
	slots, err := progress.DeriveSlots(p, sessions, now)
	if err != nil {
		return jsonError(c, 409, "Рассогласование данных программы", err)
	}
	payload := fiber.Map{
		"program_id": p.ID,
		"slots":      slots,
		"remaining":  progress.Remaining(p),
	}
	if days, ok := progress.DaysSinceLastCompleted(sessions, now); ok {
		payload["days_since_last"] = days
	}
	return jsonOK(c, payload)
}

// CheckProgramIntegrity — админ-проверка целостности счётчика и сеансов,
// запускается по запросу, не на каждом рендере
func CheckProgramIntegrity(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil || id <= 0 {
		return jsonError(c, 400, "Некорректный id", err)
	}
	db := database.GetDB()
	ctx, cancel := withDBTimeout()
	defer cancel()

	p, err := loadProgram(ctx, db, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return jsonError(c, 404, "Программа не найдена", nil)
	case err != nil:
		return jsonError(c, 500, "DB: ошибка чтения", err)
	}
	sessions, err := loadProgramSessions(ctx, db, id)
	if err != nil {
		return jsonError(c, 500, "DB: ошибка чтения сеансов", err)
	}

	if err := progress.CheckIntegrity(p, sessions); err != nil {
		return jsonError(c, 409, "Рассогласование данных программы", err)
	}
	return jsonOK(c, fiber.Map{"message": "Целостность в порядке"})
}

func nullIfZero(n int) any {
	if n <= 0 {
		return nil
	}
	return n
}
