package handlers

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/lib/pq"

	"studio-manager/internal/database"
	"studio-manager/internal/models"
	"studio-manager/internal/settlement"
)

// расчётный период по умолчанию — текущий месяц
func settlementRange(c *fiber.Ctx) (time.Time, time.Time, error) {
	now := time.Now()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	to := now
	if s := strings.TrimSpace(c.Query("from")); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return from, to, err
		}
		from = t
	}
	if s := strings.TrimSpace(c.Query("to")); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return from, to, err
		}
		to = t
	}
	return from, to, nil
}

// scopeTrainerID применяет границу доверия контекста авторизации: тренер
// видит только собственный расчёт, остальным разрешён любой trainer_id.
// Aggregate личность не перепроверяет — сузить область обязан вызывающий.
func scopeTrainerID(c *fiber.Ctx, requested int) (int, error) {
	acting := actingUser(c)
	if acting.Role == models.RoleTrainer {
		if acting.TrainerID <= 0 {
			return 0, fmt.Errorf("trainer user %d has no linked profile", acting.UserID)
		}
		return acting.TrainerID, nil
	}
	return requested, nil
}

// loadSettlementRows выбирает завершённые сеансы тренера за расширенный
// период; точная фильтрация по дням, филиалу и сортировка — в settlement.Aggregate
func loadSettlementRows(ctx context.Context, q querier, trainerID int, from, to time.Time) ([]settlement.Row, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT s.id, s.trainer_id, p.branch_id, b.name, p.name, s.starts_at,
		       s.status, p.unit_price,
		       COALESCE(s.trainer_fee, 0), COALESCE(s.session_fee, 0),
		       COALESCE(s.trainer_rate, 0),
		       COALESCE(array_agg(m.name ORDER BY m.name)
		                FILTER (WHERE m.name IS NOT NULL), '{}')
		FROM session s
		JOIN member_program p ON p.id = s.program_id
		JOIN branch b ON b.id = p.branch_id
		LEFT JOIN session_attendance sa ON sa.session_id = s.id
		LEFT JOIN member m ON m.id = sa.member_id
		WHERE s.trainer_id = $1
		  AND s.status = 'completed'
		  AND s.starts_at >= $2::timestamp - INTERVAL '1 day'
		  AND s.starts_at <  $3::timestamp + INTERVAL '2 days'
		GROUP BY s.id, p.branch_id, b.name, p.name, p.unit_price
		ORDER BY s.starts_at DESC
	`, trainerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []settlement.Row
	for rows.Next() {
		var r settlement.Row
		var members pq.StringArray
		if err := rows.Scan(&r.SessionID, &r.TrainerID, &r.BranchID, &r.BranchName,
			&r.ProgramName, &r.StartsAt, &r.Status, &r.UnitPrice,
			&r.TrainerFee, &r.SessionFee, &r.FrozenRate, &members); err != nil {
			return nil, err
		}
		r.Members = members
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetSettlement — отчёт по вознаграждению тренера за период.
// GET /settlement?trainer_id&from&to&branch_id
func GetSettlement(c *fiber.Ctx) error {
	requested, _ := strconv.Atoi(c.Query("trainer_id"))
	trainerID, err := scopeTrainerID(c, requested)
	if err != nil {
		return jsonError(c, 403, "Нет привязанного профиля тренера", err)
	}
	if trainerID <= 0 {
		return jsonError(c, 400, "Некорректный id", nil)
	}
	from, to, err := settlementRange(c)
	if err != nil {
		return jsonError(c, 400, "Неверный формат даты", err)
	}
	branchID, _ := strconv.Atoi(c.Query("branch_id"))

	db := database.GetDB()
	ctx, cancel := withDBTimeout()
	defer cancel()

	rows, err := loadSettlementRows(ctx, db, trainerID, from, to)
	if err != nil {
		return jsonError(c, 500, "DB: ошибка выборки расчёта", err)
	}

	rep := settlement.Aggregate(trainerID, from, to, branchID, rows)
	return jsonOK(c, fiber.Map{
		"trainer_id":    trainerID,
		"from":          from.Format("2006-01-02"),
		"to":            to.Format("2006-01-02"),
		"session_count": rep.SessionCount,
		"total_fee":     rep.TotalFee,
		"total_revenue": rep.TotalRevenue,
		"sessions":      rep.Sessions,
	})
}

// ExportSettlementCSV — та же выборка в виде табличного файла.
// Колонки фиксированы контрактом выгрузки.
func ExportSettlementCSV(c *fiber.Ctx) error {
	requested, _ := strconv.Atoi(c.Query("trainer_id"))
	trainerID, err := scopeTrainerID(c, requested)
	if err != nil {
		return jsonError(c, 403, "Нет привязанного профиля тренера", err)
	}
	if trainerID <= 0 {
		return jsonError(c, 400, "Некорректный id", nil)
	}
	from, to, err := settlementRange(c)
	if err != nil {
		return jsonError(c, 400, "Неверный формат даты", err)
	}
	branchID, _ := strconv.Atoi(c.Query("branch_id"))

	db := database.GetDB()
	ctx, cancel := withDBTimeout()
	defer cancel()

	rows, err := loadSettlementRows(ctx, db, trainerID, from, to)
	if err != nil {
		return jsonError(c, 500, "DB: ошибка выборки расчёта", err)
	}
	rep := settlement.Aggregate(trainerID, from, to, branchID, rows)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"datetime", "program", "members", "branch", "unit_price", "trainer_fee", "session_revenue", "rate", "rate_label"})
	for _, r := range rep.Sessions {
		_ = w.Write([]string{
			r.StartsAt.Format("2006-01-02 15:04"),
			r.ProgramName,
			strings.Join(r.Members, ", "),
			r.BranchName,
			strconv.FormatInt(r.UnitPrice, 10),
			strconv.FormatInt(r.TrainerFee, 10),
			strconv.FormatInt(r.SessionFee, 10),
			r.Rate,
			r.RateLabel,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return jsonError(c, 500, "Ошибка формирования файла", err)
	}

	filename := fmt.Sprintf("settlement_%d_%s_%s.csv",
		trainerID, from.Format("20060102"), to.Format("20060102"))
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	c.Type("csv")
	return c.Send(buf.Bytes())
}
