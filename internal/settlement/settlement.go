package settlement

import (
	"fmt"
	"sort"
	"time"

	"studio-manager/internal/models"
)

// Row — строка отчёта по вознаграждению: завершённый сеанс со всеми
// подстановками, достаточными для таблицы и выгрузки (дата/время, программа,
// участники, филиал, цена, вознаграждение, выручка, замороженная ставка).
type Row struct {
	SessionID   int                  `json:"session_id"`
	TrainerID   int                  `json:"trainer_id"`
	BranchID    int                  `json:"branch_id"`
	BranchName  string               `json:"branch_name"`
	ProgramName string               `json:"program_name"`
	Members     []string             `json:"members"`
	StartsAt    time.Time            `json:"starts_at"`
	Status      models.SessionStatus `json:"status"`
	UnitPrice   int64                `json:"unit_price"`
	TrainerFee  int64                `json:"trainer_fee"`
	SessionFee  int64                `json:"session_fee"`
	FrozenRate  float64              `json:"frozen_rate"`

	// заполняются в Aggregate
	Rate      string `json:"rate"`
	RateLabel string `json:"rate_label"`
}

// Report — агрегат за период: количество, суммы и строки по убыванию даты
type Report struct {
	SessionCount int   `json:"session_count"`
	TotalFee     int64 `json:"total_fee"`
	TotalRevenue int64 `json:"total_revenue"`
	Sessions     []Row `json:"sessions"`
}

// Aggregate собирает отчёт тренера за период [from, to] включительно по
// календарным дням (время суток границ не учитывается). branchID > 0 —
// дополнительный фильтр по филиалу программы. Суммируются сохранённые при
// завершении поля, ничего не пересчитывается. Пустой период и from > to дают
// нулевой агрегат, не ошибку.
//
// Граница доверия: функция не проверяет личность вызывающего. Ограничение
// «тренер видит только свой trainerID» обязан применить вызывающий код до
// вызова Aggregate.
func Aggregate(trainerID int, from, to time.Time, branchID int, rows []Row) Report {
	rep := Report{Sessions: []Row{}}
	for _, r := range rows {
		if r.TrainerID != trainerID || r.Status != models.SessionCompleted {
			continue
		}
		if dayBefore(r.StartsAt, from) || dayAfter(r.StartsAt, to) {
			continue
		}
		if branchID > 0 && r.BranchID != branchID {
			continue
		}
		r.Rate = RateDescriptor(r.FrozenRate)
		r.RateLabel = RateLabel(r.FrozenRate)
		rep.Sessions = append(rep.Sessions, r)
		rep.SessionCount++
		rep.TotalFee += r.TrainerFee
		rep.TotalRevenue += r.SessionFee
	}
	// свежие сверху; при равной дате — больший id сеанса
	sort.SliceStable(rep.Sessions, func(i, j int) bool {
		a, b := rep.Sessions[i], rep.Sessions[j]
		if !a.StartsAt.Equal(b.StartsAt) {
			return a.StartsAt.After(b.StartsAt)
		}
		return a.SessionID > b.SessionID
	})
	return rep
}

// RateDescriptor — текст ставки для выгрузки: "fixed" либо процент с одним
// знаком после запятой ("50.0%"). Формат совпадает с историческим.
func RateDescriptor(frozen float64) string {
	if frozen < 0 {
		return "fixed"
	}
	return fmt.Sprintf("%.1f%%", frozen*100)
}

// RateLabel — надпись ставки для интерфейса: у фиксированной суммы
// метка "고정", у процентной — тот же процент.
func RateLabel(frozen float64) string {
	if frozen < 0 {
		return "고정"
	}
	return fmt.Sprintf("%.1f%%", frozen*100)
}

func dayBefore(t, bound time.Time) bool {
	ty, tm, td := t.Date()
	by, bm, bd := bound.Date()
	if ty != by {
		return ty < by
	}
	if tm != bm {
		return tm < bm
	}
	return td < bd
}

func dayAfter(t, bound time.Time) bool {
	return dayBefore(bound, t)
}
