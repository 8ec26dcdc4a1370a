package settlement

import (
	"testing"
	"time"

	"studio-manager/internal/models"
)

func day(d int) time.Time {
	return time.Date(2025, 6, d, 0, 0, 0, 0, time.UTC)
}

func row(sessionID, trainerID, branchID, d int, fee, revenue int64) Row {
	return Row{
		SessionID:   sessionID,
		TrainerID:   trainerID,
		BranchID:    branchID,
		BranchName:  "강남",
		ProgramName: "PT 10",
		Members:     []string{"김민지"},
		StartsAt:    time.Date(2025, 6, d, 10, 0, 0, 0, time.UTC),
		Status:      models.SessionCompleted,
		UnitPrice:   100000,
		TrainerFee:  fee,
		SessionFee:  revenue,
		FrozenRate:  0.5,
	}
}

func TestAggregate_Sums(t *testing.T) {
	rows := []Row{
		row(1, 7, 1, 5, 50000, 100000),
		row(2, 7, 1, 10, 30000, 100000),
		row(3, 7, 2, 12, 40000, 100000),
		row(4, 8, 1, 10, 99999, 100000), // чужой тренер
	}
	booked := row(5, 7, 1, 11, 0, 0)
	booked.Status = models.SessionBooked
	rows = append(rows, booked)

	rep := Aggregate(7, day(1), day(30), 0, rows)
	if rep.SessionCount != 3 {
		t.Errorf("count: want 3, got %d", rep.SessionCount)
	}
	if rep.TotalFee != 120000 {
		t.Errorf("total fee: want 120000, got %d", rep.TotalFee)
	}
	if rep.TotalRevenue != 300000 {
		t.Errorf("total revenue: want 300000, got %d", rep.TotalRevenue)
	}
}

func TestAggregate_BranchFilter(t *testing.T) {
	rows := []Row{
		row(1, 7, 1, 5, 50000, 100000),
		row(2, 7, 2, 10, 30000, 100000),
	}
	rep := Aggregate(7, day(1), day(30), 2, rows)
	if rep.SessionCount != 1 || rep.TotalFee != 30000 {
		t.Errorf("branch filter: got %+v", rep)
	}
}

// Обе границы включительны по календарному дню независимо от времени суток
func TestAggregate_InclusiveDayBounds(t *testing.T) {
	late := row(1, 7, 1, 1, 10000, 100000)
	late.StartsAt = time.Date(2025, 6, 1, 23, 30, 0, 0, time.UTC)
	early := row(2, 7, 1, 30, 20000, 100000)
	early.StartsAt = time.Date(2025, 6, 30, 0, 15, 0, 0, time.UTC)
	outside := row(3, 7, 1, 31, 99999, 100000)

	rep := Aggregate(7, day(1), day(30), 0, []Row{late, early, outside})
	if rep.SessionCount != 2 {
		t.Errorf("count: want 2, got %d", rep.SessionCount)
	}
	if rep.TotalFee != 30000 {
		t.Errorf("total fee: want 30000, got %d", rep.TotalFee)
	}
}

func TestAggregate_NoMatches(t *testing.T) {
	rows := []Row{row(1, 8, 1, 5, 50000, 100000)}
	rep := Aggregate(7, day(1), day(30), 0, rows)
	if rep.SessionCount != 0 || rep.TotalFee != 0 || rep.TotalRevenue != 0 {
		t.Errorf("want zero aggregate, got %+v", rep)
	}
	if rep.Sessions == nil || len(rep.Sessions) != 0 {
		t.Errorf("want empty (non-nil) sessions, got %#v", rep.Sessions)
	}
}

// from > to — вырожденный период, пустой результат без ошибки
func TestAggregate_DegenerateRange(t *testing.T) {
	rows := []Row{row(1, 7, 1, 5, 50000, 100000)}
	rep := Aggregate(7, day(30), day(1), 0, rows)
	if rep.SessionCount != 0 || len(rep.Sessions) != 0 {
		t.Errorf("want empty report, got %+v", rep)
	}
}

func TestAggregate_SortedByDateDesc(t *testing.T) {
	rows := []Row{
		row(1, 7, 1, 5, 1, 1),
		row(2, 7, 1, 20, 1, 1),
		row(3, 7, 1, 12, 1, 1),
	}
	rep := Aggregate(7, day(1), day(30), 0, rows)
	for i := 1; i < len(rep.Sessions); i++ {
		if rep.Sessions[i].StartsAt.After(rep.Sessions[i-1].StartsAt) {
			t.Fatalf("not sorted desc: %v after %v",
				rep.Sessions[i].StartsAt, rep.Sessions[i-1].StartsAt)
		}
	}
	if rep.Sessions[0].SessionID != 2 || rep.Sessions[2].SessionID != 1 {
		t.Errorf("order: got %d, %d, %d",
			rep.Sessions[0].SessionID, rep.Sessions[1].SessionID, rep.Sessions[2].SessionID)
	}
}

func TestAggregate_SameDateTieBreak(t *testing.T) {
	a := row(1, 7, 1, 5, 1, 1)
	b := row(2, 7, 1, 5, 1, 1)
	rep := Aggregate(7, day(1), day(30), 0, []Row{a, b})
	if rep.Sessions[0].SessionID != 2 {
		t.Errorf("tie break: want session 2 first, got %d", rep.Sessions[0].SessionID)
	}
}

func TestRateDescriptor(t *testing.T) {
	cases := []struct {
		frozen float64
		want   string
	}{
		{models.FrozenFixedRate, "fixed"},
		{0.5, "50.0%"},
		{0.335, "33.5%"},
		{1, "100.0%"},
		{0, "0.0%"},
	}
	for _, tc := range cases {
		if got := RateDescriptor(tc.frozen); got != tc.want {
			t.Errorf("RateDescriptor(%v): want %q, got %q", tc.frozen, tc.want, got)
		}
	}
}

func TestRateLabel(t *testing.T) {
	cases := []struct {
		frozen float64
		want   string
	}{
		{models.FrozenFixedRate, "고정"},
		{0.5, "50.0%"},
		{0.335, "33.5%"},
	}
	for _, tc := range cases {
		if got := RateLabel(tc.frozen); got != tc.want {
			t.Errorf("RateLabel(%v): want %q, got %q", tc.frozen, tc.want, got)
		}
	}
}

func TestAggregate_FillsRateText(t *testing.T) {
	fixed := row(1, 7, 1, 10, 30000, 100000)
	fixed.FrozenRate = models.FrozenFixedRate
	rows := []Row{fixed, row(2, 7, 1, 11, 50000, 100000)}

	rep := Aggregate(7, day(1), day(30), 0, rows)
	if len(rep.Sessions) != 2 {
		t.Fatalf("want 2 sessions, got %d", len(rep.Sessions))
	}
	// сортировка по дате убыв.: сначала сеанс 2 (процент), затем 1 (фикс)
	if got := rep.Sessions[0].Rate; got != "50.0%" {
		t.Errorf("rate: want %q, got %q", "50.0%", got)
	}
	if got := rep.Sessions[0].RateLabel; got != "50.0%" {
		t.Errorf("rate label: want %q, got %q", "50.0%", got)
	}
	if got := rep.Sessions[1].Rate; got != "fixed" {
		t.Errorf("rate: want %q, got %q", "fixed", got)
	}
	if got := rep.Sessions[1].RateLabel; got != "고정" {
		t.Errorf("rate label: want %q, got %q", "고정", got)
	}
}
