package billing

import (
	"errors"
	"fmt"
	"math"

	"studio-manager/internal/models"
)

var (
	// ErrNotAuthorized — у тренера нет ставки для данного филиала (или тренер неактивен)
	ErrNotAuthorized = errors.New("billing: trainer has no rate for branch")
	// ErrInvalidRate — некорректное значение ставки
	ErrInvalidRate = errors.New("billing: invalid rate")
)

// Resolve возвращает ставку тренера для филиала. Чистый поиск, без побочных
// эффектов: вызывается в момент завершения сеанса, исторические сеансы хранят
// замороженную ставку и повторно не пересчитываются.
func Resolve(t models.Trainer, branchID int) (models.BranchRate, error) {
	if !t.Active {
		return models.BranchRate{}, fmt.Errorf("%w: trainer %d inactive", ErrNotAuthorized, t.ID)
	}
	rate, ok := t.Rates[branchID]
	if !ok {
		return models.BranchRate{}, fmt.Errorf("%w: trainer %d, branch %d", ErrNotAuthorized, t.ID, branchID)
	}
	return rate, nil
}

// ValidateRate проверяет значение ставки: отрицательные запрещены,
// процентная не может превышать 1.
func ValidateRate(rate models.BranchRate) error {
	if rate.Value < 0 {
		return fmt.Errorf("%w: negative value %v", ErrInvalidRate, rate.Value)
	}
	switch rate.Kind {
	case models.RatePercentage:
		if rate.Value > 1 {
			return fmt.Errorf("%w: percentage %v > 1", ErrInvalidRate, rate.Value)
		}
	case models.RateFixed:
		// фиксированная сумма в целых вонах, верхней границы нет
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRate, rate.Kind)
	}
	return nil
}

// Fees — результат расчёта по одному сеансу: вознаграждение тренера и выручка
// студии. Выручка всегда равна базовой цене сеанса независимо от типа ставки:
// вознаграждение тренера — расход студии, а не вычет из выручки.
type Fees struct {
	TrainerFee int64 `json:"trainer_fee"`
	SessionFee int64 `json:"session_fee"`
}

// ComputeFees считает вознаграждение и выручку по базовой цене и ставке.
// Единственное место в системе, где считаются деньги: округление до целой
// воны, половина — вверх, детерминированно.
func ComputeFees(basePrice int64, rate models.BranchRate) (Fees, error) {
	if basePrice < 0 {
		return Fees{}, fmt.Errorf("%w: negative base price %d", ErrInvalidRate, basePrice)
	}
	if err := ValidateRate(rate); err != nil {
		return Fees{}, err
	}
	switch rate.Kind {
	case models.RatePercentage:
		return Fees{
			TrainerFee: roundHalfUp(float64(basePrice) * rate.Value),
			SessionFee: basePrice,
		}, nil
	default: // models.RateFixed, прочее отсечено ValidateRate
		return Fees{
			TrainerFee: roundHalfUp(rate.Value),
			SessionFee: basePrice,
		}, nil
	}
}

func roundHalfUp(x float64) int64 {
	return int64(math.Floor(x + 0.5))
}
