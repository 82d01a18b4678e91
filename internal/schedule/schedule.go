// Package schedule содержит календарную арифметику подписок: консолидацию
// дня списания, ключи месячных коробок и ретрай-лестницу платежей.
package schedule

import (
	"fmt"
	"strings"
	"time"
)

// Policy — пороги консолидации дня списания.
type Policy struct {
	SnapFrom int // с какого дня хвост месяца прижимается
	SnapDay  int // к какому дню прижимаем
	MaxDay   int // верхняя граница дня списания
}

// Consolidate нормализует желаемый день списания: дни из хвоста месяца
// [SnapFrom..31] прижимаются к SnapDay, остальное ограничивается [1..MaxDay].
func (p Policy) Consolidate(day int) int {
	if day < 1 {
		return 1
	}
	if day >= p.SnapFrom {
		return p.SnapDay
	}
	if day > p.MaxDay {
		return p.MaxDay
	}
	return day
}

// BoxKey возвращает ключ коробки месяца, например "January 2026".
func BoxKey(t time.Time) string {
	return t.Format("January 2006")
}

// BoxSlug возвращает url-форму ключа, например "january-2026".
func BoxSlug(t time.Time) string {
	return strings.ToLower(t.Format("January-2006"))
}

// ParseBoxKey разбирает ключ вида "January 2026" в первый день месяца.
func ParseBoxKey(key string) (time.Time, error) {
	t, err := time.Parse("January 2006", key)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad box key %q: %w", key, err)
	}
	return t, nil
}

// AddMonths сдвигает месяц коробки на n вперёд без перетекания дней
// (AddDate от 31 января дал бы март).
func AddMonths(t time.Time, n int) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, n, 0)
}

// NextBillingDate возвращает ближайшую дату списания после from для
// заданного дня месяца и интервала (1 — ежемесячно, 3 — поквартально).
func NextBillingDate(from time.Time, billingDay, intervalMonths int) time.Time {
	if intervalMonths < 1 {
		intervalMonths = 1
	}
	next := time.Date(from.Year(), from.Month(), billingDay, 0, 0, 0, 0, from.Location())
	if !next.After(from) {
		next = time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, from.Location()).
			AddDate(0, intervalMonths, billingDay-1)
	}
	return next
}

// NextInstallmentDate — дата следующего платежа рассрочки: через месяц,
// день прижат к maxDay (31 января даёт 28 февраля, а не 3 марта).
func NextInstallmentDate(from time.Time, maxDay int) time.Time {
	day := from.Day()
	if maxDay >= 1 && day > maxDay {
		day = maxDay
	}
	return time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, from.Location()).AddDate(0, 1, day-1)
}

// NextRetry считает дату следующей попытки списания после неудачи номер
// attempt (1-based): сначала два дня спустя, потом дважды ближайшая
// суббота, затем суббота через одну.
func NextRetry(from time.Time, attempt int) time.Time {
	switch {
	case attempt <= 1:
		return from.AddDate(0, 0, 2)
	case attempt <= 3:
		return nextWeekday(from, time.Saturday)
	default:
		return nextWeekday(from, time.Saturday).AddDate(0, 0, 7)
	}
}

func nextWeekday(from time.Time, wd time.Weekday) time.Time {
	days := int(wd-from.Weekday()+7) % 7
	if days == 0 {
		days = 7
	}
	return from.AddDate(0, 0, days)
}
