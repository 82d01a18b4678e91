// Package tax — адаптер внешнего налогового сервиса.
package tax

import "context"

// FlatRate возвращает одну ставку для домашней страны и ноль для
// остальных. Достаточно для dev-окружения; продовый сервис подключается
// через тот же порт.
type FlatRate struct {
	HomeCountry string
	Rate        float64
}

func (t FlatRate) RateFor(ctx context.Context, country, region, zip string) (float64, error) {
	if country == t.HomeCountry {
		return t.Rate, nil
	}
	return 0, nil
}
