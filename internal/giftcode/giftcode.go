// Package giftcode генерирует коды подарочных карт и реферальные
// share-коды.
package giftcode

import (
	"errors"

	"github.com/nanorand/nanorand"
)

// MaxAttempts — предел попыток сгенерировать уникальный код; превышение
// означает нарушение инварианта данных, а не ожидаемую ошибку.
const MaxAttempts = 10

var ErrExhausted = errors.New("gift code generation attempts exhausted")

// GiftCard возвращает 16-значный код вида XXXX-XXXX-XXXX-XXXX.
func GiftCard() (string, error) {
	raw, err := nanorand.Gen(16)
	if err != nil {
		return "", err
	}
	return raw[0:4] + "-" + raw[4:8] + "-" + raw[8:12] + "-" + raw[12:16], nil
}

// ShareCode возвращает короткий реферальный код.
func ShareCode() (string, error) {
	return nanorand.Gen(8)
}

// Unique повторяет генерацию gen, пока exists возвращает true, не более
// MaxAttempts раз.
func Unique(gen func() (string, error), exists func(code string) (bool, error)) (string, error) {
	for i := 0; i < MaxAttempts; i++ {
		code, err := gen()
		if err != nil {
			return "", err
		}
		taken, err := exists(code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrExhausted
}
