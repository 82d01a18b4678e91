// Package payment — адаптеры платёжного шлюза. Реальный шлюз живёт за
// HTTP; статический вариант используется в dev-окружении и тестах.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"boxshop/internal/service"
)

// HTTPGateway ходит в внешний платёжный сервис.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
}

func NewHTTPGateway(baseURL string) *HTTPGateway {
	return &HTTPGateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *HTTPGateway) Charge(ctx context.Context, accountToken string, amount float64) (service.ChargeResult, error) {
	body, err := json.Marshal(map[string]any{
		"account_token": accountToken,
		"amount":        amount,
	})
	if err != nil {
		return service.ChargeResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/charges", bytes.NewReader(body))
	if err != nil {
		return service.ChargeResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return service.ChargeResult{}, err
	}
	defer resp.Body.Close()

	var out struct {
		Success       bool   `json:"success"`
		TransactionID string `json:"transaction_id"`
		DeclineReason string `json:"decline_reason"`
		DeclineCode   string `json:"decline_code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return service.ChargeResult{}, fmt.Errorf("decode charge response: %w", err)
	}
	return service.ChargeResult{
		Success:       out.Success,
		TransactionID: out.TransactionID,
		DeclineReason: out.DeclineReason,
		DeclineCode:   out.DeclineCode,
	}, nil
}

// StaticGateway всегда возвращает заданный результат (dev/тесты).
type StaticGateway struct {
	Approve bool
}

func (g StaticGateway) Charge(ctx context.Context, accountToken string, amount float64) (service.ChargeResult, error) {
	if g.Approve {
		return service.ChargeResult{Success: true, TransactionID: "static"}, nil
	}
	return service.ChargeResult{Success: false, DeclineReason: "declined by static gateway"}, nil
}
