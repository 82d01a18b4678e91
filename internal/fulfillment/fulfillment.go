// Package fulfillment — снапшот заказа для передачи партнёру по
// доставке. Сам клиент API живёт снаружи, ядро лишь формирует полезную
// нагрузку.
package fulfillment

import (
	"context"

	"boxshop/internal/models"
)

type ShipmentItem struct {
	SKU      string  `json:"sku"`
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
	Weight   float64 `json:"weight"`
}

type ShipmentRequest struct {
	OrderNumber      string         `json:"order_number"`
	Items            []ShipmentItem `json:"items"`
	ShippingAddress  models.Address `json:"shipping_address"`
	RequestedService string         `json:"requested_service"`
}

// Client — внешний коллаборатор, создающий отправление.
type Client interface {
	CreateShipment(ctx context.Context, req ShipmentRequest) error
}

// BuildRequest собирает снапшот заказа для отправки партнёру.
func BuildRequest(o *models.Order, service string) ShipmentRequest {
	req := ShipmentRequest{
		OrderNumber:      o.Number,
		ShippingAddress:  o.ShippingAddress,
		RequestedService: service,
	}
	for _, it := range o.Items {
		req.Items = append(req.Items, ShipmentItem{
			SKU:      it.SKU,
			Name:     it.Name,
			Quantity: it.Quantity,
			Price:    it.Price,
			Weight:   it.Weight,
		})
	}
	return req
}
