package domain

import (
	"bytes"
	"encoding/json"
	"strings"
)

type OrderStatus string

const (
	OrderOrdered    OrderStatus = "ordered"
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
	OrderUnknown    OrderStatus = "unknown"
)

// ParseOrderStatus maps a backend status string; anything unrecognised is OrderUnknown.
func ParseOrderStatus(s string) OrderStatus {
	switch st := OrderStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case OrderOrdered, OrderPending, OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled:
		return st
	default:
		return OrderUnknown
	}
}

// Identity is the backend-issued user or admin record. Only ID, Name and Email
// are interpreted; Raw keeps the record as received so it can be persisted as-is.
type Identity struct {
	ID    string          `json:"id"`
	Name  string          `json:"name,omitempty"`
	Email string          `json:"email,omitempty"`
	Raw   json.RawMessage `json:"-"`
}

func (i *Identity) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID    string `json:"id"`
		OID   string `json:"_id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	i.ID = wire.ID
	if i.ID == "" {
		i.ID = wire.OID
	}
	i.Name = wire.Name
	i.Email = wire.Email
	i.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (i Identity) MarshalJSON() ([]byte, error) {
	if len(bytes.TrimSpace(i.Raw)) > 0 {
		return i.Raw, nil
	}
	type plain Identity
	return json.Marshal(plain(i))
}

// Valid reports whether the record carries enough to be treated as a present identity.
func (i Identity) Valid() bool {
	return strings.TrimSpace(i.ID) != "" || strings.TrimSpace(i.Email) != ""
}

// CartLine is one cart entry as reported by the backend.
type CartLine struct {
	ItemID    string `json:"_id"`
	Name      string `json:"name,omitempty"`
	UnitPrice Money  `json:"price"`
	Discount  Money  `json:"discount"`
	Quantity  int    `json:"quantity,omitempty"`
	Image     string `json:"image,omitempty"`
}

func (l CartLine) Prices() (unit, discount Money) { return l.UnitPrice, l.Discount }

// OrderLine is one ordered product from the order history.
type OrderLine struct {
	ItemID    string      `json:"_id"`
	Name      string      `json:"name,omitempty"`
	UnitPrice Money       `json:"price"`
	Discount  Money       `json:"discount"`
	Quantity  int         `json:"quantity,omitempty"`
	Status    OrderStatus `json:"status,omitempty"`
	UpdatedAt string      `json:"updatedAt,omitempty"`
}

func (l OrderLine) Prices() (unit, discount Money) { return l.UnitPrice, l.Discount }

// Summary aggregates a sequence of lines.
type Summary struct {
	Subtotal      Money `json:"subtotal"`
	TotalDiscount Money `json:"totalDiscount"`
	FinalTotal    Money `json:"finalTotal"`
}

type Product struct {
	ID           string `json:"_id"`
	Name         string `json:"name"`
	Price        Money  `json:"price"`
	Discount     Money  `json:"discount"`
	BgColor      string `json:"bgColor,omitempty"`
	PanelColor   string `json:"panelColor,omitempty"`
	TextColor    string `json:"textColor,omitempty"`
	IsNew        bool   `json:"isNew"`
	IsSale       bool   `json:"isSale"`
	IsCollection bool   `json:"isCollection"`
	CreatedAt    string `json:"createdAt,omitempty"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
}

func (p Product) Prices() (unit, discount Money) { return p.Price, p.Discount }

// Customer is a registered user as listed by the admin endpoints.
type Customer struct {
	ID     string      `json:"_id"`
	Name   string      `json:"name"`
	Email  string      `json:"email"`
	Orders []OrderLine `json:"orders,omitempty"`
}
