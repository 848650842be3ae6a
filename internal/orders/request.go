package orders

import (
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/printstore/internal/domain"
)

type FileUpload struct {
	Name    string `json:"name" validate:"required,max=200"`
	DataURI string `json:"dataUri" validate:"required"`
}

type PrintRequest struct {
	Customer        domain.Customer       `json:"customer"`
	File            *FileUpload           `json:"file,omitempty"`
	Settings        domain.PrintSettings  `json:"settings"`
	DeliveryMethod  domain.DeliveryMethod `json:"deliveryMethod" validate:"required,oneof=pickup home_delivery"`
	DeliveryAddress *domain.Address       `json:"deliveryAddress,omitempty" validate:"required_if=DeliveryMethod home_delivery"`
	PickupCenter    string                `json:"pickupCenter,omitempty" validate:"required_if=DeliveryMethod pickup"`
}

type CartItem struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=1,lte=99"`
}

type EcommerceRequest struct {
	Customer        domain.Customer `json:"customer"`
	ShippingAddress domain.Address  `json:"shippingAddress"`
	Items           []CartItem      `json:"items" validate:"required,min=1,max=50,dive"`
}

// OrderRequest is the payload a customer submits at checkout. Exactly one of
// Print or Ecommerce is set, matching Kind.
type OrderRequest struct {
	Kind          domain.OrderKind     `json:"kind" validate:"required,oneof=print ecommerce"`
	PaymentMethod domain.PaymentMethod `json:"paymentMethod" validate:"required,oneof=razorpay cod"`
	// ExpectedTotal is the client's own estimate. When present it must match
	// the server's figure exactly.
	ExpectedTotal *decimal.Decimal  `json:"expectedTotal,omitempty" validate:"omitempty,gt=0"`
	Print         *PrintRequest     `json:"print,omitempty" validate:"required_if=Kind print"`
	Ecommerce     *EcommerceRequest `json:"ecommerce,omitempty" validate:"required_if=Kind ecommerce"`

	UserID string `json:"-"`
}

type Quote struct {
	Kind          domain.OrderKind  `json:"kind"`
	Total         decimal.Decimal   `json:"total"`
	Currency      string            `json:"currency"`
	MinimumAmount decimal.Decimal   `json:"minimumAmount"`
	Items         []domain.LineItem `json:"items,omitempty"`
}

type Receipt struct {
	OrderID       string               `json:"orderId"`
	Kind          domain.OrderKind     `json:"kind"`
	Total         decimal.Decimal      `json:"total"`
	Currency      string               `json:"currency"`
	PaymentMethod domain.PaymentMethod `json:"paymentMethod"`
	Status        domain.OrderStatus   `json:"status"`
	PickupCode    string               `json:"pickupCode,omitempty"`
}
