package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderKind string

const (
	OrderKindPrint     OrderKind = "print"
	OrderKindEcommerce OrderKind = "ecommerce"
)

type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusProcessing     OrderStatus = "processing"
	OrderStatusAwaitingPickup OrderStatus = "awaiting_pickup"
	OrderStatusShipped        OrderStatus = "shipped"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

var printStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusAwaitingPickup,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

var ecommerceStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// Statuses returns the statuses an admin may assign to an order of the given kind.
func Statuses(kind OrderKind) []OrderStatus {
	switch kind {
	case OrderKindPrint:
		return printStatuses
	case OrderKindEcommerce:
		return ecommerceStatuses
	default:
		return nil
	}
}

func (s OrderStatus) ValidFor(kind OrderKind) bool {
	for _, allowed := range Statuses(kind) {
		if s == allowed {
			return true
		}
	}
	return false
}

type PaymentMethod string

const (
	PaymentMethodRazorpay PaymentMethod = "razorpay"
	PaymentMethodCOD      PaymentMethod = "cod"
)

type DeliveryMethod string

const (
	DeliveryMethodPickup       DeliveryMethod = "pickup"
	DeliveryMethodHomeDelivery DeliveryMethod = "home_delivery"
)

// PaymentProof is issued by the gateway once a payment succeeds.
type PaymentProof struct {
	PaymentID      string `json:"paymentId" validate:"required"`
	GatewayOrderID string `json:"gatewayOrderId" validate:"required"`
	Signature      string `json:"signature" validate:"required"`
}

type Customer struct {
	Name  string `json:"name" validate:"required,max=120"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"required,min=7,max=20"`
}

type Address struct {
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state" validate:"required"`
	PostalCode string `json:"postalCode" validate:"required,min=3,max=12"`
	Country    string `json:"country,omitempty"`
}

type PrintSettings struct {
	PageCount   int    `json:"pageCount" validate:"required,gte=1,lte=2000"`
	Copies      int    `json:"copies" validate:"required,gte=1,lte=100"`
	PaperSize   string `json:"paperSize" validate:"required,oneof=a4 a3 letter legal"`
	ColorMode   string `json:"colorMode" validate:"required,oneof=bw color"`
	Sides       string `json:"sides" validate:"required,oneof=single double"`
	Orientation string `json:"orientation" validate:"required,oneof=portrait landscape"`
}

type FileRef struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
}

type PrintOrder struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId,omitempty"`
	Customer        Customer        `json:"customer"`
	File            *FileRef        `json:"file"`
	Settings        PrintSettings   `json:"settings"`
	DeliveryMethod  DeliveryMethod  `json:"deliveryMethod"`
	DeliveryAddress *Address        `json:"deliveryAddress,omitempty"`
	PickupCenter    string          `json:"pickupCenter,omitempty"`
	PickupCode      string          `json:"pickupCode,omitempty"`
	TotalCost       decimal.Decimal `json:"totalCost"`
	Currency        string          `json:"currency"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod"`
	Payment         *PaymentProof   `json:"payment,omitempty"`
	Status          OrderStatus     `json:"status"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// LineItem is a copy of the product taken when the order was placed. Later
// catalog edits never reach it.
type LineItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image,omitempty"`
}

func (li LineItem) Subtotal() decimal.Decimal {
	return li.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

type EcommerceOrder struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId,omitempty"`
	Customer        Customer        `json:"customer"`
	ShippingAddress Address         `json:"shippingAddress"`
	Items           []LineItem      `json:"items"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	Currency        string          `json:"currency"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod"`
	Payment         *PaymentProof   `json:"payment,omitempty"`
	Status          OrderStatus     `json:"status"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}
