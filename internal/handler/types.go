package handler

import (
	"time"

	"github.com/bazarhq/fulfillment/internal/domain/cart"
	"github.com/bazarhq/fulfillment/internal/domain/money"
	"github.com/bazarhq/fulfillment/internal/domain/order"
	"github.com/bazarhq/fulfillment/internal/domain/payment"
	"github.com/bazarhq/fulfillment/internal/domain/user"
)

// moneyDTO renders an amount as its display value. The integer minor units
// stay internal.
type moneyDTO struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func moneyFrom(m money.Money) moneyDTO {
	return moneyDTO{Amount: m.Decimal().StringFixed(2), Currency: m.Currency}
}

type addressDTO struct {
	Name       string `json:"name,omitempty"`
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country" validate:"required"`
	Phone      string `json:"phone,omitempty"`
}

func (a addressDTO) domain() user.Address {
	return user.Address{
		Name:       a.Name,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
	}
}

type snapshotItemDTO struct {
	ProductID string   `json:"product_id"`
	VariantID string   `json:"variant_id,omitempty"`
	UnitPrice moneyDTO `json:"unit_price"`
	Quantity  int      `json:"quantity"`
}

type snapshotDTO struct {
	Items       []snapshotItemDTO `json:"items"`
	Subtotal    moneyDTO          `json:"subtotal"`
	Tax         moneyDTO          `json:"tax"`
	ShippingFee moneyDTO          `json:"shipping_fee"`
	Discount    moneyDTO          `json:"discount"`
	Total       moneyDTO          `json:"total"`
	CapturedAt  time.Time         `json:"captured_at"`
}

func snapshotFrom(s cart.Snapshot) snapshotDTO {
	items := make([]snapshotItemDTO, len(s.Items))
	for i, it := range s.Items {
		items[i] = snapshotItemDTO{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			UnitPrice: moneyFrom(it.UnitPrice),
			Quantity:  it.Quantity,
		}
	}
	return snapshotDTO{
		Items:       items,
		Subtotal:    moneyFrom(s.Subtotal),
		Tax:         moneyFrom(s.Tax),
		ShippingFee: moneyFrom(s.ShippingFee),
		Discount:    moneyFrom(s.Discount),
		Total:       moneyFrom(s.Total),
		CapturedAt:  s.CapturedAt,
	}
}

// methodStateDTO is the public view of the method sub-state. Secret material
// (OTP hashes) never appears here.
type methodStateDTO struct {
	GatewayOrderID    string `json:"gateway_order_id,omitempty"`
	SignatureVerified *bool  `json:"signature_verified,omitempty"`
	Confirmed         *bool  `json:"confirmed,omitempty"`
	MobileVerified    *bool  `json:"mobile_verified,omitempty"`
	BalanceChecked    bool   `json:"balance_checked,omitempty"`
	TransactionID     string `json:"transaction_id,omitempty"`
}

func methodStateFrom(ms payment.MethodState) methodStateDTO {
	switch st := ms.(type) {
	case *payment.GatewayState:
		return methodStateDTO{
			GatewayOrderID:    st.GatewayOrderID,
			SignatureVerified: &st.SignatureVerified,
		}
	case *payment.CODState:
		return methodStateDTO{Confirmed: &st.Confirmed}
	case *payment.WalletState:
		return methodStateDTO{
			MobileVerified: &st.MobileVerified,
			BalanceChecked: st.BalanceChecked != nil,
			TransactionID:  st.TransactionID,
		}
	}
	return methodStateDTO{}
}

type paymentResponse struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Method    string         `json:"method"`
	Status    string         `json:"status"`
	Amount    moneyDTO       `json:"amount"`
	Snapshot  snapshotDTO    `json:"snapshot"`
	State     methodStateDTO `json:"state"`
	OrderID   string         `json:"order_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func paymentFromRecord(rec *payment.Record) paymentResponse {
	return paymentResponse{
		ID:        rec.ID,
		UserID:    rec.UserID,
		Method:    string(rec.Method),
		Status:    string(rec.Status),
		Amount:    moneyFrom(rec.Amount),
		Snapshot:  snapshotFrom(rec.Snapshot),
		State:     methodStateFrom(rec.State),
		OrderID:   rec.OrderID,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

type orderItemDTO struct {
	ProductID string   `json:"product_id"`
	VariantID string   `json:"variant_id,omitempty"`
	UnitPrice moneyDTO `json:"unit_price"`
	Quantity  int      `json:"quantity"`
}

type orderResponse struct {
	ID            string         `json:"id"`
	Number        string         `json:"number"`
	UserID        string         `json:"user_id"`
	PaymentID     string         `json:"payment_id"`
	Items         []orderItemDTO `json:"items"`
	Subtotal      moneyDTO       `json:"subtotal"`
	Tax           moneyDTO       `json:"tax"`
	ShippingFee   moneyDTO       `json:"shipping_fee"`
	Discount      moneyDTO       `json:"discount"`
	Total         moneyDTO       `json:"total"`
	OrderStatus   string         `json:"order_status"`
	PaymentStatus string         `json:"payment_status"`
	CreatedAt     time.Time      `json:"created_at"`
}

func orderFromDomain(o *order.Order) orderResponse {
	items := make([]orderItemDTO, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemDTO{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			UnitPrice: moneyFrom(it.UnitPrice),
			Quantity:  it.Quantity,
		}
	}
	return orderResponse{
		ID:            o.ID,
		Number:        o.Number,
		UserID:        o.UserID,
		PaymentID:     o.PaymentID,
		Items:         items,
		Subtotal:      moneyFrom(o.Subtotal),
		Tax:           moneyFrom(o.Tax),
		ShippingFee:   moneyFrom(o.ShippingFee),
		Discount:      moneyFrom(o.Discount),
		Total:         moneyFrom(o.Total),
		OrderStatus:   string(o.OrderStatus),
		PaymentStatus: string(o.PaymentStatus),
		CreatedAt:     o.CreatedAt,
	}
}

// confirmResponse is returned by every endpoint that can complete a payment.
type confirmResponse struct {
	Payment paymentResponse `json:"payment"`
	Order   orderResponse   `json:"order"`
}
