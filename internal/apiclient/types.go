package apiclient

import (
	"time"

	"github.com/veya/storefront/internal/money"
)

// Category is a product category as listed by the backend.
type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
}

// Product is the catalog product shape. DiscountPrice is nil when no sale price is set.
type Product struct {
	ID                 int64        `json:"id"`
	Name               string       `json:"name"`
	Slug               string       `json:"slug"`
	Description        string       `json:"description,omitempty"`
	Price              money.Money  `json:"price"`
	DiscountPrice      *money.Money `json:"discount_price"`
	Category           *Category    `json:"category,omitempty"`
	Image              string       `json:"image,omitempty"`
	Stock              int          `json:"stock"`
	SkinType           string       `json:"skin_type,omitempty"`
	Rating             float64      `json:"rating"`
	ReviewCount        int          `json:"review_count"`
	IsTrending         bool         `json:"is_trending"`
	IsBestseller       bool         `json:"is_bestseller"`
	IsNew              bool         `json:"is_new"`
	DiscountPercentage int          `json:"discount_percentage"`
}

// EffectivePrice is the sale price when present, otherwise the list price.
func (p Product) EffectivePrice() money.Money {
	if p.DiscountPrice != nil {
		return *p.DiscountPrice
	}
	return p.Price
}

// CartItem is one line of the visitor's cart. TotalPrice is computed by the backend.
type CartItem struct {
	ID         int64       `json:"id"`
	Product    Product     `json:"product"`
	Quantity   int         `json:"quantity"`
	TotalPrice money.Money `json:"total_price"`
}

// CouponValidation is the response of POST /coupons/validate/.
type CouponValidation struct {
	Valid          bool        `json:"valid"`
	Code           string      `json:"code"`
	DiscountAmount money.Money `json:"discount_amount"`
	Error          string      `json:"error,omitempty"`
}

// UserCoupon is a coupon owned by the signed-in user.
type UserCoupon struct {
	ID             int64       `json:"id"`
	Code           string      `json:"code"`
	DiscountAmount money.Money `json:"discount_amount"`
	IsUsed         bool        `json:"is_used"`
	CreatedAt      time.Time   `json:"created_at"`
}

// DeliveryDetails are the shipping fields submitted with an order. The
// validate tags are the minimum every order needs.
type DeliveryDetails struct {
	FullName        string `json:"full_name" validate:"required"`
	Email           string `json:"email" validate:"omitempty,email"`
	Phone           string `json:"phone" validate:"required,phone10"`
	ShippingAddress string `json:"shipping_address" validate:"required"`
	City            string `json:"city"`
	State           string `json:"state"`
	Pincode         string `json:"pincode" validate:"omitempty,len=6,numeric"`
}

// CreateOrderRequest is the body of POST /orders/.
type CreateOrderRequest struct {
	DeliveryDetails
	TotalAmount money.Money `json:"total_amount"`
	CouponCode  string      `json:"coupon_code,omitempty"`
}

// OrderStatus is owned by the backend.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderProcessing, OrderCancelled},
	OrderProcessing: {OrderShipped, OrderCancelled},
	OrderShipped:    {OrderDelivered},
}

// CanTransitionTo reports whether the backend may move an order from s to next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further status change is possible.
func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

// OrderItem is a purchased line captured at order time.
type OrderItem struct {
	ID       int64       `json:"id"`
	Product  Product     `json:"product"`
	Quantity int         `json:"quantity"`
	Price    money.Money `json:"price"`
}

// Order is the server-side order record.
type Order struct {
	ID              int64       `json:"id"`
	OrderNumber     string      `json:"order_number"`
	TotalAmount     money.Money `json:"total_amount"`
	Status          OrderStatus `json:"status"`
	FullName        string      `json:"full_name,omitempty"`
	Email           string      `json:"email,omitempty"`
	Phone           string      `json:"phone,omitempty"`
	ShippingAddress string      `json:"shipping_address,omitempty"`
	City            string      `json:"city,omitempty"`
	State           string      `json:"state,omitempty"`
	Pincode         string      `json:"pincode,omitempty"`
	Items           []OrderItem `json:"items,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// PaymentInit is the response of POST /orders/{id}/create_payment/.
// When PaymentRequired is false the order is already complete (cash on delivery).
type PaymentInit struct {
	PaymentRequired bool   `json:"payment_required"`
	Message         string `json:"message,omitempty"`
	GatewayOrderID  string `json:"order_id,omitempty"`
	AmountPaise     int64  `json:"amount,omitempty"`
	Currency        string `json:"currency,omitempty"`
	Key             string `json:"key,omitempty"`

	// Alternate names some backend versions use for the same fields.
	AltGatewayOrderID string `json:"razorpay_order_id,omitempty"`
	AltKey            string `json:"key_id,omitempty"`
}

// User is the signed-in account.
type User struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	DateJoined time.Time `json:"date_joined"`
}

// ProfileUpdate is the body of PATCH /users/me/. Nil fields are left unchanged.
type ProfileUpdate struct {
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
}

// RegisterRequest is the body of POST /auth/register/.
type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// RewardCoupon is unlocked by a successful promotional OTP verification.
type RewardCoupon struct {
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
}

// OTPResult is the response of the verify-otp endpoints.
type OTPResult struct {
	Message string        `json:"message"`
	Coupon  *RewardCoupon `json:"coupon,omitempty"`
}

// BulkOrderRequest is a wholesale enquiry.
type BulkOrderRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Company  string `json:"company,omitempty"`
	Quantity string `json:"quantity"`
	Message  string `json:"message,omitempty"`
}

// ProductQuery filters GET /products/.
type ProductQuery struct {
	Category   string
	Search     string
	SkinType   string
	Trending   bool
	Bestseller bool
}
