package orders

import (
	"time"

	"github.com/gofrs/uuid"
)

type OrderStatus string

const (
	StatusPending        OrderStatus = "pending"
	StatusConfirmed      OrderStatus = "confirmed"
	StatusProcessing     OrderStatus = "processing"
	StatusOutForDelivery OrderStatus = "out_for_delivery"
	StatusDelivered      OrderStatus = "delivered"
	StatusCancelled      OrderStatus = "cancelled"
)

func (s OrderStatus) String() string {
	return string(s)
}

// Terminal reports whether no further transitions are permitted.
func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Linear happy path plus cancellation from any non-terminal state.
var allowedTransitions = map[OrderStatus]map[OrderStatus]bool{
	StatusPending: {
		StatusConfirmed: true,
		StatusCancelled: true,
	},
	StatusConfirmed: {
		StatusProcessing: true,
		StatusCancelled:  true,
	},
	StatusProcessing: {
		StatusOutForDelivery: true,
		StatusCancelled:      true,
	},
	StatusOutForDelivery: {
		StatusDelivered: true,
		StatusCancelled: true,
	},
	StatusDelivered: {},
	StatusCancelled: {},
}

func CanTransition(from, to OrderStatus) bool {
	return allowedTransitions[from][to]
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

type PaymentMethod string

// Cash on delivery is the only supported payment method.
const PaymentMethodCOD PaymentMethod = "cod"

type DeliveryType string

const (
	DeliveryEmergency DeliveryType = "emergency"
	DeliveryStandard  DeliveryType = "standard"
)

const (
	emergencyDeliveryETA = 10 * time.Minute
	standardDeliveryETA  = 45 * time.Minute

	taxRate              = 0.05
	emergencyDeliveryFee = 100.0
	standardDeliveryFee  = 50.0
)

// EstimatedDelivery returns the promised delivery time for an order placed now.
func EstimatedDelivery(dt DeliveryType, now time.Time) time.Time {
	if dt == DeliveryEmergency {
		return now.Add(emergencyDeliveryETA)
	}
	return now.Add(standardDeliveryETA)
}

func deliveryFee(dt DeliveryType) float64 {
	if dt == DeliveryEmergency {
		return emergencyDeliveryFee
	}
	return standardDeliveryFee
}

// DeliveryAddress is carried through as-is; geocoding and validation of the
// address happen outside this service.
type DeliveryAddress struct {
	Line1      string   `json:"line1" db:"address_line1"`
	Line2      string   `json:"line2,omitempty" db:"address_line2"`
	City       string   `json:"city" db:"address_city"`
	PostalCode string   `json:"postal_code" db:"address_postal_code"`
	Latitude   *float64 `json:"latitude,omitempty" db:"address_latitude"`
	Longitude  *float64 `json:"longitude,omitempty" db:"address_longitude"`
}

type OrderLine struct {
	ID         uuid.UUID `json:"id" db:"id"`
	OrderID    uuid.UUID `json:"order_id" db:"order_id"`
	Position   int       `json:"position" db:"position"` // zero-based cart position, reload order
	MedicineID uuid.UUID `json:"medicine_id" db:"medicine_id"`
	Quantity   int       `json:"quantity" db:"quantity"`
	UnitPrice  float64   `json:"unit_price" db:"unit_price"` // price captured at order time
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// TrackingEntry is one append-only progress record; entries are never edited
// or reordered once written.
type TrackingEntry struct {
	ID        uuid.UUID `json:"id" db:"id"`
	OrderID   uuid.UUID `json:"order_id" db:"order_id"`
	Status    string    `json:"status" db:"status"`
	Latitude  *float64  `json:"latitude,omitempty" db:"latitude"`
	Longitude *float64  `json:"longitude,omitempty" db:"longitude"`
	Timestamp time.Time `json:"timestamp" db:"recorded_at"`
}

type Order struct {
	ID                    uuid.UUID       `json:"id" db:"id"`
	CustomerID            uuid.UUID       `json:"customer_id" db:"customer_id"`
	PharmacyID            uuid.UUID       `json:"pharmacy_id" db:"pharmacy_id"`
	Lines                 []OrderLine     `json:"lines" db:"-"`
	Subtotal              float64         `json:"subtotal" db:"subtotal"`
	Tax                   float64         `json:"tax" db:"tax"`
	DeliveryFee           float64         `json:"delivery_fee" db:"delivery_fee"`
	TotalAmount           float64         `json:"total_amount" db:"total_amount"`
	DeliveryType          DeliveryType    `json:"delivery_type" db:"delivery_type"`
	DeliveryAddress       DeliveryAddress `json:"delivery_address" db:"-"`
	Status                OrderStatus     `json:"status" db:"status"`
	PaymentMethod         PaymentMethod   `json:"payment_method" db:"payment_method"`
	PaymentStatus         PaymentStatus   `json:"payment_status" db:"payment_status"`
	EstimatedDeliveryTime time.Time       `json:"estimated_delivery_time" db:"estimated_delivery_time"`
	ActualDeliveryTime    *time.Time      `json:"actual_delivery_time,omitempty" db:"actual_delivery_time"`
	Tracking              []TrackingEntry `json:"tracking" db:"-"`
	Version               int             `json:"version" db:"version"`
	CreatedAt             time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at" db:"updated_at"`
}
