package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/UsmanShaikh24/pharmalink/internal/auth"
	"github.com/UsmanShaikh24/pharmalink/internal/orders"
)

type OrderItemRequest struct {
	MedicineID string `json:"medicine_id" validate:"required,uuid4"`
	Quantity   int    `json:"quantity" validate:"required,min=1"`
}

type DeliveryAddressRequest struct {
	Line1      string   `json:"line1" validate:"required"`
	Line2      string   `json:"line2"`
	City       string   `json:"city" validate:"required"`
	PostalCode string   `json:"postal_code" validate:"required"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
}

type CreateOrderRequest struct {
	Items           []OrderItemRequest     `json:"items" validate:"required,min=1,dive"`
	DeliveryType    string                 `json:"delivery_type" validate:"required,oneof=emergency standard"`
	DeliveryAddress DeliveryAddressRequest `json:"delivery_address" validate:"required"`
	PaymentMethod   string                 `json:"payment_method" validate:"required"`
}

type SetStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed processing out_for_delivery delivered cancelled"`
}

type AppendTrackingRequest struct {
	Status    string   `json:"status" validate:"required,min=1"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type TrackingEntryResponse struct {
	Status    string    `json:"status"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type OrderLineResponse struct {
	MedicineID uuid.UUID `json:"medicine_id"`
	Quantity   int       `json:"quantity"`
	UnitPrice  float64   `json:"unit_price"`
}

type OrderResponse struct {
	ID                    uuid.UUID               `json:"id"`
	CustomerID            uuid.UUID               `json:"customer_id"`
	PharmacyID            uuid.UUID               `json:"pharmacy_id"`
	Lines                 []OrderLineResponse     `json:"lines"`
	Subtotal              float64                 `json:"subtotal"`
	Tax                   float64                 `json:"tax"`
	DeliveryFee           float64                 `json:"delivery_fee"`
	TotalAmount           float64                 `json:"total_amount"`
	DeliveryType          string                  `json:"delivery_type"`
	DeliveryAddress       orders.DeliveryAddress  `json:"delivery_address"`
	Status                string                  `json:"status"`
	PaymentMethod         string                  `json:"payment_method"`
	PaymentStatus         string                  `json:"payment_status"`
	EstimatedDeliveryTime time.Time               `json:"estimated_delivery_time"`
	ActualDeliveryTime    *time.Time              `json:"actual_delivery_time,omitempty"`
	Tracking              []TrackingEntryResponse `json:"tracking"`
	CreatedAt             time.Time               `json:"created_at"`
	UpdatedAt             time.Time               `json:"updated_at"`
}

func toOrderResponse(order *orders.Order) OrderResponse {
	lines := make([]OrderLineResponse, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, OrderLineResponse{
			MedicineID: line.MedicineID,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
		})
	}
	tracking := make([]TrackingEntryResponse, 0, len(order.Tracking))
	for _, entry := range order.Tracking {
		tracking = append(tracking, TrackingEntryResponse{
			Status:    entry.Status,
			Latitude:  entry.Latitude,
			Longitude: entry.Longitude,
			Timestamp: entry.Timestamp,
		})
	}
	return OrderResponse{
		ID:                    order.ID,
		CustomerID:            order.CustomerID,
		PharmacyID:            order.PharmacyID,
		Lines:                 lines,
		Subtotal:              order.Subtotal,
		Tax:                   order.Tax,
		DeliveryFee:           order.DeliveryFee,
		TotalAmount:           order.TotalAmount,
		DeliveryType:          string(order.DeliveryType),
		DeliveryAddress:       order.DeliveryAddress,
		Status:                string(order.Status),
		PaymentMethod:         string(order.PaymentMethod),
		PaymentStatus:         string(order.PaymentStatus),
		EstimatedDeliveryTime: order.EstimatedDeliveryTime,
		ActualDeliveryTime:    order.ActualDeliveryTime,
		Tracking:              tracking,
		CreatedAt:             order.CreatedAt,
		UpdatedAt:             order.UpdatedAt,
	}
}

type OrderHandler struct {
	service  orders.Service
	validate *validator.Validate
}

func NewOrderHandler(service orders.Service) *OrderHandler {
	return &OrderHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Post("/orders", h.handleCreateOrder)
	router.Get("/orders", h.handleListOrders)
	router.Get("/orders/{id}", h.handleGetOrder)
	router.Patch("/orders/{id}/status", h.handleSetStatus)
	router.Post("/orders/{id}/cancel", h.handleCancelOrder)
	router.Post("/orders/{id}/tracking", h.handleAppendTracking)
}

func (h *OrderHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromRequest(w, r)
	if !ok {
		return
	}
	if principal.Role != auth.RoleCustomer {
		respondWithError(w, http.StatusForbidden, "Only customers may place orders")
		return
	}

	var requestPayload CreateOrderRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&requestPayload); err != nil {
		log.Error().Err(err).Msg("Failed to decode request body")
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request payload %v", err))
		return
	}

	if err := h.validate.Struct(requestPayload); err != nil {
		if !respondWithValidationError(w, err) {
			log.Error().Err(err).Msg("Unexpected error type during validation")
			respondWithError(w, http.StatusInternalServerError, "Internal validation error")
		}
		return
	}

	lines := make([]orders.CartLine, 0, len(requestPayload.Items))
	for _, item := range requestPayload.Items {
		medicineID, err := uuid.FromString(item.MedicineID)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid medicine id %q", item.MedicineID))
			return
		}
		lines = append(lines, orders.CartLine{MedicineID: medicineID, Quantity: item.Quantity})
	}

	input := orders.CreateOrderInput{
		CustomerID:   principal.ID,
		Lines:        lines,
		DeliveryType: orders.DeliveryType(requestPayload.DeliveryType),
		DeliveryAddress: orders.DeliveryAddress{
			Line1:      requestPayload.DeliveryAddress.Line1,
			Line2:      requestPayload.DeliveryAddress.Line2,
			City:       requestPayload.DeliveryAddress.City,
			PostalCode: requestPayload.DeliveryAddress.PostalCode,
			Latitude:   requestPayload.DeliveryAddress.Latitude,
			Longitude:  requestPayload.DeliveryAddress.Longitude,
		},
		PaymentMethod: orders.PaymentMethod(requestPayload.PaymentMethod),
	}

	order, err := h.service.CreateOrder(r.Context(), input)
	if err != nil {
		log.Error().Err(err).Stringer("customer_id", principal.ID).Msg("Failed to create order via service")
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *OrderHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromRequest(w, r)
	if !ok {
		return
	}

	orderID, ok := orderIDFromURL(w, r)
	if !ok {
		return
	}

	order, err := h.service.GetOrder(r.Context(), orderID, principal)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), clientMessage(err, "Failed to get order"))
		return
	}

	respondWithJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromRequest(w, r)
	if !ok {
		return
	}

	orderList, err := h.service.ListOrders(r.Context(), principal)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), clientMessage(err, "Failed to list orders"))
		return
	}

	responsePayload := make([]OrderResponse, 0, len(orderList))
	for i := range orderList {
		responsePayload = append(responsePayload, toOrderResponse(&orderList[i]))
	}

	respondWithJSON(w, http.StatusOK, responsePayload)
}

func (h *OrderHandler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromRequest(w, r)
	if !ok {
		return
	}

	orderID, ok := orderIDFromURL(w, r)
	if !ok {
		return
	}

	var requestPayload SetStatusRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&requestPayload); err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request payload %v", err))
		return
	}
	if err := h.validate.Struct(requestPayload); err != nil {
		if !respondWithValidationError(w, err) {
			respondWithError(w, http.StatusInternalServerError, "Internal validation error")
		}
		return
	}

	order, err := h.service.SetStatus(r.Context(), orderID, orders.OrderStatus(requestPayload.Status), principal)
	if err != nil {
		log.Warn().Err(err).Stringer("order_id", orderID).Str("new_status", requestPayload.Status).Msg("Failed to set order status via service")
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromRequest(w, r)
	if !ok {
		return
	}

	orderID, ok := orderIDFromURL(w, r)
	if !ok {
		return
	}

	order, err := h.service.CancelOrder(r.Context(), orderID, principal)
	if err != nil {
		log.Warn().Err(err).Stringer("order_id", orderID).Msg("Failed to cancel order via service")
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) handleAppendTracking(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromRequest(w, r)
	if !ok {
		return
	}

	orderID, ok := orderIDFromURL(w, r)
	if !ok {
		return
	}

	var requestPayload AppendTrackingRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&requestPayload); err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request payload %v", err))
		return
	}
	if err := h.validate.Struct(requestPayload); err != nil {
		if !respondWithValidationError(w, err) {
			respondWithError(w, http.StatusInternalServerError, "Internal validation error")
		}
		return
	}

	input := orders.TrackingInput{
		Status:    requestPayload.Status,
		Latitude:  requestPayload.Latitude,
		Longitude: requestPayload.Longitude,
	}

	order, err := h.service.AppendTracking(r.Context(), orderID, input, principal)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), clientMessage(err, "Failed to append tracking entry"))
		return
	}

	respondWithJSON(w, http.StatusOK, toOrderResponse(order))
}

func orderIDFromURL(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idParam := chi.URLParam(r, "id")
	orderID, err := uuid.FromString(idParam)
	if err != nil {
		log.Warn().Err(err).Str("order_id", idParam).Msg("Failed to parse id parameter from URL")
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return uuid.Nil, false
	}
	return orderID, true
}

func clientMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, orders.ErrOrderNotFound):
		return "Order not found"
	case errors.Is(err, auth.ErrNotAuthorized):
		return "Not authorized"
	default:
		return fallback
	}
}
