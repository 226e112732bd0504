package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/UsmanShaikh24/pharmalink/internal/catalog"
)

type AdjustStockRequest struct {
	Quantity  int    `json:"quantity" validate:"required,min=1"`
	Operation string `json:"operation" validate:"required,oneof=add subtract"`
}

type AdjustStockResponse struct {
	MedicineID  uuid.UUID `json:"medicine_id"`
	NewQuantity int       `json:"new_quantity"`
	IsLowStock  bool      `json:"is_low_stock"`
}

type MedicineHandler struct {
	service  catalog.Service
	validate *validator.Validate
}

func NewMedicineHandler(service catalog.Service) *MedicineHandler {
	return &MedicineHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *MedicineHandler) RegisterRoutes(router chi.Router) {
	router.Patch("/medicines/{id}/stock", h.handleAdjustStock)
}

func (h *MedicineHandler) handleAdjustStock(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromRequest(w, r)
	if !ok {
		return
	}

	idParam := chi.URLParam(r, "id")
	medicineID, err := uuid.FromString(idParam)
	if err != nil {
		log.Warn().Err(err).Str("medicine_id", idParam).Msg("Failed to parse id parameter from URL")
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	var requestPayload AdjustStockRequest

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

	adjustment, err := h.service.AdjustStock(
		r.Context(),
		medicineID,
		requestPayload.Quantity,
		catalog.Operation(requestPayload.Operation),
		principal,
	)
	if err != nil {
		log.Warn().Err(err).Stringer("medicine_id", medicineID).Msg("Failed to adjust stock via service")
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, AdjustStockResponse{
		MedicineID:  adjustment.MedicineID,
		NewQuantity: adjustment.NewQuantity,
		IsLowStock:  adjustment.IsLowStock,
	})
}
