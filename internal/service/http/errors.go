package httpsvc

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vladislavdragonenkov/clubtab/internal/domain"
)

// Машиночитаемые коды ошибок API.
const (
	codeValidationFailed    = "validation_failed"
	codeNotFound            = "not_found"
	codeInvalidTransition   = "invalid_transition"
	codeWrongPaymentMethod  = "wrong_payment_method"
	codeVersionConflict     = "version_conflict"
	codePaymentGateway      = "payment_gateway_error"
	codeIdempotencyMismatch = "idempotency_key_mismatch"
	codeIdempotencyInFlight = "idempotency_in_progress"
	codeBadRequest          = "bad_request"
	codeInternal            = "internal_error"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// writeDomainError переводит доменную ошибку в HTTP-ответ.
// Конфликт бизнес-правил — 409, отсутствие ресурса — 404, всё прочее
// различимое — 400, неизвестное — 500.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Code:    codeValidationFailed,
			Message: ve.Error(),
			DrinkID: ve.DrinkID,
		})
	case errors.Is(err, domain.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "order not found")
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, codeInvalidTransition, err.Error())
	case errors.Is(err, domain.ErrWrongPaymentMethod):
		writeError(w, http.StatusConflict, codeWrongPaymentMethod, err.Error())
	case errors.Is(err, domain.ErrOrderVersionConflict):
		// Исчерпаны повторы optimistic locking: клиент может повторить запрос.
		writeError(w, http.StatusConflict, codeVersionConflict, err.Error())
	case errors.Is(err, domain.ErrPaymentGateway):
		writeError(w, http.StatusBadGateway, codePaymentGateway, err.Error())
	case errors.Is(err, domain.ErrOrderIDRequired),
		errors.Is(err, domain.ErrClubRequired),
		errors.Is(err, domain.ErrCustomerRequired):
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
	default:
		s.logger.WithError(err).Error("unhandled error in http handler")
		writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}
