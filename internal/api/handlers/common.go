package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"auction-storefront/internal/domain"

	"github.com/go-playground/validator/v10"
)

type errorResponse struct {
	Reason string `json:"reason"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, errorResponse{Reason: reason})
}

// bidStatus maps a typed rejection to the HTTP status it is served with.
func bidStatus(kind domain.BidErrorKind) int {
	switch kind {
	case domain.InvalidAmount:
		return http.StatusBadRequest
	case domain.SelfBidForbidden:
		return http.StatusForbidden
	case domain.UnknownBidder:
		return http.StatusNotFound
	case domain.InsufficientBalance:
		return http.StatusUnprocessableEntity
	case domain.PersistenceUnavailable:
		return http.StatusServiceUnavailable
	case domain.ItemNotBiddable, domain.BidTooLow, domain.ConcurrentConflict, domain.DuplicateSubmission:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorStatus maps service errors outside the bid path.
func errorStatus(err error) int {
	if bidErr, ok := domain.AsBidError(err); ok {
		return bidStatus(bidErr.Kind)
	}
	switch {
	case errors.Is(err, domain.ErrItemNotFound), errors.Is(err, domain.ErrBidderNotFound), errors.Is(err, domain.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidItem), errors.Is(err, domain.ErrInvalidBidder):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrNotOnlineAuction),
		errors.Is(err, domain.ErrNotOfflineAuction),
		errors.Is(err, domain.ErrNotTimedAuction),
		errors.Is(err, domain.ErrOwnerCannotWin),
		errors.Is(err, domain.ErrDuplicateBidder),
		errors.Is(err, domain.ErrDuplicateItem),
		errors.Is(err, domain.ErrConcurrentUpdate),
		errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// publicReason hides internal failures from callers.
func publicReason(status int, err error) string {
	if status == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}

func getAllErrorMessages(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err.Error()
	}
	messages := make([]string, 0, len(errs))
	for _, fe := range errs {
		messages = append(messages, validationMessage(fe))
	}
	return strings.Join(messages, "; ")
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("field %s is required", fe.Field())
	case "max":
		return fmt.Sprintf("field %s must be at most %s long", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("field %s must be at least %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("field %s must be one of [%s]", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("field %s must be greater than or equal to %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("field %s failed on %s", fe.Field(), fe.Tag())
	}
}

// newValidator reports JSON field names in validation errors.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
