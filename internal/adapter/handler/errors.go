package handler

import (
	"errors"
	"net/http"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"google.golang.org/grpc/codes"

	"github.com/rl1809/storefront/internal/core/domain"
)

const serverErrorMessage = "Server error"

// errorResponse is what every failing HTTP call returns.
type errorResponse struct {
	Message string `json:"message"`
	OrderID string `json:"orderId,omitempty"`
}

// classifiedError is a domain error resolved to its client-facing form.
type classifiedError struct {
	status   int
	code     codes.Code
	message  string
	orderID  string
	internal bool // log the cause, hide it from the client
}

// classify maps domain errors onto transport statuses. Anything unknown is an
// internal error.
func classify(err error) classifiedError {
	// Must come first: it unwraps to the stock error that caused it
	var partial *domain.PartialConversionError
	if errors.As(err, &partial) {
		return classifiedError{
			status:   http.StatusInternalServerError,
			code:     codes.Internal,
			message:  "Order created but stock adjustment incomplete",
			orderID:  partial.Order.ID,
			internal: true,
		}
	}

	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		msg := validation.Message
		if validation.Field != "" {
			msg = validation.Field + " " + msg
		}
		return classifiedError{status: http.StatusBadRequest, code: codes.InvalidArgument, message: msg}
	}

	var notFound *domain.NotFoundError
	if errors.As(err, &notFound) {
		return classifiedError{status: http.StatusNotFound, code: codes.NotFound, message: notFoundMessage(notFound)}
	}

	var stock *domain.StockError
	if errors.As(err, &stock) {
		name := stock.ProductName
		if name == "" {
			name = stock.ProductID
		}
		return classifiedError{
			status:  http.StatusBadRequest,
			code:    codes.FailedPrecondition,
			message: "Insufficient stock for product: " + name,
		}
	}

	switch {
	case errors.Is(err, domain.ErrValidation):
		return classifiedError{status: http.StatusBadRequest, code: codes.InvalidArgument, message: err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		return classifiedError{status: http.StatusNotFound, code: codes.NotFound, message: "Not found"}
	case errors.Is(err, domain.ErrInsufficientStock):
		return classifiedError{status: http.StatusBadRequest, code: codes.FailedPrecondition, message: "Insufficient stock"}
	case errors.Is(err, domain.ErrInvalidState):
		return classifiedError{status: http.StatusBadRequest, code: codes.FailedPrecondition, message: "Cart not found or empty"}
	case errors.Is(err, domain.ErrDuplicateRequest):
		return classifiedError{status: http.StatusConflict, code: codes.AlreadyExists, message: "Duplicate request"}
	case errors.Is(err, domain.ErrConflict):
		return classifiedError{status: http.StatusConflict, code: codes.Aborted, message: "Cart was modified concurrently, please retry"}
	}

	return classifiedError{
		status:   http.StatusInternalServerError,
		code:     codes.Internal,
		message:  serverErrorMessage,
		internal: true,
	}
}

func notFoundMessage(err *domain.NotFoundError) string {
	if err.Entity == "cart item" {
		return "Product not in cart"
	}
	// Caser is stateful, keep it local
	return cases.Title(language.English).String(err.Entity) + " not found"
}
