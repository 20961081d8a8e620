package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/corray333/backend-labs/payment/internal/service/services/checkoutsvc"
	"github.com/corray333/backend-labs/payment/internal/transport/http/response"
	"github.com/go-playground/validator/v10"
)

// service is an interface for the service layer.
type service interface {
	Checkout(ctx context.Context, req checkoutsvc.Request) (checkoutsvc.Result, error)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// itemInCheckoutRequest represents a cart line in a checkout request.
// Prices are never accepted from the client.
type itemInCheckoutRequest struct {
	ListingID string `json:"listingId" validate:"max=128"`
	Quantity  int    `json:"quantity"`
}

// checkoutRequest represents a checkout request.
type checkoutRequest struct {
	Items         []itemInCheckoutRequest `json:"items"                   validate:"max=500,dive"`
	CorrelationID string                  `json:"correlationId,omitempty" validate:"omitempty,max=255,printascii"`
}

// Validate checks the request shape. Cart semantics are checked by the service.
func (r *checkoutRequest) Validate() error {
	return validate.Struct(r)
}

func (r *checkoutRequest) toModel() checkoutsvc.Request {
	items := make([]checkoutsvc.Item, len(r.Items))
	for i, item := range r.Items {
		items[i] = checkoutsvc.Item{
			ListingID: item.ListingID,
			Quantity:  item.Quantity,
		}
	}

	return checkoutsvc.Request{
		Items:         items,
		CorrelationID: r.CorrelationID,
	}
}

// checkoutResponse is returned with 201 Created.
type checkoutResponse struct {
	OrderID       string `json:"orderId"`
	CorrelationID string `json:"correlationId"`
	ClientSecret  string `json:"clientSecret"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
}

// Checkout handles the checkout request.
func Checkout(w http.ResponseWriter, r *http.Request, service service) {
	req := checkoutRequest{}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		response.WriteMessage(w, http.StatusBadRequest, "request body is not a valid checkout")
		slog.Warn("Error decoding request body for checkout", "error", err)

		return
	}

	if err := req.Validate(); err != nil {
		var verrs validator.ValidationErrors
		msg := "invalid checkout request"
		if errors.As(err, &verrs) && len(verrs) > 0 {
			msg = "invalid field " + verrs[0].Namespace()
		}
		response.WriteMessage(w, http.StatusUnprocessableEntity, msg)
		slog.Warn("Error validating request body for checkout", "error", err)

		return
	}

	res, err := service.Checkout(r.Context(), req.toModel())
	if err != nil {
		response.WriteError(w, r, err)

		return
	}

	response.WriteJSON(w, http.StatusCreated, checkoutResponse{
		OrderID:       res.OrderID,
		CorrelationID: res.CorrelationID,
		ClientSecret:  res.ClientSecret,
		Amount:        res.AmountMinorUnits,
		Currency:      res.Currency.String(),
	})
}
