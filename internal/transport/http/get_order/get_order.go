package getorder

import (
	"context"
	"errors"
	"net/http"

	"github.com/corray333/backend-labs/payment/internal/service/models/order"
	"github.com/corray333/backend-labs/payment/internal/service/services/ordersvc"
	"github.com/corray333/backend-labs/payment/internal/transport/http/response"
)

type service interface {
	GetOrder(ctx context.Context, id string) (order.Order, error)
}

// GetOrder handles the single order lookup.
func GetOrder(w http.ResponseWriter, r *http.Request, id string, service service) {
	o, err := service.GetOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, ordersvc.ErrInvalidQuery) {
			response.WriteMessage(w, http.StatusBadRequest, err.Error())

			return
		}
		response.WriteError(w, r, err)

		return
	}

	response.WriteJSON(w, http.StatusOK, o)
}
