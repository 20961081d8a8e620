package listorders

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/corray333/backend-labs/payment/internal/service/models/order"
	"github.com/corray333/backend-labs/payment/internal/service/services/ordersvc"
	"github.com/corray333/backend-labs/payment/internal/transport/http/response"
	"github.com/gorilla/schema"
)

type service interface {
	ListOrders(ctx context.Context, filter order.QueryOrdersModel) ([]order.Order, error)
}

var decoder = newDecoder()

func newDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)

	return d
}

type queryOrdersRequest struct {
	IDs           []string `schema:"ids,omitempty"`
	CorrelationID string   `schema:"correlationId,omitempty"`
	IntentID      string   `schema:"intentId,omitempty"`
	Status        string   `schema:"status,omitempty"`
	Limit         int      `schema:"limit,omitempty"`
	Offset        int      `schema:"offset,omitempty"`
}

func (q *queryOrdersRequest) ToModel() order.QueryOrdersModel {
	return order.QueryOrdersModel{
		IDs:           q.IDs,
		CorrelationID: q.CorrelationID,
		IntentID:      q.IntentID,
		Status:        order.Status(q.Status),
		Limit:         q.Limit,
		Offset:        q.Offset,
	}
}

type listOrdersResponse struct {
	Orders []order.Order `json:"orders"`
}

func ListOrders(w http.ResponseWriter, r *http.Request, service service) {
	query := &queryOrdersRequest{}
	if err := decoder.Decode(query, r.URL.Query()); err != nil {
		response.WriteMessage(w, http.StatusBadRequest, "invalid query parameters")
		slog.Warn("Error decoding request", "error", err)

		return
	}

	orders, err := service.ListOrders(r.Context(), query.ToModel())
	if err != nil {
		if errors.Is(err, ordersvc.ErrInvalidQuery) {
			response.WriteMessage(w, http.StatusBadRequest, err.Error())

			return
		}
		response.WriteError(w, r, err)

		return
	}

	if orders == nil {
		orders = []order.Order{}
	}
	response.WriteJSON(w, http.StatusOK, listOrdersResponse{Orders: orders})
}
