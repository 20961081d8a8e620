package ordersvc

import (
	"context"
	"testing"
	"time"

	"github.com/corray333/backend-labs/payment/internal/service/models/order"
	"github.com/corray333/backend-labs/payment/internal/service/models/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrderRepo struct {
	byID      map[string]order.Order
	lastQuery *order.QueryOrdersModel
}

func (r *fakeOrderRepo) Create(_ context.Context, o order.Order) (order.Order, error) {
	r.byID[o.ID] = o
	return o, nil
}

func (r *fakeOrderRepo) GetByID(_ context.Context, id string) (order.Order, error) {
	o, ok := r.byID[id]
	if !ok {
		return order.Order{}, payment.ErrOrderNotFound
	}
	return o, nil
}

func (r *fakeOrderRepo) GetByCorrelationID(context.Context, string) (*order.Order, error) {
	return nil, nil
}

func (r *fakeOrderRepo) GetByIntentID(context.Context, string) (order.Order, error) {
	return order.Order{}, payment.ErrOrderNotFound
}

func (r *fakeOrderRepo) CompareAndSetStatus(context.Context, string, order.Status, order.Status, time.Time) (bool, error) {
	return false, nil
}

func (r *fakeOrderRepo) Query(_ context.Context, filter *order.QueryOrdersModel) ([]order.Order, error) {
	r.lastQuery = filter
	var out []order.Order
	for _, o := range r.byID {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func TestOrderService_GetOrder(t *testing.T) {
	repo := &fakeOrderRepo{byID: map[string]order.Order{
		"o-1": {ID: "o-1", Status: order.StatusPaid},
	}}
	svc := MustNewOrderService(WithOrderRepository(repo))

	got, err := svc.GetOrder(context.Background(), " o-1 ")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, got.Status)

	_, err = svc.GetOrder(context.Background(), "o-2")
	require.ErrorIs(t, err, payment.ErrOrderNotFound)

	_, err = svc.GetOrder(context.Background(), "")
	require.ErrorIs(t, err, ErrInvalidQuery)
}

func TestOrderService_ListOrders(t *testing.T) {
	repo := &fakeOrderRepo{byID: map[string]order.Order{
		"o-1": {ID: "o-1", Status: order.StatusPaid},
		"o-2": {ID: "o-2", Status: order.StatusPending},
	}}
	svc := MustNewOrderService(WithOrderRepository(repo))

	t.Run("default limit", func(t *testing.T) {
		got, err := svc.ListOrders(context.Background(), order.QueryOrdersModel{Status: order.StatusPending})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "o-2", got[0].ID)
		assert.Equal(t, DefaultListLimit, repo.lastQuery.Limit)
	})

	t.Run("rejects bad paging and status", func(t *testing.T) {
		for _, f := range []order.QueryOrdersModel{
			{Limit: -1},
			{Offset: -5},
			{Limit: MaxListLimit + 1},
			{Status: "refunded"},
		} {
			_, err := svc.ListOrders(context.Background(), f)
			require.ErrorIs(t, err, ErrInvalidQuery, "%+v", f)
		}
	})
}
