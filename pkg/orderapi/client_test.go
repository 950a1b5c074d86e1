package orderapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"order_dashboard/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchOrders(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bare array", `[{"_id":"1","orderId":"SO-1"},{"id":"2"}]`},
		{"wrapped in data", `{"success":true,"data":[{"_id":"1","orderId":"SO-1"},{"id":"2"}]}`},
		{"wrapped in orders", `{"orders":[{"_id":"1","orderId":"SO-1"},{"id":"2"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/get-orders", r.URL.Path)
				assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			orders, err := NewClient(srv.URL, time.Second).FetchOrders(context.Background(), "tok")
			require.NoError(t, err)
			require.Len(t, orders, 2)
			assert.Equal(t, "1", orders[0].ID)
			assert.Equal(t, "2", orders[1].ID)
		})
	}
}

func TestFetchOrders_NetworkFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, time.Second).FetchOrders(context.Background(), "tok")
	require.Error(t, err)
	assert.True(t, models.IsTransient(err))
}

func TestUpdateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/edit/abc", r.URL.Path)
		var changes map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&changes))
		assert.Equal(t, "Dispatched", changes["dispatchStatus"])
		w.Write([]byte(`{"success":true,"data":{"_id":"abc","dispatchStatus":"Dispatched","total":"1200"}}`))
	}))
	defer srv.Close()

	order, err := NewClient(srv.URL, time.Second).UpdateOrder(context.Background(), "tok", "abc", map[string]interface{}{"dispatchStatus": "Dispatched"})
	require.NoError(t, err)
	assert.Equal(t, "abc", order.ID)
	assert.Equal(t, "Dispatched", order.DispatchStatus)
	assert.Equal(t, 1200.0, order.Total.Float())
}

func TestUpdateOrder_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"success":false,"message":"not your order"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).UpdateOrder(context.Background(), "tok", "abc", map[string]interface{}{})

	var rej *models.UpstreamRejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, http.StatusForbidden, rej.Status)
	assert.Equal(t, "not your order", rej.Message)
	assert.False(t, models.IsTransient(err))
}

func TestDeleteOrder(t *testing.T) {
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/delete/abc", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, NewClient(srv.URL+"/", time.Second).DeleteOrder(context.Background(), "tok", "abc"))
	assert.True(t, called)
}

func TestDeleteOrder_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, time.Second).DeleteOrder(context.Background(), "tok", "abc")
	var rej *models.UpstreamRejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "boom", rej.Message)
}
