package bank

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClient_DistinguishesCallFailureFromMalformedResponse(t *testing.T) {
	// 500 → call failure
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	c := NewClient(srv.URL, time.Second)
	_, err := c.RequestLoan(context.Background(), 1000)
	srv.Close()
	if !errors.Is(err, ErrCallFailed) {
		t.Errorf("expected ErrCallFailed, got %v", err)
	}

	// 200 with missing field → malformed
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()
	c = NewClient(srv.URL, time.Second)
	_, err = c.RequestLoan(context.Background(), 1000)
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestClient_Balance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/account/balance" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"balance": 123400}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	got, err := c.Balance(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 123400 {
		t.Errorf("balance = %d", got)
	}
}

func TestClient_MakePayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transaction_reference": "tx-9"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	ref, err := c.MakePayment(context.Background(), PaymentRequest{Amount: 50, Reference: "order-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref != "tx-9" {
		t.Errorf("ref = %q", ref)
	}
}
