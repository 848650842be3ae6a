// Package paymenttest runs an in-process stand-in for the Razorpay orders API.
package paymenttest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/joao-fontenele/printstore/internal/domain"
	"github.com/joao-fontenele/printstore/internal/payment"
)

type Server struct {
	*httptest.Server

	KeyID     string
	KeySecret string

	mu       sync.Mutex
	orders   map[string]payment.Order
	creates  int
	seq      int
	failNext *payment.GatewayError
}

func NewServer(keyID, keySecret string) *Server {
	s := &Server{
		KeyID:     keyID,
		KeySecret: keySecret,
		orders:    make(map[string]payment.Order),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/orders", s.handleCreate)
	mux.HandleFunc("GET /v1/orders/{id}", s.handleFetch)
	s.Server = httptest.NewServer(s.authenticate(mux))
	return s
}

// PaymentClient returns a client configured against this server.
func (s *Server) PaymentClient() *payment.Client {
	return payment.NewClient(payment.Config{
		BaseURL:   s.URL,
		KeyID:     s.KeyID,
		KeySecret: s.KeySecret,
	}, s.Client())
}

func (s *Server) CreateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates
}

// FailNext makes the next request answer with err.
func (s *Server) FailNext(err *payment.GatewayError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// Pay plays the hosted checkout: it marks the order paid and returns the
// proof handed to the success callback.
func (s *Server) Pay(gatewayOrderID string) domain.PaymentProof {
	s.mu.Lock()
	defer s.mu.Unlock()

	order := s.orders[gatewayOrderID]
	order.AmountPaid = order.Amount
	order.Status = "paid"
	s.orders[gatewayOrderID] = order

	s.seq++
	paymentID := fmt.Sprintf("pay_test%06d", s.seq)
	return domain.PaymentProof{
		PaymentID:      paymentID,
		GatewayOrderID: gatewayOrderID,
		Signature:      payment.Sign(s.KeySecret, gatewayOrderID, paymentID),
	}
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.KeyID || pass != s.KeySecret {
			writeError(w, &payment.GatewayError{
				StatusCode:  http.StatusUnauthorized,
				Code:        "BAD_REQUEST_ERROR",
				Description: "Authentication failed",
			})
			return
		}
		if err := s.takeFailure(); err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) takeFailure() *payment.GatewayError {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.failNext
	s.failNext = nil
	return err
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Receipt  string `json:"receipt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Amount <= 0 {
		writeError(w, &payment.GatewayError{
			StatusCode:  http.StatusBadRequest,
			Code:        "BAD_REQUEST_ERROR",
			Description: "The amount must be atleast INR 1.00",
		})
		return
	}

	s.mu.Lock()
	s.creates++
	s.seq++
	order := payment.Order{
		ID:       fmt.Sprintf("order_test%06d", s.seq),
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
	}
	s.orders[order.ID] = order
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	order, ok := s.orders[r.PathValue("id")]
	s.mu.Unlock()

	if !ok {
		writeError(w, &payment.GatewayError{
			StatusCode:  http.StatusBadRequest,
			Code:        "BAD_REQUEST_ERROR",
			Description: "The id provided does not exist",
		})
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err *payment.GatewayError) {
	writeJSON(w, err.StatusCode, map[string]any{"error": err})
}
