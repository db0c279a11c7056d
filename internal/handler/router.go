package handler

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openbourse/openbourse/internal/dispatch"
	"github.com/openbourse/openbourse/internal/service"
)

// NewRouter creates a chi router with all routes registered, request
// logging, request IDs, and Content-Type validation middleware.
func NewRouter(
	orderSvc *service.OrderService,
	accountSvc *service.AccountService,
	marketSvc *service.MarketService,
	hub *dispatch.Hub,
	logger *zap.Logger,
) chi.Router {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(requestID)
	r.Use(requestLogging(logger))
	r.Use(contentTypeJSON)

	// Create handlers.
	orderH := NewOrderHandler(orderSvc)
	accountH := NewAccountHandler(accountSvc, orderSvc)
	marketH := NewMarketHandler(marketSvc)
	streamH := NewStreamHandler(hub, logger)

	// Health check.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Order routes.
	r.Post("/orders", orderH.SubmitOrder)
	r.Get("/orders/{order_id}", orderH.GetOrder)
	r.Delete("/orders/{order_id}", orderH.CancelOrder)

	// Account routes.
	r.Get("/accounts/{account_id}/balance", accountH.GetBalance)
	r.Get("/accounts/{account_id}/orders", accountH.ListOrders)

	// Instrument routes.
	r.Get("/instruments", marketH.ListInstruments)
	r.Get("/instruments/{symbol}/price", marketH.GetPrice)
	r.Get("/instruments/{symbol}/book", marketH.GetBook)
	r.Get("/instruments/{symbol}/quote", marketH.GetQuote)
	r.Get("/instruments/{symbol}/trades", marketH.GetTrades)

	// Journal stream.
	r.Get("/stream", streamH.Stream)

	return r
}

// requestID assigns each request a unique ID, echoed in the
// X-Request-Id response header.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

// requestLogging returns middleware that logs each request's method,
// path, status code, and duration.
func requestLogging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("request_id", w.Header().Get("X-Request-Id")),
				zap.Int("status", ww.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Hijack delegates to the wrapped writer so the WebSocket upgrade on
// /stream works through the logging middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

// contentTypeJSON is middleware that validates Content-Type for POST,
// PUT, and PATCH requests. If the Content-Type header doesn't start
// with "application/json", it returns 400 Bad Request before the
// handler runs.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
