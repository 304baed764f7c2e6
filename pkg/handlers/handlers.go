package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/chris/sessioned-bank-transactions/pkg/models"
	"github.com/chris/sessioned-bank-transactions/pkg/processor"
	"github.com/chris/sessioned-bank-transactions/pkg/queue"
	"github.com/chris/sessioned-bank-transactions/pkg/storage"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var httpReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bank_http_requests_total",
	Help: "Total HTTP requests",
}, []string{"method", "endpoint", "status"})

// TickRunner triggers one full pass over all active sessions.
type TickRunner interface {
	RunOnce(ctx context.Context) (int, error)
}

// ApiHandler exposes the producer and admin surface over HTTP. It holds the
// application's dependencies: the queue, the ledger's read side and the
// processing engine for manual triggers.
type ApiHandler struct {
	Queue  queue.Queue
	Store  storage.AccountReader
	Runner processor.Runner
	Tick   TickRunner
	Logger *slog.Logger

	now func() time.Time
}

// NewApiHandler creates a new ApiHandler.
func NewApiHandler(q queue.Queue, store storage.AccountReader, runner processor.Runner, tick TickRunner, logger *slog.Logger) *ApiHandler {
	return &ApiHandler{Queue: q, Store: store, Runner: runner, Tick: tick, Logger: logger, now: time.Now}
}

// Routes mounts every endpoint on a chi router.
func (h *ApiHandler) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/transactions/deposit", h.Deposit)
		r.Post("/transactions/withdraw", h.Withdraw)
		r.Post("/transactions/process/{accountNumber}", h.ProcessAccount)
		r.Post("/transactions/process-all", h.ProcessAll)
		r.Get("/transactions/queue-status", h.QueueStatus)
		r.Get("/accounts/{accountNumber}", h.GetAccount)
		r.Get("/accounts/{accountNumber}/status", h.AccountStatus)
		r.Get("/accounts/{accountNumber}/transactions", h.ListTransactions)
	})
}

// Deposit enqueues a deposit message for asynchronous processing.
func (h *ApiHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.error(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	msg := &models.AccountMessage{
		Kind:          models.KindDeposit,
		MessageId:     uuid.NewString(),
		AccountNumber: req.AccountNumber,
		Amount:        req.Amount,
		Description:   req.Description,
		Timestamp:     h.now().UTC(),
	}
	h.enqueue(w, r, msg)
}

// Withdraw enqueues a withdrawal message. The balance sufficiency check
// here is best-effort: it reads the balance outside the apply transaction,
// so it can go stale before the message is processed.
func (h *ApiHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.error(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	acc, err := h.Store.GetAccount(r.Context(), req.AccountNumber)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			h.error(w, r, http.StatusNotFound, "Account not found")
			return
		}
		h.error(w, r, http.StatusInternalServerError, fmt.Sprintf("Failed to read account: %v", err))
		return
	}
	if acc.Balance.LessThan(req.Amount) {
		h.error(w, r, http.StatusUnprocessableEntity, "Insufficient funds")
		return
	}

	msg := &models.AccountMessage{
		Kind:          models.KindWithdrawal,
		MessageId:     uuid.NewString(),
		AccountNumber: req.AccountNumber,
		Amount:        req.Amount,
		Description:   req.Description,
		Timestamp:     h.now().UTC(),
		Destination:   req.Destination,
	}
	h.enqueue(w, r, msg)
}

// enqueue validates and sends one message, answering 202 on success.
// Validation failures never reach the queue.
func (h *ApiHandler) enqueue(w http.ResponseWriter, r *http.Request, msg *models.AccountMessage) {
	if err := msg.Validate(); err != nil {
		h.error(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid request: %v", err))
		return
	}

	messageId, err := h.Queue.Send(r.Context(), msg)
	if err != nil {
		h.error(w, r, http.StatusInternalServerError, fmt.Sprintf("Failed to enqueue message: %v", err))
		return
	}

	h.respond(w, r, http.StatusAccepted, EnqueuedResponse{
		MessageId: messageId,
		Status:    "QUEUED",
		QueuedAt:  msg.Timestamp,
	})
}

// ProcessAccount synchronously drains one account's session.
func (h *ApiHandler) ProcessAccount(w http.ResponseWriter, r *http.Request) {
	accountNumber := chi.URLParam(r, "accountNumber")

	applied, err := h.Runner.ProcessSession(r.Context(), accountNumber)
	if err != nil {
		h.error(w, r, http.StatusInternalServerError, fmt.Sprintf("Failed to process account: %v", err))
		return
	}

	h.respond(w, r, http.StatusOK, ProcessResponse{AccountNumber: accountNumber, Applied: applied})
}

// ProcessAll synchronously runs one scheduler pass over all active sessions.
func (h *ApiHandler) ProcessAll(w http.ResponseWriter, r *http.Request) {
	applied, err := h.Tick.RunOnce(r.Context())
	if err != nil {
		h.error(w, r, http.StatusInternalServerError, fmt.Sprintf("Failed to process accounts: %v", err))
		return
	}

	h.respond(w, r, http.StatusOK, ProcessResponse{Applied: applied})
}

// QueueStatus reports pending depth and the active-account snapshot.
func (h *ApiHandler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	depth, err := h.Queue.Depth(r.Context())
	if err != nil {
		h.error(w, r, http.StatusInternalServerError, fmt.Sprintf("Failed to read queue depth: %v", err))
		return
	}

	active, err := h.Queue.ListActiveSessions(r.Context())
	if err != nil {
		h.error(w, r, http.StatusInternalServerError, fmt.Sprintf("Failed to list active accounts: %v", err))
		return
	}
	if active == nil {
		active = []string{}
	}

	h.respond(w, r, http.StatusOK, QueueStatusResponse{
		PendingMessages:    depth,
		ActiveAccounts:     active,
		ActiveAccountCount: len(active),
	})
}

// AccountStatus reports whether one account still has queued work.
func (h *ApiHandler) AccountStatus(w http.ResponseWriter, r *http.Request) {
	accountNumber := chi.URLParam(r, "accountNumber")

	active, err := h.Queue.ListActiveSessions(r.Context())
	if err != nil {
		h.error(w, r, http.StatusInternalServerError, fmt.Sprintf("Failed to list active accounts: %v", err))
		return
	}

	pending := false
	for _, a := range active {
		if a == accountNumber {
			pending = true
			break
		}
	}

	h.respond(w, r, http.StatusOK, AccountStatusResponse{
		AccountNumber:          accountNumber,
		HasPendingTransactions: pending,
	})
}

// GetAccount returns the account's current balance and type.
func (h *ApiHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	accountNumber := chi.URLParam(r, "accountNumber")

	acc, err := h.Store.GetAccount(r.Context(), accountNumber)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			h.error(w, r, http.StatusNotFound, "Account not found")
			return
		}
		h.error(w, r, http.StatusInternalServerError, fmt.Sprintf("Failed to read account: %v", err))
		return
	}

	h.respond(w, r, http.StatusOK, acc)
}

// ListTransactions returns the account's most recent ledger entries.
func (h *ApiHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	accountNumber := chi.URLParam(r, "accountNumber")

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			h.error(w, r, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	records, err := h.Store.ListTransactions(r.Context(), accountNumber, limit)
	if err != nil {
		h.error(w, r, http.StatusInternalServerError, fmt.Sprintf("Failed to list transactions: %v", err))
		return
	}
	if records == nil {
		records = []models.TransactionRecord{}
	}

	h.respond(w, r, http.StatusOK, records)
}

// Helpers

func (h *ApiHandler) respond(w http.ResponseWriter, r *http.Request, code int, payload any) {
	httpReqTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.Logger.Error("failed to write response", slog.Any("error", err))
	}
}

func (h *ApiHandler) error(w http.ResponseWriter, r *http.Request, code int, msg string) {
	httpReqTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(code)).Inc()
	http.Error(w, msg, code)
}
