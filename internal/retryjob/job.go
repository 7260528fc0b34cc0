// Package retryjob holds the closed set of durable retry jobs, the tag
// registry that maps each job to its typed handler, the conditional queue
// publisher and the generic dispatcher loop.
package retryjob

import (
	"context"
	"encoding/json"
	"fmt"
)

// Job is a durable, typed unit of deferred work. Tags are globally unique;
// the dispatcher refuses to acknowledge a message whose tag it does not know.
type Job interface {
	Tag() string
	// GroupKey partitions related messages (e.g. per recipient). Empty means
	// no grouping.
	GroupKey() string
}

const (
	TagBankAccount = "BankAccountRetry"
	TagBankBalance = "BankBalanceRetry"
	TagPayment     = "PaymentRetry"
)

// BankAccountRetryJob replays the bank-account setup call.
type BankAccountRetryJob struct {
	NotificationURL string `json:"notification_url,omitempty"`
}

func (BankAccountRetryJob) Tag() string      { return TagBankAccount }
func (BankAccountRetryJob) GroupKey() string { return "" }

// BankBalanceRetryJob replays a balance query for the given day.
type BankBalanceRetryJob struct {
	Day int `json:"day"`
}

func (BankBalanceRetryJob) Tag() string      { return TagBankBalance }
func (BankBalanceRetryJob) GroupKey() string { return "" }

// PaymentRetryJob replays one deferred payment. The worker re-validates the
// referenced order before calling the bank, which is what makes redelivery
// safe.
type PaymentRetryJob struct {
	OrderID          uint64 `json:"order_id"`
	RecipientName    string `json:"recipient_name"`
	RecipientAccount string `json:"recipient_account"`
	RecipientBankID  string `json:"recipient_bank_id"`
	Amount           int64  `json:"amount"`
	Reference        string `json:"reference"`
}

func (PaymentRetryJob) Tag() string        { return TagPayment }
func (j PaymentRetryJob) GroupKey() string { return j.RecipientName }

// Envelope is the wire form. Consumers must tolerate unknown fields, so only
// the discriminator is required.
type Envelope struct {
	JobType string          `json:"job_type"`
	Payload json.RawMessage `json:"payload"`
}

// Encode wraps a job in its envelope and serializes it.
func Encode(job Job) ([]byte, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", job.Tag(), err)
	}
	return json.Marshal(Envelope{JobType: job.Tag(), Payload: payload})
}

// handleFunc is the type-erased form a typed handler is reduced to at
// registration time. The returned error is a payload decode failure only;
// handler outcomes travel in the bool.
type handleFunc func(ctx context.Context, payload []byte) (bool, error)

// Registry maps job tags to type-erased handlers.
type Registry struct {
	handlers map[string]handleFunc
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]handleFunc)}
}

// Register binds a typed handler to T's tag. Adding a new retryable job type
// is one Register call plus the handler; the dispatcher never changes.
//
// Package-level generic function because Go does not allow generic methods.
func Register[T Job](r *Registry, handler func(ctx context.Context, job T) bool) {
	var zero T
	tag := zero.Tag()
	r.handlers[tag] = func(ctx context.Context, payload []byte) (bool, error) {
		var job T
		if err := json.Unmarshal(payload, &job); err != nil {
			return false, fmt.Errorf("decode %s payload: %w", tag, err)
		}
		return handler(ctx, job), nil
	}
}

func (r *Registry) lookup(tag string) (handleFunc, bool) {
	h, ok := r.handlers[tag]
	return h, ok
}
