// Package events delivers domain notifications to downstream consumers.
// Services never call a Notifier directly; they enqueue outbox rows and the
// Relay forwards them once the surrounding transaction has committed.
package events

import "context"

// Topics emitted by the investment and withdrawal services.
const (
	TopicInvestmentCreated   = "investment_created"
	TopicWithdrawalProcessed = "withdrawal_processed"
)

// Notifier publishes an encoded event payload under a topic.
type Notifier interface {
	Emit(ctx context.Context, topic string, payload []byte) error
}
