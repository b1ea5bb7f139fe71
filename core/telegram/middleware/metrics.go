package middleware

import (
	"sync/atomic"

	tele "gopkg.in/telebot.v4"
)

const counterKey = "messages"

// metricsContext wraps tele.Context to count sent messages.
type metricsContext struct {
	tele.Context
	sent *atomic.Int32
}

// Send proxies tele.Context.Send while updating the message counter.
func (m metricsContext) Send(what interface{}, opts ...interface{}) error {
	err := m.Context.Send(what, opts...)
	if err == nil {
		m.sent.Add(1)
	}
	return err
}

// Reply proxies tele.Context.Reply while updating the message counter.
func (m metricsContext) Reply(what interface{}, opts ...interface{}) error {
	err := m.Context.Reply(what, opts...)
	if err == nil {
		m.sent.Add(1)
	}
	return err
}

// MessageMetricsMiddleware instruments context to count outgoing messages.
// Sends may complete on dispatcher workers, so the counter is atomic.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		sent := &atomic.Int32{}
		c.Set(counterKey, sent)
		return next(metricsContext{Context: c, sent: sent})
	}
}

// GetCounters reads the number of messages sent so far for the update.
func GetCounters(c tele.Context) int {
	if sent, ok := c.Get(counterKey).(*atomic.Int32); ok {
		return int(sent.Load())
	}
	return 0
}
