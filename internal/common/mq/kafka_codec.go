package mq

import (
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// Reserved headers carry Message metadata; they never appear in Message.Headers.
const (
	headerID         = "x-message-id"
	headerTimestamp  = "x-message-ts"
	headerRetryCount = "x-message-retry"
	headerMaxRetries = "x-message-max-retries"
)

func encodeMessage(topic string, m *Message) kafka.Message {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	headers := make([]kafka.Header, 0, len(m.Headers)+4)
	add := func(key, value string) {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
	}
	for key, value := range m.Headers {
		add(key, value)
	}
	if m.ID != "" {
		add(headerID, m.ID)
	}
	add(headerTimestamp, m.Timestamp.Format(time.RFC3339Nano))
	if m.RetryCount > 0 {
		add(headerRetryCount, strconv.Itoa(m.RetryCount))
	}
	if m.MaxRetries > 0 {
		add(headerMaxRetries, strconv.Itoa(m.MaxRetries))
	}
	return kafka.Message{
		Topic:   topic,
		Key:     []byte(m.ID),
		Value:   m.Body,
		Headers: headers,
		Time:    m.Timestamp,
	}
}

func decodeMessage(msg kafka.Message) *Message {
	m := &Message{
		ID:        string(msg.Key),
		Body:      msg.Value,
		Headers:   make(map[string]string, len(msg.Headers)),
		Timestamp: msg.Time,
	}
	for _, h := range msg.Headers {
		value := string(h.Value)
		switch h.Key {
		case headerID:
			m.ID = value
		case headerTimestamp:
			if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
				m.Timestamp = ts
			}
		case headerRetryCount:
			m.RetryCount = parseCount(value)
		case headerMaxRetries:
			m.MaxRetries = parseCount(value)
		default:
			m.Headers[h.Key] = value
		}
	}
	return m
}

func parseCount(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
