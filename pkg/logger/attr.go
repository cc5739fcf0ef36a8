package logger

import (
	"log/slog"
	"strconv"
	"time"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// ProductID records the store product identifier under the key "product_id".
func ProductID(id string) slog.Attr {
	return slog.String("product_id", id)
}

// TransactionID records the store transaction identifier under the key "transaction_id".
// If id is empty, it returns an empty Attr.
func TransactionID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("transaction_id", id)
}

// GroupID records the subscription group identifier under the key "group_id".
func GroupID(id string) slog.Attr {
	return slog.String("group_id", id)
}

// Stream records the update stream a record belongs to under the key "stream".
func Stream(name string) slog.Attr {
	return slog.String("stream", name)
}

// PurchaseState records a purchase flow state under the key "purchase_state".
func PurchaseState(state string) slog.Attr {
	return slog.String("purchase_state", state)
}

// Entitled records an entitlement flag under the key "entitled".
func Entitled(v bool) slog.Attr {
	return slog.Bool("entitled", v)
}

// Reason records why something happened under the key "reason".
func Reason(reason string) slog.Attr {
	return slog.String("reason", reason)
}

// RetryCount records the retry count under the key "retry_count".
func RetryCount(count int) slog.Attr {
	return slog.Int("retry_count", count)
}

// Duration records a duration under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// EventType records the webhook event type under the key "event_type".
func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}
