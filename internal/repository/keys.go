package repository

import "fmt"

// Shared-store key layout.
const (
	keyPrefix = "tv"
	ConfigKey = keyPrefix + ":config"
)

func eventsKey(symbol string) string { return fmt.Sprintf("%s:events:%s", keyPrefix, symbol) }

func eventsSeqKey(symbol string) string { return fmt.Sprintf("%s:events_seq:%s", keyPrefix, symbol) }

func dedupeKey(symbol, eventID string) string {
	return fmt.Sprintf("%s:dedupe:%s:%s", keyPrefix, symbol, eventID)
}

func latestKey(symbol string) string { return fmt.Sprintf("%s:latest:%s", keyPrefix, symbol) }

func rateKey(symbol string, bucket int64) string {
	return fmt.Sprintf("%s:rate:%s:%d", keyPrefix, symbol, bucket)
}

// AILockKey is the single-flight key of the explanation tier.
func AILockKey(symbol string) string { return fmt.Sprintf("%s:lock:ai:%s", keyPrefix, symbol) }
