package keybuilder

import (
	"fmt"
)

const (
	Redis    string = "redis"
	Dispatch string = "dispatch"
)

// Suffixes of the keys that make up one Redis job queue.
const (
	Pending    string = "pending"
	Inflight   string = "inflight"
	Payloads   string = "payloads"
	Eligible   string = "eligible"
	Deliveries string = "deliveries"
	History    string = "history"
	HistorySeq string = "history_seq"
)

// RedisQueueKeyBuild returns the key of one part of the named queue,
// e.g. "redis:dispatch:default:pending".
func RedisQueueKeyBuild(queue, part string) string {
	return fmt.Sprintf("%s:%s:%s:%s", Redis, Dispatch, queue, part)
}
