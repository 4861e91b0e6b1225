package rabbitmq

import (
	"fmt"
	amqp "github.com/rabbitmq/amqp091-go"
	"strings"
	"time"
)

const Topic = "topic"

// MaxDelayLevel is the highest delay level. Level k holds messages for 2^k
// seconds, so the longest delay is 2^(MaxDelayLevel+1)-1 seconds, about 17 years.
const MaxDelayLevel = 28

// MaxDelay is the longest delay the topology can express.
const MaxDelay = time.Duration(1<<(MaxDelayLevel+1)-1) * time.Second

// routingSuffix ends every routing key so that "#" always has a word to match.
const routingSuffix = "job"

// Topology names the exchanges and queues of one delayed job queue.
//
// A delay is split into its binary digits in seconds. Every level has a topic
// exchange and a queue with a fixed TTL of 2^k seconds that dead-letters into
// the exchange one level down. The routing key spells the digits, so a message
// only waits in the levels whose digit is 1 and skips the others through
// exchange-to-exchange bindings. Every queue has one TTL, so messages expire in
// arrival order and a short delay never waits behind a long one.
type Topology struct {
	DelayExchanges []string // Indexed by level.
	DelayQueues    []string // Indexed by level.
	ReadyExchange  string
	ReadyQueue     string
}

// Binding routes messages with a matching key from Source to Destination,
// which is a queue when ToQueue is set and an exchange otherwise.
type Binding struct {
	Source      string
	Destination string
	Key         string
	ToQueue     bool
}

// NewTopology derives the names for the named queue.
func NewTopology(queue string) Topology {
	t := Topology{
		DelayExchanges: make([]string, MaxDelayLevel+1),
		DelayQueues:    make([]string, MaxDelayLevel+1),
		ReadyExchange:  fmt.Sprintf("dispatch.%s.ready.topic", queue),
		ReadyQueue:     fmt.Sprintf("dispatch.%s.ready.queue", queue),
	}
	for level := 0; level <= MaxDelayLevel; level++ {
		t.DelayExchanges[level] = fmt.Sprintf("dispatch.%s.delay.%02d.exchange", queue, level)
		t.DelayQueues[level] = fmt.Sprintf("dispatch.%s.delay.%02d.queue", queue, level)
	}
	return t
}

// EntryExchange is where every job is published.
func (t Topology) EntryExchange() string {
	return t.DelayExchanges[MaxDelayLevel]
}

// next is where messages go after leaving level.
func (t Topology) next(level int) string {
	if level == 0 {
		return t.ReadyExchange
	}
	return t.DelayExchanges[level-1]
}

// LevelTTL is how long a message stays in the queue of level.
func LevelTTL(level int) time.Duration {
	return time.Duration(1<<level) * time.Second
}

// QueueArgs returns the declaration arguments of the queue of level.
func (t Topology) QueueArgs(level int) amqp.Table {
	return amqp.Table{
		"x-message-ttl":          LevelTTL(level).Milliseconds(),
		"x-dead-letter-exchange": t.next(level),
	}
}

// Bindings lists every binding of the topology.
func (t Topology) Bindings() []Binding {
	bindings := []Binding{{Source: t.ReadyExchange, Destination: t.ReadyQueue, Key: "#", ToQueue: true}}
	for level := MaxDelayLevel; level >= 0; level-- {
		bindings = append(bindings,
			Binding{Source: t.DelayExchanges[level], Destination: t.DelayQueues[level], Key: levelPattern(level, "1"), ToQueue: true},
			Binding{Source: t.DelayExchanges[level], Destination: t.next(level), Key: levelPattern(level, "0")},
		)
	}
	return bindings
}

// Declare declares all necessary exchanges, queues and bindings. It is idempotent.
func (t Topology) Declare(ch *amqp.Channel) error {
	for _, ex := range append([]string{t.ReadyExchange}, t.DelayExchanges...) {
		if err := ch.ExchangeDeclare(ex, Topic, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", ex, err)
		}
	}

	if _, err := ch.QueueDeclare(t.ReadyQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", t.ReadyQueue, err)
	}
	for level, q := range t.DelayQueues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, t.QueueArgs(level)); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", q, err)
		}
	}

	for _, b := range t.Bindings() {
		var err error
		if b.ToQueue {
			err = ch.QueueBind(b.Destination, b.Key, b.Source, false, nil)
		} else {
			err = ch.ExchangeBind(b.Destination, b.Key, b.Source, false, nil)
		}
		if err != nil {
			return fmt.Errorf("failed to bind %s to exchange %s: %w", b.Destination, b.Source, err)
		}
	}
	return nil
}

// levelPattern matches routing keys whose digit for level equals bit.
func levelPattern(level int, bit string) string {
	return strings.Repeat("*.", MaxDelayLevel-level) + bit + ".#"
}

// RoutingKey spells seconds as one binary digit per level, highest level first.
func RoutingKey(seconds int64) string {
	words := make([]string, 0, MaxDelayLevel+2)
	for level := MaxDelayLevel; level >= 0; level-- {
		if seconds>>level&1 == 1 {
			words = append(words, "1")
		} else {
			words = append(words, "0")
		}
	}
	return strings.Join(append(words, routingSuffix), ".")
}

// delaySeconds rounds a delay up to whole seconds so a job never becomes ready early.
func delaySeconds(delay time.Duration) int64 {
	if delay <= 0 {
		return 0
	}
	s := delay / time.Second
	if delay%time.Second != 0 {
		s++
	}
	return int64(s)
}
