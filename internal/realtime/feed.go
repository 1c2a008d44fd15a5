// README: In-process change feed; fans row changes out to topic subscribers.
package realtime

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type Topic string

const (
	TopicRides   Topic = "rides"
	TopicChat    Topic = "chat_messages"
	TopicWallets Topic = "wallets"
)

// Change is one row change. Row holds the changed row as decoded JSON.
type Change struct {
	Topic Topic
	Op    string
	Row   map[string]any
}

// String returns a row field as text, or "" when absent or null.
func (c Change) String(field string) string {
	switch v := c.Row[field].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Decode unmarshals the row into dst.
func (c Change) Decode(dst any) error {
	b, err := json.Marshal(c.Row)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

type Predicate func(Change) bool

func FieldEquals(field, value string) Predicate {
	return func(c Change) bool { return c.String(field) == value }
}

type subscription struct {
	topic Topic
	pred  Predicate
	fn    func(Change)
}

type Feed struct {
	mu   sync.RWMutex
	next int
	subs map[int]subscription
	log  *zap.Logger
}

func NewFeed(log *zap.Logger) *Feed {
	if log == nil {
		log = zap.NewNop()
	}
	return &Feed{subs: make(map[int]subscription), log: log}
}

// Subscribe registers fn for changes on topic that satisfy pred (nil matches
// all). fn runs on the publishing goroutine and must not block. The returned
// function removes the subscription and is safe to call more than once.
func (f *Feed) Subscribe(topic Topic, pred Predicate, fn func(Change)) (unsubscribe func()) {
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = subscription{topic: topic, pred: pred, fn: fn}
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

func (f *Feed) Publish(c Change) {
	f.mu.RLock()
	matched := make([]func(Change), 0, len(f.subs))
	for _, s := range f.subs {
		if s.topic == c.Topic && (s.pred == nil || s.pred(c)) {
			matched = append(matched, s.fn)
		}
	}
	f.mu.RUnlock()
	for _, fn := range matched {
		fn(c)
	}
}

func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
