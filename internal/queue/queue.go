package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Activity message types published after a successful write.
const (
	TypeRegistrationCreated = "registration.created"
	TypeAttendanceMarked    = "attendance.marked"
	TypeFeedbackSubmitted   = "feedback.submitted"
	TypeEventCreated        = "event.created"
	TypeEventCancelled      = "event.cancelled"
	TypeStudentCreated      = "student.created"
	TypeCollegeCreated      = "college.created"
)

// Message describes one committed change.
type Message struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	EventID   int64     `json:"event_id,omitempty"`
	StudentID int64     `json:"student_id,omitempty"`
	At        time.Time `json:"at"`
}

// NewMessage stamps a message with a fresh id and the current time.
func NewMessage(msgType string, eventID, studentID int64) Message {
	return Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		EventID:   eventID,
		StudentID: studentID,
		At:        time.Now().UTC(),
	}
}

// Queue is the abstraction over different backends.
type Queue interface {
	Publish(ctx context.Context, msg Message) error
	Consume(ctx context.Context) (<-chan Message, error)
}

// ErrFull is returned by InMemory.Publish when the buffer has no room.
var ErrFull = errors.New("queue full")

// InMemory is a minimal channel-backed queue for dev/testing.
type InMemory struct {
	ch chan Message
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	if size <= 0 {
		size = 64
	}
	return &InMemory{ch: make(chan Message, size)}
}

// Publish enqueues a message without blocking the caller's request.
func (q *InMemory) Publish(ctx context.Context, msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrFull
	}
}

// Consume returns a channel for workers. It closes when ctx is done.
func (q *InMemory) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case msg := <-q.ch:
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue implements a simple Redis list-backed queue.
type RedisQueue struct {
	client  *redis.Client
	key     string
	timeout time.Duration
	onError func(error)
}

// RedisOption customises a RedisQueue.
type RedisOption func(*RedisQueue)

// WithErrorHandler receives BRPOP and decode failures, which otherwise only cause a retry.
func WithErrorHandler(fn func(error)) RedisOption {
	return func(q *RedisQueue) { q.onError = fn }
}

// WithPollTimeout sets how long one BRPOP blocks.
func WithPollTimeout(d time.Duration) RedisOption {
	return func(q *RedisQueue) { q.timeout = d }
}

// NewRedisQueue builds a queue using LPUSH/BRPOP semantics.
func NewRedisQueue(client *redis.Client, key string, opts ...RedisOption) *RedisQueue {
	if key == "" {
		key = "campus:activity"
	}
	q := &RedisQueue{client: client, key: key, timeout: 5 * time.Second, onError: func(error) {}}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Publish enqueues a message.
func (q *RedisQueue) Publish(ctx context.Context, msg Message) error {
	payload, err := serialize(msg)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, payload).Err()
}

// Consume streams messages using BRPOP.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, q.timeout, q.key).Result()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !errors.Is(err, redis.Nil) {
					q.onError(err)
					time.Sleep(200 * time.Millisecond)
				}
				continue
			}
			if len(res) != 2 {
				continue
			}
			msg, err := deserialize(res[1])
			if err != nil {
				q.onError(err)
				continue
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func serialize(msg Message) (string, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}
	return string(b), nil
}

func deserialize(s string) (Message, error) {
	var msg Message
	if err := json.Unmarshal([]byte(s), &msg); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("decode message: missing type")
	}
	return msg, nil
}
