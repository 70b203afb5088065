// shared/queue.go
package shared

import (
	"fmt"
	"log"
	"sync"
)

// JobMessage represents the data sent through the queue for a job
type JobMessage struct {
	JobID       string `json:"job_id"`
	OriginalURL string `json:"original_url"`
	// DeliveryID identifies the delivery for Ack; set by the queue on consume.
	DeliveryID string `json:"-"`
}

// MessageQueueClient carries job submissions from the gateway to workers
type MessageQueueClient interface {
	Publish(message JobMessage) error
	Consume() (<-chan JobMessage, error)
	// Ack marks a consumed message as handled.
	Ack(message JobMessage) error
	Close()
}

// InMemoryQueue implements MessageQueueClient using a Go channel
type InMemoryQueue struct {
	queue chan JobMessage
	stop  chan struct{}
	mu    sync.RWMutex
	once  sync.Once
}

// NewInMemoryQueue creates a new in-memory queue instance
func NewInMemoryQueue(bufferSize int) *InMemoryQueue {
	return &InMemoryQueue{
		queue: make(chan JobMessage, bufferSize),
		stop:  make(chan struct{}),
	}
}

// Publish sends a message to the queue
func (q *InMemoryQueue) Publish(message JobMessage) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	select {
	case <-q.stop:
		return fmt.Errorf("queue is closed, cannot publish")
	default:
	}
	select {
	case q.queue <- message:
		log.Printf("INFO: Queue: Published job %s", message.JobID)
		return nil
	default:
		return fmt.Errorf("queue is full, cannot publish job %s", message.JobID)
	}
}

// Consume returns a channel from which messages can be received
func (q *InMemoryQueue) Consume() (<-chan JobMessage, error) {
	return q.queue, nil
}

func (q *InMemoryQueue) Ack(JobMessage) error { return nil }

// Close stops the queue from accepting new messages and closes the underlying channel
func (q *InMemoryQueue) Close() {
	q.once.Do(func() {
		log.Println("INFO: Queue: Closing...")
		close(q.stop)
		// Wait out in-flight publishers before closing the channel they send on
		q.mu.Lock()
		close(q.queue)
		q.mu.Unlock()
	})
}
