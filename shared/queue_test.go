package shared

import (
	"testing"
	"time"
)

func receive(t *testing.T, ch <-chan JobMessage) JobMessage {
	t.Helper()
	select {
	case m, ok := <-ch:
		if !ok {
			t.Fatal("queue channel closed")
		}
		return m
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a message")
	}
	return JobMessage{}
}

func TestInMemoryQueue(t *testing.T) {
	q := NewInMemoryQueue(1)
	ch, err := q.Consume()
	if err != nil {
		t.Fatal(err)
	}

	if err := q.Publish(JobMessage{JobID: "a"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := q.Publish(JobMessage{JobID: "b"}); err == nil {
		t.Error("expected an error when the buffer is full")
	}
	if m := receive(t, ch); m.JobID != "a" {
		t.Errorf("expected job a, got %s", m.JobID)
	}

	q.Close()
	q.Close()
	if err := q.Publish(JobMessage{JobID: "c"}); err == nil {
		t.Error("expected an error publishing to a closed queue")
	}
	if _, ok := <-ch; ok {
		t.Error("expected consume channel to be closed")
	}
}

func TestRedisQueuePublishConsumeAck(t *testing.T) {
	mr, client := newTestRedis(t)
	q := NewRedisQueue(client, "jobs", 100).WithConsumer("test-worker")
	t.Cleanup(q.Close)

	if err := q.Publish(JobMessage{JobID: "j1", OriginalURL: "https://youtu.be/x"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	// malformed entries are dropped rather than delivered
	mr.XAdd("jobs", "*", []string{"data", "not json"})
	if err := q.Publish(JobMessage{JobID: "j2"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	ch, err := q.Consume()
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	first := receive(t, ch)
	if first.JobID != "j1" || first.OriginalURL != "https://youtu.be/x" {
		t.Errorf("unexpected first message %+v", first)
	}
	if first.DeliveryID == "" {
		t.Error("expected a delivery id")
	}
	second := receive(t, ch)
	if second.JobID != "j2" {
		t.Errorf("expected j2 next, got %+v", second)
	}

	for _, m := range []JobMessage{first, second} {
		if err := q.Ack(m); err != nil {
			t.Errorf("Ack(%s): %v", m.JobID, err)
		}
	}
}
