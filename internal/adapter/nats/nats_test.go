package nats

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/LLManager/internal/logger"
	"github.com/Strob0t/LLManager/internal/port/messagequeue"
)

func testConnect(t *testing.T) *Queue {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}
	q, err := Connect(context.Background(), url, "")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })
	return q
}

// threadID tags intake messages of one test; the shared runs.start consumer
// may replay messages left by earlier runs.
func threadID(t *testing.T) string {
	return t.Name() + "-" + strconv.FormatInt(time.Now().UnixNano(), 10)
}

func runStart(t *testing.T, p messagequeue.RunStartPayload) []byte {
	t.Helper()
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

// watch collects new messages on subject through an ephemeral consumer.
func watch(t *testing.T, q *Queue, subject string) <-chan []byte {
	t.Helper()
	ctx := context.Background()
	c, err := q.js.CreateOrUpdateConsumer(ctx, q.streamName, jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		t.Fatalf("watch %s: %v", subject, err)
	}
	out := make(chan []byte, 16)
	cons, err := c.Consume(func(msg jetstream.Msg) {
		_ = msg.Ack()
		select {
		case out <- msg.Data():
		default:
		}
	})
	if err != nil {
		t.Fatalf("consume %s: %v", subject, err)
	}
	t.Cleanup(cons.Stop)
	return out
}

// awaitThread waits for a runs.start payload carrying thread on ch.
func awaitThread(t *testing.T, ch <-chan []byte, thread string) messagequeue.RunStartPayload {
	t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case data := <-ch:
			var p messagequeue.RunStartPayload
			if json.Unmarshal(data, &p) == nil && p.ThreadID == thread {
				return p
			}
		case <-timeout:
			t.Fatalf("no message for thread %s", thread)
		}
	}
}

func TestQueue_IntakeDeliversRunStart(t *testing.T) {
	q := testConnect(t)
	thread := threadID(t)
	const reqID = "req-intake-1"

	type delivery struct {
		payload messagequeue.RunStartPayload
		reqID   string
	}
	got := make(chan delivery, 1)
	stop, err := q.Subscribe(context.Background(), messagequeue.SubjectRunStart, func(ctx context.Context, _ string, data []byte) error {
		var p messagequeue.RunStartPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		if p.ThreadID == thread {
			got <- delivery{payload: p, reqID: logger.RequestID(ctx)}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	ctx := logger.WithRequestID(context.Background(), reqID)
	want := messagequeue.RunStartPayload{TenantID: "acme", ThreadID: thread, Query: "Buy a standing desk", ModelID: "m1"}
	if err := q.Publish(ctx, messagequeue.SubjectRunStart, runStart(t, want)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case d := <-got:
		if d.payload != want {
			t.Errorf("payload = %+v, want %+v", d.payload, want)
		}
		if d.reqID != reqID {
			t.Errorf("request id = %q, want %q", d.reqID, reqID)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("intake handler not called")
	}
}

func TestQueue_InvalidRunStartGoesToDLQ(t *testing.T) {
	q := testConnect(t)
	thread := threadID(t)
	dlq := watch(t, q, messagequeue.SubjectRunStart+dlqSuffix)

	var mu sync.Mutex
	handled := 0
	stop, err := q.Subscribe(context.Background(), messagequeue.SubjectRunStart, func(_ context.Context, _ string, data []byte) error {
		var p messagequeue.RunStartPayload
		_ = json.Unmarshal(data, &p)
		if p.ThreadID == thread {
			mu.Lock()
			handled++
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	blank := messagequeue.RunStartPayload{TenantID: "acme", ThreadID: thread, Query: "   "}
	if err := q.Publish(context.Background(), messagequeue.SubjectRunStart, runStart(t, blank)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if p := awaitThread(t, dlq, thread); p.TenantID != "acme" {
		t.Errorf("dlq payload = %+v", p)
	}
	mu.Lock()
	defer mu.Unlock()
	if handled != 0 {
		t.Errorf("invalid request reached the intake handler %d times", handled)
	}
}

func TestQueue_FailedIntakeRetriesThenDLQ(t *testing.T) {
	q := testConnect(t)
	thread := threadID(t)
	dlq := watch(t, q, messagequeue.SubjectRunStart+dlqSuffix)
	errUnavailable := errors.New("checkpoint store unavailable")

	var mu sync.Mutex
	attempts := 0
	stop, err := q.Subscribe(context.Background(), messagequeue.SubjectRunStart, func(_ context.Context, _ string, data []byte) error {
		var p messagequeue.RunStartPayload
		_ = json.Unmarshal(data, &p)
		if p.ThreadID != thread {
			return nil
		}
		mu.Lock()
		attempts++
		mu.Unlock()
		return errUnavailable
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	p := messagequeue.RunStartPayload{TenantID: "acme", ThreadID: thread, Query: "Book a flight"}
	if err := q.Publish(context.Background(), messagequeue.SubjectRunStart, runStart(t, p)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	awaitThread(t, dlq, thread)
	mu.Lock()
	defer mu.Unlock()
	if attempts != maxRetries+1 {
		t.Errorf("attempts = %d, want %d", attempts, maxRetries+1)
	}
}

func TestQueue_LifecycleEventRequiresRunID(t *testing.T) {
	q := testConnect(t)
	dlq := watch(t, q, messagequeue.SubjectRunFailed+dlqSuffix)

	stop, err := q.Subscribe(context.Background(), messagequeue.SubjectRunFailed, func(context.Context, string, []byte) error {
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	bad := `{"tenant_id":"acme","state":"failed","error":"` + t.Name() + `"}`
	if err := q.Publish(context.Background(), messagequeue.SubjectRunFailed, []byte(bad)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	timeout := time.After(10 * time.Second)
	for {
		select {
		case data := <-dlq:
			if string(data) == bad {
				return
			}
		case <-timeout:
			t.Fatal("run event without run_id not dead-lettered")
		}
	}
}

func TestQueue_KeyValueReusesBucket(t *testing.T) {
	q := testConnect(t)
	ctx := context.Background()
	bucket := "llmanager-test-" + strconv.FormatInt(time.Now().UnixNano(), 10)

	kv, err := q.KeyValue(ctx, bucket, 0)
	if err != nil {
		t.Fatalf("KeyValue: %v", err)
	}
	t.Cleanup(func() { _ = q.js.DeleteKeyValue(context.Background(), bucket) })
	if _, err := kv.Put(ctx, "run-1", []byte(`{"state":"awaiting_review"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	again, err := q.KeyValue(ctx, bucket, 0)
	if err != nil {
		t.Fatalf("KeyValue again: %v", err)
	}
	entry, err := again.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(entry.Value()) != `{"state":"awaiting_review"}` {
		t.Errorf("value = %s", entry.Value())
	}
	if !q.IsConnected() {
		t.Error("IsConnected() = false")
	}
}

func TestRetryCount(t *testing.T) {
	tests := []struct {
		name string
		hdr  nats.Header
		want int
	}{
		{"nil", nil, 0},
		{"missing", nats.Header{}, 0},
		{"set", nats.Header{headerRetryCount: []string{"2"}}, 2},
		{"garbage", nats.Header{headerRetryCount: []string{"x"}}, 0},
		{"negative", nats.Header{headerRetryCount: []string{"-1"}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryCount(tt.hdr); got != tt.want {
				t.Errorf("retryCount = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDurableName(t *testing.T) {
	if got := durableName("runs.start"); got != "llmanager-runs-start" {
		t.Errorf("durableName = %q", got)
	}
	if got := durableName("runs.>"); got != "llmanager-runs-rest" {
		t.Errorf("durableName = %q", got)
	}
}

func TestCopyHeaderIsDeep(t *testing.T) {
	h := nats.Header{headerRequestID: []string{"r1"}}
	c := copyHeader(h)
	c.Set(headerRequestID, "r2")
	if h.Get(headerRequestID) != "r1" {
		t.Error("copyHeader shares values with the original")
	}
}
