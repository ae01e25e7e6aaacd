package webhook

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/loginguard/engine/internal/metrics"
)

// delivery is one queued item: the descriptor snapshot at enqueue time plus
// the event and JSON payload to send.
type delivery struct {
	hook *Descriptor
	event Event
	body []byte
}

// Dispatcher is the bounded-queue, worker-pooled HTTP(S) POST fan-out.
// Queue access is a single mutex+condvar; workers batch-drain under
// the lock and do their HTTP I/O unlocked.
type Dispatcher struct {
	mu sync.Mutex
	cond *sync.Cond
	queue []delivery
	maxQueue int
	stopped bool

	numThreads int
	wg sync.WaitGroup

	client *http.Client
	transport *http.Transport
	timeout time.Duration

	metrics *metrics.Registry
	log *logrus.Entry
}

// Config mirrors webhook pool knobs.
type Config struct {
	NumThreads int
	MaxConns int
	MaxQueueSize int
	TimeoutSecs int
}

func New(cfg Config, reg *metrics.Registry, log *logrus.Entry) *Dispatcher {
	if cfg.NumThreads < 1 {
		cfg.NumThreads = 5
	}
	if cfg.MaxConns < 1 {
		cfg.MaxConns = 10
	}
	if cfg.MaxQueueSize < 1 {
		cfg.MaxQueueSize = 50000
	}
	if cfg.TimeoutSecs < 1 {
		cfg.TimeoutSecs = 2
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	transport := &http.Transport{MaxConnsPerHost: cfg.MaxConns}
	d := &Dispatcher{
		maxQueue: cfg.MaxQueueSize,
		numThreads: cfg.NumThreads,
		client: &http.Client{Timeout: timeout, Transport: transport},
		transport: transport,
		timeout: timeout,
		metrics: reg,
		log: log,
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// StartThreads launches the configured number of worker goroutines.
func (d *Dispatcher) StartThreads() {
	for i := 0; i < d.numThreads; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// SetNumThreads adjusts the pool size for future StartThreads calls; it does
// not retroactively resize an already-running pool.
func (d *Dispatcher) SetNumThreads(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.numThreads = n
}

func (d *Dispatcher) SetMaxConns(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.transport.MaxConnsPerHost = n
}

func (d *Dispatcher) SetMaxQueueSize(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.maxQueue = n
}

func (d *Dispatcher) SetTimeout(secs int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timeout = time.Duration(secs) * time.Second
	d.client.Timeout = d.timeout
}

// Stop closes the queue and waits for in-flight workers to drain.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.cond.Broadcast()
	d.mu.Unlock()
	d.wg.Wait()
}

// RunHook enqueues an asynchronous delivery, returning immediately. It
// drops the delivery (logging and incrementing a metric) if the queue is
// already at capacity.
func (d *Dispatcher) RunHook(hook *Descriptor, event Event, payload []byte) {
	d.mu.Lock()
	if len(d.queue) >= d.maxQueue {
		d.mu.Unlock()
		d.log.WithFields(logrus.Fields{"hook_id": hook.ID, "event": event}).
			Warn("webhook: queue full, dropping delivery")
		if d.metrics != nil {
			d.metrics.WebhookQueueFullTotal.Inc()
		}
		return
	}
	d.queue = append(d.queue, delivery{hook: hook, event: event, body: payload})
	if d.metrics != nil {
		d.metrics.WebhookQueueDepth.Set(float64(len(d.queue)))
	}
	d.cond.Signal()
	d.mu.Unlock()
}

// PingHook performs a synchronous dry-run delivery for operator validation,
// bypassing the queue entirely.
func (d *Dispatcher) PingHook(hook *Descriptor) error {
	return d.deliver(delivery{hook: hook, event: "ping", body: []byte(`{"ping":true}`)})
}

// worker batch-drains up to MaxConnsPerHost queued deliveries under the
// lock, then issues them concurrently and unlocked, so contention on the
// queue stays bounded by the configured connection limit rather than by
// one delivery at a time.
func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.stopped {
			d.cond.Wait()
		}
		if len(d.queue) == 0 && d.stopped {
			d.mu.Unlock()
			return
		}
		batchSize := d.transport.MaxConnsPerHost
		if batchSize < 1 {
			batchSize = 1
		}
		if batchSize > len(d.queue) {
			batchSize = len(d.queue)
		}
		batch := append([]delivery(nil), d.queue[:batchSize]...)
		d.queue = d.queue[batchSize:]
		if d.metrics != nil {
			d.metrics.WebhookQueueDepth.Set(float64(len(d.queue)))
		}
		d.mu.Unlock()

		var batchWG sync.WaitGroup
		for _, item := range batch {
			batchWG.Add(1)
			go func(item delivery) {
				defer batchWG.Done()
				if err := d.deliver(item); err != nil {
					d.log.WithError(err).WithFields(logrus.Fields{"hook_id": item.hook.ID, "event": item.event}).
						Warn("webhook: delivery failed")
					if d.metrics != nil {
						d.metrics.WebhookFailedTotal.Inc()
					}
					return
				}
				if d.metrics != nil {
					d.metrics.WebhookDeliveredTotal.Inc()
				}
			}(item)
		}
		batchWG.Wait()
	}
}

// deliver performs one POST request, applying signing, kafka-wrapping, and
// auth headers from the hook's config as configured.
func (d *Dispatcher) deliver(item delivery) error {
	hook, event, body := item.hook, item.event, item.body
	cfg := hook.Config

	if cfg["kafka"] == "true" {
		body = wrapKafka(body)
	}

	req, err := http.NewRequest(http.MethodPost, cfg["url"], bytes.NewReader(body))
	if err != nil {
		return err
	}

	contentType := "application/json"
	if ct, ok := cfg["content-type"]; ok && ct != "" {
		contentType = ct
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Wforce-Event", string(event))
	req.Header.Set("X-Wforce-HookID", fmt.Sprintf("%d", hook.ID))
	req.Header.Set("X-Wforce-Delivery", deliveryID(time.Now().UTC().Format(time.RFC3339Nano), hook.ID, event))

	if secret, ok := cfg["secret"]; ok && secret != "" {
		req.Header.Set("X-Wforce-Signature", signBody(secret, body))
	}
	if basicAuth, ok := cfg["basic-auth"]; ok && basicAuth != "" {
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(basicAuth)))
	}
	if apiKey, ok := cfg["api-key"]; ok && apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook post to %s: status %d: %s", cfg["url"], resp.StatusCode, string(respBody))
	}
	return nil
}

// Payload builders used by callers that already have structured event data.
func MarshalPayload(v any) ([]byte, error) { return json.Marshal(v) }
