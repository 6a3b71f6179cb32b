package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Lllllllleong/unbundler/internal/metrics"
	"github.com/Lllllllleong/unbundler/internal/models"
)

type memTransfer struct {
	mu       sync.Mutex
	objects  map[string]string
	stored   map[string]string
	fetchErr error
	storeErr error
	delay    time.Duration

	active    map[string]int
	maxActive map[string]int
}

func newMemTransfer(objects map[string]string) *memTransfer {
	return &memTransfer{
		objects:   objects,
		stored:    map[string]string{},
		active:    map[string]int{},
		maxActive: map[string]int{},
	}
}

func (m *memTransfer) Fetch(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	m.active[key]++
	if m.active[key] > m.maxActive[key] {
		m.maxActive[key] = m.active[key]
	}
	body, ok := m.objects[key]
	fetchErr := m.fetchErr
	m.mu.Unlock()

	time.Sleep(m.delay)

	m.mu.Lock()
	m.active[key]--
	m.mu.Unlock()

	if fetchErr != nil {
		return nil, fetchErr
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, key)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (m *memTransfer) Store(_ context.Context, key string, data io.Reader) error {
	if m.storeErr != nil {
		return m.storeErr
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored[key] = string(b)
	return nil
}

type memQueue struct {
	mu       sync.Mutex
	batches  [][]models.WorkItem
	pollErr  error
	onDrain  func()
	acked    []string
	released []string
}

func (q *memQueue) Poll(_ context.Context, _, _ int) ([]models.WorkItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pollErr != nil {
		return nil, q.pollErr
	}
	if len(q.batches) == 0 {
		if q.onDrain != nil {
			q.onDrain()
		}
		return nil, nil
	}
	batch := q.batches[0]
	q.batches = q.batches[1:]
	return batch, nil
}

func (q *memQueue) Acknowledge(_ context.Context, item models.WorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked = append(q.acked, item.MessageID)
	return nil
}

func (q *memQueue) Release(_ context.Context, item models.WorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.released = append(q.released, item.MessageID)
	return nil
}

type memQuarantine struct {
	mu      sync.Mutex
	items   []string
	reasons []string
	err     error
}

func (q *memQuarantine) Quarantine(_ context.Context, item models.WorkItem, reason string) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item.MessageID)
	q.reasons = append(q.reasons, reason)
	return nil
}

type memLedger struct {
	mu   sync.Mutex
	jobs []models.Job
}

func (l *memLedger) Record(_ context.Context, job models.Job) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.jobs = append(l.jobs, job)
	return nil
}

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		StorageProvider: ProviderS3,
		InputBucket:     "input",
		OutputBucket:    "output",
		QueueName:       "batch",
		Region:          "us-east-1",
		OutputPrefix:    "flattened/",
		OutputSuffix:    "tabular.csv",
		EntryField:      "entry",
		KeySeparator:    "_",
		MaxDepth:        64,
		WorkDir:         t.TempDir(),
		PollMaxItems:    10,
		PollWaitSeconds: 0,
	}
}

func newTestUnbundler(t *testing.T, cfg Config, deps Dependencies) *Unbundler {
	t.Helper()
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewMetrics()
	}
	u, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return u
}

func s3Body(key string) string {
	return fmt.Sprintf(`{"Records":[{"eventName":"ObjectCreated:Put","s3":{"bucket":{"name":"input"},"object":{"key":%q}}}]}`, key)
}

const bundleDoc = `{
	"resourceType": "Bundle",
	"entry": [
		{"resource": {"resourceType": "Patient", "name": [{"given": ["Jane"], "family": "Doe"}], "active": true}},
		{"resource": {"resourceType": "Observation", "note": "line1\r\nline2"}}
	]
}`

const bundleCSV = "resource_resourceType,resource_name_0_given_0,resource_name_0_family,resource_active,resource_note\n" +
	"Patient,Jane,Doe,true,\n" +
	"Observation,,,,line1line2\n"
