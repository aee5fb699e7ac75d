package api

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"modelboard/internal/cluster"
	"modelboard/internal/config"
	"modelboard/internal/metrics"
	"modelboard/internal/watch"
)

// fakeStream feeds scripted watch events and honors the opener context so
// watcher shutdown unblocks Recv.
type fakeStream struct {
	events chan cluster.WatchEvent
	done   chan struct{}
	once   sync.Once
}

func newFakeStream(ctx context.Context) *fakeStream {
	stream := &fakeStream{
		events: make(chan cluster.WatchEvent, 16),
		done:   make(chan struct{}),
	}
	go func() {
		select {
		case <-ctx.Done():
			stream.Close()
		case <-stream.done:
		}
	}()
	return stream
}

func (s *fakeStream) Recv() (cluster.WatchEvent, error) {
	select {
	case event := <-s.events:
		return event, nil
	case <-s.done:
		return cluster.WatchEvent{}, io.EOF
	}
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *fakeStream) push(t *testing.T, eventType string, object cluster.Object) {
	t.Helper()
	select {
	case s.events <- cluster.WatchEvent{Type: eventType, Object: object}:
	case <-time.After(time.Second):
		t.Fatal("fake stream backed up")
	}
}

type fakeCluster struct {
	mu            sync.Mutex
	services      []cluster.Object
	listErr       error
	objectEvents  []cluster.Object
	namespaces    []string
	namespacesErr error
	pods          map[string][]string
	podsErr       error
	logs          map[string]string

	// streams receives every watch stream this cluster opens, so tests can
	// drive events through the real watcher.
	streams chan *fakeStream
}

func newFakeCluster() *fakeCluster {
	return &fakeCluster{streams: make(chan *fakeStream, 8)}
}

func (f *fakeCluster) openStream(ctx context.Context) (cluster.WatchStream, error) {
	stream := newFakeStream(ctx)
	select {
	case f.streams <- stream:
	default:
	}
	return stream, nil
}

func (f *fakeCluster) awaitStream(t *testing.T) *fakeStream {
	t.Helper()
	select {
	case stream := <-f.streams:
		return stream
	case <-time.After(2 * time.Second):
		t.Fatal("no watch stream opened")
		return nil
	}
}

func (f *fakeCluster) ListInferenceServices(ctx context.Context, namespace string) ([]cluster.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.services, nil
}

func (f *fakeCluster) GetInferenceService(ctx context.Context, namespace, name string) (cluster.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.services) == 0 {
		return cluster.Object{}, nil
	}
	return f.services[0], nil
}

func (f *fakeCluster) WatchInferenceServices(ctx context.Context, namespace, name string, timeoutSeconds int) (cluster.WatchStream, error) {
	return f.openStream(ctx)
}

func (f *fakeCluster) ListObjectEvents(ctx context.Context, namespace, name string) ([]cluster.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objectEvents, nil
}

func (f *fakeCluster) WatchObjectEvents(ctx context.Context, namespace, name string, timeoutSeconds int) (cluster.WatchStream, error) {
	return f.openStream(ctx)
}

func (f *fakeCluster) ListNamespaces(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.namespacesErr != nil {
		return nil, f.namespacesErr
	}
	return f.namespaces, nil
}

func (f *fakeCluster) ListComponentPods(ctx context.Context, namespace, name string, components []string) (map[string][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.podsErr != nil {
		return nil, f.podsErr
	}
	if len(components) == 0 {
		return f.pods, nil
	}
	filtered := make(map[string][]string)
	for _, component := range components {
		if pods, ok := f.pods[component]; ok {
			filtered[component] = pods
		}
	}
	return filtered, nil
}

func (f *fakeCluster) PodLogs(ctx context.Context, namespace, pod, container string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logs[pod], nil
}

type testServer struct {
	*httptest.Server
	cluster *fakeCluster
	mux     *watch.Multiplexer
	store   *config.Store
	metrics *metrics.Registry
}

func newTestServer(t *testing.T, configure func(*Options)) *testServer {
	t.Helper()

	fake := newFakeCluster()
	registry := &metrics.Registry{}
	multiplexer := watch.NewMultiplexer(watch.MultiplexerOptions{
		Source:  &watch.ClusterSource{Cluster: fake},
		Metrics: registry,
	})
	store := config.NewStore(config.Settings{
		GrafanaPrefix:         config.DefaultGrafanaPrefix,
		GrafanaCPUMemoryDB:    config.DefaultGrafanaCPUMemoryDB,
		GrafanaHTTPRequestsDB: config.DefaultGrafanaHTTPRequestsDB,
		SSEEnabled:            true,
	})

	options := Options{
		Cluster: fake,
		Mux:     multiplexer,
		Store:   store,
		Metrics: registry,
	}
	if configure != nil {
		configure(&options)
	}

	mux := http.NewServeMux()
	RegisterRoutes(mux, options)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &testServer{
		Server:  server,
		cluster: fake,
		mux:     multiplexer,
		store:   store,
		metrics: registry,
	}
}

// openStream issues a GET and hands back a block reader over the SSE body.
func (s *testServer) openStream(t *testing.T, path string) (*bufio.Reader, context.CancelFunc) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL+path, nil)
	if err != nil {
		cancel()
		t.Fatal(err)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		cancel()
		t.Fatal(err)
	}
	t.Cleanup(func() {
		cancel()
		response.Body.Close()
	})

	if response.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", response.StatusCode)
	}
	if got := response.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type = %q", got)
	}
	return bufio.NewReader(response.Body), cancel
}

// readBlock returns the next SSE block including its trailing blank line.
func readBlock(t *testing.T, reader *bufio.Reader) string {
	t.Helper()

	type result struct {
		block string
		err   error
	}
	results := make(chan result, 1)
	go func() {
		var block strings.Builder
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				results <- result{err: err}
				return
			}
			block.WriteString(line)
			if line == "\n" {
				results <- result{block: block.String()}
				return
			}
		}
	}()

	select {
	case r := <-results:
		if r.err != nil {
			t.Fatalf("read sse block: %v", r.err)
		}
		return r.block
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for sse block")
		return ""
	}
}

func waitForWatcherCount(t *testing.T, multiplexer *watch.Multiplexer, want int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for multiplexer.WatcherCount() != want {
		select {
		case <-deadline:
			t.Fatalf("watcher count = %d, want %d", multiplexer.WatcherCount(), want)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
