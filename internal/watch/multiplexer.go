package watch

import (
	"sync"

	"github.com/benbjohnson/clock"

	"modelboard/internal/cluster"
	"modelboard/internal/logging"
	"modelboard/internal/metrics"
)

// watcherHandle is what the multiplexer needs from a watcher; tests swap in
// fakes via MultiplexerOptions.NewWatcher.
type watcherHandle interface {
	Run()
	Stop()
}

type MultiplexerOptions struct {
	Source  StreamOpener
	Logger  *logging.Logger
	Metrics *metrics.Registry

	// Clock and StreamTimeoutSeconds flow into the watchers this
	// multiplexer constructs.
	Clock                clock.Clock
	StreamTimeoutSeconds int

	// NewWatcher overrides watcher construction in tests.
	NewWatcher func(key Key, callback EventFunc) watcherHandle
}

// Multiplexer consolidates client subscriptions so every distinct Key runs
// exactly one upstream watcher, and fans each observed event out to all
// attached mailboxes.
//
// One instance is constructed at startup and injected into the connection
// layer; its lifetime is the lifetime of the serving process.
type Multiplexer struct {
	options MultiplexerOptions
	logger  *logging.Logger
	metrics *metrics.Registry

	mu            sync.Mutex
	registrations map[Key]*registration
}

// registration tracks one key's watcher and attached mailboxes. Its mutex
// serializes mailbox-set mutation and broadcast for the key, and is
// reclaimed together with the registration on last detach.
type registration struct {
	mu        sync.Mutex
	mailboxes map[*Mailbox]struct{}
	watcher   watcherHandle
}

func NewMultiplexer(options MultiplexerOptions) *Multiplexer {
	m := &Multiplexer{
		options:       options,
		logger:        options.Logger,
		metrics:       options.Metrics,
		registrations: make(map[Key]*registration),
	}
	if m.options.NewWatcher == nil {
		m.options.NewWatcher = m.newClusterWatcher
	}
	return m
}

func (m *Multiplexer) newClusterWatcher(key Key, callback EventFunc) watcherHandle {
	return NewWatcher(WatcherOptions{
		Key:                  key,
		Source:               m.options.Source,
		Callback:             callback,
		Logger:               m.logger,
		Metrics:              m.metrics,
		Clock:                m.options.Clock,
		StreamTimeoutSeconds: m.options.StreamTimeoutSeconds,
	})
}

// Attach registers a mailbox under a key. The first attach for a key
// constructs and launches its watcher; the mailbox is already in the set
// when the watcher starts, so no event can outrun the subscriber. Attach
// never blocks on upstream connectivity.
func (m *Multiplexer) Attach(key Key, mailbox *Mailbox) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, ok := m.registrations[key]
	if !ok {
		reg = &registration{mailboxes: make(map[*Mailbox]struct{})}
		m.registrations[key] = reg
	}

	reg.mu.Lock()
	reg.mailboxes[mailbox] = struct{}{}
	reg.mu.Unlock()
	m.metrics.IncClientAttached()

	if !ok {
		watcher := m.options.NewWatcher(key, func(eventType string, object cluster.Object) {
			m.Broadcast(key, eventType, object)
		})
		reg.watcher = watcher
		go watcher.Run()
		m.metrics.IncWatcherStarted()
		if m.logger != nil {
			m.logger.Info("watcher started", map[string]string{"key": key.String()})
		}
	}
}

// Detach removes a mailbox from a key. When the attached set empties, the
// watcher is stopped and the registration discarded; a later attach builds
// a fresh one. Detaching an unknown mailbox or key is a no-op.
func (m *Multiplexer) Detach(key Key, mailbox *Mailbox) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, ok := m.registrations[key]
	if !ok {
		return
	}

	reg.mu.Lock()
	_, attached := reg.mailboxes[mailbox]
	if attached {
		delete(reg.mailboxes, mailbox)
	}
	empty := len(reg.mailboxes) == 0
	reg.mu.Unlock()

	if attached {
		m.metrics.IncClientDetached()
	}
	if !empty {
		return
	}

	delete(m.registrations, key)
	if reg.watcher != nil {
		reg.watcher.Stop()
	}
	m.metrics.IncWatcherStopped()
	if m.logger != nil {
		m.logger.Info("watcher stopped", map[string]string{"key": key.String()})
	}
}

// Broadcast delivers an event to every mailbox attached to the key. A
// mailbox whose delivery fails is evicted from the set so one slow client
// cannot stall the rest; eviction deliberately does not trigger watcher
// teardown, which remains the job of explicit Detach. Broadcasting to a key
// with no registration is a no-op.
func (m *Multiplexer) Broadcast(key Key, eventType string, object cluster.Object) {
	m.mu.Lock()
	reg := m.registrations[key]
	m.mu.Unlock()
	if reg == nil {
		return
	}

	envelope := Envelope{Type: eventType, Object: object}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	for mailbox := range reg.mailboxes {
		if err := mailbox.TryPut(envelope); err != nil {
			delete(reg.mailboxes, mailbox)
			m.metrics.IncEventDropped()
			m.metrics.IncMailboxEvicted()
			if m.logger != nil {
				m.logger.Warn("mailbox evicted", map[string]string{
					"key":   key.String(),
					"error": err.Error(),
				})
			}
			continue
		}
		m.metrics.IncEventBroadcast()
	}
}

// WatcherCount reports the number of live registrations.
func (m *Multiplexer) WatcherCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.registrations)
}

// AttachedCount reports the mailboxes attached under a key.
func (m *Multiplexer) AttachedCount(key Key) int {
	m.mu.Lock()
	reg := m.registrations[key]
	m.mu.Unlock()
	if reg == nil {
		return 0
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.mailboxes)
}
