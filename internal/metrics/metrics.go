package metrics

import (
	"fmt"
	"io"
	"sync/atomic"
)

// Registry collects relay counters. All methods are safe for concurrent use
// and tolerate a nil receiver so call sites never need guards.
type Registry struct {
	watchersStarted  atomic.Int64
	watchersStopped  atomic.Int64
	clientsAttached  atomic.Int64
	clientsDetached  atomic.Int64
	eventsBroadcast  atomic.Int64
	eventsDropped    atomic.Int64
	mailboxEvictions atomic.Int64
	watchReconnects  atomic.Int64
	snapshotErrors   atomic.Int64
}

func (r *Registry) IncWatcherStarted() {
	if r == nil {
		return
	}
	r.watchersStarted.Add(1)
}

func (r *Registry) IncWatcherStopped() {
	if r == nil {
		return
	}
	r.watchersStopped.Add(1)
}

func (r *Registry) IncClientAttached() {
	if r == nil {
		return
	}
	r.clientsAttached.Add(1)
}

func (r *Registry) IncClientDetached() {
	if r == nil {
		return
	}
	r.clientsDetached.Add(1)
}

func (r *Registry) IncEventBroadcast() {
	if r == nil {
		return
	}
	r.eventsBroadcast.Add(1)
}

func (r *Registry) IncEventDropped() {
	if r == nil {
		return
	}
	r.eventsDropped.Add(1)
}

func (r *Registry) IncMailboxEvicted() {
	if r == nil {
		return
	}
	r.mailboxEvictions.Add(1)
}

func (r *Registry) IncWatchReconnect() {
	if r == nil {
		return
	}
	r.watchReconnects.Add(1)
}

func (r *Registry) IncSnapshotError() {
	if r == nil {
		return
	}
	r.snapshotErrors.Add(1)
}

func (r *Registry) ActiveWatchers() int64 {
	if r == nil {
		return 0
	}
	return r.watchersStarted.Load() - r.watchersStopped.Load()
}

func (r *Registry) ActiveClients() int64 {
	if r == nil {
		return 0
	}
	return r.clientsAttached.Load() - r.clientsDetached.Load()
}

func (r *Registry) WritePrometheus(writer io.Writer) error {
	if r == nil {
		return nil
	}

	writeGauge(writer, "modelboard_watchers_active", "Currently running resource watchers", r.ActiveWatchers())
	writeGauge(writer, "modelboard_clients_active", "Currently attached stream clients", r.ActiveClients())
	writeCounter(writer, "modelboard_watchers_started_total", "Total resource watchers started", r.watchersStarted.Load())
	writeCounter(writer, "modelboard_watchers_stopped_total", "Total resource watchers stopped", r.watchersStopped.Load())
	writeCounter(writer, "modelboard_clients_attached_total", "Total client attachments", r.clientsAttached.Load())
	writeCounter(writer, "modelboard_clients_detached_total", "Total client detachments", r.clientsDetached.Load())
	writeCounter(writer, "modelboard_events_broadcast_total", "Total events fanned out to clients", r.eventsBroadcast.Load())
	writeCounter(writer, "modelboard_events_dropped_total", "Total events dropped on full mailboxes", r.eventsDropped.Load())
	writeCounter(writer, "modelboard_mailbox_evictions_total", "Total mailboxes evicted after failed delivery", r.mailboxEvictions.Load())
	writeCounter(writer, "modelboard_watch_reconnects_total", "Total upstream watch reconnect attempts", r.watchReconnects.Load())
	writeCounter(writer, "modelboard_snapshot_errors_total", "Total snapshot fetch failures", r.snapshotErrors.Load())

	return nil
}

func writeCounter(writer io.Writer, name, help string, value int64) {
	writeHelp(writer, name, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", name)
	fmt.Fprintf(writer, "%s %d\n", name, value)
}

func writeGauge(writer io.Writer, name, help string, value int64) {
	writeHelp(writer, name, help)
	fmt.Fprintf(writer, "# TYPE %s gauge\n", name)
	fmt.Fprintf(writer, "%s %d\n", name, value)
}

func writeHelp(writer io.Writer, name, help string) {
	fmt.Fprintf(writer, "# HELP %s %s\n", name, help)
}
