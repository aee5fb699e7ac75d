package cluster

import "context"

// Interface is the cluster API surface the relay depends on. The HTTP client
// implements it for real clusters; tests substitute fakes.
type Interface interface {
	// ListInferenceServices returns the current services in a namespace.
	ListInferenceServices(ctx context.Context, namespace string) ([]Object, error)

	// GetInferenceService returns one named service.
	GetInferenceService(ctx context.Context, namespace, name string) (Object, error)

	// WatchInferenceServices opens a watch stream over services in a
	// namespace. A non-empty name narrows the stream to one object via a
	// server-side field selector. The server terminates the stream after
	// timeoutSeconds; callers reconnect.
	WatchInferenceServices(ctx context.Context, namespace, name string, timeoutSeconds int) (WatchStream, error)

	// ListObjectEvents returns cluster Events whose involved object is the
	// named inference service.
	ListObjectEvents(ctx context.Context, namespace, name string) ([]Object, error)

	// WatchObjectEvents opens a watch stream over those Events.
	WatchObjectEvents(ctx context.Context, namespace, name string, timeoutSeconds int) (WatchStream, error)

	// ListNamespaces returns all namespace names visible to the backend.
	ListNamespaces(ctx context.Context) ([]string, error)

	// ListComponentPods maps component name to pod names for a service.
	// An empty components filter selects every component.
	ListComponentPods(ctx context.Context, namespace, name string, components []string) (map[string][]string, error)

	// PodLogs returns the log tail of one container.
	PodLogs(ctx context.Context, namespace, pod, container string) (string, error)
}

// WatchStream yields watch events until the server or caller ends the stream.
type WatchStream interface {
	// Recv blocks for the next event. It returns an error when the stream
	// ends for any reason, including the server-side timeout.
	Recv() (WatchEvent, error)

	// Close releases the underlying connection. Safe to call concurrently
	// with Recv and more than once.
	Close() error
}
