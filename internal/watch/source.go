package watch

import (
	"context"
	"fmt"

	"modelboard/internal/cluster"
)

// StreamOpener opens one upstream watch stream for a key. Implemented by
// ClusterSource for real clusters and by fakes in tests.
type StreamOpener interface {
	OpenWatch(ctx context.Context, key Key, timeoutSeconds int) (cluster.WatchStream, error)
}

// ClusterSource dispatches a key to the matching cluster API watch call.
type ClusterSource struct {
	Cluster cluster.Interface
}

func (s *ClusterSource) OpenWatch(ctx context.Context, key Key, timeoutSeconds int) (cluster.WatchStream, error) {
	switch key.Scope {
	case ScopeNamespace:
		return s.Cluster.WatchInferenceServices(ctx, key.Namespace, "", timeoutSeconds)
	case ScopeObject:
		return s.Cluster.WatchInferenceServices(ctx, key.Namespace, key.Name, timeoutSeconds)
	case ScopeObjectEvents:
		return s.Cluster.WatchObjectEvents(ctx, key.Namespace, key.Name, timeoutSeconds)
	default:
		return nil, fmt.Errorf("unsupported watch scope %d", key.Scope)
	}
}
