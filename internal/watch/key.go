package watch

// Scope selects what a subscription observes.
type Scope int

const (
	// ScopeNamespace watches every inference service in a namespace.
	ScopeNamespace Scope = iota
	// ScopeObject watches one named inference service.
	ScopeObject
	// ScopeObjectEvents watches cluster Events involving one service.
	ScopeObjectEvents
)

// Key identifies one logical upstream subscription. Two clients with equal
// keys share a single watcher.
type Key struct {
	Scope     Scope
	Namespace string
	Name      string
}

func NamespaceKey(namespace string) Key {
	return Key{Scope: ScopeNamespace, Namespace: namespace}
}

func ObjectKey(namespace, name string) Key {
	return Key{Scope: ScopeObject, Namespace: namespace, Name: name}
}

func ObjectEventsKey(namespace, name string) Key {
	return Key{Scope: ScopeObjectEvents, Namespace: namespace, Name: name}
}

// String renders the key for logs.
func (k Key) String() string {
	switch k.Scope {
	case ScopeNamespace:
		return "ns:" + k.Namespace
	case ScopeObject:
		return "isvc:" + k.Namespace + "/" + k.Name
	case ScopeObjectEvents:
		return "events:" + k.Namespace + "/" + k.Name
	default:
		return "unknown:" + k.Namespace + "/" + k.Name
	}
}
