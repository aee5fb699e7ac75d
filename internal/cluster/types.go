package cluster

import "encoding/json"

// Watch event types as reported by the cluster API.
const (
	EventAdded    = "ADDED"
	EventModified = "MODIFIED"
	EventDeleted  = "DELETED"
	EventError    = "ERROR"
)

// Object is a dynamically typed cluster resource. The relay never interprets
// resource schemas beyond metadata, so objects stay as decoded JSON.
type Object map[string]any

func (o Object) Metadata() map[string]any {
	metadata, _ := o["metadata"].(map[string]any)
	return metadata
}

func (o Object) Name() string {
	name, _ := o.Metadata()["name"].(string)
	return name
}

func (o Object) Namespace() string {
	namespace, _ := o.Metadata()["namespace"].(string)
	return namespace
}

func (o Object) Labels() map[string]string {
	raw, _ := o.Metadata()["labels"].(map[string]any)
	if len(raw) == 0 {
		return nil
	}
	labels := make(map[string]string, len(raw))
	for key, value := range raw {
		if text, ok := value.(string); ok {
			labels[key] = text
		}
	}
	return labels
}

// WatchEvent is one entry of a cluster watch stream.
type WatchEvent struct {
	Type   string `json:"type"`
	Object Object `json:"object"`
}

type objectList struct {
	Items []Object `json:"items"`
}

func decodeObjectList(data []byte) ([]Object, error) {
	var list objectList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	return list.Items, nil
}
