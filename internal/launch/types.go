package launch

import (
	"slices"
	"time"

	"github.com/roach88/rclgo/internal/rcl"
)

// Default interface type names for entities that do not set one.
const (
	DefaultMessageType = "rclgo/msg/Count"
	DefaultServiceType = "rclgo/srv/Echo"
)

// Description is a decoded launch description.
type Description struct {
	Executor ExecutorSpec        `json:"executor" yaml:"executor"`
	Nodes    map[string]NodeSpec `json:"nodes" yaml:"nodes"`

	// Source is the file or directory the description was loaded from.
	Source string `json:"-" yaml:"-"`
}

// NodeKeys returns the node keys in sorted order. Nodes are built in this
// order so that registration order, and with it dispatch order among
// equally ready entities, does not depend on map iteration.
func (d *Description) NodeKeys() []string {
	return sortedKeys(d.Nodes)
}

// ExecutorSpec selects the executor.
type ExecutorSpec struct {
	Kind    string `json:"kind" yaml:"kind"`
	Workers int    `json:"workers" yaml:"workers"`
}

// NodeSpec describes one node. Entity maps are keyed by entity name.
type NodeSpec struct {
	Name          string                      `json:"name,omitempty" yaml:"name,omitempty"`
	Namespace     string                      `json:"namespace" yaml:"namespace"`
	Parameters    map[string]string           `json:"parameters" yaml:"parameters"`
	Remaps        []string                    `json:"remaps" yaml:"remaps"`
	Groups        map[string]GroupSpec        `json:"groups" yaml:"groups"`
	Timers        map[string]TimerSpec        `json:"timers" yaml:"timers"`
	Publishers    map[string]PublisherSpec    `json:"publishers" yaml:"publishers"`
	Subscriptions map[string]SubscriptionSpec `json:"subscriptions" yaml:"subscriptions"`
	Guards        map[string]GuardSpec        `json:"guards" yaml:"guards"`
	Services      map[string]ServiceSpec      `json:"services" yaml:"services"`
	Clients       map[string]ClientSpec       `json:"clients" yaml:"clients"`
}

// NodeName returns the node name: Name when set, the key otherwise.
func (n NodeSpec) NodeName(key string) string {
	if n.Name != "" {
		return n.Name
	}
	return key
}

// GroupSpec describes a callback group.
type GroupSpec struct {
	Kind           string `json:"kind" yaml:"kind"`
	MaxConcurrency int    `json:"max_concurrency,omitempty" yaml:"max_concurrency,omitempty"`
}

// TimerSpec describes a periodic timer.
type TimerSpec struct {
	Period  string `json:"period" yaml:"period"`
	Work    string `json:"work" yaml:"work"`
	Publish string `json:"publish,omitempty" yaml:"publish,omitempty"`
	Group   string `json:"group,omitempty" yaml:"group,omitempty"`
}

// PublisherSpec describes a publisher.
type PublisherSpec struct {
	Topic string `json:"topic" yaml:"topic"`
	Type  string `json:"type" yaml:"type"`
	QoS   string `json:"qos" yaml:"qos"`
	Depth int    `json:"depth,omitempty" yaml:"depth,omitempty"`
}

// SubscriptionSpec describes a subscription. Publish relays every received
// message to the named publisher.
type SubscriptionSpec struct {
	Topic   string `json:"topic" yaml:"topic"`
	Type    string `json:"type" yaml:"type"`
	QoS     string `json:"qos" yaml:"qos"`
	Depth   int    `json:"depth,omitempty" yaml:"depth,omitempty"`
	Work    string `json:"work" yaml:"work"`
	Publish string `json:"publish,omitempty" yaml:"publish,omitempty"`
	Group   string `json:"group,omitempty" yaml:"group,omitempty"`
}

// GuardSpec describes a guard condition.
type GuardSpec struct {
	Work  string `json:"work" yaml:"work"`
	Group string `json:"group,omitempty" yaml:"group,omitempty"`
}

// ServiceSpec describes a service server that echoes its requests.
// Service defaults to the entity key.
type ServiceSpec struct {
	Service string `json:"service,omitempty" yaml:"service,omitempty"`
	Type    string `json:"type" yaml:"type"`
	Work    string `json:"work" yaml:"work"`
	Group   string `json:"group,omitempty" yaml:"group,omitempty"`
}

// ClientSpec describes a service client.
type ClientSpec struct {
	Service string `json:"service" yaml:"service"`
	Type    string `json:"type" yaml:"type"`
	Group   string `json:"group,omitempty" yaml:"group,omitempty"`
}

// Count is the message timers publish.
type Count struct {
	From string `json:"from"`
	Seq  int64  `json:"seq"`
}

// qosProfiles maps the schema's QoS names to profiles.
var qosProfiles = map[string]rcl.QoSProfile{
	"":                 rcl.QoSDefault,
	"default":          rcl.QoSDefault,
	"sensor_data":      rcl.QoSSensorData,
	"parameter_events": rcl.QoSParameterEvents,
	"services_default": rcl.QoSServicesDefault,
	"keep_all":         rcl.QoSKeepAll,
	"transient_local":  rcl.QoSTransientLocal,
	"system_default":   rcl.QoSSystemDefault,
}

// QoSProfile returns the named profile with depth applied when positive.
func QoSProfile(name string, depth int) (rcl.QoSProfile, bool) {
	q, ok := qosProfiles[name]
	if !ok {
		return rcl.QoSProfile{}, false
	}
	if depth > 0 {
		q.Depth = depth
		if q.History == rcl.HistorySystemDefault {
			q.History = rcl.HistoryKeepLast
		}
	}
	return q, true
}

// parseDuration parses a duration field; empty means zero.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
