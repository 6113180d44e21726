package rcl

import (
	"slices"
	"sort"
	"sync"
)

// EndpointType distinguishes publishers from subscriptions in graph queries.
type EndpointType string

const (
	EndpointPublisher    EndpointType = "PUBLISHER"
	EndpointSubscription EndpointType = "SUBSCRIPTION"
)

// NodeNameInfo identifies a node in the graph.
type NodeNameInfo struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
}

// NameAndTypes is a topic or service name with every type seen on it.
type NameAndTypes struct {
	Name  string   `json:"name"`
	Types []string `json:"types"`
}

// TopicEndpointInfo describes one publisher or subscription on a topic.
type TopicEndpointInfo struct {
	NodeName      string       `json:"node_name"`
	NodeNamespace string       `json:"node_namespace"`
	TopicType     string       `json:"topic_type"`
	EndpointType  EndpointType `json:"endpoint_type"`
	GID           string       `json:"gid"`
	QoS           QoSProfile   `json:"qos"`
}

// Graph is the registry of nodes and endpoints in one Context. It also routes
// published messages to matching subscriptions.
type Graph struct {
	mu            sync.RWMutex
	nodes         []*Node
	publishers    []*Publisher
	subscriptions []*Subscription
	services      []*Service
	clients       []*Client
	actionServers []*ActionServer
	actionClients []*ActionClient

	changedMu sync.Mutex
	changed   chan struct{}
}

func newGraph() *Graph {
	return &Graph{changed: make(chan struct{})}
}

// Changed returns a channel closed at the next graph change.
func (g *Graph) Changed() <-chan struct{} {
	g.changedMu.Lock()
	defer g.changedMu.Unlock()
	return g.changed
}

func (g *Graph) notify() {
	g.changedMu.Lock()
	defer g.changedMu.Unlock()
	close(g.changed)
	g.changed = make(chan struct{})
}

func removeItem[T comparable](items []T, item T) []T {
	if i := slices.Index(items, item); i >= 0 {
		return slices.Delete(items, i, i+1)
	}
	return items
}

func (g *Graph) addNode(n *Node) {
	g.mu.Lock()
	for _, other := range g.nodes {
		if other.FullyQualifiedName() == n.FullyQualifiedName() {
			n.ctx.Logger().Warn("nodes with duplicate names exist in the graph",
				"node", n.FullyQualifiedName())
			break
		}
	}
	g.nodes = append(g.nodes, n)
	g.mu.Unlock()
	g.notify()
}

func (g *Graph) removeNode(n *Node) {
	g.mu.Lock()
	g.nodes = removeItem(g.nodes, n)
	g.mu.Unlock()
	g.notify()
}

func (g *Graph) addPublisher(p *Publisher) {
	g.mu.Lock()
	g.publishers = append(g.publishers, p)
	g.mu.Unlock()
	g.notify()
}

func (g *Graph) removePublisher(p *Publisher) {
	g.mu.Lock()
	g.publishers = removeItem(g.publishers, p)
	g.mu.Unlock()
	g.notify()
}

// addSubscription registers s and replays retained samples of transient
// local publishers on its topic.
func (g *Graph) addSubscription(s *Subscription) {
	g.mu.Lock()
	g.subscriptions = append(g.subscriptions, s)
	var sources []*Publisher
	if s.qos.Durability == DurabilityTransientLocal {
		for _, p := range g.publishers {
			if p.topic == s.topic && p.typeName == s.typeName && p.qos.Durability == DurabilityTransientLocal {
				sources = append(sources, p)
			}
		}
	}
	g.mu.Unlock()

	for _, p := range sources {
		if CheckCompatible(p.qos, s.qos).Compatibility == QoSCompatibilityError {
			continue
		}
		for _, msg := range p.retainedSamples() {
			s.enqueue(msg)
		}
	}
	g.notify()
}

func (g *Graph) removeSubscription(s *Subscription) {
	g.mu.Lock()
	g.subscriptions = removeItem(g.subscriptions, s)
	g.mu.Unlock()
	g.notify()
}

func (g *Graph) addService(s *Service) {
	g.mu.Lock()
	g.services = append(g.services, s)
	g.mu.Unlock()
	g.notify()
}

func (g *Graph) removeService(s *Service) {
	g.mu.Lock()
	g.services = removeItem(g.services, s)
	g.mu.Unlock()
	g.notify()
}

func (g *Graph) addClient(c *Client) {
	g.mu.Lock()
	g.clients = append(g.clients, c)
	g.mu.Unlock()
	g.notify()
}

func (g *Graph) removeClient(c *Client) {
	g.mu.Lock()
	g.clients = removeItem(g.clients, c)
	g.mu.Unlock()
	g.notify()
}

func (g *Graph) addActionServer(s *ActionServer) {
	g.mu.Lock()
	g.actionServers = append(g.actionServers, s)
	g.mu.Unlock()
	g.notify()
}

func (g *Graph) removeActionServer(s *ActionServer) {
	g.mu.Lock()
	g.actionServers = removeItem(g.actionServers, s)
	g.mu.Unlock()
	g.notify()
}

func (g *Graph) addActionClient(c *ActionClient) {
	g.mu.Lock()
	g.actionClients = append(g.actionClients, c)
	g.mu.Unlock()
	g.notify()
}

func (g *Graph) removeActionClient(c *ActionClient) {
	g.mu.Lock()
	g.actionClients = removeItem(g.actionClients, c)
	g.mu.Unlock()
	g.notify()
}

// route delivers msg from p to every subscription on the same topic with the
// same type and a compatible QoS profile. It returns the number of
// subscriptions reached.
func (g *Graph) route(p *Publisher, msg any) int {
	g.mu.RLock()
	var targets []*Subscription
	for _, s := range g.subscriptions {
		if s.topic == p.topic && s.typeName == p.typeName {
			targets = append(targets, s)
		}
	}
	g.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if CheckCompatible(p.qos, s.qos).Compatibility == QoSCompatibilityError {
			continue
		}
		s.enqueue(msg)
		delivered++
	}
	return delivered
}

func (g *Graph) findService(name, typeName string) *Service {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, s := range g.services {
		if s.name == name && s.typeName == typeName {
			return s
		}
	}
	return nil
}

func (g *Graph) findActionServer(name, typeName string) *ActionServer {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, s := range g.actionServers {
		if s.name == name && s.typeName == typeName {
			return s
		}
	}
	return nil
}

// NodeNames returns every node, sorted by namespace then name.
func (g *Graph) NodeNames() []NodeNameInfo {
	g.mu.RLock()
	out := make([]NodeNameInfo, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, NodeNameInfo{Name: n.Name(), Namespace: n.Namespace()})
	}
	g.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Namespace != out[j].Namespace {
			return out[i].Namespace < out[j].Namespace
		}
		return out[i].Name < out[j].Name
	})
	return out
}

type namedEndpoint struct {
	name, typeName string
	node           *Node
}

func collectNamesAndTypes(endpoints []namedEndpoint) []NameAndTypes {
	types := make(map[string]map[string]struct{})
	for _, e := range endpoints {
		if types[e.name] == nil {
			types[e.name] = make(map[string]struct{})
		}
		types[e.name][e.typeName] = struct{}{}
	}
	out := make([]NameAndTypes, 0, len(types))
	for name, set := range types {
		nt := NameAndTypes{Name: name}
		for t := range set {
			nt.Types = append(nt.Types, t)
		}
		sort.Strings(nt.Types)
		out = append(out, nt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (g *Graph) topicEndpoints(pubs, subs bool) []namedEndpoint {
	var out []namedEndpoint
	if pubs {
		for _, p := range g.publishers {
			out = append(out, namedEndpoint{p.topic, p.typeName, p.node})
		}
	}
	if subs {
		for _, s := range g.subscriptions {
			out = append(out, namedEndpoint{s.topic, s.typeName, s.node})
		}
	}
	return out
}

// TopicNamesAndTypes returns every topic with a publisher or subscription.
func (g *Graph) TopicNamesAndTypes() []NameAndTypes {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return collectNamesAndTypes(g.topicEndpoints(true, true))
}

// ServiceNamesAndTypes returns every service with a server or client.
func (g *Graph) ServiceNamesAndTypes() []NameAndTypes {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var eps []namedEndpoint
	for _, s := range g.services {
		eps = append(eps, namedEndpoint{s.name, s.typeName, s.node})
	}
	for _, c := range g.clients {
		eps = append(eps, namedEndpoint{c.name, c.typeName, c.node})
	}
	return collectNamesAndTypes(eps)
}

// PublishersInfoByTopic describes the publishers on topic.
func (g *Graph) PublishersInfoByTopic(topic string) []TopicEndpointInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []TopicEndpointInfo
	for _, p := range g.publishers {
		if p.topic == topic {
			out = append(out, TopicEndpointInfo{
				NodeName: p.node.Name(), NodeNamespace: p.node.Namespace(),
				TopicType: p.typeName, EndpointType: EndpointPublisher, GID: p.gid, QoS: p.qos,
			})
		}
	}
	return out
}

// SubscriptionsInfoByTopic describes the subscriptions on topic.
func (g *Graph) SubscriptionsInfoByTopic(topic string) []TopicEndpointInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []TopicEndpointInfo
	for _, s := range g.subscriptions {
		if s.topic == topic {
			out = append(out, TopicEndpointInfo{
				NodeName: s.node.Name(), NodeNamespace: s.node.Namespace(),
				TopicType: s.typeName, EndpointType: EndpointSubscription, GID: s.gid, QoS: s.qos,
			})
		}
	}
	return out
}

// CountPublishers returns the number of publishers on topic.
func (g *Graph) CountPublishers(topic string) int {
	return len(g.PublishersInfoByTopic(topic))
}

// CountSubscribers returns the number of subscriptions on topic.
func (g *Graph) CountSubscribers(topic string) int {
	return len(g.SubscriptionsInfoByTopic(topic))
}

func (g *Graph) hasNodeLocked(name, ns string) bool {
	for _, n := range g.nodes {
		if n.Name() == name && n.Namespace() == ns {
			return true
		}
	}
	return false
}

func (g *Graph) byNode(name, ns string, collect func() []namedEndpoint) ([]NameAndTypes, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.hasNodeLocked(name, ns) {
		return nil, newError(ErrCodeNodeNameNonExistent, "node %q in namespace %q does not exist", name, ns)
	}
	var mine []namedEndpoint
	for _, e := range collect() {
		if e.node.Name() == name && e.node.Namespace() == ns {
			mine = append(mine, e)
		}
	}
	return collectNamesAndTypes(mine), nil
}

// PublisherNamesAndTypesByNode returns the topics the node publishes.
func (g *Graph) PublisherNamesAndTypesByNode(name, ns string) ([]NameAndTypes, error) {
	return g.byNode(name, ns, func() []namedEndpoint { return g.topicEndpoints(true, false) })
}

// SubscriberNamesAndTypesByNode returns the topics the node subscribes to.
func (g *Graph) SubscriberNamesAndTypesByNode(name, ns string) ([]NameAndTypes, error) {
	return g.byNode(name, ns, func() []namedEndpoint { return g.topicEndpoints(false, true) })
}

// ServiceNamesAndTypesByNode returns the services the node serves.
func (g *Graph) ServiceNamesAndTypesByNode(name, ns string) ([]NameAndTypes, error) {
	return g.byNode(name, ns, func() []namedEndpoint {
		var out []namedEndpoint
		for _, s := range g.services {
			out = append(out, namedEndpoint{s.name, s.typeName, s.node})
		}
		return out
	})
}

// ClientNamesAndTypesByNode returns the services the node has clients for.
func (g *Graph) ClientNamesAndTypesByNode(name, ns string) ([]NameAndTypes, error) {
	return g.byNode(name, ns, func() []namedEndpoint {
		var out []namedEndpoint
		for _, c := range g.clients {
			out = append(out, namedEndpoint{c.name, c.typeName, c.node})
		}
		return out
	})
}
