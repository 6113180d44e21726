package launch

import (
	"fmt"

	"github.com/roach88/rclgo/internal/executor"
	"github.com/roach88/rclgo/internal/names"
)

// Check validates what the schema cannot: names, durations and references
// between entities of a node. It returns every problem found, nil when the
// description is valid.
func Check(d *Description) Errors {
	c := &checker{}

	kind, err := executor.ParseKind(d.Executor.Kind)
	if err != nil {
		c.add(ErrCodeInvalidExecutor, "executor.kind", "%v", err)
	}
	if d.Executor.Workers < 0 {
		c.add(ErrCodeInvalidExecutor, "executor.workers", "must not be negative")
	}
	if kind == executor.SingleThreaded && d.Executor.Workers > 1 {
		c.add(ErrCodeInvalidExecutor, "executor.workers", "%d workers requires a multi_threaded executor", d.Executor.Workers)
	}
	if len(d.Nodes) == 0 {
		c.add(ErrCodeNoNodes, "nodes", "at least one node is required")
	}

	seen := make(map[string]string)
	for _, key := range d.NodeKeys() {
		n := d.Nodes[key]
		c.checkNode(key, n)
		fqn := names.FullyQualifiedNodeName(n.NodeName(key), absNamespace(n.Namespace))
		if other, ok := seen[fqn]; ok {
			c.add(ErrCodeInvalidName, "nodes."+key, "node %s is also launched by nodes.%s", fqn, other)
		}
		seen[fqn] = key
	}

	if len(c.errs) == 0 {
		return nil
	}
	return c.errs
}

type checker struct {
	errs Errors
}

func (c *checker) add(code, field, format string, args ...any) {
	c.errs = append(c.errs, &LoadError{Code: code, Field: field, Message: fmt.Sprintf(format, args...)})
}

func (c *checker) checkNode(key string, n NodeSpec) {
	prefix := "nodes." + key
	if err := names.ValidateNodeName(n.NodeName(key)); err != nil {
		c.add(ErrCodeInvalidName, prefix+".name", "%v", err)
	}
	if ns := absNamespace(n.Namespace); ns != "/" {
		if err := names.ValidateNamespace(ns); err != nil {
			c.add(ErrCodeInvalidName, prefix+".namespace", "%v", err)
		}
	}
	for i, r := range n.Remaps {
		if _, err := names.ParseRule(r); err != nil {
			c.add(ErrCodeInvalidName, fmt.Sprintf("%s.remaps[%d]", prefix, i), "%v", err)
		}
	}

	for _, name := range sortedKeys(n.Groups) {
		g := n.Groups[name]
		field := prefix + ".groups." + name
		switch g.Kind {
		case "", "mutually_exclusive", "reentrant":
			if g.MaxConcurrency != 0 {
				c.add(ErrCodeInvalidGroup, field, "max_concurrency applies only to custom groups")
			}
		case "custom":
			if g.MaxConcurrency < 1 {
				c.add(ErrCodeInvalidGroup, field, "custom groups need max_concurrency >= 1")
			}
		default:
			c.add(ErrCodeInvalidGroup, field, "unknown kind %q", g.Kind)
		}
	}

	for _, name := range sortedKeys(n.Publishers) {
		p := n.Publishers[name]
		field := prefix + ".publishers." + name
		c.checkTopic(field+".topic", p.Topic)
		c.checkQoS(field+".qos", p.QoS)
	}
	for _, name := range sortedKeys(n.Timers) {
		t := n.Timers[name]
		field := prefix + ".timers." + name
		period, err := parseDuration(t.Period)
		switch {
		case err != nil:
			c.add(ErrCodeInvalidDuration, field+".period", "%v", err)
		case period <= 0:
			c.add(ErrCodeInvalidDuration, field+".period", "period must be positive")
		}
		c.checkWork(field+".work", t.Work)
		c.checkPublish(n, field+".publish", t.Publish)
		c.checkGroup(n, field+".group", t.Group)
	}
	for _, name := range sortedKeys(n.Subscriptions) {
		s := n.Subscriptions[name]
		field := prefix + ".subscriptions." + name
		c.checkTopic(field+".topic", s.Topic)
		c.checkQoS(field+".qos", s.QoS)
		c.checkWork(field+".work", s.Work)
		c.checkPublish(n, field+".publish", s.Publish)
		c.checkGroup(n, field+".group", s.Group)
	}
	for _, name := range sortedKeys(n.Guards) {
		g := n.Guards[name]
		field := prefix + ".guards." + name
		c.checkWork(field+".work", g.Work)
		c.checkGroup(n, field+".group", g.Group)
	}
	for _, name := range sortedKeys(n.Services) {
		s := n.Services[name]
		field := prefix + ".services." + name
		c.checkTopic(field+".service", orDefault(s.Service, name))
		c.checkWork(field+".work", s.Work)
		c.checkGroup(n, field+".group", s.Group)
	}
	for _, name := range sortedKeys(n.Clients) {
		cl := n.Clients[name]
		field := prefix + ".clients." + name
		if cl.Service == "" {
			c.add(ErrCodeInvalidName, field+".service", "service name is required")
		} else {
			c.checkTopic(field+".service", cl.Service)
		}
		c.checkGroup(n, field+".group", cl.Group)
	}
}

func (c *checker) checkTopic(field, topic string) {
	if topic == "" {
		c.add(ErrCodeInvalidName, field, "name is required")
		return
	}
	if err := names.ValidateTopicName(topic); err != nil {
		c.add(ErrCodeInvalidName, field, "%v", err)
	}
}

func (c *checker) checkQoS(field, name string) {
	if _, ok := qosProfiles[name]; !ok {
		c.add(ErrCodeInvalidQoS, field, "unknown QoS profile %q", name)
	}
}

func (c *checker) checkWork(field, work string) {
	d, err := parseDuration(work)
	if err != nil {
		c.add(ErrCodeInvalidDuration, field, "%v", err)
		return
	}
	if d < 0 {
		c.add(ErrCodeInvalidDuration, field, "work must not be negative")
	}
}

func (c *checker) checkPublish(n NodeSpec, field, pub string) {
	if pub == "" {
		return
	}
	if _, ok := n.Publishers[pub]; !ok {
		c.add(ErrCodeUnknownRef, field, "no publisher %q on this node", pub)
	}
}

func (c *checker) checkGroup(n NodeSpec, field, group string) {
	if group == "" {
		return
	}
	if _, ok := n.Groups[group]; !ok {
		c.add(ErrCodeUnknownRef, field, "no callback group %q on this node", group)
	}
}

func absNamespace(ns string) string {
	if ns == "" || ns[0] != '/' {
		return "/" + ns
	}
	return ns
}
