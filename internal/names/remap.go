package names

import (
	"fmt"
	"strings"
)

// Rule is one name remapping, as given by "-r [node:]from:=to".
type Rule struct {
	// Node restricts the rule to a single node name; empty applies to all.
	Node string
	From string
	To   string
}

// String returns the rule in command-line form.
func (r Rule) String() string {
	if r.Node != "" {
		return r.Node + ":" + r.From + ":=" + r.To
	}
	return r.From + ":=" + r.To
}

// ParseRule parses "[node:]from:=to".
func ParseRule(s string) (Rule, error) {
	lhs, rhs, ok := strings.Cut(s, ":=")
	if !ok || lhs == "" || rhs == "" {
		return Rule{}, fmt.Errorf("remap rule %q must have the form from:=to", s)
	}
	var r Rule
	if node, from, found := strings.Cut(lhs, ":"); found {
		if err := ValidateNodeName(node); err != nil {
			return Rule{}, fmt.Errorf("remap rule %q: %w", s, err)
		}
		r.Node, r.From = node, from
	} else {
		r.From = lhs
	}
	r.To = rhs
	switch r.From {
	case "__node", "__name":
		if err := ValidateNodeName(r.To); err != nil {
			return Rule{}, fmt.Errorf("remap rule %q: %w", s, err)
		}
		return r, nil
	case "__ns":
		if err := ValidateNamespace(r.To); err != nil {
			return Rule{}, fmt.Errorf("remap rule %q: %w", s, err)
		}
		return r, nil
	}
	if err := ValidateTopicName(r.From); err != nil {
		return Rule{}, fmt.Errorf("remap rule %q: %w", s, err)
	}
	if err := ValidateTopicName(r.To); err != nil {
		return Rule{}, fmt.Errorf("remap rule %q: %w", s, err)
	}
	return r, nil
}

// Remap applies the first rule whose expanded From equals the fully
// qualified name. Rules scoped to another node are skipped. The returned
// name is expanded in the node's context; if no rule matches, fqn is
// returned unchanged.
func Remap(fqn, nodeName, ns string, rules []Rule) (string, error) {
	for _, r := range rules {
		if r.Node != "" && r.Node != nodeName {
			continue
		}
		if r.From == "__node" || r.From == "__name" || r.From == "__ns" {
			continue
		}
		from, err := ExpandTopicName(r.From, nodeName, ns)
		if err != nil {
			return "", fmt.Errorf("remap rule %s: %w", r, err)
		}
		if from != fqn {
			continue
		}
		to, err := ExpandTopicName(r.To, nodeName, ns)
		if err != nil {
			return "", fmt.Errorf("remap rule %s: %w", r, err)
		}
		return to, nil
	}
	return fqn, nil
}

// RemapNodeName returns the node name after any "__node" or "__name" rule.
func RemapNodeName(nodeName string, rules []Rule) string {
	for _, r := range rules {
		if (r.Node == "" || r.Node == nodeName) && (r.From == "__node" || r.From == "__name") {
			return r.To
		}
	}
	return nodeName
}

// RemapNamespace returns the namespace after any "__ns" rule.
func RemapNamespace(nodeName, ns string, rules []Rule) string {
	for _, r := range rules {
		if (r.Node == "" || r.Node == nodeName) && r.From == "__ns" {
			return r.To
		}
	}
	return ns
}

// ResolveName expands name for the node and, unless onlyExpand is set,
// applies remap rules.
func ResolveName(name, nodeName, ns string, rules []Rule, onlyExpand bool) (string, error) {
	fqn, err := ExpandTopicName(name, nodeName, ns)
	if err != nil {
		return "", err
	}
	if onlyExpand {
		return fqn, nil
	}
	return Remap(fqn, nodeName, ns, rules)
}
