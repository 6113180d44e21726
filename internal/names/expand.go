package names

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ExpandTopicName expands name into a fully qualified topic name for a node
// called nodeName in namespace ns.
//
//   - "~" becomes the node's fully qualified name
//   - {node} becomes the node name, {ns} and {namespace} the namespace
//   - relative names are prefixed with the namespace
//
// The node name and namespace are validated first, and the result must be a
// valid full topic name.
func ExpandTopicName(name, nodeName, ns string) (string, error) {
	name = norm.NFC.String(name)
	if err := ValidateNodeName(nodeName); err != nil {
		return "", fmt.Errorf("invalid node name %q: %w", nodeName, err)
	}
	if err := ValidateNamespace(ns); err != nil {
		return "", fmt.Errorf("invalid namespace %q: %w", ns, err)
	}
	if err := ValidateTopicName(name); err != nil {
		return "", fmt.Errorf("invalid topic name %q: %w", name, err)
	}

	expanded := name
	if strings.HasPrefix(expanded, "~") {
		expanded = FullyQualifiedNodeName(nodeName, ns) + expanded[1:]
	}

	if strings.Contains(expanded, "{") {
		var b strings.Builder
		rest := expanded
		for {
			open := strings.IndexByte(rest, '{')
			if open < 0 {
				b.WriteString(rest)
				break
			}
			end := strings.IndexByte(rest[open:], '}') + open
			b.WriteString(rest[:open])
			switch sub := rest[open+1 : end]; sub {
			case "node":
				b.WriteString(nodeName)
			case "ns", "namespace":
				b.WriteString(ns)
			default:
				return "", fmt.Errorf("unknown substitution %q in topic name %q", sub, name)
			}
			rest = rest[end+1:]
		}
		expanded = b.String()
	}

	if !strings.HasPrefix(expanded, "/") {
		if ns == "/" {
			expanded = "/" + expanded
		} else {
			expanded = ns + "/" + expanded
		}
	}
	// Substituting the root namespace can leave "//" behind.
	for strings.Contains(expanded, "//") {
		expanded = strings.ReplaceAll(expanded, "//", "/")
	}

	if err := ValidateFullTopicName(expanded); err != nil {
		return "", fmt.Errorf("expanded topic name %q is invalid: %w", expanded, err)
	}
	return expanded, nil
}

// FullyQualifiedNodeName joins a namespace and node name.
func FullyQualifiedNodeName(nodeName, ns string) string {
	if ns == "/" || ns == "" {
		return "/" + nodeName
	}
	return ns + "/" + nodeName
}
