package names

import (
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// Length limits, in bytes, matching the middleware limits of a DDS-based RMW.
const (
	NodeNameMaxLength  = 255
	TopicNameMaxLength = 247
	NamespaceMaxLength = TopicNameMaxLength - 2
)

// ValidationError describes why a name is invalid and where.
type ValidationError struct {
	// Message is a human-readable description.
	Message string

	// Index is the byte offset of the offending character.
	Index int
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s (at index %d)", e.Message, e.Index)
}

func invalid(index int, format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...), Index: index}
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isTokenChar(c byte) bool {
	return isAlpha(c) || isDigit(c) || c == '_'
}

// ValidateNodeName returns nil if name is a valid node name.
func ValidateNodeName(name string) *ValidationError {
	name = norm.NFC.String(name)
	if name == "" {
		return invalid(0, "node name must not be empty")
	}
	for i := 0; i < len(name); i++ {
		if !isTokenChar(name[i]) {
			return invalid(i, "node name must not contain characters other than alphanumerics or '_'")
		}
	}
	if isDigit(name[0]) {
		return invalid(0, "node name must not start with a number")
	}
	if len(name) > NodeNameMaxLength {
		return invalid(NodeNameMaxLength-1, "node name should not exceed %d characters", NodeNameMaxLength)
	}
	return nil
}

// ValidateNamespace returns nil if ns is a valid absolute namespace.
func ValidateNamespace(ns string) *ValidationError {
	ns = norm.NFC.String(ns)
	if ns == "" {
		return invalid(0, "namespace must not be empty")
	}
	if ns == "/" {
		return nil
	}
	if err := validateAbsolute(ns, "namespace"); err != nil {
		return err
	}
	if len(ns) > NamespaceMaxLength {
		return invalid(NamespaceMaxLength-1, "namespace should not exceed %d characters", NamespaceMaxLength)
	}
	return nil
}

// ValidateFullTopicName returns nil if name is a valid fully qualified topic
// or service name: absolute, no "~", no substitutions.
func ValidateFullTopicName(name string) *ValidationError {
	name = norm.NFC.String(name)
	if name == "" {
		return invalid(0, "topic name must not be empty")
	}
	if name == "/" {
		return invalid(0, "topic name must not end with a forward slash")
	}
	if err := validateAbsolute(name, "topic name"); err != nil {
		return err
	}
	if len(name) > TopicNameMaxLength {
		return invalid(TopicNameMaxLength-1, "topic name should not exceed %d characters", TopicNameMaxLength)
	}
	return nil
}

// validateAbsolute checks the shape shared by namespaces and full topic
// names.
func validateAbsolute(name, what string) *ValidationError {
	if name[0] != '/' {
		return invalid(0, "%s must be absolute, it must lead with a '/'", what)
	}
	if name[len(name)-1] == '/' {
		return invalid(len(name)-1, "%s must not end with a forward slash", what)
	}
	for i := 1; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '/':
			if name[i-1] == '/' {
				return invalid(i, "%s must not contain repeated forward slashes", what)
			}
		case isTokenChar(c):
			if isDigit(c) && name[i-1] == '/' {
				return invalid(i, "%s must not have a token that starts with a number", what)
			}
		default:
			return invalid(i, "%s must not contain characters other than alphanumerics, '_', or '/'", what)
		}
	}
	return nil
}

// ValidateTopicName returns nil if name is a valid, possibly relative, topic
// or service name. It may contain "~" as its first character and balanced
// {substitution} tokens.
func ValidateTopicName(name string) *ValidationError {
	name = norm.NFC.String(name)
	if name == "" {
		return invalid(0, "topic name must not be empty")
	}
	if isDigit(name[0]) {
		return invalid(0, "topic name must not start with a number")
	}
	if name[len(name)-1] == '/' {
		return invalid(len(name)-1, "topic name must not end with a forward slash")
	}

	inSubstitution := false
	substitutionStart := 0
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '~':
			if i != 0 {
				return invalid(i, "topic name must not contain '~' except as the first character")
			}
			if len(name) > 1 && name[1] != '/' {
				return invalid(1, "'~' must be followed by a forward slash")
			}
		case c == '{':
			if inSubstitution {
				return invalid(i, "topic name must not contain nested substitutions")
			}
			inSubstitution = true
			substitutionStart = i
		case c == '}':
			if !inSubstitution {
				return invalid(i, "topic name contains an unmatched '}'")
			}
			if i == substitutionStart+1 {
				return invalid(i, "substitution must not be empty")
			}
			inSubstitution = false
		case c == '/':
			if inSubstitution {
				return invalid(i, "substitution must not contain a forward slash")
			}
			if i > 0 && name[i-1] == '/' {
				return invalid(i, "topic name must not contain repeated forward slashes")
			}
		case isTokenChar(c):
			if isDigit(c) && i > 0 && (name[i-1] == '/' || name[i-1] == '{') {
				return invalid(i, "topic name must not have a token that starts with a number")
			}
		default:
			return invalid(i, "topic name must not contain characters other than alphanumerics, '_', '~', '{', or '}'")
		}
	}
	if inSubstitution {
		return invalid(substitutionStart, "topic name contains an unmatched '{'")
	}
	return nil
}
