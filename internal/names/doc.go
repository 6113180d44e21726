// Package names validates, expands and remaps ROS graph names.
//
// Node names are single tokens. Namespaces and fully qualified topic or
// service names are absolute, slash separated token lists. Relative topic
// names may use the private prefix "~" and the substitutions {node}, {ns} and
// {namespace}; ExpandTopicName turns them into fully qualified names.
//
// Input is NFC normalized before it is inspected, so indexes reported in a
// ValidationError refer to the normalized string.
package names
