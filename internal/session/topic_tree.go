package session

import (
	"fmt"
	"strings"
)

// topicTree holds the topic filters a user is allowed to use
type topicTree struct {
	root *topicNode
}

type topicNode struct {
	segment  string
	isEnd    bool
	children map[string]*topicNode
}

func newTopicTree() *topicTree {
	return &topicTree{
		root: &topicNode{children: make(map[string]*topicNode)},
	}
}

// AddFilter adds an allowed filter to the tree
func (t *topicTree) AddFilter(filter string) error {
	if err := validateTopicFilter(filter); err != nil {
		return fmt.Errorf("invalid topic filter %q: %w", filter, err)
	}

	current := t.root
	for _, segment := range strings.Split(filter, "/") {
		next, exists := current.children[segment]
		if !exists {
			next = &topicNode{
				segment:  segment,
				children: make(map[string]*topicNode),
			}
			current.children[segment] = next
		}
		current = next
	}
	current.isEnd = true
	return nil
}

// Covers reports whether every topic matched by requested is also matched
// by at least one filter in the tree. requested may be a plain topic name
// or a filter containing wildcards.
func (t *topicTree) Covers(requested string) bool {
	return t.coversNode(t.root, strings.Split(requested, "/"), 0)
}

func (t *topicTree) coversNode(node *topicNode, segments []string, depth int) bool {
	// "#" matches the remaining levels, including none
	if wildcard, ok := node.children["#"]; ok && wildcard.isEnd {
		return true
	}

	if depth == len(segments) {
		return node.isEnd
	}

	segment := segments[depth]
	if segment == "#" {
		return false
	}

	// A requested "+" is only covered by an allowed "+"
	if child, ok := node.children[segment]; ok {
		if t.coversNode(child, segments, depth+1) {
			return true
		}
	}

	if segment != "+" {
		if child, ok := node.children["+"]; ok {
			return t.coversNode(child, segments, depth+1)
		}
	}

	return false
}

// validateTopicFilter validates a subscription topic filter
func validateTopicFilter(topic string) error {
	if topic == "" {
		return fmt.Errorf("topic cannot be empty")
	}

	segments := strings.Split(topic, "/")
	for i, segment := range segments {
		// Allow empty segments for leading/trailing slashes
		if segment == "" && i != 0 && i != len(segments)-1 {
			return fmt.Errorf("empty segment not allowed in middle of topic")
		}

		if strings.Contains(segment, "#") {
			if segment != "#" {
				return fmt.Errorf("# wildcard must occupy entire segment")
			}
			if i != len(segments)-1 {
				return fmt.Errorf("# wildcard must be the last segment")
			}
		}

		if strings.Contains(segment, "+") && segment != "+" {
			return fmt.Errorf("+ wildcard must occupy entire segment")
		}
	}

	return nil
}

// validateTopicName validates a publish topic name
func validateTopicName(topic string) error {
	if topic == "" {
		return fmt.Errorf("topic cannot be empty")
	}

	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("wildcards not allowed in topic names")
	}

	segments := strings.Split(topic, "/")
	for i, segment := range segments {
		if segment == "" && i != 0 && i != len(segments)-1 {
			return fmt.Errorf("empty segment not allowed in middle of topic")
		}
	}

	return nil
}
