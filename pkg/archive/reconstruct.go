package archive

import (
	"fmt"
	"sort"
)

// MalformedTreeError reports a conversation whose mapping cannot be walked:
// dangling references, cycles, or a missing root. The conversation is skipped
// and the rest of the archive proceeds.
type MalformedTreeError struct {
	ConversationID string
	Reason         string
}

func (e *MalformedTreeError) Error() string {
	return fmt.Sprintf("malformed conversation tree %q: %s", e.ConversationID, e.Reason)
}

// Reconstruct linearizes the active path of a conversation into message
// order. Tree-shaped conversations walk current_node back to the root via
// parent pointers; conversations with no current_node fall back to a forward
// walk from the root, taking the last child at each branch (the export
// client's convention for the active branch). Pre-parsed conversations with
// a flat message list pass through untouched.
//
// Every walk is bounded by len(mapping)+1 visits, so a cyclic mapping
// terminates with a MalformedTreeError instead of spinning.
func Reconstruct(conv *Conversation) ([]Message, error) {
	if len(conv.Mapping) == 0 {
		return conv.Messages, nil
	}

	if conv.CurrentNode != "" {
		return walkBack(conv)
	}
	return walkForward(conv)
}

func walkBack(conv *Conversation) ([]Message, error) {
	maxVisits := len(conv.Mapping) + 1
	visited := make(map[string]bool, len(conv.Mapping))

	var reversed []Message
	id := conv.CurrentNode
	for i := 0; i < maxVisits; i++ {
		node, ok := conv.Mapping[id]
		if !ok {
			return nil, &MalformedTreeError{
				ConversationID: conv.ID,
				Reason:         fmt.Sprintf("node %q referenced but not in mapping", id),
			}
		}
		if visited[id] {
			return nil, &MalformedTreeError{
				ConversationID: conv.ID,
				Reason:         fmt.Sprintf("cycle detected at node %q", id),
			}
		}
		visited[id] = true

		if node.Message != nil {
			reversed = append(reversed, *node.Message)
		}

		if node.Parent == nil || *node.Parent == "" {
			out := make([]Message, 0, len(reversed))
			for i := len(reversed) - 1; i >= 0; i-- {
				out = append(out, reversed[i])
			}
			return out, nil
		}
		id = *node.Parent
	}

	return nil, &MalformedTreeError{
		ConversationID: conv.ID,
		Reason:         "parent chain exceeds mapping size",
	}
}

func walkForward(conv *Conversation) ([]Message, error) {
	root, err := findRoot(conv)
	if err != nil {
		return nil, err
	}

	maxVisits := len(conv.Mapping) + 1
	visited := make(map[string]bool, len(conv.Mapping))

	var out []Message
	id := root
	for i := 0; i < maxVisits; i++ {
		node, ok := conv.Mapping[id]
		if !ok {
			return nil, &MalformedTreeError{
				ConversationID: conv.ID,
				Reason:         fmt.Sprintf("child %q referenced but not in mapping", id),
			}
		}
		if visited[id] {
			return nil, &MalformedTreeError{
				ConversationID: conv.ID,
				Reason:         fmt.Sprintf("cycle detected at node %q", id),
			}
		}
		visited[id] = true

		if node.Message != nil {
			out = append(out, *node.Message)
		}

		if len(node.Children) == 0 {
			return out, nil
		}
		id = node.Children[len(node.Children)-1]
	}

	return nil, &MalformedTreeError{
		ConversationID: conv.ID,
		Reason:         "child chain exceeds mapping size",
	}
}

// findRoot locates the parentless node. Sorted iteration keeps the pick
// deterministic when an export carries several parentless nodes.
func findRoot(conv *Conversation) (string, error) {
	ids := make([]string, 0, len(conv.Mapping))
	for id := range conv.Mapping {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		node := conv.Mapping[id]
		if node == nil {
			continue
		}
		if node.Parent == nil || *node.Parent == "" {
			return id, nil
		}
	}

	return "", &MalformedTreeError{
		ConversationID: conv.ID,
		Reason:         "no root node in mapping",
	}
}
