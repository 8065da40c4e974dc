package registry

import (
	"fmt"
	"strings"
)

// IsMutatingName reports whether a tool name looks like a write operation
func IsMutatingName(name string) bool {
	nameLower := strings.ToLower(strings.TrimSpace(name))
	deny := []string{
		"create_", "update_", "merge_", "delete_", "push_", "write",
		"create-or-update", "remove", "mutate", "approve", "request_changes",
		"transition_", "add_", "assign_",
	}
	for _, d := range deny {
		if strings.Contains(nameLower, d) {
			return true
		}
	}
	return false
}

// checkReadOnly rejects factory allow-lists that expose write operations
func checkReadOnly(allowed []string) error {
	for _, name := range allowed {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("empty tool name in allow-list")
		}
		if IsMutatingName(name) {
			return fmt.Errorf("allow-list exposes mutating tool %q", name)
		}
	}
	return nil
}
