package diagram

import (
	"fmt"
	"strings"
)

// FieldError pairs a dotted field path with a human-readable message,
// matching the "field_path: msg" shape the handler property validator uses.
type FieldError struct {
	Path string
	Msg  string
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Msg)
}

// ValidationError collects every invariant violation found, rather than
// stopping at the first one.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return "diagram validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(path, msg string) {
	e.Fields = append(e.Fields, FieldError{Path: path, Msg: msg})
}

// ParseEndpoint splits an arrow endpoint "nodeID" or "nodeID:handle" into its
// node id and handle, defaulting the handle to "default".
func ParseEndpoint(raw string) (NodeID, string) {
	if idx := strings.IndexByte(raw, ':'); idx >= 0 {
		return NodeID(raw[:idx]), raw[idx+1:]
	}
	return NodeID(raw), DefaultHandle
}

// Validate checks the invariants from §3: node ids are unique, every arrow
// endpoint references an existing node, and person references resolve. It
// returns every violation found, not just the first.
func Validate(d Diagram) *ValidationError {
	verr := &ValidationError{}

	seen := make(map[NodeID]bool, len(d.Nodes))
	for i, n := range d.Nodes {
		if n.ID == "" {
			verr.add(fmt.Sprintf("nodes[%d].id", i), "node id must not be empty")
			continue
		}
		if seen[n.ID] {
			verr.add(fmt.Sprintf("nodes[%d].id", i), fmt.Sprintf("duplicate node id %q", n.ID))
			continue
		}
		seen[n.ID] = true
	}

	persons := make(map[PersonID]bool, len(d.Persons))
	for _, p := range d.Persons {
		persons[p.ID] = true
	}

	for i, a := range d.Arrows {
		srcID, _ := ParseEndpoint(a.Source)
		tgtID, _ := ParseEndpoint(a.Target)
		if !seen[srcID] {
			verr.add(fmt.Sprintf("arrows[%d].source", i), fmt.Sprintf("unknown node id %q", srcID))
		}
		if !seen[tgtID] {
			verr.add(fmt.Sprintf("arrows[%d].target", i), fmt.Sprintf("unknown node id %q", tgtID))
		}
	}

	for i, n := range d.Nodes {
		if n.Type == "person_job" {
			if pid, ok := n.Properties["person_id"]; ok {
				id, _ := pid.(string)
				if id != "" && !persons[PersonID(id)] {
					verr.add(fmt.Sprintf("nodes[%d].properties.person_id", i), fmt.Sprintf("unknown person id %q", id))
				}
			}
		}
	}

	if len(verr.Fields) == 0 {
		return nil
	}
	return verr
}
