package engine

import (
	"github.com/sorryhyun/dipeo-engine/diagram"
	"github.com/sorryhyun/dipeo-engine/view"
)

// splitIncoming partitions nv's incoming edges into first-handle and
// default-handle groups, in arrow-declaration order (§4.6 step 1).
func splitIncoming(nv *view.NodeView) (first, def []*view.EdgeView) {
	for _, e := range nv.Incoming {
		if e.TargetHandle == "first" {
			first = append(first, e)
		} else {
			def = append(def, e)
		}
	}
	return first, def
}

// CollectInputs computes the inputs map for nv per §4.6: first-vs-default
// edge selection, condition-branch skip, and conversation passthrough.
func CollectInputs(nv *view.NodeView) map[string]any {
	firstEdges, defaultEdges := splitIncoming(nv)
	isPersonJob := nv.Node.Type == "person_job"

	var selected []*view.EdgeView
	switch {
	case isPersonJob && nv.ExecCount() == 0 && len(firstEdges) > 0:
		selected = firstEdges
	case isPersonJob:
		selected = defaultEdges
	default:
		selected = append(append([]*view.EdgeView{}, defaultEdges...), firstEdges...)
	}

	inputs := make(map[string]any)
	for _, e := range selected {
		out := e.Source.Output()
		if out == nil {
			continue
		}
		e.MarkConsumed()
		if e.Source.Node.Type == "condition" && e.Branch != nil {
			result, _ := out.Metadata["condition_result"].(bool)
			if *e.Branch != result {
				continue
			}
		}
		label := e.Label
		if label == "" {
			label = diagram.DefaultHandle
		}
		if v, ok := out.Value[label]; ok {
			inputs[label] = v
			continue
		}
		if label == diagram.DefaultHandle {
			if conv, ok := out.Value["conversation"]; ok {
				inputs[diagram.DefaultHandle] = conv
			}
		}
	}
	return inputs
}
