package refhandler

import (
	"github.com/sorryhyun/dipeo-engine/handler"
	"github.com/sorryhyun/dipeo-engine/registry"
)

// aliasHandler re-exposes an existing Handler under a different node type
// name, for the spec's dual-named types ("job"/"code_job",
// "notion"/"integrated_api", §6.2).
type aliasHandler struct {
	handler.Handler
	alias string
}

func (a aliasHandler) NodeType() string { return a.alias }

// RegisterAll binds every §6.2 node type's reference handler into reg, the
// set a Coordinator needs to run any diagram built from the required types.
func RegisterAll(reg *registry.HandlerRegistry) error {
	job := NewJob()
	notion := NewNotion()

	for _, h := range []handler.Handler{
		NewStart(), NewCondition(), NewPersonJob(), NewEndpoint(), NewDB(),
		job, aliasHandler{job, "code_job"},
		NewAPIJob(), NewUserResponse(),
		notion, aliasHandler{notion, "integrated_api"},
	} {
		if err := reg.Register(h); err != nil {
			return err
		}
	}
	return nil
}
