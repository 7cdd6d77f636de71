package turn

import (
	"github.com/samsaffron/agentkernel/internal/llm"
	"github.com/samsaffron/agentkernel/internal/tools"
)

// PatchApplyToolName is the spec name the model calls to apply a patch via
// PatchApplyHandler's self-invocation path, distinct from the in-process
// unified_diff tool in internal/tools.
const PatchApplyToolName = "apply_patch"

func patchApplySpec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        PatchApplyToolName,
		Description: "Apply a unified diff patch to one or more files.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"patch": map[string]interface{}{
					"type":        "string",
					"description": "The unified diff patch text to apply",
				},
			},
			"required":             []string{"patch"},
			"additionalProperties": false,
		},
	}
}

// AddPatchApplyTool registers handler under PatchApplyToolName onto b.
// Mutating, and not parallel-eligible: patch application always writes
// files and goes through the mutating-tool gate.
func AddPatchApplyTool(b *Builder, handler *PatchApplyHandler) {
	b.AddTool(PatchApplyToolName, ToolSpec{
		Spec:                      patchApplySpec(),
		Kind:                      KindFunction,
		SupportsParallelToolCalls: false,
	}, handler)
}

// BuilderFromTools adapts every tool enabled in a tools.LocalToolRegistry
// into a Function-kind ToolHandler and returns the accumulating Builder,
// so callers can register additional handlers (e.g. AddPatchApplyTool)
// before calling Build(). Mutating kinds (KindEdit, KindExecute, per
// tools.MutatorKinds) are marked mutating so the dispatcher routes them
// through the gate; everything else is treated as parallel-eligible, since
// read-only tools have no shared-state reason to serialize.
func BuilderFromTools(reg *tools.LocalToolRegistry) *Builder {
	b := NewBuilder()
	for _, spec := range reg.GetSpecs() {
		tool, ok := reg.Get(spec.Name)
		if !ok {
			continue
		}
		mutating := isMutatingKind(tools.GetToolKind(spec.Name))
		handler := NewFunctionHandler(tool, mutating)
		b.AddTool(spec.Name, ToolSpec{
			Spec:                      spec,
			Kind:                      KindFunction,
			SupportsParallelToolCalls: !mutating,
		}, handler)
	}
	return b
}

// BuildRegistryFromTools is BuilderFromTools followed by Build(), for
// callers that have no extra handlers to register.
func BuildRegistryFromTools(reg *tools.LocalToolRegistry) *Registry {
	return BuilderFromTools(reg).Build()
}

func isMutatingKind(kind tools.ToolKind) bool {
	for _, k := range tools.MutatorKinds {
		if k == kind {
			return true
		}
	}
	return false
}
