// Package skills implements the turn-start skill injection step: before a
// user's inputs are turned into the first model request of a turn, any
// referenced skill (inline or by name) is resolved to its instruction text
// and injected as a system message ahead of the user's own content.
// Grounded on original_source/codex-rs/core/src/skills/injection.rs's
// build_skill_injections.
package skills

import (
	"os"

	"github.com/samsaffron/agentkernel/internal/llm"
)

// InputKind discriminates UserInput's variants.
type InputKind string

const (
	InputText       InputKind = "text"
	InputSkill      InputKind = "skill"        // named skill, resolved against a loaded Set
	InputSkillInline InputKind = "skill_inline" // skill body supplied directly by the caller
)

// UserInput is one piece of a turn's input list. Only the fields matching
// Kind are populated.
type UserInput struct {
	Kind InputKind

	// Text
	Text string

	// Skill
	Name string
	Path string

	// SkillInline
	InlineContents string
}

// Skill is one entry in a loaded skill set, keyed by (name, path) the way
// the grounding source matches a UserInput.Skill reference against the
// set that was loaded for this session.
type Skill struct {
	Name string
	Path string
}

// Set is the outcome of loading a session's available skills (e.g. from a
// project's .codex/skills directory); nil is a valid "no skills loaded"
// value.
type Set struct {
	Skills []Skill
}

// Injections is the result of resolving a turn's inputs against skills:
// zero or more messages to prepend to the outbound request, and warnings
// for named skills that could not be read (which do not fail the turn).
type Injections struct {
	Messages []llm.Message
	Warnings []string
}

// BuildInjections mirrors build_skill_injections: for each input, in order,
// an inline skill body is injected once per distinct name; a named skill
// reference is injected once per distinct name by reading its file from
// set, skipped entirely if set is nil, the name isn't found, or the name
// was already satisfied by an inline skill with the same name (inline
// always wins per the grounding source's inline_skill_names precheck).
func BuildInjections(inputs []UserInput, set *Set) Injections {
	if len(inputs) == 0 {
		return Injections{}
	}

	inlineNames := make(map[string]bool)
	for _, in := range inputs {
		if in.Kind == InputSkillInline {
			inlineNames[in.Name] = true
		}
	}

	var result Injections
	seen := make(map[string]bool)

	for _, in := range inputs {
		switch in.Kind {
		case InputSkillInline:
			if seen[in.Name] {
				continue
			}
			seen[in.Name] = true
			result.Messages = append(result.Messages, skillMessage(in.Name, "(inline)", in.InlineContents))

		case InputSkill:
			if inlineNames[in.Name] || seen[in.Name] {
				continue
			}
			seen[in.Name] = true

			if set == nil {
				continue
			}
			var match *Skill
			for i := range set.Skills {
				if set.Skills[i].Name == in.Name && set.Skills[i].Path == in.Path {
					match = &set.Skills[i]
					break
				}
			}
			if match == nil {
				continue
			}

			contents, err := os.ReadFile(match.Path)
			if err != nil {
				result.Warnings = append(result.Warnings, "failed to load skill "+match.Name+" at "+match.Path+": "+err.Error())
				continue
			}
			result.Messages = append(result.Messages, skillMessage(match.Name, match.Path, string(contents)))
		}
	}

	return result
}

// skillMessage renders one skill's instructions as a system message, the
// way SkillInstructions::into ResponseItem does in the grounding source.
func skillMessage(name, path, contents string) llm.Message {
	return llm.Message{
		Role: llm.RoleSystem,
		Parts: []llm.Part{{
			Type: llm.PartText,
			Text: "Skill \"" + name + "\" (" + path + "):\n\n" + contents,
		}},
	}
}
