package skills

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuildInjections_Empty(t *testing.T) {
	got := BuildInjections(nil, nil)
	if len(got.Messages) != 0 || len(got.Warnings) != 0 {
		t.Fatalf("expected no messages or warnings for empty input, got %+v", got)
	}
}

func TestBuildInjections_InlineSkillInjected(t *testing.T) {
	inputs := []UserInput{
		{Kind: InputSkillInline, Name: "greeter", InlineContents: "say hello"},
	}
	got := BuildInjections(inputs, nil)
	if len(got.Messages) != 1 {
		t.Fatalf("expected 1 injected message, got %d", len(got.Messages))
	}
	if len(got.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", got.Warnings)
	}
}

func TestBuildInjections_InlineDedupedByName(t *testing.T) {
	inputs := []UserInput{
		{Kind: InputSkillInline, Name: "greeter", InlineContents: "say hello"},
		{Kind: InputSkillInline, Name: "greeter", InlineContents: "say hello again"},
	}
	got := BuildInjections(inputs, nil)
	if len(got.Messages) != 1 {
		t.Fatalf("expected dedup by name to yield 1 message, got %d", len(got.Messages))
	}
}

func TestBuildInjections_NamedSkillResolvedFromSet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "review.md")
	if err := os.WriteFile(path, []byte("review instructions"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	set := &Set{Skills: []Skill{{Name: "review", Path: path}}}
	inputs := []UserInput{{Kind: InputSkill, Name: "review", Path: path}}

	got := BuildInjections(inputs, set)
	if len(got.Messages) != 1 {
		t.Fatalf("expected 1 injected message, got %d: %+v", len(got.Messages), got)
	}
	if len(got.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", got.Warnings)
	}
}

func TestBuildInjections_NamedSkillMissingSetIsSkipped(t *testing.T) {
	inputs := []UserInput{{Kind: InputSkill, Name: "review", Path: "/nonexistent/review.md"}}
	got := BuildInjections(inputs, nil)
	if len(got.Messages) != 0 {
		t.Errorf("expected no injection when no skill set is loaded, got %+v", got.Messages)
	}
	if len(got.Warnings) != 0 {
		t.Errorf("expected no warnings when the set itself is nil (not a load failure), got %v", got.Warnings)
	}
}

func TestBuildInjections_NamedSkillUnreadableFileWarns(t *testing.T) {
	set := &Set{Skills: []Skill{{Name: "review", Path: "/nonexistent/review.md"}}}
	inputs := []UserInput{{Kind: InputSkill, Name: "review", Path: "/nonexistent/review.md"}}

	got := BuildInjections(inputs, set)
	if len(got.Messages) != 0 {
		t.Errorf("expected no message for an unreadable skill file, got %+v", got.Messages)
	}
	if len(got.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(got.Warnings))
	}
}

func TestBuildInjections_InlineTakesPrecedenceOverNamedSameName(t *testing.T) {
	inputs := []UserInput{
		{Kind: InputSkillInline, Name: "dup", InlineContents: "inline body"},
		{Kind: InputSkill, Name: "dup", Path: "/some/path.md"},
	}
	set := &Set{Skills: []Skill{{Name: "dup", Path: "/some/path.md"}}}
	got := BuildInjections(inputs, set)
	if len(got.Messages) != 1 {
		t.Fatalf("expected only the inline injection to survive, got %d messages", len(got.Messages))
	}
}
