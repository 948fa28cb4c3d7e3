package driver

import (
	"testing"
)

func TestPartFileNames(t *testing.T) {
	want := map[Part]string{
		PartSchema:   "memconfig.json",
		PartCode:     "driver.go",
		PartDocs:     "README.md",
		PartManifest: "manifest.json",
	}
	for p, name := range want {
		if p.String() != name {
			t.Errorf("%d.String() = %q, want %q", int(p), p.String(), name)
		}
	}
}

func TestParsePart(t *testing.T) {
	tests := []struct {
		target  string
		want    Part
		wantErr bool
	}{
		{"schema", PartSchema, false},
		{"code", PartCode, false},
		{"docs", PartDocs, false},
		{"package", PartManifest, false},
		{"manifest", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParsePart(tt.target)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParsePart(%q): expected error", tt.target)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParsePart(%q) = %v, %v", tt.target, got, err)
		}
	}
}

func TestFilesGetSet(t *testing.T) {
	var f Files
	for i, p := range Parts() {
		f.Set(p, p.String())
		if f.Get(p) != p.String() {
			t.Errorf("part %d round trip failed", i)
		}
	}
	// Files is a value type, so assignment snapshots it.
	snapshot := f
	f.Set(PartCode, "changed")
	if snapshot.Code != "driver.go" {
		t.Error("copy shared state with the original")
	}
}

func TestValidityCloneIsIndependent(t *testing.T) {
	v := Validity{
		Errors: []ValidationError{{Component: ComponentSchema, Message: "m", Severity: SeverityError}},
		Plan: &ImprovementPlan{
			Prompt: "fix it",
			Groups: []SuggestionGroup{{Component: ComponentSchema, Suggestions: []string{"add a type"}}},
		},
	}

	clone := v.Clone()
	v.Errors[0].Message = "mutated"
	v.Plan.Groups[0].Suggestions[0] = "mutated"
	v.Plan.Prompt = "mutated"

	if clone.Errors[0].Message != "m" {
		t.Error("clone shares the errors slice")
	}
	if clone.Plan.Groups[0].Suggestions[0] != "add a type" {
		t.Error("clone shares the plan groups")
	}
	if clone.Plan.Prompt != "fix it" {
		t.Error("clone shares the plan prompt")
	}
}

func TestFirstSuggestion(t *testing.T) {
	var nilPlan *ImprovementPlan
	if nilPlan.FirstSuggestion() != "" {
		t.Error("nil plan must yield an empty suggestion")
	}

	plan := &ImprovementPlan{Groups: []SuggestionGroup{
		{Component: ComponentSchema},
		{Component: ComponentCode, Suggestions: []string{"first", "second"}},
	}}
	if got := plan.FirstSuggestion(); got != "first" {
		t.Errorf("FirstSuggestion = %q", got)
	}
}

func TestNewArtifactSetDefaults(t *testing.T) {
	set := NewArtifactSet("widgets", "spec text")
	if set.CurrentCheckpointIndex != -1 {
		t.Errorf("CurrentCheckpointIndex = %d, want -1", set.CurrentCheckpointIndex)
	}
	if set.State != StateGenerating {
		t.Errorf("State = %q", set.State)
	}
	if len(set.Checkpoints) != 0 {
		t.Errorf("new set has checkpoints: %+v", set.Checkpoints)
	}
}
