package types

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validFacts = `{
  "has_reproduction_steps": true,
  "has_stacktrace": false,
  "has_logs": true,
  "is_crash": true,
  "is_security_issue": false,
  "is_blocker": false,
  "operating_system": "linux",
  "summary": "Crash when saving a file with unicode name",
  "difficulty": "medium",
  "required_skills": ["go", "unicode"],
  "issue_type": "bug",
  "primary_area": "backend",
  "extraction_confidence": 0.92,
  "sentiment": -0.2
}`

func TestDecodeFactSet(t *testing.T) {
	facts, err := DecodeFactSet([]byte(validFacts))
	require.NoError(t, err)

	assert.True(t, facts.IsCrash)
	assert.Equal(t, DifficultyMedium, facts.Difficulty)
	assert.Equal(t, AreaBackend, facts.PrimaryArea)
	require.NotNil(t, facts.OperatingSystem)
	assert.Equal(t, "linux", *facts.OperatingSystem)
	assert.InDelta(t, 0.92, facts.ExtractionConfidence, 1e-9)
}

func TestDecodeFactSetRejectsSchemaViolations(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"not json", `not json`, "not a JSON object"},
		{"missing required", `{"summary": "x", "difficulty": "easy"}`, "missing required fields: extraction_confidence, has_logs, has_reproduction_steps, has_stacktrace"},
		{"unknown field", `{"has_reproduction_steps": true, "has_stacktrace": false, "has_logs": false, "summary": "x", "difficulty": "easy", "extraction_confidence": 0.5, "mood": "angry"}`, "unknown field"},
		{"bad enum", `{"has_reproduction_steps": true, "has_stacktrace": false, "has_logs": false, "summary": "x", "difficulty": "trivial", "extraction_confidence": 0.5}`, "invalid difficulty"},
		{"confidence out of range", `{"has_reproduction_steps": true, "has_stacktrace": false, "has_logs": false, "summary": "x", "difficulty": "easy", "extraction_confidence": 1.5}`, "extraction_confidence must be between"},
		{"wrong type", `{"has_reproduction_steps": "yes", "has_stacktrace": false, "has_logs": false, "summary": "x", "difficulty": "easy", "extraction_confidence": 0.5}`, "does not match schema"},
		{"empty summary", `{"has_reproduction_steps": true, "has_stacktrace": false, "has_logs": false, "summary": " ", "difficulty": "easy", "extraction_confidence": 0.5}`, "summary is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFactSet([]byte(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFactSetRoundTrip(t *testing.T) {
	facts, err := DecodeFactSet([]byte(validFacts))
	require.NoError(t, err)

	data, err := json.Marshal(facts)
	require.NoError(t, err)
	again, err := DecodeFactSet(data)
	require.NoError(t, err)
	assert.Equal(t, facts, again)
}

func TestFactSetFields(t *testing.T) {
	facts := FactSet{
		HasLogs:              true,
		Summary:              "docs typo",
		Difficulty:           DifficultyEasy,
		PrimaryArea:          AreaDocumentation,
		RequiredSkills:       []string{"markdown"},
		ExtractionConfidence: 0.8,
	}
	m := facts.Fields()

	assert.Equal(t, "documentation", m["area"])
	assert.Equal(t, "documentation", m["primary_area"])
	assert.Equal(t, true, m["logs_provided"])
	assert.Equal(t, "easy", m["difficulty"])
	assert.Equal(t, "unknown", m["environment"])

	for _, key := range []string{"operating_system", "verification_hint", "related_closed_issue_id", "sentiment", "issue_type"} {
		_, ok := m[key]
		assert.False(t, ok, "unset optional field %s should be absent", key)
	}

	// the projection must not alias the fact set
	m["required_skills"].([]string)[0] = "changed"
	assert.Equal(t, "markdown", facts.RequiredSkills[0])
}

func TestLogsProvidedOverride(t *testing.T) {
	no := false
	facts := FactSet{HasLogs: true, LogsProvided: &no, Summary: "x", Difficulty: DifficultyEasy}
	assert.Equal(t, false, facts.Fields()["logs_provided"])
}

func TestItemText(t *testing.T) {
	item := Item{Title: "Crash", Body: "It crashes", Comments: []string{"me too", "+1"}}
	assert.Equal(t, "Title: Crash\n\nBody:\nIt crashes\n\nComments:\nme too\n+1", item.Text())

	bare := Item{Title: "Crash", Body: "It crashes"}
	assert.Equal(t, "Title: Crash\n\nBody:\nIt crashes", bare.Text())
}

func TestItemValidateAndRef(t *testing.T) {
	item := Item{Number: 12, Repo: "octo/repo", Title: "x", State: StateOpen}
	require.NoError(t, item.Validate())
	assert.Equal(t, "octo/repo#12", item.Ref())

	assert.Error(t, (&Item{}).Validate())
	assert.Error(t, (&Item{Title: "x", State: "merged"}).Validate())
	assert.Equal(t, "#3", (&Item{Number: 3}).Ref())
}

func TestParseItemState(t *testing.T) {
	s, err := ParseItemState("OPEN")
	require.NoError(t, err)
	assert.Equal(t, StateOpen, s)

	_, err = ParseItemState("merged")
	assert.Error(t, err)
}

func TestCandidateValidate(t *testing.T) {
	assert.NoError(t, (&CandidateItem{ID: 1, State: StateClosed, SimilarityScore: 0.5}).Validate())
	assert.Error(t, (&CandidateItem{ID: 1, State: "gone", SimilarityScore: 0.5}).Validate())
	assert.NoError(t, (&CandidateItem{ID: 1, State: StateOpen, SimilarityScore: 12.5}).Validate())
	assert.NoError(t, (&CandidateItem{ID: 1, State: StateOpen, SimilarityScore: -3}).Validate())
	assert.Error(t, (&CandidateItem{ID: 1, State: StateOpen, SimilarityScore: math.NaN()}).Validate())
}

func TestNewTriageActionNormalizesLabels(t *testing.T) {
	a := NewTriageAction(3, []string{"bug", "", "critical", "bug"}, "r", SourceRules)
	assert.Equal(t, []string{"bug", "critical"}, a.Labels)
	assert.True(t, a.HasLabel("critical"))
	assert.False(t, a.HasLabel("duplicate"))
	assert.False(t, a.IsDuplicateShortCircuit())

	empty := NewTriageAction(0, nil, "none", SourceDefault)
	data, err := json.Marshal(empty)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"labels":[]`)

	dup := NewTriageAction(-1, []string{LabelDuplicate}, "Duplicate of #4", SourceDuplicate)
	assert.True(t, dup.IsDuplicateShortCircuit())
	assert.Equal(t, "P-1 [duplicate] (Duplicate of #4)", dup.String())
}

func TestCloneSharesNothing(t *testing.T) {
	osName, id := "linux", 3
	f := FactSet{Summary: "s", RequiredSkills: []string{"go"}, OperatingSystem: &osName, RelatedClosedIssueID: &id}
	cp := f.Clone()
	assert.Equal(t, f, cp)
	cp.RequiredSkills[0] = "rust"
	*cp.OperatingSystem = "macos"
	*cp.RelatedClosedIssueID = 9
	assert.Equal(t, "go", f.RequiredSkills[0])
	assert.Equal(t, "linux", *f.OperatingSystem)
	assert.Equal(t, 3, *f.RelatedClosedIssueID)
	assert.Nil(t, FactSet{}.Clone().RequiredSkills)

	a := NewTriageAction(2, []string{"bug"}, "r", SourceRules)
	ac := a.Clone()
	ac.Labels[0] = "docs"
	assert.Equal(t, []string{"bug"}, a.Labels)
}
