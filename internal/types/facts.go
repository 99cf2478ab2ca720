package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// FactSet is the structured output of extraction and the sole input to
// rule evaluation. Once produced for a content hash it is never modified.
type FactSet struct {
	// Maintainer signals (technical severity)
	HasReproductionSteps bool  `json:"has_reproduction_steps"`
	HasStacktrace        bool  `json:"has_stacktrace"`
	HasLogs              bool  `json:"has_logs"`
	LogsProvided         *bool `json:"logs_provided,omitempty"` // mirrors has_logs when unset
	IsCrash              bool  `json:"is_crash"`
	IsSecurityIssue      bool  `json:"is_security_issue"`
	IsBlocker            bool  `json:"is_blocker"`

	// Environment context
	OperatingSystem *string `json:"operating_system,omitempty"`
	Environment     string  `json:"environment,omitempty"`

	// Contributor signals (accessibility)
	Summary        string     `json:"summary"`
	Difficulty     Difficulty `json:"difficulty"`
	RequiredSkills []string   `json:"required_skills,omitempty"`

	// Classification
	IssueType   IssueType `json:"issue_type,omitempty"`
	PrimaryArea Area      `json:"primary_area,omitempty"`

	// Test companion and prior art hints
	VerificationHint     *string `json:"verification_hint,omitempty"`
	RelatedClosedIssueID *int    `json:"related_closed_issue_id,omitempty"`

	ExtractionConfidence float64  `json:"extraction_confidence"`
	Sentiment            *float64 `json:"sentiment,omitempty"` // -1.0 (hostile) to 1.0 (friendly)
}

// RequiredFactFields are the keys an extraction response must contain.
// A response missing any of them is a schema violation, not a partial FactSet.
var RequiredFactFields = []string{
	"has_reproduction_steps",
	"has_stacktrace",
	"has_logs",
	"summary",
	"difficulty",
	"extraction_confidence",
}

// Validate checks enum membership and numeric ranges
func (f *FactSet) Validate() error {
	if !f.Difficulty.IsValid() {
		return fmt.Errorf("invalid difficulty: %q", f.Difficulty)
	}
	if f.IssueType != "" && !f.IssueType.IsValid() {
		return fmt.Errorf("invalid issue_type: %q", f.IssueType)
	}
	if f.PrimaryArea != "" && !f.PrimaryArea.IsValid() {
		return fmt.Errorf("invalid primary_area: %q", f.PrimaryArea)
	}
	if f.ExtractionConfidence < 0.0 || f.ExtractionConfidence > 1.0 {
		return fmt.Errorf("extraction_confidence must be between 0.0 and 1.0 (got %.2f)", f.ExtractionConfidence)
	}
	if f.Sentiment != nil && (*f.Sentiment < -1.0 || *f.Sentiment > 1.0) {
		return fmt.Errorf("sentiment must be between -1.0 and 1.0 (got %.2f)", *f.Sentiment)
	}
	if strings.TrimSpace(f.Summary) == "" {
		return fmt.Errorf("summary is required")
	}
	for i, skill := range f.RequiredSkills {
		if strings.TrimSpace(skill) == "" {
			return fmt.Errorf("required_skills[%d] is empty", i)
		}
	}
	return nil
}

// Fields projects the fact set into the flat field map the rule engine reads.
// Unset optional fields are left out so that rules see them as absent.
func (f *FactSet) Fields() map[string]any {
	logsProvided := f.HasLogs
	if f.LogsProvided != nil {
		logsProvided = *f.LogsProvided
	}
	area := f.PrimaryArea
	if area == "" {
		area = AreaUnknown
	}
	environment := f.Environment
	if environment == "" {
		environment = "unknown"
	}

	skills := make([]string, len(f.RequiredSkills))
	copy(skills, f.RequiredSkills)

	m := map[string]any{
		"has_reproduction_steps": f.HasReproductionSteps,
		"has_stacktrace":         f.HasStacktrace,
		"has_logs":               f.HasLogs,
		"logs_provided":          logsProvided,
		"is_crash":               f.IsCrash,
		"is_security_issue":      f.IsSecurityIssue,
		"is_blocker":             f.IsBlocker,
		"environment":            environment,
		"summary":                f.Summary,
		"difficulty":             string(f.Difficulty),
		"required_skills":        skills,
		"primary_area":           string(area),
		"area":                   string(area),
		"extraction_confidence":  f.ExtractionConfidence,
	}
	if f.IssueType != "" {
		m["issue_type"] = string(f.IssueType)
	}
	if f.OperatingSystem != nil {
		m["operating_system"] = *f.OperatingSystem
	}
	if f.VerificationHint != nil {
		m["verification_hint"] = *f.VerificationHint
	}
	if f.RelatedClosedIssueID != nil {
		m["related_closed_issue_id"] = *f.RelatedClosedIssueID
	}
	if f.Sentiment != nil {
		m["sentiment"] = *f.Sentiment
	}
	return m
}

// Clone returns a copy that shares no memory with f
func (f FactSet) Clone() FactSet {
	f.RequiredSkills = cloneStrings(f.RequiredSkills)
	f.LogsProvided = clonePtr(f.LogsProvided)
	f.OperatingSystem = clonePtr(f.OperatingSystem)
	f.VerificationHint = clonePtr(f.VerificationHint)
	f.RelatedClosedIssueID = clonePtr(f.RelatedClosedIssueID)
	return f
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// DecodeFactSet strictly decodes an extraction response. Unknown keys,
// missing required keys and out-of-schema values are all errors.
func DecodeFactSet(data []byte) (FactSet, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return FactSet{}, fmt.Errorf("fact set is not a JSON object: %w", err)
	}
	var missing []string
	for _, key := range RequiredFactFields {
		if _, ok := raw[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return FactSet{}, fmt.Errorf("fact set missing required fields: %s", strings.Join(missing, ", "))
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var facts FactSet
	if err := dec.Decode(&facts); err != nil {
		return FactSet{}, fmt.Errorf("fact set does not match schema: %w", err)
	}
	if err := facts.Validate(); err != nil {
		return FactSet{}, fmt.Errorf("invalid fact set: %w", err)
	}
	return facts, nil
}

// Difficulty estimates how hard an item is to resolve
type Difficulty string

const (
	DifficultyEasy    Difficulty = "easy"   // docs, typos, simple text changes
	DifficultyMedium  Difficulty = "medium" // isolated bug fix
	DifficultyHard    Difficulty = "hard"   // architecture, race conditions
	DifficultyUnknown Difficulty = "unknown"
)

// IsValid checks if the difficulty value is valid
func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyUnknown:
		return true
	}
	return false
}

// IssueType categorizes the kind of report
type IssueType string

const (
	TypeBug      IssueType = "bug"
	TypeFeature  IssueType = "feature"
	TypeQuestion IssueType = "question"
)

// IsValid checks if the issue type value is valid
func (t IssueType) IsValid() bool {
	switch t {
	case TypeBug, TypeFeature, TypeQuestion:
		return true
	}
	return false
}

// Area is the architectural component an item touches
type Area string

const (
	AreaFrontend      Area = "frontend"
	AreaBackend       Area = "backend"
	AreaDatabase      Area = "database"
	AreaDevOps        Area = "devops"
	AreaDocumentation Area = "documentation"
	AreaUnknown       Area = "unknown"
)

// IsValid checks if the area value is valid
func (a Area) IsValid() bool {
	switch a {
	case AreaFrontend, AreaBackend, AreaDatabase, AreaDevOps, AreaDocumentation, AreaUnknown:
		return true
	}
	return false
}
