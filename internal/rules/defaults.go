package rules

import (
	_ "embed"
	"errors"
	"fmt"
	"log"

	"github.com/steveyegge/triage/internal/types"
)

// SafeDefaultRuleName names the single rule of the fallback set
const SafeDefaultRuleName = "Safe Default: Critical"

//go:embed rules.yaml
var bundledDocument []byte

// BundledDocument returns the rule document shipped with the binary
func BundledDocument() []byte {
	out := make([]byte, len(bundledDocument))
	copy(out, bundledDocument)
	return out
}

// SafeDefaultRules is the fallback used when the configured rule document
// cannot be loaded: crashes and blockers are flagged critical, everything
// else gets the no-match default. Built from constants on every call.
func SafeDefaultRules() []Rule {
	return []Rule{
		{
			Name: SafeDefaultRuleName,
			Condition: Or(
				Eq("is_crash", true),
				Eq("is_blocker", true),
			),
			Action: Action{
				PriorityScore: 5,
				Labels:        []string{types.LabelBug, types.LabelCritical},
				Reasoning:     "Crash or blocker reported (safe default rules in effect)",
			},
		},
	}
}

// SafeDefault returns an engine over SafeDefaultRules
func SafeDefault() *Engine {
	e, err := NewEngine(SafeDefaultRules())
	if err != nil {
		// the fallback set is constant; failing here is a programming error
		panic(fmt.Sprintf("safe default rules are invalid: %v", err))
	}
	e.fallback = true
	return e
}

// Bundled returns an engine over the embedded rule document
func Bundled() (*Engine, error) {
	rs, err := Parse(bundledDocument)
	if err != nil {
		var ce *ConfigurationError
		if errors.As(err, &ce) {
			ce.Source = "<bundled rules.yaml>"
		}
		return nil, err
	}
	return NewEngine(rs)
}

// Load builds an engine from the document at path, or from the bundled
// document when path is empty. It never returns a nil engine: when the
// document is invalid the safe default engine comes back together with
// the ConfigurationError so the run can continue.
func Load(path string) (*Engine, error) {
	var (
		e   *Engine
		err error
	)
	if path == "" {
		e, err = Bundled()
	} else {
		var rs []Rule
		rs, err = LoadFile(path)
		if err == nil {
			e, err = NewEngine(rs)
		}
	}
	if err != nil {
		log.Printf("[RULES] [WARN] %v; using safe default rules", err)
		return SafeDefault(), err
	}
	log.Printf("[RULES] Loaded %d rules from %s", e.Len(), displaySource(path))
	return e, nil
}

func displaySource(path string) string {
	if path == "" {
		return "bundled rules.yaml"
	}
	return path
}
