package config

import (
	"log"
	"os"
	"path/filepath"
)

// RulesSearchPaths are tried in order, relative to the repository root
var RulesSearchPaths = []string{
	filepath.Join(".github", "issueops.yaml"),
	filepath.Join(".github", "triage.yaml"), // legacy name
	"rules.yaml",
}

const legacyRulesPath = ".github/triage.yaml"

// FindRulesFile returns the first rule document under dir, or "" when
// there is none and the bundled rules should be used. legacy is true when
// the match is the old .github/triage.yaml name.
func FindRulesFile(dir string) (path string, legacy bool) {
	for _, rel := range RulesSearchPaths {
		p := filepath.Join(dir, rel)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, filepath.ToSlash(rel) == legacyRulesPath
		}
	}
	return "", false
}

// ResolveRulesPath returns explicit when set, otherwise the result of
// FindRulesFile for dir. A legacy file name logs a warning.
func ResolveRulesPath(explicit, dir string) string {
	if explicit != "" {
		return explicit
	}
	path, legacy := FindRulesFile(dir)
	if legacy {
		log.Printf("[RULES] [WARN] %s is deprecated; rename it to .github/issueops.yaml", path)
	}
	return path
}
