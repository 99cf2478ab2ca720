package ai

import (
	"context"
	"fmt"
	"strings"
)

// MaxKeywords caps how many search terms Keywords returns
const MaxKeywords = 5

// Keywords asks the model for high-signal search terms (error codes,
// exception names, distinctive phrases) used to find candidate duplicates
func (s *Supervisor) Keywords(ctx context.Context, text string) ([]string, error) {
	prompt := fmt.Sprintf(`You optimize search queries for an issue tracker.
Pick 3 to %d distinctive technical keywords from the issue below that would find
reports of the same problem.

Prefer, in order:
1. error codes, hex values, exception and constant names
2. distinctive terms such as deadlock or race condition
Never use generic words like bug, error, help, crash, issue.

Respond with ONLY the keywords separated by spaces.

ISSUE:
%s
`, MaxKeywords, truncate(text, 2000))

	response, err := s.CallAI(ctx, prompt, "keywords", s.simpleModel, 64)
	if err != nil {
		return nil, err
	}
	keywords := parseKeywords(response)
	if len(keywords) == 0 {
		return nil, fmt.Errorf("model returned no keywords")
	}
	return keywords, nil
}

var genericKeywords = map[string]bool{
	"bug": true, "error": true, "help": true, "crash": true, "issue": true, "problem": true,
}

// parseKeywords splits a response into unique lowercase terms, dropping
// quotes, list punctuation and generic words
func parseKeywords(response string) []string {
	cleaner := strings.NewReplacer(`"`, " ", "'", " ", ",", " ", "`", " ", "\n", " ")
	seen := make(map[string]bool)
	var out []string
	for _, word := range strings.Fields(cleaner.Replace(response)) {
		word = strings.ToLower(strings.Trim(word, ".;:-*"))
		if word == "" || genericKeywords[word] || seen[word] {
			continue
		}
		seen[word] = true
		out = append(out, word)
		if len(out) == MaxKeywords {
			break
		}
	}
	return out
}
