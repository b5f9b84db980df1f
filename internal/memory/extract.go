package memory

import (
	"regexp"
	"strings"
)

// Fact is one atomic assertion extracted from an interaction string,
// destined for the per-fact decision engine (spec.md §4.6 step 2's
// "execute memory tools" / default-knowledge tool).
type Fact struct {
	Text        string
	Tags        []string
	CodePattern string
}

// languageTagPattern recognizes the language/technology names the
// default-knowledge tool tags facts with (spec.md §3's MemoryEntry.tags).
var languageTagPattern = regexp.MustCompile(`(?i)\b(python|javascript|typescript|golang|rust|java|ruby|php|swift|kotlin|sql|bash|docker|kubernetes|graphql|c\+\+|c#)\b`)

// codeSpanPattern pulls an inline code span (`` `...` ``) out of a
// fact; codeKeywordPattern falls back to a recognizable syntax
// keyword when no backticked span is present.
var (
	codeSpanPattern    = regexp.MustCompile("`([^`]+)`")
	codeKeywordPattern = regexp.MustCompile(`\b(def|func|function|class|import|return|lambda|interface|struct)\b`)
)

// ExtractFacts turns the ordered interaction strings CollectInteraction
// produced into atomic facts, each carrying the tags and optional code
// pattern the knowledge-memory tool persists alongside the decision.
func ExtractFacts(interaction []string) []Fact {
	facts := make([]Fact, 0, len(interaction))
	for _, s := range interaction {
		if s == "" {
			continue
		}
		facts = append(facts, extractFact(s))
	}
	return facts
}

func extractFact(text string) Fact {
	fact := Fact{Text: text}

	for _, m := range languageTagPattern.FindAllString(text, -1) {
		tag := strings.ToLower(m)
		if tag == "golang" {
			tag = "go"
		}
		fact.Tags = appendUniqueTag(fact.Tags, tag)
	}

	if m := codeSpanPattern.FindStringSubmatch(text); m != nil {
		fact.CodePattern = m[1]
	} else if m := codeKeywordPattern.FindString(text); m != "" {
		fact.CodePattern = strings.ToLower(m)
	}

	return fact
}

func appendUniqueTag(tags []string, tag string) []string {
	for _, t := range tags {
		if t == tag {
			return tags
		}
	}
	return append(tags, tag)
}
