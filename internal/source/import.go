package source

import (
	"encoding/json"
	"fmt"
)

// Envelope is the top-level import document: `{version, sources,
// lastUpdatedAt}`. A bare Source object or a bare array of sources is
// also accepted.
type Envelope struct {
	Version       int      `json:"version"`
	Sources       []Source `json:"sources"`
	LastUpdatedAt int64    `json:"lastUpdatedAt"`
}

// SkippedSource records one import entry rejected for missing required
// fields, with a short example of the offending document.
type SkippedSource struct {
	Reason  string
	Example string
}

// ParseImport decodes data as an Envelope, a bare []Source, or a bare
// Source, and returns the accepted sources plus a report of any entries
// dropped for missing id/name/host or a required module.
func ParseImport(data []byte) ([]Source, []SkippedSource, error) {
	var candidates []Source

	var env Envelope
	if err := json.Unmarshal(data, &env); err == nil && len(env.Sources) > 0 {
		candidates = env.Sources
	} else {
		var list []Source
		if err := json.Unmarshal(data, &list); err == nil && len(list) > 0 {
			candidates = list
		} else {
			var single Source
			if err := json.Unmarshal(data, &single); err != nil {
				return nil, nil, fmt.Errorf("decode source import: %w", err)
			}
			candidates = []Source{single}
		}
	}

	var accepted []Source
	var skipped []SkippedSource
	for _, s := range candidates {
		if reason := missingRequiredFields(s); reason != "" {
			example, _ := json.Marshal(s)
			skipped = append(skipped, SkippedSource{Reason: reason, Example: string(example)})
			continue
		}
		accepted = append(accepted, s)
	}
	return accepted, skipped, nil
}

func missingRequiredFields(s Source) string {
	switch {
	case s.ID == "":
		return "missing id"
	case s.Name == "":
		return "missing name"
	case s.Host == "":
		return "missing host"
	case s.Search.Parse.List == "" && len(s.Search.Parse.Fields) == 0:
		return "missing required module: search"
	case s.Chapter.Parse.List == "" && len(s.Chapter.Parse.Fields) == 0:
		return "missing required module: chapter"
	case s.Content.Parse.Content == "":
		return "missing required module: content"
	}
	return ""
}
