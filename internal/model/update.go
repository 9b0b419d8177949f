package model

import (
	"encoding/json"
	"maps"
)

type Source string

const (
	SourceSlack      Source = "slack"
	SourceJira       Source = "jira"
	SourceGitLab     Source = "gitlab"
	SourceConfluence Source = "confluence"
	SourceCalendar   Source = "google_cal"
	SourceGmail      Source = "gmail"
)

// Update is one normalized record from a source. Field sets differ per
// source; Source is the only field every update has.
type Update struct {
	Source Source
	Fields map[string]any
}

func NewUpdate(source Source, fields map[string]any) Update {
	return Update{Source: source, Fields: fields}
}

// Get returns the field value, or nil when absent.
func (u Update) Get(key string) any {
	return u.Fields[key]
}

// MarshalJSON flattens the update into a single object carrying "source"
// alongside every field.
func (u Update) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(u.Fields)+1)
	maps.Copy(flat, u.Fields)
	flat["source"] = u.Source
	return json.Marshal(flat)
}

func (u *Update) UnmarshalJSON(data []byte) error {
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	if s, ok := flat["source"].(string); ok {
		u.Source = Source(s)
	}
	delete(flat, "source")
	u.Fields = flat
	return nil
}

// SourceResult is what one connector produced in a run. Err is set when the
// connector failed as a whole; Updates is then empty.
type SourceResult struct {
	Source  Source
	Updates []Update
	Err     error
}

// Results is the run aggregate in connector invocation order.
type Results []SourceResult

func (r Results) Total() int {
	total := 0
	for _, sr := range r {
		total += len(sr.Updates)
	}
	return total
}

func (r Results) AnyFailed() bool {
	for _, sr := range r {
		if sr.Err != nil {
			return true
		}
	}
	return false
}

func (r Results) Sources() []Source {
	sources := make([]Source, 0, len(r))
	for _, sr := range r {
		sources = append(sources, sr.Source)
	}
	return sources
}

func (r Results) Counts() map[Source]int {
	counts := make(map[Source]int, len(r))
	for _, sr := range r {
		counts[sr.Source] = len(sr.Updates)
	}
	return counts
}

// BySource maps each source to its updates. Failed sources map to an empty,
// non-nil slice so they serialize as [] rather than null.
func (r Results) BySource() map[Source][]Update {
	out := make(map[Source][]Update, len(r))
	for _, sr := range r {
		updates := sr.Updates
		if updates == nil {
			updates = []Update{}
		}
		out[sr.Source] = updates
	}
	return out
}
