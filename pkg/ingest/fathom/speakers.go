package fathom

import "strings"

// Directory maps lowercased speaker names and aliases to canonical emails.
// It is immutable once built and safe for concurrent use.
type Directory struct {
	index map[string]string
}

// NewDirectory builds a directory from a roster. Names are indexed before the
// speaker's aliases, and a later speaker overwrites any key an earlier one set.
func NewDirectory(speakers []Speaker) *Directory {
	d := &Directory{index: make(map[string]string)}
	for _, s := range speakers {
		d.index[strings.ToLower(s.Name)] = s.Email
		for _, alias := range s.Aliases {
			d.index[strings.ToLower(alias)] = s.Email
		}
	}
	return d
}

// Resolve returns the canonical email for label, or label itself when the
// directory has no entry for it.
func (d *Directory) Resolve(label string) string {
	if email, ok := d.lookup(label); ok {
		return email
	}
	return label
}

// Len returns the number of distinct keys.
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.index)
}

func (d *Directory) lookup(label string) (string, bool) {
	if d == nil {
		return "", false
	}
	email, ok := d.index[strings.ToLower(label)]
	return email, ok
}

// SpeakerResult is the resolution outcome for one speaker label.
type SpeakerResult struct {
	Label    string
	Email    string
	Resolved bool
}

// SpeakerResults is a slice of resolution results with helper methods.
type SpeakerResults []SpeakerResult

// ResolveAll resolves every label, keeping input order.
func (d *Directory) ResolveAll(labels []string) SpeakerResults {
	results := make(SpeakerResults, len(labels))
	for i, label := range labels {
		email, ok := d.lookup(label)
		if !ok {
			email = label
		}
		results[i] = SpeakerResult{Label: label, Email: email, Resolved: ok}
	}
	return results
}

// Unresolved returns the labels that had no directory entry.
func (r SpeakerResults) Unresolved() []string {
	var out []string
	for _, res := range r {
		if !res.Resolved {
			out = append(out, res.Label)
		}
	}
	return out
}

// Stats returns statistics about the resolution results.
func (r SpeakerResults) Stats() ResolveStats {
	matched := 0
	for _, res := range r {
		if res.Resolved {
			matched++
		}
	}
	total := len(r)
	matchRate := 0.0
	if total > 0 {
		matchRate = float64(matched) / float64(total)
	}
	return ResolveStats{
		Total:     total,
		Matched:   matched,
		Unmatched: total - matched,
		MatchRate: matchRate,
	}
}

// ResolveStats contains statistics about speaker resolution.
type ResolveStats struct {
	Total     int
	Matched   int
	Unmatched int
	MatchRate float64
}

// Collisions reports keys that more than one roster entry claims, mapped to
// the emails in roster order. The last email is the one the directory keeps.
func Collisions(speakers []Speaker) map[string][]string {
	claims := make(map[string][]string)
	for _, s := range speakers {
		keys := append([]string{s.Name}, s.Aliases...)
		for _, k := range keys {
			lk := strings.ToLower(k)
			claims[lk] = append(claims[lk], s.Email)
		}
	}
	out := make(map[string][]string)
	for k, emails := range claims {
		for _, e := range emails[1:] {
			if e != emails[0] {
				out[k] = emails
				break
			}
		}
	}
	return out
}
