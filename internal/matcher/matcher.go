// Package matcher implements the Fingerprint Matcher (spec.md §4.3): given
// a StudyGroup and the Fingerprint catalog, it returns the set of matching
// Fingerprints together with the SeriesInstance directories each one
// matched, so the Coordinator archives only the matched series.
package matcher

import (
	"fmt"
	"regexp"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mathiser/inference-server-dicom-node/internal/catalog"
	"github.com/mathiser/inference-server-dicom-node/internal/scp"
)

// regexCacheSize bounds the compiled-pattern LRU; trigger patterns repeat
// across StudyGroups (the catalog rarely changes mid-run), so a modest
// cache avoids recompiling the same regex on every match call.
const regexCacheSize = 256

// Matcher evaluates Triggers against StudyGroups (spec.md §4.3).
type Matcher struct {
	cache *lru.Cache[string, *regexp.Regexp]
}

// New creates a Matcher with a bounded compiled-regex cache.
func New() *Matcher {
	cache, err := lru.New[string, *regexp.Regexp](regexCacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, which regexCacheSize
		// never is.
		panic(fmt.Sprintf("matcher: unexpected lru.New error: %v", err))
	}
	return &Matcher{cache: cache}
}

// Match returns, for each Fingerprint that matches at least one
// SeriesInstance of group, the directories of the SeriesInstances it
// matched (spec.md §4.3). The outer map is keyed by Fingerprint.ID.
func (m *Matcher) Match(group *scp.StudyGroup, fingerprints []catalog.Fingerprint) map[string][]string {
	matches := make(map[string][]string)

	for _, fp := range fingerprints {
		var dirs []string
		for _, series := range group.Series {
			if m.fingerprintHitsSeries(fp, series) {
				dirs = append(dirs, series.Path)
			}
		}
		if len(dirs) > 0 {
			matches[fp.ID] = dirs
		}
	}

	return matches
}

func (m *Matcher) fingerprintHitsSeries(fp catalog.Fingerprint, series *scp.SeriesInstance) bool {
	for _, trig := range fp.Triggers {
		if m.triggerHitsSeries(trig, series) {
			return true
		}
	}
	return false
}

// triggerHitsSeries implements spec.md §4.3's per-Trigger evaluation:
// exclude dominance first, then all non-excluded clauses must pass.
func (m *Matcher) triggerHitsSeries(trig catalog.Trigger, series *scp.SeriesInstance) bool {
	if trig.ExcludePattern != "" {
		excludeRe, err := m.compile(trig.ExcludePattern)
		if err != nil {
			return false
		}
		for _, tag := range []string{series.StudyDescription, series.SeriesDescription, series.SOPClassUID, series.SeriesInstanceUID} {
			if excludeRe.MatchString(tag) {
				return false
			}
		}
	}

	if trig.StudyDescriptionPattern != "" {
		re, err := m.compile(trig.StudyDescriptionPattern)
		if err != nil || !re.MatchString(series.StudyDescription) {
			return false
		}
	}

	if trig.SeriesDescriptionPattern != "" {
		re, err := m.compile(trig.SeriesDescriptionPattern)
		if err != nil || !re.MatchString(series.SeriesDescription) {
			return false
		}
	}

	if trig.SOPClassUIDExact != "" && trig.SOPClassUIDExact != series.SOPClassUID {
		return false
	}

	return true
}

func (m *Matcher) compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := m.cache.Get(pattern); ok {
		return re, nil
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("matcher: invalid pattern %q: %w", pattern, err)
	}
	m.cache.Add(pattern, re)
	return re, nil
}
