package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance bounds "did you mean?" suggestions.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys of each section.
var knownKeys = map[string][]string{
	"remote": {
		"base_url", "burst", "client_id", "requests_per_second", "share_id",
		"timeout", "token_file", "token_url", "volume_id", "websocket",
	},
	"index": {
		"db_path", "max_connections", "poll_interval", "recursive", "scan_root", "workers",
	},
	"logging": {"log_file", "log_format", "log_level"},
	"status":  {"listen_addr", "token"},
}

// sectionNames is the sorted list of section names.
var sectionNames = func() []string {
	names := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		names = append(names, k)
	}

	slices.Sort(names)

	return names
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns an
// error with suggestions for each.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	for _, key := range md.Undecoded() {
		if err := unknownKeyError(key); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// unknownKeyError describes one undecoded key. Keys below an unknown section
// return nil; the section itself is reported once.
func unknownKeyError(key toml.Key) error {
	section := key[0]

	known, ok := knownKeys[section]
	if !ok {
		if len(key) > 1 {
			return nil
		}

		return topLevelKeyError(section)
	}

	field := strings.Join(key[1:], ".")
	if suggestion := closestMatch(field, known); suggestion != "" {
		return fmt.Errorf("unknown key %q in [%s], did you mean %q?", field, section, suggestion)
	}

	return fmt.Errorf("unknown key %q in [%s]", field, section)
}

// topLevelKeyError handles a misspelled section or a key written outside
// its section.
func topLevelKeyError(name string) error {
	for _, section := range sectionNames {
		if slices.Contains(knownKeys[section], name) {
			return fmt.Errorf("config key %q belongs in the [%s] section", name, section)
		}
	}

	if suggestion := closestMatch(name, sectionNames); suggestion != "" {
		return fmt.Errorf("unknown config section %q, did you mean %q?", name, suggestion)
	}

	return fmt.Errorf("unknown config key %q", name)
}

// closestMatch finds the closest known key by Levenshtein distance, or ""
// when none is within maxLevenshteinDistance. Ties go to the earlier key.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		if d := levenshtein(unknown, k); d < bestDist {
			bestDist = d
			best = k
		}
	}

	return best
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
