package scanner

import (
	"bufio"
	"io"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/sdscout/sdscout/internal/scout/domain"
)

// forEachLabel streams normalized labels from a wordlist. Blank lines and
// '#' comments are skipped; the first whitespace-delimited token of each
// remaining line is the label, with surrounding dots stripped. An invalid
// label stops the stream with an error.
func forEachLabel(r io.Reader, fn func(label string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		token := strings.Trim(strings.Fields(line)[0], ".")
		if token == "" || strings.HasPrefix(token, "#") {
			continue
		}
		label, err := domain.NormalizeLabel(token)
		if err != nil {
			return err
		}
		if err := fn(label); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// expectedSeenCapacity sizes the dedup bloom filter; larger wordlists
// degrade gracefully into a higher false-positive rate, which only costs an
// extra map lookup.
const expectedSeenCapacity = 1 << 20

// seenSet tracks normalized labels already dispatched. A bloom filter
// answers the common definitely-new case without touching the map; the map
// stays authoritative so dedup counts are exact.
type seenSet struct {
	filter *bloom.BloomFilter
	exact  map[string]struct{}
}

func newSeenSet() *seenSet {
	return &seenSet{
		filter: bloom.NewWithEstimates(expectedSeenCapacity, 0.01),
		exact:  make(map[string]struct{}),
	}
}

// Add inserts the label, reporting whether it was newly seen.
func (s *seenSet) Add(label string) bool {
	if !s.filter.TestString(label) {
		s.filter.AddString(label)
		s.exact[label] = struct{}{}
		return true
	}
	if _, dup := s.exact[label]; dup {
		return false
	}
	s.exact[label] = struct{}{}
	return true
}
