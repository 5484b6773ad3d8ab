package scanner

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"

	"github.com/sdscout/sdscout/internal/scout/common/utils"
	"github.com/sdscout/sdscout/internal/scout/domain"
)

// loadResumeLabels reads a prior output file and collects the normalized
// labels already scanned under the apex. Invalid JSON lines, non-object
// lines, and names outside the apex are ignored. A missing file yields an
// empty set.
func loadResumeLabels(path, apex string) (map[string]struct{}, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]struct{}{}, nil
		}
		return nil, err
	}
	defer f.Close()

	suffix := "." + apex
	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			continue
		}
		raw, ok := obj["subdomain"].(string)
		if !ok {
			continue
		}
		name := utils.CanonicalDNSName(raw)
		if name == apex || !strings.HasSuffix(name, suffix) {
			continue
		}
		label := strings.TrimSuffix(name, suffix)
		if label == "" {
			continue
		}
		normalized, err := domain.NormalizeLabel(label)
		if err != nil {
			continue
		}
		seen[normalized] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return seen, nil
}
