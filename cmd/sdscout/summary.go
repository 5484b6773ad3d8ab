package main

import (
	"encoding/json"
	"fmt"
	"io"
)

// emitJSONSummary writes a single NDJSON summary line tagged with its kind
// and the summary schema version.
func emitJSONSummary(w io.Writer, kind string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return err
	}
	fields["kind"] = kind
	fields["schema_version"] = schemaVersion
	line, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", line)
	return err
}

// stringList collects a repeatable string flag.
type stringList []string

func (s *stringList) String() string {
	return fmt.Sprint([]string(*s))
}

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}
