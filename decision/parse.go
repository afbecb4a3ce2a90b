package decision

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	perrors "github.com/vinayprograms/pulse/errors"
)

// wireDecision uses pointers so missing fields can be told apart from
// empty ones.
type wireDecision struct {
	ChecksToRun *[]*string `json:"checks_to_run"`
	Reasoning   *string   `json:"reasoning"`
}

// ParseDecision decodes a backend answer. The text must hold exactly one
// JSON object with both fields and nothing else.
func ParseDecision(text string) (Decision, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Decision{}, perrors.MalformedDecision("empty response")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
	dec.DisallowUnknownFields()

	var w wireDecision
	if err := dec.Decode(&w); err != nil {
		return Decision{}, perrors.MalformedDecision("decode: "+err.Error(), perrors.WithCause(err))
	}
	if _, err := dec.Token(); err != io.EOF {
		return Decision{}, perrors.MalformedDecision("trailing data after JSON object")
	}
	if w.ChecksToRun == nil {
		return Decision{}, perrors.MalformedDecision("missing checks_to_run")
	}
	if w.Reasoning == nil {
		return Decision{}, perrors.MalformedDecision("missing reasoning")
	}

	ids := make([]string, 0, len(*w.ChecksToRun))
	for i, id := range *w.ChecksToRun {
		if id == nil {
			return Decision{}, perrors.MalformedDecision(fmt.Sprintf("checks_to_run[%d] is null", i))
		}
		ids = append(ids, *id)
	}

	return Decision{
		ChecksToRun: dedupe(ids),
		Reasoning:   *w.Reasoning,
	}, nil
}

// dedupe keeps the first occurrence of each id.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
