package proposals

import (
	"encoding/json"
	"strings"

	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/types"
)

// ciForcedCategory replaces whatever category a CI submission carried.
const ciForcedCategory = "run_quality"

// ciTagAllowlist is the fixed vocabulary CI proposals must draw from. Tags
// outside the list are dropped; an empty intersection rejects the proposal.
var ciTagAllowlist = map[string]bool{
	"retry":                    true,
	"duplicate_output":         true,
	"missing_ref":              true,
	"conflicting_instructions": true,
	"flaky_test":               true,
	"loop_detected":            true,
	"artifact_gap":             true,
}

// applyCIPolicy rewrites a draft proposal from the MoonMind CI repository in
// place: forced category, allowlisted tags, mandatory trigger metadata, and
// signal-driven priority escalation. Tags must already be normalized.
func applyCIPolicy(draft *types.TaskProposal) error {
	draft.Category = ciForcedCategory

	kept := make([]string, 0, len(draft.Tags))
	for _, tag := range draft.Tags {
		if ciTagAllowlist[tag] {
			kept = append(kept, tag)
		}
	}
	if len(kept) == 0 {
		return errors.NewValidation(errors.CodeInvalidProposal,
			"CI proposals require at least one allowlisted tag")
	}
	draft.Tags = kept

	meta := draft.OriginMetadata
	if strings.TrimSpace(meta.String("triggerRepo")) == "" {
		return errors.NewValidation(errors.CodeInvalidProposal,
			"CI proposals require origin_metadata.triggerRepo")
	}
	if strings.TrimSpace(meta.String("triggerJobId")) == "" {
		return errors.NewValidation(errors.CodeInvalidProposal,
			"CI proposals require origin_metadata.triggerJobId")
	}
	signal := meta.Map("signal")
	if signal == nil {
		return errors.NewValidation(errors.CodeInvalidProposal,
			"CI proposals require origin_metadata.signal")
	}

	suggested, reason := derivePriority(signal, draft.Tags)
	if suggested.Rank() > draft.ReviewPriority.Rank() {
		draft.ReviewPriority = suggested
		draft.PriorityOverrideReason = &reason
	}
	return nil
}

// derivePriority maps a CI signal onto a suggested review priority. Severity
// wins over retry count; the low band only applies when nothing escalated.
func derivePriority(signal types.JSONMap, tags []string) (types.ReviewPriority, string) {
	severity := strings.ToLower(strings.TrimSpace(signal.String("severity")))
	switch severity {
	case "high", "critical":
		return types.ReviewPriorityHigh, "signal:severity"
	}
	if signalInt(signal, "retries") >= 2 {
		return types.ReviewPriorityHigh, "signal:retries"
	}
	if severity == "low" {
		return types.ReviewPriorityLow, "signal:severity"
	}
	for _, tag := range tags {
		if tag == "flaky_test" {
			return types.ReviewPriorityLow, "signal:flaky_test"
		}
	}
	return types.ReviewPriorityNormal, ""
}

// signalInt reads a numeric signal field, tolerating the types JSON decoding
// produces.
func signalInt(m types.JSONMap, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return 0
}
