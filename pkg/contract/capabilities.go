package contract

import "strings"

// NormalizeCapabilities lowercases, trims, and deduplicates a capability
// list, preserving first-seen order.
func NormalizeCapabilities(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		capability := strings.ToLower(strings.TrimSpace(value))
		if capability == "" {
			continue
		}
		if _, dup := seen[capability]; dup {
			continue
		}
		seen[capability] = struct{}{}
		out = append(out, capability)
	}
	return out
}

type capabilityInputs struct {
	runtime          string
	publishMode      string
	skillCaps        []string
	stepCaps         []string
	containerEnabled bool
	declared         []string
}

// deriveCapabilities builds the ordered capability list a worker must
// advertise: runtime and git first, gh for PR publishing, then skill and
// step requirements, docker for containerized tasks, and finally any
// capabilities the caller declared on the payload itself.
func deriveCapabilities(in capabilityInputs) []string {
	caps := make([]string, 0, 4+len(in.skillCaps)+len(in.stepCaps)+len(in.declared))
	caps = append(caps, in.runtime, "git")
	if in.publishMode == PublishModePR {
		caps = append(caps, "gh")
	}
	caps = append(caps, in.skillCaps...)
	caps = append(caps, in.stepCaps...)
	if in.containerEnabled {
		caps = append(caps, "docker")
	}
	caps = append(caps, in.declared...)
	return NormalizeCapabilities(caps)
}
