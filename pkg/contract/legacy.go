package contract

import (
	"fmt"
	"strings"

	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/types"
)

// liftCodexExec rewrites a legacy codex_exec payload
// {instruction, ref, publish, codex} into the canonical task shape.
func liftCodexExec(payload types.JSONMap) (types.JSONMap, error) {
	instruction := strings.TrimSpace(payload.String("instruction"))
	if instruction == "" {
		return nil, errors.NewContract(errors.CodeInvalidQueuePayload, "instruction is required for codex_exec")
	}

	task := map[string]any{"instructions": instruction}

	if ref := strings.TrimSpace(payload.String("ref")); ref != "" {
		task["git"] = map[string]any{"ref": ref}
	}
	if raw, present := payload["publish"]; present {
		if mode := liftPublishMode(raw); mode != "" {
			task["publish"] = map[string]any{"mode": mode}
		}
	}
	if codex := payload.Map("codex"); codex != nil {
		task["runtime"] = map[string]any(codex)
	}

	out := types.JSONMap{
		"repository":    strings.TrimSpace(payload.String("repository")),
		"targetRuntime": RuntimeCodex,
		"task":          task,
	}
	copyPassthrough(payload, out)
	return out, nil
}

// liftCodexSkill rewrites a legacy codex_skill payload
// {skillId, inputs, codex} into the canonical task shape. The repository may
// live on the payload or inside inputs.
func liftCodexSkill(payload types.JSONMap) (types.JSONMap, error) {
	skillID := strings.TrimSpace(payload.String("skillId"))
	if skillID == "" {
		return nil, errors.NewContract(errors.CodeInvalidQueuePayload, "skillId is required for codex_skill")
	}

	inputs := payload.Map("inputs")

	repository := strings.TrimSpace(payload.String("repository"))
	if repository == "" && inputs != nil {
		repository = strings.TrimSpace(inputs.String("repository"))
	}

	instructions := ""
	if inputs != nil {
		instructions = strings.TrimSpace(inputs.String("instructions"))
	}
	if instructions == "" {
		instructions = fmt.Sprintf("Run skill %s", skillID)
	}

	args := map[string]any{}
	for key, value := range inputs {
		// repository and instructions are lifted to task scope
		if key == "repository" || key == "instructions" {
			continue
		}
		args[key] = value
	}

	task := map[string]any{
		"instructions": instructions,
		"skill":        map[string]any{"id": skillID, "args": args},
	}
	if codex := payload.Map("codex"); codex != nil {
		task["runtime"] = map[string]any(codex)
	}

	out := types.JSONMap{
		"repository":    repository,
		"targetRuntime": RuntimeCodex,
		"task":          task,
	}
	copyPassthrough(payload, out)
	return out, nil
}

// liftPublishMode accepts the legacy publish forms: a mode string, a
// {mode: ...} object, or a boolean. True means "use the default" and is
// signalled by an empty return.
func liftPublishMode(raw any) string {
	switch v := raw.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case bool:
		if !v {
			return PublishModeNone
		}
		return ""
	case map[string]any:
		return strings.ToLower(strings.TrimSpace(types.JSONMap(v).String("mode")))
	}
	return ""
}

// copyPassthrough carries auth and caller-declared capabilities through a
// lift unchanged.
func copyPassthrough(payload, out types.JSONMap) {
	if auth := payload.Map("auth"); auth != nil {
		out["auth"] = map[string]any(auth)
	}
	if caps, present := payload["requiredCapabilities"]; present {
		out["requiredCapabilities"] = caps
	}
}
