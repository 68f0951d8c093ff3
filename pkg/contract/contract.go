package contract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/security"
	"github.com/moonmind/moonmind/pkg/types"
)

// Target runtimes accepted on task payloads. RuntimeUniversal is rewritten to
// the configured default during normalization.
const (
	RuntimeCodex     = "codex"
	RuntimeGemini    = "gemini"
	RuntimeClaude    = "claude"
	RuntimeUniversal = "universal"
)

// Publish modes accepted on task payloads.
const (
	PublishModeNone   = "none"
	PublishModeBranch = "branch"
	PublishModePR     = "pr"
)

// DefaultSkillID is applied when a task names no skill.
const DefaultSkillID = "auto"

// Stage names workers execute in order.
const (
	StagePrepare = "moonmind.task.prepare"
	StageExecute = "moonmind.task.execute"
	StagePublish = "moonmind.task.publish"
)

// forbiddenStepKeys are task-scoped settings that may not appear on
// individual steps.
var forbiddenStepKeys = []string{
	"runtime", "targetRuntime", "model", "effort",
	"repository", "repo", "git", "publish", "container",
}

// reservedContainerEnvKeys are injected by the worker and may not be
// overridden.
var reservedContainerEnvKeys = []string{"ARTIFACT_DIR", "JOB_ID", "REPOSITORY"}

var (
	repoShorthandPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*/[A-Za-z0-9][A-Za-z0-9_.-]*$`)
	repoSSHPattern       = regexp.MustCompile(`^git@[A-Za-z0-9][A-Za-z0-9.-]*:[A-Za-z0-9][A-Za-z0-9_.~/-]*$`)
)

// CanonicalTask is the normalized view of a task payload shared by the queue
// service, telemetry, and workers.
type CanonicalTask struct {
	Repository           string
	TargetRuntime        string
	Instructions         string
	PublishMode          string
	SkillID              string
	SkillArgs            map[string]any
	RequiredCapabilities []string
	StagePlan            []string
	ContainerEnabled     bool

	// LegacyLifted marks payloads that arrived through a legacy job type.
	LegacyLifted bool
	// RuntimeRewritten marks targetRuntime=universal submissions.
	RuntimeRewritten bool
}

// Normalizer applies the task payload contract with configured defaults.
type Normalizer struct {
	defaultRuntime     string
	defaultPublishMode string
	defaultSkillID     string
}

// NewNormalizer creates a normalizer. Empty defaults fall back to codex, pr,
// and auto.
func NewNormalizer(defaultRuntime, defaultPublishMode, defaultSkillID string) *Normalizer {
	if defaultRuntime == "" {
		defaultRuntime = RuntimeCodex
	}
	if defaultPublishMode == "" {
		defaultPublishMode = PublishModePR
	}
	if defaultSkillID == "" {
		defaultSkillID = DefaultSkillID
	}
	return &Normalizer{
		defaultRuntime:     defaultRuntime,
		defaultPublishMode: defaultPublishMode,
		defaultSkillID:     defaultSkillID,
	}
}

// Normalize validates a task-family payload and returns the canonical view
// plus the normalized payload to persist. Legacy job types are lifted into
// the canonical shape first. The input payload is never mutated.
func (n *Normalizer) Normalize(jobType types.JobType, payload types.JSONMap) (*CanonicalTask, types.JSONMap, error) {
	if len(payload) == 0 {
		return nil, nil, errors.NewContract(errors.CodeInvalidQueuePayload, "payload cannot be empty")
	}

	work := payload.Clone()
	lifted := false

	switch jobType {
	case types.JobTypeTask:
	case types.JobTypeCodexExec:
		var err error
		if work, err = liftCodexExec(work); err != nil {
			return nil, nil, err
		}
		lifted = true
	case types.JobTypeCodexSkill:
		var err error
		if work, err = liftCodexSkill(work); err != nil {
			return nil, nil, err
		}
		lifted = true
	default:
		return nil, nil, errors.NewContractf(errors.CodeInvalidQueuePayload, "job type %q has no task contract", jobType)
	}

	canonical, err := n.normalizeTask(work)
	if err != nil {
		return nil, nil, err
	}
	canonical.LegacyLifted = lifted
	return canonical, work, nil
}

func (n *Normalizer) normalizeTask(work types.JSONMap) (*CanonicalTask, error) {
	repository := strings.TrimSpace(work.String("repository"))
	if err := ValidateRepository(repository); err != nil {
		return nil, err
	}
	work["repository"] = repository

	runtime, rewritten, err := n.normalizeRuntime(work.String("targetRuntime"))
	if err != nil {
		return nil, err
	}
	work["targetRuntime"] = runtime

	task := work.Map("task")
	if task == nil {
		return nil, errors.NewContract(errors.CodeInvalidQueuePayload, "task block is required")
	}

	instructions := strings.TrimSpace(task.String("instructions"))
	if instructions == "" {
		return nil, errors.NewContract(errors.CodeInvalidQueuePayload, "task.instructions is required")
	}
	task["instructions"] = instructions

	publishMode, err := n.normalizePublish(task)
	if err != nil {
		return nil, err
	}

	skillID, skillArgs, skillCaps, err := n.normalizeSkill(task)
	if err != nil {
		return nil, err
	}

	stepCaps, stepCount, err := validateSteps(task)
	if err != nil {
		return nil, err
	}

	containerEnabled, err := validateContainer(task, stepCount)
	if err != nil {
		return nil, err
	}

	if err := validateAuth(work.Map("auth")); err != nil {
		return nil, err
	}

	caps := deriveCapabilities(capabilityInputs{
		runtime:          runtime,
		publishMode:      publishMode,
		skillCaps:        skillCaps,
		stepCaps:         stepCaps,
		containerEnabled: containerEnabled,
		declared:         work.StringSlice("requiredCapabilities"),
	})
	work["requiredCapabilities"] = caps

	plan := stagePlan(publishMode)
	work["stagePlan"] = plan

	return &CanonicalTask{
		Repository:           repository,
		TargetRuntime:        runtime,
		Instructions:         instructions,
		PublishMode:          publishMode,
		SkillID:              skillID,
		SkillArgs:            skillArgs,
		RequiredCapabilities: caps,
		StagePlan:            plan,
		ContainerEnabled:     containerEnabled,
		RuntimeRewritten:     rewritten,
	}, nil
}

// ValidateRepository accepts owner/repo shorthand, https URLs without
// userinfo, and git@host:path SSH forms.
func ValidateRepository(repository string) error {
	if repository == "" {
		return errors.NewContract(errors.CodeInvalidQueuePayload, "repository is required")
	}
	if repoShorthandPattern.MatchString(repository) {
		return nil
	}
	if strings.HasPrefix(repository, "https://") {
		u, err := url.Parse(repository)
		if err != nil {
			return errors.NewContractf(errors.CodeInvalidQueuePayload, "repository URL %q is malformed", repository)
		}
		if u.User != nil {
			return errors.NewContractf(errors.CodeInvalidQueuePayload, "repository URL %q must not embed credentials", repository)
		}
		if u.Host == "" || u.Path == "" || u.Path == "/" {
			return errors.NewContractf(errors.CodeInvalidQueuePayload, "repository URL %q must include a host and path", repository)
		}
		return nil
	}
	if repoSSHPattern.MatchString(repository) {
		return nil
	}
	return errors.NewContractf(errors.CodeInvalidQueuePayload,
		"repository %q must be owner/repo, an https URL, or git@host:path", repository)
}

func (n *Normalizer) normalizeRuntime(raw string) (string, bool, error) {
	runtime := strings.ToLower(strings.TrimSpace(raw))
	switch runtime {
	case "":
		return "", false, errors.NewContract(errors.CodeInvalidQueuePayload, "targetRuntime is required")
	case RuntimeUniversal:
		return n.defaultRuntime, true, nil
	case RuntimeCodex, RuntimeGemini, RuntimeClaude:
		return runtime, false, nil
	default:
		return "", false, errors.NewContractf(errors.CodeInvalidQueuePayload,
			"targetRuntime %q must be one of codex, gemini, claude, universal", raw)
	}
}

func (n *Normalizer) normalizePublish(task types.JSONMap) (string, error) {
	publish := task.Map("publish")
	if publish == nil {
		publish = types.JSONMap{}
	}

	mode := strings.ToLower(strings.TrimSpace(publish.String("mode")))
	if mode == "" {
		mode = n.defaultPublishMode
	}
	switch mode {
	case PublishModeNone, PublishModeBranch, PublishModePR:
	default:
		return "", errors.NewContractf(errors.CodeInvalidQueuePayload,
			"task.publish.mode %q must be one of none, branch, pr", publish.String("mode"))
	}

	publish["mode"] = mode
	task["publish"] = map[string]any(publish)
	return mode, nil
}

func (n *Normalizer) normalizeSkill(task types.JSONMap) (string, map[string]any, []string, error) {
	skill := task.Map("skill")
	if skill == nil {
		skill = types.JSONMap{}
	}

	id := strings.TrimSpace(skill.String("id"))
	if id == "" {
		id = n.defaultSkillID
	}
	skill["id"] = id

	args := skill.Map("args")
	if args == nil {
		args = types.JSONMap{}
	}
	skill["args"] = map[string]any(args)

	var caps []string
	if _, present := skill["requiredCapabilities"]; present {
		caps = NormalizeCapabilities(skill.StringSlice("requiredCapabilities"))
		skill["requiredCapabilities"] = caps
	}

	task["skill"] = map[string]any(skill)
	return id, args, caps, nil
}

func validateSteps(task types.JSONMap) ([]string, int, error) {
	raw, present := task["steps"]
	if !present {
		return nil, 0, nil
	}
	steps, ok := raw.([]any)
	if !ok {
		return nil, 0, errors.NewContract(errors.CodeInvalidQueuePayload, "task.steps must be a list")
	}

	var caps []string
	for i, item := range steps {
		step, ok := item.(map[string]any)
		if !ok {
			return nil, 0, errors.NewContractf(errors.CodeInvalidQueuePayload, "task.steps[%d] must be an object", i)
		}
		for _, key := range forbiddenStepKeys {
			if _, found := step[key]; found {
				return nil, 0, errors.NewContractf(errors.CodeInvalidQueuePayload,
					"task.steps[%d] may not set task-scoped key %q", i, key)
			}
		}
		caps = append(caps, types.JSONMap(step).StringSlice("requiredCapabilities")...)
	}
	return caps, len(steps), nil
}

func validateContainer(task types.JSONMap, stepCount int) (bool, error) {
	container := task.Map("container")
	if container == nil || !container.Bool("enabled") {
		return false, nil
	}

	if stepCount > 0 {
		return false, errors.NewContract(errors.CodeInvalidQueuePayload,
			"task.container and task.steps are mutually exclusive")
	}
	if strings.TrimSpace(container.String("image")) == "" {
		return false, errors.NewContract(errors.CodeInvalidQueuePayload,
			"task.container.image is required when the container is enabled")
	}

	command := container.Slice("command")
	if len(command) == 0 {
		return false, errors.NewContract(errors.CodeInvalidQueuePayload,
			"task.container.command must be a non-empty list")
	}
	for i, part := range command {
		if _, ok := part.(string); !ok {
			return false, errors.NewContractf(errors.CodeInvalidQueuePayload,
				"task.container.command[%d] must be a string", i)
		}
	}

	env := container.Map("env")
	for key, value := range env {
		if strings.Contains(key, "=") {
			return false, errors.NewContractf(errors.CodeInvalidQueuePayload,
				"task.container.env key %q may not contain '='", key)
		}
		for _, reserved := range reservedContainerEnvKeys {
			if key == reserved {
				return false, errors.NewContractf(errors.CodeInvalidQueuePayload,
					"task.container.env key %q is reserved", key)
			}
		}
		if _, ok := value.(string); !ok {
			return false, errors.NewContractf(errors.CodeInvalidQueuePayload,
				"task.container.env[%q] must be a string", key)
		}
	}

	return true, nil
}

func validateAuth(auth types.JSONMap) error {
	if auth == nil {
		return nil
	}
	for _, field := range []string{"repoAuthRef", "publishAuthRef"} {
		raw, present := auth[field]
		if !present {
			continue
		}
		value, ok := raw.(string)
		if !ok || strings.TrimSpace(value) == "" {
			return errors.NewContractf(errors.CodeInvalidQueuePayload, "auth.%s must be a vault reference", field)
		}
		if _, err := security.ParseVaultRef(value); err != nil {
			return errors.NewContractf(errors.CodeInvalidQueuePayload, "auth.%s: %v", field, err)
		}
	}
	return nil
}

func stagePlan(publishMode string) []string {
	plan := []string{StagePrepare, StageExecute}
	if publishMode != PublishModeNone {
		plan = append(plan, StagePublish)
	}
	return plan
}
