package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/types"
)

func TestLiftCodexExec(t *testing.T) {
	payload := types.JSONMap{
		"repository":  "Moon/Mind",
		"instruction": "run the nightly index",
		"ref":         "release/v2",
		"publish":     "branch",
		"codex":       map[string]any{"model": "default", "effort": "high"},
	}

	canonical, stored, err := testNormalizer().Normalize(types.JobTypeCodexExec, payload)
	require.NoError(t, err)

	assert.True(t, canonical.LegacyLifted)
	assert.Equal(t, "Moon/Mind", canonical.Repository)
	assert.Equal(t, RuntimeCodex, canonical.TargetRuntime)
	assert.Equal(t, "run the nightly index", canonical.Instructions)
	assert.Equal(t, PublishModeBranch, canonical.PublishMode)

	task := stored.Map("task")
	assert.Equal(t, "release/v2", task.Map("git").String("ref"))
	assert.Equal(t, "high", task.Map("runtime").String("effort"))
	assert.Equal(t, []string{StagePrepare, StageExecute, StagePublish}, canonical.StagePlan)
}

func TestLiftCodexExecPublishForms(t *testing.T) {
	tests := []struct {
		name    string
		publish any
		want    string
	}{
		{name: "mode string", publish: "none", want: PublishModeNone},
		{name: "mode object", publish: map[string]any{"mode": "pr"}, want: PublishModePR},
		{name: "bool true uses default", publish: true, want: PublishModePR},
		{name: "bool false means none", publish: false, want: PublishModeNone},
		{name: "absent uses default", publish: nil, want: PublishModePR},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := types.JSONMap{
				"repository":  "Moon/Mind",
				"instruction": "run",
			}
			if tt.publish != nil {
				payload["publish"] = tt.publish
			}

			canonical, _, err := testNormalizer().Normalize(types.JobTypeCodexExec, payload)
			require.NoError(t, err)
			assert.Equal(t, tt.want, canonical.PublishMode)
		})
	}
}

func TestLiftCodexExecRequiresInstruction(t *testing.T) {
	payload := types.JSONMap{"repository": "Moon/Mind"}

	_, _, err := testNormalizer().Normalize(types.JobTypeCodexExec, payload)
	require.Error(t, err)
	assert.True(t, errors.IsContract(err))
	assert.Contains(t, err.Error(), "instruction")
}

func TestLiftCodexExecDerivesScenarioCapabilities(t *testing.T) {
	// A legacy payload declaring its own capabilities keeps them after the
	// lift; the derived set for a codex job with default pr publishing is
	// codex, git, gh.
	payload := types.JSONMap{
		"repository":           "Moon/Mind",
		"instruction":          "run",
		"publish":              "none",
		"requiredCapabilities": []any{"codex", "git"},
	}

	canonical, stored, err := testNormalizer().Normalize(types.JobTypeCodexExec, payload)
	require.NoError(t, err)
	assert.Equal(t, []string{"codex", "git"}, canonical.RequiredCapabilities)
	assert.Equal(t, []string{"codex", "git"}, stored["requiredCapabilities"])
}

func TestLiftCodexSkill(t *testing.T) {
	payload := types.JSONMap{
		"skillId": "index-docs",
		"inputs": map[string]any{
			"repository":   "Moon/Mind",
			"instructions": "index the docs tree",
			"maxDocs":      50,
		},
		"codex": map[string]any{"model": "default"},
	}

	canonical, stored, err := testNormalizer().Normalize(types.JobTypeCodexSkill, payload)
	require.NoError(t, err)

	assert.True(t, canonical.LegacyLifted)
	assert.Equal(t, "Moon/Mind", canonical.Repository)
	assert.Equal(t, "index the docs tree", canonical.Instructions)
	assert.Equal(t, "index-docs", canonical.SkillID)

	// Consumed keys are lifted out of the skill args
	skill := stored.Map("task").Map("skill")
	args := skill.Map("args")
	assert.NotContains(t, args, "repository")
	assert.NotContains(t, args, "instructions")
	assert.Contains(t, args, "maxDocs")
}

func TestLiftCodexSkillSynthesizesInstructions(t *testing.T) {
	payload := types.JSONMap{
		"repository": "Moon/Mind",
		"skillId":    "index-docs",
	}

	canonical, _, err := testNormalizer().Normalize(types.JobTypeCodexSkill, payload)
	require.NoError(t, err)
	assert.Equal(t, "Run skill index-docs", canonical.Instructions)
}

func TestLiftCodexSkillRequiresSkillID(t *testing.T) {
	payload := types.JSONMap{"repository": "Moon/Mind"}

	_, _, err := testNormalizer().Normalize(types.JobTypeCodexSkill, payload)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "skillId")
}

func TestLiftCodexSkillRepositoryFallback(t *testing.T) {
	t.Run("top level wins", func(t *testing.T) {
		payload := types.JSONMap{
			"repository": "Moon/Mind",
			"skillId":    "s",
			"inputs":     map[string]any{"repository": "Other/Repo"},
		}

		canonical, _, err := testNormalizer().Normalize(types.JobTypeCodexSkill, payload)
		require.NoError(t, err)
		assert.Equal(t, "Moon/Mind", canonical.Repository)
	})

	t.Run("missing everywhere fails", func(t *testing.T) {
		payload := types.JSONMap{"skillId": "s"}

		_, _, err := testNormalizer().Normalize(types.JobTypeCodexSkill, payload)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "repository")
	})
}

func TestLiftCarriesAuthThrough(t *testing.T) {
	payload := types.JSONMap{
		"repository":  "Moon/Mind",
		"instruction": "run",
		"auth":        map[string]any{"repoAuthRef": "vault://ci/github#token"},
	}

	_, stored, err := testNormalizer().Normalize(types.JobTypeCodexExec, payload)
	require.NoError(t, err)
	assert.Equal(t, "vault://ci/github#token", stored.Map("auth").String("repoAuthRef"))
}
