package errors

// Wire codes carried in the {detail:{code, message}} envelope.
const (
	CodeJobNotFound          = "job_not_found"
	CodeJobStateConflict     = "job_state_conflict"
	CodeJobOwnershipMismatch = "job_ownership_mismatch"
	CodeJobAccessDenied      = "job_access_denied"

	CodeArtifactNotFound    = "artifact_not_found"
	CodeArtifactJobMismatch = "artifact_job_mismatch"
	CodeArtifactTooLarge    = "artifact_too_large"
	CodeArtifactFileMissing = "artifact_file_missing"

	CodeInvalidQueuePayload = "invalid_queue_payload"

	CodeWorkerAuthFailed    = "worker_auth_failed"
	CodeWorkerNotAuthorized = "worker_not_authorized"
	CodeWorkerTokenNotFound = "worker_token_not_found"

	CodeLiveSessionNotFound = "live_session_not_found"

	CodeWorkerPauseInvalidRequest = "worker_pause_invalid_request"
	CodeWorkerPauseForbidden      = "worker_pause_forbidden"
	CodeWorkerPauseActorMissing   = "worker_pause_actor_missing"

	CodeManifestNotFound   = "manifest_not_found"
	CodeInvalidManifest    = "invalid_manifest"
	CodeInvalidManifestJob = "invalid_manifest_job"

	CodeProposalNotFound = "proposal_not_found"
	CodeInvalidProposal  = "invalid_proposal"
	CodeInvalidState     = "invalid_state"

	CodeToolNotFound         = "tool_not_found"
	CodeInvalidToolArguments = "invalid_tool_arguments"

	CodeInternalError = "internal_error"
)

// Skill materialization codes, surfaced verbatim.
const (
	CodeInvalidSkillName        = "invalid_skill_name"
	CodeSkillNotAllowed         = "skill_not_allowed"
	CodeHashMismatch            = "hash_mismatch"
	CodeMissingSkillMD          = "missing_skill_md"
	CodeSkillNameMismatch       = "skill_name_mismatch"
	CodeUnsafeBundleMember      = "unsafe_bundle_member"
	CodeBundleFetchFailed       = "bundle_fetch_failed"
	CodeUnsupportedBundle       = "unsupported_bundle"
	CodeUnsupportedSourceScheme = "unsupported_source_scheme"
	CodeSourceNotFound          = "source_not_found"
	CodeGitFetchFailed          = "git_fetch_failed"
	CodeDuplicateSkillName      = "duplicate_skill_name"
	CodeWorkspaceLinkFailed     = "workspace_link_failed"
	CodeSignatureMissing        = "signature_missing"
)
