package integration

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/security"
	"github.com/moonmind/moonmind/pkg/types"
)

// TestEventJournalCursorPaging pages a journal with the composite
// (createdAt, eventId) cursor and checks the pages reassemble the full
// journal with no gaps or duplicates.
func TestEventJournalCursorPaging(t *testing.T) {
	svc := newQueueService(t)
	ctx := context.Background()

	job := queueTask(t, svc, uniqueRepo(), nil)
	for i := 1; i <= 6; i++ {
		_, err := svc.AppendJobEvent(ctx, job.ID, &types.AppendEventRequest{
			Message: fmt.Sprintf("step-%d", i),
			Payload: types.JSONMap{"index": i},
		})
		if err != nil {
			t.Fatalf("Failed to append event %d: %v", i, err)
		}
	}

	full := jobJournal(t, svc, job.ID)
	if len(full) != 7 {
		t.Fatalf("Expected 7 journal events (queued + 6 steps), got %d", len(full))
	}

	// Walk the journal three at a time.
	var paged []*types.JobEvent
	query := types.ListEventsQuery{Limit: 3}
	for {
		page, err := svc.ListJobEvents(ctx, job.ID, query, 0)
		if err != nil {
			t.Fatalf("Failed to list page: %v", err)
		}
		if len(page) == 0 {
			break
		}
		paged = append(paged, page...)
		last := page[len(page)-1]
		query.After = &last.CreatedAt
		query.AfterEventID = &last.ID
		if len(page) < query.Limit {
			break
		}
	}

	if len(paged) != len(full) {
		t.Fatalf("Paged journal has %d events, full journal has %d", len(paged), len(full))
	}
	for i := range full {
		if paged[i].ID != full[i].ID {
			t.Fatalf("Page order diverged at %d: %s != %s", i, paged[i].ID, full[i].ID)
		}
	}

	// The id half of the cursor is only meaningful with its timestamp.
	_, err := svc.ListJobEvents(ctx, job.ID, types.ListEventsQuery{
		Limit:        3,
		AfterEventID: &full[0].ID,
	}, 0)
	if !errors.IsValidation(err) {
		t.Fatalf("Expected validation error for afterEventId without after, got %v", err)
	}

	_, err = svc.ListJobEvents(ctx, job.ID, types.ListEventsQuery{}, 0)
	if !errors.IsValidation(err) {
		t.Fatalf("Expected validation error for missing limit, got %v", err)
	}
}

// TestWorkerPauseGatesClaims pauses the queue, checks idle claims observe
// the snapshot, and resumes.
func TestWorkerPauseGatesClaims(t *testing.T) {
	svc := newQueueService(t)
	ctx := context.Background()
	actor := "it-operator"

	// The pause row is a shared singleton; normalize it and put it back
	// however the test ends.
	baseline, err := svc.SetWorkerPause(ctx, actor, &types.WorkerPauseRequest{ForceResume: true})
	if err != nil {
		t.Fatalf("Failed to normalize pause state: %v", err)
	}
	t.Cleanup(func() {
		_, _ = svc.SetWorkerPause(context.Background(), actor, &types.WorkerPauseRequest{ForceResume: true})
	})

	mode := types.PauseModeQuiesce
	paused, err := svc.SetWorkerPause(ctx, actor, &types.WorkerPauseRequest{
		Paused: true,
		Mode:   &mode,
		Reason: "provider incident",
	})
	if err != nil {
		t.Fatalf("Failed to pause workers: %v", err)
	}
	if !paused.Paused {
		t.Fatal("Expected paused snapshot")
	}
	if paused.Version <= baseline.Version {
		t.Fatalf("Expected version above %d, got %d", baseline.Version, paused.Version)
	}
	if paused.Mode == nil || *paused.Mode != types.PauseModeQuiesce {
		t.Fatalf("Expected quiesce mode, got %v", paused.Mode)
	}

	// Pausing a paused queue is a state conflict, not a version bump.
	_, err = svc.SetWorkerPause(ctx, actor, &types.WorkerPauseRequest{Paused: true, Reason: "again"})
	if !errors.IsState(err) {
		t.Fatalf("Expected state error for double pause, got %v", err)
	}

	repo := uniqueRepo()
	workerID := fmt.Sprintf("it-worker-%d", time.Now().Unix())
	policy := workerPolicy(t, svc, workerID, repo)
	job := queueTask(t, svc, repo, nil)

	resp := claimOne(t, svc, policy, workerID)
	if resp.Job != nil {
		t.Fatalf("Claimed job %s while workers were paused", resp.Job.ID)
	}
	snapshot := resp.System.WorkerPause
	if !snapshot.Paused {
		t.Fatal("Expected claim response to carry the paused snapshot")
	}
	if snapshot.Version != paused.Version {
		t.Fatalf("Expected snapshot version %d, got %d", paused.Version, snapshot.Version)
	}
	if snapshot.Reason == nil || *snapshot.Reason != "provider incident" {
		t.Fatalf("Expected pause reason in snapshot, got %v", snapshot.Reason)
	}
	t.Logf("Claim refused under pause version %d", snapshot.Version)

	resumed, err := svc.SetWorkerPause(ctx, actor, &types.WorkerPauseRequest{Paused: false})
	if err != nil {
		t.Fatalf("Failed to resume workers: %v", err)
	}
	if resumed.Paused {
		t.Fatal("Expected resumed snapshot")
	}
	if resumed.Version <= paused.Version {
		t.Fatalf("Expected resume to bump version past %d, got %d", paused.Version, resumed.Version)
	}

	// Plain resume of a running queue conflicts; force resume does not.
	_, err = svc.SetWorkerPause(ctx, actor, &types.WorkerPauseRequest{Paused: false})
	if !errors.IsState(err) {
		t.Fatalf("Expected state error for double resume, got %v", err)
	}
	if _, err := svc.SetWorkerPause(ctx, actor, &types.WorkerPauseRequest{ForceResume: true}); err != nil {
		t.Fatalf("Expected force resume to succeed on a running queue, got %v", err)
	}

	resp = claimOne(t, svc, policy, workerID)
	if resp.Job == nil {
		t.Fatal("Expected to claim the queued job after resume")
	}
	if resp.Job.ID != job.ID {
		t.Fatalf("Claimed job %s, expected %s", resp.Job.ID, job.ID)
	}
}

// TestWorkerTokenLifecycle mints, resolves, and revokes a scoped token.
func TestWorkerTokenLifecycle(t *testing.T) {
	svc := newQueueService(t)
	ctx := context.Background()

	repo := uniqueRepo()
	workerID := fmt.Sprintf("it-worker-%d", time.Now().UnixNano())
	minted, err := svc.MintWorkerToken(ctx, &types.CreateWorkerTokenRequest{
		WorkerID:            workerID,
		Description:         "token lifecycle test",
		AllowedRepositories: []string{repo},
		AllowedJobTypes:     []string{"task"},
		Capabilities:        []string{" Codex ", "GIT", "gh", "git"},
	})
	if err != nil {
		t.Fatalf("Failed to mint token: %v", err)
	}

	if !strings.HasPrefix(minted.Token, security.WorkerTokenPrefix) {
		t.Fatalf("Expected raw token with %s prefix, got %q", security.WorkerTokenPrefix, minted.Token)
	}
	if len(minted.Token) != len(security.WorkerTokenPrefix)+48 {
		t.Fatalf("Expected 48 hex chars after the prefix, got length %d", len(minted.Token))
	}
	if !strings.HasPrefix(minted.WorkerToken.TokenHash, "sha256:") {
		t.Fatalf("Expected sha256 storage form, got %q", minted.WorkerToken.TokenHash)
	}
	if !minted.WorkerToken.IsActive {
		t.Fatal("Expected minted token to be active")
	}
	caps := []string(minted.WorkerToken.Capabilities)
	if len(caps) != 3 || caps[0] != "codex" || caps[1] != "git" || caps[2] != "gh" {
		t.Fatalf("Expected normalized capabilities [codex git gh], got %v", caps)
	}

	// Unknown job types are rejected at mint time.
	_, err = svc.MintWorkerToken(ctx, &types.CreateWorkerTokenRequest{
		WorkerID:        workerID,
		AllowedJobTypes: []string{"mystery"},
	})
	if !errors.IsValidation(err) {
		t.Fatalf("Expected validation error for unknown job type, got %v", err)
	}

	policy, err := svc.ResolveWorkerToken(ctx, minted.Token)
	if err != nil {
		t.Fatalf("Failed to resolve token: %v", err)
	}
	if policy.WorkerID != workerID {
		t.Fatalf("Expected policy for %s, got %s", workerID, policy.WorkerID)
	}
	if policy.AuthSource != types.AuthSourceWorkerToken {
		t.Fatalf("Expected worker_token auth source, got %s", policy.AuthSource)
	}
	if len(policy.AllowedRepositories) != 1 || policy.AllowedRepositories[0] != repo {
		t.Fatalf("Expected repository scope %q, got %v", repo, policy.AllowedRepositories)
	}

	// Malformed and unknown credentials fail identically.
	if _, err := svc.ResolveWorkerToken(ctx, "not-a-token"); !errors.IsAuthentication(err) {
		t.Fatalf("Expected authentication error for malformed token, got %v", err)
	}
	unknown := security.WorkerTokenPrefix + strings.Repeat("0", 48)
	if _, err := svc.ResolveWorkerToken(ctx, unknown); !errors.IsAuthentication(err) {
		t.Fatalf("Expected authentication error for unknown token, got %v", err)
	}

	// A token cannot act for a different worker identity.
	_, err = svc.ClaimJob(ctx, &types.ClaimRequest{
		WorkerID:     "someone-else",
		LeaseSeconds: 30,
	}, policy)
	if !errors.IsAuthorization(err) {
		t.Fatalf("Expected authorization error for worker mismatch, got %v", err)
	}

	tokens, err := svc.ListWorkerTokens(ctx)
	if err != nil {
		t.Fatalf("Failed to list tokens: %v", err)
	}
	found := false
	for _, token := range tokens {
		if token.ID == minted.WorkerToken.ID {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("Minted token %s missing from listing", minted.WorkerToken.ID)
	}

	revoked, err := svc.RevokeWorkerToken(ctx, minted.WorkerToken.ID)
	if err != nil {
		t.Fatalf("Failed to revoke token: %v", err)
	}
	if revoked.IsActive {
		t.Fatal("Expected revoked token to be inactive")
	}
	if _, err := svc.ResolveWorkerToken(ctx, minted.Token); !errors.IsAuthentication(err) {
		t.Fatalf("Expected authentication error after revocation, got %v", err)
	}
}
