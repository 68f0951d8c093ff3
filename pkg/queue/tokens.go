package queue

import (
	"context"
	"strings"

	"github.com/moonmind/moonmind/pkg/contract"
	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/security"
	"github.com/moonmind/moonmind/pkg/types"
)

// MintWorkerToken creates a scoped bearer credential. The raw token is
// returned exactly once; only its sha256 digest is stored.
func (s *Service) MintWorkerToken(ctx context.Context, req *types.CreateWorkerTokenRequest) (*types.CreateWorkerTokenResponse, error) {
	workerID := strings.TrimSpace(req.WorkerID)
	if workerID == "" {
		return nil, errors.NewValidation(errors.CodeInvalidQueuePayload, "workerId is required")
	}
	jobTypes := normalizeTypeList(req.AllowedJobTypes)
	for _, t := range jobTypes {
		if !types.JobType(t).Valid() {
			return nil, errors.NewValidationf(errors.CodeInvalidQueuePayload,
				"allowed job type %q is not recognized", t)
		}
	}

	raw, hash, err := security.MintWorkerToken()
	if err != nil {
		return nil, err
	}

	token := &types.WorkerToken{
		WorkerID:            workerID,
		TokenHash:           hash,
		Description:         strings.TrimSpace(req.Description),
		AllowedRepositories: trimStrings(req.AllowedRepositories),
		AllowedJobTypes:     jobTypes,
		Capabilities:        contract.NormalizeCapabilities(req.Capabilities),
	}
	if err := s.store.CreateWorkerToken(ctx, token); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("token_id", token.ID).
		Str("worker_id", workerID).
		Msg("worker token minted")
	return &types.CreateWorkerTokenResponse{Token: raw, WorkerToken: *token}, nil
}

// ResolveWorkerToken authenticates a raw bearer token and freezes its scope
// into a WorkerPolicy. Missing, malformed, revoked, and unknown tokens all
// fail the same way so callers cannot probe for token existence.
func (s *Service) ResolveWorkerToken(ctx context.Context, raw string) (*types.WorkerPolicy, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.NewAuthentication("worker token required")
	}
	if !security.LooksLikeWorkerToken(raw) {
		return nil, errors.NewAuthentication("worker token is not valid")
	}

	token, err := s.store.GetWorkerTokenByHash(ctx, security.HashWorkerToken(raw))
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NewAuthentication("worker token is not valid")
		}
		return nil, err
	}
	if !token.IsActive {
		return nil, errors.NewAuthentication("worker token is not valid")
	}

	return &types.WorkerPolicy{
		TokenID:             token.ID,
		WorkerID:            token.WorkerID,
		AllowedRepositories: append([]string(nil), token.AllowedRepositories...),
		AllowedJobTypes:     append([]string(nil), token.AllowedJobTypes...),
		Capabilities:        contract.NormalizeCapabilities(token.Capabilities),
		AuthSource:          types.AuthSourceWorkerToken,
	}, nil
}

// ListWorkerTokens returns token metadata newest-first. Hashes never leave
// the store layer's struct tag filter.
func (s *Service) ListWorkerTokens(ctx context.Context) ([]*types.WorkerToken, error) {
	return s.store.ListWorkerTokens(ctx)
}

// RevokeWorkerToken deactivates a token by id.
func (s *Service) RevokeWorkerToken(ctx context.Context, id string) (*types.WorkerToken, error) {
	token, err := s.store.RevokeWorkerToken(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("token_id", token.ID).
		Str("worker_id", token.WorkerID).
		Msg("worker token revoked")
	return token, nil
}

func trimStrings(values []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
