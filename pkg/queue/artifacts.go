package queue

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/moonmind/moonmind/pkg/artifacts"
	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/metrics"
	"github.com/moonmind/moonmind/pkg/storage"
	"github.com/moonmind/moonmind/pkg/types"
)

// UploadArtifactInput carries one artifact upload. WorkerID is optional;
// when present the job must be running and claimed by that worker.
type UploadArtifactInput struct {
	JobID       string
	WorkerID    *string
	Name        string
	ContentType string
	Digest      *string
	Data        []byte
}

// UploadArtifact writes the bytes under the job's artifact subtree and
// records the metadata row plus its journal event in one transaction.
func (s *Service) UploadArtifact(ctx context.Context, in UploadArtifactInput, policy *types.WorkerPolicy) (*types.JobArtifact, error) {
	if int64(len(in.Data)) > s.cfg.ArtifactMaxBytes {
		return nil, errors.NewValidationf(errors.CodeArtifactTooLarge,
			"artifact %q is %d bytes; limit is %d", in.Name, len(in.Data), s.cfg.ArtifactMaxBytes)
	}

	job, err := s.store.GetJob(ctx, in.JobID)
	if err != nil {
		return nil, err
	}
	if in.WorkerID != nil {
		if err := requirePolicyWorker(policy, *in.WorkerID); err != nil {
			return nil, err
		}
		if job.Status != types.JobStatusRunning {
			return nil, errors.NewState(errors.CodeJobStateConflict,
				"artifacts can only be uploaded to running jobs; job "+job.ID+" is "+string(job.Status))
		}
		if job.ClaimedBy == nil || *job.ClaimedBy != *in.WorkerID {
			return nil, errors.NewAuthorization("job " + job.ID + " is not claimed by worker " + *in.WorkerID)
		}
	}

	relPath, err := s.artifacts.Write(in.JobID, in.Name, in.Data)
	if err != nil {
		if errors.Is(err, artifacts.ErrInvalidPath) {
			return nil, errors.NewValidation(errors.CodeInvalidQueuePayload, err.Error())
		}
		return nil, err
	}
	metrics.ArtifactBytes.Add(float64(len(in.Data)))

	name := strings.TrimPrefix(relPath, in.JobID+"/")
	artifact := &types.JobArtifact{
		JobID:       in.JobID,
		Name:        name,
		ContentType: in.ContentType,
		SizeBytes:   int64(len(in.Data)),
		Digest:      in.Digest,
		StoragePath: relPath,
	}
	created, err := s.store.CreateArtifact(ctx, artifact, &types.JobEvent{
		Level:   types.EventLevelInfo,
		Message: storage.EventArtifactUploaded,
		Payload: types.JSONMap{"name": name, "sizeBytes": int64(len(in.Data))},
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("job_id", in.JobID).
		Str("artifact", name).
		Int("size_bytes", len(in.Data)).
		Msg("artifact uploaded")
	s.hub.Publish(in.JobID)
	return created, nil
}

// ListArtifacts returns a job's artifact rows, newest first.
func (s *Service) ListArtifacts(ctx context.Context, jobID string, limit int) ([]*types.JobArtifact, error) {
	if limit < 1 || limit > MaxEventListLimit {
		return nil, errors.NewValidationf(errors.CodeInvalidQueuePayload,
			"limit must be between 1 and %d; got %d", MaxEventListLimit, limit)
	}
	if _, err := s.store.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return s.store.ListArtifacts(ctx, jobID, limit)
}

// OpenArtifact resolves an artifact row and opens its bytes for download.
// The caller owns the returned reader.
func (s *Service) OpenArtifact(ctx context.Context, jobID, artifactID string) (*types.JobArtifact, io.ReadCloser, error) {
	artifact, err := s.store.GetArtifact(ctx, jobID, artifactID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.artifacts.Open(artifact.StoragePath)
	if err != nil {
		if errors.Is(err, artifacts.ErrInvalidPath) {
			return nil, nil, errors.NewValidation(errors.CodeInvalidQueuePayload, err.Error())
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, errors.NewNotFound(errors.CodeArtifactFileMissing,
				"artifact file for "+artifactID+" is missing from storage")
		}
		return nil, nil, err
	}
	return artifact, rc, nil
}
