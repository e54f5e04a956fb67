// Package reliability keeps the run store healthy: report archiving to
// S3-compatible storage and the scheduled maintenance job.
package reliability

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aristath/phaselock/internal/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

const archiveContentType = "application/msgpack"

// uploader is the part of manager.Uploader the archiver uses.
type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// objectStore lists and deletes archived objects.
type objectStore interface {
	s3.ListObjectsV2APIClient
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// ArchivedReport is one stored report object.
type ArchivedReport struct {
	Key          string    `json:"key"`
	RunID        string    `json:"run_id"`
	SizeBytes    int64     `json:"size_bytes"`
	LastModified time.Time `json:"last_modified"`
}

// S3Archiver uploads encoded run reports to an S3-compatible bucket.
// A disabled archiver accepts no uploads.
type S3Archiver struct {
	enabled  bool
	bucket   string
	prefix   string
	uploader uploader
	store    objectStore
	log      zerolog.Logger
}

// NewS3Archiver creates an archiver from cfg. Nothing is contacted until the
// first upload.
func NewS3Archiver(ctx context.Context, cfg config.ArchiveConfig, log zerolog.Logger) (*S3Archiver, error) {
	a := &S3Archiver{
		enabled: cfg.Enabled,
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		log:     log.With().Str("service", "report_archive").Logger(),
	}
	if !cfg.Enabled {
		return a, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load archive credentials: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	a.uploader = manager.NewUploader(client)
	a.store = client
	return a, nil
}

// Enabled reports whether uploads are configured.
func (a *S3Archiver) Enabled() bool {
	return a.enabled
}

// Key is the object key of a report: <prefix>/<yyyy>/<mm>/<run-id>.msgpack.
func (a *S3Archiver) Key(runID string, createdAt time.Time) string {
	t := createdAt.UTC()
	return path.Join(a.prefix, fmt.Sprintf("%04d", t.Year()), fmt.Sprintf("%02d", int(t.Month())), runID+".msgpack")
}

// Archive uploads payload and returns its object key.
func (a *S3Archiver) Archive(ctx context.Context, runID string, createdAt time.Time, payload []byte) (string, error) {
	if !a.enabled {
		return "", fmt.Errorf("report archive is disabled")
	}

	key := a.Key(runID, createdAt)
	_, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String(archiveContentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload report %s: %w", runID, err)
	}

	a.log.Info().
		Str("run_id", runID).
		Str("key", key).
		Int("size_bytes", len(payload)).
		Msg("Report archived")
	return key, nil
}

// List returns every archived report under the prefix.
func (a *S3Archiver) List(ctx context.Context) ([]ArchivedReport, error) {
	if !a.enabled {
		return nil, nil
	}

	prefix := a.prefix
	if prefix != "" {
		prefix += "/"
	}
	paginator := s3.NewListObjectsV2Paginator(a.store, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(prefix),
	})

	var out []ArchivedReport
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list archived reports: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil || !strings.HasSuffix(*obj.Key, ".msgpack") {
				continue
			}
			r := ArchivedReport{
				Key:   *obj.Key,
				RunID: strings.TrimSuffix(path.Base(*obj.Key), ".msgpack"),
			}
			if obj.Size != nil {
				r.SizeBytes = *obj.Size
			}
			if obj.LastModified != nil {
				r.LastModified = *obj.LastModified
			}
			out = append(out, r)
		}
	}
	return out, nil
}

// PruneBefore deletes archived reports last modified before t.
func (a *S3Archiver) PruneBefore(ctx context.Context, t time.Time) (int, error) {
	reports, err := a.List(ctx)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, r := range reports {
		if !r.LastModified.Before(t) {
			continue
		}
		_, err := a.store.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(r.Key),
		})
		if err != nil {
			return deleted, fmt.Errorf("failed to delete %s: %w", r.Key, err)
		}
		deleted++
	}

	if deleted > 0 {
		a.log.Info().Int("deleted", deleted).Time("before", t).Msg("Pruned archived reports")
	}
	return deleted, nil
}
