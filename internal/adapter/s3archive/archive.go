// Package s3archive uploads every committed result table to S3, keeping one
// object per run.
package s3archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/couchcryptid/carbon-emission-etl/internal/domain"
	"github.com/couchcryptid/carbon-emission-etl/internal/tabular"
)

// putter is the subset of *s3.Client the archive uses.
type putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archive implements domain.ResultSink.
type Archive struct {
	client putter
	bucket string
	prefix string
	logger *slog.Logger
}

// New loads the default AWS config for region and creates an archive.
func New(ctx context.Context, region, bucket, prefix string, logger *slog.Logger) (*Archive, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewWithClient(s3.NewFromConfig(cfg), bucket, prefix, logger), nil
}

// NewWithClient creates an archive around an existing client.
func NewWithClient(client putter, bucket, prefix string, logger *slog.Logger) *Archive {
	return &Archive{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

// Name identifies the sink in logs and metrics.
func (a *Archive) Name() string { return "s3" }

// Key is the object key of a run: <prefix>/<domain>/<run id>.csv.
func (a *Archive) Key(d domain.Domain, runID string) string {
	return path.Join(a.prefix, string(d), runID+".csv")
}

// Publish uploads the result table as CSV.
func (a *Archive) Publish(ctx context.Context, batch domain.ResultBatch) error {
	data, err := tabular.Encode(batch.Table)
	if err != nil {
		return fmt.Errorf("encode %s results: %w", batch.Domain, err)
	}
	key := a.Key(batch.Domain, batch.RunID)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/csv"),
		Metadata: map[string]string{
			"domain": string(batch.Domain),
			"run-id": batch.RunID,
		},
	})
	if err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", a.bucket, key, err)
	}
	a.logger.Debug("results archived", "domain", batch.Domain, "run_id", batch.RunID, "key", key, "bytes", len(data))
	return nil
}
