package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/okian/draftboard/internal/app/pipeline"
	"github.com/okian/draftboard/pkg/logger"
)

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// withUploader replaces the S3 uploader.
func withUploader(u uploader) Option {
	return func(o *options) {
		o.uploader = u
	}
}

// S3 archives reports as date-partitioned JSON objects.
type S3 struct {
	uploader uploader
	bucket   string
	prefix   string
	log      logger.Logger
}

// NewS3 creates an S3 sink. Credentials and region come from the default
// AWS configuration chain.
func NewS3(ctx context.Context, bucket string, opts ...Option) (*S3, error) {
	if bucket == "" {
		return nil, ErrNoBucket
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	up := o.uploader
	if up == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		up = manager.NewUploader(s3.NewFromConfig(cfg))
	}

	return &S3{uploader: up, bucket: bucket, prefix: o.prefix, log: o.log}, nil
}

// Name implements pipeline.ReportSink.
func (s *S3) Name() string { return "s3" }

// ObjectKey returns prefix/reports/YYYY/MM/DD/<execution id>.json, dated by
// the run start in UTC.
func (s *S3) ObjectKey(r *pipeline.Report) string {
	t := r.StartedAt.UTC()
	return path.Join(s.prefix, "reports", t.Format("2006"), t.Format("01"), t.Format("02"), r.ExecutionID+".json")
}

// Deliver implements pipeline.ReportSink.
func (s *S3) Deliver(ctx context.Context, r *pipeline.Report) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	key := s.ObjectKey(r)
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(body),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return fmt.Errorf("upload report %s: %w", key, err)
	}
	s.log.Debug(ctx, "report archived", logger.String("bucket", s.bucket), logger.String("key", key))
	return nil
}
