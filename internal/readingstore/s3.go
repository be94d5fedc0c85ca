package readingstore

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"path"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/clock"

	"github.com/fogwell/fogwell/internal/common/fogwellerrors"
	"github.com/fogwell/fogwell/internal/common/util"
	"github.com/fogwell/fogwell/internal/ingest"
)

const (
	s3Source        = "s3"
	ndjsonMediaType = "application/x-ndjson"
)

// S3PutObjectAPI is the part of the s3 client the archive store needs.
type S3PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store archives each batch as one newline-delimited JSON object under
// <prefix>/<service>/<yyyy>/<mm>/<dd>/<batch id>.ndjson.
type S3Store struct {
	client  S3PutObjectAPI
	bucket  string
	prefix  string
	service string
	clock   clock.PassiveClock
}

func NewS3Store(client S3PutObjectAPI, bucket, prefix, service string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix, service: service, clock: clock.RealClock{}}
}

func (s *S3Store) Append(ctx context.Context, batch []*ingest.ReadingRecord) error {
	if len(batch) == 0 {
		return nil
	}
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, r := range batch {
		if err := enc.Encode(r); err != nil {
			return fogwellerrors.NewStorageError(s3Source, errors.WithStack(err), false)
		}
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey()),
		Body:          bytes.NewReader(body.Bytes()),
		ContentLength: aws.Int64(int64(body.Len())),
		ContentType:   aws.String(ndjsonMediaType),
		Metadata:      map[string]string{"batch-size": strconv.Itoa(len(batch))},
	})
	if err != nil {
		return classifyS3Error(err)
	}
	return nil
}

func (s *S3Store) objectKey() string {
	now := s.clock.Now().UTC()
	return path.Join(s.prefix, s.service, now.Format("2006/01/02"), util.NewULID()+".ndjson")
}

func classifyS3Error(err error) error {
	retryable := errors.Is(err, context.DeadlineExceeded)
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		status := respErr.HTTPStatusCode()
		retryable = status >= http.StatusInternalServerError || status == http.StatusTooManyRequests
	}
	return fogwellerrors.NewStorageError(s3Source, errors.WithStack(err), retryable)
}
