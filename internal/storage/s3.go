package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sony/gobreaker/v2"

	"github.com/otogram/backend/internal/config"
	"github.com/otogram/backend/internal/metrics"
)

// S3Backend stores blobs in an S3-compatible bucket. Every call goes through a
// circuit breaker so an unavailable object store fails fast.
type S3Backend struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
	breaker  *gobreaker.CircuitBreaker[any]
}

// NewS3Backend configures a client and uploader targeting the provided object store.
func NewS3Backend(ctx context.Context, cfg config.ObjectStoreConfig) (*S3Backend, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("s3 storage: bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024
		u.LeavePartsOnError = false
	})

	return &S3Backend{
		client:   client,
		uploader: uploader,
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
		breaker:  newBreaker("s3-" + cfg.Bucket),
	}, nil
}

func newBreaker(name string) *gobreaker.CircuitBreaker[any] {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrBlobNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("blob store circuit breaker changed state",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
}

func execute[T any](b *S3Backend, fn func() (T, error)) (T, error) {
	out, err := b.breaker.Execute(func() (any, error) {
		return fn()
	})
	result, _ := out.(T)
	return result, err
}

func (b *S3Backend) key(id string) string {
	if b.prefix == "" {
		return id
	}
	return b.prefix + "/" + id
}

// Put uploads r with the multipart manager.
func (b *S3Backend) Put(ctx context.Context, id, contentType string, r io.Reader) (int64, error) {
	if err := ValidateID(id); err != nil {
		return 0, err
	}

	counter := &countingReader{r: r}
	_, err := execute(b, func() (*manager.UploadOutput, error) {
		return b.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(b.bucket),
			Key:         aws.String(b.key(id)),
			Body:        counter,
			ContentType: aws.String(contentType),
		})
	})
	if err != nil {
		return 0, fmt.Errorf("s3 storage upload %s: %w", id, err)
	}

	return counter.n, nil
}

// Get opens the object for streaming.
func (b *S3Backend) Get(ctx context.Context, id string) (Object, error) {
	if ValidateID(id) != nil {
		return Object{}, ErrBlobNotFound
	}

	out, err := execute(b, func() (*s3.GetObjectOutput, error) {
		out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(b.key(id)),
		})
		return out, translateS3Error(err)
	})
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return Object{}, ErrBlobNotFound
		}
		return Object{}, fmt.Errorf("s3 storage get %s: %w", id, err)
	}

	return Object{
		Body:        out.Body,
		ContentType: aws.ToString(out.ContentType),
		Size:        aws.ToInt64(out.ContentLength),
	}, nil
}

// Delete removes the object. S3 deletes are idempotent, so existence is checked first.
func (b *S3Backend) Delete(ctx context.Context, id string) error {
	if ValidateID(id) != nil {
		return ErrBlobNotFound
	}

	_, err := execute(b, func() (struct{}, error) {
		_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(b.key(id)),
		})
		if err = translateS3Error(err); err != nil {
			return struct{}{}, err
		}

		_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(b.key(id)),
		})
		return struct{}{}, err
	})
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return ErrBlobNotFound
		}
		return fmt.Errorf("s3 storage delete %s: %w", id, err)
	}
	return nil
}

// List pages through every object under the configured prefix.
func (b *S3Backend) List(ctx context.Context) ([]BlobInfo, error) {
	prefix := ""
	if b.prefix != "" {
		prefix = b.prefix + "/"
	}

	return execute(b, func() ([]BlobInfo, error) {
		paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(b.bucket),
			Prefix: aws.String(prefix),
		})

		var blobs []BlobInfo
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, fmt.Errorf("s3 storage list: %w", err)
			}
			for _, obj := range page.Contents {
				id := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
				if id == "" || strings.Contains(id, "/") {
					continue
				}
				blobs = append(blobs, BlobInfo{ID: id, CreatedAt: aws.ToTime(obj.LastModified)})
			}
		}
		return blobs, nil
	})
}

func translateS3Error(err error) error {
	if err == nil {
		return nil
	}
	var noSuchKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return ErrBlobNotFound
	}
	return err
}

var _ Backend = (*S3Backend)(nil)
