package archive

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/getmentor/confluence-alert-action/pkg/logger"
	"github.com/getmentor/confluence-alert-action/pkg/metrics"
	"go.uber.org/zap"
)

const pageContentType = "text/html; charset=utf-8"

// ObjectPutter is the subset of the S3 API used by the archive
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// StorageClient stores snapshots of published page bodies in an
// S3-compatible bucket
type StorageClient struct {
	s3Client   ObjectPutter
	bucketName string
}

// NewStorageClient creates an archive client. An empty endpoint uses AWS S3.
func NewStorageClient(accessKeyID, secretAccessKey, bucketName, endpoint, region string) (*StorageClient, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("empty bucket name provided")
	}
	if region == "" {
		region = "us-east-1"
	}

	options := s3.Options{
		Region: region,
		Credentials: credentials.NewStaticCredentialsProvider(
			accessKeyID,
			secretAccessKey,
			"", // session token not needed
		),
	}
	if endpoint != "" {
		options.BaseEndpoint = aws.String(endpoint)
		options.UsePathStyle = true
	}

	logger.Debug("Page archive client initialized",
		zap.String("bucket", bucketName),
		zap.String("endpoint", endpoint),
		zap.String("region", region),
	)

	return NewStorageClientWithAPI(s3.New(options), bucketName), nil
}

// NewStorageClientWithAPI creates an archive client over an existing S3 API
func NewStorageClientWithAPI(api ObjectPutter, bucketName string) *StorageClient {
	return &StorageClient{
		s3Client:   api,
		bucketName: bucketName,
	}
}

// PageKey returns the object key of a page snapshot
func PageKey(pageID string, version int) string {
	return path.Join("pages", strings.ReplaceAll(pageID, "/", "_"), fmt.Sprintf("v%d.html", version))
}

// ArchivePage uploads the body published as version of pageID and returns
// the object key
func (s *StorageClient) ArchivePage(ctx context.Context, pageID string, version int, body string) (string, error) {
	start := time.Now()
	operation := "archivePage"
	key := PageKey(pageID, version)

	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        strings.NewReader(body),
		ContentType: aws.String(pageContentType),
		Metadata: map[string]string{
			"page-id":      pageID,
			"page-version": fmt.Sprintf("%d", version),
		},
	})

	duration := metrics.MeasureDuration(start)

	if err != nil {
		metrics.ArchiveRequestDuration.WithLabelValues(operation, "error").Observe(duration)
		metrics.ArchiveRequestTotal.WithLabelValues(operation, "error").Inc()
		logger.LogAPICall("page_archive", operation, "error", duration,
			zap.Error(err),
			zap.String("key", key),
		)
		return "", fmt.Errorf("failed to archive page %s version %d: %w", pageID, version, err)
	}

	metrics.ArchiveRequestDuration.WithLabelValues(operation, "success").Observe(duration)
	metrics.ArchiveRequestTotal.WithLabelValues(operation, "success").Inc()
	logger.LogAPICall("page_archive", operation, "success", duration,
		zap.String("key", key),
		zap.Int("size_bytes", len(body)),
	)

	return key, nil
}
