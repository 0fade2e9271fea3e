// Package attachment issues time-limited upload links for todo attachments
// and builds the permanent object URL stored on the todo.
package attachment

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"todo-backend/internal/apperr"
	"todo-backend/pkg/metrics"
)

// PresignAPI is the subset of *s3.PresignClient the issuer uses.
type PresignAPI interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type S3Issuer struct {
	presigner PresignAPI
	bucket    string
	expires   time.Duration
	logger    *zap.Logger
}

func NewS3Issuer(presigner PresignAPI, bucket string, expires time.Duration, logger *zap.Logger) *S3Issuer {
	return &S3Issuer{presigner: presigner, bucket: bucket, expires: expires, logger: logger}
}

// IssueUploadURL returns a pre-signed PUT URL for bucket/objectKey. The key
// is used as given.
func (s *S3Issuer) IssueUploadURL(ctx context.Context, objectKey string) (url string, err error) {
	defer func() { metrics.IncrementUploadURLIssued(err) }()
	s.logger.Debug("Issuing upload URL", zap.String("bucket", s.bucket), zap.String("key", objectKey))

	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	}, s3.WithPresignExpires(s.expires))
	if err != nil {
		s.logger.Error("Failed to presign upload URL",
			zap.String("bucket", s.bucket),
			zap.String("key", objectKey),
			zap.Error(err),
		)
		return "", apperr.Wrap(apperr.KindStoreUnavailable, "attachment.IssueUploadURL", "could not presign upload", err)
	}

	s.logger.Info("Upload URL issued",
		zap.String("key", objectKey),
		zap.Duration("expires_in", s.expires),
	)
	return req.URL, nil
}

// AttachmentURL is the permanent virtual-hosted URL of the todo's object.
func (s *S3Issuer) AttachmentURL(userID, todoID string) string {
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s/%s", s.bucket, userID, todoID)
}

// ObjectKey is the key an attachment for the todo is uploaded under.
func ObjectKey(userID, todoID string) string {
	return userID + "/" + todoID
}
