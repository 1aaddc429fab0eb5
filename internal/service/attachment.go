package service

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/Manz2/chat-e2e/internal/config"
)

// MaxAttachmentSize bounds a single sealed blob (100 MiB).
const MaxAttachmentSize = int64(100 << 20)

const presignExpiry = 15 * time.Minute

// PresignedAttachment is what a client gets back: the blob key plus a
// time-limited URL to PUT or GET it directly against the store.
type PresignedAttachment struct {
	Key       string `json:"key"`
	URL       string `json:"url"`
	ExpiresIn int    `json:"expires_in"` // seconds
}

// AttachmentService presigns upload/download URLs for sealed attachment
// blobs on an S3-compatible store. Every blob is client-side ciphertext;
// the server neither reads nor writes blob content, it only mints URLs.
type AttachmentService struct {
	presigner *s3.PresignClient
	bucket    string
}

// NewAttachmentService constructs the S3-compatible presigner (Cloudflare R2
// endpoint layout).
func NewAttachmentService(ctx context.Context, cfg *config.Config) (*AttachmentService, error) {
	if cfg.BlobAccountID == "" || cfg.BlobAccessKeyID == "" || cfg.BlobSecretAccessKey == "" || cfg.BlobBucketName == "" {
		return nil, fmt.Errorf("missing attachment store configuration")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.BlobAccessKeyID, cfg.BlobSecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.BlobAccountID)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &AttachmentService{
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.BlobBucketName,
	}, nil
}

// PresignUpload mints a PUT URL for a fresh blob key. The caller uploads the
// sealed blob directly; the key then travels inside the encrypted message so
// only recipients learn it.
func (s *AttachmentService) PresignUpload(ctx context.Context) (*PresignedAttachment, error) {
	key := fmt.Sprintf("attachments/%s", uuid.NewString())

	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		ContentType:   aws.String("application/octet-stream"),
		ContentLength: nil, // size enforced by bucket policy, not here
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return nil, fmt.Errorf("presign upload: %w", err)
	}

	return &PresignedAttachment{
		Key:       key,
		URL:       req.URL,
		ExpiresIn: int(presignExpiry.Seconds()),
	}, nil
}

// PresignDownload mints a GET URL for an existing blob key.
func (s *AttachmentService) PresignDownload(ctx context.Context, key string) (*PresignedAttachment, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return nil, fmt.Errorf("presign download: %w", err)
	}

	return &PresignedAttachment{
		Key:       key,
		URL:       req.URL,
		ExpiresIn: int(presignExpiry.Seconds()),
	}, nil
}
