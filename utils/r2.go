// utils/r2.go
package utils

import (
	"context"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// MaxEvidenceBytes caps screenshot uploads.
const MaxEvidenceBytes = 10 * 1024 * 1024

var evidenceExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".webp": true}

// ObjectPutter is the part of *s3.Client used for uploads.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	CDNBaseURL      string
}

// R2Bucket stores match evidence screenshots in Cloudflare R2.
type R2Bucket struct {
	Client     ObjectPutter
	Bucket     string
	CDNBaseURL string
}

func NewR2Bucket(ctx context.Context, c R2Config) (*R2Bucket, error) {
	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.AccountID)
	cdn := strings.TrimRight(c.CDNBaseURL, "/")
	if cdn == "" {
		cdn = endpoint + "/" + c.Bucket
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.AccessKeyID, c.AccessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
	return &R2Bucket{Client: client, Bucket: c.Bucket, CDNBaseURL: cdn}, nil
}

// EvidenceKey builds the object key for one participant's screenshot.
func EvidenceKey(seasonName, matchID, userID, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !evidenceExtensions[ext] {
		return "", fmt.Errorf("unsupported evidence file type %q", ext)
	}
	season := slug.Make(seasonName)
	if season == "" {
		season = "unassigned"
	}
	return fmt.Sprintf("evidence/%s/%s/%s-%s%s", season, matchID, slug.Make(userID), uuid.NewString(), ext), nil
}

// UploadEvidence uploads a multipart screenshot under key and returns its public URL.
func (b *R2Bucket) UploadEvidence(ctx context.Context, key string, fileHeader *multipart.FileHeader) (string, error) {
	if fileHeader.Size > MaxEvidenceBytes {
		return "", fmt.Errorf("evidence file too large: %d bytes", fileHeader.Size)
	}
	file, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = b.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.Bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(fileHeader.Size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to R2: %w", err)
	}
	return fmt.Sprintf("%s/%s", b.CDNBaseURL, key), nil
}
