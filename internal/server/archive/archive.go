// Package archive exports moments that are about to be purged.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dmitrijs2005/momentkeeper/internal/api"
	"github.com/dmitrijs2005/momentkeeper/internal/server/models"
)

// Exporter stores a snapshot of moments and returns the key it was written
// under. An empty key means nothing was stored.
type Exporter interface {
	Export(ctx context.Context, userID string, moments []models.Moment) (string, error)
}

// Document is the JSON object written per purge.
type Document struct {
	UserID     string       `json:"userId"`
	ExportedAt time.Time    `json:"exportedAt"`
	Moments    []api.Moment `json:"moments"`
}

// NopExporter discards exports. It is used when no bucket is configured.
type NopExporter struct{}

func (NopExporter) Export(context.Context, string, []models.Moment) (string, error) {
	return "", nil
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}
)

// S3Config holds the S3-compatible storage settings.
type S3Config struct {
	User         string
	Password     string
	Bucket       string
	Region       string
	BaseEndpoint string
}

// S3Exporter writes one JSON document per purge to an S3-compatible bucket.
type S3Exporter struct {
	cfg S3Config
	now func() time.Time
}

func NewS3Exporter(cfg S3Config) *S3Exporter {
	return &S3Exporter{cfg: cfg, now: time.Now}
}

func (e *S3Exporter) client(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(e.cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			e.cfg.User,
			e.cfg.Password,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if e.cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(e.cfg.BaseEndpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Key returns the object key for an export made at t.
func Key(userID string, t time.Time) string {
	return fmt.Sprintf("archives/%s/%s.json", userID, t.UTC().Format("20060102T150405.000000000Z"))
}

func (e *S3Exporter) Export(ctx context.Context, userID string, moments []models.Moment) (string, error) {
	if len(moments) == 0 {
		return "", nil
	}

	at := e.now()
	doc := Document{UserID: userID, ExportedAt: at.UTC(), Moments: make([]api.Moment, 0, len(moments))}
	for i := range moments {
		doc.Moments = append(doc.Moments, moments[i].ToAPI())
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode archive: %w", err)
	}

	c, err := e.client(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create s3 client: %w", err)
	}

	key := Key(userID, at)
	_, err = putObject(c, ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload archive: %w", err)
	}
	return key, nil
}

var (
	_ Exporter = NopExporter{}
	_ Exporter = (*S3Exporter)(nil)
)
