/*
Package archive keeps an immutable copy of every persisted payment schedule
in object storage (MinIO / S3).

OBJECT LAYOUT:
  schedules/{activity_pricing_id}/{updated_at}-{config_id}.json

  Each save writes a new object; nothing is overwritten. Together with the
  audit log this answers "what did the customer agree to, and when".
*/
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tailfire/payment-engine/schedule"
)

type objectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinioArchiver implements schedule.Archiver.
type MinioArchiver struct {
	client objectPutter
	bucket string
}

var _ schedule.Archiver = (*MinioArchiver)(nil)

func NewMinioArchiver(client *minio.Client, bucket string) *MinioArchiver {
	return &MinioArchiver{client: client, bucket: bucket}
}

// NewMinioClient connects and creates the bucket when missing.
func NewMinioClient(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*minio.Client, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
	}
	return client, nil
}

func (a *MinioArchiver) ArchiveSchedule(ctx context.Context, cfg schedule.Config) error {
	body, err := json.Marshal(NewDocument(cfg))
	if err != nil {
		return fmt.Errorf("failed to encode schedule %s: %w", cfg.ID, err)
	}

	name := ObjectName(cfg)
	_, err = a.client.PutObject(ctx, a.bucket, name, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"activity-pricing-id": cfg.ActivityPricingID,
			"template-id":         string(cfg.TemplateID),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to archive %s to bucket %s: %w", name, a.bucket, err)
	}
	return nil
}

// ObjectName is the storage key of one schedule version.
func ObjectName(cfg schedule.Config) string {
	return fmt.Sprintf("schedules/%s/%s-%s.json",
		cfg.ActivityPricingID, cfg.UpdatedAt.UTC().Format("20060102T150405.000000000Z"), cfg.ID)
}

// =============================================================================
// DOCUMENT
// =============================================================================

type Document struct {
	ConfigID             string     `json:"config_id"`
	ActivityPricingID    string     `json:"activity_pricing_id"`
	ScheduleType         string     `json:"schedule_type"`
	TotalCents           int64      `json:"total_cents"`
	Currency             string     `json:"currency,omitempty"`
	AllowPartialPayments bool       `json:"allow_partial_payments"`
	TemplateID           string     `json:"template_id,omitempty"`
	TemplateVersion      int        `json:"template_version,omitempty"`
	Items                []Item     `json:"items"`
	Guarantee            *Guarantee `json:"guarantee,omitempty"`
	SavedAt              time.Time  `json:"saved_at"`
}

type Item struct {
	Sequence    int    `json:"sequence"`
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	AmountCents int64  `json:"amount_cents"`
	DueDate     string `json:"due_date"`
	Status      string `json:"status"`
}

type Guarantee struct {
	CardLast4         string `json:"card_last4"`
	CardBrand         string `json:"card_brand,omitempty"`
	AuthorizationCode string `json:"authorization_code"`
	AuthorizedCents   int64  `json:"authorized_cents"`
}

func NewDocument(cfg schedule.Config) Document {
	doc := Document{
		ConfigID:             string(cfg.ID),
		ActivityPricingID:    cfg.ActivityPricingID,
		ScheduleType:         string(cfg.ScheduleType),
		TotalCents:           int64(cfg.TotalCents),
		Currency:             cfg.Currency,
		AllowPartialPayments: cfg.AllowPartialPayments,
		TemplateID:           string(cfg.TemplateID),
		TemplateVersion:      cfg.TemplateVersion,
		Items:                make([]Item, 0, len(cfg.Items)),
		SavedAt:              cfg.UpdatedAt.UTC(),
	}
	for _, it := range cfg.Items {
		var due string
		if it.DueDate != nil {
			due = it.DueDate.String()
		}
		doc.Items = append(doc.Items, Item{
			Sequence:    it.SequenceOrder,
			Name:        it.Name,
			Kind:        string(it.Kind),
			AmountCents: int64(it.AmountCents),
			DueDate:     due,
			Status:      string(it.Status),
		})
	}
	if g := cfg.Guarantee; g != nil {
		doc.Guarantee = &Guarantee{
			CardLast4:         g.CardLast4,
			CardBrand:         g.CardBrand,
			AuthorizationCode: g.AuthorizationCode,
			AuthorizedCents:   int64(g.AuthorizedCents),
		}
	}
	return doc
}
