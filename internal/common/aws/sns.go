// internal/common/aws/sns.go
package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"frontdesk/internal/models"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSAPI is the subset of the SNS client used here.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSPublisher fans detected entries out to a topic.
type SNSPublisher struct {
	client   SNSAPI
	topicARN string
}

func NewSNSPublisher(ctx context.Context, region, topicARN string) (*SNSPublisher, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSNSPublisherWithClient(sns.NewFromConfig(cfg), topicARN), nil
}

func NewSNSPublisherWithClient(client SNSAPI, topicARN string) *SNSPublisher {
	return &SNSPublisher{client: client, topicARN: topicARN}
}

type entryMessage struct {
	EntryID    int64  `json:"entryId"`
	MemberID   int64  `json:"memberId"`
	AccessKind string `json:"accessKind"`
	Area       string `json:"area"`
	Device     string `json:"device"`
	Notes      string `json:"notes,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

// Publish sends one entry. The message id is returned for logging.
func (p *SNSPublisher) Publish(ctx context.Context, ev models.EntryEvent) (string, error) {
	body, err := json.Marshal(entryMessage{
		EntryID:    ev.ID,
		MemberID:   ev.MemberID,
		AccessKind: ev.AccessKind,
		Area:       ev.Area,
		Device:     ev.Device,
		Notes:      ev.Notes,
		CreatedAt:  ev.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
	if err != nil {
		return "", fmt.Errorf("marshal entry: %w", err)
	}

	out, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: awssdk.String(p.topicARN),
		Message:  awssdk.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"eventType": {
				DataType:    awssdk.String("String"),
				StringValue: awssdk.String("entry.detected"),
			},
			"area": {
				DataType:    awssdk.String("String"),
				StringValue: awssdk.String(ev.Area),
			},
			"memberId": {
				DataType:    awssdk.String("Number"),
				StringValue: awssdk.String(strconv.FormatInt(ev.MemberID, 10)),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("sns publish entry %d: %w", ev.ID, err)
	}
	return awssdk.ToString(out.MessageId), nil
}
