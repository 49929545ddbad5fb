package infrastructure

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/pkg/errors"

	"github.com/orderflow/saga-system/shared/events"
)

// SNSPublisherAdapter wires an SNSEventPublisher behind the events.Publisher
// interface, loading the AWS config itself.
type SNSPublisherAdapter struct {
	snsPublisher *SNSEventPublisher
}

// NewSNSPublisherAdapter creates a publisher for the given topic ARN. Works
// against LocalStack when AWS_ENDPOINT_URL is set.
func NewSNSPublisherAdapter(topicArn string) (*SNSPublisherAdapter, error) {
	cfg, err := config.LoadDefaultConfig(context.Background())
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	return &SNSPublisherAdapter{
		snsPublisher: NewSNSEventPublisher(sns.NewFromConfig(cfg), topicArn),
	}, nil
}

// Publish implements events.Publisher
func (p *SNSPublisherAdapter) Publish(ctx context.Context, events ...*events.Event) error {
	return p.snsPublisher.Publish(ctx, events...)
}

// Close closes the publisher
func (p *SNSPublisherAdapter) Close() error {
	return nil
}
