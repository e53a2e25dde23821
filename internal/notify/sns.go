package notify

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"pulse-engine/internal/common/errors"
	"pulse-engine/internal/common/logging"
)

// Config holds AWS settings for the SNS notifier.
type Config struct {
	Region          string
	TopicARN        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// SNSNotifier publishes refresh signals to an SNS topic that UI subscribers
// listen on.
type SNSNotifier struct {
	client   *sns.Client
	topicARN string
	logger   logging.Logger
}

// NewSNSNotifier creates the SNS client.
func NewSNSNotifier(ctx context.Context, config *Config) (*SNSNotifier, error) {
	opts := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(config.Region),
	}
	if config.AccessKeyID != "" {
		opts = append(opts, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				config.AccessKeyID, config.SecretAccessKey, config.SessionToken)))
	}

	cfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.ConnectionError("failed to load AWS config", err)
	}

	return &SNSNotifier{
		client:   sns.NewFromConfig(cfg),
		topicARN: config.TopicARN,
		logger:   logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "notifier"}),
	}, nil
}

// RefreshPlaylists publishes the refresh event. Failures are logged and
// swallowed; a lost refresh only delays a UI reload.
func (n *SNSNotifier) RefreshPlaylists() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, err := n.client.Publish(ctx, &sns.PublishInput{
			TopicArn: aws.String(n.topicARN),
			Message:  aws.String(`{"event":"refresh-playlists"}`),
		})
		if err != nil {
			n.logger.Warn("Failed to publish refresh notification",
				logging.Field{Key: "error", Value: err.Error()})
		}
	}()
}
