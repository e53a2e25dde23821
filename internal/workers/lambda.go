package workers

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdaTypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"pulse-engine/internal/common/errors"
)

// Config holds AWS settings for the Lambda invoker.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// LambdaInvoker invokes workers as AWS Lambda functions. The invocation
// handle is the function ARN; invocation type Event makes the call
// asynchronous on the AWS side.
type LambdaInvoker struct {
	client *lambda.Client
}

// NewLambdaInvoker creates the Lambda client. When static credentials are
// configured they are used directly; otherwise the default credential chain
// applies.
func NewLambdaInvoker(ctx context.Context, config *Config) (*LambdaInvoker, error) {
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

	return &LambdaInvoker{client: lambda.NewFromConfig(cfg)}, nil
}

// Invoke fires the worker and returns without waiting for a result.
func (i *LambdaInvoker) Invoke(ctx context.Context, handle string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return errors.InternalError("failed to marshal worker payload", err)
	}

	_, err = i.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(handle),
		InvocationType: lambdaTypes.InvocationTypeEvent,
		Payload:        raw,
	})
	if err != nil {
		return errors.DispatchError("failed to invoke worker", err).WithContext("handle", handle)
	}

	return nil
}
