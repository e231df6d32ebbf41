package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNS rejects subjects longer than 100 characters.
const snsMaxSubjectLength = 100

// SNSPublisher is the subset of the SNS client used by SNSProvider.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSProvider publishes notifications to an SNS topic.
type SNSProvider struct {
	client   SNSPublisher
	topicARN string
}

func NewSNSProvider(client SNSPublisher, topicARN string) *SNSProvider {
	return &SNSProvider{client: client, topicARN: topicARN}
}

func (p *SNSProvider) Name() string {
	return "sns"
}

func (p *SNSProvider) Send(ctx context.Context, msg Message) (SendResult, error) {
	if p.topicARN == "" {
		return SendResult{}, errors.New("sns publish failed: topic ARN missing")
	}
	input := &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(msg.Text),
	}
	if msg.Subject != "" {
		input.Subject = aws.String(truncateSubject(msg.Subject))
	}
	if len(msg.Attributes) > 0 {
		input.MessageAttributes = buildMessageAttributes(msg.Attributes)
	}

	out, err := p.client.Publish(ctx, input)
	if err != nil {
		return SendResult{}, fmt.Errorf("sns publish failed: %w", err)
	}
	return SendResult{ProviderMessageID: aws.ToString(out.MessageId)}, nil
}

func buildMessageAttributes(attributes map[string]string) map[string]types.MessageAttributeValue {
	values := make(map[string]types.MessageAttributeValue, len(attributes))
	for key, value := range attributes {
		if value == "" {
			continue
		}
		values[key] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(value),
		}
	}
	return values
}

func truncateSubject(subject string) string {
	runes := []rune(subject)
	if len(runes) <= snsMaxSubjectLength {
		return subject
	}
	return string(runes[:snsMaxSubjectLength])
}
