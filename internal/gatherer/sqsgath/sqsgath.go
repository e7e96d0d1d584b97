// Package sqsgath sends judgements to an SQS response queue.
package sqsgath

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SendMessageAPI is the part of *sqs.Client the gatherer needs.
type SendMessageAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

type sqsResQueueGatherer struct {
	client   SendMessageAPI
	queueUrl string
}

func New(client SendMessageAPI, queueUrl string) *sqsResQueueGatherer {
	return &sqsResQueueGatherer{client: client, queueUrl: queueUrl}
}
