package sqsgath

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/programme-lv/cmake-judge/api"
)

const attrEvalUuid = "eval_uuid"

func (s *sqsResQueueGatherer) Emit(ctx context.Context, j api.Judgement) error {
	b, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("failed to marshal judgement: %w", err)
	}

	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueUrl),
		MessageBody: aws.String(string(b)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			attrEvalUuid: {
				DataType:    aws.String("String"),
				StringValue: aws.String(j.EvalUuid),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send judgement to %s: %w", s.queueUrl, err)
	}
	return nil
}
