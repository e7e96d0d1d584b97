// Package natsgath publishes judgements to a NATS subject.
package natsgath

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/programme-lv/cmake-judge/api"
)

// HeaderEvalUuid carries the evaluation id so consumers can route without decoding.
const HeaderEvalUuid = "Eval-Uuid"

// Publisher is satisfied by *nats.Conn.
type Publisher interface {
	PublishMsg(m *nats.Msg) error
}

type natsGatherer struct {
	pub     Publisher
	subject string
}

// New creates a gatherer that publishes to subject, typically a reply inbox.
func New(pub Publisher, subject string) *natsGatherer {
	return &natsGatherer{pub: pub, subject: subject}
}

func (g *natsGatherer) Emit(_ context.Context, j api.Judgement) error {
	b, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("failed to marshal judgement: %w", err)
	}
	msg := nats.NewMsg(g.subject)
	msg.Data = b
	msg.Header.Set(HeaderEvalUuid, j.EvalUuid)
	if err := g.pub.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish judgement to %s: %w", g.subject, err)
	}
	return nil
}
