// Package jsongath writes judgements as JSON lines.
package jsongath

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/programme-lv/cmake-judge/api"
)

type JsonGatherer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func New(w io.Writer) *JsonGatherer {
	return &JsonGatherer{enc: json.NewEncoder(w)}
}

// Emit writes j as a single line.
func (g *JsonGatherer) Emit(_ context.Context, j api.Judgement) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enc.Encode(j); err != nil {
		return fmt.Errorf("failed to write judgement: %w", err)
	}
	return nil
}
