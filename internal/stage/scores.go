package stage

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/gridcap/gridcap/internal/column"
	"github.com/gridcap/gridcap/internal/core"
)

const AddScoresName = "add_scores"

// Scorer produces one score per packet of a batch. Implementations are
// registered at composition time and looked up by name.
type Scorer interface {
	Score(b *column.Batch) []float64
}

var scorers = map[string]func() Scorer{
	"payload_ratio": func() Scorer { return payloadRatioScorer{} },
	"well_known":    func() Scorer { return wellKnownPortScorer{} },
}

// AddScoresConfig maps score column labels to scorer names.
type AddScoresConfig struct {
	Columns map[string]string `mapstructure:"columns"`
}

// AddScores attaches named float64 score columns to column messages.
type AddScores struct {
	labels  []string
	byLabel map[string]Scorer
}

func init() {
	Register(AddScoresName, func(params map[string]any) (Stage, error) {
		var cfg AddScoresConfig
		if err := mapstructure.Decode(params, &cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrConfigInvalid, err)
		}
		return NewAddScores(&cfg)
	})
}

// NewAddScores resolves every configured scorer up front; an unknown
// scorer name is a construction error, not a per-batch one.
func NewAddScores(cfg *AddScoresConfig) (*AddScores, error) {
	if len(cfg.Columns) == 0 {
		return nil, fmt.Errorf("%w: add_scores requires at least one column", core.ErrConfigInvalid)
	}
	s := &AddScores{byLabel: make(map[string]Scorer, len(cfg.Columns))}
	for label, name := range cfg.Columns {
		mk, ok := scorers[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown scorer %q for column %q", core.ErrConfigInvalid, name, label)
		}
		s.labels = append(s.labels, label)
		s.byLabel[label] = mk()
	}
	return s, nil
}

func (s *AddScores) Name() string { return AddScoresName }

func (s *AddScores) Apply(ctx context.Context, m *Message) (*Message, error) {
	b, err := m.Batch()
	if err != nil {
		return nil, err
	}
	for _, label := range s.labels {
		b.AddScore(label, s.byLabel[label].Score(b))
	}
	return m, nil
}

// payloadRatioScorer scores a packet by how much of the scratch stride its
// payload fills.
type payloadRatioScorer struct{}

func (payloadRatioScorer) Score(b *column.Batch) []float64 {
	out := make([]float64, b.Count)
	for i := 0; i < b.Count; i++ {
		out[i] = float64(len(b.PayloadAt(i))) / float64(core.MaxPktSize)
	}
	return out
}

// wellKnownPortScorer flags packets touching a well-known port.
type wellKnownPortScorer struct{}

func (wellKnownPortScorer) Score(b *column.Batch) []float64 {
	out := make([]float64, b.Count)
	for i := 0; i < b.Count; i++ {
		if b.SrcPort[i] < 1024 || b.DstPort[i] < 1024 {
			out[i] = 1
		}
	}
	return out
}
