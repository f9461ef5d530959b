package stage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridcap/gridcap/internal/column"
	"github.com/gridcap/gridcap/internal/core"
)

func testBatch() *column.Batch {
	return &column.Batch{
		Count:          2,
		SrcMAC:         []int64{0xAABBCCDDEEFF, 0x001122334455},
		DstMAC:         []int64{0x001122334455, 0xAABBCCDDEEFF},
		SrcIP:          []int64{0xC0A80101, 0x0A000001},
		DstIP:          []int64{0x0A000002, 0xC0A80102},
		SrcPort:        []int32{443, 51000},
		DstPort:        []int32{51000, 8080},
		TCPFlags:       []int32{0x18, 0x10},
		EtherType:      []int32{0x0800, 0x0800},
		Protocol:       []int32{6, 6},
		Timestamp:      []int64{1700000000000, 1700000000001},
		PayloadOffsets: []int32{0, 4, 4},
		Payload:        []byte("data"),
	}
}

func TestMessageVariantDispatch(t *testing.T) {
	cm := NewColumnMessage(testBatch())
	assert.Equal(t, KindColumn, cm.Kind())
	_, err := cm.Batch()
	assert.NoError(t, err)
	_, err = cm.Control()
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUnsupportedMessage)
	assert.Contains(t, err.Error(), "column")

	ctl := NewControlMessage(&Control{Name: "job"})
	_, err = ctl.Batch()
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUnsupportedMessage)
	assert.Contains(t, err.Error(), "control")
}

func TestAddScoresAttachesColumns(t *testing.T) {
	st, err := NewAddScores(&AddScoresConfig{Columns: map[string]string{
		"fill":       "payload_ratio",
		"privileged": "well_known",
	}})
	require.NoError(t, err)

	m, err := st.Apply(context.Background(), NewColumnMessage(testBatch()))
	require.NoError(t, err)

	b, err := m.Batch()
	require.NoError(t, err)
	require.Len(t, b.ScoreLabels, 2)

	fill := b.Scores["fill"]
	require.Len(t, fill, 2)
	assert.InDelta(t, 4.0/float64(core.MaxPktSize), fill[0], 1e-12)
	assert.Zero(t, fill[1])

	priv := b.Scores["privileged"]
	assert.Equal(t, []float64{1, 0}, priv)
}

func TestAddScoresRejectsControl(t *testing.T) {
	st, err := NewAddScores(&AddScoresConfig{Columns: map[string]string{"fill": "payload_ratio"}})
	require.NoError(t, err)

	_, err = st.Apply(context.Background(), NewControlMessage(&Control{Name: "job"}))
	assert.ErrorIs(t, err, core.ErrUnsupportedMessage)
}

func TestAddScoresUnknownScorer(t *testing.T) {
	_, err := NewAddScores(&AddScoresConfig{Columns: map[string]string{"x": "nope"}})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestSerializeSelection(t *testing.T) {
	tests := []struct {
		name    string
		include []string
		exclude []string
		want    []string
	}{
		{
			name: "default keeps everything",
			want: BaseColumns,
		},
		{
			name:    "include mac columns",
			include: []string{`_mac$`},
			want:    []string{"src_mac", "dst_mac"},
		},
		{
			name:    "exclude payload",
			exclude: []string{`^payload$`},
			want: []string{"timestamp", "src_mac", "dst_mac", "src_ip", "dst_ip",
				"src_port", "dst_port", "tcp_flags", "ether_type", "protocol"},
		},
		{
			name:    "exclude wins over include",
			include: []string{`port`},
			exclude: []string{`^src_`},
			want:    []string{"dst_port"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := NewSerialize(&SerializeConfig{Include: tt.include, Exclude: tt.exclude})
			require.NoError(t, err)

			m, err := st.Apply(context.Background(), NewColumnMessage(testBatch()))
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Selected())
		})
	}
}

func TestSerializeBadPattern(t *testing.T) {
	_, err := NewSerialize(&SerializeConfig{Include: []string{"("}})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestSerializeIncludesScoreColumns(t *testing.T) {
	b := testBatch()
	b.AddScore("anomaly", []float64{0.25, 0.75})

	st, err := NewSerialize(&SerializeConfig{Include: []string{`^anomaly$`}})
	require.NoError(t, err)
	m, err := st.Apply(context.Background(), NewColumnMessage(b))
	require.NoError(t, err)
	assert.Equal(t, []string{"anomaly"}, m.Selected())
}

func TestRowsRendering(t *testing.T) {
	b := testBatch()
	b.AddScore("anomaly", []float64{0.25, 0.75})

	rows := Rows(b, nil)
	require.Len(t, rows, 2)

	assert.Equal(t, "AA:BB:CC:DD:EE:FF", rows[0]["src_mac"])
	assert.Equal(t, "data", rows[0]["payload"])
	assert.Equal(t, "", rows[1]["payload"])
	assert.Equal(t, int32(443), rows[0]["src_port"])
	assert.Equal(t, 0.25, rows[0]["anomaly"])

	selected := Rows(b, []string{"src_port"})
	assert.Equal(t, map[string]any{"src_port": int32(443)}, selected[0])
}

func TestChainStopsAtFirstError(t *testing.T) {
	scores, err := NewAddScores(&AddScoresConfig{Columns: map[string]string{"fill": "payload_ratio"}})
	require.NoError(t, err)
	ser, err := NewSerialize(&SerializeConfig{})
	require.NoError(t, err)

	_, err = Chain(context.Background(), []Stage{scores, ser}, NewControlMessage(&Control{Name: "x"}))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUnsupportedMessage)
	assert.Contains(t, err.Error(), AddScoresName)
}

func TestBuildRegisteredStages(t *testing.T) {
	st, err := Build(AddScoresName, map[string]any{
		"columns": map[string]any{"fill": "payload_ratio"},
	})
	require.NoError(t, err)
	assert.Equal(t, AddScoresName, st.Name())

	st, err = Build(SerializeName, map[string]any{
		"exclude": []string{`^payload$`},
	})
	require.NoError(t, err)
	assert.Equal(t, SerializeName, st.Name())

	_, err = Build("bogus", nil)
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}
