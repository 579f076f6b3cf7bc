package mplsgos

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestTraceManagerInactive(t *testing.T) {
	tm := CreateTraceManager("off", false)
	assert.False(t, tm.Active())
	assert.NoError(t, tm.AddName(1, "a", "lsr"))
	assert.NoError(t, tm.AddName(1, "a", "lsr"))
	tm.addElementTrace(TimestampFromNs(10), 1, "send", nil, "")
	assert.Equal(t, 0, tm.NumTraces(1))
	assert.NoError(t, tm.WriteToFile(filepath.Join(t.TempDir(), "trace.txt")))

	var none *TraceManager
	assert.False(t, none.Active())
	none.Reset()
}

func TestTraceManagerRecords(t *testing.T) {
	tm := CreateTraceManager("on", true)
	require.NoError(t, tm.AddName(1, "a", "lsr"))
	assert.ErrorContains(t, tm.AddName(1, "b", "lsr"), "duplicated id 1")

	p := &Packet{ID: 12, Type: MPLSPacket, Labels: []int{17}}
	tm.addElementTrace(CreateTimestamp(1, 500000), 1, "send", p, "")
	tm.addElementTrace(CreateTimestamp(2, 0), 1, "break", nil, "scheduled")
	require.Equal(t, 2, tm.NumTraces(1))

	first := tm.Traces[1][0]
	traceTime, err := strconv.ParseFloat(first.TraceTime, 64)
	require.NoError(t, err)
	assert.InDelta(t, 0.0015, traceTime, 1e-9)
	assert.Equal(t, "packet", first.TraceType)
	etr := ElementTrace{}
	require.NoError(t, yaml.Unmarshal([]byte(first.TraceStr), &etr))
	assert.Equal(t, "send", etr.Op)
	assert.Equal(t, int64(12), etr.PacketID)
	assert.Equal(t, "MPLS", etr.PacketType)
	assert.Equal(t, []int{17}, etr.Labels)
	assert.InDelta(t, 0.0015, etr.Time, 1e-9)

	second := tm.Traces[1][1]
	assert.Equal(t, "element", second.TraceType)
	assert.Contains(t, second.TraceStr, "detail: scheduled")

	tm.Reset()
	assert.Equal(t, 0, tm.NumTraces(1))
	assert.Len(t, tm.NameByID, 1)
}

func TestTraceManagerWriteToFile(t *testing.T) {
	dir := t.TempDir()
	tm := CreateTraceManager("files", true)
	require.NoError(t, tm.AddName(3, "core", "lsr"))
	tm.addElementTrace(TimestampFromNs(2000), 3, "drop", &Packet{ID: 1}, "buffer-full")

	for _, name := range []string{"trace.yaml", "trace.json"} {
		filename := filepath.Join(dir, name)
		require.NoError(t, tm.WriteToFile(filename))
		data, err := os.ReadFile(filename)
		require.NoError(t, err)
		assert.Contains(t, string(data), "files")
		assert.Contains(t, string(data), "core")
	}
	assert.ErrorContains(t, tm.WriteToFile(filepath.Join(dir, "trace.csv")), "extension")
}
