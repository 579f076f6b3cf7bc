package mplsgos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGPSRPEntrySingleAttempt(t *testing.T) {
	gre := CreateGPSRPRequestEntry(1)
	gre.SetAttempts(1)
	gre.PushCandidateNode("10.0.0.2")
	gre.DecreaseTimeout(DefaultGPSRPTimeout)
	assert.Equal(t, int64(0), gre.Timeout())
	assert.True(t, gre.IsRetryable())
	assert.False(t, gre.IsPurgeable())

	ip, ok := gre.PopNextCandidateNode()
	require.True(t, ok)
	assert.Equal(t, "10.0.0.2", ip)
	assert.True(t, gre.IsPurgeable())
	assert.False(t, gre.IsRetryable())

	_, ok = gre.PopNextCandidateNode()
	assert.False(t, ok)
}

func TestGPSRPEntryCandidateOrder(t *testing.T) {
	gre := CreateGPSRPRequestEntry(1)
	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		gre.PushCandidateNode(ip)
	}
	assert.Equal(t, 3, gre.CandidatesLeft())
	order := []string{}
	for {
		ip, ok := gre.PopNextCandidateNode()
		if !ok {
			break
		}
		order = append(order, ip)
	}
	assert.Equal(t, []string{"10.0.0.3", "10.0.0.2", "10.0.0.1"}, order)
}

func TestGPSRPEntryTimeouts(t *testing.T) {
	gre := CreateGPSRPRequestEntry(1)
	gre.PushCandidateNode("10.0.0.1")
	gre.DecreaseTimeout(DefaultGPSRPTimeout / 2)
	assert.False(t, gre.IsRetryable())
	gre.DecreaseTimeout(DefaultGPSRPTimeout)
	assert.Equal(t, int64(0), gre.Timeout())

	gre.ResetTimeout()
	assert.Equal(t, DefaultGPSRPTimeout, gre.Timeout())
	assert.Equal(t, DefaultGPSRPAttempts-1, gre.Attempts())
}

func TestGPSRPEntryForcedReset(t *testing.T) {
	gre := CreateGPSRPRequestEntry(1)
	gre.PushCandidateNode("10.0.0.1")
	gre.SetAttempts(2)
	gre.DecreaseTimeout(10)

	gre.ForceTimeoutReset()
	assert.Equal(t, 1, gre.Attempts())
	assert.Equal(t, DefaultGPSRPTimeout, gre.Timeout())

	gre.ForceTimeoutReset()
	assert.Equal(t, 0, gre.Attempts())
	assert.Equal(t, int64(0), gre.Timeout())
	assert.True(t, gre.IsPurgeable())

	gre.SetAttempts(-3)
	assert.Equal(t, 0, gre.Attempts())
}

func TestGPSRPRequestsLifecycle(t *testing.T) {
	grs := CreateGPSRPRequests()
	lost := &Packet{FlowID: 4, GoSID: 9, GoSLevel: 2, Type: MPLSPacket, Labels: []int{40},
		CrossedActiveNodes: []string{"10.0.0.1", "10.0.0.2"}}
	gre := grs.AddEntry(lost, 3)
	lost.Labels[0] = 41

	assert.Equal(t, 1, gre.Order())
	assert.Equal(t, 4, gre.FlowID())
	assert.Equal(t, 9, gre.PacketID())
	assert.Equal(t, []int{40}, gre.labels, "the header is copied")
	assert.Equal(t, 3, gre.inPort)
	assert.Same(t, gre, grs.Get(4, 9))
	assert.Nil(t, grs.Get(4, 10))

	ip, ok := gre.PopNextCandidateNode()
	require.True(t, ok)
	assert.Equal(t, "10.0.0.2", ip)

	other := grs.AddEntry(&Packet{FlowID: 4, GoSID: 10, CrossedActiveNodes: []string{"10.0.0.1"}}, 0)
	assert.Equal(t, 2, other.Order())
	assert.Equal(t, 2, grs.Count())

	grs.DecreaseTimeouts(DefaultGPSRPTimeout)
	assert.Equal(t, []*GPSRPRequestEntry{gre, other}, grs.Retryable())

	// the first request is on its last candidate; once it is popped the request is done
	_, ok = gre.PopNextCandidateNode()
	require.True(t, ok)
	assert.Equal(t, 1, grs.Purge())
	assert.Nil(t, grs.Get(4, 9))

	grs.Remove(4, 10)
	assert.Equal(t, 0, grs.Count())

	grs.AddEntry(lost, 0)
	grs.Reset()
	assert.Equal(t, 0, grs.Count())
	assert.Equal(t, 1, grs.AddEntry(lost, 0).Order())
}
