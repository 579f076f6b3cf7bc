package mplsgos

import (
	"fmt"
)

// Flow describes the traffic one sender offers to the network
type Flow struct {
	FlowID   int
	Name     string
	Src      string  // address of the sender
	Dst      string  // address of the receiver
	Rate     float64 // Mbps
	Payload  int     // octets per packet beyond the IPv4 header
	GoSLevel int     // 0 best effort, 1..3
	Backup   bool    // ask the ingress active LER for a protected path
	Dist     string  // "constant" or "exponential" inter-arrivals
	Start    int64   // ns
	Stop     int64   // ns, 0 means until the end of the run
}

var validDists = []string{"constant", "const", "exponential", "exp", "expon"}

// CreateFlow is a constructor.  It returns nil if the rate is not positive
func CreateFlow(flowID int, name, src, dst string, rate float64, payload, gosLevel int, backup bool) *Flow {
	if !(rate > 0) {
		return nil
	}
	fl := new(Flow)
	fl.FlowID = flowID
	fl.Name = name
	fl.Src = src
	fl.Dst = dst
	fl.Rate = rate
	fl.Payload = payload
	fl.GoSLevel = min(max(gosLevel, 0), maxGoSLevel)
	fl.Backup = backup
	fl.Dist = "constant"
	return fl
}

// packetSize is the size of one packet of the flow when it leaves the sender
func (fl *Flow) packetSize() int {
	return ipv4HeaderLen + fl.Payload
}

// pcktRate is the number of packets per second the rate asks for
func (fl *Flow) pcktRate() float64 {
	return fl.Rate * 1e6 / float64(8*fl.packetSize())
}

// active tells whether the flow emits at time t, in ns
func (fl *Flow) active(t int64) bool {
	if t < fl.Start {
		return false
	}
	return fl.Stop == 0 || t < fl.Stop
}

func (fl *Flow) String() string {
	return fmt.Sprintf("flow %d %s %s->%s %.3fMbps gos %d", fl.FlowID, fl.Name, fl.Src, fl.Dst, fl.Rate, fl.GoSLevel)
}
