package mplsgos

// flow-sim.go holds the traffic generator a sender uses to turn its flow into packets.
// Generation instants are drawn from the inter-arrival distribution of the flow,
// using the random number stream of the sender
import (
	"math"

	"github.com/iti/rngstream"
)

// trafficGen turns a Flow into generation instants
type trafficGen struct {
	flow *Flow

	// next generation instant, ns
	nxtArrival int64

	// last GoS sequence number handed out
	gosID int

	// function that computes inter-arrival times.  First argument
	// is U01 random number, second argument is vector of parameters for distribution
	sampleNxtArrival func(float64, []float64) float64

	rngstrm *rngstream.RngStream
}

// createTrafficGen is a constructor
func createTrafficGen(flow *Flow, rngstrm *rngstream.RngStream) *trafficGen {
	tg := new(trafficGen)
	tg.flow = flow
	tg.rngstrm = rngstrm
	tg.sampleNxtArrival = sampleConst
	tg.adjustInterArrivalDist(flow.Dist)
	tg.nxtArrival = flow.Start
	return tg
}

// set the distribution of the inter-arrivals
func (tg *trafficGen) adjustInterArrivalDist(dist string) {
	switch dist {
	case "exponential", "exp", "expon":
		tg.sampleNxtArrival = sampleExpRV

	case "constant", "const":
		tg.sampleNxtArrival = sampleConst
	}
}

// interArrival samples the gap to the next packet, in ns, never less than 1
func (tg *trafficGen) interArrival() int64 {
	secs := tg.sampleNxtArrival(tg.rngstrm.RandU01(), []float64{tg.flow.pcktRate()})
	ns := int64(math.Round(secs * 1e9))
	if ns < 1 {
		ns = 1
	}
	return ns
}

// due returns the number of packets generated no later than t
func (tg *trafficGen) due(t Timestamp) int {
	now := t.TotalNs()
	cnt := 0
	for tg.nxtArrival <= now {
		if !tg.flow.active(tg.nxtArrival) {
			if tg.flow.Stop != 0 && tg.nxtArrival >= tg.flow.Stop {
				tg.nxtArrival = math.MaxInt64
			}
			break
		}
		cnt += 1
		tg.nxtArrival += tg.interArrival()
	}
	return cnt
}

// nextGoSID hands out the sequence number of the next packet of the flow
func (tg *trafficGen) nextGoSID() int {
	tg.gosID += 1
	return tg.gosID
}

// reset rewinds the generator, its random stream included, so a run replays
func (tg *trafficGen) reset() {
	tg.nxtArrival = tg.flow.Start
	tg.gosID = 0
	tg.rngstrm.ResetStartStream()
}

// expRV returns a sample of a exponentially distributed random number
func expRV(u01, rate float64) float64 {
	return -math.Log(1.0-u01) / rate
}

// sampleExpRV has the function signature expected by trafficGen
// for calling a next interarrival time
func sampleExpRV(u01 float64, params []float64) float64 {
	return expRV(u01, params[0])
}

// sampleConst has the function signature expected by trafficGen
// for calling a next interarrival time, here, a constant
func sampleConst(u01 float64, params []float64) float64 {
	return 1.0 / params[0]
}
