package mplsgos

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// defaults applied to MPLS nodes that leave the figures out
const (
	DefaultPower  float64 = 1000    // Mbps
	DefaultBuffer int     = 1 << 20 // octets
	DefaultDMGP   int     = 16384   // octets
)

// A FlowDesc struct describes the traffic a sender offers.
// Dst is the name of the receiver node
type FlowDesc struct {
	Dst     string  `json:"dst" yaml:"dst" toml:"dst"`
	Rate    float64 `json:"rate" yaml:"rate" toml:"rate"` // Mbps
	Payload int     `json:"payload" yaml:"payload" toml:"payload"`
	GoS     int     `json:"gos" yaml:"gos" toml:"gos"`
	Backup  bool    `json:"backup" yaml:"backup" toml:"backup"`
	Dist    string  `json:"dist,omitempty" yaml:"dist,omitempty" toml:"dist,omitempty"`
	StartNs int64   `json:"startns" yaml:"startns" toml:"startns"`
	StopNs  int64   `json:"stopns" yaml:"stopns" toml:"stopns"`
}

// A NodeDesc struct describes one node.  Type is one of sender, receiver, ler,
// lsr, activeler, activelsr.  An empty IP is filled in from 10.0.0.0/8
type NodeDesc struct {
	Name   string    `json:"name" yaml:"name" toml:"name"`
	Type   string    `json:"type" yaml:"type" toml:"type"`
	IP     string    `json:"ip,omitempty" yaml:"ip,omitempty" toml:"ip,omitempty"`
	Power  float64   `json:"power,omitempty" yaml:"power,omitempty" toml:"power,omitempty"`    // Mbps
	Buffer int       `json:"buffer,omitempty" yaml:"buffer,omitempty" toml:"buffer,omitempty"` // octets
	DMGP   int       `json:"dmgp,omitempty" yaml:"dmgp,omitempty" toml:"dmgp,omitempty"`       // octets
	Flow   *FlowDesc `json:"flow,omitempty" yaml:"flow,omitempty" toml:"flow,omitempty"`
}

// A FailureDesc struct schedules a link to break (Broken true) or be repaired
type FailureDesc struct {
	AtNs   int64 `json:"atns" yaml:"atns" toml:"atns"`
	Broken bool  `json:"broken" yaml:"broken" toml:"broken"`
}

// A LinkDesc struct joins nodes A and B, named
type LinkDesc struct {
	Name     string        `json:"name" yaml:"name" toml:"name"`
	A        string        `json:"a" yaml:"a" toml:"a"`
	B        string        `json:"b" yaml:"b" toml:"b"`
	DelayNs  int64         `json:"delayns" yaml:"delayns" toml:"delayns"`
	Failures []FailureDesc `json:"failures,omitempty" yaml:"failures,omitempty" toml:"failures,omitempty"`
}

// A ClockDesc struct gives the length of the run and of one tick
type ClockDesc struct {
	FinishNs int64 `json:"finishns" yaml:"finishns" toml:"finishns"`
	TickNs   int64 `json:"tickns" yaml:"tickns" toml:"tickns"`
}

// ScenarioDesc is the serializable description of a whole topology and its run
type ScenarioDesc struct {
	Name  string     `json:"name" yaml:"name" toml:"name"`
	Clock ClockDesc  `json:"clock" yaml:"clock" toml:"clock"`
	Trace bool       `json:"trace" yaml:"trace" toml:"trace"`
	Nodes []NodeDesc `json:"nodes" yaml:"nodes" toml:"nodes"`
	Links []LinkDesc `json:"links" yaml:"links" toml:"links"`
}

// CreateScenarioDesc is a constructor
func CreateScenarioDesc(name string, finishNs, tickNs int64) *ScenarioDesc {
	sd := new(ScenarioDesc)
	sd.Name = name
	sd.Clock = ClockDesc{FinishNs: finishNs, TickNs: tickNs}
	sd.Nodes = []NodeDesc{}
	sd.Links = []LinkDesc{}
	return sd
}

// AddNode includes a node description
func (sd *ScenarioDesc) AddNode(nd NodeDesc) {
	sd.Nodes = append(sd.Nodes, nd)
}

// AddLink includes a link description
func (sd *ScenarioDesc) AddLink(ld LinkDesc) {
	sd.Links = append(sd.Links, ld)
}

// Node returns the description of the node named, nil if there is none
func (sd *ScenarioDesc) Node(name string) *NodeDesc {
	idx := slices.IndexFunc(sd.Nodes, func(nd NodeDesc) bool { return nd.Name == name })
	if idx == -1 {
		return nil
	}
	return &sd.Nodes[idx]
}

// serialize encodes the description in the format the extension of filename selects
func (sd *ScenarioDesc) serialize(filename string) ([]byte, error) {
	switch strings.ToLower(path.Ext(filename)) {
	case ".yaml", ".yml":
		return yaml.Marshal(*sd)
	case ".json":
		return json.MarshalIndent(*sd, "", "\t")
	case ".toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(*sd); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, errors.Errorf("scenario file %s needs a .yaml, .json or .toml extension", filename)
}

// WriteToFile stores the ScenarioDesc struct to the file whose name is given.
// Serialization to json, yaml or toml is selected based on the extension of this name.
func (sd *ScenarioDesc) WriteToFile(filename string) error {
	data, merr := sd.serialize(filename)
	if merr != nil {
		return errors.Wrapf(merr, "serializing scenario %s", sd.Name)
	}
	return errors.Wrapf(os.WriteFile(filename, data, 0o644), "writing scenario %s", filename)
}

// ReadScenarioDesc deserializes a byte slice holding a representation of a ScenarioDesc struct.
// If the input argument of dict (those bytes) is empty, the file whose name is given is read
// to acquire them.  The extension of the file name selects the format in either case.
func ReadScenarioDesc(filename string, dict []byte) (*ScenarioDesc, error) {
	var err error

	// if the dict slice of bytes is empty we get them from the file whose name is an argument
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, errors.Wrapf(err, "scenario %s does not exist or cannot be read", filename)
		}
	}

	example := ScenarioDesc{}
	switch strings.ToLower(path.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(dict, &example)
	case ".json":
		err = json.Unmarshal(dict, &example)
	case ".toml":
		_, err = toml.Decode(string(dict), &example)
	default:
		return nil, errors.Errorf("scenario file %s needs a .yaml, .json or .toml extension", filename)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decoding scenario %s", filename)
	}
	return &example, nil
}

// Validate checks the description for everything BuildTopology relies on,
// reporting all the problems found at once
func (sd *ScenarioDesc) Validate() error {
	errs := []error{}
	if sd.Clock.TickNs <= 0 {
		errs = append(errs, fmt.Errorf("clock tick must be positive"))
	}
	if sd.Clock.FinishNs <= 0 {
		errs = append(errs, fmt.Errorf("clock finish must be positive"))
	}

	kinds := make(map[string]NodeKind)
	ips := make(map[string]string)
	for _, nd := range sd.Nodes {
		if len(nd.Name) == 0 {
			errs = append(errs, fmt.Errorf("node with empty name"))
			continue
		}
		if _, present := kinds[nd.Name]; present {
			errs = append(errs, fmt.Errorf("node %s declared twice", nd.Name))
			continue
		}
		nk, ok := ParseNodeKind(nd.Type)
		if !ok {
			errs = append(errs, fmt.Errorf("node %s has unknown type %q", nd.Name, nd.Type))
			continue
		}
		kinds[nd.Name] = nk
		if len(nd.IP) > 0 {
			if net.ParseIP(nd.IP).To4() == nil {
				errs = append(errs, fmt.Errorf("node %s has invalid IPv4 address %q", nd.Name, nd.IP))
			} else if other, present := ips[nd.IP]; present {
				errs = append(errs, fmt.Errorf("nodes %s and %s share address %s", other, nd.Name, nd.IP))
			} else {
				ips[nd.IP] = nd.Name
			}
		}
		if nd.Power < 0 || nd.Buffer < 0 || nd.DMGP < 0 {
			errs = append(errs, fmt.Errorf("node %s has a negative capacity", nd.Name))
		}
		if nk == SenderNode && nd.Flow == nil {
			errs = append(errs, fmt.Errorf("sender %s has no flow", nd.Name))
		}
		if nk != SenderNode && nd.Flow != nil {
			errs = append(errs, fmt.Errorf("node %s is not a sender but has a flow", nd.Name))
		}
	}

	for _, nd := range sd.Nodes {
		if nd.Flow == nil {
			continue
		}
		errs = append(errs, validateFlow(nd.Name, nd.Flow, kinds)...)
	}

	linkNames := make(map[string]bool)
	degree := make(map[string]int)
	for _, ld := range sd.Links {
		if len(ld.Name) == 0 || linkNames[ld.Name] {
			errs = append(errs, fmt.Errorf("link name %q empty or declared twice", ld.Name))
		}
		linkNames[ld.Name] = true
		_, aok := kinds[ld.A]
		_, bok := kinds[ld.B]
		if !aok || !bok {
			errs = append(errs, fmt.Errorf("link %s joins unknown node", ld.Name))
		} else if ld.A == ld.B {
			errs = append(errs, fmt.Errorf("link %s loops on node %s", ld.Name, ld.A))
		}
		degree[ld.A] += 1
		degree[ld.B] += 1
		if ld.DelayNs <= 0 {
			errs = append(errs, fmt.Errorf("link %s needs a positive delay", ld.Name))
		}
		for _, fd := range ld.Failures {
			if fd.AtNs < 0 {
				errs = append(errs, fmt.Errorf("link %s has a failure scheduled before time zero", ld.Name))
			}
		}
	}
	for _, nd := range sd.Nodes {
		nk, present := kinds[nd.Name]
		if present && (nk == SenderNode || nk == ReceiverNode) && degree[nd.Name] != 1 {
			errs = append(errs, fmt.Errorf("%s %s must have exactly one link", nk, nd.Name))
		}
	}
	return ReportErrs(errs)
}

func validateFlow(sender string, fd *FlowDesc, kinds map[string]NodeKind) []error {
	errs := []error{}
	if nk, present := kinds[fd.Dst]; !present || nk != ReceiverNode {
		errs = append(errs, fmt.Errorf("flow of %s goes to %q, which is not a receiver", sender, fd.Dst))
	}
	if !(fd.Rate > 0) {
		errs = append(errs, fmt.Errorf("flow of %s needs a positive rate", sender))
	}
	if fd.Payload < 0 {
		errs = append(errs, fmt.Errorf("flow of %s has a negative payload", sender))
	}
	if fd.GoS < 0 || fd.GoS > maxGoSLevel {
		errs = append(errs, fmt.Errorf("flow of %s has GoS level %d outside 0..%d", sender, fd.GoS, maxGoSLevel))
	}
	if len(fd.Dist) > 0 && !slices.Contains(validDists, fd.Dist) {
		errs = append(errs, fmt.Errorf("flow of %s has unknown distribution %q", sender, fd.Dist))
	}
	if fd.StopNs != 0 && fd.StopNs <= fd.StartNs {
		errs = append(errs, fmt.Errorf("flow of %s stops before it starts", sender))
	}
	return errs
}

// ExampleScenario describes a small protected domain: a sender feeding an active
// LER, two paths of active LSRs to an egress LER, and a receiver behind it.
// The primary path breaks halfway through the run
func ExampleScenario() *ScenarioDesc {
	sd := CreateScenarioDesc("example", 4000000, 10000)
	sd.Trace = false
	sd.AddNode(NodeDesc{Name: "src", Type: "sender",
		Flow: &FlowDesc{Dst: "dst", Rate: 10, Payload: 480, GoS: 2, Backup: true, Dist: "constant"}})
	sd.AddNode(NodeDesc{Name: "ingress", Type: "activeler"})
	sd.AddNode(NodeDesc{Name: "core1", Type: "activelsr"})
	sd.AddNode(NodeDesc{Name: "core2", Type: "activelsr"})
	sd.AddNode(NodeDesc{Name: "core3", Type: "lsr"})
	sd.AddNode(NodeDesc{Name: "egress", Type: "ler"})
	sd.AddNode(NodeDesc{Name: "dst", Type: "receiver"})
	sd.AddLink(LinkDesc{Name: "src-ingress", A: "src", B: "ingress", DelayNs: 1000})
	sd.AddLink(LinkDesc{Name: "ingress-core1", A: "ingress", B: "core1", DelayNs: 2000,
		Failures: []FailureDesc{{AtNs: 2000000, Broken: true}}})
	sd.AddLink(LinkDesc{Name: "core1-egress", A: "core1", B: "egress", DelayNs: 2000})
	sd.AddLink(LinkDesc{Name: "ingress-core2", A: "ingress", B: "core2", DelayNs: 2000})
	sd.AddLink(LinkDesc{Name: "core2-core3", A: "core2", B: "core3", DelayNs: 2000})
	sd.AddLink(LinkDesc{Name: "core3-egress", A: "core3", B: "egress", DelayNs: 2000})
	sd.AddLink(LinkDesc{Name: "egress-dst", A: "egress", B: "dst", DelayNs: 1000})
	return sd
}

// ReportErrs transforms a list of errors and transforms the non-nil ones into a single error
// with comma-separated report of all the constituent errors, and returns it.
func ReportErrs(errs []error) error {
	errMsg := make([]string, 0)
	for _, err := range errs {
		if err != nil {
			errMsg = append(errMsg, err.Error())
		}
	}
	if len(errMsg) == 0 {
		return nil
	}
	return errors.New(strings.Join(errMsg, ","))
}

// CheckOutputFiles probes the file system to ensure that the directory of every
// non-empty argument filename exists
func CheckOutputFiles(names []string) (bool, error) {
	errs := make([]error, 0)
	for _, name := range names {
		if len(name) == 0 {
			continue
		}
		directory, _ := filepath.Split(name)
		if len(directory) == 0 {
			continue
		}
		if _, err := os.Stat(directory); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return true, nil
	}
	return false, ReportErrs(errs)
}
