package mplsgos

import (
	"encoding/json"
	"os"
	"path"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type TraceRecordType int

const (
	PacketRecord TraceRecordType = iota
	ElementRecord
)

var trtToStr map[TraceRecordType]string = map[TraceRecordType]string{PacketRecord: "packet", ElementRecord: "element"}

type TraceInst struct {
	TraceTime string `json:"tracetime" yaml:"tracetime"`
	TraceType string `json:"tracetype" yaml:"tracetype"`
	TraceStr  string `json:"tracestr" yaml:"tracestr"`
}

// NameType is an entry in a dictionary created for a trace
// that maps object id numbers to a (name,type) pair
type NameType struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// TraceManager gathers information about a topology and an execution of it.
// Nodes and links add records concurrently, so every method holds the lock
type TraceManager struct {
	mu sync.Mutex

	// experiment uses trace
	InUse bool `json:"inuse" yaml:"inuse"`

	// name of experiment
	ExpName string `json:"expname" yaml:"expname"`

	// text name associated with each objID
	NameByID map[int]NameType `json:"namebyid" yaml:"namebyid"`

	// all trace records for this experiment, by objID
	Traces map[int][]TraceInst `json:"traces" yaml:"traces"`
}

// CreateTraceManager is a constructor.  It saves the name of the experiment
// and a flag indicating whether the trace manager is active.  By testing this
// flag we can inhibit the activity of gathering a trace when we don't want it,
// while embedding calls to its methods everywhere we need them when it is
func CreateTraceManager(expName string, active bool) *TraceManager {
	tm := new(TraceManager)
	tm.InUse = active
	tm.ExpName = expName
	tm.NameByID = make(map[int]NameType)
	tm.Traces = make(map[int][]TraceInst)
	return tm
}

// Active tells the caller whether the Trace Manager is actively being used
func (tm *TraceManager) Active() bool {
	return tm != nil && tm.InUse
}

// AddTrace stores a record under objID
func (tm *TraceManager) AddTrace(objID int, trace TraceInst) {
	if !tm.Active() {
		return
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.Traces[objID] = append(tm.Traces[objID], trace)
}

// AddName is used to add an element to the id -> (name,type) dictionary for the trace file
func (tm *TraceManager) AddName(id int, name string, objDesc string) error {
	if !tm.Active() {
		return nil
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if _, present := tm.NameByID[id]; present {
		return errors.Errorf("duplicated id %d in trace dictionary", id)
	}
	tm.NameByID[id] = NameType{Name: name, Type: objDesc}
	return nil
}

// NumTraces is the number of records gathered for objID
func (tm *TraceManager) NumTraces(objID int) int {
	if !tm.Active() {
		return 0
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return len(tm.Traces[objID])
}

// Reset drops every record, keeping the dictionary
func (tm *TraceManager) Reset() {
	if tm == nil {
		return
	}
	tm.mu.Lock()
	tm.Traces = make(map[int][]TraceInst)
	tm.mu.Unlock()
}

// WriteToFile stores the Traces struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (tm *TraceManager) WriteToFile(filename string) error {
	if !tm.Active() {
		return nil
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()

	var bytes []byte
	var merr error
	switch path.Ext(filename) {
	case ".yaml", ".YAML", ".yml":
		bytes, merr = yaml.Marshal(tm)
	case ".json", ".JSON":
		bytes, merr = json.MarshalIndent(tm, "", "\t")
	default:
		return errors.Errorf("trace file %s needs a .yaml or .json extension", filename)
	}
	if merr != nil {
		return errors.Wrap(merr, "serializing trace")
	}
	return errors.Wrapf(os.WriteFile(filename, bytes, 0o644), "writing trace %s", filename)
}

// ElementTrace saves what a node or link did with a packet, or to itself, at some time
type ElementTrace struct {
	Time       float64 `yaml:"time"`     // seconds
	Ticks      int64   `yaml:"ticks"`    // ticks variable of time
	Priority   int64   `yaml:"priority"` // priority field of time-stamp
	ObjID      int     `yaml:"objid"`    // node or link
	Op         string  `yaml:"op"`       // "send", "recv", "drop", "break", ...
	PacketID   int64   `yaml:"packetid,omitempty"`
	PacketType string  `yaml:"packettype,omitempty"`
	Labels     []int   `yaml:"labels,omitempty"`
	Detail     string  `yaml:"detail,omitempty"`
}

func (etr *ElementTrace) TraceType() TraceRecordType {
	if etr.PacketType != "" {
		return PacketRecord
	}
	return ElementRecord
}

func (etr *ElementTrace) Serialize() string {
	bytes, merr := yaml.Marshal(*etr)
	if merr != nil {
		return ""
	}
	return string(bytes)
}

// addElementTrace records op by objID at ts.  p may be nil
func (tm *TraceManager) addElementTrace(ts Timestamp, objID int, op string, p *Packet, detail string) {
	if !tm.Active() {
		return
	}
	vrt := ts.VrTime()
	etr := new(ElementTrace)
	etr.Time = vrt.Seconds()
	etr.Ticks = vrt.Ticks()
	etr.Priority = vrt.Pri()
	etr.ObjID = objID
	etr.Op = op
	etr.Detail = detail
	if p != nil {
		etr.PacketID = p.ID
		etr.PacketType = p.Type.String()
		etr.Labels = p.Labels
	}
	traceTime := strconv.FormatFloat(vrt.Seconds(), 'f', -1, 64)
	tm.AddTrace(objID, TraceInst{TraceTime: traceTime, TraceType: trtToStr[etr.TraceType()], TraceStr: etr.Serialize()})
}
