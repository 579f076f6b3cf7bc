package mplsgos

// idgen.go has the identifier generators.  Each simulation run owns
// its own instances, so independent runs never share counters.

import (
	"fmt"
	"math"
	"sync"

	"github.com/pkg/errors"
)

// ErrIdentifierOverflow is returned once a generator has handed out every value it can represent
var ErrIdentifierOverflow = errors.New("identifier generator exhausted")

// ErrIPv4Overflow is returned once the IPv4 generator has used the whole 10.0.0.0/8 block
var ErrIPv4Overflow = errors.New("IPv4 address generator exhausted")

// IDGenerator hands out increasing int32 identifiers, starting at 1
type IDGenerator struct {
	mu   sync.Mutex
	last int32
}

// CreateIDGenerator is a constructor
func CreateIDGenerator() *IDGenerator {
	return new(IDGenerator)
}

// Next returns the next identifier, or ErrIdentifierOverflow
func (g *IDGenerator) Next() (int32, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.last == math.MaxInt32 {
		return 0, ErrIdentifierOverflow
	}
	g.last += 1
	return g.last, nil
}

// Reset puts the generator back to its just-constructed state
func (g *IDGenerator) Reset() {
	g.mu.Lock()
	g.last = 0
	g.mu.Unlock()
}

// LongIDGenerator hands out increasing int64 identifiers, starting at 1
type LongIDGenerator struct {
	mu   sync.Mutex
	last int64
}

// CreateLongIDGenerator is a constructor
func CreateLongIDGenerator() *LongIDGenerator {
	return new(LongIDGenerator)
}

// Next returns the next identifier, or ErrIdentifierOverflow
func (g *LongIDGenerator) Next() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.last == math.MaxInt64 {
		return 0, ErrIdentifierOverflow
	}
	g.last += 1
	return g.last, nil
}

// Reset puts the generator back to its just-constructed state
func (g *LongIDGenerator) Reset() {
	g.mu.Lock()
	g.last = 0
	g.mu.Unlock()
}

// IPv4Generator hands out addresses 10.0.0.1, 10.0.0.2, ... 10.255.255.254
type IPv4Generator struct {
	mu   sync.Mutex
	last uint32 // host part of the last address, 24 bits
}

// CreateIPv4Generator is a constructor
func CreateIPv4Generator() *IPv4Generator {
	return new(IPv4Generator)
}

// Next returns the next unused address in dotted form
func (g *IPv4Generator) Next() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.last >= 0xFFFFFE {
		return "", ErrIPv4Overflow
	}
	g.last += 1
	return fmt.Sprintf("10.%d.%d.%d", (g.last>>16)&0xFF, (g.last>>8)&0xFF, g.last&0xFF), nil
}

// Reserve marks a dotted address as used, so that a scenario which fixes
// some addresses by hand never gets them handed out twice
func (g *IPv4Generator) Reserve(ip string) {
	var a, b, c, d uint32
	if n, err := fmt.Sscanf(ip, "%d.%d.%d.%d", &a, &b, &c, &d); err != nil || n != 4 || a != 10 {
		return
	}
	host := b<<16 | c<<8 | d
	g.mu.Lock()
	if host > g.last {
		g.last = host
	}
	g.mu.Unlock()
}

// Reset puts the generator back to its just-constructed state
func (g *IPv4Generator) Reset() {
	g.mu.Lock()
	g.last = 0
	g.mu.Unlock()
}
