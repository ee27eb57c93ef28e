// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package assetid

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"github.com/arcana-engine/treasury/lib/clock"
)

// Epoch is the zero point of the timestamp component:
// 2020-12-31T21:00:00Z.
var Epoch = time.Unix(1609448400, 0).UTC()

const (
	nodeBits    = 10
	counterBits = 12
	nodeMask    = 1<<nodeBits - 1
	maxCounter  = 1<<counterBits - 1

	// idMultiplier must stay odd; see the package documentation.
	idMultiplier uint64 = 0xF89A4B715E26C30D
)

// Generator mints unique identifiers. Two generators with different
// node numbers never produce the same ID. Safe for concurrent use.
type Generator struct {
	clock clock.Clock
	node  uint64

	mu      sync.Mutex
	last    uint64
	counter uint64
}

// NewGenerator returns a generator for the given node number. Only the
// low 10 bits of node are used.
func NewGenerator(c clock.Clock, node uint16) *Generator {
	return &Generator{
		clock: c,
		node:  uint64(node) & nodeMask,
	}
}

// NewRandomGenerator returns a generator with a random node number.
// Each opened treasury instance uses one, so concurrent processes
// sharing a directory are unlikely to collide even within the same
// millisecond.
func NewRandomGenerator(c clock.Clock) *Generator {
	var buffer [2]byte
	if _, err := rand.Read(buffer[:]); err != nil {
		panic("assetid: reading random node number: " + err.Error())
	}
	return NewGenerator(c, binary.LittleEndian.Uint16(buffer[:]))
}

// Node returns the generator's node number.
func (g *Generator) Node() uint16 { return uint16(g.node) }

// Generate mints a new ID. When more than 4095 IDs are requested
// within one millisecond, or when the clock steps backwards, Generate
// sleeps until the timestamp moves past the last one used.
func (g *Generator) Generate() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	for {
		timestamp := g.timestamp()

		if timestamp < g.last {
			g.clock.Sleep(time.Duration(g.last-timestamp) * time.Millisecond)
			continue
		}

		if timestamp == g.last {
			if g.counter == maxCounter {
				g.clock.Sleep(time.Millisecond)
				continue
			}
			g.counter++
		} else {
			g.last = timestamp
			g.counter = 1
		}

		raw := timestamp<<(nodeBits+counterBits) | g.node<<counterBits | g.counter
		return ID(raw * idMultiplier)
	}
}

func (g *Generator) timestamp() uint64 {
	elapsed := g.clock.Now().Sub(Epoch).Milliseconds()
	if elapsed < 0 {
		return 0
	}
	return uint64(elapsed)
}
