package bcache

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/jnwhiteh/sectorfs/common"
)

// An entry in the cache, decorated with the members we need to handle the
// LRU cache policy.
type lru_buf struct {
	sector uint32
	valid  bool
	data   [common.SectorSize]byte

	next *lru_buf // towards the most recently used end
	prev *lru_buf // towards the least recently used end
}

// Cache is a write-through sector cache sitting between the file system
// and a block device. Writes reach the device before Write returns, so the
// cache never holds dirty data and eviction is just a matter of reusing the
// least recently used slot.
//
// The block device is assumed to always succeed. A device error is a broken
// invariant and causes a panic.
type Cache struct {
	dev common.BlockDevice

	buf   []*lru_buf          // static list of cache slots
	index map[uint32]*lru_buf // sector -> slot
	front *lru_buf            // least recently used
	rear  *lru_buf            // most recently used

	hits, misses int

	m sync.Mutex
}

// NewCache creates a new Cache with the given number of slots.
func NewCache(dev common.BlockDevice, numslots int) *Cache {
	if numslots < 2 {
		numslots = 2
	}

	c := &Cache{
		dev:   dev,
		buf:   make([]*lru_buf, numslots),
		index: make(map[uint32]*lru_buf, numslots),
	}

	// Create all of the entries ahead of time and chain them together
	for i := range c.buf {
		c.buf[i] = new(lru_buf)
	}
	for i := 0; i < numslots; i++ {
		if i > 0 {
			c.buf[i].prev = c.buf[i-1]
		}
		if i < numslots-1 {
			c.buf[i].next = c.buf[i+1]
		}
	}
	c.front = c.buf[0]
	c.rear = c.buf[numslots-1]

	return c
}

func (c *Cache) Device() common.BlockDevice {
	return c.dev
}

// Read copies the contents of a sector into buf, which must be exactly one
// sector long.
func (c *Cache) Read(sector uint32, buf []byte) {
	c.m.Lock()
	defer c.m.Unlock()

	bp := c.get(sector)
	copy(buf, bp.data[:])
}

// Write stores buf as the new contents of a sector, passing it straight
// through to the device.
func (c *Cache) Write(sector uint32, buf []byte) {
	c.m.Lock()
	defer c.m.Unlock()

	if err := c.dev.WriteSector(sector, buf); err != nil {
		panic(fmt.Sprintf("writing sector %d: %s", sector, err))
	}

	bp, ok := c.index[sector]
	if !ok {
		bp = c.evict()
		bp.sector = sector
		bp.valid = true
		c.index[sector] = bp
	}
	copy(bp.data[:], buf)
	c.touch(bp)
}

// Zero fills a sector with zero bytes.
func (c *Cache) Zero(sector uint32) {
	var zeros [common.SectorSize]byte
	c.Write(sector, zeros[:])
}

// Invalidate drops every cached sector. Nothing is lost since the cache is
// write-through.
func (c *Cache) Invalidate() {
	c.m.Lock()
	defer c.m.Unlock()

	for _, bp := range c.buf {
		bp.valid = false
	}
	c.index = make(map[uint32]*lru_buf, len(c.buf))
}

// Stats returns the number of cache hits and misses so far.
func (c *Cache) Stats() (hits, misses int) {
	c.m.Lock()
	defer c.m.Unlock()
	return c.hits, c.misses
}

func (c *Cache) get(sector uint32) *lru_buf {
	if bp, ok := c.index[sector]; ok {
		c.hits++
		c.touch(bp)
		return bp
	}

	c.misses++
	bp := c.evict()
	if err := c.dev.ReadSector(sector, bp.data[:]); err != nil {
		panic(fmt.Sprintf("reading sector %d: %s", sector, err))
	}
	bp.sector = sector
	bp.valid = true
	c.index[sector] = bp
	c.touch(bp)
	return bp
}

// Take the oldest slot ('front') and remove it from the index.
func (c *Cache) evict() *lru_buf {
	bp := c.front
	if bp.valid {
		slog.Debug("evicting sector", "sector", bp.sector)
		delete(c.index, bp.sector)
		bp.valid = false
	}
	return bp
}

// Move a slot to the rear of the chain, where it will not be evicted for a
// long time.
func (c *Cache) touch(bp *lru_buf) {
	if c.rear == bp {
		return
	}
	c.rm_lru(bp)
	bp.prev = c.rear
	bp.next = nil
	c.rear.next = bp
	c.rear = bp
}

// Remove a slot from its LRU chain
func (c *Cache) rm_lru(bp *lru_buf) {
	nextp := bp.next
	prevp := bp.prev
	if prevp != nil {
		prevp.next = nextp
	} else {
		c.front = nextp
	}

	if nextp != nil {
		nextp.prev = prevp
	} else {
		c.rear = prevp
	}
}
