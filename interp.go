package audiograph

import (
	"github.com/joeycumines/go-audiograph/lockfree"
)

// MaxAttenuationComponents is the maximum number of independently
// interpolated attenuation components of a connection.
const MaxAttenuationComponents = 4

type (
	keySlot = lockfree.Slot[interpKey]

	// interpKey is a pooled interpolation key. A sustain key holds the value
	// reached when it becomes the head of the chain until its clock.
	interpKey struct {
		next    *keySlot
		leak    uint64
		clock   uint64
		value   [MaxAttenuationComponents]float32
		sustain bool
	}

	// automation is a value that is either constant or driven by a chain of
	// keys. The segment before the head key ramps linearly from the anchor,
	// which is the value and clock at which the head became active.
	automation struct {
		head        *keySlot
		tail        *keySlot
		anchor      [MaxAttenuationComponents]float32
		current     [MaxAttenuationComponents]float32
		anchorClock uint64
		components  int
	}
)

func newAutomation(components int, value float32) automation {
	var a automation
	a.components = components
	for i := 0; i < components; i++ {
		a.anchor[i] = value
	}
	a.current = a.anchor
	return a
}

// set replaces the value, discarding any keys.
func (x *automation) set(g *Graph, value [MaxAttenuationComponents]float32, components int, clock uint64) {
	x.releaseKeys(g)
	x.components = components
	x.anchor = value
	x.current = value
	x.anchorClock = clock
}

// push appends a key, which becomes owned by the automation on success.
func (x *automation) push(slot *keySlot, clock uint64) error {
	k := &slot.Value
	if x.tail != nil {
		if k.clock <= x.tail.Value.clock {
			return ErrKeyOrder
		}
		x.tail.Value.next = slot
		x.tail = slot
		return nil
	}
	// the ramp starts from wherever the value is now
	x.anchor = x.current
	x.anchorClock = clock
	x.head = slot
	x.tail = slot
	return nil
}

// keyed reports whether any key is pending.
func (x *automation) keyed() bool {
	return x.head != nil
}

// unity reports whether the value is constant at one in every component.
func (x *automation) unity() bool {
	if x.head != nil {
		return false
	}
	for i := 0; i < x.components; i++ {
		if x.anchor[i] != 1 {
			return false
		}
	}
	return true
}

// valueAt evaluates a single lane at an absolute clock.
func (x *automation) valueAt(lane int, t uint64) float32 {
	a, ac := x.anchor[lane], x.anchorClock
	for s := x.head; s != nil; s = s.Value.next {
		k := &s.Value
		if t < k.clock {
			if k.sustain {
				return a
			}
			return lerp(a, k.value[lane], ac, k.clock, t)
		}
		if !k.sustain {
			a = k.value[lane]
		}
		ac = k.clock
	}
	return a
}

// render writes the value of one lane for every sample from start.
func (x *automation) render(dst []float32, lane int, start uint64) {
	a, ac := x.anchor[lane], x.anchorClock
	i := 0
	for s := x.head; s != nil && i < len(dst); s = s.Value.next {
		k := &s.Value
		for ; i < len(dst) && start+uint64(i) < k.clock; i++ {
			if k.sustain {
				dst[i] = a
			} else {
				dst[i] = lerp(a, k.value[lane], ac, k.clock, start+uint64(i))
			}
		}
		if !k.sustain {
			a = k.value[lane]
		}
		ac = k.clock
	}
	for ; i < len(dst); i++ {
		dst[i] = a
	}
}

// retire drops every key whose clock is before end, advancing the anchor,
// then records the value at the last sample before end.
func (x *automation) retire(g *Graph, end uint64) {
	for x.head != nil && x.head.Value.clock < end {
		s := x.head
		k := &s.Value
		if !k.sustain {
			x.anchor = k.value
		}
		x.anchorClock = k.clock
		x.head = k.next
		if x.head == nil {
			x.tail = nil
		}
		g.releaseKey(s)
	}
	if x.head == nil {
		x.current = x.anchor
		return
	}
	for i := 0; i < x.components; i++ {
		x.current[i] = x.valueAt(i, end-1)
	}
}

func (x *automation) releaseKeys(g *Graph) {
	for x.head != nil {
		s := x.head
		x.head = s.Value.next
		g.releaseKey(s)
	}
	x.tail = nil
}

func lerp(a, b float32, from, to, t uint64) float32 {
	if t <= from || to <= from {
		if t < to {
			return a
		}
		return b
	}
	frac := float64(t-from) / float64(to-from)
	return a + float32(float64(b-a)*frac)
}
