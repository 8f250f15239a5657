package state

// Gauge accumulates the cost of the structural operations performed
// against a tree. The accounting model itself is up to the runtime that
// commits state transitions; the gauge only carries the units through an
// invocation.
type Gauge struct {
	units uint64
}

// NewGauge returns a gauge with no units charged.
func NewGauge() *Gauge {
	return &Gauge{}
}

// Charge adds units to the gauge.
func (g *Gauge) Charge(units uint64) {
	g.units += units
}

// Reading returns the units charged so far.
func (g *Gauge) Reading() uint64 {
	return g.units
}

// Charged pairs a tree root with its cost gauge. The ledger supplies it
// at the start of an invocation and persists the returned one after a
// successful run.
type Charged struct {
	root  Value
	gauge *Gauge
}

// NewCharged returns a charged state over the root with a fresh gauge.
func NewCharged(root Value) Charged {
	return Charged{root: root, gauge: NewGauge()}
}

// Root returns the tree root.
func (c Charged) Root() Value {
	return c.root
}

// Gauge returns the cost gauge.
func (c Charged) Gauge() *Gauge {
	return c.gauge
}

// WithRoot returns a charged state with the new root and the same gauge.
func (c Charged) WithRoot(root Value) Charged {
	return Charged{root: root, gauge: c.gauge}
}

// Clone returns a deep copy of the charged state with a fresh gauge
// carrying the same reading.
func (c Charged) Clone() Charged {
	gauge := NewGauge()
	gauge.Charge(c.gauge.Reading())

	return Charged{root: c.root.Clone(), gauge: gauge}
}
