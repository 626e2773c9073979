package cell

// IDIssuer hands out monotonically increasing cell ids. The zero value starts at 0.
type IDIssuer struct {
	next uint64
}

func (g *IDIssuer) Issue() uint64 {
	id := g.next
	g.next++
	return id
}

// Next is the id the following Issue call will return.
func (g *IDIssuer) Next() uint64 { return g.next }

// Resume moves the counter forward to next; it never moves backwards.
func (g *IDIssuer) Resume(next uint64) {
	if next > g.next {
		g.next = next
	}
}
