package randstr

import (
	"math/rand"
	"sync"
)

const (
	UpperAlnum = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	LowerAlnum = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// Generator produces random strings over a fixed charset. It is safe for
// concurrent use.
type Generator struct {
	charset string
	mu      sync.Mutex
	rnd     *rand.Rand
}

func New(charset string, src rand.Source) *Generator {
	return &Generator{
		charset: charset,
		rnd:     rand.New(src),
	}
}

func (g *Generator) Generate(n int) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	b := make([]byte, n)
	for i := range b {
		b[i] = g.charset[g.rnd.Intn(len(g.charset))]
	}

	return string(b)
}

// Intn returns a number in [0,n) drawn from the same source.
func (g *Generator) Intn(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.rnd.Intn(n)
}
