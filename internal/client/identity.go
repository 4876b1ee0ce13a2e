package client

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/sharetube/watchparty/pkg/randstr"
)

const (
	roomIdLen = 8
	userIdLen = 8
)

type Identity struct {
	UserId   string
	Username string
}

// IdentityGenerator derives room codes and guest identities from a single
// random source, so a fixed seed reproduces the same sequence.
type IdentityGenerator struct {
	gen *randstr.Generator
}

func NewIdentityGenerator(src rand.Source) *IdentityGenerator {
	return &IdentityGenerator{gen: randstr.New(randstr.UpperAlnum, src)}
}

func (g *IdentityGenerator) RoomId() string {
	return g.gen.Generate(roomIdLen)
}

func (g *IdentityGenerator) UserId() string {
	return "user_" + strings.ToLower(g.gen.Generate(userIdLen))
}

func (g *IdentityGenerator) Username() string {
	return fmt.Sprintf("User%d", g.gen.Intn(1000))
}

func (g *IdentityGenerator) Identity() Identity {
	return Identity{UserId: g.UserId(), Username: g.Username()}
}
