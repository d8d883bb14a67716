package guest

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
)

// NameGenerator produces a candidate username for a new guest. req is nil
// when the guest is not created from a request. Uniqueness is not required;
// the registry retries on collision.
type NameGenerator func(req RequestInfo) string

const (
	GeneratorUUID     = "uuid"
	GeneratorNumbered = "numbered"
	GeneratorFriendly = "friendly"
)

var (
	generatorsMu sync.RWMutex
	generators   = map[string]NameGenerator{
		GeneratorUUID:     UUIDUsername,
		GeneratorNumbered: NumberedUsername,
		GeneratorFriendly: FriendlyUsername,
	}
)

// RegisterNameGenerator makes fn selectable through Config.NameGenerator.
func RegisterNameGenerator(name string, fn NameGenerator) {
	if name == "" || fn == nil {
		panic("guest: RegisterNameGenerator requires a name and a function")
	}
	generatorsMu.Lock()
	defer generatorsMu.Unlock()
	generators[name] = fn
}

// LookupNameGenerator resolves a registered generator.
func LookupNameGenerator(name string) (NameGenerator, bool) {
	if name == "" {
		name = GeneratorUUID
	}
	generatorsMu.RLock()
	defer generatorsMu.RUnlock()
	fn, ok := generators[name]
	return fn, ok
}

// NameGenerators lists registered generator names.
func NameGenerators() []string {
	generatorsMu.RLock()
	defer generatorsMu.RUnlock()
	names := make([]string, 0, len(generators))
	for name := range generators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UUIDUsername returns 30 hex characters of a random uuid.
func UUIDUsername(RequestInfo) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:30]
}

// NumberedUsername returns "Guest" followed by six random digits.
func NumberedUsername(RequestInfo) string {
	return fmt.Sprintf("Guest%06d", randomInt(1000000))
}

var (
	friendlyAdjectives = []string{
		"brave", "calm", "clever", "eager", "fancy", "gentle", "happy", "jolly",
		"kind", "lively", "merry", "nimble", "proud", "quick", "quiet", "witty",
	}
	friendlyNouns = []string{
		"badger", "falcon", "fox", "heron", "koala", "lynx", "otter", "panda",
		"puffin", "raven", "seal", "tiger", "walrus", "wolf", "yak", "zebra",
	}
)

// FriendlyUsername returns names like "jolly-otter-42".
func FriendlyUsername(RequestInfo) string {
	return fmt.Sprintf("%s-%s-%02d",
		friendlyAdjectives[randomInt(len(friendlyAdjectives))],
		friendlyNouns[randomInt(len(friendlyNouns))],
		randomInt(100),
	)
}

// collisionSuffix decorates a collided candidate so the next attempt differs.
func collisionSuffix(name string) string {
	suffix := "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return truncateRunes(name, MaxUsernameLength-len(suffix)) + suffix
}

func clampUsername(name string) string {
	return truncateRunes(name, MaxUsernameLength)
}

// truncateRunes keeps at most n runes of s, never splitting a multi-byte one.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// guestBaseName returns the clamped generator candidate, falling back to a
// uuid name when the generator yields nothing usable.
func guestBaseName(generator NameGenerator, req RequestInfo) (string, bool) {
	name := clampUsername(strings.TrimSpace(generator(req)))
	if name != "" {
		return name, false
	}
	return UUIDUsername(req), true
}

func randomInt(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}
