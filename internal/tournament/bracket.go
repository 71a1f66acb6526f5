package tournament

import (
	"math/rand"

	"github.com/jimmy058910/replitballgame-sub015/internal/models"
)

// Pairing is one bracket tie. Away == 0 marks a bye: Home advances without
// playing.
type Pairing struct {
	Home uint
	Away uint
}

// Bye reports whether this pairing advances Home automatically.
func (p Pairing) Bye() bool {
	return p.Away == 0
}

// SeededShuffle permutes the team ids with an RNG seeded by the tournament
// id, so the draw is random across tournaments but reproducible within one.
func SeededShuffle(teamIDs []uint, seed int64) []uint {
	out := make([]uint, len(teamIDs))
	copy(out, teamIDs)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// SlotsFromEntries rebuilds the bracket slot array from persisted seeds.
// Slots without an entry stay zero and resolve as byes.
func SlotsFromEntries(entries []models.TournamentEntry, size int) []uint {
	slots := make([]uint, size)
	for _, e := range entries {
		if e.Seed != nil && *e.Seed >= 0 && *e.Seed < size {
			slots[*e.Seed] = e.TeamID
		}
	}
	return slots
}

// MirrorPairings builds round one: slot i meets slot n-1-i. Empty slots
// become byes; two empty slots produce nothing.
func MirrorPairings(slots []uint) []Pairing {
	n := len(slots)
	pairs := make([]Pairing, 0, n/2)
	for i := 0; i < n/2; i++ {
		a, b := slots[i], slots[n-1-i]
		switch {
		case a == 0 && b == 0:
		case b == 0:
			pairs = append(pairs, Pairing{Home: a})
		case a == 0:
			pairs = append(pairs, Pairing{Home: b})
		default:
			pairs = append(pairs, Pairing{Home: a, Away: b})
		}
	}
	return pairs
}

// SequentialPairings pairs round advancers in order: first against second,
// third against fourth. An odd tail gets a bye.
func SequentialPairings(advancers []uint) []Pairing {
	pairs := make([]Pairing, 0, (len(advancers)+1)/2)
	for i := 0; i+1 < len(advancers); i += 2 {
		pairs = append(pairs, Pairing{Home: advancers[i], Away: advancers[i+1]})
	}
	if len(advancers)%2 == 1 {
		pairs = append(pairs, Pairing{Home: advancers[len(advancers)-1]})
	}
	return pairs
}
