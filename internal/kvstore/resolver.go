package kvstore

// Side names the backend a Resolver picked.
type Side int

const (
	FastSide Side = iota
	DurableSide
)

// Resolver chooses the authoritative candidate when hydrating a key. At
// least one of the candidates is always present.
type Resolver func(fast, durable Candidate) Side

// NewestWins picks the candidate with the larger timestamp. Equal timestamps
// go to the fast backend.
func NewestWins(fast, durable Candidate) Side {
	switch {
	case !durable.Present:
		return FastSide
	case !fast.Present:
		return DurableSide
	case durable.Timestamp > fast.Timestamp:
		return DurableSide
	default:
		return FastSide
	}
}
