package prize

// ClaimSet tracks which prizes have been paid out on one ticket. The prize
// catalog is closed and finite, so membership is a five-bit mask rather
// than a dynamically keyed map.
type ClaimSet uint8

var claimBits = map[string]ClaimSet{
	EarlyFive:  1 << 0,
	TopLine:    1 << 1,
	MiddleLine: 1 << 2,
	BottomLine: 1 << 3,
	FullHouse:  1 << 4,
}

// Has reports whether a prize type is in the set. Unknown tags are never
// members.
func (s ClaimSet) Has(prizeType string) bool {
	return s&claimBits[prizeType] != 0
}

// Add returns the set with a prize type included.
func (s ClaimSet) Add(prizeType string) ClaimSet {
	return s | claimBits[prizeType]
}

// Tags returns the claimed prize tags in payout-schedule order.
func (s ClaimSet) Tags() []string {
	var tags []string
	for _, t := range Types() {
		if s.Has(t) {
			tags = append(tags, t)
		}
	}
	return tags
}

// ClaimSetFromTags builds a set from stored prize tags, ignoring unknown
// ones.
func ClaimSetFromTags(tags []string) ClaimSet {
	var s ClaimSet
	for _, t := range tags {
		s |= claimBits[t]
	}
	return s
}
