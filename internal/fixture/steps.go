package fixture

// Direction tells which discrete step command moves toward the target.
type Direction int

const (
	StepNone Direction = iota
	StepDecrease
	StepIncrease
)

// String returns a human-readable name for the direction.
func (d Direction) String() string {
	switch d {
	case StepNone:
		return "none"
	case StepDecrease:
		return "decrease"
	case StepIncrease:
		return "increase"
	default:
		return "unknown"
	}
}

// ClosestMatch returns the index of the scale value closest to target by
// absolute difference. Ties resolve to the first matching index. The caller
// guarantees scale is non-empty.
func ClosestMatch(target int, scale []int) int {
	best := 0
	bestDiff := absInt(scale[0] - target)

	for i := 1; i < len(scale); i++ {
		diff := absInt(scale[i] - target)
		if diff < bestDiff {
			best = i
			bestDiff = diff
		}
	}

	return best
}

// ComputeSteps converts a continuous target into a signed step count relative
// to the current position on a discrete scale.
//
// When the target lands on either end of the scale, the step count is forced
// to the full scale length. The fixture has no feedback channel, so its true
// position may have drifted from the tracked index; over-issuing steps drives
// it to the physical extreme and resynchronizes both sides.
//
// The returned newIndex is the target index for the caller to commit as the
// new assumed position. The caller guarantees scale is non-empty and
// currentIndex is a valid index.
func ComputeSteps(currentIndex, target int, scale []int) (dir Direction, steps int, newIndex int) {
	newIndex = ClosestMatch(target, scale)

	delta := newIndex - currentIndex
	switch {
	case delta == 0:
		return StepNone, 0, newIndex
	case delta < 0:
		dir = StepDecrease
		steps = -delta
	default:
		dir = StepIncrease
		steps = delta
	}

	if newIndex == 0 || newIndex == len(scale)-1 {
		steps = len(scale)
	}

	return dir, steps, newIndex
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
