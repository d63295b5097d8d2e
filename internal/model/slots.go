package model

// Slot is the position of one layer's weight and bias in a saved list.
type Slot struct {
	Weight int
	Bias   int
}

var (
	outputSlot = Slot{Weight: 0, Bias: 1}
	hiddenSlot = Slot{Weight: 2, Bias: 3}
)

// ShallowSavedLen is the length of a shallow model's saved list.
const ShallowSavedLen = 4

// ConvSavedLen is the length of a saved list for a model with n conv stages.
func ConvSavedLen(n int) int {
	return 2 * (n + 2)
}

// StageSlot locates conv stage i in a saved list of length n. The list is
// written from the output backwards, so stage 0 sits at the very end.
func StageSlot(n, i int) Slot {
	bias := n - 2*i - 1
	return Slot{Weight: bias - 1, Bias: bias}
}
