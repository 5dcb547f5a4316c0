package guard

import "fmt"

// SuspicionInput is what a suspicion policy may inspect.
type SuspicionInput struct {
	// Occurrences counts this submission plus earlier orders with the same fingerprint.
	Occurrences int
	Items       []Item
}

// SuspicionPolicy reports whether an order matches a suspicious pattern and why.
type SuspicionPolicy func(in SuspicionInput) (bool, string)

// DefaultSuspicionPolicy flags repeated identical orders and oversized line quantities.
func DefaultSuspicionPolicy(maxRepeats, maxQuantity int) SuspicionPolicy {
	return func(in SuspicionInput) (bool, string) {
		if maxRepeats > 0 && in.Occurrences >= maxRepeats {
			return true, fmt.Sprintf("identical order placed %d times", in.Occurrences)
		}
		if maxQuantity > 0 {
			for _, item := range in.Items {
				if item.Quantity > maxQuantity {
					return true, fmt.Sprintf("quantity %d of %s exceeds %d", item.Quantity, item.ProductID, maxQuantity)
				}
			}
		}
		return false, ""
	}
}
