package ledger

// SplitInstallments divides total into n per-period amounts using truncating
// integer division. The remainder lands on the final installment so the parts
// always sum to total.
func SplitInstallments(total int64, n int) ([]int64, error) {
	if total <= 0 {
		return nil, ErrInvalidAmount
	}
	if n < 1 {
		return nil, ErrInvalidInstallments
	}
	per := total / int64(n)
	parts := make([]int64, n)
	for i := range parts {
		parts[i] = per
	}
	parts[n-1] += total - per*int64(n)
	return parts, nil
}
