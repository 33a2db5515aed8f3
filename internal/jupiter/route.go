package jupiter

import (
	"fmt"

	"keeper-vault/internal/domain"
	"keeper-vault/internal/policy"
	"keeper-vault/internal/solana"
)

// ValidateRoute rejects a quote whose worst-case output falls further below
// the quoted output than maxSlippageBps allows.
func ValidateRoute(q *Quote, maxSlippageBps uint16) error {
	_, out, threshold, err := q.Amounts()
	if err != nil {
		return err
	}
	if out == 0 {
		return fmt.Errorf("%w: route quotes zero output", domain.ErrSlippageExceeded)
	}
	if bps := policy.RouteSlippageBps(out, threshold); bps > uint64(maxSlippageBps) {
		return fmt.Errorf("%w: route slippage %d bps exceeds max %d bps",
			domain.ErrSlippageExceeded, bps, maxSlippageBps)
	}
	return nil
}

// CheckRoute verifies that a quote trades amount of input into output.
func CheckRoute(q *Quote, input, output solana.PublicKey, amount uint64) error {
	if q.InputMint != input.String() || q.OutputMint != output.String() {
		return fmt.Errorf("%w: route %s -> %s, want %s -> %s",
			domain.ErrInvalidMint, q.InputMint, q.OutputMint, input, output)
	}
	in, _, _, err := q.Amounts()
	if err != nil {
		return err
	}
	if in != amount {
		return fmt.Errorf("%w: route input %d, want %d", domain.ErrInvalidParameter, in, amount)
	}
	return nil
}
