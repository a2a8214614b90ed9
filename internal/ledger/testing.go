package ledger

import (
	"context"
	"fmt"
)

// SeedTokens is a test helper that mints n tokens into the wallet with
// generated capture references.
func SeedTokens(l Ledger, walletID string, n int) []Token {
	captureIDs := make([]string, n)
	for i := range captureIDs {
		captureIDs[i] = fmt.Sprintf("capture-%s-%d", walletID, i)
	}
	tokens, err := l.MintTokens(context.Background(), walletID, captureIDs)
	if err != nil {
		panic(err)
	}
	return tokens
}
