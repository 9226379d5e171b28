package main

import (
	"fmt"

	"github.com/Philipp15b/go-steam/v3/totp"
)

// resolveAuthCode implements the heuristic of SPEC_FULL §4.3 step 1:
// a short secret (len <= 5) is treated as an already-generated one-time
// code; anything longer is a TOTP seed from which a fresh code is
// derived via go-steam's own totp package (grounded on the GoInspect
// reference tool, which calls this same entry point).
func resolveAuthCode(secret string) (code string, isTwoFactor bool, err error) {
	if secret == "" {
		return "", false, nil
	}
	if len(secret) <= 5 {
		return secret, false, nil
	}
	generated, err := totp.NewTotp(secret).GenerateCode()
	if err != nil {
		return "", false, fmt.Errorf("generate totp code: %w", err)
	}
	return generated, true, nil
}
