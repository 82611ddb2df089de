package value

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for report fingerprints.
// Version suffix enables future algorithm migration.
const (
	DomainCheckReport    = "nxcheck/check-report/v1"
	DomainCompareReport  = "nxcheck/compare-report/v1"
	DomainValidateReport = "nxcheck/validate-report/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint returns the content hash of v under the given domain.
// Two reports with the same fingerprint list the same discrepancies in the
// same order.
func Fingerprint(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return hashWithDomain(domain, canonical), nil
}
