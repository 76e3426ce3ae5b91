package guard

import (
	"strings"

	"github.com/PabloGalante/guard-agent/internal/domain"
)

// NormalizeName lowercases and trims a name for comparison.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ClaimResult classifies a spoken identity claim against the vision verdict.
type ClaimResult string

const (
	// ClaimConsistent: claim and vision agree, or both are unknown. The
	// ordinary unknown-visitor flow continues.
	ClaimConsistent ClaimResult = "consistent"
	// ClaimInconsistent: a trusted face is present and the claim names
	// someone else. Strongest signal; forces an immediate alarm.
	ClaimInconsistent ClaimResult = "inconsistent"
	// ClaimUnverifiable: the claim names an enrolled person but the face was
	// not recognized. Not proof of lying, but the claim cannot support a
	// cooperative grant.
	ClaimUnverifiable ClaimResult = "unverifiable"
)

// CheckClaim cross-checks a claimed name against the vision-resolved identity.
// Name comparison is case-insensitive on normalized names. An empty claim is
// consistent by definition.
func CheckClaim(claimed string, verdict domain.IdentityVerdict, rosterNames []string) ClaimResult {
	claimed = NormalizeName(claimed)
	if claimed == "" {
		return ClaimConsistent
	}

	if verdict.IsTrusted {
		if NormalizeName(verdict.MatchedName) != claimed {
			return ClaimInconsistent
		}
		return ClaimConsistent
	}

	for _, name := range rosterNames {
		if NormalizeName(name) == claimed {
			return ClaimUnverifiable
		}
	}
	return ClaimConsistent
}
