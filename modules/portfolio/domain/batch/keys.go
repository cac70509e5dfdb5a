package batch

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Key is a normalized natural key. Keys are comparable and built only
// through the per-family constructors below so the same sheet value always
// yields the same key.
type Key struct {
	Family Family
	Tenant uuid.UUID
	P1     string
	P2     string
	P3     string
}

func (k Key) IsZero() bool {
	return k == Key{}
}

// canonical flattens a key so it can become one part of a composite key.
func (k Key) canonical() string {
	return string(k.Family) + "\x1f" + k.P1 + "\x1f" + k.P2 + "\x1f" + k.P3
}

func BuildingKey(tenant uuid.UUID, address string) Key {
	return Key{Family: FamilyBuilding, Tenant: tenant, P1: NormalizeAddress(address)}
}

// LotKey scopes a lot reference to its building. Standalone lots pass an
// empty building address and are scoped to the tenant alone.
func LotKey(tenant uuid.UUID, buildingAddress, reference string) Key {
	return Key{
		Family: FamilyLot,
		Tenant: tenant,
		P1:     NormalizeAddress(buildingAddress),
		P2:     NormalizeReference(reference),
	}
}

func ContactKey(tenant uuid.UUID, email string) Key {
	return Key{Family: FamilyContact, Tenant: tenant, P1: NormalizeEmail(email)}
}

func ContractKey(lot Key, contact Key, role string) Key {
	return Key{
		Family: FamilyContract,
		Tenant: lot.Tenant,
		P1:     lot.canonical(),
		P2:     contact.canonical(),
		P3:     strings.ToLower(strings.TrimSpace(role)),
	}
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeAddress folds an address for natural-key matching: diacritics
// removed, punctuation flattened, whitespace collapsed, lowercased.
// "12, Rue de l'Église" and "12 rue de l'eglise" resolve identically.
func NormalizeAddress(address string) string {
	folded, _, err := transform.String(stripMarks, address)
	if err != nil {
		folded = address
	}
	var b strings.Builder
	b.Grow(len(folded))
	space := true
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		default:
			if !space {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeReference uppercases a lot reference and collapses inner
// whitespace, so "a 101" and "A  101" match.
func NormalizeReference(ref string) string {
	return strings.ToUpper(strings.Join(strings.Fields(ref), " "))
}
