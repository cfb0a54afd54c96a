// Package profile applies updates to a profile's gamification counters and
// keeps them inside their bounds.
package profile

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/tahcohcat/reconectar/internal/apperr"
	"github.com/tahcohcat/reconectar/internal/models"
)

// XPPerLevel is the XP a single award must carry to raise the level by one.
const XPPerLevel = 1000

var (
	ErrNegativeXP      = apperr.New("profile.Update", apperr.KindValidation, "xp cannot be negative")
	ErrInvalidLevel    = apperr.New("profile.Update", apperr.KindValidation, "level must be at least 1")
	ErrNegativeCounter = apperr.New("profile.Update", apperr.KindValidation, "counters cannot be negative")
	ErrEmptyName       = apperr.New("profile.Update", apperr.KindValidation, "name cannot be empty")
	ErrLevelDecrease   = apperr.New("profile.Update", apperr.KindForbidden, "level and xp can only be lowered by an administrator")
	ErrNegativeXPAward = apperr.New("profile.AwardXP", apperr.KindValidation, "xp award cannot be negative")
)

// New returns the profile a fresh account starts with.
func New(id, name, email string) models.Profile {
	return models.Profile{
		ID:       id,
		Name:     strings.TrimSpace(name),
		Username: Handle(name),
		Email:    email,
		Level:    1,
	}
}

// Apply merges the non-nil fields of patch into p and validates the result.
// An empty patch returns p unchanged. Lowering level or xp is refused unless
// correction is set.
func Apply(p models.Profile, patch models.ProfilePatch, correction bool) (models.Profile, error) {
	if patch.Empty() {
		return p, nil
	}

	next := p
	if patch.Name != nil {
		next.Name = strings.TrimSpace(*patch.Name)
		next.Username = Handle(next.Name)
	}
	if patch.Bio != nil {
		next.Bio = optional(*patch.Bio)
	}
	if patch.Avatar != nil {
		next.Avatar = optional(*patch.Avatar)
	}
	if patch.Level != nil {
		next.Level = *patch.Level
	}
	if patch.XP != nil {
		next.XP = *patch.XP
	}
	if patch.DaysWithoutAI != nil {
		next.DaysWithoutAI = *patch.DaysWithoutAI
	}
	if patch.ActiveChallenges != nil {
		next.ActiveChallenges = *patch.ActiveChallenges
	}

	if err := Validate(next); err != nil {
		return p, err
	}
	if !correction && (next.Level < p.Level || next.XP < p.XP) {
		return p, ErrLevelDecrease
	}
	return next, nil
}

// Validate checks the profile invariants.
func Validate(p models.Profile) error {
	switch {
	case p.Name == "":
		return ErrEmptyName
	case p.XP < 0:
		return ErrNegativeXP
	case p.Level < 1:
		return ErrInvalidLevel
	case p.ActiveChallenges < 0, p.DaysWithoutAI < 0:
		return ErrNegativeCounter
	}
	return nil
}

// AwardXP adds gained XP and raises the level by floor(gained/XPPerLevel).
func AwardXP(p models.Profile, gained int) (models.Profile, error) {
	if gained < 0 {
		return p, ErrNegativeXPAward
	}
	p.XP += gained
	p.Level += gained / XPPerLevel
	return p, nil
}

// Handle derives a lower-case handle from a display name:
// "João da Silva" becomes "joao_da_silva".
func Handle(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, name)
	if err != nil {
		plain = name
	}

	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(plain) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
