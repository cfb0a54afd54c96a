package challenge

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var firstNumber = regexp.MustCompile(`\d+`)

// ParseRewardXP extracts the first integer in a reward text.
// "Medalha Ouro + 1000 XP" yields 1000; text without digits yields 0.
func ParseRewardXP(reward string) int {
	m := firstNumber.FindString(reward)
	if m == "" {
		return 0
	}
	xp, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return xp
}

// FormatReward renders an admin-authored reward so ParseRewardXP reads it back.
func FormatReward(xp int, badge string) string {
	badge = strings.TrimSpace(badge)
	if badge == "" {
		return fmt.Sprintf("%d XP", xp)
	}
	// digits in the badge name would shadow the XP amount
	if firstNumber.MatchString(badge) {
		return fmt.Sprintf("%d XP + %s", xp, badge)
	}
	return fmt.Sprintf("%s + %d XP", badge, xp)
}
