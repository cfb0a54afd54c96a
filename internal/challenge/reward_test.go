package challenge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRewardXP(t *testing.T) {
	cases := map[string]int{
		"Medalha Ouro + 1000 XP":     1000,
		"Medalha Bronze + 500 XP":    500,
		"Medalha Diamante + 3000 XP": 3000,
		"Só medalha":                 0,
		"":                           0,
	}
	for reward, want := range cases {
		assert.Equal(t, want, ParseRewardXP(reward), reward)
	}
}

func TestFormatRewardRoundTrips(t *testing.T) {
	assert.Equal(t, "Medalha Prata + 750 XP", FormatReward(750, "Medalha Prata"))
	assert.Equal(t, "100 XP", FormatReward(100, "  "))
	assert.Equal(t, "200 XP + Top 10", FormatReward(200, "Top 10"))

	for _, badge := range []string{"", "Medalha Prata", "Top 10", "7 Dias Consecutivos"} {
		assert.Equal(t, 1234, ParseRewardXP(FormatReward(1234, badge)), badge)
	}
}
