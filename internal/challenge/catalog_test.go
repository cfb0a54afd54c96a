package challenge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogFind(t *testing.T) {
	c := NewCatalog(DefaultTemplates)

	tpl, ok := c.Find("journal-writing")
	require.True(t, ok)
	assert.Equal(t, 14, tpl.TotalDays)

	_, ok = c.Find("nope")
	assert.False(t, ok)
	assert.Len(t, c.All(), len(DefaultTemplates))
}

func TestCatalogDropsDuplicateIDs(t *testing.T) {
	extra := []Template{
		{ID: "daily-walk", Title: "Shadowed", TotalDays: 1},
		{ID: "admin-1", Title: "Sem celular no jantar", TotalDays: 10, Reward: "100 XP"},
	}
	c := NewCatalog(DefaultTemplates, extra)

	assert.Len(t, c.All(), len(DefaultTemplates)+1)
	walk, _ := c.Find("daily-walk")
	assert.Equal(t, "Caminhada diária 30min", walk.Title)
}

func TestCatalogSearch(t *testing.T) {
	c := NewCatalog(DefaultTemplates)

	hits := c.Search("leitura", 3)
	require.NotEmpty(t, hits)
	assert.Equal(t, "monthly-book", hits[0].ID)

	assert.Nil(t, c.Search("  ", 3))
	assert.Len(t, c.Search("a", 2), 2)
}

func TestCatalogSearchFuzzy(t *testing.T) {
	c := NewCatalog(DefaultTemplates)

	hits := c.Search("caminhada diaria", 1)
	require.Len(t, hits, 1)
	assert.Equal(t, "daily-walk", hits[0].ID)
}
