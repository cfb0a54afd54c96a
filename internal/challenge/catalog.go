package challenge

import (
	"strings"

	"github.com/schollz/closestmatch"
)

// DefaultTemplates is the built-in catalog offered to every profile.
var DefaultTemplates = []Template{
	{ID: "90-days-no-ai", Title: "Desafio 90 dias sem IA", TotalDays: 90, Icon: "Smartphone", Reward: "Medalha Diamante + 3000 XP"},
	{ID: "conscious-breakfast", Title: "Café da manhã consciente", TotalDays: 21, Icon: "BookOpen", Reward: "Medalha Bronze + 600 XP"},
	{ID: "monthly-book", Title: "Leitura de 1 livro/mês", TotalDays: 30, Icon: "BookOpen", Reward: "Medalha Prata + 1200 XP"},
	{ID: "journal-writing", Title: "Escrever diário diariamente", TotalDays: 14, Icon: "BookOpen", Reward: "Medalha Bronze + 500 XP"},
	{ID: "daily-walk", Title: "Caminhada diária 30min", TotalDays: 21, Icon: "Moon", Reward: "Medalha Prata + 800 XP"},
}

// Catalog is an immutable, searchable set of templates.
type Catalog struct {
	templates []Template
	byTitle   map[string]int
	matcher   *closestmatch.ClosestMatch
}

// NewCatalog indexes templates; later duplicates of an id are dropped.
func NewCatalog(templates ...[]Template) *Catalog {
	c := &Catalog{byTitle: make(map[string]int)}
	seen := make(map[string]bool)
	titles := []string{}

	for _, group := range templates {
		for _, t := range group {
			if seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			key := strings.ToLower(t.Title)
			if _, dup := c.byTitle[key]; !dup {
				c.byTitle[key] = len(c.templates)
				titles = append(titles, key)
			}
			c.templates = append(c.templates, t)
		}
	}

	if len(titles) > 0 {
		c.matcher = closestmatch.New(titles, []int{2, 3})
	}
	return c
}

func (c *Catalog) All() []Template {
	out := make([]Template, len(c.templates))
	copy(out, c.templates)
	return out
}

// Find returns a value copy of the template with this id.
func (c *Catalog) Find(id string) (Template, bool) {
	for _, t := range c.templates {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}

// Search returns up to limit templates whose title matches query. Substring
// hits come first, then fuzzy matches for misspelled queries.
func (c *Catalog) Search(query string, limit int) []Template {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" || limit <= 0 {
		return nil
	}

	var out []Template
	picked := make(map[int]bool)
	for i, t := range c.templates {
		if len(out) == limit {
			return out
		}
		if strings.Contains(strings.ToLower(t.Title), query) {
			out = append(out, t)
			picked[i] = true
		}
	}

	if c.matcher == nil {
		return out
	}
	for _, title := range c.matcher.ClosestN(query, limit) {
		if len(out) == limit {
			break
		}
		i, ok := c.byTitle[title]
		if !ok || picked[i] {
			continue
		}
		picked[i] = true
		out = append(out, c.templates[i])
	}
	return out
}
