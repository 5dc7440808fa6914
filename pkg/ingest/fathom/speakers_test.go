package fathom

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDirectory_Resolve(t *testing.T) {
	dir := NewDirectory([]Speaker{
		{Name: "Alice Smith", Email: "alice@chalk.ai", Aliases: []string{"Ali", "A. Smith"}},
		{Name: "Bob Jones", Email: "bob@chalk.ai"},
	})

	tests := []struct {
		label    string
		expected string
	}{
		{"Alice Smith", "alice@chalk.ai"},
		{"alice smith", "alice@chalk.ai"},
		{"ALI", "alice@chalk.ai"},
		{"a. smith", "alice@chalk.ai"},
		{"Bob Jones", "bob@chalk.ai"},
		{"Carol", "Carol"},
		{"", ""},
	}

	for _, tc := range tests {
		t.Run(tc.label, func(t *testing.T) {
			assert.Equal(t, tc.expected, dir.Resolve(tc.label))
		})
	}
}

func TestDirectory_LastWriteWins(t *testing.T) {
	dir := NewDirectory([]Speaker{
		{Name: "John Smith", Email: "a@x.com"},
		{Name: "John Smith", Email: "b@x.com"},
	})
	assert.Equal(t, "b@x.com", dir.Resolve("John Smith"))
	assert.Equal(t, 1, dir.Len())
}

func TestDirectory_AliasOverridesEarlierName(t *testing.T) {
	dir := NewDirectory([]Speaker{
		{Name: "Sam", Email: "sam@x.com"},
		{Name: "Samantha Lee", Email: "samantha@x.com", Aliases: []string{"Sam"}},
	})
	assert.Equal(t, "samantha@x.com", dir.Resolve("sam"))
}

func TestDirectory_NilIsEmpty(t *testing.T) {
	var dir *Directory
	assert.Equal(t, 0, dir.Len())
	assert.Equal(t, "Alice", dir.Resolve("Alice"))
}

func TestDirectory_ConcurrentReads(t *testing.T) {
	dir := NewDirectory([]Speaker{{Name: "Alice", Email: "alice@chalk.ai"}})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				assert.Equal(t, "alice@chalk.ai", dir.Resolve("alice"))
			}
		}()
	}
	wg.Wait()
}

func TestResolveAll_Stats(t *testing.T) {
	dir := NewDirectory([]Speaker{
		{Name: "Alice", Email: "alice@chalk.ai"},
		{Name: "Bob", Email: "bob@chalk.ai"},
	})

	results := dir.ResolveAll([]string{"Alice", "bob", "Carol", "Dave"})

	assert.Equal(t, []string{"Carol", "Dave"}, results.Unresolved())
	assert.Equal(t, "bob@chalk.ai", results[1].Email)
	assert.Equal(t, "Carol", results[2].Email)

	stats := results.Stats()
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Matched)
	assert.Equal(t, 2, stats.Unmatched)
	assert.InDelta(t, 0.5, stats.MatchRate, 0.0001)
}

func TestResolveAll_EmptyStats(t *testing.T) {
	stats := NewDirectory(nil).ResolveAll(nil).Stats()
	assert.Equal(t, ResolveStats{}, stats)
}

func TestCollisions(t *testing.T) {
	speakers := []Speaker{
		{Name: "John Smith", Email: "a@x.com"},
		{Name: "john smith", Email: "b@x.com"},
		{Name: "Alice", Email: "alice@x.com", Aliases: []string{"Al"}},
		{Name: "Alice", Email: "alice@x.com"},
		{Name: "Albert", Email: "albert@x.com", Aliases: []string{"AL"}},
	}

	got := Collisions(speakers)
	assert.Equal(t, map[string][]string{
		"john smith": {"a@x.com", "b@x.com"},
		"al":         {"alice@x.com", "albert@x.com"},
	}, got)
}
