package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSetDefaults(t *testing.T) {
	var o Options
	o.setDefaults()

	assert.Equal(t, 500*time.Millisecond, o.CoalesceDelay)
	assert.True(t, o.IgnoreHidden)
	assert.Contains(t, o.IgnorePatterns, "*.tmp")
}

func TestSetDefaultsRespectsExplicitPatterns(t *testing.T) {
	o := Options{IgnorePatterns: []string{}, IgnoreHidden: false}
	o.setDefaults()

	assert.Empty(t, o.IgnorePatterns)
	assert.False(t, o.IgnoreHidden)
	assert.Equal(t, 500*time.Millisecond, o.CoalesceDelay)
}

func TestShouldIgnoreHiddenPath(t *testing.T) {
	o := Options{IgnoreHidden: true}
	assert.True(t, o.shouldIgnore("/library/.DS_Store"))
	assert.True(t, o.shouldIgnore("/library/.git/config"))
	assert.False(t, o.shouldIgnore("/library/book.m4b"))
}

func TestShouldIgnorePattern(t *testing.T) {
	o := Options{IgnorePatterns: []string{"*.tmp"}}
	assert.True(t, o.shouldIgnore("/library/download.tmp"))
	assert.False(t, o.shouldIgnore("/library/book.mp3"))
}
