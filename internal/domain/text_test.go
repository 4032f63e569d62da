package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("hello", Truncate("hello", 5))
	assert.Equal("hel...", Truncate("hello", 3))
	assert.Equal("", Truncate("", 3))
	// A flag is two code points but one grapheme.
	assert.Equal("🇩🇪🇫🇷...", Truncate("🇩🇪🇫🇷🇮🇹", 2))
	assert.Equal("é...", Truncate("éé", 1))
}
