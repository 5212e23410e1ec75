package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	InitBinaryVersion()

	assert.Contains(t, String(), "virtualenvify "+Version)
	assert.Contains(t, String(), "commit: "+Commit)
	assert.NotEmpty(t, Version)
}
