package prompt

import (
	"errors"
	"fmt"
	"testing"

	"github.com/manifoldco/promptui"
	"github.com/stretchr/testify/assert"
)

func TestIsAborted(t *testing.T) {
	assert.True(t, IsAborted(promptui.ErrInterrupt))
	assert.True(t, IsAborted(promptui.ErrAbort))
	assert.True(t, IsAborted(ErrAborted))
	assert.True(t, IsAborted(fmt.Errorf("switch: %w", ErrAborted)))
	assert.False(t, IsAborted(errors.New("boom")))
	assert.False(t, IsAborted(nil))
}

func TestWrapError(t *testing.T) {
	assert.NoError(t, wrapError(nil))
	assert.Equal(t, ErrAborted, wrapError(promptui.ErrInterrupt))

	other := errors.New("tty closed")
	assert.Equal(t, other, wrapError(other))
}

func TestConfirmDangerWithForce(t *testing.T) {
	ok, err := ConfirmDangerWithForce("Delete layer feature?", "feature", true)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestSelectTemplates(t *testing.T) {
	assert.Empty(t, selectTemplates(false).Details)
	assert.Contains(t, selectTemplates(true).Details, "Parent:")
}
