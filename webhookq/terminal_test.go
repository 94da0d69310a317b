package webhookq

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/outflowhq/outflow/errors"
)

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(nil))
	assert.False(t, IsTerminal(errors.New("transient")))
	assert.True(t, IsTerminal(Terminal(errors.New("bad payload"))))
	assert.True(t, IsTerminal(Terminalf("unknown provider %q", "x")))
}

func TestTerminalSurvivesWrapping(t *testing.T) {
	err := Terminal(errors.New("bad payload"))
	wrapped := errors.Wrap(err, "processing event")

	assert.True(t, IsTerminal(wrapped))
	assert.Contains(t, wrapped.Error(), "bad payload")
}

func TestTerminalNil(t *testing.T) {
	assert.Nil(t, Terminal(nil))
}
