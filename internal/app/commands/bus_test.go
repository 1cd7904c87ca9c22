package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoCommand struct{ Text string }

func (echoCommand) Key() string { return "test.echo" }

type otherCommand struct{}

func (otherCommand) Key() string { return "test.other" }

func TestInMemoryBusDispatch(t *testing.T) {
	bus := NewInMemoryBus()
	RegisterHandler[echoCommand, string](bus, "test.echo", HandlerFunc[echoCommand, string](func(_ context.Context, cmd echoCommand) (string, error) {
		return cmd.Text, nil
	}))

	got, err := Dispatch[echoCommand, string](context.Background(), bus, echoCommand{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", got)

	_, err = Dispatch[echoCommand, int](context.Background(), bus, echoCommand{})
	assert.ErrorIs(t, err, ErrResultType)

	_, err = bus.Dispatch(context.Background(), otherCommand{})
	assert.ErrorIs(t, err, ErrHandlerNotFound)

	_, err = Dispatch[echoCommand, string](context.Background(), nil, echoCommand{})
	assert.ErrorIs(t, err, ErrNilBus)

	assert.Equal(t, []string{"test.echo"}, bus.Keys())
	assert.Panics(t, func() {
		RegisterHandler[echoCommand, string](bus, "test.echo", HandlerFunc[echoCommand, string](func(context.Context, echoCommand) (string, error) { return "", nil }))
	})
}
