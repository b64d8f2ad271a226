package qdb

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecuteCommandsUndoesOnSaverFailure(t *testing.T) {
	is := assert.New(t)

	m := map[string]int{"a": 1, "b": 2}
	saveErr := errors.New("disk full")

	err := ExecuteCommands(func() error { return saveErr },
		NewUpdateCommand(m, "a", 10),
		NewDeleteCommand(m, "b"),
		NewUpdateCommand(m, "c", 3),
		NewUpdateCommand(m, "a", 20),
	)

	is.ErrorIs(err, saveErr)
	is.Equal(map[string]int{"a": 1, "b": 2}, m)
}

func TestExecuteCommandsDropUndo(t *testing.T) {
	m := map[string]int{"a": 1, "b": 2}

	err := ExecuteCommands(func() error { return errors.New("fail") }, NewDropCommand(m))

	assert.Error(t, err)
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, m)
}

func TestExecuteCommandsSuccess(t *testing.T) {
	m := map[string]int{"a": 1}
	saved := 0

	err := ExecuteCommands(func() error { saved++; return nil },
		NewUpdateCommand(m, "b", 2),
		NewDeleteCommand(m, "a"),
	)

	assert.NoError(t, err)
	assert.Equal(t, 1, saved)
	assert.Equal(t, map[string]int{"b": 2}, m)
}

func TestActiveMigrationNodePath(t *testing.T) {
	assert.Equal(t, "/active_migrations/3/1/copy", activeMigrationNodePath(ActiveMigrationKey(3, 1, false)))
}
