package qdb

import (
	"fmt"
	"maps"

	"github.com/pg-sharding/partmig/pkg/migrlog"
)

// Command is one reversible mutation of MemQDB state.
type Command interface {
	Do() error
	Undo() error
}

type UpdateCommand[K comparable, V any] struct {
	m         map[K]V
	key       K
	value     V
	prevValue V
	present   bool
}

func NewUpdateCommand[K comparable, V any](m map[K]V, key K, value V) *UpdateCommand[K, V] {
	return &UpdateCommand[K, V]{m: m, key: key, value: value}
}

func (c *UpdateCommand[K, V]) Do() error {
	c.prevValue, c.present = c.m[c.key]
	c.m[c.key] = c.value
	return nil
}

func (c *UpdateCommand[K, V]) Undo() error {
	if c.present {
		c.m[c.key] = c.prevValue
	} else {
		delete(c.m, c.key)
	}
	return nil
}

type DeleteCommand[K comparable, V any] struct {
	m       map[K]V
	key     K
	value   V
	present bool
}

func NewDeleteCommand[K comparable, V any](m map[K]V, key K) *DeleteCommand[K, V] {
	return &DeleteCommand[K, V]{m: m, key: key}
}

func (c *DeleteCommand[K, V]) Do() error {
	c.value, c.present = c.m[c.key]
	delete(c.m, c.key)
	return nil
}

func (c *DeleteCommand[K, V]) Undo() error {
	if c.present {
		c.m[c.key] = c.value
	}
	return nil
}

type DropCommand[K comparable, V any] struct {
	m     map[K]V
	saved map[K]V
}

func NewDropCommand[K comparable, V any](m map[K]V) *DropCommand[K, V] {
	return &DropCommand[K, V]{m: m}
}

func (c *DropCommand[K, V]) Do() error {
	c.saved = maps.Clone(c.m)
	clear(c.m)
	return nil
}

func (c *DropCommand[K, V]) Undo() error {
	maps.Copy(c.m, c.saved)
	return nil
}

func doCommands(commands ...Command) (int, error) {
	for i, c := range commands {
		if err := c.Do(); err != nil {
			return i, err
		}
	}
	return len(commands), nil
}

// undoCommands reverts in reverse order so overlapping keys end up in their original state.
func undoCommands(commands ...Command) error {
	migrlog.Zero.Info().Int("commands", len(commands)).Msg("memqdb: undo commands")
	for i := len(commands) - 1; i >= 0; i-- {
		if err := commands[i].Undo(); err != nil {
			return err
		}
	}
	return nil
}

// ExecuteCommands applies commands in order and persists through saver.
// If any command or the saver fails, the applied commands are undone.
func ExecuteCommands(saver func() error, commands ...Command) error {
	completed, err := doCommands(commands...)
	if err == nil {
		err = saver()
	}
	if err != nil {
		if undoErr := undoCommands(commands[:completed]...); undoErr != nil {
			return fmt.Errorf("failed to undo command %s while: %s", undoErr.Error(), err.Error())
		}
		return err
	}
	return nil
}
