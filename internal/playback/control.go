package playback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnknownCommand = errors.New("unknown command")

// Command is a control message received from a map client or the message bus.
type Command struct {
	Type string `json:"type"`
	Day  *int   `json:"day,omitempty"`
}

// DecodeCommand parses a JSON control message.
func DecodeCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	return cmd, nil
}

// Handle applies cmd to the controller. "play" and "select" use cmd.Day,
// falling back to the selected day for "play".
func (c *Controller) Handle(ctx context.Context, cmd Command) error {
	switch cmd.Type {
	case "toggle":
		return c.Toggle(ctx)
	case "play":
		day := c.Status().Selected
		if cmd.Day != nil {
			day = *cmd.Day
		}
		return c.Play(day)
	case "select":
		if cmd.Day == nil {
			return fmt.Errorf("select: %w", ErrUnknownDay)
		}
		return c.Select(*cmd.Day)
	case "pause":
		return c.Pause()
	case "resume":
		return c.Resume()
	case "reset":
		return c.Reset(ctx)
	case "ping":
		return nil
	default:
		return fmt.Errorf("%w %q", ErrUnknownCommand, cmd.Type)
	}
}
