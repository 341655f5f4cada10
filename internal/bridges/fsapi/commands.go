package fsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// commandError carries the ack error code of a failed command.
type commandError struct {
	code    string
	message string
}

func (e *commandError) Error() string {
	return e.code + ": " + e.message
}

func invalidParams(format string, args ...any) error {
	return &commandError{code: ErrCodeInvalidParameters, message: fmt.Sprintf(format, args...)}
}

func rejected(command string) error {
	return &commandError{code: ErrCodeRejected, message: fmt.Sprintf("receiver did not accept %s", command)}
}

// handleMQTTMessage routes a command topic to handleCommand.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) {
	parts := strings.Split(topic, "/")
	if len(parts) != commandTopicParts || parts[1] != "command" || parts[2] != Protocol {
		b.logError("invalid topic format", fmt.Errorf("topic: %s", topic))
		return
	}

	b.handleCommand(parts[3], payload)
}

// handleCommand parses, executes and acknowledges one command.
func (b *Bridge) handleCommand(receiverID string, payload []byte) {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.publishAckError(CommandMessage{DeviceID: receiverID}, "", ErrCodeInvalidCommand,
			fmt.Sprintf("malformed command payload: %v", err))
		return
	}

	if cmd.DeviceID == "" {
		cmd.DeviceID = receiverID
	} else if cmd.DeviceID != receiverID {
		mismatch := cmd
		mismatch.DeviceID = receiverID
		if mismatch.ID == "" {
			mismatch.ID = uuid.NewString()
		}
		b.publishAckError(mismatch, "", ErrCodeInvalidParameters,
			fmt.Sprintf("device_id %q does not match topic receiver %q", cmd.DeviceID, receiverID))
		return
	}

	b.Execute(cmd)
}

// Execute runs a command against a managed receiver, publishes the
// acknowledgement and returns it. Empty command IDs are generated.
//
// On success the receiver is re-polled in the background so the new state
// is published without waiting for the next tick.
func (b *Bridge) Execute(cmd CommandMessage) AckMessage {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}

	b.logInfo("received command",
		"command_id", cmd.ID,
		"device_id", cmd.DeviceID,
		"command", cmd.Command,
		"source", cmd.Source)

	h, ok := b.lookup(cmd.DeviceID)
	if !ok {
		return b.publishAckError(cmd, "", ErrCodeNotConfigured,
			fmt.Sprintf("receiver %s not configured", cmd.DeviceID))
	}

	// Derive timeout from bridge context so commands are cancelled on shutdown
	ctx, cancel := context.WithTimeout(b.ctx, b.cfg.GetCommandTimeout())
	defer cancel()

	if err := b.executeCommand(ctx, h.client, cmd); err != nil {
		var cmdErr *commandError
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return b.publishAckError(cmd, h.cfg.DeviceURL, ErrCodeTimeout, "receiver did not answer in time")
		case errors.As(err, &cmdErr):
			return b.publishAckError(cmd, h.cfg.DeviceURL, cmdErr.code, cmdErr.message)
		default:
			return b.publishAckError(cmd, h.cfg.DeviceURL, ErrCodeDeviceUnreachable, err.Error())
		}
	}

	ack := NewAckMessage(cmd, AckAccepted, h.cfg.DeviceURL)
	b.publishAckMessage(ack)

	// Refresh state so Core sees the effect without waiting for the next tick.
	if b.track() {
		go func() {
			defer b.wg.Done()
			b.pollOnce(h)
		}()
	}
	return ack
}

// executeCommand translates a command into FSAPI calls.
func (b *Bridge) executeCommand(ctx context.Context, r Receiver, cmd CommandMessage) error {
	var ok bool

	switch cmd.Command {
	case CmdOn:
		ok = r.SetPower(ctx, true)
	case CmdOff:
		ok = r.SetPower(ctx, false)
	case CmdMute:
		ok = r.SetMute(ctx, true)
	case CmdUnmute:
		ok = r.SetMute(ctx, false)
	case CmdPlay:
		ok = r.Play(ctx)
	case CmdPause:
		ok = r.Pause(ctx)
	case CmdNext:
		ok = r.Forward(ctx)
	case CmdPrevious:
		ok = r.Rewind(ctx)
	case CmdSetVolume:
		return executeSetVolume(ctx, r, cmd)
	case CmdSetMode:
		return executeSetMode(ctx, r, cmd)
	case CmdSetSleep:
		seconds, err := intParam(cmd, "seconds")
		if err != nil {
			return err
		}
		if seconds < 0 {
			return invalidParams("'seconds' must not be negative, got %d", seconds)
		}
		ok = r.SetSleep(ctx, seconds)
	case CmdSetFriendlyName:
		name, err := stringParam(cmd, "name")
		if err != nil {
			return err
		}
		ok = r.SetFriendlyName(ctx, name)
	default:
		return &commandError{code: ErrCodeInvalidCommand, message: fmt.Sprintf("unknown command: %s", cmd.Command)}
	}

	if !ok {
		return rejected(cmd.Command)
	}
	return nil
}

// executeSetVolume validates the level against the receiver's volume steps.
func executeSetVolume(ctx context.Context, r Receiver, cmd CommandMessage) error {
	level, err := intParam(cmd, "level")
	if err != nil {
		return err
	}
	if level < 0 {
		return invalidParams("'level' must not be negative, got %d", level)
	}
	if steps := r.VolumeSteps(ctx); steps > 0 && level >= steps {
		return invalidParams("'level' must be 0-%d, got %d", steps-1, level)
	}

	if !r.SetVolume(ctx, level) {
		return rejected(cmd.Command)
	}
	return nil
}

// executeSetMode validates the mode label against the receiver's mode list.
func executeSetMode(ctx context.Context, r Receiver, cmd CommandMessage) error {
	mode, err := stringParam(cmd, "mode")
	if err != nil {
		return err
	}

	modes := r.ModeList(ctx)
	if len(modes) > 0 && !slices.Contains(modes, mode) {
		return invalidParams("unknown mode %q (valid: %s)", mode, strings.Join(modes, ", "))
	}

	if !r.SetMode(ctx, mode) {
		return rejected(cmd.Command)
	}
	return nil
}

// intParam reads a whole-number parameter. JSON numbers arrive as float64.
func intParam(cmd CommandMessage, key string) (int, error) {
	raw, ok := cmd.Parameters[key]
	if !ok {
		return 0, invalidParams("missing '%s' parameter", key)
	}
	f, ok := raw.(float64)
	if !ok {
		return 0, invalidParams("'%s' must be a number", key)
	}
	if f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, invalidParams("'%s' must be a whole number, got %v", key, f)
	}
	return int(f), nil
}

// stringParam reads a non-empty string parameter.
func stringParam(cmd CommandMessage, key string) (string, error) {
	raw, ok := cmd.Parameters[key]
	if !ok {
		return "", invalidParams("missing '%s' parameter", key)
	}
	s, ok := raw.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", invalidParams("'%s' must be a non-empty string", key)
	}
	return s, nil
}

// publishAckError publishes and returns a failed command acknowledgement.
func (b *Bridge) publishAckError(cmd CommandMessage, address, code, message string) AckMessage {
	ack := NewAckError(cmd, address, code, message)
	b.publishAckMessage(ack)

	b.logWarn("command failed",
		"command_id", cmd.ID,
		"device_id", cmd.DeviceID,
		"code", code,
		"message", message)
	return ack
}

func (b *Bridge) publishAckMessage(ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}

	if err := b.mqtt.Publish(AckTopic(ack.DeviceID), payload, 1, false); err != nil {
		b.logError("failed to publish ack", err)
	}
}
