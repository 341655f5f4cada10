package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-fsapi/internal/fsapi"
)

// closeTimeout bounds the DELETE_SESSION sent when the shell exits.
const closeTimeout = 2 * time.Second

type shellCommand struct {
	name  string
	usage string
	help  string
}

var shellCommands = []shellCommand{
	{"help", "help", "Show this help"},
	{"info", "info", "Show power, mode, volume and what is playing"},
	{"get", "get <path> [u8|u32|text]", "Read a node (default u8)"},
	{"set", "set <path> <value>", "Write a node"},
	{"list", "list <path>", "Read the first page of a list node"},
	{"power", "power [on|off]", "Show or switch power"},
	{"volume", "volume [level]", "Show or set the volume"},
	{"mute", "mute [on|off]", "Show or set mute"},
	{"mode", "mode [label]", "Show or change the mode"},
	{"modes", "modes", "List the supported modes"},
	{"eq", "eq", "List the equaliser presets"},
	{"sleep", "sleep [seconds]", "Show or set the sleep timer"},
	{"name", "name [new name]", "Show or change the friendly name"},
	{"play", "play", "Resume playback"},
	{"pause", "pause", "Pause playback"},
	{"next", "next", "Skip forward"},
	{"prev", "prev", "Skip back"},
	{"session", "session", "Show the current session id"},
	{"close", "close", "Close the session"},
	{"quit", "quit", "Close the session and exit"},
}

// shell runs commands against one receiver.
type shell struct {
	client *fsapi.Client
	out    io.Writer
}

func newShell(client *fsapi.Client, out io.Writer) *shell {
	return &shell{client: client, out: out}
}

// close ends the receiver session, if any.
func (s *shell) close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	_ = s.client.Close(ctx)
}

// execute runs one input line and reports whether the shell should exit.
func (s *shell) execute(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	var err error
	switch cmd {
	case "help", "?":
		s.help()
	case "info":
		s.info(ctx)
	case "get":
		err = s.get(ctx, args)
	case "set":
		err = s.set(ctx, args)
	case "list":
		err = s.list(ctx, args)
	case "power":
		err = s.toggle(ctx, args, s.client.Power, s.client.SetPower)
	case "mute":
		err = s.toggle(ctx, args, s.client.Mute, s.client.SetMute)
	case "volume", "vol":
		err = s.volume(ctx, args)
	case "mode":
		err = s.mode(ctx, args)
	case "modes":
		s.printLabels(s.client.ModeList(ctx))
	case "eq":
		s.printLabels(s.client.EqualiserList(ctx))
	case "sleep":
		err = s.sleep(ctx, args)
	case "name":
		err = s.name(ctx, args)
	case "play":
		s.result(s.client.Play(ctx))
	case "pause":
		s.result(s.client.Pause(ctx))
	case "next":
		s.result(s.client.Forward(ctx))
	case "prev":
		s.result(s.client.Rewind(ctx))
	case "session":
		if sid := s.client.SessionID(); sid != "" {
			fmt.Fprintln(s.out, sid)
		} else {
			fmt.Fprintln(s.out, "No session")
		}
	case "close":
		err = s.client.Close(ctx)
		if err == nil {
			fmt.Fprintln(s.out, "Session closed")
		}
	case "quit", "exit", "q":
		return true
	default:
		err = fmt.Errorf("unknown command %q (type 'help')", cmd)
	}

	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
	}
	return false
}

func (s *shell) help() {
	fmt.Fprintln(s.out, "Commands:")
	for _, c := range shellCommands {
		fmt.Fprintf(s.out, "  %-26s %s\n", c.usage, c.help)
	}
}

func (s *shell) info(ctx context.Context) {
	fmt.Fprintf(s.out, "Name:     %s\n", s.client.FriendlyName(ctx))
	fmt.Fprintf(s.out, "Power:    %s\n", onOff(s.client.Power(ctx)))
	fmt.Fprintf(s.out, "Mode:     %s\n", s.client.Mode(ctx))
	fmt.Fprintf(s.out, "Volume:   %d/%d\n", s.client.Volume(ctx), s.client.VolumeSteps(ctx))
	fmt.Fprintf(s.out, "Mute:     %s\n", onOff(s.client.Mute(ctx)))
	fmt.Fprintf(s.out, "Status:   %s\n", s.client.PlayStatus(ctx))
	if name := s.client.PlayName(ctx); name != "" {
		fmt.Fprintf(s.out, "Playing:  %s\n", name)
	}
	if text := s.client.PlayText(ctx); text != "" {
		fmt.Fprintf(s.out, "Text:     %s\n", text)
	}
}

func (s *shell) get(ctx context.Context, args []string) error {
	if len(args) == 0 || len(args) > 2 {
		return fmt.Errorf("usage: get <path> [u8|u32|text]")
	}
	path := args[0]
	kind := "u8"
	if len(args) == 2 {
		kind = strings.ToLower(args[1])
	}

	switch kind {
	case "u8":
		v, err := s.client.GetU8(ctx, path)
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, v)
	case "u32":
		v, err := s.client.GetU32(ctx, path)
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, v)
	case "text":
		v, err := s.client.GetText(ctx, path)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%q\n", v)
	default:
		return fmt.Errorf("unknown value type %q", kind)
	}
	return nil
}

func (s *shell) set(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: set <path> <value>")
	}
	ok, err := s.client.Set(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	s.result(ok)
	return nil
}

func (s *shell) list(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: list <path>")
	}
	items, err := s.client.GetList(ctx, args[0])
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(s.out, "(empty)")
		return nil
	}
	for _, item := range items {
		names := make([]string, 0, len(item.Fields))
		for name := range item.Fields {
			names = append(names, name)
		}
		sort.Strings(names)

		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%q", name, item.Text(name)))
		}
		fmt.Fprintf(s.out, "%3d  %s\n", item.Band, strings.Join(parts, " "))
	}
	return nil
}

// toggle shows an on/off node, or sets it when given an argument.
func (s *shell) toggle(ctx context.Context, args []string,
	get func(context.Context) bool, set func(context.Context, bool) bool) error {
	if len(args) == 0 {
		fmt.Fprintln(s.out, onOff(get(ctx)))
		return nil
	}
	on, err := parseOnOff(args[0])
	if err != nil {
		return err
	}
	s.result(set(ctx, on))
	return nil
}

func (s *shell) volume(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(s.out, "%d/%d\n", s.client.Volume(ctx), s.client.VolumeSteps(ctx))
		return nil
	}
	level, err := strconv.Atoi(args[0])
	if err != nil || level < 0 {
		return fmt.Errorf("invalid volume %q", args[0])
	}
	if steps := s.client.VolumeSteps(ctx); steps > 0 && level >= steps {
		return fmt.Errorf("volume %d out of range 0-%d", level, steps-1)
	}
	s.result(s.client.SetVolume(ctx, level))
	return nil
}

func (s *shell) mode(ctx context.Context, args []string) error {
	if len(args) == 0 {
		mode := s.client.Mode(ctx)
		if mode == "" {
			mode = "(unknown)"
		}
		fmt.Fprintln(s.out, mode)
		return nil
	}
	label := strings.Join(args, " ")
	for _, m := range s.client.ModeList(ctx) {
		if strings.EqualFold(m, label) {
			s.result(s.client.SetMode(ctx, m))
			return nil
		}
	}
	return fmt.Errorf("unknown mode %q (see 'modes')", label)
}

func (s *shell) sleep(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(s.out, "%ds\n", s.client.Sleep(ctx))
		return nil
	}
	seconds, err := strconv.Atoi(args[0])
	if err != nil || seconds < 0 {
		return fmt.Errorf("invalid sleep time %q", args[0])
	}
	s.result(s.client.SetSleep(ctx, seconds))
	return nil
}

func (s *shell) name(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(s.out, s.client.FriendlyName(ctx))
		return nil
	}
	s.result(s.client.SetFriendlyName(ctx, strings.Join(args, " ")))
	return nil
}

func (s *shell) printLabels(labels []string) {
	if len(labels) == 0 {
		fmt.Fprintln(s.out, "(none)")
		return
	}
	for i, l := range labels {
		fmt.Fprintf(s.out, "%3d  %s\n", i, l)
	}
}

func (s *shell) result(ok bool) {
	if ok {
		fmt.Fprintln(s.out, "OK")
	} else {
		fmt.Fprintln(s.out, "Rejected")
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "1", "true", "yes":
		return true, nil
	case "off", "0", "false", "no":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}
