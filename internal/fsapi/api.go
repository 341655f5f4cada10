package fsapi

import "context"

// Node paths of the implemented API calls.
const (
	// sys
	PathFriendlyName = "netRemote.sys.info.friendlyName"
	PathPower        = "netRemote.sys.power"
	PathMode         = "netRemote.sys.mode"
	PathValidModes   = "netRemote.sys.caps.validModes"
	PathEqualisers   = "netRemote.sys.caps.eqPresets"
	PathSleep        = "netRemote.sys.sleep"

	// volume
	PathVolumeSteps = "netRemote.sys.caps.volumeSteps"
	PathVolume      = "netRemote.sys.audio.volume"
	PathMute        = "netRemote.sys.audio.mute"

	// play
	PathPlayStatus   = "netRemote.play.status"
	PathPlayName     = "netRemote.play.info.name"
	PathPlayControl  = "netRemote.play.control"
	PathPlayPosition = "netRemote.play.position"

	// info
	PathPlayText     = "netRemote.play.info.text"
	PathPlayArtist   = "netRemote.play.info.artist"
	PathPlayAlbum    = "netRemote.play.info.album"
	PathPlayGraphic  = "netRemote.play.info.graphicUri"
	PathPlayDuration = "netRemote.play.info.duration"
)

// PlayState is the human-readable value of netRemote.play.status.
type PlayState string

// Play states reported by the device.
const (
	PlayStopped PlayState = "stopped"
	PlayUnknown PlayState = "unknown"
	PlayPlaying PlayState = "playing"
	PlayPaused  PlayState = "paused"
)

var playStates = map[uint8]PlayState{
	0: PlayStopped,
	1: PlayUnknown,
	2: PlayPlaying,
	3: PlayPaused,
}

// Control is a value accepted by netRemote.play.control.
type Control int

// Player controls.
const (
	ControlPlay     Control = 1
	ControlPause    Control = 2
	ControlNext     Control = 3
	ControlPrevious Control = 4
)

// The accessors below never return errors. Failures are logged by Call and
// collapsed to the zero value of the result type.

// FriendlyName returns the device name.
func (c *Client) FriendlyName(ctx context.Context) string {
	v, _ := c.GetText(ctx, PathFriendlyName)
	return v
}

// SetFriendlyName renames the device.
func (c *Client) SetFriendlyName(ctx context.Context, name string) bool {
	ok, _ := c.Set(ctx, PathFriendlyName, name)
	return ok
}

// Power reports whether the device is on.
func (c *Client) Power(ctx context.Context) bool {
	v, err := c.GetU8(ctx, PathPower)
	return err == nil && v != 0
}

// SetPower switches the device on or off.
func (c *Client) SetPower(ctx context.Context, on bool) bool {
	ok, _ := c.Set(ctx, PathPower, boolToInt(on))
	return ok
}

// ModeList returns the labels of the supported modes.
func (c *Client) ModeList(ctx context.Context) []string {
	return CollectLabels(c.Modes(ctx))
}

// Mode returns the label of the active mode, or "" if it cannot be resolved.
func (c *Client) Mode(ctx context.Context) string {
	band, err := c.GetU32(ctx, PathMode)
	if err != nil {
		return ""
	}
	for _, m := range c.Modes(ctx) {
		if m.Band == int(band) {
			return m.Label()
		}
	}
	return ""
}

// SetMode activates the mode with the given label. An unknown label is sent
// to the device as band -1.
func (c *Client) SetMode(ctx context.Context, label string) bool {
	band := -1
	for _, m := range c.Modes(ctx) {
		if m.Label() == label {
			band = m.Band
		}
	}
	ok, _ := c.Set(ctx, PathMode, band)
	return ok
}

// EqualiserList returns the labels of the supported equaliser presets.
func (c *Client) EqualiserList(ctx context.Context) []string {
	return CollectLabels(c.Equalisers(ctx))
}

// Volume returns the current volume level, 0 on failure.
func (c *Client) Volume(ctx context.Context) int {
	v, err := c.GetU8(ctx, PathVolume)
	if err != nil {
		return 0
	}
	return int(v)
}

// SetVolume sets the volume level (0..VolumeSteps-1).
func (c *Client) SetVolume(ctx context.Context, level int) bool {
	ok, _ := c.Set(ctx, PathVolume, level)
	return ok
}

// Mute reports whether the device is muted.
func (c *Client) Mute(ctx context.Context) bool {
	v, err := c.GetU8(ctx, PathMute)
	return err == nil && v != 0
}

// SetMute mutes or unmutes the device.
func (c *Client) SetMute(ctx context.Context, muted bool) bool {
	ok, _ := c.Set(ctx, PathMute, boolToInt(muted))
	return ok
}

// Sleep returns the remaining sleep timer in seconds (0 if unset or unknown).
func (c *Client) Sleep(ctx context.Context) int {
	v, _ := c.GetU32(ctx, PathSleep)
	return int(v)
}

// SetSleep sets the sleep timer in seconds; 0 cancels it.
func (c *Client) SetSleep(ctx context.Context, seconds int) bool {
	ok, _ := c.Set(ctx, PathSleep, seconds)
	return ok
}

// PlayStatus returns the play state, or "" if unknown.
func (c *Client) PlayStatus(ctx context.Context) PlayState {
	v, err := c.GetU8(ctx, PathPlayStatus)
	if err != nil {
		return ""
	}
	return playStates[v]
}

// PlayName returns the name of the current item (station, track).
func (c *Client) PlayName(ctx context.Context) string {
	v, _ := c.GetText(ctx, PathPlayName)
	return v
}

// PlayText returns the text associated with the current item.
func (c *Client) PlayText(ctx context.Context) string {
	v, _ := c.GetText(ctx, PathPlayText)
	return v
}

// PlayArtist returns the artist of the current track.
func (c *Client) PlayArtist(ctx context.Context) string {
	v, _ := c.GetText(ctx, PathPlayArtist)
	return v
}

// PlayAlbum returns the album of the current track.
func (c *Client) PlayAlbum(ctx context.Context) string {
	v, _ := c.GetText(ctx, PathPlayAlbum)
	return v
}

// PlayGraphic returns the artwork URI of the current item.
func (c *Client) PlayGraphic(ctx context.Context) string {
	v, _ := c.GetText(ctx, PathPlayGraphic)
	return v
}

// PlayDuration returns the duration of the current item in milliseconds.
func (c *Client) PlayDuration(ctx context.Context) int {
	v, _ := c.GetU32(ctx, PathPlayDuration)
	return int(v)
}

// PlayPosition returns the playback position in milliseconds.
func (c *Client) PlayPosition(ctx context.Context) int {
	v, _ := c.GetU32(ctx, PathPlayPosition)
	return int(v)
}

// PlayControl sends a player control.
func (c *Client) PlayControl(ctx context.Context, ctl Control) bool {
	ok, _ := c.Set(ctx, PathPlayControl, int(ctl))
	return ok
}

// Play resumes playback.
func (c *Client) Play(ctx context.Context) bool {
	return c.PlayControl(ctx, ControlPlay)
}

// Pause pauses playback.
func (c *Client) Pause(ctx context.Context) bool {
	return c.PlayControl(ctx, ControlPause)
}

// Forward skips to the next item.
func (c *Client) Forward(ctx context.Context) bool {
	return c.PlayControl(ctx, ControlNext)
}

// Rewind returns to the previous item.
func (c *Client) Rewind(ctx context.Context) bool {
	return c.PlayControl(ctx, ControlPrevious)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
