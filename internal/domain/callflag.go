package domain

// CallFlag describes which media kinds a session publishes in a call, and
// aggregated on the room which kinds are active at all.
type CallFlag int

const (
	CallFlagDisconnected CallFlag = 0
	CallFlagInCall       CallFlag = 1
	CallFlagWithAudio    CallFlag = 2
	CallFlagWithVideo    CallFlag = 4
	CallFlagWithPhone    CallFlag = 8
)

func (f CallFlag) InCall() bool    { return f != CallFlagDisconnected }
func (f CallFlag) WithAudio() bool { return f&CallFlagWithAudio != 0 }
func (f CallFlag) WithVideo() bool { return f&CallFlagWithVideo != 0 }
func (f CallFlag) WithPhone() bool { return f&CallFlagWithPhone != 0 }

func (f CallFlag) Merge(other CallFlag) CallFlag { return f | other }

// MaskedBy clears the audio/video bits the given permissions do not
// grant. A participant is never recorded as publishing a medium it may
// not publish.
func (f CallFlag) MaskedBy(p Permissions) CallFlag {
	masked := f
	if !p.CanPublishAudio() {
		masked &^= CallFlagWithAudio
	}
	if !p.CanPublishVideo() {
		masked &^= CallFlagWithVideo
	}
	return masked
}
