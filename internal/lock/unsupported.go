package lock

import "context"

// unsupported fails every call with ErrUnsupported. It is what a platform
// without an app-blocking bridge gets.
type unsupported struct{ platform string }

// Unsupported returns the fail-fast capability for platform.
func Unsupported(platform string) Capability { return unsupported{platform: platform} }

func (u unsupported) fail(op string) error {
	return &Error{Op: op, Code: CodeUnavailable, Message: "app blocking is not available on " + u.platform}
}

func (u unsupported) Platform() string { return u.platform }

func (u unsupported) RequestAuthorization(context.Context) (bool, error) {
	return false, u.fail("request authorization")
}

func (u unsupported) PresentPicker(context.Context, string) (Selection, error) {
	return Selection{}, u.fail("present picker")
}

func (u unsupported) StartSchedule(context.Context, Window) error {
	return u.fail("start schedule")
}

func (u unsupported) StopSchedule(context.Context, string) error { return u.fail("stop schedule") }

func (u unsupported) StopAllSchedules(context.Context) error { return u.fail("stop all schedules") }

func (u unsupported) ActiveSchedules(context.Context) ([]string, error) {
	return nil, u.fail("active schedules")
}

func (u unsupported) ApplyShield(context.Context, string) error { return u.fail("apply shield") }

func (u unsupported) RemoveShield(context.Context) error { return u.fail("remove shield") }

func (u unsupported) Status(context.Context) (Status, error) {
	return Status{}, u.fail("status")
}
