// Package hwprobe answers one question at startup: is the sensor/actuator
// hardware this binary was built for actually plugged in? Used to decide
// between the real I2C dial/bell drivers and their software fallbacks
// (spec §4.B, §4.C: "no hardware detected at startup").
//
// Grounded on doismellburning-samoyed's go.mod carrying
// github.com/jochenvg/go-udev for exactly this kind of presence check
// before committing to a hardware code path.
package hwprobe

import "github.com/jochenvg/go-udev"

// HasSubsystem reports whether any device under the given udev subsystem
// (e.g. "i2c-dev", "tty") is currently present.
func HasSubsystem(subsystem string) bool {
	u := udev.Udev{}
	e := u.NewEnumerate()
	if err := e.AddMatchSubsystem(subsystem); err != nil {
		return false
	}
	devices, err := e.Devices()
	if err != nil {
		return false
	}
	return len(devices) > 0
}
