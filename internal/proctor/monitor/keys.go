package monitor

import "strings"

const keyPrintScreen = "PrintScreen"

var (
	ctrlBlocked      = map[string]bool{"c": true, "v": true, "x": true, "a": true, "p": true, "u": true, "s": true}
	ctrlShiftBlocked = map[string]bool{"i": true, "j": true, "c": true}
)

// isRestricted reports whether the key combination is suppressed:
// clipboard, select-all, print, view-source and save shortcuts, devtools
// shortcuts and force-reload.
func isRestricted(ev KeyEvent) bool {
	key := ev.Key()
	lower := strings.ToLower(key)
	switch {
	case key == "F12":
		return true
	case ev.Ctrl() && ev.Shift() && ctrlShiftBlocked[lower]:
		return true
	case ev.Ctrl() && ctrlBlocked[lower]:
		return true
	case ev.Ctrl() && key == "F5":
		return true
	}
	return false
}

func isScreenshot(ev KeyEvent) bool {
	return ev.Key() == keyPrintScreen
}
