package backend

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// DefaultSystemCursorDirs lists the directories searched for system cursors
// when none are configured.
var DefaultSystemCursorDirs = []string{`C:\Windows\Cursors`}

// systemCursorFiles maps logical system cursor names to candidate file names,
// most specific first.
var systemCursorFiles = map[string][]string{
	"arrow":       {"aero_arrow.cur", "arrow_r.cur", "arrow_m.cur", "arrow_l.cur"},
	"ibeam":       {"beam_r.cur", "beam_m.cur", "beam_l.cur", "beam_i.cur"},
	"wait":        {"aero_busy.ani", "busy_r.cur", "busy_m.cur", "busy_l.cur", "hourglas.ani"},
	"crosshair":   {"cross_r.cur", "cross_m.cur", "cross_l.cur", "cross_i.cur"},
	"hand":        {"aero_link.cur", "hand.cur"},
	"help":        {"aero_helpsel.cur", "help_r.cur", "help_m.cur", "help_l.cur"},
	"no":          {"aero_unavail.cur", "no_r.cur", "no_m.cur", "no_l.cur"},
	"sizeall":     {"aero_move.cur", "move_r.cur", "move_m.cur", "move_l.cur"},
	"sizenesw":    {"aero_nesw.cur", "size1_r.cur", "size1_m.cur", "size1_l.cur"},
	"sizens":      {"aero_ns.cur", "size4_r.cur", "size4_m.cur", "size4_l.cur"},
	"sizenwse":    {"aero_nwse.cur", "size2_r.cur", "size2_m.cur", "size2_l.cur"},
	"sizewe":      {"aero_ew.cur", "size3_r.cur", "size3_m.cur", "size3_l.cur"},
	"uparrow":     {"aero_up.cur", "up_r.cur", "up_m.cur", "up_l.cur"},
	"appstarting": {"aero_working.ani", "wait_r.cur", "wait_m.cur", "wait_l.cur", "appstar.ani"},
	"pen":         {"aero_pen.cur", "pen_r.cur", "pen_m.cur", "pen_l.cur"},
}

// SystemCursorNames returns the supported system cursor names in sorted order.
func SystemCursorNames() []string {
	names := make([]string, 0, len(systemCursorFiles))
	for name := range systemCursorFiles {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// findSystemCursor returns the first existing file for name across dirs.
// It reports false when the name is unknown or no candidate exists.
func findSystemCursor(dirs []string, name string) (string, bool, bool) {
	candidates, known := systemCursorFiles[strings.ToLower(name)]
	if !known {
		return "", false, false
	}
	for _, dir := range dirs {
		for _, file := range candidates {
			path := filepath.Join(dir, file)
			if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
				return path, true, true
			}
		}
	}
	return "", true, false
}
