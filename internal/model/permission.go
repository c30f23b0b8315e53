package model

// Permission represents a string code for a specific system action.
type Permission string

const (
	// PermissionExamsRead allows viewing graded results of an exam.
	PermissionExamsRead Permission = "exams:read"

	// PermissionExamsMonitor allows attaching to the live proctoring feed.
	PermissionExamsMonitor Permission = "exams:monitor"

	// PermissionSettingsRead allows viewing application settings.
	PermissionSettingsRead Permission = "settings:read"

	// PermissionSettingsWrite allows editing application settings.
	PermissionSettingsWrite Permission = "settings:write"
)

// AllPermissions lists every permission; the dev token command grants these to admins.
var AllPermissions = []Permission{
	PermissionExamsRead,
	PermissionExamsMonitor,
	PermissionSettingsRead,
	PermissionSettingsWrite,
}
