package model

import "time"

// Setting keys stored in app_settings.
const (
	SettingSchoolName    = "school_name"
	SettingAppName       = "app_name"
	SettingMaxViolations = "max_violations"
	SettingPassThreshold = "pass_threshold"
)

// AppSetting represents a key-value pair for global application configuration.
type AppSetting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AppSettings is the typed view of app_settings shared by the server components.
type AppSettings struct {
	SchoolName    string `json:"school_name"`
	AppName       string `json:"app_name"`
	MaxViolations int    `json:"max_violations"`
	PassThreshold int    `json:"pass_threshold"`
}

// UpdateSettingsRequest is the payload for updating settings. Nil fields are left unchanged.
type UpdateSettingsRequest struct {
	SchoolName    *string `json:"school_name" binding:"omitempty,max=255"`
	AppName       *string `json:"app_name" binding:"omitempty,max=255"`
	MaxViolations *int    `json:"max_violations" binding:"omitempty,min=1,max=20"`
	PassThreshold *int    `json:"pass_threshold" binding:"omitempty,min=0,max=100"`
}
