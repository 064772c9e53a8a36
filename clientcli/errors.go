package clientcli

import "errors"

// Errors for profile operations.
var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrNoProfiles      = errors.New("no profiles configured")
	ErrProfileExists   = errors.New("profile already exists")
)

// Errors for configuration validation.
var (
	ErrTokenRequired   = errors.New("token is required")
	ErrConfigRequired  = errors.New("config is required")
	ErrInvalidEndpoint = errors.New("endpoint must be an http or https URL")
)

// Errors for input validation.
var (
	ErrNoPaths   = errors.New("no paths provided")
	ErrNoIDs     = errors.New("no file ids provided")
	ErrEmptyPath = errors.New("path is required")
	ErrEmptyName = errors.New("name is required")
)
