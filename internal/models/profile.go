package models

// Profile defines which components run for a given deployment mode.
type Profile struct {
	Name string
	// Console drives the recovery and session flows from the terminal.
	Console bool
	// StubServer serves the identity contract from memory.
	StubServer bool
}
