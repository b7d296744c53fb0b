// Package logging builds the zerolog logger shared by every command.
package logging
