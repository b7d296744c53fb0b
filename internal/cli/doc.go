// Package cli wires together the Cobra command tree for the triage binary.
//
// It defines the root command and its subcommands (analyze, todo, config,
// cache, models, history, hook, version), binds flags, reads configuration,
// builds the analysis pipeline and maps outcomes to exit codes.
package cli
