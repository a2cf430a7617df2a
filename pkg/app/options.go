package app

import (
	cliflag "k8s.io/component-base/cli/flag"
)

// NamedFlagSetOptions is implemented by the options struct of every command.
type NamedFlagSetOptions interface {
	// Flags returns the flag sets grouped by section for help output.
	Flags() cliflag.NamedFlagSets

	// Complete fills in derived fields after flags and config are parsed.
	Complete() error

	// Validate checks the completed options.
	Validate() error
}
