// Package flagx parses the subset of command-line flags a component owns,
// leaving everything else to other parsers in the same binary.
package flagx

import (
	"flag"
	"io"
	"strings"
)

// FilterArgs returns the arguments in args that belong to one of
// allowedFlags, together with their values.
//
// Supported formats:
//  1. Flag and value as separate arguments:  -c conf.json
//  2. Flag and value combined with '=':      --config=conf.json
//
// A token following an allowed flag is treated as its value unless it starts
// with '-'.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if name, _, ok := strings.Cut(arg, "="); ok && strings.HasPrefix(arg, "-") {
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := allowed[arg]; !ok {
			continue
		}
		filtered = append(filtered, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			filtered = append(filtered, args[i+1])
			i++
		}
	}

	return filtered
}

// NewFlagSet returns a silent FlagSet that reports errors instead of exiting,
// suitable for parsing a FilterArgs result.
func NewFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// ConfigPath extracts the JSON config file path given via -c or -config.
// It returns an empty string when neither flag is present.
func ConfigPath(args []string) string {
	return stringFlag(args, "c", "config")
}

// EnvFilePath extracts the dotenv file path given via -env.
func EnvFilePath(args []string) string {
	return stringFlag(args, "env", "env")
}

func stringFlag(args []string, short, long string) string {
	var value string

	fs := NewFlagSet(long)
	fs.StringVar(&value, long, "", "")
	if short != long {
		fs.StringVar(&value, short, "", "")
	}
	_ = fs.Parse(FilterArgs(args, []string{"-" + short, "-" + long, "--" + long}))

	return value
}
