package transform

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/shlex"
)

// Placeholders every argument template must reference.
const (
	InputPhotoPlaceholder = "${INPUT_PHOTO}"
	OutputFilePlaceholder = "${OUTPUT_FILE}"
)

var placeholderRe = regexp.MustCompile(`\$\{[A-Z][A-Z0-9_]*\}`)

// SplitCommand splits an argument template without going through a shell.
func SplitCommand(command string) ([]string, error) {
	args, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("invalid command syntax: %w", err)
	}
	return args, nil
}

// ValidateArgs rejects templates that miss the input or output placeholder
// or that contain shell metacharacters outside of placeholders.
func ValidateArgs(args []string) error {
	hasInput, hasOutput := false, false
	for _, arg := range args {
		if strings.Contains(arg, InputPhotoPlaceholder) {
			hasInput = true
		}
		if strings.Contains(arg, OutputFilePlaceholder) {
			hasOutput = true
		}
		if rest := placeholderRe.ReplaceAllString(arg, ""); strings.ContainsAny(rest, "|&;`$()<>") {
			return fmt.Errorf("disallowed character found in argument: %s", arg)
		}
	}

	if !hasInput {
		return fmt.Errorf("command must include the input placeholder '%s'", InputPhotoPlaceholder)
	}
	if !hasOutput {
		return fmt.Errorf("command must include the output placeholder '%s'", OutputFilePlaceholder)
	}
	return nil
}

// ExpandArgs substitutes the placeholders of a validated template. Unknown
// placeholders are an error.
func ExpandArgs(args []string, req Request) ([]string, error) {
	values := map[string]string{
		InputPhotoPlaceholder: req.SourcePath,
		OutputFilePlaceholder: req.OutputPath,
	}
	for k, v := range req.Params {
		values["${"+k+"}"] = v
	}

	out := make([]string, len(args))
	for i, arg := range args {
		var missing string
		out[i] = placeholderRe.ReplaceAllStringFunc(arg, func(p string) string {
			v, ok := values[p]
			if !ok {
				missing = p
			}
			return v
		})
		if missing != "" {
			return nil, fmt.Errorf("no value for placeholder %s", missing)
		}
	}
	return out, nil
}
