package converter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/alessio/shellescape"
	"github.com/mattn/go-shellwords"

	"github.com/phrazzld/bookrender/internal/metadata"
)

// Template placeholders
const (
	PlaceholderInput  = "{INPUT}"
	PlaceholderOutput = "{OUTPUT}"
)

// placeholderRegex matches every placeholder in a single pass, so substituted
// values are never scanned for further placeholders.
var placeholderRegex = regexp.MustCompile(`\{(INPUT|OUTPUT|METADATA:([^}]+))\}`)

// Command is a fully expanded converter invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
}

// Argv returns the program name followed by its arguments.
func (c Command) Argv() []string {
	return append([]string{c.Name}, c.Args...)
}

// String renders the command as a shell-escaped line. It is meant for logs
// and diagnostics; the command itself is executed without a shell.
func (c Command) String() string {
	return shellescape.QuoteCommand(c.Argv())
}

// ParseTemplate splits a command template into words using shell quoting
// rules. Shell operators (pipes, redirections, command lists) and
// substitutions are rejected because the command never runs in a shell.
func ParseTemplate(template string) ([]string, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = false
	parser.ParseBacktick = false

	words, err := parser.Parse(template)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}

	if parser.Position >= 0 {
		return nil, fmt.Errorf("%w: shell operator at offset %d is not supported",
			ErrInvalidTemplate, parser.Position)
	}

	if len(words) == 0 || strings.TrimSpace(words[0]) == "" {
		return nil, fmt.Errorf("%w: empty command", ErrInvalidTemplate)
	}

	return words, nil
}

// BuildCommand expands a command template into an argument vector.
//
// {INPUT} and {OUTPUT} are replaced with the given paths. {METADATA:key} is
// replaced with md[key], or with the empty string when the key is absent. Each
// template word stays exactly one argument whatever the substituted values
// contain.
func BuildCommand(template, inputPath, outputPath string, md metadata.Metadata) (Command, error) {
	words, err := ParseTemplate(template)
	if err != nil {
		return Command{}, err
	}

	argv := make([]string, len(words))
	for i, word := range words {
		argv[i] = placeholderRegex.ReplaceAllStringFunc(word, func(match string) string {
			switch match {
			case PlaceholderInput:
				return inputPath
			case PlaceholderOutput:
				return outputPath
			}
			key := placeholderRegex.FindStringSubmatch(match)[2]
			return md.Get(key)
		})
	}

	if argv[0] == "" {
		return Command{}, fmt.Errorf("%w: program name expands to an empty string", ErrInvalidTemplate)
	}

	return Command{Name: argv[0], Args: argv[1:]}, nil
}
