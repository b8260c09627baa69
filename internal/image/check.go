package image

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Instruction of a build file with its continuation lines joined
type Instruction struct {
	Line    int
	Command string
	Args    string
}

// Parse splits a build file into instructions
func Parse(r io.Reader) ([]Instruction, error) {
	var (
		instructions []Instruction
		current      strings.Builder
		start        int
	)

	scanner := bufio.NewScanner(r)
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimSpace(scanner.Text())

		if strings.HasPrefix(line, "#") || (line == "" && current.Len() == 0) {
			continue
		}
		if current.Len() == 0 {
			start = n
		}

		if strings.HasSuffix(line, "\\") {
			current.WriteString(strings.TrimSuffix(line, "\\"))
			current.WriteString(" ")
			continue
		}

		current.WriteString(line)
		instructions = append(instructions, newInstruction(start, current.String()))
		current.Reset()
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read Dockerfile")
	}

	if current.Len() != 0 {
		instructions = append(instructions, newInstruction(start, current.String()))
	}

	return instructions, nil
}

func newInstruction(line int, text string) Instruction {
	command, args, _ := strings.Cut(strings.TrimSpace(text), " ")
	return Instruction{
		Line:    line,
		Command: strings.ToUpper(command),
		Args:    strings.Join(strings.Fields(args), " "),
	}
}

// Check verifies a build file against the acceptance properties of the service image:
// a python base, requirements installed with pip, the port exposed and the server
// bound to it on every interface.
func Check(r io.Reader, opts Options) error {
	instructions, err := Parse(r)
	if err != nil {
		return err
	}

	var (
		result   *multierror.Error
		from     []Instruction
		exposed  bool
		installs bool
		entry    *Instruction
		cmd      *Instruction
	)

	for i := range instructions {
		in := instructions[i]
		switch in.Command {
		case "FROM":
			from = append(from, in)
			// only the final stage starts the server
			entry, cmd = nil, nil
		case "EXPOSE":
			for _, p := range strings.Fields(in.Args) {
				port, _, _ := strings.Cut(p, "/")
				if port == formatPort(opts.Port) {
					exposed = true
				}
			}
		case "RUN":
			if strings.Contains(in.Args, "pip install") && strings.Contains(in.Args, "-r "+opts.Requirements) {
				installs = true
			}
		case "ENTRYPOINT":
			entry = &instructions[i]
		case "CMD":
			cmd = &instructions[i]
		}
	}

	if len(from) == 0 {
		result = multierror.Append(result, errors.New("no FROM instruction"))
	} else if image := from[len(from)-1].Args; !strings.HasPrefix(image, "python:") && !strings.Contains(image, "/python:") {
		result = multierror.Append(result, errors.Errorf("line %d: final stage is built from %q, not a python image", from[len(from)-1].Line, image))
	}

	if !installs {
		result = multierror.Append(result, errors.Errorf("requirements are not installed with pip install -r %s", opts.Requirements))
	}

	if !exposed {
		result = multierror.Append(result, errors.Errorf("port %d is not exposed", opts.Port))
	}

	if entry == nil && cmd == nil {
		result = multierror.Append(result, errors.New("no CMD or ENTRYPOINT instruction"))
	} else if err := checkCommand(entry, cmd, opts); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}

// checkCommand checks the command the container starts with: the ENTRYPOINT followed by
// the CMD arguments, the CMD is ignored after a shell form ENTRYPOINT
func checkCommand(entry, cmd *Instruction, opts Options) error {
	var (
		args []string
		in   Instruction
	)
	if entry != nil {
		in = *entry
		entryArgs, exec := commandArgs(entry.Args)
		args = append(args, entryArgs...)
		if !exec {
			cmd = nil
		}
	}
	if cmd != nil {
		in = *cmd
		cmdArgs, _ := commandArgs(cmd.Args)
		args = append(args, cmdArgs...)
	}

	want := map[string]bool{
		opts.Server: false,
		opts.App:    false,
	}
	for _, arg := range args {
		if _, ok := want[arg]; ok {
			want[arg] = true
		}
	}
	for arg, found := range want {
		if !found {
			return errors.Errorf("line %d: %s does not run %s", in.Line, in.Command, arg)
		}
	}

	if flag(args, "--host") != "0.0.0.0" {
		return errors.Errorf("line %d: server is not bound to 0.0.0.0", in.Line)
	}
	if flag(args, "--port") != formatPort(opts.Port) {
		return errors.Errorf("line %d: server does not listen on port %d", in.Line, opts.Port)
	}
	return nil
}

// commandArgs reads the exec form, falling back to splitting the shell form
func commandArgs(args string) ([]string, bool) {
	var exec []string
	if err := json.Unmarshal([]byte(args), &exec); err == nil {
		return exec, true
	}
	return strings.Fields(args), false
}

func flag(args []string, name string) string {
	for i, arg := range args {
		if arg == name && i+1 < len(args) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(arg, name+"="); ok {
			return v
		}
	}
	return ""
}

func formatPort(port uint) string {
	return strconv.FormatUint(uint64(port), 10)
}

// String of an instruction as it would appear in a build file
func (in Instruction) String() string {
	return fmt.Sprintf("%s %s", in.Command, in.Args)
}
