package rcl

import (
	"strings"

	"github.com/roach88/rclgo/internal/names"
)

// ParamOverride is a parameter assignment given with "-p [node:]name:=value".
type ParamOverride struct {
	Node  string
	Name  string
	Value string
}

// ROSArgs holds everything parsed out of --ros-args sections.
type ROSArgs struct {
	Remaps   []names.Rule
	Params   []ParamOverride
	LogLevel string
	Enclave  string
}

// ParamsFor returns the parameter overrides that apply to nodeName. Later
// assignments win.
func (a *ROSArgs) ParamsFor(nodeName string) map[string]string {
	out := make(map[string]string)
	if a == nil {
		return out
	}
	for _, p := range a.Params {
		if p.Node == "" || p.Node == nodeName {
			out[p.Name] = p.Value
		}
	}
	return out
}

const (
	rosArgsFlag = "--ros-args"
	rosArgsEnd  = "--"
)

// ParseROSArgs extracts ROS arguments from a command line.
//
// Arguments outside "--ros-args ... [--]" sections are ignored. Inside a
// section the following are understood:
//
//	-r, --remap [node:]from:=to
//	-p, --param [node:]name:=value
//	--log-level level
//	-e, --enclave path
//
// A flag missing its value or with a malformed value is an INVALID_ROS_ARGS
// error. Anything else in a section is collected and reported as an
// *UnknownROSArgsError.
func ParseROSArgs(args []string) (*ROSArgs, error) {
	out := &ROSArgs{}
	var unknown []string

	inSection := false
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !inSection {
			if arg == rosArgsFlag {
				inSection = true
			}
			continue
		}

		switch arg {
		case rosArgsEnd:
			inSection = false
			continue
		case rosArgsFlag:
			continue
		}

		// Long flags also accept --flag=value.
		flag, inline, hasInline := arg, "", false
		if strings.HasPrefix(arg, "--") {
			flag, inline, hasInline = strings.Cut(arg, "=")
		}

		value := func() (string, error) {
			if hasInline {
				return inline, nil
			}
			if i+1 >= len(args) || args[i+1] == rosArgsEnd || args[i+1] == rosArgsFlag {
				return "", newError(ErrCodeInvalidROSArgs, "argument %s requires a value", flag)
			}
			i++
			return args[i], nil
		}

		switch flag {
		case "-r", "--remap":
			v, err := value()
			if err != nil {
				return nil, err
			}
			rule, err := names.ParseRule(v)
			if err != nil {
				return nil, wrapError(ErrCodeInvalidROSArgs, err, "invalid remap rule %q", v)
			}
			out.Remaps = append(out.Remaps, rule)
		case "-p", "--param":
			v, err := value()
			if err != nil {
				return nil, err
			}
			p, err := parseParam(v)
			if err != nil {
				return nil, err
			}
			out.Params = append(out.Params, p)
		case "--log-level":
			v, err := value()
			if err != nil {
				return nil, err
			}
			switch strings.ToLower(v) {
			case "debug", "info", "warn", "warning", "error", "fatal":
				out.LogLevel = strings.ToLower(v)
			default:
				return nil, newError(ErrCodeInvalidROSArgs, "invalid log level %q", v)
			}
		case "-e", "--enclave":
			v, err := value()
			if err != nil {
				return nil, err
			}
			if !strings.HasPrefix(v, "/") {
				return nil, newError(ErrCodeInvalidROSArgs, "enclave %q must be absolute", v)
			}
			out.Enclave = v
		default:
			unknown = append(unknown, arg)
		}
	}

	if len(unknown) > 0 {
		return nil, &UnknownROSArgsError{Args: unknown}
	}
	return out, nil
}

func parseParam(s string) (ParamOverride, error) {
	lhs, value, ok := strings.Cut(s, ":=")
	if !ok || lhs == "" {
		return ParamOverride{}, newError(ErrCodeInvalidROSArgs, "parameter %q must have the form name:=value", s)
	}
	var p ParamOverride
	if node, name, found := strings.Cut(lhs, ":"); found {
		p.Node, p.Name = node, name
	} else {
		p.Name = lhs
	}
	if p.Name == "" {
		return ParamOverride{}, newError(ErrCodeInvalidROSArgs, "parameter %q has an empty name", s)
	}
	p.Value = value
	return p, nil
}

// RemoveROSArgs returns args with every --ros-args section removed.
func RemoveROSArgs(args []string) []string {
	out := make([]string, 0, len(args))
	inSection := false
	for _, arg := range args {
		switch {
		case arg == rosArgsFlag:
			inSection = true
		case inSection && arg == rosArgsEnd:
			inSection = false
		case !inSection:
			out = append(out, arg)
		}
	}
	return out
}
