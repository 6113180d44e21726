package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rclgo/internal/launch"
)

// Scenario defines an executor scenario: a node graph, a sequence of
// steps that drive it, and assertions over the resulting dispatch trace.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Launch is a launch file for the node graph, relative to the
	// scenario file. Exactly one of Launch and Nodes is set.
	Launch string `yaml:"launch,omitempty"`

	// Executor overrides the executor of the launch description.
	Executor *launch.ExecutorSpec `yaml:"executor,omitempty"`

	// Nodes is an inline node graph in launch description form.
	Nodes map[string]any `yaml:"nodes,omitempty"`

	// Steps drive the graph. All time is simulated.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace.
	Assertions []Assertion `yaml:"assertions"`

	// Path is the file the scenario was loaded from.
	Path string `yaml:"-"`
}

// Step is one scenario step. Exactly one field is set.
type Step struct {
	// Advance moves simulated ROS time forward, e.g. "100ms".
	Advance string `yaml:"advance,omitempty"`

	// SpinOnce runs that many SpinOnce(0) calls.
	SpinOnce int `yaml:"spin_once,omitempty"`

	Publish  *PublishStep  `yaml:"publish,omitempty"`
	Trigger  *TriggerStep  `yaml:"trigger,omitempty"`
	FailNext *FailNextStep `yaml:"fail_next,omitempty"`
	Call     *CallStep     `yaml:"call,omitempty"`
}

// PublishStep publishes on a publisher of the graph. Message defaults to
// a launch.Count.
type PublishStep struct {
	Node      string `yaml:"node"`
	Publisher string `yaml:"publisher"`
	Message   any    `yaml:"message,omitempty"`
}

// TriggerStep triggers a guard condition.
type TriggerStep struct {
	Node  string `yaml:"node"`
	Guard string `yaml:"guard"`
}

// FailNextStep makes the next Count invocations of an entity fail, or
// panic when Panic is set. Count defaults to 1.
type FailNextStep struct {
	Node   string `yaml:"node"`
	Entity string `yaml:"entity"`
	Count  int    `yaml:"count,omitempty"`
	Panic  bool   `yaml:"panic,omitempty"`
}

// CallStep sends a request through a client. When Expect is set the call
// must have completed with that response by the end of the scenario; when
// ExpectError is set it must have failed.
type CallStep struct {
	Node        string `yaml:"node"`
	Client      string `yaml:"client"`
	Request     any    `yaml:"request"`
	Expect      any    `yaml:"expect,omitempty"`
	ExpectError bool   `yaml:"expect_error,omitempty"`
}

// Kind returns the name of the step's set field, or "" when none is set.
func (s Step) Kind() string {
	kinds := s.kinds()
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

func (s Step) kinds() []string {
	var kinds []string
	if s.Advance != "" {
		kinds = append(kinds, StepAdvance)
	}
	if s.SpinOnce != 0 {
		kinds = append(kinds, StepSpinOnce)
	}
	if s.Publish != nil {
		kinds = append(kinds, StepPublish)
	}
	if s.Trigger != nil {
		kinds = append(kinds, StepTrigger)
	}
	if s.FailNext != nil {
		kinds = append(kinds, StepFailNext)
	}
	if s.Call != nil {
		kinds = append(kinds, StepCall)
	}
	return kinds
}

// Step kinds.
const (
	StepAdvance  = "advance"
	StepSpinOnce = "spin_once"
	StepPublish  = "publish"
	StepTrigger  = "trigger"
	StepFailNext = "fail_next"
	StepCall     = "call"
)

// Assertion validates the final trace.
type Assertion struct {
	// Type specifies the assertion type:
	// - "dispatch_count": dispatches matching Node, Entity and Outcome number Count
	// - "dispatch_order": Entities were first dispatched in the given order
	// - "no_overlap": no two dispatches of a MutuallyExclusive group overlapped
	// - "error_count": Count dispatches failed or panicked
	Type string `yaml:"type"`

	// Node filters by fully qualified node name (dispatch_count, error_count).
	Node string `yaml:"node,omitempty"`

	// Entity filters by entity name (dispatch_count, error_count).
	Entity string `yaml:"entity,omitempty"`

	// Outcome filters by outcome: ok, error or panic (dispatch_count).
	Outcome string `yaml:"outcome,omitempty"`

	// Count is the expected number of matching dispatches.
	Count int `yaml:"count,omitempty"`

	// Entities lists "/node/entity" labels (dispatch_order).
	Entities []string `yaml:"entities,omitempty"`
}

// Assertion type constants.
const (
	AssertDispatchCount = "dispatch_count"
	AssertDispatchOrder = "dispatch_order"
	AssertNoOverlap     = "no_overlap"
	AssertErrorCount    = "error_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	scenario.Path = path
	if scenario.Launch != "" && !filepath.IsAbs(scenario.Launch) {
		scenario.Launch = filepath.Join(filepath.Dir(path), scenario.Launch)
	}
	if scenario.Launch != "" {
		if _, err := os.Stat(scenario.Launch); os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid scenario: launch file not found: %s", scenario.Launch)
		}
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML. Launch paths are left as written.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	switch {
	case s.Launch == "" && len(s.Nodes) == 0:
		return fmt.Errorf("one of launch or nodes is required")
	case s.Launch != "" && len(s.Nodes) > 0:
		return fmt.Errorf("launch and nodes are mutually exclusive")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, s Step) error {
	kinds := s.kinds()
	switch len(kinds) {
	case 0:
		return fmt.Errorf("steps[%d]: no step kind set", index)
	case 1:
	default:
		return fmt.Errorf("steps[%d]: more than one step kind set: %v", index, kinds)
	}

	switch kinds[0] {
	case StepAdvance:
		d, err := time.ParseDuration(s.Advance)
		if err != nil {
			return fmt.Errorf("steps[%d]: advance: %w", index, err)
		}
		if d < 0 {
			return fmt.Errorf("steps[%d]: advance must not be negative", index)
		}
	case StepSpinOnce:
		if s.SpinOnce < 0 {
			return fmt.Errorf("steps[%d]: spin_once must be positive", index)
		}
	case StepPublish:
		if s.Publish.Node == "" || s.Publish.Publisher == "" {
			return fmt.Errorf("steps[%d]: publish requires node and publisher", index)
		}
	case StepTrigger:
		if s.Trigger.Node == "" || s.Trigger.Guard == "" {
			return fmt.Errorf("steps[%d]: trigger requires node and guard", index)
		}
	case StepFailNext:
		if s.FailNext.Node == "" || s.FailNext.Entity == "" {
			return fmt.Errorf("steps[%d]: fail_next requires node and entity", index)
		}
		if s.FailNext.Count < 0 {
			return fmt.Errorf("steps[%d]: fail_next count must not be negative", index)
		}
	case StepCall:
		if s.Call.Node == "" || s.Call.Client == "" {
			return fmt.Errorf("steps[%d]: call requires node and client", index)
		}
		if s.Call.Expect != nil && s.Call.ExpectError {
			return fmt.Errorf("steps[%d]: call cannot set both expect and expect_error", index)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertDispatchCount, AssertErrorCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
		if a.Type == AssertErrorCount && a.Outcome != "" {
			return fmt.Errorf("assertions[%d]: outcome is not allowed for error_count", index)
		}
		switch a.Outcome {
		case "", "ok", "error", "panic":
		default:
			return fmt.Errorf("assertions[%d]: unknown outcome %q", index, a.Outcome)
		}
	case AssertDispatchOrder:
		if len(a.Entities) == 0 {
			return fmt.Errorf("assertions[%d]: entities list is required for dispatch_order", index)
		}
	case AssertNoOverlap:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
