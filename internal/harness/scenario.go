package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/setcode/internal/registry"
	"github.com/roach88/setcode/internal/upgrade"
)

// Scenario defines an upgrade scenario: images to deploy, one instance,
// a sequence of calls with expected outcomes, and assertions over the
// resulting trace and final instance.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Images lists code image files to deploy, in order.
	// Paths are relative to the scenario file location.
	Images []string `yaml:"images"`

	// Policy is the registry replacement policy: "any" (default) or
	// "same-program".
	Policy string `yaml:"policy,omitempty"`

	// Authorizer guards the upgrade capability: "owner" (default),
	// "permission", "any", or "allow-all".
	Authorizer string `yaml:"authorizer,omitempty"`

	// Permission is used by the "permission" and "any" authorizers.
	Permission string `yaml:"permission,omitempty"`

	// Instance is created before the first step.
	Instance InstanceSpec `yaml:"instance"`

	// Steps are the calls to make, in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and instance.
	// Supported types: state, code, trace_contains, trace_order, trace_count
	Assertions []Assertion `yaml:"assertions"`
}

// InstanceSpec describes the scenario's instance.
type InstanceSpec struct {
	// Image is the starting image as "name@version".
	Image string `yaml:"image"`

	// Owner instantiates the instance and is the default caller.
	Owner string `yaml:"owner"`

	// Args are passed to the program's initializer.
	Args map[string]any `yaml:"args,omitempty"`
}

// Step is one call on the instance.
type Step struct {
	// Call is the message name.
	Call string `yaml:"call"`

	// Args contains the message arguments.
	Args map[string]any `yaml:"args,omitempty"`

	// As is the caller identity. Defaults to the instance owner.
	As string `yaml:"as,omitempty"`

	// Permissions are the caller's permissions.
	Permissions []string `yaml:"permissions,omitempty"`

	// UpgradeTo names a deployed image ("name@version") and sets
	// args.code_hash to its hash.
	UpgradeTo string `yaml:"upgrade_to,omitempty"`

	// UpgradeToHash sets args.code_hash verbatim, for images that were
	// never deployed or malformed input.
	UpgradeToHash string `yaml:"upgrade_to_hash,omitempty"`

	// Expect specifies the expected receipt. If nil the call must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies expected receipt behavior.
type ExpectClause struct {
	// Case is the expected outcome (e.g., "Success", "UpgradeFailed").
	Case string `yaml:"case"`

	// Result contains expected result field values.
	// This is a subset match - only specified fields are validated.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates the trace or the final instance.
type Assertion struct {
	// Type specifies the assertion type:
	// - "state": final instance state contains Expect (subset match)
	// - "code": final code pointer names Image
	// - "trace_contains": a call to Message with Args appears in the trace
	// - "trace_order": Messages appear in this order
	// - "trace_count": Message appears exactly Count times (with Outcome, if set)
	Type string `yaml:"type"`

	// Message is the message name (trace_contains, trace_count).
	Message string `yaml:"message,omitempty"`

	// Args are the expected call arguments (trace_contains).
	Args map[string]any `yaml:"args,omitempty"`

	// Outcome restricts trace_count to receipts with this outcome.
	Outcome string `yaml:"outcome,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Messages is the expected message order (trace_order).
	Messages []string `yaml:"messages,omitempty"`

	// Expect contains expected state fields (state).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Image is the expected image as "name@version" (code).
	Image string `yaml:"image,omitempty"`
}

// Assertion type constants.
const (
	AssertState         = "state"
	AssertCode          = "code"
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
)

// LoadScenario reads and parses a scenario YAML file. Image paths are
// resolved relative to the scenario file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML, resolving image paths against basePath.
func ParseScenario(data []byte, basePath string) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i, p := range scenario.Images {
		if !filepath.IsAbs(p) && basePath != "" {
			scenario.Images[i] = filepath.Join(basePath, p)
		}
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
	if len(s.Images) == 0 {
		return fmt.Errorf("images list is required and must be non-empty")
	}
	for _, p := range s.Images {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return fmt.Errorf("image file not found: %s", p)
		}
	}
	if _, err := registry.ParsePolicy(s.Policy); err != nil {
		return err
	}
	if _, err := upgrade.ParseAuthorizer(s.Authorizer, s.Permission); err != nil {
		return err
	}

	if s.Instance.Image == "" {
		return fmt.Errorf("instance.image is required")
	}
	if s.Instance.Owner == "" {
		return fmt.Errorf("instance.owner is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i, step := range s.Steps {
		if step.Call == "" {
			return fmt.Errorf("steps[%d]: call is required", i)
		}
		if step.UpgradeTo != "" && step.UpgradeToHash != "" {
			return fmt.Errorf("steps[%d]: upgrade_to and upgrade_to_hash are mutually exclusive", i)
		}
		if (step.UpgradeTo != "" || step.UpgradeToHash != "") && step.Args["code_hash"] != nil {
			return fmt.Errorf("steps[%d]: code_hash given twice", i)
		}
		if step.Expect != nil && step.Expect.Case == "" {
			return fmt.Errorf("steps[%d].expect: case is required", i)
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: state requires expect", index)
		}
	case AssertCode:
		if a.Image == "" {
			return fmt.Errorf("assertions[%d]: code requires image", index)
		}
	case AssertTraceContains:
		if a.Message == "" {
			return fmt.Errorf("assertions[%d]: trace_contains requires message", index)
		}
	case AssertTraceOrder:
		if len(a.Messages) < 2 {
			return fmt.Errorf("assertions[%d]: trace_order requires at least 2 messages", index)
		}
	case AssertTraceCount:
		if a.Message == "" {
			return fmt.Errorf("assertions[%d]: trace_count requires message", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: trace_count count must be >= 0", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
