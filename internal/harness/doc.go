// Package harness runs upgrade scenarios against a real engine and
// registry and validates the resulting journal.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	images:
//	  - ../../programs/counter/images/v1.cue
//	  - ../../programs/counter/images/v2.cue
//	policy: same-program        # optional, default "any"
//	authorizer: owner           # optional: owner, permission, any, allow-all
//	instance:
//	  image: counter@1
//	  owner: alice
//	  args: { count: 5 }
//	steps:
//	  - call: increment
//	  - call: upgrade
//	    upgrade_to: counter@2
//	  - call: upgrade
//	    as: mallory
//	    upgrade_to: counter@1
//	    expect:
//	      case: Unauthorized
//	assertions:
//	  - type: state
//	    expect: { count: 6 }
//	  - type: code
//	    image: counter@2
//
// A step without an expect clause must succeed. upgrade_to fills in
// args.code_hash with a deployed image's hash; upgrade_to_hash passes a
// hash verbatim.
//
// # Assertion Types
//
//   - state: final instance state contains the expected fields
//   - code: the instance points at the named image after the last step
//   - trace_contains: a call with matching message and args appears
//   - trace_order: calls appear in the given order
//   - trace_count: a message appears exactly N times, optionally per outcome
//
// # Deterministic Testing
//
// Each scenario runs in its own in-memory SQLite database with sequential
// instance ids, so the same scenario always produces the same call ids
// and seqs. Traces render code hashes as "name@version", which keeps
// golden files stable when image sources are edited.
//
// # Usage
//
//	scenario, result, err := harness.RunFile(ctx, "testdata/scenarios/upgrade_success.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
