package cli

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

// fileConfig mirrors setcode.toml:
//
//	db = "./setcode.db"
//	format = "text"
//	verbose = false
//	policy = "same-program"
//
//	[upgrade]
//	authorizer = "permission"
//	permission = "ops"
type fileConfig struct {
	DB      string `toml:"db"`
	Format  string `toml:"format"`
	Verbose bool   `toml:"verbose"`
	Policy  string `toml:"policy"`
	Upgrade struct {
		Authorizer string `toml:"authorizer"`
		Permission string `toml:"permission"`
	} `toml:"upgrade"`
}

// applyConfigFile loads path into opts. Flags set on the command line win
// over the file; unknown keys are an error.
func applyConfigFile(cmd *cobra.Command, path string, opts *RootOptions) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config %s: unknown key %q", path, undecoded[0].String())
	}

	apply := func(flag string, key []string, set func()) {
		if meta.IsDefined(key...) && !cmd.Flags().Changed(flag) {
			set()
		}
	}
	apply("db", []string{"db"}, func() { opts.Database = strings.TrimSpace(raw.DB) })
	apply("format", []string{"format"}, func() { opts.Format = strings.TrimSpace(raw.Format) })
	apply("verbose", []string{"verbose"}, func() { opts.Verbose = raw.Verbose })
	apply("policy", []string{"policy"}, func() { opts.Policy = strings.TrimSpace(raw.Policy) })
	apply("authorizer", []string{"upgrade", "authorizer"}, func() { opts.Authorizer = strings.TrimSpace(raw.Upgrade.Authorizer) })
	apply("permission", []string{"upgrade", "permission"}, func() { opts.Permission = strings.TrimSpace(raw.Upgrade.Permission) })
	return nil
}
