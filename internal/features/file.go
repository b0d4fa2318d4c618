package features

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"sharedauth/internal/auth/models"
	dErrors "sharedauth/pkg/domain-errors"
)

// FileOverrides is the YAML layout accepted by LoadFile:
//
//	define:
//	  - key: beta_banner
//	    enabled: true
//	flags:
//	  custom_providers: {enabled: true}
//	environments:
//	  staging:
//	    migration_mode: {enabled: true, rolloutPercentage: 10}
//	appTypes:
//	  partner:
//	    advanced_monitoring: {enabled: false}
type FileOverrides struct {
	Define       []Flag                           `yaml:"define"`
	Flags        map[Key]Patch                    `yaml:"flags"`
	Environments map[string]map[Key]Patch         `yaml:"environments"`
	AppTypes     map[models.AppType]map[Key]Patch `yaml:"appTypes"`
}

// LoadFile reads flag overrides from a YAML file.
func LoadFile(path string) (FileOverrides, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileOverrides{}, fmt.Errorf("read feature flag file: %w", err)
	}
	return ParseFile(raw)
}

// ParseFile decodes the YAML layout described on FileOverrides.
func ParseFile(raw []byte) (FileOverrides, error) {
	var out FileOverrides
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return FileOverrides{}, dErrors.Wrap(err, dErrors.CodeInvalidFlagConfig, "invalid feature flag file")
	}
	for app := range out.AppTypes {
		if !app.IsValid() {
			return FileOverrides{}, dErrors.New(dErrors.CodeInvalidFlagConfig, fmt.Sprintf("unknown app type %q in feature flag file", app))
		}
	}
	return out, nil
}

// ApplyTo layers the file over defs. The result still needs NewEngine to
// validate it.
func (o FileOverrides) ApplyTo(defs Definitions) Definitions {
	out := defs.clone()
	for _, f := range o.Define {
		out.Flags[f.Key] = f.clone()
	}
	for key, p := range o.Flags {
		if f, ok := out.Flags[key]; ok {
			out.Flags[key] = p.Apply(f)
			continue
		}
		out.Flags[key] = p.Apply(Flag{Key: key})
	}
	for env, patches := range o.Environments {
		if out.EnvOverrides[env] == nil {
			out.EnvOverrides[env] = map[Key]Patch{}
		}
		for key, p := range patches {
			out.EnvOverrides[env][key] = mergePatch(out.EnvOverrides[env][key], p)
		}
	}
	for app, patches := range o.AppTypes {
		if out.AppOverrides[app] == nil {
			out.AppOverrides[app] = map[Key]Patch{}
		}
		for key, p := range patches {
			out.AppOverrides[app][key] = mergePatch(out.AppOverrides[app][key], p)
		}
	}
	return out
}
