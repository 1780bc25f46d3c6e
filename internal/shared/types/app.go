package types

import "time"

// AccessLevel controls who may request an output
type AccessLevel string

const (
	AccessPublic             AccessLevel = "public"
	AccessRequiresPermission AccessLevel = "requires_permission"
)

// App is an installable app descriptor
type App struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	Manifest  Manifest  `json:"manifest"`
	ModuleRef string    `json:"module_ref,omitempty"` // Path to the app's code module
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Manifest declares what an app exposes and depends on
type Manifest struct {
	Outputs      []Output     `json:"outputs,omitempty" yaml:"outputs"`
	Methods      []string     `json:"methods,omitempty" yaml:"methods"`
	Dependencies Dependencies `json:"dependencies" yaml:"dependencies"`
}

// Output is a named read accessor an app declares for other apps
type Output struct {
	AppID       string      `json:"app_id" yaml:"-"`
	OutputID    string      `json:"output_id" yaml:"id"`
	Name        string      `json:"name,omitempty" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description"`
	AccessLevel AccessLevel `json:"access_level" yaml:"access_level"`
}

// Dependencies groups manifest-declared app dependencies
type Dependencies struct {
	RequiredApps []AppRef `json:"required_apps,omitempty" yaml:"required_apps"`
	OptionalApps []AppRef `json:"optional_apps,omitempty" yaml:"optional_apps"`
}

// AppRef references another app by id and version
type AppRef struct {
	ID      string `json:"id" yaml:"id"`
	Version string `json:"version" yaml:"version"`
}

// Dependency is one resolved manifest dependency, required entries first
type Dependency struct {
	ID       string `json:"id"`
	Version  string `json:"version"`
	Required bool   `json:"required"`
}

// Flatten returns required dependencies in manifest order, then optional
// ones in manifest order.
func (d Dependencies) Flatten() []Dependency {
	deps := make([]Dependency, 0, len(d.RequiredApps)+len(d.OptionalApps))
	for _, ref := range d.RequiredApps {
		deps = append(deps, Dependency{ID: ref.ID, Version: ref.Version, Required: true})
	}
	for _, ref := range d.OptionalApps {
		deps = append(deps, Dependency{ID: ref.ID, Version: ref.Version, Required: false})
	}
	return deps
}

// DeclaresMethod reports whether the manifest allow-lists a method name
// for inter-app query dispatch.
func (m Manifest) DeclaresMethod(name string) bool {
	for _, method := range m.Methods {
		if method == name {
			return true
		}
	}
	return false
}
