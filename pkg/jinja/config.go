package jinja

// Config holds the configuration options for the Jinja processor.
type Config struct {
	// Extensions lists the file suffixes handled by the processor.
	Extensions []string `json:"extensions" yaml:"extensions" toml:"extensions"`

	// Autoescape turns on HTML escaping of every printed expression.
	Autoescape bool `json:"autoescape" yaml:"autoescape" toml:"autoescape"`

	// StrictUndefined makes references to undefined variables a render error
	// instead of an empty value.
	StrictUndefined bool `json:"strict_undefined" yaml:"strict_undefined" toml:"strict_undefined"`

	// TemplateOnlyVar names the variable that, when set to a truthy literal,
	// marks a file as a template used by other files. No output is written
	// for such files.
	TemplateOnlyVar string `json:"template_only_var" yaml:"template_only_var" toml:"template_only_var"`

	// ContextFunc names the template function that looks up contexts set by
	// other files. Only calls by this exact name with two literal arguments
	// are tracked as context dependencies. Calls through an alias, such as
	// {% set gc = getcontexts %}{{ gc("tag", "go") }}, still work but are not
	// tracked, so the page is not rebuilt when those contexts change.
	ContextFunc string `json:"context_func" yaml:"context_func" toml:"context_func"`
}

// DefaultConfig returns a Config with the default values.
func DefaultConfig() Config {
	return Config{
		Extensions:      []string{".html", ".htm"},
		Autoescape:      false,
		StrictUndefined: false,
		TemplateOnlyVar: "template_only",
		ContextFunc:     "getcontexts",
	}
}

// withDefaults fills empty fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if len(c.Extensions) == 0 {
		c.Extensions = def.Extensions
	}
	if c.TemplateOnlyVar == "" {
		c.TemplateOnlyVar = def.TemplateOnlyVar
	}
	if c.ContextFunc == "" {
		c.ContextFunc = def.ContextFunc
	}
	return c
}
