package site

// Config holds the options for a site build.
type Config struct {
	// SourceRoot is the directory holding the site's source files.
	SourceRoot string `json:"source_root" yaml:"source_root" toml:"source_root"`

	// BuildRoot is the directory generated files are written to. It may live
	// inside SourceRoot, in which case it is skipped while scanning.
	BuildRoot string `json:"build_root" yaml:"build_root" toml:"build_root"`

	// Processors lists the processors to enable, by registered name. For each
	// source the first processor that accepts it wins, so fallbacks such as
	// "copy" belong at the end.
	Processors []string `json:"processors" yaml:"processors" toml:"processors"`

	// Ignore holds filepath.Match patterns matched against base names.
	// Files and directories starting with a dot are always ignored.
	Ignore []string `json:"ignore" yaml:"ignore" toml:"ignore"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		SourceRoot: "./source",
		BuildRoot:  "./build",
		Processors: []string{"jinja", "copy"},
		Ignore:     []string{"*~", "*.swp"},
	}
}
