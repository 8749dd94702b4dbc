package conformance

// Suite is one YAML fixture file.
type Suite struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Tests       []Case `yaml:"tests"`
}

// Case is a single program run.
type Case struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description,omitempty"`
	Skip        interface{}       `yaml:"skip,omitempty"` // bool or string
	Source      string            `yaml:"source"`
	Modules     map[string]string `yaml:"modules,omitempty"` // extra listings reachable through CALLMF
	Args        []string          `yaml:"args,omitempty"`
	Config      CaseConfig        `yaml:"config,omitempty"`
	Expect      Expectation       `yaml:"expect"`
}

// CaseConfig overrides executor defaults for one case.
type CaseConfig struct {
	RecursionLimit int `yaml:"recursion_limit,omitempty"`
	StackLimit     int `yaml:"stack_limit,omitempty"`
}

// Expectation describes how a run must end. Value, Exception, Exit and
// Error are mutually exclusive; Output may accompany any of them.
type Expectation struct {
	Value     *string  `yaml:"value,omitempty"`     // printed form of the result
	Output    *string  `yaml:"output,omitempty"`    // everything written by builtin$print
	Exception string   `yaml:"exception,omitempty"` // uncaught exception name
	Info      *string  `yaml:"info,omitempty"`
	Code      string   `yaml:"code,omitempty"`
	Trace     []string `yaml:"trace,omitempty"` // "module:pc", innermost first
	Exit      *int     `yaml:"exit,omitempty"`
	Error     string   `yaml:"error,omitempty"` // assemble|bytecode|internal
}

// IsSkipped returns true if this case should be skipped.
func (c *Case) IsSkipped() (bool, string) {
	switch v := c.Skip.(type) {
	case bool:
		if v {
			return true, "skipped"
		}
	case string:
		return true, v
	}
	return false, ""
}
