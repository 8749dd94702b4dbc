package dist

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chazu/neon/vm"
)

// Capabilities that are not builtin families.
const (
	CapabilityForeign = "ffi"    // CALLX
	CapabilityModules = "module" // CALLMF, which may load modules from disk
)

// CapabilityManifest declares what capabilities a module requires. Builtin
// capabilities are named after the family prefix: "file" for file$exists.
type CapabilityManifest struct {
	Required []string `cbor:"1,keyasint"`
}

// Has reports whether the manifest lists c.
func (m *CapabilityManifest) Has(c string) bool {
	for _, r := range m.Required {
		if r == c {
			return true
		}
	}
	return false
}

// ScanCapabilities walks the code of m and collects the capabilities its
// CALLP, CALLX and CALLMF instructions need. CALLP indexes are resolved
// through builtins; an index the table does not know is an error.
func ScanCapabilities(m *vm.Module, builtins *vm.BuiltinTable) (manifest *CapabilityManifest, err error) {
	defer func() {
		if r := recover(); r != nil {
			ie, ok := r.(*vm.InternalError)
			if !ok {
				panic(r)
			}
			err = fmt.Errorf("dist: scanning %s: %s at %d", m.Name, ie.Msg, ie.PC)
		}
	}()

	seen := make(map[string]bool)
	r := vm.NewBytecodeReader(m.Code)
	for r.HasMore() {
		op := r.ReadOpcode()
		ops := make([]int, 0, 3)
		for _, k := range op.Info().Operands {
			ops = append(ops, r.ReadOperand(k))
		}
		switch op {
		case vm.OpCallP:
			b, ok := builtins.Entry(ops[0])
			if !ok {
				return nil, fmt.Errorf("dist: %s calls unknown builtin %d", m.Name, ops[0])
			}
			family, _, _ := strings.Cut(b.Name, "$")
			seen[family] = true
		case vm.OpCallX:
			seen[CapabilityForeign] = true
		case vm.OpCallMF:
			seen[CapabilityModules] = true
		}
	}

	manifest = &CapabilityManifest{}
	for c := range seen {
		manifest.Required = append(manifest.Required, c)
	}
	sort.Strings(manifest.Required)
	return manifest, nil
}

// CapabilityPolicy controls which capabilities a received module may use.
// A nil AllowedCapabilities means "allow all".
type CapabilityPolicy struct {
	AllowedCapabilities map[string]bool // nil = allow all
	DeniedCapabilities  map[string]bool
}

// NewPermissivePolicy creates a policy that allows all capabilities.
func NewPermissivePolicy() *CapabilityPolicy {
	return &CapabilityPolicy{}
}

// NewRestrictedPolicy creates a policy that only allows the specified
// capabilities.
func NewRestrictedPolicy(allowed []string) *CapabilityPolicy {
	m := make(map[string]bool, len(allowed))
	for _, c := range allowed {
		m[c] = true
	}
	return &CapabilityPolicy{AllowedCapabilities: m}
}

// Check verifies that all capabilities required by a manifest are allowed
// by this policy. Returns an error naming the first denied capability.
func (p *CapabilityPolicy) Check(manifest *CapabilityManifest) error {
	if manifest == nil {
		return nil
	}
	for _, c := range manifest.Required {
		if p.DeniedCapabilities != nil && p.DeniedCapabilities[c] {
			return fmt.Errorf("dist: capability %q is explicitly denied", c)
		}
		if p.AllowedCapabilities != nil && !p.AllowedCapabilities[c] {
			return fmt.Errorf("dist: capability %q is not allowed", c)
		}
	}
	return nil
}

// Deny adds a capability to the deny list.
func (p *CapabilityPolicy) Deny(c string) {
	if p.DeniedCapabilities == nil {
		p.DeniedCapabilities = make(map[string]bool)
	}
	p.DeniedCapabilities[c] = true
}
