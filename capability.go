package netconf

import "strings"

const (
	baseCap       = "urn:ietf:params:netconf:base"
	stdCapPrefix  = "urn:ietf:params:netconf:capability"
	baseNetconfNs = "urn:ietf:params:xml:ns:netconf:base:1.0"
)

// BaseCapability is the prefix of the base protocol capabilities, followed by
// the version (`:1.0` or `:1.1`).
const BaseCapability = baseCap

const (
	WritableRunningCapability = "urn:ietf:params:netconf:capability:writable-running:1.0"
	StartupCapability         = "urn:ietf:params:netconf:capability:startup:1.0"
	CandidateCapability       = "urn:ietf:params:netconf:capability:candidate:1.0"
	RollbackOnErrorCapability = "urn:ietf:params:netconf:capability:rollback-on-error:1.0"
	URLCapability             = "urn:ietf:params:netconf:capability:url:1.0"
	ConfirmedCommitCapability = "urn:ietf:params:netconf:capability:confirmed-commit:1.1"
	ValidateOldCapability     = "urn:ietf:params:netconf:capability:validate:1.0"
	ValidateCapability        = "urn:ietf:params:netconf:capability:validate:1.1"
	NotificationCapability    = "urn:ietf:params:netconf:capability:notification:1.0"
	WithDefaultsCapability    = "urn:ietf:params:netconf:capability:with-defaults:1.0"

	// MonitoringCapability is advertised by servers implementing the
	// ietf-netconf-monitoring module and its `<get-schema>` operation.
	MonitoringCapability = monitoringNs
)

// DefaultCapabilities are the capabilities sent by the client during the hello
// exchange by the server.
var DefaultCapabilities = []string{
	"urn:ietf:params:netconf:base:1.0",
	"urn:ietf:params:netconf:base:1.1",
}

// ExpandCapability will automatically add the standard capability prefix of
// `urn:ietf:params:netconf:capability` if not already present.
func ExpandCapability(s string) string {
	if s == "" {
		return ""
	}

	if s[0] != ':' {
		return s
	}

	return stdCapPrefix + s
}

// capabilitySet keys capabilities without their `?` parameters, which are kept
// as values.
type capabilitySet struct {
	caps map[string]string
}

func newCapabilitySet(capabilities ...string) capabilitySet {
	cs := capabilitySet{
		caps: make(map[string]string),
	}
	cs.Add(capabilities...)
	return cs
}

func (cs *capabilitySet) Add(capabilities ...string) {
	if cs == nil {
		return
	}
	for _, c := range capabilities {
		c = ExpandCapability(strings.TrimSpace(c))
		name, params, _ := strings.Cut(c, "?")
		cs.caps[name] = params
	}
}

func (cs *capabilitySet) Has(s string) bool {
	if cs == nil || cs.caps == nil {
		return false
	}
	name, _, _ := strings.Cut(ExpandCapability(s), "?")
	_, ok := cs.caps[name]
	return ok
}

// ContainsValue reports whether capability s carries value in the
// comma separated list of its key parameter, as in
// `...:with-defaults:1.0?basic-mode=explicit&also-supported=trim,report-all`.
func (cs *capabilitySet) ContainsValue(s, key, value string) bool {
	if cs == nil || cs.caps == nil {
		return false
	}
	name, _, _ := strings.Cut(ExpandCapability(s), "?")
	params, ok := cs.caps[name]
	if !ok {
		return false
	}
	for _, kv := range strings.Split(params, "&") {
		k, v, _ := strings.Cut(kv, "=")
		if k != key {
			continue
		}
		for _, item := range strings.Split(v, ",") {
			if item == value {
				return true
			}
		}
	}
	return false
}

func (cs *capabilitySet) All() []string {
	if cs == nil || len(cs.caps) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(cs.caps))
	for c, params := range cs.caps {
		if params != "" {
			c += "?" + params
		}
		out = append(out, c)
	}
	return out
}
