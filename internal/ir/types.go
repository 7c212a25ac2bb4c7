package ir

// Manifest is a compiled code image: which program it is and what it accepts.
type Manifest struct {
	Name        string       `json:"name"`
	Version     int64        `json:"version"`
	Upgradeable bool         `json:"upgradeable"`
	Messages    []MessageSig `json:"messages"` // Sorted by name
}

// Key returns "name@version", the catalog key for the manifest.
func (m Manifest) Key() string {
	return ProgramKey(m.Name, m.Version)
}

// Message returns the signature for name, if declared.
func (m Manifest) Message(name string) (MessageSig, bool) {
	for _, sig := range m.Messages {
		if sig.Name == name {
			return sig, true
		}
	}
	return MessageSig{}, false
}

// MessageSig is the declared shape of one externally callable message.
type MessageSig struct {
	Name     string     `json:"name"`
	Args     []NamedArg `json:"args"`
	Requires []string   `json:"requires,omitempty"` // Required caller permissions
}

// NamedArg is a named argument with type.
type NamedArg struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ValidTypes are the allowed argument type names. No "float".
var ValidTypes = map[string]bool{
	"string": true,
	"int":    true,
	"bool":   true,
	"list":   true,
	"object": true,
}

// CodeImage is a code image as registered with the host.
type CodeImage struct {
	Hash     CodeHash `json:"hash"`
	Manifest Manifest `json:"manifest"`
	Source   []byte   `json:"-"`
	Seq      int64    `json:"seq"`
}

// Instance is a running, stateful program instance.
// CodeHash is the host-maintained code pointer; State is owned by the program.
type Instance struct {
	ID       string   `json:"id"`
	CodeHash CodeHash `json:"code_hash"`
	Owner    string   `json:"owner"`
	State    Object   `json:"state"`
	Seq      int64    `json:"seq"` // Seq of the last committed change
}

// Caller identifies who is invoking a message. Always present on a Call.
type Caller struct {
	Identity    string   `json:"identity"`
	Permissions []string `json:"permissions"`
}

// Has reports whether the caller carries permission p.
func (c Caller) Has(p string) bool {
	for _, have := range c.Permissions {
		if have == p {
			return true
		}
	}
	return false
}

// Call is one attempted invocation of a message on an instance.
type Call struct {
	ID         string   `json:"id"` // Content-addressed hash
	InstanceID string   `json:"instance_id"`
	Message    string   `json:"message"`
	Args       Object   `json:"args"`
	Seq        int64    `json:"seq"`
	Caller     Caller   `json:"caller"`
	CodeHash   CodeHash `json:"code_hash"` // Image that executed the call
}

// Receipt is the outcome of a call.
type Receipt struct {
	ID       string   `json:"id"` // Content-addressed hash
	CallID   string   `json:"call_id"`
	Outcome  string   `json:"outcome"` // OutcomeSuccess, OutcomeUpgradeFailed, a revert case, ...
	Result   Object   `json:"result"`
	Error    string   `json:"error,omitempty"`
	CodeHash CodeHash `json:"code_hash"` // Instance code pointer after the call
	Seq      int64    `json:"seq"`
}

// Succeeded reports whether the call committed.
func (r Receipt) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}

// Receipt outcome cases produced by the host.
// Programs add their own revert cases.
const (
	OutcomeSuccess        = "Success"
	OutcomeUpgradeFailed  = "UpgradeFailed"
	OutcomeUnauthorized   = "Unauthorized"
	OutcomeUnknownMessage = "UnknownMessage"
	OutcomeInvalidArgs    = "InvalidArgs"
	OutcomeTrapped        = "Trapped"
)
