package appcache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
type Hooks interface {
	// A namespaced key could not be used because its namespace key has no
	// cached value. op ∈ {"get", "set", "invalidate"}.
	NamespaceUnresolved(op string, namespaceRawKey string)

	// A stored value could not be read back and was treated as a miss.
	// reason ∈ {"decompress", "decode"}.
	CorruptEntry(rawKey string, reason string)

	// The provider refused a write under pressure.
	ProviderSetRejected(rawKey string)

	// The provider returned an error. op ∈ {"get", "set", "del", "clear"}.
	ProviderError(op string, rawKey string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) NamespaceUnresolved(string, string)  {}
func (NopHooks) CorruptEntry(string, string)         {}
func (NopHooks) ProviderSetRejected(string)          {}
func (NopHooks) ProviderError(string, string, error) {}
