// Package gateway defines the contract between the Gatewire server core and
// an application handler: the scope describing one logical exchange, the
// events exchanged over it, and the (scope, receive, send) call signature.
//
// Everything higher-level (routing, middleware, views) is expected to be
// built purely in terms of this package and never to import the server
// internals.
package gateway

import "net/netip"

// Type identifies the protocol variant of a Scope.
type Type string

// Scope types. SSE requests arrive as plain HTTP requests whose Accept
// header asked for text/event-stream; the server reclassifies them.
const (
	TypeHTTP      Type = "http"
	TypeWebSocket Type = "websocket"
	TypeSSE       Type = "sse"
	TypeLifespan  Type = "lifespan"
)

// Header is one name/value pair. Header names are case-normalized to
// lowercase by the server before a scope is built. Order is preserved.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered list of header pairs.
type Headers []Header

// Get returns the value of the first header with the given (lowercase)
// name, and whether it was present.
func (hs Headers) Get(name string) (string, bool) {
	for _, h := range hs {
		if h.Name == name {
			return h.Value, true
		}
	}
	return "", false
}

// Has reports whether a header with the given (lowercase) name is present.
func (hs Headers) Has(name string) bool {
	_, ok := hs.Get(name)
	return ok
}

// State is the process-wide shared state map. It is created once during
// lifecycle startup, populated by the lifespan handler (database handles,
// config), and attached by reference to every subsequent scope. Only the
// startup phase may mutate it; connection handlers treat it as read-only,
// which is what makes unlocked concurrent reads safe.
type State map[string]any

// Extensions is the set of optional server capabilities a handler may
// check before relying on non-core behavior.
type Extensions map[string]struct{}

// Extension capability names.
const (
	ExtensionTLS       = "tls"
	ExtensionFullFlush = "fullflush"
)

// Has reports whether the named capability is advertised.
func (e Extensions) Has(name string) bool {
	_, ok := e[name]
	return ok
}

// Addr is one endpoint of the TCP connection underlying a scope.
type Addr struct {
	Host string
	Port uint16
}

// AddrFromAddrPort converts a netip.AddrPort into a scope address.
func AddrFromAddrPort(ap netip.AddrPort) Addr {
	return Addr{Host: ap.Addr().String(), Port: ap.Port()}
}

// Scope is the immutable-once-built metadata record describing one logical
// exchange. It is a closed sum over the four protocol variants; the server
// never mutates a scope after construction except for attaching the shared
// State reference, and collaborators needing a modified scope must copy it.
type Scope interface {
	// Type returns the scope variant tag ("http", "websocket", "sse",
	// "lifespan").
	Type() Type

	scope() // closed sum marker
}

// HTTPScope describes one HTTP request/response exchange.
type HTTPScope struct {
	// HTTPVersion is "1.0" or "1.1".
	HTTPVersion string
	// Method is the uppercase request method.
	Method string
	// Scheme is "http" or "https".
	Scheme string
	// Path is the percent-decoded UTF-8 request path.
	Path string
	// RawPath is the original, still-encoded path bytes.
	RawPath []byte
	// QueryString is the raw query string without the leading "?".
	QueryString []byte
	// RootPath is the mount prefix handed to the application, "" at root.
	RootPath string
	// Headers holds the request headers, names lowercased, in order,
	// with all Cookie lines folded into a single "; "-joined entry.
	Headers Headers
	// Client and Server are the two ends of the TCP connection.
	Client Addr
	Server Addr
	// State is the shared state map populated during lifecycle startup.
	State State
	// Extensions advertises optional server capabilities.
	Extensions Extensions
}

func (HTTPScope) Type() Type { return TypeHTTP }
func (HTTPScope) scope()     {}

// SSEScope describes a long-lived server-sent-events stream. It carries
// the same request metadata as HTTPScope because the exchange begins life
// as an ordinary HTTP request; the server reclassifies it when the Accept
// header includes text/event-stream.
type SSEScope struct {
	HTTPScope
}

func (SSEScope) Type() Type { return TypeSSE }
func (SSEScope) scope()     {}

// WebSocketScope describes one WebSocket connection, built from the
// upgrade handshake request.
type WebSocketScope struct {
	HTTPVersion string
	Scheme      string // "ws" or "wss"
	Path        string
	RawPath     []byte
	QueryString []byte
	RootPath    string
	// Headers holds the handshake request headers.
	Headers Headers
	// Subprotocols lists the values parsed from Sec-WebSocket-Protocol.
	Subprotocols []string
	Client       Addr
	Server       Addr
	State        State
	Extensions   Extensions
}

func (WebSocketScope) Type() Type { return TypeWebSocket }
func (WebSocketScope) scope()     {}

// LifespanScope is handed to the handler exactly once per process for the
// startup/shutdown phase. It carries only the shared state map, which the
// startup handler populates before any connection is accepted.
type LifespanScope struct {
	State State
}

func (LifespanScope) Type() Type { return TypeLifespan }
func (LifespanScope) scope()     {}
