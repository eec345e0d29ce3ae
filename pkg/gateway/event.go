package gateway

import "os"

// Event is one tagged message exchanged between the server core and the
// application handler over a connection's lifetime. The set of variants is
// closed; EventType returns the wire tag ("protocol.message_type", e.g.
// "http.response.start").
//
// Exactly one start-class event (HTTPResponseStart, WebSocketAccept,
// SSEStart) must precede any body/send event on a given exchange. Sending
// two start events, or a body event before a start event, is a protocol
// violation rejected by the server's send operation.
type Event interface {
	// EventType returns the wire type string of the event.
	EventType() string

	event() // closed sum marker
}

// HTTPRequest delivers one chunk of the request body. More is true when
// at least one further chunk follows.
type HTTPRequest struct {
	Body []byte
	More bool
}

func (HTTPRequest) EventType() string { return "http.request" }
func (HTTPRequest) event()            {}

// HTTPDisconnect tells the handler the client went away. Once delivered,
// every subsequent receive on the exchange yields it again.
type HTTPDisconnect struct{}

func (HTTPDisconnect) EventType() string { return "http.disconnect" }
func (HTTPDisconnect) event()            {}

// HTTPResponseStart begins the response: status code plus headers. The
// server adds Date (and Server) when absent and decides between fixed and
// chunked framing from the presence of a content-length header.
type HTTPResponseStart struct {
	Status  int
	Headers Headers
}

func (HTTPResponseStart) EventType() string { return "http.response.start" }
func (HTTPResponseStart) event()            {}

// HTTPResponseBody carries response body data. Exactly one of Body, Path,
// or File is used:
//
//   - Body: raw bytes; More marks whether another body event follows.
//   - Path: the server streams the named file.
//   - File: the server streams from an already-open handle.
//
// For Path/File sends, Offset selects the starting byte (0 = start of
// file) and Length limits the number of bytes sent (< 0 = rest of file);
// these support partial (Range) responses. File and Path sends are
// implicitly terminal: the More flag is ignored for them.
type HTTPResponseBody struct {
	Body   []byte
	Path   string
	File   *os.File
	Offset int64
	Length int64
	More   bool
}

func (HTTPResponseBody) EventType() string { return "http.response.body" }
func (HTTPResponseBody) event()            {}

// WebSocketConnect is the first event a handler receives on a websocket
// scope, before the upgrade handshake has been answered.
type WebSocketConnect struct{}

func (WebSocketConnect) EventType() string { return "websocket.connect" }
func (WebSocketConnect) event()            {}

// WebSocketAccept completes the upgrade handshake with an optional chosen
// subprotocol and extra response headers.
type WebSocketAccept struct {
	Subprotocol string
	Headers     Headers
}

func (WebSocketAccept) EventType() string { return "websocket.accept" }
func (WebSocketAccept) event()            {}

// WebSocketReceive delivers one complete (defragmented) message from the
// peer. Exactly one of Text or Bytes is non-nil, matching the message's
// initial opcode.
type WebSocketReceive struct {
	Text  *string
	Bytes []byte
}

func (WebSocketReceive) EventType() string { return "websocket.receive" }
func (WebSocketReceive) event()            {}

// WebSocketSend sends one message to the peer. Exactly one of Text or
// Bytes must be non-nil.
type WebSocketSend struct {
	Text  *string
	Bytes []byte
}

func (WebSocketSend) EventType() string { return "websocket.send" }
func (WebSocketSend) event()            {}

// WebSocketDisconnect reports that the peer closed the connection,
// carrying the peer's close code (1005 when the close frame had no code).
type WebSocketDisconnect struct {
	Code   int
	Reason string
}

func (WebSocketDisconnect) EventType() string { return "websocket.disconnect" }
func (WebSocketDisconnect) event()            {}

// WebSocketClose closes the connection from the handler side. Sent before
// WebSocketAccept it rejects the handshake with an HTTP 403 instead of a
// close frame.
type WebSocketClose struct {
	Code   int
	Reason string
}

func (WebSocketClose) EventType() string { return "websocket.close" }
func (WebSocketClose) event()            {}

// SSEStart begins a server-sent-events stream. The server supplies
// Content-Type: text/event-stream and Cache-Control: no-cache when the
// handler did not.
type SSEStart struct {
	Status  int
	Headers Headers
}

func (SSEStart) EventType() string { return "sse.start" }
func (SSEStart) event()            {}

// SSESend emits one event on the stream. Data is the payload (split on
// newlines into multiple data: lines); Event, ID, and Retry populate the
// corresponding optional fields when non-zero.
type SSESend struct {
	Data  string
	Event string
	ID    string
	Retry int
}

func (SSESend) EventType() string { return "sse.send" }
func (SSESend) event()            {}

// SSEDisconnect tells the handler the client closed the stream.
type SSEDisconnect struct{}

func (SSEDisconnect) EventType() string { return "sse.disconnect" }
func (SSEDisconnect) event()            {}

// LifespanStartup asks the handler to perform process startup work and
// populate the shared state map.
type LifespanStartup struct{}

func (LifespanStartup) EventType() string { return "lifespan.startup" }
func (LifespanStartup) event()            {}

// LifespanStartupComplete acknowledges successful startup.
type LifespanStartupComplete struct{}

func (LifespanStartupComplete) EventType() string { return "lifespan.startup.complete" }
func (LifespanStartupComplete) event()            {}

// LifespanStartupFailed aborts server start entirely.
type LifespanStartupFailed struct {
	Message string
}

func (LifespanStartupFailed) EventType() string { return "lifespan.startup.failed" }
func (LifespanStartupFailed) event()            {}

// LifespanShutdown asks the handler to release resources before exit.
type LifespanShutdown struct{}

func (LifespanShutdown) EventType() string { return "lifespan.shutdown" }
func (LifespanShutdown) event()            {}

// LifespanShutdownComplete acknowledges shutdown.
type LifespanShutdownComplete struct{}

func (LifespanShutdownComplete) EventType() string { return "lifespan.shutdown.complete" }
func (LifespanShutdownComplete) event()            {}

// LifespanShutdownFailed reports a shutdown failure. It is logged but does
// not prevent the process from exiting.
type LifespanShutdownFailed struct {
	Message string
}

func (LifespanShutdownFailed) EventType() string { return "lifespan.shutdown.failed" }
func (LifespanShutdownFailed) event()            {}
