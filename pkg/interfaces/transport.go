package interfaces

// Transport is the client-facing side of a connection as the session sees
// it: serialized JSON writes plus a close. The websocket connection wrapper
// implements it; tests substitute an in-memory fake.
type Transport interface {
	WriteJSON(v interface{}) error
	Close() error
}
