package vision

import "context"

// TestTransport is a scripted in-memory transport. Incoming device traffic
// is queued as chunks; each chunk becomes available as one unit, so tests
// can control exactly how a byte stream is split across reads. Exported for
// use in tests.
type TestTransport struct {
	chunks  [][]byte
	current []byte
	writes  [][]byte
	reads   int
	closed  bool
}

// NewTestTransport creates an empty scripted transport.
func NewTestTransport() *TestTransport {
	return &TestTransport{}
}

// Dial lets a TestTransport act as its own Dialer.
func (t *TestTransport) Dial(ctx context.Context) (Transport, error) {
	return t, nil
}

// QueueChunk schedules data to arrive as a single read's worth of bytes.
func (t *TestTransport) QueueChunk(data string) {
	t.chunks = append(t.chunks, []byte(data))
}

func (t *TestTransport) BytesAvailable() (int, error) {
	if len(t.current) == 0 && len(t.chunks) > 0 {
		t.current = t.chunks[0]
		t.chunks = t.chunks[1:]
	}
	return len(t.current), nil
}

func (t *TestTransport) Read(p []byte) (int, error) {
	if len(t.current) == 0 {
		return 0, nil
	}
	t.reads++
	n := copy(p, t.current)
	t.current = t.current[n:]
	return n, nil
}

func (t *TestTransport) Write(p []byte) (int, error) {
	t.writes = append(t.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (t *TestTransport) Close() error {
	t.closed = true
	return nil
}

// Writes returns every request line written to the transport.
func (t *TestTransport) Writes() []string {
	out := make([]string, len(t.writes))
	for i, w := range t.writes {
		out[i] = string(w)
	}
	return out
}

// Reads returns how many Read calls consumed data.
func (t *TestTransport) Reads() int { return t.reads }
