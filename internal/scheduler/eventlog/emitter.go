package eventlog

// Emitter defines the fire-and-forget event logging interface. Emit never
// blocks the caller on I/O errors — failures are logged internally instead
// of interrupting the crawl.
type Emitter interface {
	Emit(kind Kind, pageID, url string, fields map[string]interface{})
	Close() error
}

// NoopEmitter discards every event; used when no event log path is
// configured.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Kind, string, string, map[string]interface{}) {}
func (NoopEmitter) Close() error                                      { return nil }
