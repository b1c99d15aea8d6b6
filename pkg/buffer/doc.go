// Ring buffers in the runtime:
//
//	debug, _ := buffer.NewCircularBuffer[engine.DebugEvent](100)
//	_ = debug.Write(ev)
//	latest := debug.Recent(20) // newest 20, oldest first
//
// The automation bridge's getMessages drains with ReadBatch; the read-only
// views (getDebugOutput, getErrors, getLogs) use Recent so repeated polls see
// the same history until it is evicted or cleared.
package buffer
