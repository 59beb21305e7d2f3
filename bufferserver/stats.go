package bufferserver

import "sync/atomic"

// Stats tracks what the server has done since it started. All counters only
// ever grow; rejected counts both FULL and EMPTY outcomes.
type Stats struct {
	produced       atomic.Uint64
	consumed       atomic.Uint64
	rejected       atomic.Uint64
	malformed      atomic.Uint64
	sessionsOpened atomic.Uint64
	sessionsClosed atomic.Uint64
}

// Snapshot is a point-in-time copy of the server counters.
type Snapshot struct {
	Produced       uint64
	Consumed       uint64
	Rejected       uint64
	Malformed      uint64
	SessionsOpened uint64
	SessionsClosed uint64
}

// IncProduced records one item committed to the buffer.
func (st *Stats) IncProduced() { st.produced.Add(1) }

// IncConsumed records one item handed to a consumer.
func (st *Stats) IncConsumed() { st.consumed.Add(1) }

// IncRejected records one FULL or EMPTY answer.
func (st *Stats) IncRejected() { st.rejected.Add(1) }

// IncMalformed records one request line that failed to parse.
func (st *Stats) IncMalformed() { st.malformed.Add(1) }

// IncSessionOpened records one accepted connection.
func (st *Stats) IncSessionOpened() { st.sessionsOpened.Add(1) }

// IncSessionClosed records one closed session.
func (st *Stats) IncSessionClosed() { st.sessionsClosed.Add(1) }

// Snapshot returns a copy of the counters. Each counter is read atomically;
// the set as a whole is as consistent as concurrent traffic allows.
//
// Returns:
//   - A Snapshot of all counters
func (st *Stats) Snapshot() Snapshot {
	return Snapshot{
		Produced:       st.produced.Load(),
		Consumed:       st.consumed.Load(),
		Rejected:       st.rejected.Load(),
		Malformed:      st.malformed.Load(),
		SessionsOpened: st.sessionsOpened.Load(),
		SessionsClosed: st.sessionsClosed.Load(),
	}
}
