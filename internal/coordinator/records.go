package coordinator

import (
	"github.com/danmuck/codetango/internal/protocol/session"
	"github.com/danmuck/codetango/internal/snapshot"
)

// BarrierRecord is the observed state of one barrier id.
type BarrierRecord struct {
	BarrierID   string                `json:"barrier_id"`
	Submitted   []string              `json:"submitted"`
	Complete    bool                  `json:"complete"`
	Comparisons int                   `json:"comparisons"`
	Differences []snapshot.Difference `json:"differences,omitempty"`
}

// Status is a read-only view of coordinator state.
type Status struct {
	SocketPath string          `json:"socket_path"`
	Connected  []string        `json:"connected"`
	Sequence   []string        `json:"sequence"`
	Barriers   []BarrierRecord `json:"barriers"`
}

type barrierRecord struct {
	id          string
	snapshots   map[string]*snapshot.Snapshot
	comparisons int
	differences []snapshot.Difference
}

func (r *barrierRecord) complete() bool {
	_, a := r.snapshots[Participants[0]]
	_, b := r.snapshots[Participants[1]]
	return a && b
}

func (r *barrierRecord) view() BarrierRecord {
	out := BarrierRecord{
		BarrierID:   r.id,
		Submitted:   make([]string, 0, len(Participants)),
		Complete:    r.complete(),
		Comparisons: r.comparisons,
	}
	for _, id := range Participants {
		if _, ok := r.snapshots[id]; ok {
			out.Submitted = append(out.Submitted, id)
		}
	}
	if len(r.differences) > 0 {
		out.Differences = make([]snapshot.Difference, len(r.differences))
		copy(out.Differences, r.differences)
	}
	return out
}

// submit stores one participant's snapshot and, once both sides are present,
// compares and broadcasts the verdict. The broadcast happens under the lock so
// no other submission can interleave with a release.
func (c *Coordinator) submit(programID string, sub session.Submission) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg.Verbose {
		c.printf("%s reached barrier '%s'\n", programID, sub.BarrierID)
	}
	c.cfg.Observer.Arrived(programID, sub.BarrierID)

	if programID == Participants[0] {
		if _, seen := c.inSequence[sub.BarrierID]; !seen {
			c.inSequence[sub.BarrierID] = struct{}{}
			c.sequence = append(c.sequence, sub.BarrierID)
		}
	}

	rec, ok := c.records[sub.BarrierID]
	if !ok {
		rec = &barrierRecord{id: sub.BarrierID, snapshots: make(map[string]*snapshot.Snapshot, 2)}
		c.records[sub.BarrierID] = rec
		c.order = append(c.order, sub.BarrierID)
	}
	rec.snapshots[programID] = sub.Variables
	if !rec.complete() {
		return
	}

	diffs := snapshot.Compare(rec.snapshots[Participants[0]], rec.snapshots[Participants[1]])
	rec.comparisons++
	rec.differences = diffs
	c.cfg.Observer.Completed(sub.BarrierID, len(diffs))

	verdict := session.SuccessVerdict(session.MessageMatch)
	if len(diffs) > 0 {
		verdict = session.FailureVerdict(session.MessageDiffer)
		c.printf("\nDifferences detected at barrier '%s':\n", sub.BarrierID)
		for _, d := range diffs {
			c.printf("  - %s\n", d.Format(Participants[0], Participants[1]))
		}
	} else if c.cfg.Verbose {
		c.printf("All variables match at barrier '%s'\n", sub.BarrierID)
	}
	c.logger.Debug().
		Str("barrier_id", sub.BarrierID).
		Int("differences", len(diffs)).
		Msg("coordinator.submit released")

	for _, id := range Participants {
		p := c.participants[id]
		if p.conn == nil || p.done {
			continue
		}
		if err := p.conn.Send(verdict); err != nil {
			c.logger.Warn().Err(err).Str("program_id", id).Str("barrier_id", sub.BarrierID).
				Msg("coordinator.submit send verdict failed")
		}
	}
}

// Sequence returns barrier ids in the order the reference participant first
// reached them.
func (c *Coordinator) Sequence() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sequence))
	copy(out, c.sequence)
	return out
}

// Records returns every barrier record in creation order.
func (c *Coordinator) Records() []BarrierRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recordsLocked()
}

func (c *Coordinator) recordsLocked() []BarrierRecord {
	out := make([]BarrierRecord, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.records[id].view())
	}
	return out
}

// Reached reports whether both participants reached every barrier in the
// sequence, along with the ids that only one side reached.
func (c *Coordinator) Reached() (bool, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var missing []string
	for _, id := range c.sequence {
		rec, ok := c.records[id]
		if !ok || !rec.complete() {
			missing = append(missing, id)
		}
	}
	return len(missing) == 0, missing
}

// Mismatches returns completed barrier ids whose latest comparison found
// differences, in creation order.
func (c *Coordinator) Mismatches() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, id := range c.order {
		if len(c.records[id].differences) > 0 {
			out = append(out, id)
		}
	}
	return out
}

func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		SocketPath: c.cfg.SocketPath,
		Connected:  make([]string, 0, len(Participants)),
		Sequence:   make([]string, len(c.sequence)),
		Barriers:   c.recordsLocked(),
	}
	copy(st.Sequence, c.sequence)
	for _, id := range Participants {
		if p := c.participants[id]; p.conn != nil && !p.done {
			st.Connected = append(st.Connected, id)
		}
	}
	return st
}
