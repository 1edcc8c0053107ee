package negotiate

import (
	"github.com/emirpasic/gods/trees/binaryheap"

	"github.com/pktwire/pktwire/hash"
	"github.com/pktwire/pktwire/packp"
)

// CommitInfo is the minimal ancestry information a negotiator needs about
// a local commit: its hash, commit time (used to order the frontier, most
// recent first) and parent hashes.
type CommitInfo struct {
	Hash    hash.Hash
	When    int64
	Parents []hash.Hash
}

// CommitLookup resolves a hash to its CommitInfo, or ok=false if the
// object isn't a commit the walker can expand further.
type CommitLookup func(h hash.Hash) (CommitInfo, bool)

// skipAncestorsState is the opaque state threaded through
// SkipAncestorsViaCommitWalk's rounds.
type skipAncestorsState struct {
	frontier *binaryheap.Heap
	seen     map[hash.Hash]bool
	lookup   CommitLookup
	perRound int
}

func commitTimeComparator(a, b interface{}) int {
	ca, cb := a.(CommitInfo), b.(CommitInfo)
	switch {
	case ca.When > cb.When:
		return -1
	case ca.When < cb.When:
		return 1
	default:
		return 0
	}
}

// SkipAncestorsViaCommitWalk walks the local commit graph newest-first
// using a binary heap ordered by commit time, offering batches of haves.
// A commit's parents are queued as soon as the commit is offered, so an
// ACK does not prune the walk: ancestors of commits the server has marked
// common are still offered. perRound bounds how many haves are offered
// per round (the classic 32-at-a-time batching real Git clients use).
type SkipAncestorsViaCommitWalk struct {
	Heads    []hash.Hash
	Lookup   CommitLookup
	PerRound int
}

func (n *SkipAncestorsViaCommitWalk) InitialState() interface{} {
	perRound := n.PerRound
	if perRound <= 0 {
		perRound = 32
	}

	heap := binaryheap.NewWith(commitTimeComparator)
	seen := map[hash.Hash]bool{}
	for _, h := range n.Heads {
		if info, ok := n.Lookup(h); ok && !seen[h] {
			seen[h] = true
			heap.Push(info)
		}
	}

	return &skipAncestorsState{frontier: heap, seen: seen, lookup: n.Lookup, perRound: perRound}
}

func (n *SkipAncestorsViaCommitWalk) Next(acks []packp.Ack, raw interface{}) (Result, interface{}) {
	st := raw.(*skipAncestorsState)

	common := map[hash.Hash]bool{}
	for _, a := range acks {
		if a.Status == packp.AckCommon || a.Status == packp.AckContinue || a.Status == packp.AckReady {
			common[a.Hash] = true
		}
	}

	if st.frontier.Empty() {
		return Result{Decision: Ready}, st
	}

	var haves []hash.Hash
	for len(haves) < st.perRound && !st.frontier.Empty() {
		v, _ := st.frontier.Pop()
		info := v.(CommitInfo)
		haves = append(haves, info.Hash)

		if common[info.Hash] {
			// This ancestor is already known to the server: no point
			// walking further up this branch.
			continue
		}

		for _, p := range info.Parents {
			if st.seen[p] {
				continue
			}
			st.seen[p] = true
			if pinfo, ok := st.lookup(p); ok {
				st.frontier.Push(pinfo)
			}
		}
	}

	if len(haves) == 0 {
		return Result{Decision: Ready}, st
	}
	if st.frontier.Empty() {
		return Result{Decision: Done, Haves: haves}, st
	}
	return Result{Decision: Again, Haves: haves}, st
}

// haveAllRefsOnceState tracks whether the single have batch has been sent.
type haveAllRefsOnceState struct {
	sent bool
}

// HaveAllRefsOnce offers every local ref tip as a have in round 0 and then
// immediately signals Done — the simplest correct strategy for a client
// whose local ref set is small enough that ancestor-skipping isn't worth
// the complexity (§9 Open Question: negotiator breadth).
type HaveAllRefsOnce struct {
	Haves []hash.Hash
}

func (n *HaveAllRefsOnce) InitialState() interface{} {
	return &haveAllRefsOnceState{}
}

func (n *HaveAllRefsOnce) Next(acks []packp.Ack, raw interface{}) (Result, interface{}) {
	st := raw.(*haveAllRefsOnceState)
	if st.sent {
		return Result{Decision: Ready}, st
	}
	st.sent = true
	if len(n.Haves) == 0 {
		return Result{Decision: Ready}, st
	}
	return Result{Decision: Done, Haves: n.Haves}, st
}
