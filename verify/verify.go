package verify

import (
	"fmt"

	"github.com/mpst-workbench/core/cfg"
	"github.com/mpst-workbench/core/trace"
)

// Verify runs every check enabled in opts against c and returns the
// accumulated findings. It never panics on an ill-formed graph; a
// catastrophic inconsistency (a dangling edge) is reported as a
// Structural finding rather than propagated as an error.
func Verify(c *cfg.CFG, opts Options) *Report {
	r := &Report{}

	if bad := danglingEdges(c); len(bad) > 0 {
		r.Structural = append(r.Structural, bad...)
	}

	if opts.CheckDeadlock {
		r.Deadlock = checkDeadlock(c)
	}
	if opts.CheckLiveness {
		r.Liveness = checkLiveness(c)
	}
	if opts.CheckProgress {
		r.Progress = checkProgress(c)
	}
	if opts.CheckForkJoinStructure {
		r.ForkJoinStructure = checkForkJoinStructure(c)
	}
	branches := collectParallelBranches(c)
	if opts.CheckParallelDeadlock {
		r.ParallelDeadlock = checkParallelDeadlock(c, branches)
	}
	if opts.CheckRaceConditions {
		r.RaceConditions = checkRaceConditions(c, branches)
	}
	if opts.CheckRecursionInParallel {
		r.RecursionInParallel = checkRecursionInParallel(c, branches)
	}
	if opts.CheckChoiceDeterminism {
		r.ChoiceDeterminism = checkChoiceDeterminism(c)
	}
	if opts.CheckChoiceMergeability {
		r.ChoiceMergeability = checkChoiceMergeability(c)
	}
	if opts.CheckConnectedness {
		r.Connectedness = checkConnectedness(c)
	}
	if opts.CheckNestedRecursion {
		r.NestedRecursion = checkNestedRecursion(c)
	}
	if opts.CheckMulticast {
		r.Multicast = checkMulticast(c)
	}
	if opts.CheckSelfCommunication {
		r.SelfCommunication = checkSelfCommunication(c)
	}
	if opts.CheckEmptyChoiceBranch {
		r.EmptyChoiceBranch = checkEmptyChoiceBranch(c)
	}
	if opts.CheckMergeReachability {
		r.MergeReachability = checkMergeReachability(c)
	}

	return r
}

// danglingEdges reports edges whose endpoint is not a node of c.
func danglingEdges(c *cfg.CFG) []Finding {
	var out []Finding
	for _, n := range c.Nodes() {
		for _, e := range c.Out(n.ID) {
			if _, ok := c.Node(e.To); !ok {
				out = append(out, Finding{
					Check: "structural", Severity: SeverityError, NodeID: n.ID,
					Message: fmt.Sprintf("edge from %s targets unknown node %s", n.ID, e.To),
				})
			}
		}
	}
	return out
}

// --- 1. Structural deadlock (Tarjan SCC over non-continue edges) ---

func checkDeadlock(c *cfg.CFG) []Finding {
	adj := make(map[cfg.NodeID][]cfg.NodeID)
	for _, n := range c.Nodes() {
		for _, e := range c.Out(n.ID) {
			if e.Kind == cfg.EdgeContinue {
				continue
			}
			adj[n.ID] = append(adj[n.ID], e.To)
		}
	}
	sccs := tarjanSCC(c, adj)

	var out []Finding
	for _, scc := range sccs {
		if len(scc) > 1 {
			out = append(out, Finding{
				Check: "deadlock", Severity: SeverityError,
				Message: fmt.Sprintf("cycle among nodes %v does not pass exclusively through continue edges", scc),
			})
			continue
		}
		// Self-loop: a single node with a non-continue edge to itself.
		n := scc[0]
		for _, to := range adj[n] {
			if to == n {
				out = append(out, Finding{
					Check: "deadlock", Severity: SeverityError, NodeID: n,
					Message: fmt.Sprintf("node %s has a self-loop outside continue edges", n),
				})
			}
		}
	}
	return out
}

// tarjanSCC computes the strongly connected components of the graph
// described by adj, restricted to the node ids that appear in c.
func tarjanSCC(c *cfg.CFG, adj map[cfg.NodeID][]cfg.NodeID) [][]cfg.NodeID {
	index := 0
	indices := make(map[cfg.NodeID]int)
	lowlink := make(map[cfg.NodeID]int)
	onStack := make(map[cfg.NodeID]bool)
	var stack []cfg.NodeID
	var sccs [][]cfg.NodeID

	var strongconnect func(v cfg.NodeID)
	strongconnect = func(v cfg.NodeID) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adj[v] {
			if _, seen := indices[w]; !seen {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if indices[w] < lowlink[v] {
					lowlink[v] = indices[w]
				}
			}
		}

		if lowlink[v] == indices[v] {
			var scc []cfg.NodeID
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, n := range c.Nodes() {
		if _, seen := indices[n.ID]; !seen {
			strongconnect(n.ID)
		}
	}
	return sccs
}

// --- 2. Liveness ---

func checkLiveness(c *cfg.CFG) []Finding {
	terminals := map[cfg.NodeID]bool{}
	for _, n := range c.Nodes() {
		if n.Kind == cfg.NodeTerminal {
			terminals[n.ID] = true
		}
	}
	reachesTerminal := reverseReachability(c, terminals)

	// Nodes reachable forward from a recursive node that has an incoming
	// continue edge are considered live: they are part of a sustainable
	// infinite loop.
	loopy := map[cfg.NodeID]bool{}
	for _, n := range c.Nodes() {
		if n.Kind != cfg.NodeRecursive {
			continue
		}
		for _, e := range c.In(n.ID) {
			if e.Kind == cfg.EdgeContinue {
				loopy[n.ID] = true
			}
		}
	}
	loopReachable := map[cfg.NodeID]bool{}
	for id := range loopy {
		for _, reached := range forwardReachableSet(c, id) {
			loopReachable[reached] = true
		}
	}

	var out []Finding
	for _, n := range c.Nodes() {
		if n.Kind == cfg.NodeTerminal {
			continue
		}
		if reachesTerminal[n.ID] || loopReachable[n.ID] {
			continue
		}
		out = append(out, Finding{
			Check: "liveness", Severity: SeverityError, NodeID: n.ID,
			Message: fmt.Sprintf("node %s is a stuck-state: reaches neither a terminal nor a sustained recursion", n.ID),
		})
	}
	return out
}

// reverseReachability returns, for every node, whether it can reach any
// node in targets by forward traversal over every edge kind.
func reverseReachability(c *cfg.CFG, targets map[cfg.NodeID]bool) map[cfg.NodeID]bool {
	memo := map[cfg.NodeID]bool{}
	visiting := map[cfg.NodeID]bool{}

	var can func(id cfg.NodeID) bool
	can = func(id cfg.NodeID) bool {
		if targets[id] {
			return true
		}
		if v, ok := memo[id]; ok {
			return v
		}
		if visiting[id] {
			return false // break cycles conservatively; loopReachable handles recursion separately
		}
		visiting[id] = true
		result := false
		for _, e := range c.Out(id) {
			if can(e.To) {
				result = true
				break
			}
		}
		visiting[id] = false
		memo[id] = result
		return result
	}

	out := map[cfg.NodeID]bool{}
	for _, n := range c.Nodes() {
		out[n.ID] = can(n.ID)
	}
	return out
}

func forwardReachableSet(c *cfg.CFG, from cfg.NodeID) []cfg.NodeID {
	seen := map[cfg.NodeID]bool{from: true}
	queue := []cfg.NodeID{from}
	var out []cfg.NodeID
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		out = append(out, id)
		for _, e := range c.Out(id) {
			if !seen[e.To] {
				seen[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}
	return out
}

// --- 3. Progress ---

func checkProgress(c *cfg.CFG) []Finding {
	var out []Finding
	for _, n := range c.Nodes() {
		if n.Kind == cfg.NodeTerminal {
			continue
		}
		if len(c.Out(n.ID)) == 0 {
			out = append(out, Finding{
				Check: "progress", Severity: SeverityError, NodeID: n.ID,
				Message: fmt.Sprintf("node %s has no outgoing edge", n.ID),
			})
		}
	}
	return out
}

// --- 11. Fork-join structure ---

func checkForkJoinStructure(c *cfg.CFG) []Finding {
	forks := map[string][]cfg.NodeID{}
	joins := map[string][]cfg.NodeID{}
	for _, n := range c.Nodes() {
		switch n.Kind {
		case cfg.NodeFork:
			forks[n.ParallelID] = append(forks[n.ParallelID], n.ID)
		case cfg.NodeJoin:
			joins[n.ParallelID] = append(joins[n.ParallelID], n.ID)
		}
	}
	var out []Finding
	for id, fs := range forks {
		js := joins[id]
		if len(fs) != 1 || len(js) != 1 {
			out = append(out, Finding{
				Check: "fork_join_structure", Severity: SeverityError,
				Message: fmt.Sprintf("parallel_id %q has %d fork(s) and %d join(s), want exactly one each", id, len(fs), len(js)),
			})
		}
	}
	for id, js := range joins {
		if _, ok := forks[id]; !ok {
			out = append(out, Finding{
				Check: "fork_join_structure", Severity: SeverityError,
				Message: fmt.Sprintf("parallel_id %q has %d join(s) but no fork", id, len(js)),
			})
		}
	}
	return out
}

// parallelBranch is one branch of one fork/join pair: the fork, its
// matching join, and the set of nodes reachable from the fork's branch
// edge before reaching the join, not crossing a continue edge.
type parallelBranch struct {
	ParallelID string
	Fork       cfg.NodeID
	Join       cfg.NodeID
	Index      int
	Nodes      []cfg.NodeID
}

// collectParallelBranches partitions every fork/join pair's body into
// per-branch node sets, used by checks 4, 5 and 10.
func collectParallelBranches(c *cfg.CFG) []parallelBranch {
	joinByParallel := map[string]cfg.NodeID{}
	for _, n := range c.Nodes() {
		if n.Kind == cfg.NodeJoin {
			joinByParallel[n.ParallelID] = n.ID
		}
	}

	var out []parallelBranch
	for _, n := range c.Nodes() {
		if n.Kind != cfg.NodeFork {
			continue
		}
		join, ok := joinByParallel[n.ParallelID]
		if !ok {
			continue
		}
		for i, e := range c.Out(n.ID) {
			if e.Kind != cfg.EdgeFork {
				continue
			}
			nodes := branchNodes(c, e.To, join)
			out = append(out, parallelBranch{ParallelID: n.ParallelID, Fork: n.ID, Join: join, Index: i, Nodes: nodes})
		}
	}
	return out
}

// branchNodes walks forward from start, stopping at join and never
// crossing a continue edge (a continue target belongs to its own loop
// scope, not the branch it was reached from).
func branchNodes(c *cfg.CFG, start, join cfg.NodeID) []cfg.NodeID {
	seen := map[cfg.NodeID]bool{}
	queue := []cfg.NodeID{start}
	var out []cfg.NodeID
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if id == join || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
		for _, e := range c.Out(id) {
			if e.Kind == cfg.EdgeContinue {
				continue
			}
			if e.To != join {
				queue = append(queue, e.To)
			}
		}
	}
	return out
}

// --- 4. Parallel deadlock ---

func checkParallelDeadlock(c *cfg.CFG, branches []parallelBranch) []Finding {
	var out []Finding

	byParallel := map[string][]parallelBranch{}
	for _, b := range branches {
		byParallel[b.ParallelID] = append(byParallel[b.ParallelID], b)
	}

	for parallelID, bs := range byParallel {
		senders := map[trace.Role][]int{}
		for _, b := range bs {
			for _, nid := range b.Nodes {
				n := c.MustNode(nid)
				if n.Kind == cfg.NodeAction && n.Action.Kind == cfg.ActionMessage {
					senders[n.Action.From] = append(senders[n.Action.From], b.Index)
				}
			}
		}
		for role, indices := range senders {
			if len(uniqueInts(indices)) > 1 {
				out = append(out, Finding{
					Check: "parallel_deadlock", Severity: SeverityError, Role: role,
					Message: fmt.Sprintf("role %q sends in more than one branch of parallel %q", role, parallelID),
				})
			}
		}

		// Cross-branch circular wait: branch i depends on branch j if the
		// sender of some message in branch i also sends in branch j.
		dependsOn := map[int]map[int]bool{}
		for _, b := range bs {
			dependsOn[b.Index] = map[int]bool{}
			for _, nid := range b.Nodes {
				n := c.MustNode(nid)
				if n.Kind != cfg.NodeAction || n.Action.Kind != cfg.ActionMessage {
					continue
				}
				senderBranches := uniqueInts(senders[n.Action.From])
				for _, sb := range senderBranches {
					if sb != b.Index {
						dependsOn[b.Index][sb] = true
					}
				}
			}
		}
		for i, deps := range dependsOn {
			for j := range deps {
				if dependsOn[j][i] {
					out = append(out, Finding{
						Check: "parallel_deadlock", Severity: SeverityError,
						Message: fmt.Sprintf("parallel %q branches %d and %d have a cross-branch circular wait", parallelID, i, j),
					})
				}
			}
		}
	}
	return out
}

func uniqueInts(in []int) []int {
	seen := map[int]bool{}
	var out []int
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// --- 5. Race conditions ---

func checkRaceConditions(c *cfg.CFG, branches []parallelBranch) []Finding {
	var out []Finding
	byParallel := map[string][]parallelBranch{}
	for _, b := range branches {
		byParallel[b.ParallelID] = append(byParallel[b.ParallelID], b)
	}

	type channelUse struct {
		channel trace.Channel
		branch  int
	}

	for parallelID, bs := range byParallel {
		var uses []channelUse
		for _, b := range bs {
			for _, nid := range b.Nodes {
				n := c.MustNode(nid)
				if n.Kind != cfg.NodeAction || n.Action.Kind != cfg.ActionMessage {
					continue
				}
				for _, to := range n.Action.To {
					uses = append(uses, channelUse{channel: trace.Channel{From: n.Action.From, To: to}, branch: b.Index})
				}
			}
		}
		for i := 0; i < len(uses); i++ {
			for j := i + 1; j < len(uses); j++ {
				if uses[i].branch == uses[j].branch {
					continue
				}
				if uses[i].channel == uses[j].channel {
					out = append(out, Finding{
						Check: "race_conditions", Severity: SeverityError,
						Message: fmt.Sprintf("parallel %q: channel %s->%s used in branches %d and %d",
							parallelID, uses[i].channel.From, uses[i].channel.To, uses[i].branch, uses[j].branch),
					})
				}
			}
		}
	}
	return out
}

// --- 10. Recursion in parallel ---

func checkRecursionInParallel(c *cfg.CFG, branches []parallelBranch) []Finding {
	var out []Finding
	for _, b := range branches {
		inBranch := map[cfg.NodeID]bool{}
		for _, id := range b.Nodes {
			inBranch[id] = true
		}
		for _, id := range b.Nodes {
			for _, e := range c.Out(id) {
				if e.Kind != cfg.EdgeContinue {
					continue
				}
				if !inBranch[e.To] {
					out = append(out, Finding{
						Check: "recursion_in_parallel", Severity: SeverityError, NodeID: id,
						Message: fmt.Sprintf("continue edge from %s in parallel %q branch %d targets a recursive node outside the branch", id, b.ParallelID, b.Index),
					})
				}
			}
		}
	}
	return out
}

// --- 6. Choice determinism ---

func checkChoiceDeterminism(c *cfg.CFG) []Finding {
	var out []Finding
	for _, n := range c.Nodes() {
		if n.Kind != cfg.NodeBranch {
			continue
		}
		seen := map[trace.Label][]cfg.Edge{}
		for _, e := range c.Out(n.ID) {
			if e.Kind != cfg.EdgeBranch {
				continue
			}
			label, ok := firstMessageLabel(c, e.To)
			if !ok {
				continue
			}
			seen[label] = append(seen[label], e)
		}
		for label, edges := range seen {
			if len(edges) > 1 {
				out = append(out, Finding{
					Check: "choice_determinism", Severity: SeverityError, NodeID: n.ID, Role: n.At, Label: label,
					Message: fmt.Sprintf("branch at %s: label %q is reachable from %d distinct outgoing branches", n.At, label, len(edges)),
				})
			}
		}
	}
	return out
}

// firstMessageLabel walks sequence edges from start until it reaches an
// action node carrying a message, or gives up at a branch/fork/recursive
// boundary.
func firstMessageLabel(c *cfg.CFG, start cfg.NodeID) (trace.Label, bool) {
	id := start
	for i := 0; i < 1000; i++ {
		n := c.MustNode(id)
		if n.Kind == cfg.NodeAction && n.Action.Kind == cfg.ActionMessage {
			return n.Action.Label, true
		}
		if n.Kind == cfg.NodeBranch || n.Kind == cfg.NodeFork || n.Kind == cfg.NodeRecursive {
			return "", false
		}
		out := c.Out(id)
		if len(out) == 0 {
			return "", false
		}
		id = out[0].To
	}
	return "", false
}

// --- 7. Choice mergeability ---

func checkChoiceMergeability(c *cfg.CFG) []Finding {
	var out []Finding
	for _, n := range c.Nodes() {
		if n.Kind != cfg.NodeBranch {
			continue
		}
		type branchRoles struct {
			label string
			roles map[trace.Role]bool
		}
		var branches []branchRoles
		allStatic := map[trace.Role]bool{}

		for _, e := range c.Out(n.ID) {
			if e.Kind != cfg.EdgeBranch {
				continue
			}
			roles := map[trace.Role]bool{}
			for _, nid := range forwardUntilMerge(c, e.To) {
				an := c.MustNode(nid)
				if an.Kind != cfg.NodeAction {
					continue
				}
				for _, role := range an.Action.Participants() {
					if !c.IsDynamicRole(role) {
						roles[role] = true
						allStatic[role] = true
					}
				}
			}
			branches = append(branches, branchRoles{label: e.Label, roles: roles})
		}

		for role := range allStatic {
			var missing []string
			for _, b := range branches {
				if !b.roles[role] {
					missing = append(missing, b.label)
				}
			}
			if len(missing) > 0 && len(missing) < len(branches) {
				out = append(out, Finding{
					Check: "choice_mergeability", Severity: SeverityError, NodeID: n.ID, Role: role,
					Message:  fmt.Sprintf("static role %q is missing from branch(es) %v", role, missing),
					Branches: missing,
				})
			}
		}
	}
	return out
}

// forwardUntilMerge collects every node reachable forward from start
// before the first merge node, not crossing continue edges (those belong
// to a nested loop's own scope).
func forwardUntilMerge(c *cfg.CFG, start cfg.NodeID) []cfg.NodeID {
	seen := map[cfg.NodeID]bool{}
	queue := []cfg.NodeID{start}
	var out []cfg.NodeID
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		n := c.MustNode(id)
		if n.Kind == cfg.NodeMerge {
			continue
		}
		seen[id] = true
		out = append(out, id)
		for _, e := range c.Out(id) {
			if e.Kind == cfg.EdgeContinue {
				continue
			}
			queue = append(queue, e.To)
		}
	}
	return out
}

// --- 8. Connectedness ---

func checkConnectedness(c *cfg.CFG) []Finding {
	seen := map[trace.Role]bool{}
	for _, n := range c.Nodes() {
		if n.Kind != cfg.NodeAction {
			continue
		}
		for _, role := range n.Action.Participants() {
			seen[role] = true
		}
	}
	var out []Finding
	for _, role := range c.Roles {
		if !seen[role] {
			out = append(out, Finding{
				Check: "connectedness", Severity: SeverityError, Role: role,
				Message: fmt.Sprintf("declared role %q never participates in any action", role),
			})
		}
	}
	return out
}

// --- 9. Nested recursion ---

func checkNestedRecursion(c *cfg.CFG) []Finding {
	var out []Finding
	for _, n := range c.Nodes() {
		for _, e := range c.Out(n.ID) {
			if e.Kind != cfg.EdgeContinue {
				continue
			}
			target, ok := c.Node(e.To)
			if !ok || target.Kind != cfg.NodeRecursive {
				out = append(out, Finding{
					Check: "nested_recursion", Severity: SeverityError, NodeID: n.ID,
					Message: fmt.Sprintf("continue edge from %s does not target a recursive node", n.ID),
				})
				continue
			}
			if !forwardReaches(c, e.To, n.ID) {
				out = append(out, Finding{
					Check: "nested_recursion", Severity: SeverityError, NodeID: n.ID,
					Message: fmt.Sprintf("continue edge from %s to %s escapes the recursive node's lexical scope", n.ID, e.To),
				})
			}
		}
	}
	return out
}

// forwardReaches reports whether to is forward-reachable from from over
// non-continue edges, approximating lexical scope for a continue edge's
// source relative to its target recursive node.
func forwardReaches(c *cfg.CFG, from, to cfg.NodeID) bool {
	if from == to {
		return true
	}
	seen := map[cfg.NodeID]bool{from: true}
	queue := []cfg.NodeID{from}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range c.Out(id) {
			if e.Kind == cfg.EdgeContinue {
				continue
			}
			if e.To == to {
				return true
			}
			if !seen[e.To] {
				seen[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}
	return false
}

// --- 12. Multicast ---

func checkMulticast(c *cfg.CFG) []Finding {
	var out []Finding
	for _, n := range c.Nodes() {
		if n.Kind == cfg.NodeAction && n.Action.IsMulticast() {
			out = append(out, Finding{
				Check: "multicast", Severity: SeverityWarning, NodeID: n.ID, Role: n.Action.From, Label: n.Action.Label,
				Message: fmt.Sprintf("action at %s sends %q to %d recipients", n.ID, n.Action.Label, len(n.Action.To)),
			})
		}
	}
	return out
}

// --- 13. Self-communication ---

func checkSelfCommunication(c *cfg.CFG) []Finding {
	var out []Finding
	for _, n := range c.Nodes() {
		if n.Kind == cfg.NodeAction && n.Action.IsSelfCommunication() {
			out = append(out, Finding{
				Check: "self_communication", Severity: SeverityError, NodeID: n.ID, Role: n.Action.From, Label: n.Action.Label,
				Message: fmt.Sprintf("action at %s has %q as both sender and recipient", n.ID, n.Action.From),
			})
		}
	}
	return out
}

// --- 14. Empty choice branch ---

func checkEmptyChoiceBranch(c *cfg.CFG) []Finding {
	var out []Finding
	for _, n := range c.Nodes() {
		if n.Kind != cfg.NodeBranch {
			continue
		}
		for _, e := range c.Out(n.ID) {
			if e.Kind != cfg.EdgeBranch {
				continue
			}
			if target, ok := c.Node(e.To); ok && target.Kind == cfg.NodeMerge {
				out = append(out, Finding{
					Check: "empty_choice_branch", Severity: SeverityError, NodeID: n.ID, Label: trace.Label(e.Label),
					Message: fmt.Sprintf("branch %q at %s goes straight to merge with no action", e.Label, n.ID),
				})
			}
		}
	}
	return out
}

// --- 15. Merge reachability ---

func checkMergeReachability(c *cfg.CFG) []Finding {
	var out []Finding
	for _, n := range c.Nodes() {
		if n.Kind != cfg.NodeBranch {
			continue
		}
		mergeSeen := map[cfg.NodeID]bool{}
		anyContinue := false
		for _, e := range c.Out(n.ID) {
			if e.Kind != cfg.EdgeBranch {
				continue
			}
			m, hasContinue := findMergeOrContinue(c, e.To)
			if hasContinue {
				anyContinue = true
				continue
			}
			if m != "" {
				mergeSeen[m] = true
			} else {
				mergeSeen[""] = true // a branch that converges nowhere
			}
		}
		if anyContinue {
			continue
		}
		if len(mergeSeen) > 1 {
			out = append(out, Finding{
				Check: "merge_reachability", Severity: SeverityError, NodeID: n.ID,
				Message: fmt.Sprintf("branches of %s do not all converge at the same merge node", n.ID),
			})
		}
	}
	return out
}

// findMergeOrContinue walks forward from start and returns the first
// merge node reached, or reports that a continue edge was crossed first.
func findMergeOrContinue(c *cfg.CFG, start cfg.NodeID) (cfg.NodeID, bool) {
	id := start
	seen := map[cfg.NodeID]bool{}
	for i := 0; i < 10000; i++ {
		if seen[id] {
			return "", false
		}
		seen[id] = true
		n := c.MustNode(id)
		if n.Kind == cfg.NodeMerge {
			return id, false
		}
		out := c.Out(id)
		if len(out) == 0 {
			return "", false
		}
		if out[0].Kind == cfg.EdgeContinue {
			return "", true
		}
		id = out[0].To
	}
	return "", false
}
