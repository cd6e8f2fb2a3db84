package decision

import "log/slog"

// defaultLeafMessage is the message attached to synthesized leaves.
func defaultLeafMessage(o Outcome) string {
	switch o {
	case OutcomeApprove:
		return "Approved: all criteria satisfied"
	case OutcomeDecline:
		return "Declined: disqualifying criteria met"
	default:
		return "Referred: manual underwriting review required"
	}
}

// EnsureComplete enforces the completeness guarantees on an assembled
// tree:
//
//  1. every outcome in {APPROVE, DECLINE, REFER} has a leaf,
//     synthesizing missing ones at the reserved precedences;
//  2. every BRANCH with no outgoing edge gets a DEFAULT_PATH to the
//     REFER leaf;
//  3. nodes unreachable from ROOT are reattached rather than left
//     orphaned.
func EnsureComplete(t *Tree) {
	root, ok := t.Root()
	if !ok {
		root = &Node{
			ID:          nodeID(t.SectionID, RoleRoot, "root"),
			Role:        RoleRoot,
			Expression:  "Policy entry",
			Synthesized: true,
		}
		t.Nodes = append(t.Nodes, *root)
		root, _ = t.Root()
	}

	for _, o := range []Outcome{OutcomeApprove, OutcomeDecline, OutcomeRefer} {
		if _, exists := t.leafFor(o); exists {
			continue
		}
		t.Nodes = append(t.Nodes, Node{
			ID:          nodeID(t.SectionID, RoleLeaf, string(o)),
			Role:        RoleLeaf,
			Outcome:     o,
			Precedence:  leafPrecedence(o),
			Expression:  defaultLeafMessage(o),
			Synthesized: true,
		})
		slog.Debug("decision: synthesized leaf", "section", t.SectionID, "outcome", o)
	}

	refer, _ := t.leafFor(OutcomeRefer)

	// Dead-end branches defer to REFER.
	for _, b := range t.Branches() {
		if len(t.outgoing(b.ID)) == 0 {
			t.addEdge(b.ID, refer.ID, EdgeDefaultPath)
		}
	}

	// A tree with no branches still needs its leaves reachable.
	branches := t.Branches()
	if len(branches) == 0 {
		for _, leaf := range t.Leaves() {
			t.addEdge(root.ID, leaf.ID, EdgeResultsIn)
		}
	}

	reattachOrphans(t)
}

// reattachOrphans connects nodes unreachable from ROOT back into the
// tree: branches enter from ROOT, leaves hang off the lowest-precedence
// branch (or ROOT when no branch exists).
func reattachOrphans(t *Tree) {
	root, ok := t.Root()
	if !ok {
		return
	}

	// Iterate until stable: reattaching one orphan can make others
	// reachable through it.
	for {
		reach := t.reachable()
		var fixed bool
		for i := range t.Nodes {
			n := &t.Nodes[i]
			if reach[n.ID] {
				continue
			}
			switch n.Role {
			case RoleBranch, RoleGateway:
				t.addEdge(root.ID, n.ID, EdgeIfTrue)
			case RoleLeaf, RoleTerminal:
				from := root.ID
				if branches := t.Branches(); len(branches) > 0 {
					last := branches[0]
					for _, b := range branches {
						if b.Precedence > last.Precedence {
							last = b
						}
					}
					from = last.ID
				}
				t.addEdge(from, n.ID, EdgeResultsIn)
			default:
				continue
			}
			slog.Debug("decision: reattached orphan", "section", t.SectionID, "node", n.ID, "role", n.Role)
			fixed = true
			break
		}
		if !fixed {
			return
		}
	}
}
