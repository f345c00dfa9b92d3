// Intrusive binary search tree keyed by task id.

// Like the state lists, the node is embedded into the task record: no
// separate allocation per entry. The tree is not rebalanced; task counts in
// a teaching kernel stay small enough that the simplicity wins.

package kernsim_internal

type BintreeNode struct {
	left, right *TaskInfo
}

// bintreeInsert adds ti to the tree rooted at *rootp. It returns false,
// leaving the tree unchanged, if a task with the same tid is already
// present.
func bintreeInsert(rootp **TaskInfo, ti *TaskInfo) bool {
	slot := rootp
	for *slot != nil {
		switch {
		case ti.Tid < (*slot).Tid:
			slot = &(*slot).treeByTidNode.left
		case ti.Tid > (*slot).Tid:
			slot = &(*slot).treeByTidNode.right
		default:
			return false
		}
	}
	ti.treeByTidNode.left = nil
	ti.treeByTidNode.right = nil
	*slot = ti
	return true
}

// bintreeRemove unlinks ti from the tree rooted at *rootp. It returns false
// if ti is not in the tree.
func bintreeRemove(rootp **TaskInfo, ti *TaskInfo) bool {
	slot := rootp
	for *slot != nil && *slot != ti {
		if ti.Tid < (*slot).Tid {
			slot = &(*slot).treeByTidNode.left
		} else {
			slot = &(*slot).treeByTidNode.right
		}
	}
	if *slot == nil {
		return false
	}

	n := &ti.treeByTidNode
	switch {
	case n.left == nil:
		*slot = n.right
	case n.right == nil:
		*slot = n.left
	default:
		// Two children: splice in the in-order successor, i.e. the leftmost
		// task of the right subtree.
		succSlot := &n.right
		for (*succSlot).treeByTidNode.left != nil {
			succSlot = &(*succSlot).treeByTidNode.left
		}
		succ := *succSlot
		*succSlot = succ.treeByTidNode.right
		succ.treeByTidNode.left = n.left
		succ.treeByTidNode.right = n.right
		*slot = succ
	}
	n.left = nil
	n.right = nil
	return true
}

func bintreeFind(root *TaskInfo, tid int) *TaskInfo {
	for root != nil {
		switch {
		case tid < root.Tid:
			root = root.treeByTidNode.left
		case tid > root.Tid:
			root = root.treeByTidNode.right
		default:
			return root
		}
	}
	return nil
}

// bintreeInOrderVisit invokes visit on each task in ascending tid order
// until visit returns true. The return value is true if the visit was cut
// short. The ascending order is relied upon by the pid allocator.
func bintreeInOrderVisit(root *TaskInfo, visit func(ti *TaskInfo) bool) bool {
	if root == nil {
		return false
	}
	if bintreeInOrderVisit(root.treeByTidNode.left, visit) {
		return true
	}
	if visit(root) {
		return true
	}
	return bintreeInOrderVisit(root.treeByTidNode.right, visit)
}
