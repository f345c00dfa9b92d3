// Intrusive doubly linked list.

// The link fields are embedded into the record itself, so there is no per
// entry allocation and a record can be unlinked in O(1) given only the
// record. Each node carries a reference to its owner, which is what the
// traversal yields. A list must be initialized before use; a node with nil
// links is not on any list.

package kernsim_internal

type ListNode[T any] struct {
	next, prev *ListNode[T]
	owner      T
}

type List[T any] struct {
	root ListNode[T]
}

func (l *List[T]) Init() {
	l.root.next = &l.root
	l.root.prev = &l.root
}

func (n *ListNode[T]) SetOwner(owner T) {
	n.owner = owner
}

func (n *ListNode[T]) Owner() T {
	return n.owner
}

func (n *ListNode[T]) Linked() bool {
	return n.next != nil
}

func (l *List[T]) Empty() bool {
	return l.root.next == &l.root
}

func (l *List[T]) AddTail(n *ListNode[T]) {
	kernAssert(!n.Linked(), "list node added twice")
	last := l.root.prev
	n.prev = last
	n.next = &l.root
	last.next = n
	l.root.prev = n
}

func (n *ListNode[T]) Remove() {
	kernAssert(n.Linked(), "list node removed while not linked")
	n.prev.next = n.next
	n.next.prev = n.prev
	n.next = nil
	n.prev = nil
}

// ForEach invokes visit on each owner, head to tail, until visit returns
// true. The return value is true if the visit was cut short. Removing the
// visited node from within visit is not supported.
func (l *List[T]) ForEach(visit func(owner T) bool) bool {
	for n := l.root.next; n != &l.root; n = n.next {
		if visit(n.owner) {
			return true
		}
	}
	return false
}

// Len walks the list; it is meant for assertions and tests, not for the
// scheduler fast path (which mirrors the runnable length in a counter).
func (l *List[T]) Len() int {
	count := 0
	for n := l.root.next; n != &l.root; n = n.next {
		count++
	}
	return count
}
