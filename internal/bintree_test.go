// Tests for bintree.go

package kernsim_internal

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testBintreeInOrderTids(root *TaskInfo) []int {
	tids := make([]int, 0)
	bintreeInOrderVisit(root, func(ti *TaskInfo) bool {
		tids = append(tids, ti.Tid)
		return false
	})
	return tids
}

func testBintreeBuild(t *testing.T, tids []int) (*TaskInfo, map[int]*TaskInfo) {
	var root *TaskInfo
	byTid := make(map[int]*TaskInfo)
	for _, tid := range tids {
		ti := &TaskInfo{Tid: tid, Pid: tid}
		if !bintreeInsert(&root, ti) {
			t.Fatalf("insert tid %d failed", tid)
		}
		byTid[tid] = ti
	}
	return root, byTid
}

func TestBintreeInsertFind(t *testing.T) {
	tids := []int{8, 3, 10, 1, 6, 14, 4, 7, 13, 0}
	root, byTid := testBintreeBuild(t, tids)

	if bintreeInsert(&root, &TaskInfo{Tid: 6}) {
		t.Fatal("duplicate insert succeeded")
	}

	for _, tid := range tids {
		if got := bintreeFind(root, tid); got != byTid[tid] {
			t.Fatalf("find %d: want %p, got %p", tid, byTid[tid], got)
		}
	}
	if got := bintreeFind(root, 99); got != nil {
		t.Fatalf("find 99: want nil, got tid %d", got.Tid)
	}

	want := []int{0, 1, 3, 4, 6, 7, 8, 10, 13, 14}
	if got := testBintreeInOrderTids(root); !cmp.Equal(want, got) {
		t.Fatalf("in-order mismatch (-want +got):\n%s", cmp.Diff(want, got))
	}
}

func TestBintreeRemove(t *testing.T) {
	for _, tc := range []struct {
		name       string
		tids       []int
		removeTids []int
		want       []int
	}{
		{
			name:       "leaf",
			tids:       []int{5, 2, 8},
			removeTids: []int{2},
			want:       []int{5, 8},
		},
		{
			name:       "one_child",
			tids:       []int{5, 2, 8, 9},
			removeTids: []int{8},
			want:       []int{2, 5, 9},
		},
		{
			name:       "two_children",
			tids:       []int{5, 2, 8, 6, 9, 7},
			removeTids: []int{8},
			want:       []int{2, 5, 6, 7, 9},
		},
		{
			name:       "root",
			tids:       []int{5, 2, 8, 6, 9},
			removeTids: []int{5},
			want:       []int{2, 6, 8, 9},
		},
		{
			name:       "all",
			tids:       []int{5, 2, 8, 6, 9},
			removeTids: []int{5, 2, 8, 6, 9},
			want:       []int{},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			root, byTid := testBintreeBuild(t, tc.tids)
			for _, tid := range tc.removeTids {
				if !bintreeRemove(&root, byTid[tid]) {
					t.Fatalf("remove tid %d failed", tid)
				}
				if bintreeFind(root, tid) != nil {
					t.Fatalf("tid %d still found after removal", tid)
				}
			}
			if got := testBintreeInOrderTids(root); !cmp.Equal(tc.want, got) {
				t.Fatalf("in-order mismatch (-want +got):\n%s", cmp.Diff(tc.want, got))
			}
		})
	}
}

func TestBintreeRemoveNotPresent(t *testing.T) {
	root, _ := testBintreeBuild(t, []int{5, 2, 8})
	stranger := &TaskInfo{Tid: 3}
	if bintreeRemove(&root, stranger) {
		t.Fatal("removed a task not in the tree")
	}
}

func TestBintreeRandomized(t *testing.T) {
	rnd := rand.New(rand.NewSource(20250802))
	const numTasks = 256

	perm := rnd.Perm(numTasks)
	var root *TaskInfo
	byTid := make(map[int]*TaskInfo)
	for _, tid := range perm {
		ti := &TaskInfo{Tid: tid}
		if !bintreeInsert(&root, ti) {
			t.Fatalf("insert tid %d failed", tid)
		}
		byTid[tid] = ti
	}

	// Remove a random half:
	removed := make(map[int]bool)
	for _, tid := range rnd.Perm(numTasks)[:numTasks/2] {
		if !bintreeRemove(&root, byTid[tid]) {
			t.Fatalf("remove tid %d failed", tid)
		}
		removed[tid] = true
	}

	want := make([]int, 0, numTasks/2)
	for tid := 0; tid < numTasks; tid++ {
		if !removed[tid] {
			want = append(want, tid)
		}
	}
	if got := testBintreeInOrderTids(root); !cmp.Equal(want, got) {
		t.Fatalf("in-order mismatch (-want +got):\n%s", cmp.Diff(want, got))
	}
}
