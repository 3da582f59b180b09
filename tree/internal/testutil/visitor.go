package testutil

import (
	"fmt"

	"github.com/paratreet/treecache/tree"
)

// RecordingVisitor logs every call as "open|node|leaf source->target".
// OpenFn decides openings and defaults to always open.
type RecordingVisitor struct {
	OpenFn func(source, target *tree.Node) bool
	Calls  []string
	Leaves map[tree.Key][]tree.Key // target -> source leaves seen
}

// NewRecordingVisitor returns a visitor that opens everything.
func NewRecordingVisitor() *RecordingVisitor {
	return &RecordingVisitor{Leaves: make(map[tree.Key][]tree.Key)}
}

func (v *RecordingVisitor) Open(source, target *tree.Node) bool {
	v.Calls = append(v.Calls, fmt.Sprintf("open %v->%v", source.Key, target.Key))
	if v.OpenFn == nil {
		return true
	}
	return v.OpenFn(source, target)
}

func (v *RecordingVisitor) Node(source, target *tree.Node) {
	v.Calls = append(v.Calls, fmt.Sprintf("node %v->%v", source.Key, target.Key))
}

func (v *RecordingVisitor) Leaf(source, target *tree.Node) {
	v.Calls = append(v.Calls, fmt.Sprintf("leaf %v->%v", source.Key, target.Key))
	v.Leaves[target.Key] = append(v.Leaves[target.Key], source.Key)
}
