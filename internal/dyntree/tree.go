// Package dyntree implements a dynamic AABB tree: a balanced binary
// bounding-volume hierarchy keyed by an arbitrary comparable value.
//
// Leaves store the caller's box plus a fattened copy used by the internal
// nodes, so small movements are absorbed as a leaf-only update. Nodes live
// in a slice arena with a free list; indices, not pointers, link them.
// Not safe for concurrent use.
package dyntree

import (
	"github.com/l1jgo/rendertree/internal/geom"
)

const null int32 = -1

// DefaultMargin is the fattening applied to every leaf box.
const DefaultMargin float32 = 0.1

type node[K comparable] struct {
	box    geom.Box // tight box for leaves
	fat    geom.Box // enlarged box; what internal nodes bound
	parent int32
	left   int32
	right  int32
	next   int32 // free list link
	height int32 // leaf = 0, free = -1
	key    K
}

func (n *node[K]) isLeaf() bool { return n.left == null }

// Tree is a dynamic AABB tree. The zero value is not usable; call New.
type Tree[K comparable] struct {
	nodes  []node[K]
	root   int32
	free   int32
	leaves map[K]int32
	margin float32
}

// Option configures a Tree.
type Option func(*options)

type options struct {
	margin   float32
	capacity int
}

// WithMargin sets the leaf fattening. Zero disables fattening.
func WithMargin(m float32) Option {
	return func(o *options) {
		if m >= 0 {
			o.margin = m
		}
	}
}

// WithCapacity preallocates room for n items.
func WithCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}

func New[K comparable](opts ...Option) *Tree[K] {
	o := options{margin: DefaultMargin, capacity: 16}
	for _, fn := range opts {
		fn(&o)
	}
	return &Tree[K]{
		nodes:  make([]node[K], 0, 2*o.capacity),
		root:   null,
		free:   null,
		leaves: make(map[K]int32, o.capacity),
		margin: o.margin,
	}
}

// Len returns the number of items.
func (t *Tree[K]) Len() int { return len(t.leaves) }

// Has reports whether key is present.
func (t *Tree[K]) Has(key K) bool {
	_, ok := t.leaves[key]
	return ok
}

// Get returns the box stored for key.
func (t *Tree[K]) Get(key K) (geom.Box, bool) {
	id, ok := t.leaves[key]
	if !ok {
		return geom.Box{}, false
	}
	return t.nodes[id].box, true
}

// AddOrUpdate inserts key with box, or replaces the box of an existing key.
// An update whose box still fits the leaf's fattened box does not touch the
// tree structure. Reports whether key was newly inserted.
func (t *Tree[K]) AddOrUpdate(key K, box geom.Box) bool {
	if id, ok := t.leaves[key]; ok {
		n := &t.nodes[id]
		n.box = box
		if n.fat.Contains(box) {
			return false
		}
		t.removeLeaf(id)
		n = &t.nodes[id]
		n.fat = box.Enlarge(t.margin)
		t.insertLeaf(id)
		return false
	}

	id := t.allocate()
	n := &t.nodes[id]
	n.box = box
	n.fat = box.Enlarge(t.margin)
	n.key = key
	n.height = 0
	t.leaves[key] = id
	t.insertLeaf(id)
	return true
}

// Remove deletes key. Reports whether it was present.
func (t *Tree[K]) Remove(key K) bool {
	id, ok := t.leaves[key]
	if !ok {
		return false
	}
	delete(t.leaves, key)
	t.removeLeaf(id)
	t.release(id)
	return true
}

// Clear drops every item but keeps the allocated arena.
func (t *Tree[K]) Clear() {
	t.nodes = t.nodes[:0]
	t.root = null
	t.free = null
	clear(t.leaves)
}

// Query calls fn for every item whose box intersects box, until fn
// returns false.
func (t *Tree[K]) Query(box geom.Box, fn func(key K, b geom.Box) bool) {
	if t.root == null {
		return
	}
	stack := make([]int32, 0, 32)
	stack = append(stack, t.root)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &t.nodes[id]
		if !n.fat.Intersects(box) {
			continue
		}
		if n.isLeaf() {
			if n.box.Intersects(box) && !fn(n.key, n.box) {
				return
			}
			continue
		}
		stack = append(stack, n.left, n.right)
	}
}

// Each calls fn for every item until fn returns false. Order is unspecified.
func (t *Tree[K]) Each(fn func(key K, b geom.Box) bool) {
	for key, id := range t.leaves {
		if !fn(key, t.nodes[id].box) {
			return
		}
	}
}

// Height returns the height of the root; -1 for an empty tree.
func (t *Tree[K]) Height() int {
	if t.root == null {
		return -1
	}
	return int(t.nodes[t.root].height)
}

// Bounds returns the fattened box covering every item.
func (t *Tree[K]) Bounds() (geom.Box, bool) {
	if t.root == null {
		return geom.Box{}, false
	}
	return t.nodes[t.root].fat, true
}

func (t *Tree[K]) allocate() int32 {
	if t.free != null {
		id := t.free
		t.free = t.nodes[id].next
		t.nodes[id] = node[K]{parent: null, left: null, right: null, next: null}
		return id
	}
	t.nodes = append(t.nodes, node[K]{parent: null, left: null, right: null, next: null})
	return int32(len(t.nodes) - 1)
}

func (t *Tree[K]) release(id int32) {
	var zero K
	n := &t.nodes[id]
	n.key = zero
	n.height = -1
	n.parent, n.left, n.right = null, null, null
	n.next = t.free
	t.free = id
}

func (t *Tree[K]) insertLeaf(leaf int32) {
	if t.root == null {
		t.root = leaf
		t.nodes[leaf].parent = null
		return
	}

	// Descend picking the child with the lower perimeter cost.
	leafBox := t.nodes[leaf].fat
	idx := t.root
	for !t.nodes[idx].isLeaf() {
		n := &t.nodes[idx]
		area := n.fat.Perimeter()
		combined := n.fat.Union(leafBox).Perimeter()

		cost := 2 * combined
		inherit := 2 * (combined - area)

		costLeft := t.descendCost(n.left, leafBox) + inherit
		costRight := t.descendCost(n.right, leafBox) + inherit

		if cost < costLeft && cost < costRight {
			break
		}
		if costLeft < costRight {
			idx = n.left
		} else {
			idx = n.right
		}
	}

	sibling := idx
	oldParent := t.nodes[sibling].parent
	newParent := t.allocate()

	np := &t.nodes[newParent]
	np.parent = oldParent
	np.fat = leafBox.Union(t.nodes[sibling].fat)
	np.height = t.nodes[sibling].height + 1
	np.left = sibling
	np.right = leaf

	if oldParent != null {
		op := &t.nodes[oldParent]
		if op.left == sibling {
			op.left = newParent
		} else {
			op.right = newParent
		}
	} else {
		t.root = newParent
	}
	t.nodes[sibling].parent = newParent
	t.nodes[leaf].parent = newParent

	t.refit(t.nodes[leaf].parent)
}

func (t *Tree[K]) descendCost(child int32, leafBox geom.Box) float32 {
	c := &t.nodes[child]
	if c.isLeaf() {
		return leafBox.Union(c.fat).Perimeter()
	}
	return leafBox.Union(c.fat).Perimeter() - c.fat.Perimeter()
}

func (t *Tree[K]) removeLeaf(leaf int32) {
	if leaf == t.root {
		t.root = null
		return
	}

	parent := t.nodes[leaf].parent
	grand := t.nodes[parent].parent
	sibling := t.nodes[parent].left
	if sibling == leaf {
		sibling = t.nodes[parent].right
	}

	if grand != null {
		g := &t.nodes[grand]
		if g.left == parent {
			g.left = sibling
		} else {
			g.right = sibling
		}
		t.nodes[sibling].parent = grand
		t.release(parent)
		t.refit(grand)
	} else {
		t.root = sibling
		t.nodes[sibling].parent = null
		t.release(parent)
	}
	t.nodes[leaf].parent = null
}

// refit walks from idx to the root rebalancing and recomputing boxes.
func (t *Tree[K]) refit(idx int32) {
	for idx != null {
		idx = t.balance(idx)
		n := &t.nodes[idx]
		l, r := &t.nodes[n.left], &t.nodes[n.right]
		n.height = 1 + max(l.height, r.height)
		n.fat = l.fat.Union(r.fat)
		idx = n.parent
	}
}

// balance performs a left or right rotation if node a is imbalanced and
// returns the index of the new subtree root.
func (t *Tree[K]) balance(ia int32) int32 {
	a := &t.nodes[ia]
	if a.isLeaf() || a.height < 2 {
		return ia
	}

	ib, ic := a.left, a.right
	b, c := &t.nodes[ib], &t.nodes[ic]
	diff := c.height - b.height

	// Rotate c up.
	if diff > 1 {
		iF, iG := c.left, c.right
		f, g := &t.nodes[iF], &t.nodes[iG]

		c.left = ia
		c.parent = a.parent
		a.parent = ic
		t.replaceChild(c.parent, ia, ic)

		if f.height > g.height {
			c.right = iF
			a.right = iG
			g.parent = ia
			a.fat = b.fat.Union(g.fat)
			c.fat = a.fat.Union(f.fat)
			a.height = 1 + max(b.height, g.height)
			c.height = 1 + max(a.height, f.height)
		} else {
			c.right = iG
			a.right = iF
			f.parent = ia
			a.fat = b.fat.Union(f.fat)
			c.fat = a.fat.Union(g.fat)
			a.height = 1 + max(b.height, f.height)
			c.height = 1 + max(a.height, g.height)
		}
		return ic
	}

	// Rotate b up.
	if diff < -1 {
		iD, iE := b.left, b.right
		d, e := &t.nodes[iD], &t.nodes[iE]

		b.left = ia
		b.parent = a.parent
		a.parent = ib
		t.replaceChild(b.parent, ia, ib)

		if d.height > e.height {
			b.right = iD
			a.left = iE
			e.parent = ia
			a.fat = c.fat.Union(e.fat)
			b.fat = a.fat.Union(d.fat)
			a.height = 1 + max(c.height, e.height)
			b.height = 1 + max(a.height, d.height)
		} else {
			b.right = iE
			a.left = iD
			d.parent = ia
			a.fat = c.fat.Union(d.fat)
			b.fat = a.fat.Union(e.fat)
			a.height = 1 + max(c.height, d.height)
			b.height = 1 + max(a.height, e.height)
		}
		return ib
	}

	return ia
}

func (t *Tree[K]) replaceChild(parent, old, repl int32) {
	if parent == null {
		t.root = repl
		return
	}
	p := &t.nodes[parent]
	if p.left == old {
		p.left = repl
	} else {
		p.right = repl
	}
}
