package texcache

import "github.com/gogpu/imageapi"

// node is one resident image in a shard's recency list.
type node struct {
	key        imageapi.ImageKey
	prev, next *node
}

// recency orders the keys of a shard from most to least recently used.
// It is not safe for concurrent use; the shard lock guards it.
type recency struct {
	head, tail *node
	len        int
}

func (l *recency) pushFront(key imageapi.ImageKey) *node {
	n := &node{key: key}
	l.linkFront(n)
	return n
}

func (l *recency) touch(n *node) {
	if n == l.head {
		return
	}
	l.unlink(n)
	l.linkFront(n)
}

func (l *recency) remove(n *node) {
	l.unlink(n)
}

// oldest returns the least recently used key.
func (l *recency) oldest() (imageapi.ImageKey, bool) {
	if l.tail == nil {
		return imageapi.ImageKey{}, false
	}
	return l.tail.key, true
}

func (l *recency) clear() {
	l.head, l.tail, l.len = nil, nil, 0
}

func (l *recency) linkFront(n *node) {
	n.prev = nil
	n.next = l.head
	if l.head != nil {
		l.head.prev = n
	}
	l.head = n
	if l.tail == nil {
		l.tail = n
	}
	l.len++
}

func (l *recency) unlink(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next = nil, nil
	l.len--
}
