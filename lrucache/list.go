/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

// node is an element of the recency list.
type node[K comparable, V any] struct {
	key        K
	value      V
	prev, next *node[K, V]
}

// recencyList is an intrusive doubly linked list.
// head is the most recently used node, tail is the least recently used one.
type recencyList[K comparable, V any] struct {
	head, tail *node[K, V]
}

func (l *recencyList[K, V]) pushFront(n *node[K, V]) {
	n.prev = nil
	n.next = l.head
	if l.head != nil {
		l.head.prev = n
	}
	l.head = n
	if l.tail == nil {
		l.tail = n
	}
}

func (l *recencyList[K, V]) unlink(n *node[K, V]) {
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
}

func (l *recencyList[K, V]) moveToFront(n *node[K, V]) {
	if l.head == n {
		return
	}
	l.unlink(n)
	l.pushFront(n)
}

// popBack detaches and returns the tail, or nil if the list is empty.
func (l *recencyList[K, V]) popBack() *node[K, V] {
	n := l.tail
	if n == nil {
		return nil
	}
	l.unlink(n)
	return n
}

func (l *recencyList[K, V]) reset() {
	l.head, l.tail = nil, nil
}
