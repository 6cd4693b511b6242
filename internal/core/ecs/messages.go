package ecs

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// QueueType selects when a posted message is delivered.
type QueueType uint8

const (
	// QueuePostAsync delivers after the async phase.
	QueuePostAsync QueueType = iota
	// QueuePostTransform delivers after transform propagation.
	QueuePostTransform
	// QueueNextFrame delivers at the start of the next update.
	QueueNextFrame
	// QueueAfterInitialized delivers after pending components initialized.
	QueueAfterInitialized
	queueCount
)

func (q QueueType) String() string {
	switch q {
	case QueuePostAsync:
		return "PostAsync"
	case QueuePostTransform:
		return "PostTransform"
	case QueueNextFrame:
		return "NextFrame"
	case QueueAfterInitialized:
		return "AfterInitialized"
	}
	return fmt.Sprintf("QueueType(%d)", uint8(q))
}

// MsgDeleteObject deletes the receiving object when delivered.
type MsgDeleteObject struct {
	AlsoDeleteEmptyParents bool
}

type ChildChange uint8

const (
	ChildAdded ChildChange = iota
	ChildRemoved
)

// MsgChildrenChanged is sent to objects with child change notifications.
type MsgChildrenChanged struct {
	Type   ChildChange
	Parent ObjectHandle
	Child  ObjectHandle
}

type ParentChange uint8

const (
	ParentLinked ParentChange = iota
	ParentUnlinked
)

// MsgParentChanged is sent to objects with parent change notifications.
type MsgParentChanged struct {
	Type   ParentChange
	Parent ObjectHandle
}

// SortingKeyer lets a message type order itself within a queue.
type SortingKeyer interface {
	SortingKey() int32
}

type queuedMessage struct {
	msg       any
	object    ObjectHandle
	component ComponentHandle
	recursive bool
	due       time.Duration
	sortKey   int32
	seq       uint64
}

func (m *queuedMessage) receiver() uint64 {
	if !m.component.IsZero() {
		return uint64(m.component.ID)
	}
	return uint64(m.object.ID)
}

// messageQueues holds one regular and one timed list per queue type.
// Posting is safe from any goroutine.
type messageQueues struct {
	mu      sync.Mutex
	seq     uint64
	regular [queueCount][]queuedMessage
	timed   [queueCount][]queuedMessage
}

func (q *messageQueues) clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.regular {
		q.regular[i] = nil
		q.timed[i] = nil
	}
}

// pending returns the number of queued messages of type t.
func (q *messageQueues) pending(t QueueType) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.regular[t]) + len(q.timed[t])
}

// sortMessages orders by due time, sorting key, receiver and post order so
// delivery does not depend on which goroutine posted first.
func sortMessages(ms []queuedMessage) {
	sort.SliceStable(ms, func(i, j int) bool {
		a, b := &ms[i], &ms[j]
		if a.due != b.due {
			return a.due < b.due
		}
		if a.sortKey != b.sortKey {
			return a.sortKey < b.sortKey
		}
		if ra, rb := a.receiver(), b.receiver(); ra != rb {
			return ra < rb
		}
		return a.seq < b.seq
	})
}

// PostMessage queues msg for the components of receiver. A positive delay
// makes it a timed message due at Clock()+delay.
func (w *World) PostMessage(receiver ObjectHandle, msg any, queue QueueType, delay time.Duration) {
	w.post(queuedMessage{msg: msg, object: receiver}, queue, delay)
}

// PostMessageRecursive is PostMessage delivering to the whole subtree.
func (w *World) PostMessageRecursive(receiver ObjectHandle, msg any, queue QueueType, delay time.Duration) {
	w.post(queuedMessage{msg: msg, object: receiver, recursive: true}, queue, delay)
}

func (w *World) PostMessageToComponent(receiver ComponentHandle, msg any, queue QueueType, delay time.Duration) {
	w.post(queuedMessage{msg: msg, component: receiver}, queue, delay)
}

func (w *World) post(m queuedMessage, queue QueueType, delay time.Duration) {
	if k, ok := m.msg.(SortingKeyer); ok {
		m.sortKey = k.SortingKey()
	}
	q := &w.queues
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	m.seq = q.seq
	if delay > 0 {
		m.due = w.clock + delay
		q.timed[queue] = append(q.timed[queue], m)
		return
	}
	q.regular[queue] = append(q.regular[queue], m)
}

// PendingMessages reports how many messages wait in queue.
func (w *World) PendingMessages(queue QueueType) int {
	return w.queues.pending(queue)
}

// deliverQueue delivers the regular messages queued so far and the timed
// messages that are due. Messages posted during delivery wait for the next
// delivery of the same queue.
func (w *World) deliverQueue(t QueueType) {
	q := &w.queues
	q.mu.Lock()
	regular := q.regular[t]
	q.regular[t] = nil
	var due []queuedMessage
	rest := q.timed[t][:0]
	for _, m := range q.timed[t] {
		if m.due <= w.clock {
			due = append(due, m)
		} else {
			rest = append(rest, m)
		}
	}
	q.timed[t] = rest
	q.mu.Unlock()

	sortMessages(regular)
	sortMessages(due)
	for i := range regular {
		w.deliver(&regular[i], t)
	}
	for i := range due {
		w.deliver(&due[i], t)
	}
}

func (w *World) deliver(m *queuedMessage, t QueueType) {
	var ok bool
	if !m.component.IsZero() {
		ok = w.sendToComponent(m.component, m.msg)
	} else {
		ok = w.sendToObject(m.object, m.msg, m.recursive)
	}
	if !ok {
		w.log.Warn("message receiver does not exist",
			zap.String("message", fmt.Sprintf("%T", m.msg)),
			zap.Stringer("queue", t))
	}
}

// SendMessage delivers msg to receiver's components immediately.
func (w *World) SendMessage(receiver ObjectHandle, msg any) bool {
	w.checkWrite()
	return w.sendToObject(receiver, msg, false)
}

func (w *World) SendMessageRecursive(receiver ObjectHandle, msg any) bool {
	w.checkWrite()
	return w.sendToObject(receiver, msg, true)
}

func (w *World) SendMessageToComponent(receiver ComponentHandle, msg any) bool {
	w.checkWrite()
	return w.sendToComponent(receiver, msg)
}

func (w *World) sendToComponent(h ComponentHandle, msg any) bool {
	c, ok := w.TryGetComponent(h)
	if !ok {
		return false
	}
	if mh, ok := c.(MessageHandler); ok && c.Base().IsInitialized() {
		mh.HandleMessage(msg)
	}
	return true
}

func (w *World) sendToObject(h ObjectHandle, msg any, recursive bool) bool {
	obj, ok := w.objectPtr(h)
	if !ok {
		return false
	}
	if del, ok := msg.(MsgDeleteObject); ok {
		w.deleteObject(h, del.AlsoDeleteEmptyParents)
		return true
	}
	// Handlers may add or remove components and children.
	comps := append([]ComponentHandle(nil), obj.components...)
	var children []ObjectHandle
	if recursive {
		children = append(children, obj.children...)
	}
	for _, ch := range comps {
		w.sendToComponent(ch, msg)
	}
	for _, ch := range children {
		w.sendToObject(ch, msg, true)
	}
	return true
}

func (w *World) notifyChildrenChanged(parent *GameObject, child ObjectHandle, change ChildChange) {
	if parent.flags.Has(FlagChildChangesNotifications) {
		w.sendToObject(parent.handle, MsgChildrenChanged{Type: change, Parent: parent.handle, Child: child}, false)
	}
}

func (w *World) notifyParentChanged(obj *GameObject, change ParentChange, parent ObjectHandle) {
	if obj.flags.Has(FlagParentChangesNotifications) {
		w.sendToObject(obj.handle, MsgParentChanged{Type: change, Parent: parent}, false)
	}
}
