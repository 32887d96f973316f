package jsonrpc2ws

// status is the result of request_status(id): which pending-entry variant,
// if any, currently occupies a request id.
type status int

const (
	statusInvalid status = iota
	statusPendingCall
	statusPendingBatch
	statusPendingSubscribe
	statusPendingUnsubscribe
	statusActiveSubscription
)

type pendingKind int

const (
	kindPendingCall pendingKind = iota
	kindPendingBatch
	kindPendingSubscribe
	kindPendingUnsubscribe
	kindActiveSubscription
)

// entry is a tagged pending-entry record, keyed by request id in
// taskManager.entries. Exactly one of the payload fields is meaningful,
// selected by kind.
type entry struct {
	kind pendingKind

	callReply       chan callResult
	batchReply      chan batchResult
	subscribeReply  chan subscribeResult
	unsubscribeSub  Id
	unsubscribeResp chan unsubscribeResult
	activeTx        chan SubscriptionNotification
}

// taskManager is the in-memory index of pending entries plus the
// subscription-id -> request-id reverse index. It is touched exclusively by
// the connection task (§4.2, §4.3), so none of its methods take a lock.
type taskManager struct {
	entries     map[uint64]*entry
	subIndex    map[Id]uint64
	subCapacity int
}

func newTaskManager(subCapacity int) *taskManager {
	return &taskManager{
		entries:     make(map[uint64]*entry),
		subIndex:    make(map[Id]uint64),
		subCapacity: subCapacity,
	}
}

func (m *taskManager) insertPendingCall(id uint64, reply chan callResult) bool {
	if _, exists := m.entries[id]; exists {
		return false
	}
	m.entries[id] = &entry{kind: kindPendingCall, callReply: reply}
	return true
}

func (m *taskManager) insertPendingBatch(minID uint64, reply chan batchResult) bool {
	if _, exists := m.entries[minID]; exists {
		return false
	}
	m.entries[minID] = &entry{kind: kindPendingBatch, batchReply: reply}
	return true
}

func (m *taskManager) insertPendingSubscribe(id uint64, reply chan subscribeResult) bool {
	if _, exists := m.entries[id]; exists {
		return false
	}
	m.entries[id] = &entry{kind: kindPendingSubscribe, subscribeReply: reply}
	return true
}

func (m *taskManager) insertPendingUnsubscribe(id uint64, subID Id, reply chan unsubscribeResult) bool {
	if _, exists := m.entries[id]; exists {
		return false
	}
	m.entries[id] = &entry{kind: kindPendingUnsubscribe, unsubscribeSub: subID, unsubscribeResp: reply}
	return true
}

func (m *taskManager) completePendingCall(id uint64) (chan callResult, bool) {
	e, ok := m.entries[id]
	if !ok || e.kind != kindPendingCall {
		return nil, false
	}
	delete(m.entries, id)
	return e.callReply, true
}

func (m *taskManager) completePendingBatch(minID uint64) (chan batchResult, bool) {
	e, ok := m.entries[minID]
	if !ok || e.kind != kindPendingBatch {
		return nil, false
	}
	delete(m.entries, minID)
	return e.batchReply, true
}

func (m *taskManager) completePendingSubscribe(id uint64) (chan subscribeResult, bool) {
	e, ok := m.entries[id]
	if !ok || e.kind != kindPendingSubscribe {
		return nil, false
	}
	delete(m.entries, id)
	return e.subscribeReply, true
}

func (m *taskManager) completePendingUnsubscribe(id uint64) (Id, chan unsubscribeResult, bool) {
	e, ok := m.entries[id]
	if !ok || e.kind != kindPendingUnsubscribe {
		return Id{}, nil, false
	}
	delete(m.entries, id)
	return e.unsubscribeSub, e.unsubscribeResp, true
}

// insertActiveSubscription installs an ActiveSubscription at id, replacing
// whatever was removed by the matching completePendingSubscribe call, and
// adds the subId -> id reverse-index entry. It fails if id is already
// occupied or subId is already indexed.
func (m *taskManager) insertActiveSubscription(id uint64, subID Id, tx chan SubscriptionNotification) bool {
	if _, exists := m.entries[id]; exists {
		return false
	}
	if _, exists := m.subIndex[subID]; exists {
		return false
	}
	m.entries[id] = &entry{kind: kindActiveSubscription, activeTx: tx}
	m.subIndex[subID] = id
	return true
}

// removeActiveSubscription removes the ActiveSubscription at id along with
// its subIndex entry. It is a no-op if the entry is not an ActiveSubscription
// or the index does not match the given subId.
func (m *taskManager) removeActiveSubscription(id uint64, subID Id) {
	e, ok := m.entries[id]
	if !ok || e.kind != kindActiveSubscription {
		return
	}
	if indexed, ok := m.subIndex[subID]; !ok || indexed != id {
		return
	}
	delete(m.entries, id)
	delete(m.subIndex, subID)
}

func (m *taskManager) requestIdBy(subID Id) (uint64, bool) {
	id, ok := m.subIndex[subID]
	return id, ok
}

func (m *taskManager) requestStatus(id uint64) status {
	e, ok := m.entries[id]
	if !ok {
		return statusInvalid
	}
	switch e.kind {
	case kindPendingCall:
		return statusPendingCall
	case kindPendingBatch:
		return statusPendingBatch
	case kindPendingSubscribe:
		return statusPendingSubscribe
	case kindPendingUnsubscribe:
		return statusPendingUnsubscribe
	case kindActiveSubscription:
		return statusActiveSubscription
	default:
		return statusInvalid
	}
}

func (m *taskManager) activeSinkMut(id uint64) (chan SubscriptionNotification, bool) {
	e, ok := m.entries[id]
	if !ok || e.kind != kindActiveSubscription {
		return nil, false
	}
	return e.activeTx, true
}

// drainAll completes every remaining pending entry with cause, and closes
// every active-subscription sink, as the connection task does on
// termination (§4.3). Reply channels are buffered, so these sends never
// block even if no caller is still waiting on them.
func (m *taskManager) drainAll(cause error) {
	for id, e := range m.entries {
		switch e.kind {
		case kindPendingCall:
			e.callReply <- callResult{err: cause}
		case kindPendingBatch:
			e.batchReply <- batchResult{err: cause}
		case kindPendingSubscribe:
			e.subscribeReply <- subscribeResult{err: cause}
		case kindPendingUnsubscribe:
			e.unsubscribeResp <- unsubscribeResult{err: cause}
		case kindActiveSubscription:
			close(e.activeTx)
		}
		delete(m.entries, id)
	}
	for subID := range m.subIndex {
		delete(m.subIndex, subID)
	}
}
