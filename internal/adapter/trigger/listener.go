// Package trigger turns remote store change streams into notification events.
package trigger

import (
	"context"
	"sync"
	"time"

	"schadenschat/internal/adapter/repository"
	"schadenschat/internal/domain/entity"
	"schadenschat/internal/infrastructure/dedupe"
	"schadenschat/internal/infrastructure/docstore"
	"schadenschat/internal/usecase"
	"schadenschat/pkg/logger"
)

// Dispatcher reacts to store events. NotificationUseCase implements it.
type Dispatcher interface {
	OnRequestCreated(ctx context.Context, request *entity.Request) (usecase.DispatchResult, error)
	OnOfferCreated(ctx context.Context, offer *entity.Offer) (usecase.DispatchResult, error)
	OnMessageCreated(ctx context.Context, message *entity.Message) (usecase.DispatchResult, error)
	OnOfferAccepted(ctx context.Context, offer *entity.Offer) (usecase.DispatchResult, error)
}

type EventKind string

const (
	EventRequestCreated EventKind = "request-created"
	EventOfferCreated   EventKind = "offer-created"
	EventMessageCreated EventKind = "message-created"
	EventOfferAccepted  EventKind = "offer-accepted"
)

type event struct {
	kind    EventKind
	key     string
	request *entity.Request
	offer   *entity.Offer
	message *entity.Message
}

// Listener watches requests and the offers and messages collection groups.
// The first snapshot of each stream is the baseline and produces no events.
type Listener struct {
	store    docstore.Store
	dispatch Dispatcher
	claimer  dedupe.Claimer
	retry    time.Duration
	log      logger.Component

	// accepted holds the offers last seen as accepted, keyed requestId/offerId.
	mu       sync.Mutex
	accepted map[string]bool

	events    chan event
	wg        sync.WaitGroup
	baselines sync.WaitGroup
	ready     chan struct{}
}

func NewListener(store docstore.Store, dispatch Dispatcher, claimer dedupe.Claimer) *Listener {
	return &Listener{
		store:    store,
		dispatch: dispatch,
		claimer:  claimer,
		retry:    5 * time.Second,
		log:      logger.For("trigger"),
		accepted: make(map[string]bool),
		events:   make(chan event, 256),
		ready:    make(chan struct{}),
	}
}

// Start subscribes to all streams and dispatches events until ctx ends.
// Wait blocks until everything has stopped.
func (l *Listener) Start(ctx context.Context) {
	l.wg.Add(4)
	l.baselines.Add(3)
	go func() {
		l.baselines.Wait()
		close(l.ready)
	}()
	go l.watch(ctx, "requests", docstore.Collection(repository.CollectionRequests), nil, l.requestEvents)
	go l.watch(ctx, "offers", docstore.CollectionGroup(repository.CollectionOffers), l.offerBaseline, l.offerEvents)
	go l.watch(ctx, "messages", docstore.CollectionGroup(repository.CollectionMessages), nil, l.messageEvents)
	go l.work(ctx)

	l.log.Info("Listening for requests, offers and messages")
}

// Ready is closed once every stream has delivered its first baseline.
func (l *Listener) Ready() <-chan struct{} {
	return l.ready
}

func (l *Listener) Wait() {
	l.wg.Wait()
}

// watch keeps one subscription alive, resubscribing after a failure. A fresh
// subscription starts with a new baseline.
func (l *Listener) watch(ctx context.Context, name string, q docstore.Query, onBaseline func([]*docstore.Document), toEvents func(docstore.Change) []event) {
	defer l.wg.Done()

	var first sync.Once
	markReady := func() { first.Do(l.baselines.Done) }
	defer markReady()

	for {
		failed := make(chan error, 1)
		baseline := true
		unsubscribe := l.store.Subscribe(ctx, q, func(s docstore.Snapshot) {
			if baseline {
				baseline = false
				if onBaseline != nil {
					onBaseline(s.Docs)
				}
				markReady()
				l.log.Debug("Baseline of %s: %d documents", name, len(s.Docs))
				return
			}
			for _, change := range s.Changes {
				for _, ev := range toEvents(change) {
					select {
					case l.events <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}, func(err error) {
			failed <- err
		})

		select {
		case <-ctx.Done():
			unsubscribe()
			return
		case err := <-failed:
			unsubscribe()
			l.log.Error("Stream %s ended, resubscribing in %s: %v", name, l.retry, err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(l.retry):
		}
	}
}

func (l *Listener) work(ctx context.Context) {
	defer l.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-l.events:
			l.handle(ctx, ev)
		}
	}
}

func (l *Listener) handle(ctx context.Context, ev event) {
	claimed, err := l.claimer.Claim(ctx, ev.key)
	if err != nil {
		l.log.Error("Claiming %s failed, skipping: %v", ev.key, err)
		return
	}
	if !claimed {
		l.log.Debug("Event %s already handled elsewhere", ev.key)
		return
	}

	var result usecase.DispatchResult
	switch ev.kind {
	case EventRequestCreated:
		result, err = l.dispatch.OnRequestCreated(ctx, ev.request)
	case EventOfferCreated:
		result, err = l.dispatch.OnOfferCreated(ctx, ev.offer)
	case EventMessageCreated:
		result, err = l.dispatch.OnMessageCreated(ctx, ev.message)
	case EventOfferAccepted:
		result, err = l.dispatch.OnOfferAccepted(ctx, ev.offer)
	}
	if err != nil {
		l.log.Error("Dispatch of %s failed: %v", ev.key, err)
		return
	}
	l.log.Info("Dispatched %s: %d sent, %d failed, %d tokens pruned", ev.key, result.Sent, result.Failed, result.Pruned)
}

func (l *Listener) requestEvents(change docstore.Change) []event {
	if change.Kind != docstore.ChangeAdded {
		return nil
	}
	var request entity.Request
	if err := change.Doc.DataTo(&request); err != nil {
		l.log.Warn("Skipping unreadable request %s: %v", change.Doc.ID, err)
		return nil
	}
	request.ID = change.Doc.ID
	return []event{{kind: EventRequestCreated, key: string(EventRequestCreated) + ":" + request.ID, request: &request}}
}

func offerKey(doc *docstore.Document) string {
	return doc.ParentID() + "/" + doc.ID
}

func (l *Listener) offerBaseline(docs []*docstore.Document) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accepted = make(map[string]bool)
	for _, doc := range docs {
		if doc.String("status") == string(entity.OfferStatusAccepted) {
			l.accepted[offerKey(doc)] = true
		}
	}
}

// markAccepted records the offer's status and reports whether it just became accepted.
func (l *Listener) markAccepted(key string, accepted bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	was := l.accepted[key]
	if accepted {
		l.accepted[key] = true
	} else {
		delete(l.accepted, key)
	}
	return accepted && !was
}

func (l *Listener) offerEvents(change docstore.Change) []event {
	key := offerKey(change.Doc)
	if change.Kind == docstore.ChangeRemoved {
		l.markAccepted(key, false)
		return nil
	}

	var offer entity.Offer
	if err := change.Doc.DataTo(&offer); err != nil {
		l.log.Warn("Skipping unreadable offer %s: %v", change.Doc.ID, err)
		return nil
	}
	offer.ID = change.Doc.ID
	offer.RequestID = change.Doc.ParentID()

	var events []event
	if change.Kind == docstore.ChangeAdded {
		events = append(events, event{kind: EventOfferCreated, key: string(EventOfferCreated) + ":" + key, offer: &offer})
	}
	// Creation and acceptance can arrive folded into one snapshot.
	if l.markAccepted(key, offer.Status == entity.OfferStatusAccepted) {
		events = append(events, event{kind: EventOfferAccepted, key: string(EventOfferAccepted) + ":" + key, offer: &offer})
	}
	return events
}

func (l *Listener) messageEvents(change docstore.Change) []event {
	if change.Kind != docstore.ChangeAdded {
		return nil
	}
	var message entity.Message
	if err := change.Doc.DataTo(&message); err != nil {
		l.log.Warn("Skipping unreadable message %s: %v", change.Doc.ID, err)
		return nil
	}
	message.ID = change.Doc.ID
	message.RequestID = change.Doc.ParentID()
	key := message.RequestID + "/" + message.ID
	return []event{{kind: EventMessageCreated, key: string(EventMessageCreated) + ":" + key, message: &message}}
}
