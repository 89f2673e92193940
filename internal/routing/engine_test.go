package routing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chatdesk/chatdesk/internal/accounts"
	"github.com/chatdesk/chatdesk/internal/contacts"
	"github.com/chatdesk/chatdesk/internal/media"
	"github.com/chatdesk/chatdesk/internal/messages"
	"github.com/chatdesk/chatdesk/internal/messages/event"
	"github.com/chatdesk/chatdesk/internal/queues"
	"github.com/chatdesk/chatdesk/internal/tickets"
	"github.com/chatdesk/chatdesk/internal/transport"
)

// recorder collects the cross-fake call order so tests can assert that the
// inbound message is stored before any reply leaves.
type recorder struct {
	mu      sync.Mutex
	entries []string
}

func (r *recorder) add(entry string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.entries...)
}

type fakeContacts struct {
	rec     *recorder
	mu      sync.Mutex
	upserts []contacts.UpsertParams
}

func (f *fakeContacts) Upsert(_ context.Context, params contacts.UpsertParams) (contacts.Contact, error) {
	f.rec.add("upsert-contact:" + params.Number)
	f.mu.Lock()
	f.upserts = append(f.upserts, params)
	f.mu.Unlock()
	return contacts.Contact{
		ID:     "contact-" + params.Number,
		Number: params.Number,
		Name:   params.Name,
	}, nil
}

type fakeAccounts struct {
	account accounts.Account
	queues  []queues.Queue
}

func (f *fakeAccounts) GetWithQueues(context.Context, string) (accounts.Account, []queues.Queue, error) {
	return f.account, f.queues, nil
}

type assignCall struct {
	queueID string
	force   bool
}

type fakeTickets struct {
	rec    *recorder
	ticket tickets.Ticket

	mu      sync.Mutex
	assigns []assignCall
}

func (f *fakeTickets) FindOrCreate(_ context.Context, params tickets.FindOrCreateParams) (tickets.Ticket, error) {
	f.rec.add("find-ticket")
	t := f.ticket
	t.ContactID = params.ContactID
	t.AccountID = params.AccountID
	return t, nil
}

func (f *fakeTickets) AssignQueue(_ context.Context, ticketID, queueID string, force bool) (tickets.Ticket, error) {
	f.rec.add("assign-queue:" + queueID)
	f.mu.Lock()
	f.assigns = append(f.assigns, assignCall{queueID: queueID, force: force})
	f.mu.Unlock()
	t := f.ticket
	t.ID = ticketID
	t.QueueID = &queueID
	return t, nil
}

func (f *fakeTickets) UpdateLastMessage(context.Context, string, string) error {
	return nil
}

func (f *fakeTickets) assignCalls() []assignCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]assignCall(nil), f.assigns...)
}

type fakeMessages struct {
	rec *recorder

	mu     sync.Mutex
	stored []messages.Message
}

func (f *fakeMessages) Upsert(_ context.Context, m messages.Message) (messages.Message, error) {
	f.rec.add("store-message:" + m.ID)
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.stored {
		if existing.ID == m.ID {
			f.stored[i] = m
			return m, nil
		}
	}
	f.stored = append(f.stored, m)
	return m, nil
}

func (f *fakeMessages) GetByID(_ context.Context, id string) (messages.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.stored {
		if m.ID == id {
			return m, nil
		}
	}
	return messages.Message{}, messages.ErrMessageNotFound
}

func (f *fakeMessages) UpdateAck(_ context.Context, id string, ack int) (messages.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, m := range f.stored {
		if m.ID == id {
			f.stored[i].Ack = ack
			return f.stored[i], nil
		}
	}
	return messages.Message{}, messages.ErrMessageNotFound
}

func (f *fakeMessages) all() []messages.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]messages.Message(nil), f.stored...)
}

type fakeQueues struct {
	byID map[string]queues.Queue
}

func (f *fakeQueues) GetByID(_ context.Context, id string) (queues.Queue, error) {
	q, ok := f.byID[id]
	if !ok {
		return queues.Queue{}, fmt.Errorf("queue %s not found", id)
	}
	return q, nil
}

type fakeMedia struct{}

func (fakeMedia) Store(_ context.Context, input media.StoreInput) (media.Stored, error) {
	return media.Stored{
		Filename:  input.Filename,
		URL:       "/media/" + input.Filename,
		MediaType: "image",
	}, nil
}

type fakeClient struct {
	rec *recorder

	mu          sync.Mutex
	sentBodies  []string
	downloadErr error
	mediaData   transport.Media
}

func (f *fakeClient) SendText(_ context.Context, _, body string) (transport.MessageEvent, error) {
	f.rec.add("send-reply")
	f.mu.Lock()
	f.sentBodies = append(f.sentBodies, body)
	id := fmt.Sprintf("out-%d", len(f.sentBodies))
	f.mu.Unlock()
	return transport.MessageEvent{ID: id, Body: body, FromMe: true, Kind: transport.KindChat}, nil
}

func (f *fakeClient) ContactInfo(_ context.Context, jid string) (transport.ContactInfo, error) {
	return transport.ContactInfo{
		JID:    jid,
		Number: jidNumber(jid),
		Name:   "Peer " + jidNumber(jid),
	}, nil
}

func (f *fakeClient) DownloadMedia(context.Context, string) (transport.Media, error) {
	if f.downloadErr != nil {
		return transport.Media{}, f.downloadErr
	}
	return f.mediaData, nil
}

func (f *fakeClient) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sentBodies...)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []event.Event
}

func (f *fakePublisher) Publish(evt event.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
}

func (f *fakePublisher) all() []event.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]event.Event(nil), f.events...)
}

type fixture struct {
	engine   *Engine
	session  *transport.Session
	rec      *recorder
	contacts *fakeContacts
	tickets  *fakeTickets
	messages *fakeMessages
	client   *fakeClient
	events   *fakePublisher
}

// fixtureTime is Monday 2024-01-08 20:00 UTC.
var fixtureTime = time.Date(2024, 1, 8, 20, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, account accounts.Account, queueList []queues.Queue, ticket tickets.Ticket) *fixture {
	t.Helper()
	rec := &recorder{}
	byID := make(map[string]queues.Queue, len(queueList))
	for _, q := range queueList {
		byID[q.ID] = q
	}
	fx := &fixture{
		rec:      rec,
		contacts: &fakeContacts{rec: rec},
		tickets:  &fakeTickets{rec: rec, ticket: ticket},
		messages: &fakeMessages{rec: rec},
		client:   &fakeClient{rec: rec},
		events:   &fakePublisher{},
	}
	fx.engine = NewEngine(slog.Default(), Config{MenuDebounce: 40 * time.Millisecond, AckDelay: time.Millisecond}, Deps{
		Contacts: fx.contacts,
		Accounts: &fakeAccounts{account: account, queues: queueList},
		Tickets:  fx.tickets,
		Messages: fx.messages,
		Queues:   &fakeQueues{byID: byID},
		Media:    fakeMedia{},
		Events:   fx.events,
	})
	fx.engine.now = func() time.Time { return fixtureTime }
	t.Cleanup(fx.engine.Close)
	fx.session = &transport.Session{AccountID: "acct-1", Client: fx.client}
	return fx
}

func inboundChat(id, body string) transport.MessageEvent {
	return transport.MessageEvent{
		ID:      id,
		ChatJID: "5511999990001@c.us",
		Kind:    transport.KindChat,
		Body:    body,
		Unread:  1,
	}
}

func openQueue(id, name string) queues.Queue {
	return queues.Queue{ID: id, Name: name, GreetingMessage: "Welcome to " + name, AbsenceMessage: "Closed: " + name}
}

func closedHoursQueue(id, name string) queues.Queue {
	start, end := "09:00", "17:00"
	q := openQueue(id, name)
	q.StartWork = &start
	q.EndWork = &end
	return q
}

func closedDayQueue(id, name string) queues.Queue {
	q := openQueue(id, name)
	q.WorkDays = map[int]bool{0: true}
	return q
}

func TestHandleMessageSkipsEngineEcho(t *testing.T) {
	fx := newFixture(t, accounts.Account{ID: "acct-1"}, []queues.Queue{openQueue("q1", "Sales")}, tickets.Ticket{ID: "t1"})

	evt := inboundChat("m1", TagEngineGenerated("Welcome to Sales"))
	evt.FromMe = true
	require.NoError(t, fx.engine.HandleMessage(context.Background(), fx.session, evt))

	require.Empty(t, fx.rec.list())
	require.Empty(t, fx.messages.all())
}

func TestHandleMessageSkipsBroadcastAndUnknownKinds(t *testing.T) {
	fx := newFixture(t, accounts.Account{ID: "acct-1"}, nil, tickets.Ticket{ID: "t1"})

	broadcast := inboundChat("m1", "hello")
	broadcast.Broadcast = true
	require.NoError(t, fx.engine.HandleMessage(context.Background(), fx.session, broadcast))

	unknown := inboundChat("m2", "hello")
	unknown.Kind = "e2e_notification"
	require.NoError(t, fx.engine.HandleMessage(context.Background(), fx.session, unknown))

	require.Empty(t, fx.messages.all())
}

func TestHandleMessageSkipsFarewellEcho(t *testing.T) {
	account := accounts.Account{ID: "acct-1", FarewellMessage: "Thanks, goodbye!"}
	fx := newFixture(t, account, nil, tickets.Ticket{ID: "t1"})

	evt := inboundChat("m1", "Thanks, goodbye!")
	evt.FromMe = true
	require.NoError(t, fx.engine.HandleMessage(context.Background(), fx.session, evt))
	require.Empty(t, fx.messages.all())

	// The same text inbound is a regular message.
	require.NoError(t, fx.engine.HandleMessage(context.Background(), fx.session, inboundChat("m2", "Thanks, goodbye!")))
	require.Len(t, fx.messages.all(), 1)
}

func TestReingestingSameMessageIsIdempotent(t *testing.T) {
	fx := newFixture(t, accounts.Account{ID: "acct-1"}, nil, tickets.Ticket{ID: "t1"})

	require.NoError(t, fx.engine.HandleMessage(context.Background(), fx.session, inboundChat("m1", "hello")))
	require.NoError(t, fx.engine.HandleMessage(context.Background(), fx.session, inboundChat("m1", "hello")))

	require.Len(t, fx.messages.all(), 1)
}

func TestMediaDownloadFailureIsFatalForMessage(t *testing.T) {
	fx := newFixture(t, accounts.Account{ID: "acct-1"}, nil, tickets.Ticket{ID: "t1"})
	fx.client.downloadErr = fmt.Errorf("stream closed")

	evt := inboundChat("m1", "")
	evt.Kind = transport.KindImage
	evt.HasMedia = true
	err := fx.engine.HandleMessage(context.Background(), fx.session, evt)
	require.Error(t, err)
	require.Contains(t, err.Error(), "download media")
	require.Empty(t, fx.messages.all())
}

func TestSingleQueueAdmitAssignsAndGreets(t *testing.T) {
	fx := newFixture(t, accounts.Account{ID: "acct-1"}, []queues.Queue{openQueue("q1", "Sales")}, tickets.Ticket{ID: "t1"})

	require.NoError(t, fx.engine.HandleMessage(context.Background(), fx.session, inboundChat("m1", "hi")))

	calls := fx.tickets.assignCalls()
	require.Len(t, calls, 1)
	require.Equal(t, "q1", calls[0].queueID)
	require.False(t, calls[0].force)

	sent := fx.client.sent()
	require.Len(t, sent, 1)
	require.True(t, IsEngineGenerated(sent[0]))
	require.Contains(t, sent[0], "Welcome to Sales")
}

func TestSingleQueueDayRejectLeavesUnassigned(t *testing.T) {
	fx := newFixture(t, accounts.Account{ID: "acct-1"}, []queues.Queue{closedDayQueue("q1", "Sales")}, tickets.Ticket{ID: "t1"})

	require.NoError(t, fx.engine.HandleMessage(context.Background(), fx.session, inboundChat("m1", "hi")))

	require.Empty(t, fx.tickets.assignCalls())
	sent := fx.client.sent()
	require.Len(t, sent, 1)
	require.True(t, IsEngineGenerated(sent[0]))
	require.Equal(t, TagEngineGenerated("Closed: Sales\n"+menuBackHint), sent[0])
}

func TestSingleQueueHourRejectLeavesUnassigned(t *testing.T) {
	fx := newFixture(t, accounts.Account{ID: "acct-1"}, []queues.Queue{closedHoursQueue("q1", "Sales")}, tickets.Ticket{ID: "t1"})

	require.NoError(t, fx.engine.HandleMessage(context.Background(), fx.session, inboundChat("m1", "hi")))

	require.Empty(t, fx.tickets.assignCalls())
	sent := fx.client.sent()
	require.Len(t, sent, 1)
	require.Contains(t, sent[0], "Closed: Sales")
	require.Contains(t, sent[0], menuBackHint)
}

func TestStoreBeforeReplyOrdering(t *testing.T) {
	fx := newFixture(t, accounts.Account{ID: "acct-1"}, []queues.Queue{openQueue("q1", "Sales")}, tickets.Ticket{ID: "t1"})

	require.NoError(t, fx.engine.HandleMessage(context.Background(), fx.session, inboundChat("m1", "hi")))

	entries := fx.rec.list()
	storeIdx, sendIdx := -1, -1
	for i, e := range entries {
		if e == "store-message:m1" {
			storeIdx = i
		}
		if e == "send-reply" && sendIdx == -1 {
			sendIdx = i
		}
	}
	require.GreaterOrEqual(t, storeIdx, 0)
	require.GreaterOrEqual(t, sendIdx, 0)
	require.Less(t, storeIdx, sendIdx, "inbound message must be stored before any reply")
}

func TestMultiQueueInvalidSelectionDebouncesMenu(t *testing.T) {
	queueList := []queues.Queue{openQueue("q1", "Sales"), openQueue("q2", "Support"), openQueue("q3", "Billing")}
	account := accounts.Account{ID: "acct-1", GreetingMessage: "Hello! Pick a department:"}
	fx := newFixture(t, account, queueList, tickets.Ticket{ID: "t1"})

	for i := 0; i < 5; i++ {
		evt := inboundChat(fmt.Sprintf("m%d", i), "anybody there?")
		require.NoError(t, fx.engine.HandleMessage(context.Background(), fx.session, evt))
	}
	time.Sleep(200 * time.Millisecond)

	var menus []string
	for _, body := range fx.client.sent() {
		if strings.Contains(body, "*1*") {
			menus = append(menus, body)
		}
	}
	require.Len(t, menus, 1, "burst of invalid selections must yield a single menu")
	menu := menus[0]
	require.True(t, IsEngineGenerated(menu))
	require.Contains(t, menu, "Hello! Pick a department:")
	for i, q := range queueList {
		require.Contains(t, menu, fmt.Sprintf("*%d* - %s", i+1, q.Name))
	}
	require.Less(t, strings.Index(menu, "*1* - Sales"), strings.Index(menu, "*2* - Support"))
	require.Less(t, strings.Index(menu, "*2* - Support"), strings.Index(menu, "*3* - Billing"))
	require.Empty(t, fx.tickets.assignCalls())
}

func TestMultiQueueValidSelectionAssignsAndGreets(t *testing.T) {
	queueList := []queues.Queue{openQueue("q1", "Sales"), openQueue("q2", "Support")}
	fx := newFixture(t, accounts.Account{ID: "acct-1"}, queueList, tickets.Ticket{ID: "t1"})

	require.NoError(t, fx.engine.HandleMessage(context.Background(), fx.session, inboundChat("m1", " 2 ")))

	calls := fx.tickets.assignCalls()
	require.Len(t, calls, 1)
	require.Equal(t, "q2", calls[0].queueID)
	require.True(t, calls[0].force)
	sent := fx.client.sent()
	require.Len(t, sent, 1)
	require.Contains(t, sent[0], "Welcome to Support")
}

func TestMultiQueueHourRejectedSelectionStillAssigns(t *testing.T) {
	queueList := []queues.Queue{openQueue("q1", "Sales"), closedHoursQueue("q2", "Support")}
	fx := newFixture(t, accounts.Account{ID: "acct-1"}, queueList, tickets.Ticket{ID: "t1"})

	require.NoError(t, fx.engine.HandleMessage(context.Background(), fx.session, inboundChat("m1", "2")))

	calls := fx.tickets.assignCalls()
	require.Len(t, calls, 1)
	require.Equal(t, "q2", calls[0].queueID)
	require.True(t, calls[0].force)
	sent := fx.client.sent()
	require.Len(t, sent, 1)
	require.Contains(t, sent[0], "Closed: Support")
	require.Contains(t, sent[0], menuBackHint)
}

func TestMultiQueueDayRejectedSelectionDoesNotAssign(t *testing.T) {
	queueList := []queues.Queue{openQueue("q1", "Sales"), closedDayQueue("q2", "Support")}
	fx := newFixture(t, accounts.Account{ID: "acct-1"}, queueList, tickets.Ticket{ID: "t1"})

	require.NoError(t, fx.engine.HandleMessage(context.Background(), fx.session, inboundChat("m1", "2")))

	require.Empty(t, fx.tickets.assignCalls())
	sent := fx.client.sent()
	require.Len(t, sent, 1)
	require.Contains(t, sent[0], "Closed: Support")
	require.Contains(t, sent[0], menuBackHint)
}

func TestAssignedQueueRecheckSendsAbsenceWithBackHint(t *testing.T) {
	queue := closedHoursQueue("q1", "Sales")
	queueID := queue.ID
	fx := newFixture(t, accounts.Account{ID: "acct-1"}, []queues.Queue{queue}, tickets.Ticket{ID: "t1", QueueID: &queueID})

	require.NoError(t, fx.engine.HandleMessage(context.Background(), fx.session, inboundChat("m1", "hello again")))

	require.Empty(t, fx.tickets.assignCalls())
	sent := fx.client.sent()
	require.Len(t, sent, 1)
	require.Contains(t, sent[0], "Closed: Sales")
	require.Contains(t, sent[0], menuBackHint)
	// The inbound message is stored regardless of the rejection.
	require.Len(t, fx.messages.all(), 2)
}

func TestAssignedQueueOpenStaysQuiet(t *testing.T) {
	queue := openQueue("q1", "Sales")
	queueID := queue.ID
	fx := newFixture(t, accounts.Account{ID: "acct-1"}, []queues.Queue{queue}, tickets.Ticket{ID: "t1", QueueID: &queueID})

	require.NoError(t, fx.engine.HandleMessage(context.Background(), fx.session, inboundChat("m1", "hello again")))

	require.Empty(t, fx.client.sent())
	require.Len(t, fx.messages.all(), 1)
}

func TestTicketWithOperatorSkipsRouting(t *testing.T) {
	userID := "user-1"
	fx := newFixture(t, accounts.Account{ID: "acct-1"}, []queues.Queue{openQueue("q1", "Sales")}, tickets.Ticket{ID: "t1", UserID: &userID})

	require.NoError(t, fx.engine.HandleMessage(context.Background(), fx.session, inboundChat("m1", "hi")))

	require.Empty(t, fx.tickets.assignCalls())
	require.Empty(t, fx.client.sent())
	require.Len(t, fx.messages.all(), 1)
}

func TestVCardImportsContacts(t *testing.T) {
	fx := newFixture(t, accounts.Account{ID: "acct-1"}, nil, tickets.Ticket{ID: "t1"})

	body := "BEGIN:VCARD\nVERSION:3.0\nFN:Jane Roe\nTEL;waid=5511988887777:+55 11 98888-7777\nEND:VCARD"
	evt := inboundChat("m1", body)
	evt.Kind = transport.KindVCard
	require.NoError(t, fx.engine.HandleMessage(context.Background(), fx.session, evt))

	fx.contacts.mu.Lock()
	defer fx.contacts.mu.Unlock()
	var imported bool
	for _, p := range fx.contacts.upserts {
		if p.Number == "5511988887777" && p.Name == "Jane Roe" {
			imported = true
		}
	}
	require.True(t, imported)
}

func TestHandleAckUpdatesAndPublishes(t *testing.T) {
	fx := newFixture(t, accounts.Account{ID: "acct-1"}, nil, tickets.Ticket{ID: "t1"})
	_, err := fx.messages.Upsert(context.Background(), messages.Message{ID: "m1", TicketID: "t1", FromMe: true})
	require.NoError(t, err)

	require.NoError(t, fx.engine.HandleAck(context.Background(), transport.AckEvent{MessageID: "m1", Level: transport.AckRead}))

	stored := fx.messages.all()
	require.Equal(t, int(transport.AckRead), stored[0].Ack)
	published := fx.events.all()
	require.Len(t, published, 1)
	require.Equal(t, event.TypeMessageUpdated, published[0].Type)
	require.Equal(t, "t1", published[0].TicketID)
}

func TestHandleAckUnknownMessageIsNoOp(t *testing.T) {
	fx := newFixture(t, accounts.Account{ID: "acct-1"}, nil, tickets.Ticket{ID: "t1"})
	require.NoError(t, fx.engine.HandleAck(context.Background(), transport.AckEvent{MessageID: "ghost", Level: transport.AckServer}))
	require.Empty(t, fx.events.all())
}
