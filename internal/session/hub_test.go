package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"codecollab/internal/models"
	"codecollab/internal/store"
)

// blockingStore delays Load until released, to exercise the single-flight path.
type blockingStore struct {
	*stubStore
	release chan struct{}
	loadEnd int32
}

func (s *blockingStore) Load(ctx context.Context, roomID string) (*store.Document, error) {
	<-s.release
	atomic.AddInt32(&s.loadEnd, 1)
	return s.stubStore.Load(ctx, roomID)
}

func TestGetOrLoadSingleFlight(t *testing.T) {
	docs := &blockingStore{stubStore: newStubStore(), release: make(chan struct{})}
	hub := NewHub(docs, HubOptions{Debounce: time.Hour}, zap.NewNop())

	const joiners = 8
	rooms := make([]*Room, joiners)
	var wg sync.WaitGroup
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			room, err := hub.GetOrLoad(context.Background(), "r1")
			if err != nil {
				t.Errorf("join %d: %v", i, err)
				return
			}
			rooms[i] = room
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(docs.release)
	wg.Wait()

	if n := atomic.LoadInt32(&docs.loadEnd); n != 1 {
		t.Fatalf("expected a single store load, got %d", n)
	}
	for i := 1; i < joiners; i++ {
		if rooms[i] != rooms[0] {
			t.Fatalf("joiner %d got a different room instance", i)
		}
	}
}

func TestEvictionFlushesPendingWrite(t *testing.T) {
	docs := newStubStore()
	hub := NewHub(docs, HubOptions{Debounce: time.Hour}, zap.NewNop())
	reg := NewRegistry(hub)
	ctx := context.Background()

	c := NewClient(nil, testIdentity("a"))
	if _, err := reg.Join(ctx, c, "r1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	room := c.Room()
	if err := room.SubmitEdit(c, "last words"); err != nil {
		t.Fatalf("submit edit: %v", err)
	}

	// Leave before the hour-long debounce could ever fire.
	reg.Leave(c)

	if hub.ActiveRooms() != 0 {
		t.Fatalf("expected room evicted, %d still resident", hub.ActiveRooms())
	}
	if doc := docs.lastSave(); doc == nil || doc.CurrentContent != "last words" {
		t.Fatalf("expected pending edit flushed before eviction, got %#v", doc)
	}

	// A fresh join reloads the committed state from the store.
	c2 := NewClient(nil, testIdentity("b"))
	content, err := reg.Join(ctx, c2, "r1")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if content != "last words" {
		t.Fatalf("expected reloaded content, got %q", content)
	}
}

func TestRegistryOneRoomAtATime(t *testing.T) {
	hub := NewHub(newStubStore(), HubOptions{Debounce: time.Hour}, zap.NewNop())
	reg := NewRegistry(hub)
	ctx := context.Background()

	anchor := NewClient(nil, testIdentity("anchor"))
	if _, err := reg.Join(ctx, anchor, "r1"); err != nil {
		t.Fatalf("join r1: %v", err)
	}

	c := NewClient(nil, testIdentity("a"))
	if _, err := reg.Join(ctx, c, "r1"); err != nil {
		t.Fatalf("join r1: %v", err)
	}
	r1 := c.Room()

	if _, err := reg.Join(ctx, c, "r2"); err != nil {
		t.Fatalf("join r2: %v", err)
	}
	if c.Room().ID != "r2" {
		t.Fatalf("expected membership moved to r2, got %q", c.Room().ID)
	}
	if r1.ClientCount() != 1 {
		t.Fatalf("expected r1 to only keep the anchor, got %d", r1.ClientCount())
	}

	reg.Leave(c)
	if c.Room() != nil {
		t.Fatalf("expected no room after leave")
	}
	reg.Leave(c) // idempotent
}

func TestRejoinSameRoomNoDuplicateBroadcast(t *testing.T) {
	hub := NewHub(newStubStore(), HubOptions{Debounce: time.Hour}, zap.NewNop())
	reg := NewRegistry(hub)
	ctx := context.Background()

	listener := NewClient(nil, testIdentity("listener"))
	cap := newFrameCapture()
	listener.SetSendHook(cap.hook)

	editor := NewClient(nil, testIdentity("editor"))
	if _, err := reg.Join(ctx, editor, "r1"); err != nil {
		t.Fatalf("join editor: %v", err)
	}

	// Redundant joins must not stack subscriptions.
	for i := 0; i < 3; i++ {
		if _, err := reg.Join(ctx, listener, "r1"); err != nil {
			t.Fatalf("join %d: %v", i, err)
		}
	}

	if err := editor.Room().SubmitEdit(editor, "ping"); err != nil {
		t.Fatalf("submit edit: %v", err)
	}

	if got := cap.byType(models.EvtReceiveCode); len(got) != 1 {
		t.Fatalf("expected exactly 1 broadcast after redundant joins, got %d", len(got))
	}
}

func TestHubVersionOpsOnInactiveRoom(t *testing.T) {
	docs := newStubStore()
	ctx := context.Background()
	_ = docs.Save(ctx, &store.Document{
		RoomID:         "cold",
		CurrentContent: "v2",
		Versions: []store.Version{
			{ID: "id-2", Content: "v2", RoomID: "cold"},
			{ID: "id-1", Content: "v1", RoomID: "cold"},
		},
	})
	hub := NewHub(docs, HubOptions{Debounce: time.Hour}, zap.NewNop())

	versions, err := hub.Versions(ctx, "cold")
	if err != nil || len(versions) != 2 {
		t.Fatalf("expected 2 versions, got %d err=%v", len(versions), err)
	}

	content, err := hub.RestoreVersion(ctx, "cold", 1)
	if err != nil || content != "v1" {
		t.Fatalf("expected restore of v1, got %q err=%v", content, err)
	}

	if err := hub.DeleteVersion(ctx, "cold", 0); err != nil {
		t.Fatalf("delete version: %v", err)
	}
	versions, err = hub.Versions(ctx, "cold")
	if err != nil || len(versions) != 1 || versions[0].ID != "id-1" {
		t.Fatalf("expected only id-1 left, got %#v err=%v", versions, err)
	}

	if err := hub.DeleteVersion(ctx, "cold", 5); err != ErrOutOfRange {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if _, err := hub.RestoreVersion(ctx, "cold", 5); err != ErrVersionNotFound {
		t.Fatalf("expected ErrVersionNotFound, got %v", err)
	}

	// Unknown rooms: empty list, rejections for mutations.
	versions, err = hub.Versions(ctx, "missing")
	if err != nil || len(versions) != 0 {
		t.Fatalf("expected empty list for unknown room, got %#v err=%v", versions, err)
	}
	if err := hub.DeleteVersion(ctx, "missing", 0); err != ErrOutOfRange {
		t.Fatalf("expected ErrOutOfRange for unknown room, got %v", err)
	}
}

// Exercises the full room lifecycle: join, edit, broadcast, save, edit,
// restore, matching the collaborative editing flow end to end.
func TestRoomLifecycleScenario(t *testing.T) {
	docs := newStubStore()
	hub := NewHub(docs, HubOptions{Debounce: 20 * time.Millisecond}, zap.NewNop())
	reg := NewRegistry(hub)
	ctx := context.Background()

	a := NewClient(nil, testIdentity("A"))
	b := NewClient(nil, testIdentity("B"))
	bCap := newFrameCapture()
	b.SetSendHook(bCap.hook)

	content, err := reg.Join(ctx, a, "scenario")
	if err != nil || content != "" {
		t.Fatalf("expected empty initial content, got %q err=%v", content, err)
	}
	if _, err := reg.Join(ctx, b, "scenario"); err != nil {
		t.Fatalf("join b: %v", err)
	}

	room := a.Room()
	if err := room.SubmitEdit(a, "hello"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if got := bCap.byType(models.EvtReceiveCode); len(got) != 1 {
		t.Fatalf("expected b to receive the edit, got %#v", bCap.list())
	}

	time.Sleep(80 * time.Millisecond)
	if doc := docs.lastSave(); doc == nil || doc.CurrentContent != "hello" {
		t.Fatalf("expected debounced persist of %q, got %#v", "hello", doc)
	}

	version, err := room.SaveVersion(ctx, a)
	if err != nil {
		t.Fatalf("save version: %v", err)
	}
	if version.Content != "hello" || version.SavedBy != "A" {
		t.Fatalf("unexpected version: %#v", version)
	}

	if err := room.SubmitEdit(a, "hello world"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	time.Sleep(80 * time.Millisecond)

	restored, err := room.RestoreVersion(ctx, a, 0)
	if err != nil || restored != "hello" {
		t.Fatalf("expected restore of %q, got %q err=%v", "hello", restored, err)
	}
	if room.Content() != "hello" {
		t.Fatalf("expected current content %q, got %q", "hello", room.Content())
	}
}

func TestAttachAfterEvictionLandsOnLiveRoom(t *testing.T) {
	hub := NewHub(newStubStore(), HubOptions{Debounce: time.Hour}, zap.NewNop())
	ctx := context.Background()

	// A joiner resolves the room, then the last member leaves and the
	// room is evicted before the join lands.
	stale, err := hub.GetOrLoad(ctx, "r1")
	if err != nil {
		t.Fatalf("load room: %v", err)
	}
	hub.evict(stale)

	c := NewClient(nil, testIdentity("c"))
	room, err := hub.Attach(ctx, "r1", c)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if room == stale {
		t.Fatalf("attached to the evicted instance")
	}
	if stale.ClientCount() != 0 || room.ClientCount() != 1 {
		t.Fatalf("membership split: stale=%d live=%d", stale.ClientCount(), room.ClientCount())
	}

	// Everyone who joins afterwards shares the surviving instance and
	// sees the first client's edits.
	d := NewClient(nil, testIdentity("d"))
	dCap := newFrameCapture()
	d.SetSendHook(dCap.hook)
	room2, err := hub.Attach(ctx, "r1", d)
	if err != nil {
		t.Fatalf("attach second: %v", err)
	}
	if room2 != room {
		t.Fatalf("second joiner got a different room instance")
	}
	if err := room.SubmitEdit(c, "hello"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if got := dCap.byType(models.EvtReceiveCode); len(got) != 1 {
		t.Fatalf("peer missed the edit, frames %#v", dCap.list())
	}
}

func TestJoinLeaveChurnKeepsSingleRoom(t *testing.T) {
	hub := NewHub(newStubStore(), HubOptions{Debounce: time.Hour}, zap.NewNop())
	reg := NewRegistry(hub)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := NewClient(nil, testIdentity(fmt.Sprintf("g%d", i)))
			for n := 0; n < 50; n++ {
				if _, err := reg.Join(ctx, c, "r1"); err != nil {
					t.Errorf("join: %v", err)
					return
				}
				reg.Leave(c)
			}
		}(i)
	}
	wg.Wait()

	a := NewClient(nil, testIdentity("a"))
	b := NewClient(nil, testIdentity("b"))
	bCap := newFrameCapture()
	b.SetSendHook(bCap.hook)
	if _, err := reg.Join(ctx, a, "r1"); err != nil {
		t.Fatalf("join a: %v", err)
	}
	if _, err := reg.Join(ctx, b, "r1"); err != nil {
		t.Fatalf("join b: %v", err)
	}
	if a.Room() != b.Room() {
		t.Fatalf("room split across instances after churn")
	}
	if hub.ActiveRooms() != 1 {
		t.Fatalf("expected a single resident room, got %d", hub.ActiveRooms())
	}
	if err := a.Room().SubmitEdit(a, "ping"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if got := bCap.byType(models.EvtReceiveCode); len(got) != 1 {
		t.Fatalf("peer missed the edit, frames %#v", bCap.list())
	}
}

// gatedSaveStore blocks Save until released, holding open the window
// between a cold version mutation's load and its save.
type gatedSaveStore struct {
	*stubStore
	gate    chan struct{}
	writing int32
}

func (s *gatedSaveStore) Save(ctx context.Context, doc *store.Document) error {
	atomic.StoreInt32(&s.writing, 1)
	<-s.gate
	return s.stubStore.Save(ctx, doc)
}

func TestColdDeleteSerializedAgainstLoad(t *testing.T) {
	docs := &gatedSaveStore{stubStore: newStubStore(), gate: make(chan struct{})}
	ctx := context.Background()
	if err := docs.stubStore.Save(ctx, &store.Document{
		RoomID:         "cold",
		CurrentContent: "v2",
		Versions: []store.Version{
			{ID: "id-2", Content: "v2", RoomID: "cold"},
			{ID: "id-1", Content: "v1", RoomID: "cold"},
		},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	hub := NewHub(docs, HubOptions{Debounce: time.Hour}, zap.NewNop())

	deleted := make(chan error, 1)
	go func() { deleted <- hub.DeleteVersion(ctx, "cold", 0) }()

	// Wait until the delete is mid-write, then race a load against it.
	for deadline := time.Now().Add(time.Second); atomic.LoadInt32(&docs.writing) == 0; {
		if time.Now().After(deadline) {
			t.Fatalf("delete never reached the store")
		}
		time.Sleep(time.Millisecond)
	}

	loaded := make(chan *Room, 1)
	go func() {
		room, err := hub.GetOrLoad(ctx, "cold")
		if err != nil {
			t.Errorf("load: %v", err)
			return
		}
		loaded <- room
	}()

	time.Sleep(50 * time.Millisecond)
	select {
	case <-loaded:
		t.Fatalf("room loaded while the delete was still writing")
	default:
	}

	close(docs.gate)
	if err := <-deleted; err != nil {
		t.Fatalf("delete version: %v", err)
	}
	room := <-loaded
	if v := room.Versions(); len(v) != 1 || v[0].ID != "id-1" {
		t.Fatalf("deleted version resurrected: %#v", v)
	}
}
