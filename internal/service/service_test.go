package service

import (
	"Cryptalk/internal/db"
	"Cryptalk/internal/event"
	"Cryptalk/internal/model"
	"Cryptalk/internal/repo"
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// fakeMessageRepo is an in-memory MessageRepository for service tests.
type fakeMessageRepo struct {
	mu   sync.Mutex
	msgs []*model.Message

	insertErr error
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{}
}

func (f *fakeMessageRepo) InsertMessage(_ context.Context, msg *model.Message) (string, error) {
	if f.insertErr != nil {
		return "", f.insertErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	msg.ID = primitive.NewObjectID()
	f.msgs = append(f.msgs, msg)
	return msg.ID.Hex(), nil
}

func (f *fakeMessageRepo) GetMessage(_ context.Context, id string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, m := range f.msgs {
		if m.ID.Hex() == id {
			cp := *m
			return &cp, nil
		}
	}
	return nil, repo.ErrMessageNotFound
}

func (f *fakeMessageRepo) GetConversation(_ context.Context, userA, userB string, page int64) (*db.PaginatedResult[model.Message], error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []model.Message
	for _, m := range f.msgs {
		if m.ReceiverID == nil {
			continue
		}
		if (m.SenderID == userA && *m.ReceiverID == userB) ||
			(m.SenderID == userB && *m.ReceiverID == userA) {
			out = append(out, *m)
		}
	}
	return &db.PaginatedResult[model.Message]{
		Data:       out,
		Total:      int64(len(out)),
		Page:       page,
		TotalPages: 1,
	}, nil
}

func (f *fakeMessageRepo) GetGroupMessages(_ context.Context, groupID string) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []model.Message
	for _, m := range f.msgs {
		if m.GroupID != nil && *m.GroupID == groupID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeMessageRepo) LastFromSender(_ context.Context, msg *model.Message) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var last *model.Message
	for _, m := range f.msgs {
		if m.SenderID != msg.SenderID {
			continue
		}
		if msg.IsGroup() {
			if m.GroupID == nil || *m.GroupID != *msg.GroupID {
				continue
			}
		} else if msg.ReceiverID != nil {
			if m.ReceiverID == nil || *m.ReceiverID != *msg.ReceiverID {
				continue
			}
		}
		if last == nil || m.CreatedAt.After(last.CreatedAt) {
			last = m
		}
	}
	if last == nil {
		return nil, repo.ErrMessageNotFound
	}
	cp := *last
	return &cp, nil
}

func (f *fakeMessageRepo) UpdateText(_ context.Context, id, text string, editedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, m := range f.msgs {
		if m.ID.Hex() == id {
			m.Text = &text
			m.EditedAt = &editedAt
			return nil
		}
	}
	return repo.ErrMessageNotFound
}

func (f *fakeMessageRepo) MarkDelivered(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, m := range f.msgs {
		if m.ID.Hex() == id && !m.Delivered {
			m.Delivered = true
			m.DeliveredAt = &at
		}
	}
	return nil
}

func (f *fakeMessageRepo) MarkRead(_ context.Context, id string, at time.Time, alsoDelivered bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, m := range f.msgs {
		if m.ID.Hex() == id && !m.Read {
			m.Read = true
			m.ReadAt = &at
			if alsoDelivered {
				m.Delivered = true
				m.DeliveredAt = &at
			}
		}
	}
	return nil
}

func (f *fakeMessageRepo) SetReactions(_ context.Context, id string, reactions []model.Reaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, m := range f.msgs {
		if m.ID.Hex() == id {
			m.Reactions = reactions
			return nil
		}
	}
	return repo.ErrMessageNotFound
}

func (f *fakeMessageRepo) DeleteMessage(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, m := range f.msgs {
		if m.ID.Hex() == id {
			f.msgs = append(f.msgs[:i], f.msgs[i+1:]...)
			return nil
		}
	}
	return repo.ErrMessageNotFound
}

// stored returns the canonical stored message, bypassing the copy that
// GetMessage hands out.
func (f *fakeMessageRepo) stored(id string) *model.Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, m := range f.msgs {
		if m.ID.Hex() == id {
			return m
		}
	}
	return nil
}

// fakeUserRepo serves block checks and the key directory.
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func newFakeUserRepo(users ...*model.User) *fakeUserRepo {
	f := &fakeUserRepo{users: make(map[string]*model.User)}
	for _, u := range users {
		f.users[u.UserID] = u
	}
	return f
}

func (f *fakeUserRepo) GetUser(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id]
	if !ok {
		return nil, repo.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUserRepo) SearchUsers(_ context.Context, excludeID, _ string) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []model.User
	for id, u := range f.users {
		if id != excludeID {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeUserRepo) GetPublicKey(ctx context.Context, id string) (string, error) {
	u, err := f.GetUser(ctx, id)
	if err != nil {
		return "", err
	}
	return u.PublicKey, nil
}

func (f *fakeUserRepo) SetPublicKey(ctx context.Context, id, publicKeyPEM string) error {
	u, err := f.GetUser(ctx, id)
	if err != nil {
		return err
	}
	u.PublicKey = publicKeyPEM
	return nil
}

func (f *fakeUserRepo) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	u, err := f.GetUser(ctx, id)
	if err != nil {
		return err
	}
	u.LastSeen = &at
	return nil
}

func (f *fakeUserRepo) EitherBlocked(ctx context.Context, userA, userB string) (bool, error) {
	a, err := f.GetUser(ctx, userA)
	if err != nil {
		return false, err
	}
	b, err := f.GetUser(ctx, userB)
	if err != nil {
		return false, err
	}
	return a.HasBlocked(userB) || b.HasBlocked(userA), nil
}

// Sidebar organisation is handler territory; nothing in this package
// reaches these.
func (f *fakeUserRepo) PinChat(context.Context, string, string) error     { return nil }
func (f *fakeUserRepo) UnpinChat(context.Context, string, string) error   { return nil }
func (f *fakeUserRepo) ArchiveChat(context.Context, string, string) error { return nil }
func (f *fakeUserRepo) UnarchiveChat(context.Context, string, string) error {
	return nil
}
func (f *fakeUserRepo) PinnedChats(context.Context, string) ([]model.User, error) {
	return nil, nil
}
func (f *fakeUserRepo) ArchivedChats(context.Context, string) ([]model.User, error) {
	return nil, nil
}

// fakeGroupRepo holds static groups.
type fakeGroupRepo struct {
	groups map[string]*model.Group
}

func newFakeGroupRepo(groups map[string]*model.Group) *fakeGroupRepo {
	return &fakeGroupRepo{groups: groups}
}

func (f *fakeGroupRepo) GetGroup(_ context.Context, groupID string) (*model.Group, error) {
	g, ok := f.groups[groupID]
	if !ok {
		return nil, repo.ErrGroupNotFound
	}
	return g, nil
}

func (f *fakeGroupRepo) GetMemberIDs(ctx context.Context, groupID string) ([]string, error) {
	g, err := f.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return g.Members, nil
}

// recordedEvent captures one push handed to the notifier.
type recordedEvent struct {
	userID  string // empty for room pushes
	groupID string // empty for user pushes
	ev      event.WsEvent
}

// recordNotifier captures fanout calls instead of touching connections.
type recordNotifier struct {
	mu         sync.Mutex
	direct     []*model.Message
	group      []*model.Message
	events     []recordedEvent
	directLive bool
}

func (n *recordNotifier) RouteDirect(msg *model.Message) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.direct = append(n.direct, msg)
	return n.directLive
}

func (n *recordNotifier) RouteGroup(msg *model.Message, _ []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.group = append(n.group, msg)
}

func (n *recordNotifier) EmitToUser(userID string, ev event.WsEvent) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{userID: userID, ev: ev})
	return true
}

func (n *recordNotifier) EmitToRoom(groupID string, ev event.WsEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{groupID: groupID, ev: ev})
}

func strptr(s string) *string {
	return &s
}
