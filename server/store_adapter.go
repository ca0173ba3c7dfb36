package server

import (
	"context"
	"database/sql"
	"time"

	"github.com/namtm24/studyblog-chat/auth"
	"github.com/namtm24/studyblog-chat/chat"
	"github.com/namtm24/studyblog-chat/db"
)

// SQLStore adapts the database layer to the chat package's storage
// interfaces. It implements both chat.MessageStore and chat.AuthorDirectory
// so one value wires the hub to the durable side.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(database *sql.DB) *SQLStore {
	return &SQLStore{db: database}
}

func (s *SQLStore) Append(ctx context.Context, roomID string, userID *int64, body string, isAdmin bool, at time.Time) error {
	var uid sql.NullInt64
	if userID != nil {
		uid = sql.NullInt64{Int64: *userID, Valid: true}
	}
	return db.InsertChatMessage(ctx, s.db, roomID, uid, body, isAdmin, at)
}

func (s *SQLStore) Recent(ctx context.Context, roomID string, limit int) ([]chat.Message, error) {
	rows, err := db.RecentChatMessages(ctx, s.db, roomID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]chat.Message, 0, len(rows))
	for _, r := range rows {
		msg := chat.Message{
			ID:        chat.DurableMessageID(r.ID),
			Body:      r.Body,
			Timestamp: r.CreatedAt,
			IsAdmin:   r.IsAdmin,
		}
		if r.UserID.Valid {
			id := r.UserID.Int64
			msg.UserID = &id
		}
		if r.UserName.Valid {
			msg.UserName = r.UserName.String
		}
		if r.UserAvatar.Valid {
			msg.UserAvatar = r.UserAvatar.String
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *SQLStore) ChatAuthors(ctx context.Context) ([]chat.Author, error) {
	rows, err := db.ChatAuthors(ctx, s.db)
	if err != nil {
		return nil, err
	}
	out := make([]chat.Author, 0, len(rows))
	for _, r := range rows {
		a := chat.Author{UserID: r.UserID, UserName: r.Name}
		if r.Avatar.Valid {
			a.UserAvatar = r.Avatar.String
		}
		out = append(out, a)
	}
	return out, nil
}

// UserDirectory adapts the users table to the resolver's lookup interface.
type UserDirectory struct {
	db *sql.DB
}

func NewUserDirectory(database *sql.DB) *UserDirectory {
	return &UserDirectory{db: database}
}

func (d *UserDirectory) UserByID(ctx context.Context, id int64) (*auth.User, error) {
	u, err := db.UserByID(ctx, d.db, id)
	if err != nil {
		return nil, err
	}
	out := &auth.User{ID: u.ID, Name: u.Name, Role: u.Role}
	if u.Avatar.Valid {
		out.Avatar = u.Avatar.String
	}
	return out, nil
}
