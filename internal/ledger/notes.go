package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Nell373/linebot-ai/internal/command"
	"github.com/Nell373/linebot-ai/internal/entity"
)

const (
	maxNotes     = 50
	msgEmptyNote = "筆記標題不可為空"
)

func noteGone(id int64) error {
	return command.Reject(fmt.Sprintf("找不到 ID 為 %d 的筆記。", id))
}

func (s *SQLiteStore) createNote(ctx context.Context, c command.CreateNote) (command.Receipt, error) {
	title := strings.TrimSpace(c.Title)
	if title == "" {
		return command.Receipt{}, command.Reject(msgEmptyNote)
	}
	if err := s.ensureUser(ctx, c.UserID); err != nil {
		return command.Receipt{}, err
	}

	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.stamp()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO notes (user_id, title, content, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			c.UserID, title, strings.TrimSpace(c.Content), now, now)
		if err != nil {
			return fmt.Errorf("failed to insert note: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read note id: %w", err)
		}
		return replaceTags(ctx, tx, id, c.Tags)
	})
	if err != nil {
		return command.Receipt{}, err
	}
	return command.Receipt{ID: id, Message: "已添加筆記：" + title}, nil
}

func (s *SQLiteStore) updateNote(ctx context.Context, c command.UpdateNote) (command.Receipt, error) {
	title := strings.TrimSpace(c.Title)
	if title == "" {
		return command.Receipt{}, command.Reject(msgEmptyNote)
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := s.loadNote(ctx, tx, c.UserID, c.NoteID)
		if err != nil {
			return err
		}
		content := cur.Content
		if v := strings.TrimSpace(c.Content); v != "" {
			content = v
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE notes SET title = ?, content = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
			title, content, s.stamp(), c.NoteID, c.UserID); err != nil {
			return fmt.Errorf("failed to update note: %w", err)
		}
		if c.Tags == nil {
			return nil
		}
		return replaceTags(ctx, tx, c.NoteID, c.Tags)
	})
	if err != nil {
		return command.Receipt{}, err
	}
	return command.Receipt{ID: c.NoteID, Message: fmt.Sprintf("已更新筆記 #%d：%s", c.NoteID, title)}, nil
}

func (s *SQLiteStore) deleteNote(ctx context.Context, c command.DeleteNote) (command.Receipt, error) {
	var title string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := s.loadNote(ctx, tx, c.UserID, c.NoteID)
		if err != nil {
			return err
		}
		title = cur.Title
		if _, err := tx.ExecContext(ctx, `DELETE FROM note_tags WHERE note_id = ?`, c.NoteID); err != nil {
			return fmt.Errorf("failed to delete note tags: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM notes WHERE id = ? AND user_id = ?`, c.NoteID, c.UserID); err != nil {
			return fmt.Errorf("failed to delete note: %w", err)
		}
		return nil
	})
	if err != nil {
		return command.Receipt{}, err
	}
	return command.Receipt{ID: c.NoteID, Message: fmt.Sprintf("已刪除筆記 #%d：%s", c.NoteID, title)}, nil
}

func replaceTags(ctx context.Context, tx *sql.Tx, noteID int64, tags []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM note_tags WHERE note_id = ?`, noteID); err != nil {
		return fmt.Errorf("failed to clear note tags: %w", err)
	}
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO note_tags (note_id, tag) VALUES (?, ?)`, noteID, tag); err != nil {
			return fmt.Errorf("failed to tag note: %w", err)
		}
	}
	return nil
}

type rowsQueryer interface {
	queryer
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const noteColumns = `SELECT id, user_id, title, content, created_at, updated_at FROM notes`

func (s *SQLiteStore) scanNote(row rowScanner) (entity.Note, error) {
	var (
		n                entity.Note
		created, updated int64
	)
	if err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &created, &updated); err != nil {
		return n, err
	}
	n.CreatedAt = s.fromUnix(created)
	n.UpdatedAt = s.fromUnix(updated)
	return n, nil
}

func (s *SQLiteStore) loadNote(ctx context.Context, q rowsQueryer, userID string, id int64) (entity.Note, error) {
	n, err := s.scanNote(q.QueryRowContext(ctx, noteColumns+` WHERE id = ? AND user_id = ?`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return n, noteGone(id)
	}
	if err != nil {
		return n, fmt.Errorf("failed to load note: %w", err)
	}
	tags, err := noteTags(ctx, q, userID, id)
	if err != nil {
		return n, err
	}
	n.Tags = tags[id]
	return n, nil
}

// noteTags maps note ids to their tags in insertion order. id 0 loads the
// tags of every note the user owns.
func noteTags(ctx context.Context, q rowsQueryer, userID string, id int64) (map[int64][]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT nt.note_id, nt.tag FROM note_tags nt JOIN notes n ON n.id = nt.note_id
		 WHERE n.user_id = ? AND (? = 0 OR n.id = ?) ORDER BY nt.rowid`,
		userID, id, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query note tags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[int64][]string)
	for rows.Next() {
		var (
			noteID int64
			tag    string
		)
		if err := rows.Scan(&noteID, &tag); err != nil {
			return nil, fmt.Errorf("failed to scan note tag: %w", err)
		}
		out[noteID] = append(out[noteID], tag)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Note(ctx context.Context, userID string, id int64) (entity.Note, error) {
	return s.loadNote(ctx, s.db, userID, id)
}

// Notes lists the user's notes, most recently updated first. A non-empty
// tag keeps only the notes carrying it.
func (s *SQLiteStore) Notes(ctx context.Context, userID, tag string) ([]entity.Note, error) {
	tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
	rows, err := s.db.QueryContext(ctx,
		noteColumns+` WHERE user_id = ?
		AND (? = '' OR EXISTS (SELECT 1 FROM note_tags WHERE note_id = notes.id AND tag = ?))
		ORDER BY updated_at DESC, id DESC LIMIT ?`,
		userID, tag, tag, maxNotes)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}

	var out []entity.Note
	for rows.Next() {
		n, err := s.scanNote(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		out = append(out, n)
	}
	// The store holds a single connection, so rows must be released before
	// the tag query runs.
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("failed to iterate notes: %w", err)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notes: %w", err)
	}
	if len(out) == 0 {
		return out, nil
	}

	tags, err := noteTags(ctx, s.db, userID, 0)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Tags = tags[out[i].ID]
	}
	return out, nil
}
