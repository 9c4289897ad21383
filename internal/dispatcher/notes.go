package dispatcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Nell373/linebot-ai/internal/command"
	"github.com/Nell373/linebot-ai/internal/entity"
	"github.com/Nell373/linebot-ai/internal/grammar"
	"github.com/Nell373/linebot-ai/internal/reply"
)

func (d *Dispatcher) addNote(ctx context.Context, userID string, in grammar.NoteAdd) Result {
	return d.finish(ctx, userID, command.CreateNote{UserID: userID, Title: in.Title, Content: in.Content, Tags: in.Tags})
}

func (d *Dispatcher) updateNote(ctx context.Context, userID string, in grammar.NoteUpdate) Result {
	return d.finish(ctx, userID, command.UpdateNote{
		UserID:  userID,
		NoteID:  in.ID,
		Title:   in.Title,
		Content: in.Content,
		Tags:    in.Tags,
	})
}

func (d *Dispatcher) showNotes(ctx context.Context, userID, tag string) Result {
	notes, err := d.reader.Notes(ctx, userID, tag)
	if err != nil {
		return d.readFailed(ctx, "notes", err)
	}
	return Result{Reply: reply.Text(noteListText(notes, tag, d.loc))}
}

func (d *Dispatcher) showNote(ctx context.Context, userID string, id int64) Result {
	n, err := d.reader.Note(ctx, userID, id)
	if err != nil {
		return d.notFoundOrFailed(ctx, "note", err)
	}
	return Result{Reply: reply.Text(noteDetailText(n, d.loc))}
}

func tagSuffix(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return " [" + strings.Join(tags, ", ") + "]"
}

func noteListText(notes []entity.Note, tag string, loc *time.Location) string {
	if len(notes) == 0 {
		if tag != "" {
			return "沒有找到標籤為「" + tag + "」的筆記。"
		}
		return "沒有找到筆記。"
	}
	lines := []string{"您的筆記列表："}
	if tag != "" {
		lines[0] = "標籤「" + tag + "」的筆記："
	}
	for _, n := range notes {
		lines = append(lines, fmt.Sprintf("%d. %s%s - %s", n.ID, n.Title, tagSuffix(n.Tags), n.UpdatedAt.In(loc).Format("2006-01-02")))
	}
	return strings.Join(lines, "\n")
}

func noteDetailText(n entity.Note, loc *time.Location) string {
	lines := []string{fmt.Sprintf("筆記 #%d: %s", n.ID, n.Title)}
	if len(n.Tags) > 0 {
		lines = append(lines, "標籤: "+strings.Join(n.Tags, ", "))
	}
	content := n.Content
	if content == "" {
		content = "（無內容）"
	}
	lines = append(lines, "更新時間: "+n.UpdatedAt.In(loc).Format("2006-01-02 15:04"), "---", content)
	return strings.Join(lines, "\n")
}
