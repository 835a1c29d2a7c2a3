package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jking323/TaskHarvester/internal/extraction"
)

type itemRow struct {
	ID          string         `db:"id"`
	SourceRef   string         `db:"source_ref"`
	SourceType  string         `db:"source_type"`
	Position    int            `db:"position"`
	Title       string         `db:"title"`
	Description string         `db:"description"`
	Assignee    sql.NullString `db:"assignee"`
	DueDate     sql.NullString `db:"due_date"`
	Priority    string         `db:"priority"`
	Confidence  float64        `db:"confidence"`
	Tier        string         `db:"tier"`
	Status      string         `db:"status"`
	Context     string         `db:"context"`
	CreatedAt   string         `db:"created_at"`
	UpdatedAt   string         `db:"updated_at"`
}

func toRow(item Item, position int) itemRow {
	row := itemRow{
		ID:          item.ID,
		SourceRef:   item.SourceRef,
		SourceType:  string(item.SourceType),
		Position:    position,
		Title:       item.Title,
		Description: item.Description,
		Priority:    string(item.Priority),
		Confidence:  item.Confidence,
		Tier:        string(item.Tier),
		Status:      string(item.Status),
		Context:     item.Context,
		CreatedAt:   item.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt:   item.UpdatedAt.UTC().Format(timeLayout),
	}
	if item.Assignee != nil {
		row.Assignee = sql.NullString{String: *item.Assignee, Valid: true}
	}
	if item.DueDate != nil {
		row.DueDate = sql.NullString{String: item.DueDate.Format(dateLayout), Valid: true}
	}
	return row
}

func (r itemRow) toItem() (Item, error) {
	item := Item{
		ID: r.ID,
		ActionItem: extraction.ActionItem{
			Title:       r.Title,
			Description: r.Description,
			Priority:    extraction.Priority(r.Priority),
			Confidence:  r.Confidence,
			Context:     r.Context,
			SourceRef:   r.SourceRef,
			SourceType:  extraction.SourceType(r.SourceType),
			Tier:        extraction.ReviewTier(r.Tier),
		},
		Status: Status(r.Status),
	}
	if r.Assignee.Valid {
		a := r.Assignee.String
		item.Assignee = &a
	}
	if r.DueDate.Valid {
		d, err := time.Parse(dateLayout, r.DueDate.String)
		if err != nil {
			return Item{}, fmt.Errorf("item %s: bad due_date %q: %w", r.ID, r.DueDate.String, err)
		}
		item.DueDate = &d
	}
	var err error
	if item.CreatedAt, err = time.Parse(timeLayout, r.CreatedAt); err != nil {
		return Item{}, fmt.Errorf("item %s: bad created_at: %w", r.ID, err)
	}
	if item.UpdatedAt, err = time.Parse(timeLayout, r.UpdatedAt); err != nil {
		return Item{}, fmt.Errorf("item %s: bad updated_at: %w", r.ID, err)
	}
	return item, nil
}
