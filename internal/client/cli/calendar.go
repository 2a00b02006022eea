package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/timegrid/internal/client/models"
	"github.com/google/uuid"
)

// FeedAdd subscribes a calendar feed. The feed is fetched immediately and
// then refreshed on the configured interval.
func (a *App) FeedAdd(ctx context.Context) error {
	name, err := getSimpleText(a.reader, "Enter feed name", os.Stdout)
	if err != nil {
		return err
	}
	url, err := getSimpleText(a.reader, "Enter feed URL", os.Stdout)
	if err != nil {
		return err
	}

	source := models.CalendarSource{ID: uuid.NewString(), Name: name, URL: url}
	if err := a.calendar.AddSource(ctx, source); err != nil {
		return err
	}
	printlnFn("Subscribed", name, "as", source.ID)
	return nil
}

// FeedRemove unsubscribes a feed and drops its events.
// Usage: feedrm <source-id>
func (a *App) FeedRemove(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printlnFn("Usage: feedrm <source-id>")
		return nil
	}
	a.calendar.RemoveSource(ctx, args[0])
	printlnFn("Unsubscribed", args[0])
	return nil
}

// Events prints the merged calendar, all feeds combined, sorted by start time.
func (a *App) Events(ctx context.Context) error {
	events := a.calendar.Events()
	if len(events) == 0 {
		printlnFn("No events")
		return nil
	}
	for _, e := range events {
		printlnFn(fmt.Sprintf("%s  %s  %s", e.Start.Format("2006-01-02 15:04"), e.Title, e.ID))
	}
	return nil
}
