package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/timegrid/internal/client/models"
)

func parseEntityType(s string) (models.EntityType, error) {
	switch s {
	case "client", "clients":
		return models.EntityClient, nil
	case "project", "projects":
		return models.EntityProject, nil
	case "entry", "entries", "time_entry":
		return models.EntityTimeEntry, nil
	default:
		return "", fmt.Errorf("unknown entity type %q (expected client, project or entry)", s)
	}
}

// List prints the merged view of one entity collection.
// Usage: list <client|project|entry>
func (a *App) List(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printlnFn("Usage: list <client|project|entry>")
		return nil
	}
	t, err := parseEntityType(args[0])
	if err != nil {
		return err
	}

	records, err := a.entities.List(ctx, t)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		printlnFn("No records")
		return nil
	}
	for _, r := range records {
		printlnFn(string(r))
	}
	return nil
}

// Add prompts for the fields of a new record and stores it: directly on the
// server while online, optimistically in the local queue otherwise.
// Usage: add <client|project|entry>
func (a *App) Add(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printlnFn("Usage: add <client|project|entry>")
		return nil
	}
	t, err := parseEntityType(args[0])
	if err != nil {
		return err
	}

	payload, err := a.promptRecord(t)
	if err != nil {
		return err
	}

	record, err := a.entities.Add(ctx, t, payload)
	if err != nil {
		return err
	}
	printlnFn("Stored:", string(record))
	return nil
}

func (a *App) promptRecord(t models.EntityType) (json.RawMessage, error) {
	fields := map[string]any{}

	name, err := getSimpleText(a.reader, "Enter name", os.Stdout)
	if err != nil {
		return nil, err
	}
	fields["name"] = name

	switch t {
	case models.EntityProject:
		clientID, err := getSimpleText(a.reader, "Enter client id", os.Stdout)
		if err != nil {
			return nil, err
		}
		fields["client_id"] = clientID
	case models.EntityTimeEntry:
		projectID, err := getSimpleText(a.reader, "Enter project id", os.Stdout)
		if err != nil {
			return nil, err
		}
		start, err := getSimpleText(a.reader, "Enter start (RFC 3339)", os.Stdout)
		if err != nil {
			return nil, err
		}
		end, err := getSimpleText(a.reader, "Enter end (RFC 3339)", os.Stdout)
		if err != nil {
			return nil, err
		}
		fields["project_id"] = projectID
		fields["start"] = start
		fields["end"] = end
	}

	return json.Marshal(fields)
}

// Update prompts for replacement fields and rewrites a record in place. The
// mutation takes the same path as Add: straight to the server while online,
// queued and shadowing the cached record otherwise.
// Usage: update <client|project|entry> <id>
func (a *App) Update(ctx context.Context, args []string) error {
	if len(args) < 2 {
		printlnFn("Usage: update <client|project|entry> <id>")
		return nil
	}
	t, err := parseEntityType(args[0])
	if err != nil {
		return err
	}

	payload, err := a.promptRecord(t)
	if err != nil {
		return err
	}

	record, err := a.entities.Update(ctx, t, args[1], payload)
	if err != nil {
		return err
	}
	printlnFn("Updated:", string(record))
	return nil
}

// Delete removes a record by identifier.
// Usage: delete <client|project|entry> <id>
func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) < 2 {
		printlnFn("Usage: delete <client|project|entry> <id>")
		return nil
	}
	t, err := parseEntityType(args[0])
	if err != nil {
		return err
	}

	if err := a.entities.Delete(ctx, t, args[1]); err != nil {
		return err
	}
	printlnFn("Deleted", args[1])
	return nil
}

// Sync triggers a queue drain. Safe to call at any time; a drain already in
// progress absorbs the request.
func (a *App) Sync(ctx context.Context) error {
	return a.engine.Sync(ctx)
}

// Retry clears the parked flag of an abandoned operation so the next drain
// picks it up again.
// Usage: retry <operation-id>
func (a *App) Retry(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printlnFn("Usage: retry <operation-id>")
		return nil
	}
	if err := a.engine.RetryFailed(ctx, args[0]); err != nil {
		return err
	}
	return a.engine.Sync(ctx)
}

// Status prints the latest connectivity and queue snapshot.
func (a *App) Status(ctx context.Context) error {
	s := a.status.Latest()
	printlnFn(fmt.Sprintf("Status: %s, syncing: %v, pending operations: %d", s.Status, s.Syncing, s.QueueSize))
	if s.LastSync != nil {
		printlnFn("Last successful sync:", s.LastSync.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// Queue lists the pending operations in sync order.
func (a *App) Queue(ctx context.Context) error {
	ops, err := a.engine.PendingOperations(ctx)
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		printlnFn("Queue is empty")
		return nil
	}
	for _, op := range ops {
		state := ""
		if op.Failed {
			state = " [failed]"
		} else if op.RetryCount > 0 {
			state = fmt.Sprintf(" [retried %d]", op.RetryCount)
		}
		printlnFn(fmt.Sprintf("%s %s %s %s%s", op.ID, op.Kind, op.EntityType, op.EntityID, state))
	}
	return nil
}
