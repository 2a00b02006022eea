// Package cli implements the interactive TimeGrid client.
//
// The command loop (see runLoop) reads one command per line and dispatches to
// App methods. All mutations go through the entity service, so they work the
// same online and offline; the status line in the prompt reflects the latest
// broadcast connectivity snapshot.
//
// Commands
//
//	Not logged in:
//	  - help           — show available commands
//	  - login          — authenticate
//	  - status         — connectivity and queue snapshot
//	  - exit | quit    — leave the program
//
//	Logged in:
//	  - (l)ist <type>  — merged view of clients, projects or entries
//	  - add <type>     — create a record (queued while offline)
//	  - update ...     — rewrite a record's fields by id
//	  - delete ...     — delete a record by id
//	  - sync           — trigger a queue drain
//	  - retry <op>     — un-park an abandoned operation
//	  - queue          — pending operations in sync order
//	  - feedadd        — subscribe a calendar feed
//	  - feedrm <id>    — unsubscribe a feed
//	  - events         — merged calendar of all feeds
//	  - logout         — drop the cached session
//	  - exit | quit    — leave the program
package cli
