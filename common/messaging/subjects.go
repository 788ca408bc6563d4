package messaging

// Subject constants for the eProc sync message bus.
// Follow the pattern: {domain}.{resource}.{action}
const (
	SubjectCasesAdded   = "eproc.cases.added"   // Case entered the open-deadline listing
	SubjectCasesRemoved = "eproc.cases.removed" // Case left the listing and was deleted
	SubjectSyncFinished = "eproc.sync.finished" // Sync run reached a terminal status
)

// Header names set on published messages.
const (
	HeaderRunID = "Eproc-Run-Id"
)
