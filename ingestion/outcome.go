package ingestion

// Outcome is the result of processing one item.
type Outcome int

const (
	// OutcomeError means an unexpected failure; nothing was recorded.
	OutcomeError Outcome = iota
	// OutcomeAlreadyHandled means a record already existed.
	OutcomeAlreadyHandled
	// OutcomeDownloadFailed means the artifact could not be fetched.
	OutcomeDownloadFailed
	// OutcomeNoChunks means no chunk survived the length filter.
	OutcomeNoChunks
	// OutcomeTooLarge means failed-too-large was recorded.
	OutcomeTooLarge
	// OutcomeTimeout means failed-timeout was recorded.
	OutcomeTimeout
	// OutcomeEmbedded means the vectors were uploaded and ok was recorded.
	OutcomeEmbedded
)

var outcomeNames = map[Outcome]string{
	OutcomeError:          "error",
	OutcomeAlreadyHandled: "already_handled",
	OutcomeDownloadFailed: "download_failed",
	OutcomeNoChunks:       "no_chunks",
	OutcomeTooLarge:       "too_large",
	OutcomeTimeout:        "timeout",
	OutcomeEmbedded:       "embedded",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "unknown"
}

// Recorded reports whether the outcome wrote a terminal record.
func (o Outcome) Recorded() bool {
	switch o {
	case OutcomeTooLarge, OutcomeTimeout, OutcomeEmbedded:
		return true
	}
	return false
}

// Value is 1 for recorded outcomes and 0 otherwise.
func (o Outcome) Value() int {
	if o.Recorded() {
		return 1
	}
	return 0
}
