package types

// TriggerRequest is the body of the playback-position transcode trigger.
type TriggerRequest struct {
	BookID       string `json:"bookId" binding:"required"`
	SeasonIndex  int    `json:"seasonIndex"`
	EpisodeIndex int    `json:"episodeIndex"`
}

// SchedulerStatus is the snapshot returned by the status endpoint.
type SchedulerStatus struct {
	QueueLength    int          `json:"queueLength"`
	ActiveWorkers  int          `json:"activeWorkers"`
	Ceiling        int          `json:"ceiling"`
	InFlight       int          `json:"inFlight"`
	CPUUtilization float64      `json:"cpuUtilization"`
	MemUtilization float64      `json:"memUtilization"`
	Threshold      float64      `json:"threshold"`
	CoreCount      int          `json:"coreCount"`
	TotalMemory    uint64       `json:"totalMemoryBytes"`
	QueuePreview   []EpisodeRef `json:"queuePreview"`
}

// CancelResult reports what a cancellation request will affect. Cancelled is
// false when nothing was queued or running.
type CancelResult struct {
	Cancelled        bool `json:"cancelled"`
	DroppedTasks     int  `json:"droppedTasks"`
	FinishingWorkers int  `json:"finishingWorkers"`
}
