package loadgen

import (
	"time"

	"github.com/okian/leadrank/internal/domain/model"
	"github.com/okian/leadrank/internal/domain/types"
)

// Config holds configuration for a load run.
type Config struct {
	BaseURL     string        // Base URL of the service
	Owners      int           // Number of owner scopes to spread leads across
	NumLeads    int           // Leads generated per owner
	BatchSize   int           // Leads per import request
	Workers     int           // Concurrent import submitters
	Timeout     time.Duration // HTTP request timeout
	SettleAfter time.Duration // Give up waiting for ranks after this long
	Seed        uint64        // Generator seed; 0 picks one from the clock
	OutputFile  string        // Output file for generated leads
	LogFile     string        // Log file for run output
	Verbose     bool
}

// Import is one POST /imports request body.
type Import struct {
	Owner string            `json:"owner"`
	ID    string            `json:"import_id"`
	Leads []model.LeadDraft `json:"leads"`
	Score bool              `json:"score"`
}

// AckResponse represents the response from an import submission.
type AckResponse struct {
	Status    string `json:"status"`
	ImportID  string `json:"import_id"`
	Duplicate bool   `json:"duplicate"`
}

// Ranking is an owner's ranks as read back from the service.
type Ranking struct {
	Owner   string
	Status  string
	Entries []types.RankEntry
}

// Stats holds run statistics.
type Stats struct {
	LeadsGenerated   int
	ImportsSubmitted int
	ImportsAccepted  int
	ImportsDuplicate int
	ImportsRejected  int
	ImportsFailed    int
	RankedLeads      int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
