package dispute

import (
	"strings"
	"time"
)

// Status is the top-level dispute lifecycle state.
type Status string

const (
	StatusPending              Status = "pending"
	StatusActive               Status = "active"
	StatusPendingAdminApproval Status = "pending_admin_approval"
	StatusResolved             Status = "resolved"
	StatusForwardedToCourt     Status = "forwarded_to_court"
)

// ResolutionStatus tracks progress inside the decision/signing pipeline,
// independent of the top-level status.
type ResolutionStatus string

const (
	ResolutionNone        ResolutionStatus = "none"
	ResolutionInProgress  ResolutionStatus = "in_progress"
	ResolutionAdminReview ResolutionStatus = "admin_review"
	ResolutionFinalized   ResolutionStatus = "finalized"
	ResolutionSettled     ResolutionStatus = "settled"
)

// Role is the caller's relationship to a dispute, resolved once per request.
type Role string

const (
	RolePlaintiff Role = "plaintiff"
	RoleDefendant Role = "defendant"
	RoleAdmin     Role = "admin"
	RoleUnrelated Role = "unrelated"
)

// MaxSolutions is the upper bound on AI-proposed solutions per round.
const MaxSolutions = 3

// MaxReanalysisRounds caps how many times the solution step can be reset.
const MaxReanalysisRounds = 3

// Party holds the contact details of one side of a dispute.
type Party struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	Occupation string `json:"occupation"`
}

// Solution is one AI-proposed resolution option a party can choose.
type Solution struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Rationale   string `json:"rationale"`
}

// CourtReferral captures where and why a dispute was escalated.
type CourtReferral struct {
	CourtType string `json:"court_type"`
	CourtName string `json:"court_name"`
	Location  string `json:"location"`
	Reason    string `json:"reason"`
}

// Message belongs to exactly one dispute; the sender role is resolved at
// write time and stored with the message.
type Message struct {
	ID          string    `json:"id"`
	DisputeID   string    `json:"dispute_id"`
	SenderEmail string    `json:"sender_email"`
	SenderRole  Role      `json:"sender_role"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

// CaseProfile is derived, advisory metadata cached on the dispute. Absence is
// never an error: callers fall back to category "other", severity "medium".
type CaseProfile struct {
	Category          string   `json:"category"`
	Severity          string   `json:"severity"`
	MonetaryAmount    float64  `json:"monetary_amount"`
	KeyIssues         []string `json:"key_issues"`
	PlaintiffPosition string   `json:"plaintiff_position"`
	DefendantPosition string   `json:"defendant_position"`
	Version           int      `json:"version"`
}

// Dispute is the aggregate root. All mutations go through the store's Mutate
// primitive so concurrent party actions on the same dispute are linearized.
type Dispute struct {
	ID           string `json:"id"`
	CreatorEmail string `json:"creator_email"`
	Title        string `json:"title"`
	Description  string `json:"description"`

	Plaintiff          Party `json:"plaintiff"`
	Respondent         Party `json:"respondent"`
	RespondentAccepted bool  `json:"respondent_accepted"`

	Status           Status           `json:"status"`
	ResolutionStatus ResolutionStatus `json:"resolution_status"`

	PlaintiffChoice  Choice `json:"plaintiff_choice"`
	RespondentChoice Choice `json:"respondent_choice"`

	PlaintiffSignature  string `json:"plaintiff_signature,omitempty"`
	RespondentSignature string `json:"respondent_signature,omitempty"`

	Solutions       []Solution `json:"solutions,omitempty"`
	ReanalysisCount int        `json:"reanalysis_count"`

	// MessageCount is a per-dispute monotonic counter maintained inside the
	// same mutation that appends the message, so the analysis trigger can
	// read it atomically with the has-solutions check.
	MessageCount int `json:"message_count"`

	// ConflictStreak counts consecutive decision conflicts since the last
	// reanalysis; used to flag disputes stuck in disagreement for admins.
	ConflictStreak int `json:"conflict_streak"`

	// AnalysisStartedAt is the in-flight guard for the orchestrator. A nil
	// value means idle; a stale timestamp is reconciled on the next
	// qualifying action so a crashed run never wedges the dispute.
	AnalysisStartedAt *time.Time `json:"analysis_started_at,omitempty"`

	DocumentID   string `json:"document_id,omitempty"`
	DocumentHash string `json:"document_hash,omitempty"`

	Court *CourtReferral `json:"court,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RoleOf resolves the caller's role from their verified email. Admin status
// comes from the caller's token, not from party matching.
func (d *Dispute) RoleOf(email string, admin bool) Role {
	if admin {
		return RoleAdmin
	}
	switch {
	case emailsEqual(email, d.Plaintiff.Email):
		return RolePlaintiff
	case emailsEqual(email, d.Respondent.Email):
		return RoleDefendant
	default:
		return RoleUnrelated
	}
}

// Closed reports whether the dispute reached a terminal state. Late-arriving
// async results must be no-ops against closed disputes.
func (d *Dispute) Closed() bool {
	return d.Status == StatusResolved || d.Status == StatusForwardedToCourt
}

// HasSolutions reports whether a solution set exists for the current round.
func (d *Dispute) HasSolutions() bool {
	return len(d.Solutions) > 0
}

func emailsEqual(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
