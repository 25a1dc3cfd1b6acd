package types

import "time"

// PollKind distinguishes the three poll shapes the store and handlers
// branch on: date/time scheduling, plain multiple-choice surveys, and
// capacity-limited organization sign-ups.
type PollKind string

const (
	PollKindSchedule     PollKind = "schedule"
	PollKindSurvey       PollKind = "survey"
	PollKindOrganization PollKind = "organization"
)

// VoteResponse is the value a voter records against one option.
type VoteResponse string

const (
	VoteYes   VoteResponse = "yes"
	VoteMaybe VoteResponse = "maybe"
	VoteNo    VoteResponse = "no"
)

// NotificationType classifies rows in the notification log, used for
// reminder-cap and cooldown enforcement (§4.8).
type NotificationType string

const (
	NotificationManualReminder NotificationType = "manual_reminder"
	NotificationExpiryReminder NotificationType = "expiry_reminder"
	NotificationCreation       NotificationType = "creation"
	NotificationVoterConfirm   NotificationType = "voter_confirmation"
)

// PollFlags are the creator-configurable behaviour switches carried on
// every poll row (§3).
type PollFlags struct {
	AllowVoteEdit       bool `json:"allowVoteEdit"`
	AllowVoteWithdrawal bool `json:"allowVoteWithdrawal"`
	AllowMultipleSlots  bool `json:"allowMultipleSlots"`
	AllowMaybe          bool `json:"allowMaybe"`
	ResultsPublic       bool `json:"resultsPublic"`
}

// ExpiryReminder configures the Expiry & Reminder Scheduler (§4.8) for
// one poll.
type ExpiryReminder struct {
	Enabled     bool `json:"enabled"`
	HoursBefore int  `json:"hoursBefore"`
	Sent        bool `json:"sent"`
}

// Poll is the aggregate root of §3. Exactly one of CreatorUserID /
// CreatorEmail is expected to be set; AdminToken and PublicToken are
// distinct 32-byte random URL-safe strings minted atomically at
// creation by the Poll Store (C3).
type Poll struct {
	ID             string         `json:"id"`
	Kind           PollKind       `json:"kind"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	CreatorUserID  *string        `json:"creatorUserId,omitempty"`
	CreatorEmail   *string        `json:"creatorEmail,omitempty"`
	AdminToken     string         `json:"adminToken,omitempty"`
	PublicToken    string         `json:"publicToken"`
	IsActive       bool           `json:"isActive"`
	ExpiresAt      *time.Time     `json:"expiresAt,omitempty"`
	Flags          PollFlags      `json:"flags"`
	FinalOptionID  *int           `json:"finalOptionId,omitempty"`
	ExpiryReminder ExpiryReminder `json:"expiryReminder"`
	IsTestData     bool           `json:"isTestData"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// IsExpired reports whether the poll's expiry has passed. A nil
// ExpiresAt means the poll never expires on its own.
func (p *Poll) IsExpired() bool {
	return p.ExpiresAt != nil && !p.ExpiresAt.IsZero() && time.Now().After(*p.ExpiresAt)
}

// IsClosed reports the §3 closed predicate: inactive, or past expiry.
// Vote mutations are rejected once a poll is closed.
func (p *Poll) IsClosed() bool {
	return !p.IsActive || p.IsExpired()
}

// Option is one selectable item within a poll (§3). StartTime/EndTime
// are required for schedule polls, forbidden for survey polls, and
// optional for organization polls; MaxCapacity only applies to
// organization polls.
type Option struct {
	ID          int        `json:"id"`
	PollID      string     `json:"pollId"`
	Text        string     `json:"text"`
	ImageURL    string     `json:"imageUrl,omitempty"`
	AltText     string     `json:"altText,omitempty"`
	StartTime   *time.Time `json:"startTime,omitempty"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	MaxCapacity *int       `json:"maxCapacity,omitempty"`
	Order       int        `json:"order"`
}

// Vote is a single voter's response to a single option (§3). VoterKey
// is the deterministic identity produced by the Voter Identity
// Resolver (§4.4); VoterEditToken is shared across every vote one
// voter casts in one poll (invariant b).
type Vote struct {
	ID             string       `json:"id"`
	PollID         string       `json:"pollId"`
	OptionID       int          `json:"optionId"`
	VoterName      string       `json:"voterName"`
	VoterEmail     string       `json:"voterEmail,omitempty"`
	UserID         *string      `json:"userId,omitempty"`
	VoterKey       string       `json:"-"`
	Response       VoteResponse `json:"response"`
	Comment        string       `json:"comment,omitempty"`
	VoterEditToken string       `json:"-"`
	IsTestData     bool         `json:"isTestData"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// NotificationLog records one outbound notification for reminder-cap
// and cooldown enforcement (§4.8, §6 REMINDER_LIMIT_REACHED /
// REMINDER_TOO_SOON).
type NotificationLog struct {
	ID             string           `json:"id"`
	PollID         string           `json:"pollId"`
	Type           NotificationType `json:"type"`
	RecipientEmail string           `json:"recipientEmail"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// PasswordResetToken and EmailChangeToken are the single-use,
// expiring token entities of §3, purged periodically by the scheduler.
type PasswordResetToken struct {
	Token     string     `json:"-"`
	UserID    string     `json:"-"`
	ExpiresAt time.Time  `json:"-"`
	UsedAt    *time.Time `json:"-"`
}

type EmailChangeToken struct {
	Token     string     `json:"-"`
	UserID    string     `json:"-"`
	Payload   string     `json:"-"`
	ExpiresAt time.Time  `json:"-"`
	UsedAt    *time.Time `json:"-"`
}

// ---- Request / response DTOs (§6) ----

// PollOptionInput is one option as supplied at poll-creation time.
type PollOptionInput struct {
	Text        string     `json:"text" binding:"required,min=1"`
	ImageURL    string     `json:"imageUrl,omitempty"`
	AltText     string     `json:"altText,omitempty"`
	StartTime   *time.Time `json:"startTime,omitempty"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	MaxCapacity *int       `json:"maxCapacity,omitempty" binding:"omitempty,gte=1"`
	Order       *int       `json:"order,omitempty"`
}

// CreatePollRequest is the body of POST /polls.
type CreatePollRequest struct {
	Title                string            `json:"title" binding:"required,min=1,max=200"`
	Description          string            `json:"description,omitempty"`
	Type                 PollKind          `json:"type" binding:"required,oneof=schedule survey organization"`
	CreatorEmail         string            `json:"creatorEmail,omitempty" binding:"omitempty,email"`
	ExpiresAt            *time.Time        `json:"expiresAt,omitempty"`
	EnableExpiryReminder bool              `json:"enableExpiryReminder,omitempty"`
	ExpiryReminderHours  int               `json:"expiryReminderHours,omitempty" binding:"omitempty,gte=1,lte=168"`
	Flags                PollFlags         `json:"flags"`
	Options              []PollOptionInput `json:"options" binding:"required,min=1,dive"`
}

// CreatePollResponse is returned by POST /polls: the creator is handed
// both tokens exactly once.
type CreatePollResponse struct {
	Poll        PollResponse `json:"poll"`
	PublicToken string       `json:"publicToken"`
	AdminToken  string       `json:"adminToken"`
}

// PollResponse is the sanitised poll projection returned by read
// endpoints. AdminToken is only populated by the admin-token route.
type PollResponse struct {
	ID             string         `json:"id"`
	Kind           PollKind       `json:"kind"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	AdminToken     string         `json:"adminToken,omitempty"`
	PublicToken    string         `json:"publicToken"`
	IsActive       bool           `json:"isActive"`
	IsClosed       bool           `json:"isClosed"`
	ExpiresAt      *time.Time     `json:"expiresAt,omitempty"`
	Flags          PollFlags      `json:"flags"`
	FinalOptionID  *int           `json:"finalOptionId,omitempty"`
	ExpiryReminder ExpiryReminder `json:"expiryReminder"`
	Options        []OptionResult `json:"options"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// OptionResult embeds an option's aggregated vote stats. The Result
// Aggregator (C6) zeroes Counts/Voters for blind, still-active polls
// while leaving HasVoted intact.
type OptionResult struct {
	Option
	Counts   OptionStats `json:"counts"`
	HasVoted bool        `json:"hasVoted"`
}

// OptionStats is the yes/maybe/no tally for one option, plus the
// Result Aggregator's score (§4.6: 2*yes + 1*maybe) and, for
// organization options, current signup count against capacity.
type OptionStats struct {
	YesCount   int  `json:"yesCount"`
	MaybeCount int  `json:"maybeCount"`
	NoCount    int  `json:"noCount"`
	Score      int  `json:"score"`
	Current    int  `json:"current,omitempty"`
	Capacity   *int `json:"capacity,omitempty"`
}

// UpdatePollRequest is the body of PATCH /polls/admin/:token. Nil
// fields are left unchanged.
type UpdatePollRequest struct {
	Title                *string    `json:"title,omitempty" binding:"omitempty,min=1,max=200"`
	Description          *string    `json:"description,omitempty"`
	IsActive             *bool      `json:"isActive,omitempty"`
	ExpiresAt            *time.Time `json:"expiresAt,omitempty"`
	EnableExpiryReminder *bool      `json:"enableExpiryReminder,omitempty"`
	ExpiryReminderHours  *int       `json:"expiryReminderHours,omitempty" binding:"omitempty,gte=1,lte=168"`
	Flags                *PollFlags `json:"flags,omitempty"`
}

// FinalizePollRequest is the body of POST /polls/admin/:token/finalize.
// OptionID == 0 means "un-finalise".
type FinalizePollRequest struct {
	OptionID int `json:"optionId" binding:"gte=0"`
}

// VoteItemInput is one option's response within a bulk vote request.
type VoteItemInput struct {
	OptionID int          `json:"optionId" binding:"required"`
	Response VoteResponse `json:"response" binding:"required,oneof=yes maybe no"`
	Comment  string       `json:"comment,omitempty"`
}

// CastVoteRequest is the body of POST /polls/:publicToken/vote(-bulk).
type CastVoteRequest struct {
	VoterName  string          `json:"voterName" binding:"required,min=1"`
	VoterEmail string          `json:"voterEmail" binding:"required,email"`
	Votes      []VoteItemInput `json:"votes" binding:"required,min=1,dive"`
}

// CastVoteResponse is returned by a successful bulk vote. VoterEditToken
// is empty unless the poll allows vote editing.
type CastVoteResponse struct {
	Success        bool   `json:"success"`
	Votes          []Vote `json:"votes"`
	VoterEditToken string `json:"voterEditToken,omitempty"`
}

// WithdrawVoteRequest is the body of DELETE /polls/:publicToken/vote.
type WithdrawVoteRequest struct {
	VoterEmail     string `json:"voterEmail,omitempty" binding:"omitempty,email"`
	VoterEditToken string `json:"voterEditToken,omitempty"`
}

// EditTokenResponse is returned by GET /votes/edit/:editToken: the
// voter's own votes plus enough poll metadata to render an edit form.
type EditTokenResponse struct {
	Poll  PollResponse `json:"poll"`
	Votes []Vote       `json:"votes"`
}

// MyVotesResponse answers GET /polls/:publicToken/my-votes.
type MyVotesResponse struct {
	HasVoted bool   `json:"hasVoted"`
	Votes    []Vote `json:"votes,omitempty"`
}

// ResultsResponse is the Result Aggregator's (C6) full output for
// GET /polls/:token/results.
type ResultsResponse struct {
	Options          []OptionResult `json:"options"`
	Votes            []Vote         `json:"votes"`
	ParticipantCount int            `json:"participantCount"`
	ResponseRate     float64        `json:"responseRate"`
	Matrix           *ResultMatrix  `json:"matrix,omitempty"`
}

// ResultMatrix is the participant x option export shape (§4.6): one
// row per participant in insertion order, one column per option, plus
// a trailing totals row. Schedule polls prefix a date header row.
type ResultMatrix struct {
	OptionHeaders []string    `json:"optionHeaders"`
	DateRow       []string    `json:"dateRow,omitempty"`
	Rows          []MatrixRow `json:"rows"`
	Totals        []int       `json:"totals"`
}

// MatrixRow is one participant's row in the export matrix. Cells hold
// the localised label for {yes, maybe, no, blank}.
type MatrixRow struct {
	ParticipantName string   `json:"participantName"`
	Cells           []string `json:"cells"`
}
