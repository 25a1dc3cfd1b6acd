package results

import (
	"sort"

	"github.com/pollrelay/pollengine/types"
)

// BuildMatrix produces the participant x option export matrix of §4.6:
// one row per participant in order of first appearance, one column
// per option, a trailing totals row summing yes+maybe, and — for
// schedule polls — a leading date row.
func BuildMatrix(poll *types.Poll, options []types.Option, dedupedVotes []types.Vote) *types.ResultMatrix {
	headers := make([]string, len(options))
	for i, opt := range options {
		headers[i] = opt.Text
	}

	type participant struct {
		name      string
		key       string
		firstSeen int
		votes     map[int]types.VoteResponse
	}
	order := 0
	byKey := make(map[string]*participant)
	var sequence []*participant

	for _, v := range dedupedVotes {
		p, ok := byKey[v.VoterKey]
		if !ok {
			p = &participant{name: v.VoterName, key: v.VoterKey, firstSeen: order, votes: make(map[int]types.VoteResponse)}
			order++
			byKey[v.VoterKey] = p
			sequence = append(sequence, p)
		}
		p.votes[v.OptionID] = v.Response
	}
	sort.SliceStable(sequence, func(i, j int) bool { return sequence[i].firstSeen < sequence[j].firstSeen })

	rows := make([]types.MatrixRow, 0, len(sequence))
	totals := make([]int, len(options))
	for _, p := range sequence {
		cells := make([]string, len(options))
		for i, opt := range options {
			response, voted := p.votes[opt.ID]
			cells[i] = cellLabel(response, voted)
			if voted && (response == types.VoteYes || response == types.VoteMaybe) {
				totals[i]++
			}
		}
		rows = append(rows, types.MatrixRow{ParticipantName: p.name, Cells: cells})
	}

	matrix := &types.ResultMatrix{OptionHeaders: headers, Rows: rows, Totals: totals}
	if poll.Kind == types.PollKindSchedule {
		dateRow := make([]string, len(options))
		for i, opt := range options {
			if opt.StartTime != nil {
				dateRow[i] = opt.StartTime.Format("Jan 2, 2006 3:04 PM")
			}
		}
		matrix.DateRow = dateRow
	}
	return matrix
}

func cellLabel(response types.VoteResponse, voted bool) string {
	if !voted {
		return ""
	}
	switch response {
	case types.VoteYes:
		return "Yes"
	case types.VoteMaybe:
		return "Maybe"
	case types.VoteNo:
		return "No"
	default:
		return ""
	}
}
