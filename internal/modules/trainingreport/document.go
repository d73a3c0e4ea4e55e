package trainingreport

import (
	"fmt"
	"sort"
	"time"

	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/report"
)

func participationDocument(s snapshot) report.Document {
	header := []string{"Participant", "Joined"}
	for _, cp := range s.state.Checkpoints {
		header = append(header, cp.UTC().Format(time.TimeOnly))
	}

	ids := make([]string, 0, len(s.attendees))
	for id := range s.attendees {
		if domain.ParticipantID(id) != s.state.Creator {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.attendees[ids[i]].DisplayName < s.attendees[ids[j]].DisplayName
	})

	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		a := s.attendees[id]
		row := []string{a.DisplayName, a.JoinedAt.UTC().Format(time.TimeOnly)}
		for _, cp := range s.state.Checkpoints {
			mark := "no"
			if _, ok := s.confirmations[confirmationField(cp, domain.ParticipantID(id))]; ok {
				mark = "yes"
			}
			row = append(row, mark)
		}
		rows = append(rows, row)
	}

	summary := fmt.Sprintf("Started %s UTC, %d checkpoints, %d participants.",
		s.state.StartedAt.UTC().Format(time.DateTime), len(s.state.Checkpoints), len(ids))
	return report.Document{
		Title: "Training participation report",
		Sections: []report.Section{
			{Markdown: summary},
			{Heading: "Presence", Markdown: report.Table(header, rows)},
		},
	}
}
