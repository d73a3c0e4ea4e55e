package legalvote

import (
	"fmt"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/dkeye/opentalk/internal/report"
)

func protocolDocument(p Parameters, protocol []ProtocolEntry) report.Document {
	summary := fmt.Sprintf("**Kind:** %s  \n**Started:** %s  \n**Allowed voters:** %d", p.Kind, p.StartTime.UTC().Format(time.RFC3339), len(p.AllowedParticipants))
	if p.Topic != "" {
		summary = p.Topic + "\n\n" + summary
	}
	doc := report.Document{
		Title:    p.Name,
		Sections: []report.Section{{Heading: p.Subtitle, Markdown: summary}},
	}

	rows := lo.Map(protocol, func(e ProtocolEntry, _ int) []string {
		who := ""
		switch {
		case e.Event.Participant != nil:
			who = string(*e.Event.Participant)
		case e.Event.Issuer != nil:
			who = string(*e.Event.Issuer)
		case e.Event.Token != "":
			who = e.Event.Token
		}
		detail := string(e.Event.Option)
		if e.Event.StopKind != "" {
			detail = e.Event.StopKind
		}
		if e.Event.Reason != "" {
			detail = e.Event.Reason
		}
		return []string{e.Timestamp.UTC().Format(time.RFC3339), e.Event.Kind, who, detail}
	})
	doc.Sections = append(doc.Sections, report.Section{
		Heading:  "Protocol",
		Markdown: report.Table([]string{"Time", "Event", "Participant", "Detail"}, rows),
	})

	if final, ok := lo.Find(protocol, func(e ProtocolEntry) bool { return e.Event.Kind == EventFinalResults }); ok && final.Event.Results != nil {
		r := final.Event.Results
		results := [][]string{{"yes", strconv.FormatUint(r.Yes, 10)}, {"no", strconv.FormatUint(r.No, 10)}}
		if r.Abstain != nil {
			results = append(results, []string{"abstain", strconv.FormatUint(*r.Abstain, 10)})
		}
		doc.Sections = append(doc.Sections, report.Section{
			Heading:  "Results",
			Markdown: report.Table([]string{"Option", "Votes"}, results),
		})
	}
	return doc
}
