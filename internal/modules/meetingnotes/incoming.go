package meetingnotes

import "github.com/dkeye/opentalk/internal/domain"

const (
	ActionSelectWriter   = "select_writer"
	ActionDeselectWriter = "deselect_writer"
	ActionGeneratePdf    = "generate_pdf"
)

type Writers struct {
	Action         string                 `json:"action"`
	ParticipantIDs []domain.ParticipantID `json:"participant_ids" validate:"required,min=1,dive,required"`
}
