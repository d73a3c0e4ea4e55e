package polls

const (
	ActionStart  = "start"
	ActionVote   = "vote"
	ActionFinish = "finish"
)

type ChoiceID uint32

// Start opens a poll. Duration is in seconds.
type Start struct {
	Action         string   `json:"action"`
	Topic          string   `json:"topic" validate:"required,max=100"`
	Live           bool     `json:"live"`
	MultipleChoice bool     `json:"multiple_choice"`
	Choices        []string `json:"choices" validate:"min=2,max=64,dive,required,max=100"`
	Duration       uint64   `json:"duration" validate:"min=2,max=3600"`
}

type Vote struct {
	Action  string     `json:"action"`
	PollID  string     `json:"poll_id" validate:"required"`
	Choices []ChoiceID `json:"choices"`
}

type Finish struct {
	Action string `json:"action"`
	PollID string `json:"poll_id" validate:"required"`
}
