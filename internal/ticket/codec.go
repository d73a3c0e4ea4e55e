package ticket

import (
	"encoding/json"

	"github.com/dkeye/opentalk/internal/domain"
)

func decodeResumption(raw []byte) (domain.ResumptionData, bool, error) {
	var data domain.ResumptionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return data, false, err
	}
	return data, data.ParticipantID != "", nil
}
