// Package submission delivers finished sessions to the results sheet.
package submission

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// BuildForm flattens a payload into the sheet's columns: user details,
// metadata, the anomaly log as JSON and one q<id> field per question.
func BuildForm(p model.SubmissionPayload) (url.Values, error) {
	logs := p.AnomalyLog
	if logs == nil {
		logs = []model.AnomalyEvent{}
	}
	logJSON, err := json.Marshal(logs)
	if err != nil {
		return nil, fmt.Errorf("marshal anomaly log: %w", err)
	}

	form := url.Values{}
	form.Set("fullName", p.User.FullName)
	form.Set("email", p.User.Email)
	form.Set("class", p.User.ClassLevel)
	form.Set("anomalyScore", strconv.Itoa(p.AnomalyScore))
	form.Set("submissionTime", model.FormatISO(p.SubmittedAt))
	form.Set("submissionDuration", strconv.Itoa(p.DurationMinutes()))
	form.Set("anomalyLogs", string(logJSON))

	for _, q := range p.Questions {
		form.Set(fmt.Sprintf("q%d", q.ID), p.Answers[q.ID].Flatten())
	}
	return form, nil
}
