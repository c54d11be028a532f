// Package evaluation scores a running assistant against a keyword dataset.
package evaluation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Question is one evaluation case.
type Question struct {
	ID               int      `json:"id"`
	Category         string   `json:"category"`
	Question         string   `json:"question"`
	ExpectedContains []string `json:"expected_response_contains"`
	Difficulty       string   `json:"difficulty"`
	Context          string   `json:"context,omitempty"`
}

// Dataset is the evaluation file layout.
type Dataset struct {
	Questions []Question `json:"evaluation_questions"`
}

// ParseDataset decodes and checks an evaluation dataset.
func ParseDataset(data []byte) (Dataset, error) {
	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return Dataset{}, fmt.Errorf("decode evaluation dataset: %w", err)
	}
	if len(ds.Questions) == 0 {
		return Dataset{}, errors.New("evaluation dataset has no evaluation_questions")
	}
	for i, q := range ds.Questions {
		if strings.TrimSpace(q.Question) == "" {
			return Dataset{}, fmt.Errorf("evaluation question %d (id %d) has no question text", i, q.ID)
		}
		if len(q.ExpectedContains) == 0 {
			return Dataset{}, fmt.Errorf("evaluation question %d (id %d) has no expected keywords", i, q.ID)
		}
	}
	return ds, nil
}
