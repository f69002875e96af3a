// Package catalog reads exam question files and serves answer keys.
//
// The layout is one directory per exam code, each holding an exam.json:
//
//	{"exam_name": "...", "questions": [{"question_number": "12", "most_voted": "AC"}, ...]}
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pavelanni/examstats/internal/model"
)

const examFile = "exam.json"

type examJSON struct {
	ExamName  string         `json:"exam_name"`
	Questions []questionJSON `json:"questions"`
}

type questionJSON struct {
	QuestionNumber questionNumber `json:"question_number"`
	MostVoted      *string        `json:"most_voted"`
}

// questionNumber accepts both "12" and 12.
type questionNumber string

func (n *questionNumber) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*n = questionNumber(s)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("question_number: %w", err)
	}
	*n = questionNumber(num.String())
	return nil
}

// Exam is one exam's metadata and answer keys.
type Exam struct {
	ID    string
	Label string
	Keys  map[string]model.AnswerSet
}

// Catalog holds every exam found under a directory.
type Catalog struct {
	exams map[string]*Exam
}

// Load reads <dir>/<EXAM>/exam.json for every exam directory. Directories
// without an exam.json are skipped; a malformed file is an error.
func Load(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read catalog dir: %w", err)
	}
	c := &Catalog{exams: make(map[string]*Exam)}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		exam, err := loadExam(filepath.Join(dir, e.Name(), examFile), e.Name())
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("skipping exam directory without exam.json", "exam", e.Name())
			continue
		}
		if err != nil {
			return nil, err
		}
		c.exams[exam.ID] = exam
	}
	slog.Info("catalog loaded", "dir", dir, "exams", len(c.exams))
	return c, nil
}

func loadExam(path, id string) (*Exam, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw examJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	exam := &Exam{ID: id, Label: raw.ExamName, Keys: make(map[string]model.AnswerSet, len(raw.Questions))}
	for _, q := range raw.Questions {
		num := strings.TrimSpace(string(q.QuestionNumber))
		if num == "" || num == "unknown" || q.MostVoted == nil {
			continue
		}
		if key := ParseKey(*q.MostVoted); key != nil {
			exam.Keys[num] = key
		}
	}
	return exam, nil
}

// ParseKey reads a voted answer such as "AC" or "A, C" into a set of
// option letters.
func ParseKey(s string) model.AnswerSet {
	var ids []string
	for _, r := range strings.ToUpper(s) {
		if r >= 'A' && r <= 'Z' {
			ids = append(ids, string(r))
		}
	}
	return model.NewAnswerSet(ids...)
}

// AnswerKey returns the correct options for a question.
func (c *Catalog) AnswerKey(examID, questionID string) (model.AnswerSet, bool) {
	e, ok := c.exams[examID]
	if !ok {
		return nil, false
	}
	k, ok := e.Keys[questionID]
	return k, ok
}

// Label returns the display name of an exam, or the id itself.
func (c *Catalog) Label(examID string) string {
	if e, ok := c.exams[examID]; ok && e.Label != "" {
		return e.Label
	}
	return examID
}

// Exams returns the known exam ids in order.
func (c *Catalog) Exams() []string {
	ids := make([]string, 0, len(c.exams))
	for id := range c.exams {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
