// Package generator builds fill-in-the-blank quizzes from plain-text documents
// on local disk. It stands in for the backend when no provider URL is configured.
package generator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"

	"studyguide-quiz/internal/auth"
	"studyguide-quiz/internal/domain"
)

const (
	// Blank replaces the answer inside the question sentence.
	Blank = "__________"

	DefaultQuestions = 5
	distractors      = 3
)

var sentenceEnd = regexp.MustCompile(`[.!?]+(\s+|$)`)

// Generator implements app.QuizProvider over a directory of text documents.
type Generator struct {
	dir string

	mu  sync.Mutex
	rnd *rand.Rand
}

func New(dir string) *Generator {
	return NewWithSource(dir, rand.NewSource(time.Now().UnixNano()))
}

// NewWithSource is used by tests for deterministic quizzes.
func NewWithSource(dir string, src rand.Source) *Generator {
	return &Generator{dir: dir, rnd: rand.New(src)}
}

func (g *Generator) GenerateQuiz(_ context.Context, _ auth.Credentials, req domain.QuizRequest) ([]domain.Question, error) {
	name := filepath.Base(filepath.Clean("/" + req.Filename))
	if name == "/" || name == "." {
		return nil, fmt.Errorf("%w: %q", domain.ErrDocumentNotFound, req.Filename)
	}
	data, err := os.ReadFile(filepath.Join(g.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &domain.ProviderError{StatusCode: 404, Message: "File not found", Err: domain.ErrDocumentNotFound}
		}
		return nil, &domain.ProviderError{Message: domain.DefaultProviderMessage, Err: err}
	}

	n := req.NumQuestions
	if n <= 0 {
		n = DefaultQuestions
	}
	questions := g.Generate(string(data), n)
	if len(questions) == 0 {
		return nil, &domain.ProviderError{Message: "Not enough content in this document to build a quiz."}
	}
	return questions, nil
}

// Generate builds up to n cloze questions from text.
func (g *Generator) Generate(text string, n int) []domain.Question {
	g.mu.Lock()
	defer g.mu.Unlock()

	sentences := SplitSentences(text)
	important := make(map[int][]string, len(sentences))
	var pool []string
	for i, s := range sentences {
		words := ImportantWords(s)
		if len(words) > 0 {
			important[i] = words
			pool = append(pool, words...)
		}
	}

	var quiz []domain.Question
	for _, i := range g.rnd.Perm(len(sentences)) {
		if len(quiz) == n {
			break
		}
		words := important[i]
		if len(words) == 0 {
			continue
		}
		answer := words[g.rnd.Intn(len(words))]
		prompt, ok := blankOut(sentences[i], answer)
		if !ok {
			continue
		}
		wrong := g.pickDistractors(pool, answer)
		if len(wrong) < distractors {
			continue
		}
		options := append(wrong, answer)
		g.rnd.Shuffle(len(options), func(a, b int) { options[a], options[b] = options[b], options[a] })

		quiz = append(quiz, domain.Question{
			ID:            domain.PositionalID(len(quiz)),
			Prompt:        prompt,
			Options:       options,
			CorrectAnswer: answer,
		})
	}
	return quiz
}

// SplitSentences breaks text on terminal punctuation, keeping the punctuation.
func SplitSentences(text string) []string {
	text = strings.Join(strings.Fields(text), " ")
	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		s := strings.TrimSpace(text[start:loc[1]])
		if s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

// ImportantWords returns words likely to make good answers: capitalized words,
// words containing digits, and long words. Words of three letters or fewer are skipped.
func ImportantWords(sentence string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, raw := range strings.Fields(sentence) {
		word := strings.TrimFunc(raw, func(r rune) bool {
			return unicode.IsPunct(r) && r != '-'
		})
		if len([]rune(word)) <= 3 {
			continue
		}
		first := []rune(word)[0]
		if !unicode.IsUpper(first) && !strings.ContainsAny(word, "0123456789") && len([]rune(word)) <= 6 {
			continue
		}
		key := strings.ToLower(word)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, word)
	}
	return out
}

func blankOut(sentence, answer string) (string, bool) {
	words := strings.Fields(sentence)
	for i, w := range words {
		trimmed := strings.TrimFunc(w, func(r rune) bool { return unicode.IsPunct(r) && r != '-' })
		if strings.EqualFold(trimmed, answer) {
			words[i] = strings.Replace(w, trimmed, Blank, 1)
			return strings.Join(words, " "), true
		}
	}
	return "", false
}

// pickDistractors draws distinct wrong options from pool, never matching answer case-insensitively.
func (g *Generator) pickDistractors(pool []string, answer string) []string {
	seen := map[string]struct{}{strings.ToLower(answer): {}}
	var candidates []string
	for _, w := range pool {
		key := strings.ToLower(w)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		candidates = append(candidates, w)
	}
	if len(candidates) < distractors {
		return candidates
	}
	g.rnd.Shuffle(len(candidates), func(a, b int) { candidates[a], candidates[b] = candidates[b], candidates[a] })
	return candidates[:distractors]
}
