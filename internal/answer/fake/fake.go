package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/labshot/labshot/internal/answer"
)

// Generator is a fake implementation of answer.Generator with scripted
// answers per question.
type Generator struct {
	mu      sync.Mutex
	answers map[string]string
	err     error
	asked   []string
}

// NewGenerator returns a new fake Generator.
func NewGenerator() *Generator {
	return &Generator{
		answers: map[string]string{},
	}
}

// Script sets the answer returned for a question.
func (g *Generator) Script(question, answer string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.answers[question] = answer
}

// Fail makes every following call return the given error.
func (g *Generator) Fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.err = err
}

func (g *Generator) Answer(_ context.Context, question, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.asked = append(g.asked, question)

	if g.err != nil {
		return "", g.err
	}

	if a, ok := g.answers[question]; ok {
		return a, nil
	}

	return fmt.Sprintf("Answer to: %s", question), nil
}

// Asked returns every question asked so far.
func (g *Generator) Asked() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	asked := make([]string, len(g.asked))
	copy(asked, g.asked)

	return asked
}

var _ answer.Generator = &Generator{}
