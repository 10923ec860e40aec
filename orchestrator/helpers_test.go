// Copyright 2025 Hearth
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package orchestrator

import (
	"context"
	"strings"
	"sync"
	"time"

	"hearth/connectors/base"
	"hearth/orchestrator/llm"
)

// scriptedGenerator returns canned completions keyed by a substring of the
// prompt, recording every call. The fallback response answers any prompt
// with no matching key.
type scriptedGenerator struct {
	mu        sync.Mutex
	responses map[string]string
	fallback  string
	err       error
	calls     []generatorCall
}

type generatorCall struct {
	model  string
	prompt string
	opts   llm.GenerateOptions
}

func (g *scriptedGenerator) Generate(_ context.Context, model, prompt string, opts llm.GenerateOptions) (*llm.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, generatorCall{model: model, prompt: prompt, opts: opts})

	if g.err != nil {
		return nil, g.err
	}

	text := g.fallback
	for key, response := range g.responses {
		if strings.Contains(prompt, key) {
			text = response
			break
		}
	}
	return &llm.Result{Text: text, Backend: llm.BackendOllama, Model: model}, nil
}

func (g *scriptedGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// stubProvider is a configurable in-memory base.Provider.
type stubProvider struct {
	name    string
	intents []string
	timeout time.Duration
	rows    []map[string]interface{}
	err     error
	delay   time.Duration

	mu    sync.Mutex
	calls int
}

func (p *stubProvider) Name() string      { return p.name }
func (p *stubProvider) Intents() []string { return p.intents }
func (p *stubProvider) Timeout() time.Duration {
	if p.timeout > 0 {
		return p.timeout
	}
	return base.DefaultTimeout
}

func (p *stubProvider) Fetch(ctx context.Context, query *base.Query) (*base.Result, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	return &base.Result{
		Provider: p.name,
		Intent:   query.Intent,
		Rows:     p.rows,
	}, nil
}

func (p *stubProvider) HealthCheck(context.Context) (*base.HealthStatus, error) {
	return &base.HealthStatus{Healthy: true, Timestamp: time.Now()}, nil
}

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
