// Package judge asks a language model whether a finished episode reached
// its goal. It is meant for environments whose info records carry the
// terminal state but no is_success flag.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/aunum/log"

	"github.com/boristopalov/armtrain/pkg/callback"
	"github.com/boristopalov/armtrain/pkg/core"
	"github.com/boristopalov/armtrain/pkg/providers"
)

const PROMPT_TEMPLATE = `You are grading a robotic arm episode. The task is: %s

This is the information the environment reported when the episode ended:
%s

Did the arm complete the task? Very briefly think step by step, then give your verdict after the string "ANSWER" like so: ANSWER: yes or ANSWER: no`

const defaultTask = "move the end-effector to the desired goal position."

var answerRe = regexp.MustCompile(`(?i)ANSWER:\s*(yes|no|true|false|1|0)`)

// Judge grades terminal info records with an LLM.
type Judge struct {
	client providers.Client
	model  string
	task   string
}

type JudgeOption func(*Judge)

func WithTask(task string) JudgeOption {
	return func(j *Judge) {
		j.task = task
	}
}

func New(client providers.Client, model string, opts ...JudgeOption) *Judge {
	j := &Judge{client: client, model: model, task: defaultTask}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Grade returns whether the model judged the episode a success.
func (j *Judge) Grade(ctx context.Context, info any) (bool, error) {
	record, err := describe(info)
	if err != nil {
		return false, err
	}
	response, err := j.client.Complete(ctx, j.model, fmt.Sprintf(PROMPT_TEMPLATE, j.task, record))
	if err != nil {
		return false, fmt.Errorf("failed to grade episode: %w", err)
	}
	log.Debugf("judge response: %s", response)
	return parseVerdict(response)
}

// SuccessFunc binds the judge to ctx for use with callback.WithSuccessFunc.
func (j *Judge) SuccessFunc(ctx context.Context) callback.SuccessFunc {
	return func(info any) (any, error) {
		return j.Grade(ctx, info)
	}
}

func describe(info any) (string, error) {
	if record, ok := info.(core.Info); ok {
		info = map[string]any(record)
	}
	if m, ok := info.(map[string]any); ok {
		trimmed := make(map[string]any, len(m))
		for k, v := range m {
			if k == core.InfoIsSuccess {
				continue
			}
			trimmed[k] = v
		}
		info = trimmed
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode info record: %w", err)
	}
	return string(data), nil
}

func parseVerdict(response string) (bool, error) {
	matches := answerRe.FindAllStringSubmatch(response, -1)
	if len(matches) == 0 {
		return false, fmt.Errorf("could not find answer in response: %s", response)
	}
	// the last answer wins when the model restates its verdict
	switch strings.ToLower(matches[len(matches)-1][1]) {
	case "yes", "true", "1":
		return true, nil
	default:
		return false, nil
	}
}
