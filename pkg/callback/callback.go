// Package callback holds training loop observers. The main one is
// SuccessLogger, which records one success/failure row per finished episode.
package callback

import (
	"github.com/boristopalov/armtrain/pkg/core"
)

// Func adapts a plain function to core.Callback.
type Func func(step *core.StepContext) (bool, error)

func (f Func) OnStep(step *core.StepContext) (bool, error) {
	return f(step)
}

// List calls every callback in order and continues only if all of them
// do. An error stops the remaining callbacks.
type List []core.Callback

func (l List) OnStep(step *core.StepContext) (bool, error) {
	cont := true
	for _, cb := range l {
		ok, err := cb.OnStep(step)
		if err != nil {
			return false, err
		}
		cont = cont && ok
	}
	return cont, nil
}
