package critics

import (
	"fmt"

	"github.com/eleanor-project/eleanor/internal/config"
	"github.com/eleanor-project/eleanor/internal/domain"
	"github.com/eleanor-project/eleanor/internal/domain/critic"
	"github.com/eleanor-project/eleanor/internal/port/precedent"
)

// Deps are the shared backends critic constructors draw on.
type Deps struct {
	LLM            Completer
	Precedents     precedent.Store
	PrecedentLimit int
}

// Build constructs critic handles from configuration. Unknown kinds and
// constructor failures are configuration errors.
func Build(cfgs []config.Critic, deps Deps) ([]critic.Handle, error) {
	handles := make([]critic.Handle, 0, len(cfgs))
	for _, cc := range cfgs {
		var (
			c   critic.Critic
			err error
		)
		switch cc.Kind {
		case "rules":
			c, err = NewRulesCritic(cc.Name, cc.Params)
		case "llm":
			if deps.LLM == nil {
				err = fmt.Errorf("critic %q: no llm client configured", cc.Name)
			} else {
				c, err = NewLLMCritic(cc.Name, deps.LLM, cc.Params)
			}
		case "precedent":
			if deps.Precedents == nil {
				err = fmt.Errorf("critic %q: no precedent store configured", cc.Name)
			} else {
				c = NewPrecedentCritic(cc.Name, deps.Precedents, deps.PrecedentLimit)
			}
		default:
			err = fmt.Errorf("critic %q: unknown kind %q", cc.Name, cc.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
		}

		handles = append(handles, critic.Handle{
			Critic:    c,
			Name:      cc.Name,
			Weight:    cc.Weight,
			Override:  cc.Override,
			Timeout:   cc.Timeout,
			Safeguard: cc.Safeguard,
		})
	}
	return handles, nil
}
