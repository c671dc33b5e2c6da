// Package agent implements the agent wrapper that actors use to act in
// an environment. The wrapper maps each agent in an environment to the
// policy it acts with and routes observations, actions and experience
// between agents and policies.
package agent

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/distlearn/experience"
	"github.com/samuelfneumann/distlearn/policy"
)

// Wrapper groups the policies an actor acts with. Several agents may
// share a single policy.
type Wrapper struct {
	policies      map[string]policy.Policy
	agentToPolicy map[string]string
}

// New returns a new Wrapper. Every agent in agentToPolicy must map to
// one of policies, and policy names must be unique.
func New(policies []policy.Policy, agentToPolicy map[string]string) (*Wrapper,
	error) {
	byName := make(map[string]policy.Policy, len(policies))
	for _, p := range policies {
		if _, ok := byName[p.Name()]; ok {
			return nil, fmt.Errorf("new agent wrapper: duplicate policy %q",
				p.Name())
		}
		byName[p.Name()] = p
	}

	mapping := make(map[string]string, len(agentToPolicy))
	for agentID, name := range agentToPolicy {
		if _, ok := byName[name]; !ok {
			return nil, fmt.Errorf("new agent wrapper: agent %q maps to "+
				"unknown policy %q", agentID, name)
		}
		mapping[agentID] = name
	}

	return &Wrapper{policies: byName, agentToPolicy: mapping}, nil
}

// Policies returns the sorted names of the wrapped policies
func (w *Wrapper) Policies() []string {
	names := make([]string, 0, len(w.policies))
	for name := range w.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Policy returns the policy an agent acts with
func (w *Wrapper) Policy(agentID string) (policy.Policy, bool) {
	name, ok := w.agentToPolicy[agentID]
	if !ok {
		return nil, false
	}
	return w.policies[name], true
}

// Explore sets every policy to exploration mode
func (w *Wrapper) Explore() {
	for _, p := range w.policies {
		p.Explore()
	}
}

// Exploit sets every policy to exploitation mode
func (w *Wrapper) Exploit() {
	for _, p := range w.policies {
		p.Exploit()
	}
}

// ChooseAction selects an action for each agent in state. Agents
// without a policy are skipped.
func (w *Wrapper) ChooseAction(state map[string]mat.Vector) map[string]*mat.VecDense {
	actions := make(map[string]*mat.VecDense, len(state))
	for agentID, obs := range state {
		p, ok := w.Policy(agentID)
		if !ok {
			continue
		}
		actions[agentID] = p.SelectAction(obs)
	}
	return actions
}

// StoreExperiences puts the experience of each agent into the memory of
// the policy the agent acts with and returns the sorted names of the
// policies that received new records. Records of agents sharing a
// policy are grouped in agent order and put with a single write.
// Experience of agents acting with policies that do not buffer
// experience is dropped. If any agent is unknown nothing is stored.
func (w *Wrapper) StoreExperiences(byAgent map[string]experience.Batch) ([]string,
	error) {
	agentIDs := make([]string, 0, len(byAgent))
	for agentID := range byAgent {
		agentIDs = append(agentIDs, agentID)
	}
	sort.Strings(agentIDs)

	grouped := make(map[string]experience.Batch)
	for _, agentID := range agentIDs {
		batch := byAgent[agentID]
		p, ok := w.Policy(agentID)
		if !ok {
			return nil, fmt.Errorf("store experiences: unknown agent %q",
				agentID)
		}
		if _, ok := p.(policy.Buffer); !ok ||
			!p.Capabilities().Has(policy.Buffered) || batch.Empty() {
			continue
		}

		acc, ok := grouped[p.Name()]
		if !ok {
			acc = experience.Batch{Policy: p.Name()}
		}
		grouped[p.Name()] = acc.Append(batch.Transitions...)
	}

	names := make([]string, 0, len(grouped))
	for name := range grouped {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		buffer := w.policies[name].(policy.Buffer)
		if err := buffer.Memory().Put(grouped[name]); err != nil {
			return nil, fmt.Errorf("store experiences: %w", err)
		}
	}
	return names, nil
}

// ExperiencesByPolicy drains the memories of the named policies and
// returns their records keyed by policy. Policies that are unknown, do
// not buffer experience or hold no records are left out.
func (w *Wrapper) ExperiencesByPolicy(names []string) map[string]experience.Batch {
	out := make(map[string]experience.Batch, len(names))
	for _, name := range names {
		buffer, ok := w.policies[name].(policy.Buffer)
		if !ok {
			continue
		}
		if batch := buffer.Memory().Drain(); !batch.Empty() {
			out[name] = batch
		}
	}
	return out
}

// SetPolicyStates loads the state of each named policy
func (w *Wrapper) SetPolicyStates(states map[string]policy.State) error {
	for name, state := range states {
		p, ok := w.policies[name]
		if !ok {
			return fmt.Errorf("set policy states: unknown policy %q", name)
		}
		if err := p.SetState(state); err != nil {
			return fmt.Errorf("set policy states: %w", err)
		}
	}
	return nil
}

// ExplorationStep advances the exploration schedule of each policy
// which has one
func (w *Wrapper) ExplorationStep() {
	for _, p := range w.policies {
		if e, ok := p.(policy.Explorer); ok {
			e.ExplorationStep()
		}
	}
}
