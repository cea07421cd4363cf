package framegraph

import (
	"errors"
	"fmt"
)

// Graph configuration errors, detected once at validation time. These are
// fatal: a graph that fails validation must not execute. Per-frame capture
// and recovery failures are soft by contrast and never surface this way.
var (
	// ErrDuplicatePass reports two passes sharing an id.
	ErrDuplicatePass = errors.New("framegraph: duplicate pass id")

	// ErrDuplicateOutput reports a resource id written by more than one
	// pass.
	ErrDuplicateOutput = errors.New("framegraph: resource written by more than one pass")

	// ErrUnwrittenInput reports a pass reading a resource id nothing
	// writes.
	ErrUnwrittenInput = errors.New("framegraph: pass reads resource nothing writes")

	// ErrGraphCycle reports a dependency cycle between passes.
	ErrGraphCycle = errors.New("framegraph: dependency cycle between passes")

	// ErrInvalidAttachment reports an input attachment the producing
	// pass does not provide.
	ErrInvalidAttachment = errors.New("framegraph: unresolvable attachment")
)

// validateConfigs checks the declared graph shape: unique pass ids, a
// single producer per resource, every read satisfied, and resolvable
// attachments. All problems are reported together.
func validateConfigs(configs []PassConfig) error {
	var errs []error

	seen := make(map[string]bool, len(configs))
	for i, cfg := range configs {
		if cfg.ID == "" {
			errs = append(errs, fmt.Errorf("framegraph: pass at index %d has empty id", i))
			continue
		}
		if seen[cfg.ID] {
			errs = append(errs, fmt.Errorf("%w: %q", ErrDuplicatePass, cfg.ID))
		}
		seen[cfg.ID] = true
	}

	// One producer per resource id.
	producers := make(map[string]PassConfig)
	for _, cfg := range configs {
		for _, out := range cfg.Outputs {
			if out.Resource == "" {
				errs = append(errs, fmt.Errorf("framegraph: pass %q declares an output with empty resource id", cfg.ID))
				continue
			}
			if prev, ok := producers[out.Resource]; ok {
				errs = append(errs, fmt.Errorf("%w: %q written by %q and %q",
					ErrDuplicateOutput, out.Resource, prev.ID, cfg.ID))
				continue
			}
			producers[out.Resource] = cfg
		}
	}

	// Every read must have a producer providing the requested channel.
	for _, cfg := range configs {
		for _, in := range cfg.Inputs {
			producer, ok := producers[in.Resource]
			if !ok {
				errs = append(errs, fmt.Errorf("%w: pass %q reads %q",
					ErrUnwrittenInput, cfg.ID, in.Resource))
				continue
			}
			switch {
			case in.Attachment == AttachmentDepth:
				if !producerHasDepth(producer, in.Resource) {
					errs = append(errs, fmt.Errorf("%w: pass %q reads depth of %q but %q declares no depth output",
						ErrInvalidAttachment, cfg.ID, in.Resource, producer.ID))
				}
			case in.Attachment > AttachmentColor:
				errs = append(errs, fmt.Errorf("%w: pass %q reads %s of %q, only single color targets are supported",
					ErrInvalidAttachment, cfg.ID, in.Attachment, in.Resource))
			case in.Attachment < AttachmentDepth:
				errs = append(errs, fmt.Errorf("%w: pass %q reads %s of %q",
					ErrInvalidAttachment, cfg.ID, in.Attachment, in.Resource))
			}
		}
	}

	// Producer-before-consumer must be satisfiable.
	if len(errs) == 0 {
		if _, err := orderConfigs(configs); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func producerHasDepth(cfg PassConfig, resource string) bool {
	for _, out := range cfg.Outputs {
		if out.Resource == resource && out.Depth {
			return true
		}
	}
	return false
}

// orderConfigs returns the execution order as indices into configs, with
// every producer before all of its consumers. Passes with no dependency
// between them order by ascending priority, then registration order.
func orderConfigs(configs []PassConfig) ([]int, error) {
	n := len(configs)

	producer := make(map[string]int, n)
	for i, cfg := range configs {
		for _, out := range cfg.Outputs {
			producer[out.Resource] = i
		}
	}

	// Dependency edges producer -> consumer, deduplicated.
	edges := make([]map[int]bool, n)
	indegree := make([]int, n)
	for i, cfg := range configs {
		for _, in := range cfg.Inputs {
			p, ok := producer[in.Resource]
			if !ok {
				continue
			}
			if p == i {
				return nil, fmt.Errorf("%w: pass %q reads its own output %q",
					ErrGraphCycle, cfg.ID, in.Resource)
			}
			if edges[p] == nil {
				edges[p] = make(map[int]bool)
			}
			if !edges[p][i] {
				edges[p][i] = true
				indegree[i]++
			}
		}
	}

	order := make([]int, 0, n)
	done := make([]bool, n)
	for len(order) < n {
		// Pick the ready pass with the lowest (priority, index). Graphs
		// are small, so a linear scan beats a heap here.
		best := -1
		for i := range configs {
			if done[i] || indegree[i] != 0 {
				continue
			}
			if best == -1 || configs[i].Priority < configs[best].Priority {
				best = i
			}
		}
		if best == -1 {
			var stuck []string
			for i := range configs {
				if !done[i] {
					stuck = append(stuck, configs[i].ID)
				}
			}
			return nil, fmt.Errorf("%w: %v", ErrGraphCycle, stuck)
		}
		done[best] = true
		order = append(order, best)
		for next := range edges[best] {
			indegree[next]--
		}
	}
	return order, nil
}
