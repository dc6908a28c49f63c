package batch

import (
	"slices"

	"github.com/Sternrassler/graph-core-go/pkg/pipeline"
	"github.com/Sternrassler/graph-core-go/pkg/sdkerrors"
	"github.com/google/uuid"
)

// Collection is a logical batch of any size, split into physical batches
// of at most limit steps. A Collection is sealed once executed.
type Collection struct {
	limit   int
	batches []*Content
	sealed  bool
}

// NewCollection creates an empty collection. A zero limit means DefaultLimit.
func NewCollection(limit int) (*Collection, error) {
	first, err := NewContent(limit)
	if err != nil {
		return nil, err
	}
	return &Collection{limit: first.Limit(), batches: []*Content{first}}, nil
}

// Limit returns the steps per physical batch.
func (c *Collection) Limit() int {
	return c.limit
}

// Len returns the total number of steps.
func (c *Collection) Len() int {
	n := 0
	for _, b := range c.batches {
		n += b.Len()
	}
	return n
}

// Seal makes the collection read-only.
func (c *Collection) Seal() {
	c.sealed = true
}

// IsSealed reports whether the collection is read-only.
func (c *Collection) IsSealed() bool {
	return c.sealed
}

// Has reports whether any physical batch holds a step with id.
func (c *Collection) Has(id string) bool {
	return c.find(id) != nil
}

// AddStep adds a step, starting a new physical batch when the current one
// is full. It returns false without error when the id is already present.
func (c *Collection) AddStep(step Step) (bool, error) {
	if c.sealed {
		return false, sealedError()
	}
	if step.ID != "" && c.Has(step.ID) {
		return false, nil
	}

	current := c.current()
	if current.IsFull() {
		for _, dep := range step.DependsOn {
			if c.Has(dep) {
				return false, sdkerrors.Newf(sdkerrors.CodeInvalidArgument,
					"step %q depends on %q which is in a full batch", step.ID, dep)
			}
		}
		next, err := NewContent(c.limit)
		if err != nil {
			return false, err
		}
		c.batches = append(c.batches, next)
		current = next
	}

	return current.AddStep(step)
}

// AddUniqueStep is AddStep failing with sdkerrors.CodeDuplicateStepID when
// the id is already present in any physical batch.
func (c *Collection) AddUniqueStep(step Step) error {
	added, err := c.AddStep(step)
	if err != nil {
		return err
	}
	if !added {
		return duplicateStepError(step.ID)
	}
	return nil
}

// AddRequest adds req as a step with a generated id and returns the id.
func (c *Collection) AddRequest(req *pipeline.Request, dependsOn ...string) (string, error) {
	id := uuid.NewString()
	if _, err := c.AddStep(Step{ID: id, Request: req, DependsOn: dependsOn}); err != nil {
		return "", err
	}
	return id, nil
}

// RemoveStep removes a step, searching the current batch first and then
// the earlier ones in order. It reports whether a step was removed.
func (c *Collection) RemoveStep(id string) (bool, error) {
	if c.sealed {
		return false, sealedError()
	}
	if c.current().RemoveStep(id) {
		return true, nil
	}
	for _, b := range c.batches[:len(c.batches)-1] {
		if b.RemoveStep(id) {
			return true, nil
		}
	}
	return false, nil
}

// Contents returns the non-empty physical batches in order.
func (c *Collection) Contents() []*Content {
	out := make([]*Content, 0, len(c.batches))
	for _, b := range c.batches {
		if b.Len() > 0 {
			out = append(out, b)
		}
	}
	return out
}

// NewWithFailedSteps returns a new collection holding the original step
// definitions of every id whose status is not 2xx. Ids without a status
// are skipped. Dependencies are kept only when the step they name is
// retried in the same physical batch.
func (c *Collection) NewWithFailedSteps(statusCodes map[string]int) (*Collection, error) {
	retry, err := NewCollection(c.limit)
	if err != nil {
		return nil, err
	}

	for _, b := range c.batches {
		for _, step := range b.Steps() {
			status, ok := statusCodes[step.ID]
			if !ok || sdkerrors.IsSuccess(status) {
				continue
			}

			req, err := step.Request.Clone()
			if err != nil {
				return nil, err
			}
			current := retry.current()
			deps := slices.DeleteFunc(slices.Clone(step.DependsOn), func(dep string) bool {
				return current.IsFull() || !current.Has(dep)
			})

			if _, err := retry.AddStep(Step{ID: step.ID, Request: req, DependsOn: deps}); err != nil {
				return nil, err
			}
		}
	}

	return retry, nil
}

func (c *Collection) current() *Content {
	return c.batches[len(c.batches)-1]
}

func (c *Collection) find(id string) *Content {
	for _, b := range c.batches {
		if b.Has(id) {
			return b
		}
	}
	return nil
}

func sealedError() error {
	return sdkerrors.New(sdkerrors.CodeCollectionSealed, "batch collection is sealed and can no longer be modified")
}
