package ports

import (
	"context"

	"github.com/rowanvale/substratum/modules/governance/domain/types"
)

// ValidatorAgent evaluates a descriptor over a network boundary. A non-success
// response or network error must surface to the caller: committing or
// proposing without a required report would break the audit guarantee.
type ValidatorAgent interface {
	Validate(ctx context.Context, descriptor types.ChangeDescriptor, mode types.ValidatorMode) (types.ValidationReport, error)
}
