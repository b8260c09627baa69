package gate

import (
	"context"

	"github.com/threefoldtech/shipgate/internal/sonar"
)

// Passthrough is the source used when the scanner itself waited for the gate,
// a scanner that exited zero already means the gate passed.
type Passthrough struct{}

// Await implements Source
func (Passthrough) Await(ctx context.Context, taskID string) (Verdict, error) {
	if err := ctx.Err(); err != nil {
		return Verdict{}, err
	}
	return Verdict{TaskID: taskID, Status: sonar.GateOK}, nil
}
