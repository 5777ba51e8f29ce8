package errors

import (
	"fmt"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// ContractViolation is the panic value used by pure computation when a caller
// hands it malformed input. It marks a defect in the caller, not a runtime condition.
type ContractViolation struct {
	*errbuilder.ErrBuilder
}

func (v *ContractViolation) Error() string {
	return "contract violation: " + v.ErrBuilder.Msg
}

// Violatef panics with a ContractViolation built from the format string.
func Violatef(format string, args ...any) {
	panic(&ContractViolation{
		ErrBuilder: errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf(format, args...)),
	})
}
