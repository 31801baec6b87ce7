package tftp

import "fmt"

// BindError is the distinguished error returned when the listening socket
// cannot be bound (spec section 6: "Bind failure is reported via a
// distinguished error"). It mirrors tftp_engine.py's NoService exception,
// carrying the operator-facing hint text the source builds inline in
// TFTPserver.__init__'s except clause.
type BindError struct {
	Address string
	Port    int
	Err     error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to bind tftp listener on %s:%d: %v", e.Address, e.Port, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// Hint returns the multi-line operator-facing diagnostic the source
// attaches to a bind failure, including the privileged-port hint when
// applicable.
func (e *BindError) Hint(privilegedPortPossible bool) string {
	var msg string
	if e.Address != "" {
		msg = fmt.Sprintf("Failed to bind to %s:%d.\n", e.Address, e.Port)
	} else {
		msg = fmt.Sprintf("Failed to bind to port %d.\n", e.Port)
	}
	msg += "Check you do not have another service listening on this port\n"
	msg += "(you may have a tftp daemon already running), and that your\n"
	msg += "user permissions allow you to open a socket on this port."
	if privilegedPortPossible && e.Port < 1024 {
		msg += "\n(Ports below 1024 may need root or administrator privileges.)"
	}
	msg += "\nFurther error details will be given in the logs."
	return msg
}
