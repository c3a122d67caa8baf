package pusherr

// Condition is the success/abnormal result value returned by start and
// cancel: either Normal (the zero value) or Abnormal carrying the cause.
type Condition struct {
	err *PushError
}

// Normal is the success Condition.
var Normal = Condition{}

// Abnormal wraps a PushError into a failing Condition.
func Abnormal(err *PushError) Condition {
	return Condition{err: err}
}

// OK reports whether the condition is Normal.
func (c Condition) OK() bool {
	return c.err == nil
}

// Err returns the underlying PushError, or nil if the Condition is Normal.
func (c Condition) Err() *PushError {
	return c.err
}

func (c Condition) String() string {
	if c.OK() {
		return "Normal"
	}
	return "Abnormal(" + c.err.Error() + ")"
}
