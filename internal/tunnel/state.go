package tunnel

import (
	"strconv"
	"strings"
)

// State is the tunnel service state reported by the service manager.
type State int

const (
	StateAbsent State = iota
	StateStopped
	StateStartPending
	StateStopPending
	StateRunning
	// StateUnknown covers codes this package does not recognise; the raw
	// code is kept in Status.Code.
	StateUnknown
)

// errServiceDoesNotExist is ERROR_SERVICE_DOES_NOT_EXIST, the exit status of
// a service query for a name that is not installed.
const errServiceDoesNotExist = 1060

var stateNames = map[State]string{
	StateAbsent:       "absent",
	StateStopped:      "stopped",
	StateStartPending: "start_pending",
	StateStopPending:  "stop_pending",
	StateRunning:      "running",
	StateUnknown:      "unknown",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Status is the result of one status query. It is never cached.
type Status struct {
	State State
	// Code is the numeric state reported by the service manager, 0 when the
	// service is absent and -1 when the state line could not be parsed.
	Code int
}

// Absent is the status of a tunnel with no installed service.
var Absent = Status{State: StateAbsent}

// StatusFromCode maps a service manager state code to a Status.
func StatusFromCode(code int) Status {
	switch code {
	case 1:
		return Status{State: StateStopped, Code: code}
	case 2:
		return Status{State: StateStartPending, Code: code}
	case 3:
		return Status{State: StateStopPending, Code: code}
	case 4:
		return Status{State: StateRunning, Code: code}
	default:
		return Status{State: StateUnknown, Code: code}
	}
}

// Running reports whether the tunnel is up.
func (s Status) Running() bool { return s.State == StateRunning }

// Transitioning reports whether the service is between states.
func (s Status) Transitioning() bool {
	return s.State == StateStartPending || s.State == StateStopPending
}

func (s Status) String() string {
	if s.State == StateUnknown {
		return "unknown(" + strconv.Itoa(s.Code) + ")"
	}
	return s.State.String()
}

// ParseQuery interprets service query output such as
//
//	SERVICE_NAME: WireGuardTunnel$safenet
//	        TYPE               : 10  WIN32_OWN_PROCESS
//	        STATE              : 4  RUNNING
//
// Output with no STATE line is Absent. A STATE line whose value does not start
// with an integer is Unknown with Code -1. ParseQuery never fails.
func ParseQuery(output string) Status {
	if strings.TrimSpace(output) == "" {
		return Absent
	}
	for _, line := range strings.Split(output, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok || !hasToken(key, "STATE") {
			continue
		}
		fields := strings.Fields(value)
		if len(fields) == 0 {
			return Status{State: StateUnknown, Code: -1}
		}
		code, err := strconv.Atoi(fields[0])
		if err != nil {
			return Status{State: StateUnknown, Code: -1}
		}
		return StatusFromCode(code)
	}
	return Absent
}

func hasToken(s, token string) bool {
	for _, f := range strings.Fields(s) {
		if f == token {
			return true
		}
	}
	return false
}
