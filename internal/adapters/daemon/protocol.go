package daemon

// protocol.go defines the wire types and framing for daemon IPC. Each call
// dials a fresh connection, gob-encodes a method name followed by its
// request, and gob-decodes an rpcError followed by the response. ExecuteTask
// is the one streaming call: after the request, the server gob-encodes a
// sequence of executeTaskChunk values on the same connection, terminated by
// one with Done set.

// rpcError carries the result of a unary call. An empty Message means
// success.
type rpcError struct {
	Message string
}

type pingRequest struct{}

type pingResponse struct {
	IdleRemainingSeconds int64
}

type statusRequest struct{}

type statusResponse struct {
	Running              bool
	PID                  int
	UptimeSeconds        int64
	LastActivityUnix     int64
	IdleRemainingSeconds int64
}

type shutdownRequest struct {
	Graceful bool
}

type shutdownResponse struct {
	Success bool
}

type configMtime struct {
	Path          string
	MtimeUnixNano int64
}

type getGraphRequest struct {
	Cwd          string
	ConfigMtimes []configMtime
}

type taskWire struct {
	Name            string
	Command         []string
	Inputs          []string
	Outputs         []string
	Tools           map[string]string
	Dependencies    []string
	Environment     map[string]string
	WorkingDir      string
	RebuildStrategy string
}

type getGraphResponse struct {
	CacheHit bool
	Root     string
	Tasks    []taskWire
}

type getEnvironmentRequest struct {
	EnvID string
	Tools map[string]string
}

type getEnvironmentResponse struct {
	CacheHit bool
	EnvVars  []string
}

// inputHashState mirrors ports.InputHashState over the wire.
type inputHashState int

const (
	inputHashUnknown inputHashState = iota
	inputHashReady
	inputHashPending
)

type getInputHashRequest struct {
	TaskName string
	Root     string
	Env      map[string]string
}

type getInputHashResponse struct {
	State inputHashState
	Hash  string
}

type executeTaskRequest struct {
	TaskName        string
	Command         []string
	WorkingDir      string
	TaskEnvironment map[string]string
	NixEnvironment  []string
}

// executeTaskChunk is one frame of an ExecuteTask response stream: either a
// slice of captured output, or (when Done) the final exit status.
type executeTaskChunk struct {
	Data       []byte
	Done       bool
	ExitCode   int
	ErrMessage string
}

const (
	methodPing           = "Ping"
	methodStatus         = "Status"
	methodShutdown       = "Shutdown"
	methodGetGraph       = "GetGraph"
	methodGetEnvironment = "GetEnvironment"
	methodGetInputHash   = "GetInputHash"
	methodExecuteTask    = "ExecuteTask"
)
