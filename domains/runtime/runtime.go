// Package runtime holds the Runtime domain: script evaluation and console
// notifications.
package runtime

import (
	"devtools-rpc/codec"
	"devtools-rpc/domain"
)

var Domain = domain.New("Runtime")

// ConsoleAPICalledType is the kind of console call that produced an event.
type ConsoleAPICalledType int

const (
	ConsoleLog ConsoleAPICalledType = iota
	ConsoleDebug
	ConsoleInfo
	ConsoleError
	ConsoleWarning
	ConsoleDir
	ConsoleTable
	ConsoleTrace
	ConsoleClear
	ConsoleAssert
)

var consoleTypes = codec.NewEnumTable("ConsoleAPICalledType", map[ConsoleAPICalledType]string{
	ConsoleLog:     "log",
	ConsoleDebug:   "debug",
	ConsoleInfo:    "info",
	ConsoleError:   "error",
	ConsoleWarning: "warning",
	ConsoleDir:     "dir",
	ConsoleTable:   "table",
	ConsoleTrace:   "trace",
	ConsoleClear:   "clear",
	ConsoleAssert:  "assert",
})

func (t ConsoleAPICalledType) String() string { return consoleTypes.String(t) }

func (t ConsoleAPICalledType) MarshalJSON() ([]byte, error) { return consoleTypes.Marshal(t) }

func (t *ConsoleAPICalledType) UnmarshalJSON(data []byte) error {
	v, err := consoleTypes.Unmarshal(data)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// RemoteObject mirrors a value living in the debuggee.
type RemoteObject struct {
	Type        string `json:"type"`
	Subtype     string `json:"subtype,omitempty"`
	ClassName   string `json:"className,omitempty"`
	Value       any    `json:"value,omitempty"`
	Description string `json:"description,omitempty"`
	ObjectID    string `json:"objectId,omitempty"`
}

type ExceptionDetails struct {
	ExceptionID  int           `json:"exceptionId"`
	Text         string        `json:"text"`
	LineNumber   int           `json:"lineNumber"`
	ColumnNumber int           `json:"columnNumber"`
	Exception    *RemoteObject `json:"exception,omitempty"`
}

type EvaluateParams struct {
	Expression    string `json:"expression"`
	ReturnByValue bool   `json:"returnByValue,omitempty"`
	AwaitPromise  bool   `json:"awaitPromise,omitempty"`
	ContextID     int    `json:"contextId,omitempty"`
}

type EvaluateResult struct {
	Result           RemoteObject      `json:"result"`
	ExceptionDetails *ExceptionDetails `json:"exceptionDetails,omitempty"`
}

type EnableParams struct{}

type EnableResult struct{}

var (
	Evaluate = domain.NewCommand[EvaluateParams, EvaluateResult](Domain, "evaluate")
	Enable   = domain.NewCommand[EnableParams, EnableResult](Domain, "enable")
)

type ConsoleAPICalledEvent struct {
	Type               ConsoleAPICalledType `json:"type"`
	Args               []RemoteObject       `json:"args"`
	ExecutionContextID int                  `json:"executionContextId"`
	Timestamp          float64              `json:"timestamp"`
}

type ExecutionContextDestroyedEvent struct {
	ExecutionContextID int `json:"executionContextId"`
}

var (
	ConsoleAPICalled          = domain.NewEvent[ConsoleAPICalledEvent](Domain, "consoleAPICalled")
	ExecutionContextDestroyed = domain.NewEvent[ExecutionContextDestroyedEvent](Domain, "executionContextDestroyed")
)
