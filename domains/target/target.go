// Package target holds the Target domain: discovery, creation and teardown
// of debuggable targets such as pages and workers.
package target

import (
	"devtools-rpc/domain"
)

var Domain = domain.New("Target")

// ID identifies a target.
type ID string

// Info describes a target.
type Info struct {
	TargetID         ID     `json:"targetId"`
	Type             string `json:"type"`
	Title            string `json:"title"`
	URL              string `json:"url"`
	Attached         bool   `json:"attached"`
	OpenerID         ID     `json:"openerId,omitempty"`
	BrowserContextID string `json:"browserContextId,omitempty"`
}

type CreateTargetParams struct {
	URL              string `json:"url"`
	Width            int    `json:"width,omitempty"`
	Height           int    `json:"height,omitempty"`
	BrowserContextID string `json:"browserContextId,omitempty"`
	NewWindow        bool   `json:"newWindow,omitempty"`
	Background       bool   `json:"background,omitempty"`
}

type CreateTargetResult struct {
	TargetID ID `json:"targetId"`
}

type CloseTargetParams struct {
	TargetID ID `json:"targetId"`
}

type CloseTargetResult struct {
	Success bool `json:"success"`
}

type GetTargetsParams struct{}

type GetTargetsResult struct {
	TargetInfos []Info `json:"targetInfos"`
}

type SetDiscoverTargetsParams struct {
	Discover bool `json:"discover"`
}

type SetDiscoverTargetsResult struct{}

var (
	CreateTarget       = domain.NewCommand[CreateTargetParams, CreateTargetResult](Domain, "createTarget")
	CloseTarget        = domain.NewCommand[CloseTargetParams, CloseTargetResult](Domain, "closeTarget")
	GetTargets         = domain.NewCommand[GetTargetsParams, GetTargetsResult](Domain, "getTargets")
	SetDiscoverTargets = domain.NewCommand[SetDiscoverTargetsParams, SetDiscoverTargetsResult](Domain, "setDiscoverTargets")
)

type TargetCreatedEvent struct {
	TargetInfo Info `json:"targetInfo"`
}

type TargetDestroyedEvent struct {
	TargetID ID `json:"targetId"`
}

type TargetInfoChangedEvent struct {
	TargetInfo Info `json:"targetInfo"`
}

var (
	TargetCreated     = domain.NewEvent[TargetCreatedEvent](Domain, "targetCreated")
	TargetDestroyed   = domain.NewEvent[TargetDestroyedEvent](Domain, "targetDestroyed")
	TargetInfoChanged = domain.NewEvent[TargetInfoChangedEvent](Domain, "targetInfoChanged")
)
